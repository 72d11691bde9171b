package input

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"

	"paasport/logger"
)

// sets up paasport state dirs & logging
func InitEnvironment(configFile ConfigFile) (stateDir, metricsDir, logFilePath string) {
	var err error

	stateDir = strings.TrimSuffix(configFile.StateDir, "/")
	metricsDir = filepath.Join(stateDir, "metrics")

	// create state dir
	if err = os.MkdirAll(stateDir, 0755); err != nil {
		log.Fatalf("ERR: Error creating directory %s: %v", stateDir, err)
	}

	// create metrics dir
	if err = os.MkdirAll(metricsDir, 0755); err != nil {
		log.Fatalf("ERR: Error creating directory %s: %v", metricsDir, err)
	}

	// initialize logging
	logFilePath = logger.InitLogging(stateDir, configFile.LogLevel, configFile.LogFormat, configFile.LogTextColour)

	return stateDir, metricsDir, logFilePath
}

// guided setup tool for initial init
func SetupTool() {

	fmt.Println("|----- Paasport Setup Wizard -----|")
	fmt.Println("|-~-~-~-~-~-~-~-~-~-~-~-~-~-~-~-~-|")
	fmt.Println(" ")

	// prompt for state directory
	stateDir := ""
	statePrompt := &survey.Input{
		Message: "State directory for archives, checkpoints & logs:",
		Default: "/var/paasport",
	}
	if err := survey.AskOne(statePrompt, &stateDir); err != nil {
		log.Fatalf("ERROR: Setup aborted: %v", err)
	}
	stateDir = strings.TrimSuffix(stateDir, "/")

	// prompt for paas data directory
	dataDir := ""
	dataPrompt := &survey.Input{
		Message: "PaaS data directory to migrate:",
		Default: "/data/coolify",
	}
	if err := survey.AskOne(dataPrompt, &dataDir); err != nil {
		log.Fatalf("ERROR: Setup aborted: %v", err)
	}

	// prompt for ssh private key path
	keyPath := ""
	keyPrompt := &survey.Input{
		Message: "SSH private key used to reach the destination:",
		Default: filepath.Join(dataDir, "ssh/keys/id.root"),
	}
	if err := survey.AskOne(keyPrompt, &keyPath); err != nil {
		log.Fatalf("ERROR: Setup aborted: %v", err)
	}

	configFile := ConfigFile{
		StateDir:   stateDir,
		DataDir:    dataDir,
		SSHKeyPath: keyPath,
		LogLevel:   "info",
		LogFormat:  "text",
	}

	// init env and determine directories & logfile
	stateDir, metricsDir, logFilePath := InitEnvironment(configFile)

	fmt.Printf("State directory initialized at: %s\n", stateDir)
	fmt.Printf("Metrics cache directory: %s\n", metricsDir)
	fmt.Printf("Log file initialized at: %s\n", logFilePath)
	fmt.Println(" ")
	time.Sleep(250 * time.Millisecond)

	// check for existing config.yml
	configFilePath := DefaultConfigPath

	// if DNE then prompt to create default config
	if _, err := os.Stat(configFilePath); os.IsNotExist(err) {
		createConfig := false
		confirm := &survey.Confirm{
			Message: fmt.Sprintf("No config found at %s. Create one now?", configFilePath),
			Default: true,
		}
		if err := survey.AskOne(confirm, &createConfig); err != nil {
			log.Fatalf("ERROR: Setup aborted: %v", err)
		}

		if createConfig {
			if err := os.MkdirAll(filepath.Dir(configFilePath), 0755); err != nil {
				log.Fatalf("ERROR: Failed to create config dir: %v", err)
			}
			if err := createDefaultConfig(configFilePath, stateDir, dataDir, keyPath); err != nil {
				log.Fatalf("ERROR: Failed to create config.yml: %v", err)
			}
			fmt.Printf("Default config.yml created at %s\n", configFilePath)
		} else {
			log.Println("WARN <setup>: Skipping configfile creation, please ensure you manually create a config.yml file!")
		}
	}

	logger.LogxWithFields("info", "Environment setup completed successfully!", map[string]interface{}{
		"package": "setup",
		"success": true,
	})
}

// create default config and write to configFilePath
func createDefaultConfig(configFilePath, stateDir, dataDir, keyPath string) error {
	// Template for default config.yml
	defaultConfig := fmt.Sprintf(`# [ SOURCE MACHINE ]
# PaaS data directory that will be shipped to the new server
data_directory: %s

# Archive output; a fixed name on purpose, an existing archive is reused as-is
#archive_path: %s/coolify-migration.bak.tar.gz

# Docker volume storage root, volumes of running containers are resolved under here
volume_root: /var/lib/docker/volumes

# Local authorized_keys shipped inside the archive & merged on the destination
authorized_keys_path: /root/.ssh/authorized_keys

# [ DESTINATION ]
default_remote_user: root
default_remote_host: 10.0.0.1
default_remote_port: 22
ssh_key_path: %s

# Install script executed on the destination once the archive is restored
install_script_url: https://cdn.coollabs.io/coolify/install.sh

# [ RUN BEHAVIOUR ]
# These two replace the interactive prompts when running -non-interactive
stop_docker_before_archive: false
delete_archive_after_transfer: false

# Checkpoints, logs & metrics cache live here
state_directory: %s

# ICMP probe before transfer
icmp_test: true

# [ LOGGING ]
log_level: info       # 'debug', 'info', 'warn', 'error', 'fatal'
log_format: text      # 'json' or 'text'
log_text_format_colouring: true

# [ METRICS ]
enable_metrics: false
listen_address: 127.0.0.1:9329
listen_duration: 30
`, dataDir, stateDir, keyPath, stateDir)

	// Write default config file
	return os.WriteFile(configFilePath, []byte(defaultConfig), 0644)
}
