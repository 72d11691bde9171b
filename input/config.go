package input

import (
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"paasport/util"
)

// ConfigFile is the on-disk YAML configuration for paasport. Every value
// the original migration flow hard-coded lives here instead.
type ConfigFile struct {
	DataDir            string `yaml:"data_directory"`
	ArchivePath        string `yaml:"archive_path"`
	VolumeRoot         string `yaml:"volume_root"`
	AuthorizedKeysPath string `yaml:"authorized_keys_path"`
	InstallScriptURL   string `yaml:"install_script_url"`
	SSHKeyPath         string `yaml:"ssh_key_path"`
	RemoteHost         string `yaml:"default_remote_host"`
	RemoteUser         string `yaml:"default_remote_user"`
	RemotePort         int    `yaml:"default_remote_port"`
	StopDocker         bool   `yaml:"stop_docker_before_archive"`
	DeleteArchive      bool   `yaml:"delete_archive_after_transfer"`
	StateDir           string `yaml:"state_directory"`
	ICMPTest           bool   `yaml:"icmp_test"`
	LogLevel           string `yaml:"log_level"`
	LogFormat          string `yaml:"log_format"`
	LogTextColour      bool   `yaml:"log_text_format_colouring"`
	EnableMetrics      bool   `yaml:"enable_metrics"`
	ListenAddress      string `yaml:"listen_address"`
	ListenDuration     int    `yaml:"listen_duration"`
	Version            string `yaml:"version,omitempty"`
}

// DefaultConfigPath is where paasport looks for its config unless -config
// is passed.
const DefaultConfigPath = "/etc/paasport/config.yml"

// parse & validate config file
func LoadConfigFile(configFilePath string) (*ConfigFile, error) {

	// read config data from config file
	configFileData, err := os.ReadFile(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// unmarshal yaml into configfile var
	var config ConfigFile
	if err := yaml.Unmarshal(configFileData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	//> CFG FILE VALIDATIONS
	// validate that the paas data dir is defined
	if config.DataDir == "" {
		return nil, fmt.Errorf("missing required config: data_directory")
	}

	// validate that the state dir is defined
	if config.StateDir == "" {
		return nil, fmt.Errorf("missing required config: state_directory")
	}

	// validate that the ssh key path is defined
	if config.SSHKeyPath == "" {
		return nil, fmt.Errorf("missing required config: ssh_key_path")
	}

	// the install step pipes this straight into a shell on the destination,
	// so refuse anything that is not https
	if config.InstallScriptURL == "" {
		return nil, fmt.Errorf("missing required config: install_script_url")
	}
	if !strings.HasPrefix(config.InstallScriptURL, "https://") {
		return nil, fmt.Errorf("invalid required config: install_script_url must use https")
	}

	// if remote host not empty, validate that remote host is a valid IP address or DNS name
	if config.RemoteHost != "" {
		if err := util.ValidateIP(config.RemoteHost); err != nil {
			return nil, fmt.Errorf("invalid required config: default_remote_host: %v", err)
		}
	}

	// fall back to standard docker volume storage root
	if config.VolumeRoot == "" {
		config.VolumeRoot = "/var/lib/docker/volumes"
	}

	// fall back to root's authorized_keys, the account the migration runs as
	if config.AuthorizedKeysPath == "" {
		config.AuthorizedKeysPath = "/root/.ssh/authorized_keys"
	}

	if config.RemotePort == 0 {
		config.RemotePort = 22
	}

	// validate log_level
	// warn if invalid, default to "info"
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}

	// walk map, if no keys match valid log levels then warn & set config.LogLevel to `info`
	if !validLogLevels[config.LogLevel] {
		log.Printf("invalid `log_level` supplied, defaulting to `info`")
		config.LogLevel = "info"
	}

	// validate log_format
	// warn if invalid, default to "text"
	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	// walk map, if no keys match valid log formats then warn & set config.LogFormat to `text`
	if !validLogFormats[config.LogFormat] {
		log.Printf("invalid `log_format` supplied, defaulting to `text`")
		config.LogFormat = "text"
	}

	return &config, nil
}
