package remote

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
)

// ClientConfig describes the destination host connection.
type ClientConfig struct {
	Host    string
	Port    int
	User    string
	KeyPath string
	Timeout time.Duration
}

// Client wraps a single SSH connection to the destination host.
type Client struct {
	client *ssh.Client
	host   string
	user   string
}

// Dial opens an SSH connection using key-based auth.
func Dial(config ClientConfig) (*Client, error) {
	if config.Port == 0 {
		config.Port = 22
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	keyAuth, err := publicKeyAuth(config.KeyPath)
	if err != nil {
		return nil, err
	}

	sshConfig := &ssh.ClientConfig{
		User:            config.User,
		Auth:            []ssh.AuthMethod{keyAuth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // migration targets are freshly provisioned, no known_hosts yet
		Timeout:         config.Timeout,
	}

	address := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	client, err := ssh.Dial("tcp", address, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	return &Client{client: client, host: config.Host, user: config.User}, nil
}

// publicKeyAuth returns public key authentication method
func publicKeyAuth(keyPath string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return ssh.PublicKeys(signer), nil
}

// Run executes a command on the destination, streaming output to the
// local stdout/stderr.
func (c *Client) Run(command string) error {
	session, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	session.Stdout = os.Stdout
	session.Stderr = os.Stderr

	return session.Run(command)
}

// Output executes a command on the destination and captures stdout.
func (c *Client) Output(command string) (string, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	out, err := session.Output(command)
	if err != nil {
		return string(out), fmt.Errorf("remote command failed: %w", err)
	}
	return string(out), nil
}

// RunWithStdin executes a command on the destination with the given
// reader streamed as its standard input.
func (c *Client) RunWithStdin(command string, stdin io.Reader) error {
	session, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	session.Stdin = stdin
	session.Stdout = os.Stdout
	session.Stderr = os.Stderr

	return session.Run(command)
}

// Close closes the SSH connection
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Host returns the destination hostname.
func (c *Client) Host() string { return c.host }

// User returns the destination username.
func (c *Client) User() string { return c.user }

// TestReachability dials the destination with a short timeout and runs a
// no-op remote command, mirroring an `ssh host true` probe.
func TestReachability(config ClientConfig) error {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}

	client, err := Dial(config)
	if err != nil {
		return fmt.Errorf("destination %s is not reachable over SSH: %w", config.Host, err)
	}
	defer client.Close()

	if err := client.Run("true"); err != nil {
		return fmt.Errorf("destination %s refused a no-op command: %w", config.Host, err)
	}
	return nil
}
