package util

import (
	"fmt"
	"net"

	"paasport/logger"
)

// validate string as valid IPv4, IPv6 address, or resolvable DNS name
func ValidateIP(remoteHost string) error {

	if remoteHost == "" {
		return fmt.Errorf("host cannot be empty")
	}

	ip := net.ParseIP(remoteHost)
	if ip != nil {
		// handle disallowed ip types
		if ip.IsUnspecified() || ip.IsLoopback() || ip.IsMulticast() {
			return fmt.Errorf("host %s is not a valid remote address (unspecified, loopback, or multicast)", remoteHost)
		}

		// reject them obviously bogus ips
		switch remoteHost {
		case "0.0.0.0", "::", "127.0.0.1", "::1":
			return fmt.Errorf("host %s is not a valid remote address: ", remoteHost)
		}
		return nil
	}

	// if not a valid v4 or v6 IP, attempt dns lookup
	if net.ParseIP(remoteHost) == nil {
		_, err := net.LookupHost(remoteHost)
		if err != nil {
			return fmt.Errorf("provided host must be a valid IP(v4/v6) address or queriable hostname: %v", err)
		}
	}

	return nil
}

// test ICMP reachability to remote host
func ICMPRemoteHost(remoteHost string) error {

	// check host via icmp
	if err := RunCommand("ping", "-c", "1", "-W", "2", remoteHost); err != nil {
		return fmt.Errorf("remote host %s is unreachable via ICMP", remoteHost)
	}

	logger.LogxWithFields("debug", fmt.Sprintf("ICMP connection test against %s successful", remoteHost), map[string]interface{}{
		"package":     "net",
		"remote_host": remoteHost,
		"success":     true,
	})
	return nil
}
