package keys

import (
	"fmt"
	"os"
	"os/user"
	"sort"
	"strings"
	"syscall"
)

// AuthorizedKeysMode is the permission set enforced on the merged
// destination authorized_keys file.
const AuthorizedKeysMode = os.FileMode(0600)

// MergeAuthorizedKeys unions two authorized_keys payloads into a single
// sorted, deduplicated file body. Every non-blank line is kept verbatim,
// matching the semantics of `cat a b | sort -u`. The result always ends
// with a trailing newline unless it is empty.
func MergeAuthorizedKeys(existing, incoming []byte) []byte {
	seen := make(map[string]struct{})
	var lines []string

	for _, payload := range [][]byte{existing, incoming} {
		for _, line := range strings.Split(string(payload), "\n") {
			trimmed := strings.TrimRight(line, "\r")
			if strings.TrimSpace(trimmed) == "" {
				continue
			}
			if _, ok := seen[trimmed]; ok {
				continue
			}
			seen[trimmed] = struct{}{}
			lines = append(lines, trimmed)
		}
	}

	if len(lines) == 0 {
		return nil
	}

	sort.Strings(lines)
	return []byte(strings.Join(lines, "\n") + "\n")
}

// validate private key integrity
func ValidateSSHPrivateKeyPerms(privKeyPath string) error {
	privKeyInfo, err := os.Stat(privKeyPath)
	if err != nil {
		return fmt.Errorf("unable to locate key file: %w", err)
	}

	// validate regular filetype
	if !privKeyInfo.Mode().IsRegular() {
		return fmt.Errorf("ssh private key is not a regular file")
	}

	// validate permissions are correct
	perms := privKeyInfo.Mode().Perm()
	if perms > 0600 {
		return fmt.Errorf("ssh key permissions are too open: %o (expected max 0600)", perms)
	}

	// determine file owner
	stat, ok := privKeyInfo.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("failed to get stat info for ssh key")
	}

	// determine current user
	currentUser, err := user.Current()
	if err != nil {
		return fmt.Errorf("could not get current user: %w", err)
	}

	// ensure current user & file owner match
	if fmt.Sprint(stat.Uid) != currentUser.Uid {
		return fmt.Errorf("ssh key is not owned by the current user")
	}

	return nil
}
