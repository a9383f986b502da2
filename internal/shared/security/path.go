package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxHostNameLength = 253

var (
	// ErrPathEscape indicates the resolved path would escape the trusted root directory.
	ErrPathEscape = errors.New("path escapes base directory")
	// ErrUnsafeHostName indicates a host name that cannot be used as a single path element.
	ErrUnsafeHostName = errors.New("unsafe host name")
)

// ResolveWithin joins the provided path elements under the given base directory and ensures
// the resulting path never traverses outside of that base. The returned path is absolute.
func ResolveWithin(base string, elems ...string) (string, error) {
	if base == "" {
		return "", errors.New("base directory is required")
	}

	cleanBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolve base path: %w", err)
	}

	joined := filepath.Join(append([]string{cleanBase}, elems...)...)
	target, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("resolve target path: %w", err)
	}

	rel, err := filepath.Rel(cleanBase, target)
	if err != nil {
		return "", fmt.Errorf("relativize path: %w", err)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, target)
	}

	return target, nil
}

// ValidateHostName checks that a host name maps to exactly one directory
// entry: no separators, no dot prefix, no control characters.
func ValidateHostName(host string) error {
	switch {
	case host == "":
		return fmt.Errorf("%w: empty", ErrUnsafeHostName)
	case len(host) > maxHostNameLength:
		return fmt.Errorf("%w: longer than %d characters", ErrUnsafeHostName, maxHostNameLength)
	case strings.HasPrefix(host, "."):
		return fmt.Errorf("%w: %q starts with a dot", ErrUnsafeHostName, host)
	case strings.ContainsAny(host, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrUnsafeHostName, host)
	}
	for _, r := range host {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %q contains a control character", ErrUnsafeHostName, host)
		}
	}
	return nil
}
