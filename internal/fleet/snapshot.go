package fleet

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	consts "github.com/khanhnv2901/seca-posture/internal/shared/constants"
	secaerrors "github.com/khanhnv2901/seca-posture/internal/shared/errors"
	"github.com/khanhnv2901/seca-posture/internal/shared/security"
	"gopkg.in/yaml.v3"
)

// SnapshotCollector reads facts captured earlier from disk. Each host has
// its own directory under Dir holding listening.txt and facts.yaml; either
// file may be missing, in which case the corresponding facts are zero.
type SnapshotCollector struct {
	Dir string
}

// Collect loads the snapshot for host.
func (c *SnapshotCollector) Collect(ctx context.Context, host string) (RawFacts, error) {
	if err := ctx.Err(); err != nil {
		return RawFacts{}, err
	}
	hostDir, err := c.hostDir(host)
	if err != nil {
		return RawFacts{}, err
	}

	var facts RawFacts
	data, err := os.ReadFile(filepath.Join(hostDir, consts.FactsFileName))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &facts); err != nil {
			return RawFacts{}, fmt.Errorf("%w: %s/%s: %v", secaerrors.ErrDeserializationFailed, host, consts.FactsFileName, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return RawFacts{}, fmt.Errorf("read facts for %s: %w", host, err)
	}

	listening, err := os.ReadFile(filepath.Join(hostDir, consts.ListeningFileName))
	switch {
	case err == nil:
		facts.Listening = string(listening)
	case !errors.Is(err, fs.ErrNotExist):
		return RawFacts{}, fmt.Errorf("read listening table for %s: %w", host, err)
	}

	return facts, nil
}

// Hosts lists every host directory under Dir in sorted order.
func (c *SnapshotCollector) Hosts() ([]string, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", secaerrors.ErrSnapshotLayout, err)
	}
	hosts := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			hosts = append(hosts, entry.Name())
		}
	}
	sort.Strings(hosts)
	return hosts, nil
}

func (c *SnapshotCollector) hostDir(host string) (string, error) {
	if host == "" {
		return "", secaerrors.ErrEmptyHost
	}
	if err := security.ValidateHostName(host); err != nil {
		return "", fmt.Errorf("%w: %w", secaerrors.ErrSnapshotLayout, err)
	}
	dir, err := security.ResolveWithin(c.Dir, host)
	if err != nil {
		return "", fmt.Errorf("%w: %w", secaerrors.ErrSnapshotLayout, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", secaerrors.ErrHostNotFound, host)
		}
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", secaerrors.ErrSnapshotLayout, dir)
	}
	return dir, nil
}
