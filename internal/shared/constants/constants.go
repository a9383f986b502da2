package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

const (
	// MaxRequestBodyBytes caps JSON and text bodies accepted by the API.
	MaxRequestBodyBytes = 1 << 20
	// DefaultAuditTimeout bounds fact collection for a single host.
	DefaultAuditTimeout = 30 * time.Second
	// DefaultAuditConcurrency is the number of hosts audited in parallel.
	DefaultAuditConcurrency = 4
	// DefaultAuditRateLimit is the number of host audits started per second.
	DefaultAuditRateLimit = 10
)

const (
	// ListeningFileName holds the raw listening-socket table inside a host snapshot.
	ListeningFileName = "listening.txt"
	// FactsFileName holds the remaining host facts inside a host snapshot.
	FactsFileName = "facts.yaml"
)
