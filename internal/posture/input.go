package posture

import (
	"fmt"
	"sort"

	secaerrors "github.com/khanhnv2901/seca-posture/internal/shared/errors"
)

// MaxPort is the highest valid TCP/UDP port number.
const MaxPort = 65535

// AuditInput is the set of host facts gathered by one audit run.
type AuditInput struct {
	OpenPorts          []int `json:"open_ports" yaml:"open_ports"`
	LocalhostOnlyPorts []int `json:"localhost_only_ports" yaml:"localhost_only_ports"`
	FirewallActive     bool  `json:"firewall_active" yaml:"firewall_active"`
	Fail2banActive     bool  `json:"fail2ban_active" yaml:"fail2ban_active"`
	FailedSSHAttempts  int   `json:"failed_ssh_attempts" yaml:"failed_ssh_attempts"`
	SecurityUpdates    int   `json:"security_updates" yaml:"security_updates"`
	PendingUpdates     int   `json:"pending_updates" yaml:"pending_updates"`
}

// Validate checks the input at the boundary before it reaches the engine.
// Score itself performs no validation.
func (in AuditInput) Validate() error {
	counts := []struct {
		name  string
		value int
	}{
		{"failed_ssh_attempts", in.FailedSSHAttempts},
		{"security_updates", in.SecurityUpdates},
		{"pending_updates", in.PendingUpdates},
	}
	for _, c := range counts {
		if c.value < 0 {
			return fmt.Errorf("%w: %s must not be negative (got %d)", secaerrors.ErrInvalidInput, c.name, c.value)
		}
	}

	open := make(map[int]struct{}, len(in.OpenPorts))
	for _, port := range in.OpenPorts {
		if port < 0 || port > MaxPort {
			return fmt.Errorf("%w: open port %d out of range", secaerrors.ErrInvalidInput, port)
		}
		open[port] = struct{}{}
	}
	for _, port := range in.LocalhostOnlyPorts {
		if _, ok := open[port]; !ok {
			return fmt.Errorf("%w: localhost-only port %d is not an open port", secaerrors.ErrInvalidInput, port)
		}
	}
	return nil
}

// sortedUnique returns an ascending, de-duplicated copy of ports.
func sortedUnique(ports []int) []int {
	if len(ports) == 0 {
		return []int{}
	}
	out := append([]int(nil), ports...)
	sort.Ints(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
