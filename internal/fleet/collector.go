package fleet

import (
	"context"
	"fmt"
	"sort"

	"github.com/khanhnv2901/seca-posture/internal/posture"
	secaerrors "github.com/khanhnv2901/seca-posture/internal/shared/errors"
)

// RawFacts are the unprocessed facts gathered from one host.
type RawFacts struct {
	Listening         string `json:"listening" yaml:"listening"`
	FirewallActive    bool   `json:"firewall_active" yaml:"firewall_active"`
	Fail2banActive    bool   `json:"fail2ban_active" yaml:"fail2ban_active"`
	FailedSSHAttempts int    `json:"failed_ssh_attempts" yaml:"failed_ssh_attempts"`
	SecurityUpdates   int    `json:"security_updates" yaml:"security_updates"`
	PendingUpdates    int    `json:"pending_updates" yaml:"pending_updates"`
}

// AuditInput runs the listening table through the binding parser and
// assembles the scoring input.
func (f RawFacts) AuditInput() posture.AuditInput {
	bindings := posture.ParseBindings(f.Listening)
	return posture.AuditInput{
		OpenPorts:          bindings.OpenPorts,
		LocalhostOnlyPorts: bindings.LocalhostOnlyPorts,
		FirewallActive:     f.FirewallActive,
		Fail2banActive:     f.Fail2banActive,
		FailedSSHAttempts:  f.FailedSSHAttempts,
		SecurityUpdates:    f.SecurityUpdates,
		PendingUpdates:     f.PendingUpdates,
	}
}

// Collector gathers raw facts for a host. Implementations own the transport.
type Collector interface {
	Collect(ctx context.Context, host string) (RawFacts, error)
}

// StaticCollector serves facts supplied up front, keyed by host.
type StaticCollector map[string]RawFacts

// Collect returns the stored facts for host.
func (c StaticCollector) Collect(ctx context.Context, host string) (RawFacts, error) {
	if err := ctx.Err(); err != nil {
		return RawFacts{}, err
	}
	facts, ok := c[host]
	if !ok {
		return RawFacts{}, fmt.Errorf("%w: %s", secaerrors.ErrHostNotFound, host)
	}
	return facts, nil
}

// Hosts lists the collector's hosts in sorted order.
func (c StaticCollector) Hosts() []string {
	hosts := make([]string, 0, len(c))
	for h := range c {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}
