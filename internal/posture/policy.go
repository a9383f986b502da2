package posture

import (
	"fmt"
	"os"

	secaerrors "github.com/khanhnv2901/seca-posture/internal/shared/errors"
	"gopkg.in/yaml.v3"
)

// PortTables lists the port numbers belonging to each class. Ports absent
// from every table are classed as "other".
type PortTables struct {
	Database   []int `json:"database" yaml:"database"`
	Legacy     []int `json:"legacy" yaml:"legacy"`
	Mail       []int `json:"mail" yaml:"mail"`
	SecureMail []int `json:"secure_mail" yaml:"secure_mail"`
	Common     []int `json:"common" yaml:"common"`
}

// PortWeights are the points deducted per open port of a class.
type PortWeights struct {
	Database int `json:"database" yaml:"database"`
	Legacy   int `json:"legacy" yaml:"legacy"`
	Mail     int `json:"mail" yaml:"mail"`
	Other    int `json:"other" yaml:"other"`
}

// Caps bound each category's deduction before it is subtracted.
type Caps struct {
	Ports    int `json:"ports" yaml:"ports"`
	Firewall int `json:"firewall" yaml:"firewall"`
	SSH      int `json:"ssh" yaml:"ssh"`
	Updates  int `json:"updates" yaml:"updates"`
}

// SSHRules drives the brute-force exposure checks.
type SSHRules struct {
	AttemptThreshold     int `json:"attempt_threshold" yaml:"attempt_threshold"`
	ManyAttemptThreshold int `json:"many_attempt_threshold" yaml:"many_attempt_threshold"`
	InactivePenalty      int `json:"inactive_penalty" yaml:"inactive_penalty"`
	ManyAttemptsPenalty  int `json:"many_attempts_penalty" yaml:"many_attempts_penalty"`
	SomeAttemptsPenalty  int `json:"some_attempts_penalty" yaml:"some_attempts_penalty"`
}

// UpdateRules drives the pending update checks.
type UpdateRules struct {
	SecurityMultiplier int `json:"security_multiplier" yaml:"security_multiplier"`
	SecurityMax        int `json:"security_max" yaml:"security_max"`
	PendingThreshold   int `json:"pending_threshold" yaml:"pending_threshold"`
	PendingDivisor     int `json:"pending_divisor" yaml:"pending_divisor"`
	PendingMax         int `json:"pending_max" yaml:"pending_max"`
}

// Floors clamp the final score from below.
type Floors struct {
	FirewallActive   int `json:"firewall_active" yaml:"firewall_active"`
	FirewallInactive int `json:"firewall_inactive" yaml:"firewall_inactive"`
}

// Policy carries every constant the scoring engine consults.
type Policy struct {
	Ports              PortTables  `json:"ports" yaml:"ports"`
	Weights            PortWeights `json:"weights" yaml:"weights"`
	Caps               Caps        `json:"caps" yaml:"caps"`
	FirewallPenalty    int         `json:"firewall_penalty" yaml:"firewall_penalty"`
	SSH                SSHRules    `json:"ssh" yaml:"ssh"`
	Updates            UpdateRules `json:"updates" yaml:"updates"`
	Floors             Floors      `json:"floors" yaml:"floors"`
	BaseScore          int         `json:"base_score" yaml:"base_score"`
	MailServerMinPlain int         `json:"mail_server_min_plain_ports" yaml:"mail_server_min_plain_ports"`

	// ExemptLocalhostOnly downgrades penalised ports that only listen on
	// loopback to info findings with no deduction. Off by default.
	ExemptLocalhostOnly bool `json:"exempt_localhost_only" yaml:"exempt_localhost_only"`
}

// DefaultPolicy returns the standard scoring policy.
func DefaultPolicy() Policy {
	return Policy{
		Ports: PortTables{
			Database:   []int{3306, 5432, 6379, 27017},
			Legacy:     []int{21, 23},
			Mail:       []int{25, 110, 143},
			SecureMail: []int{993, 995, 465, 587},
			Common:     []int{22, 80, 443, 53},
		},
		Weights: PortWeights{
			Database: 15,
			Legacy:   10,
			Mail:     5,
			Other:    2,
		},
		Caps: Caps{
			Ports:    30,
			Firewall: 15,
			SSH:      25,
			Updates:  25,
		},
		FirewallPenalty: 15,
		SSH: SSHRules{
			AttemptThreshold:     10,
			ManyAttemptThreshold: 50,
			InactivePenalty:      10,
			ManyAttemptsPenalty:  10,
			SomeAttemptsPenalty:  5,
		},
		Updates: UpdateRules{
			SecurityMultiplier: 3,
			SecurityMax:        15,
			PendingThreshold:   10,
			PendingDivisor:     5,
			PendingMax:         10,
		},
		Floors: Floors{
			FirewallActive:   10,
			FirewallInactive: 0,
		},
		BaseScore:          100,
		MailServerMinPlain: 2,
	}
}

// Validate rejects policies the engine cannot evaluate sensibly.
func (p Policy) Validate() error {
	nonNegative := []struct {
		name  string
		value int
	}{
		{"weights.database", p.Weights.Database},
		{"weights.legacy", p.Weights.Legacy},
		{"weights.mail", p.Weights.Mail},
		{"weights.other", p.Weights.Other},
		{"caps.ports", p.Caps.Ports},
		{"caps.firewall", p.Caps.Firewall},
		{"caps.ssh", p.Caps.SSH},
		{"caps.updates", p.Caps.Updates},
		{"firewall_penalty", p.FirewallPenalty},
		{"ssh.inactive_penalty", p.SSH.InactivePenalty},
		{"ssh.many_attempts_penalty", p.SSH.ManyAttemptsPenalty},
		{"ssh.some_attempts_penalty", p.SSH.SomeAttemptsPenalty},
		{"updates.security_multiplier", p.Updates.SecurityMultiplier},
		{"updates.security_max", p.Updates.SecurityMax},
		{"updates.pending_max", p.Updates.PendingMax},
		{"floors.firewall_active", p.Floors.FirewallActive},
		{"floors.firewall_inactive", p.Floors.FirewallInactive},
		{"mail_server_min_plain_ports", p.MailServerMinPlain},
		{"ssh.attempt_threshold", p.SSH.AttemptThreshold},
		{"ssh.many_attempt_threshold", p.SSH.ManyAttemptThreshold},
		{"updates.pending_threshold", p.Updates.PendingThreshold},
	}
	for _, f := range nonNegative {
		if f.value < 0 {
			return fmt.Errorf("%w: %s must not be negative (got %d)", secaerrors.ErrInvalidPolicy, f.name, f.value)
		}
	}
	if p.Updates.PendingDivisor <= 0 {
		return fmt.Errorf("%w: updates.pending_divisor must be positive (got %d)", secaerrors.ErrInvalidPolicy, p.Updates.PendingDivisor)
	}
	if p.BaseScore <= 0 {
		return fmt.Errorf("%w: base_score must be positive (got %d)", secaerrors.ErrInvalidPolicy, p.BaseScore)
	}
	if p.Floors.FirewallActive > p.BaseScore || p.Floors.FirewallInactive > p.BaseScore {
		return fmt.Errorf("%w: floors must not exceed base_score", secaerrors.ErrInvalidPolicy)
	}
	return nil
}

// ParsePolicy decodes a YAML policy on top of DefaultPolicy, so a document
// only needs to name the values it changes.
func ParsePolicy(data []byte) (Policy, error) {
	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("%w: %v", secaerrors.ErrInvalidPolicy, err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// LoadPolicy reads a YAML policy file.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	return ParsePolicy(data)
}

func (p Policy) classify(port int) PortClass {
	switch {
	case containsPort(p.Ports.Database, port):
		return PortClassDatabase
	case containsPort(p.Ports.Legacy, port):
		return PortClassLegacy
	case containsPort(p.Ports.Mail, port):
		return PortClassMail
	case containsPort(p.Ports.SecureMail, port):
		return PortClassSecureMail
	case containsPort(p.Ports.Common, port):
		return PortClassCommon
	default:
		return PortClassOther
	}
}

func containsPort(list []int, port int) bool {
	for _, p := range list {
		if p == port {
			return true
		}
	}
	return false
}
