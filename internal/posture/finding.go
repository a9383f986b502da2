package posture

import (
	"encoding/json"
	"fmt"
)

// Severity classifies how urgent a finding is.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
	SeverityInfo   Severity = "info"
)

// Rank orders severities so that high > medium > low > info.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Category names the deduction bucket a finding belongs to.
type Category string

const (
	CategoryPorts    Category = "ports"
	CategoryFirewall Category = "firewall"
	CategorySSH      Category = "ssh"
	CategoryUpdates  Category = "updates"
)

// PortClass is the bucket an open port falls into during categorisation.
type PortClass string

const (
	PortClassDatabase   PortClass = "database"
	PortClassLegacy     PortClass = "legacy"
	PortClassMail       PortClass = "mail"
	PortClassSecureMail PortClass = "secure_mail"
	PortClassCommon     PortClass = "common"
	PortClassOther      PortClass = "other"
)

// Finding is one reported observation. The set of implementations is closed:
// PortFinding, FirewallFinding, SSHFinding and UpdateFinding.
type Finding interface {
	Severity() Severity
	Category() Category
	Message() string
	finding()
}

// PortFinding reports an open port.
type PortFinding struct {
	Port  int
	Level Severity
	Class PortClass
	// LocalhostOnly is set when the port was downgraded because it only
	// listens on loopback.
	LocalhostOnly bool
}

func (f PortFinding) Severity() Severity { return f.Level }
func (f PortFinding) Category() Category { return CategoryPorts }
func (PortFinding) finding()             {}

func (f PortFinding) Message() string {
	if f.LocalhostOnly {
		return fmt.Sprintf("port %d (%s) listens on loopback only", f.Port, f.Class)
	}
	switch f.Class {
	case PortClassDatabase:
		return fmt.Sprintf("database port %d is exposed", f.Port)
	case PortClassLegacy:
		return fmt.Sprintf("insecure legacy service on port %d", f.Port)
	case PortClassMail:
		if f.Level == SeverityInfo {
			return fmt.Sprintf("mail port %d is expected on a mail server", f.Port)
		}
		return fmt.Sprintf("plaintext mail port %d is exposed", f.Port)
	case PortClassSecureMail:
		return fmt.Sprintf("encrypted mail port %d is open", f.Port)
	default:
		return fmt.Sprintf("unexpected port %d is open", f.Port)
	}
}

// FirewallFinding reports that the host firewall is not active.
type FirewallFinding struct{}

func (FirewallFinding) Severity() Severity { return SeverityHigh }
func (FirewallFinding) Category() Category { return CategoryFirewall }
func (FirewallFinding) Message() string    { return "firewall is not active" }
func (FirewallFinding) finding()           {}

// SSHFinding reports brute-force exposure of the SSH daemon.
type SSHFinding struct {
	Level Severity
	Text  string
}

func (f SSHFinding) Severity() Severity { return f.Level }
func (f SSHFinding) Category() Category { return CategorySSH }
func (f SSHFinding) Message() string    { return f.Text }
func (SSHFinding) finding()             {}

// UpdateFinding reports pending package updates.
type UpdateFinding struct {
	Level Severity
	Count int
	// Security distinguishes security-relevant updates from the general backlog.
	Security bool
}

func (f UpdateFinding) Severity() Severity { return f.Level }
func (f UpdateFinding) Category() Category { return CategoryUpdates }
func (f UpdateFinding) finding()           {}

func (f UpdateFinding) Message() string {
	if f.Security {
		return fmt.Sprintf("%d security update(s) pending", f.Count)
	}
	return fmt.Sprintf("%d update(s) pending", f.Count)
}

// FindingRecord is the flat wire shape of a Finding.
type FindingRecord struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Category Category `json:"category" yaml:"category"`
	Port     *int     `json:"port,omitempty" yaml:"port,omitempty"`
	Message  string   `json:"message,omitempty" yaml:"message,omitempty"`
}

// Record flattens a finding into its wire shape.
func Record(f Finding) FindingRecord {
	rec := FindingRecord{
		Severity: f.Severity(),
		Category: f.Category(),
		Message:  f.Message(),
	}
	if pf, ok := f.(PortFinding); ok {
		port := pf.Port
		rec.Port = &port
	}
	return rec
}

// Records flattens a slice of findings preserving order.
func Records(findings []Finding) []FindingRecord {
	out := make([]FindingRecord, 0, len(findings))
	for _, f := range findings {
		out = append(out, Record(f))
	}
	return out
}

// Deductions holds the capped points subtracted per category.
type Deductions struct {
	Ports    int `json:"ports"`
	Firewall int `json:"firewall"`
	SSH      int `json:"ssh"`
	Updates  int `json:"updates"`
}

// Total returns the sum of all category deductions.
func (d Deductions) Total() int {
	return d.Ports + d.Firewall + d.SSH + d.Updates
}

// AuditResult is the outcome of scoring one AuditInput.
type AuditResult struct {
	Score      int
	Findings   []Finding
	Deductions Deductions
}

type auditResultJSON struct {
	Score      int             `json:"score"`
	Findings   []FindingRecord `json:"findings"`
	Deductions Deductions      `json:"deductions"`
}

// MarshalJSON renders findings in their flat record form.
func (r AuditResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(auditResultJSON{
		Score:      r.Score,
		Findings:   Records(r.Findings),
		Deductions: r.Deductions,
	})
}

// HighestSeverity returns the most severe finding level, or "" when there are no findings.
func (r AuditResult) HighestSeverity() Severity {
	var best Severity
	for _, f := range r.Findings {
		if best == "" || f.Severity().Rank() > best.Rank() {
			best = f.Severity()
		}
	}
	return best
}

// FirstFinding returns the first finding with the given severity in evaluation order.
func (r AuditResult) FirstFinding(sev Severity) (Finding, bool) {
	for _, f := range r.Findings {
		if f.Severity() == sev {
			return f, true
		}
	}
	return nil, false
}
