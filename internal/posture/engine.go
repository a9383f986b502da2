package posture

import "fmt"

// Engine scores audit inputs against a fixed policy. An Engine holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	policy Policy
}

// NewEngine returns an engine bound to the given policy.
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Policy returns a copy of the engine's policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

var defaultEngine = NewEngine(DefaultPolicy())

// Score evaluates in with the default policy.
func Score(in AuditInput) AuditResult {
	return defaultEngine.Score(in)
}

// Score maps an audit input to a score, its findings and the capped
// per-category deductions. Findings are appended in evaluation order:
// ports (ascending), firewall, ssh, updates.
func (e *Engine) Score(in AuditInput) AuditResult {
	p := e.policy
	findings := make([]Finding, 0, len(in.OpenPorts)+4)

	portFindings, portPoints := e.scorePorts(in)
	findings = append(findings, portFindings...)

	firewallPoints := 0
	if !in.FirewallActive {
		findings = append(findings, FirewallFinding{})
		firewallPoints += p.FirewallPenalty
	}

	sshFindings, sshPoints := e.scoreSSH(in)
	findings = append(findings, sshFindings...)

	updateFindings, updatePoints := e.scoreUpdates(in)
	findings = append(findings, updateFindings...)

	deductions := Deductions{
		Ports:    min(portPoints, p.Caps.Ports),
		Firewall: min(firewallPoints, p.Caps.Firewall),
		SSH:      min(sshPoints, p.Caps.SSH),
		Updates:  min(updatePoints, p.Caps.Updates),
	}

	floor := p.Floors.FirewallInactive
	if in.FirewallActive {
		floor = p.Floors.FirewallActive
	}

	return AuditResult{
		Score:      max(p.BaseScore-deductions.Total(), floor),
		Findings:   findings,
		Deductions: deductions,
	}
}

// isMailServer reports whether the open ports look like a mail host: any
// encrypted mail port, or enough plain mail ports.
func (e *Engine) isMailServer(ports []int) bool {
	plain := 0
	for _, port := range ports {
		switch e.policy.classify(port) {
		case PortClassSecureMail:
			return true
		case PortClassMail:
			plain++
		}
	}
	return plain >= e.policy.MailServerMinPlain
}

func (e *Engine) scorePorts(in AuditInput) ([]Finding, int) {
	p := e.policy
	ports := sortedUnique(in.OpenPorts)
	mailServer := e.isMailServer(ports)

	var localhostOnly map[int]struct{}
	if p.ExemptLocalhostOnly {
		localhostOnly = make(map[int]struct{}, len(in.LocalhostOnlyPorts))
		for _, port := range in.LocalhostOnlyPorts {
			localhostOnly[port] = struct{}{}
		}
	}

	var findings []Finding
	points := 0
	for _, port := range ports {
		class := p.classify(port)

		var level Severity
		weight := 0
		switch class {
		case PortClassDatabase:
			level, weight = SeverityHigh, p.Weights.Database
		case PortClassLegacy:
			level, weight = SeverityHigh, p.Weights.Legacy
		case PortClassMail:
			if mailServer {
				level = SeverityInfo
			} else {
				level, weight = SeverityMedium, p.Weights.Mail
			}
		case PortClassSecureMail:
			level = SeverityInfo
		case PortClassCommon:
			continue
		default:
			level, weight = SeverityLow, p.Weights.Other
		}

		finding := PortFinding{Port: port, Level: level, Class: class}
		if _, ok := localhostOnly[port]; ok && weight > 0 {
			finding.Level = SeverityInfo
			finding.LocalhostOnly = true
			weight = 0
		}
		findings = append(findings, finding)
		points += weight
	}
	return findings, points
}

func (e *Engine) scoreSSH(in AuditInput) ([]Finding, int) {
	rules := e.policy.SSH
	if in.Fail2banActive {
		return nil, 0
	}

	var findings []Finding
	points := 0
	attempts := in.FailedSSHAttempts
	if attempts > rules.AttemptThreshold {
		findings = append(findings, SSHFinding{
			Level: SeverityHigh,
			Text:  "fail2ban not active",
		})
		points += rules.InactivePenalty
	}
	if attempts > rules.ManyAttemptThreshold {
		findings = append(findings, SSHFinding{
			Level: SeverityMedium,
			Text:  fmt.Sprintf("many failed SSH attempts (%d in 24h)", attempts),
		})
		points += rules.ManyAttemptsPenalty
	} else if attempts > rules.AttemptThreshold {
		findings = append(findings, SSHFinding{
			Level: SeverityLow,
			Text:  fmt.Sprintf("some failed SSH attempts (%d in 24h)", attempts),
		})
		points += rules.SomeAttemptsPenalty
	}
	return findings, points
}

func (e *Engine) scoreUpdates(in AuditInput) ([]Finding, int) {
	rules := e.policy.Updates

	var findings []Finding
	points := 0
	if in.SecurityUpdates > 0 {
		findings = append(findings, UpdateFinding{
			Level:    SeverityHigh,
			Count:    in.SecurityUpdates,
			Security: true,
		})
		points += cappedProduct(in.SecurityUpdates, rules.SecurityMultiplier, rules.SecurityMax)
	}
	if in.PendingUpdates > rules.PendingThreshold {
		findings = append(findings, UpdateFinding{
			Level: SeverityMedium,
			Count: in.PendingUpdates,
		})
		points += min(in.PendingUpdates/rules.PendingDivisor, rules.PendingMax)
	}
	return findings, points
}

// cappedProduct returns min(count*factor, limit) without overflowing for
// large counts. All arguments are non-negative.
func cappedProduct(count, factor, limit int) int {
	if count <= 0 || factor <= 0 {
		return 0
	}
	if count > limit/factor {
		return limit
	}
	return min(count*factor, limit)
}
