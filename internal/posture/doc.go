// Package posture turns raw host-audit facts into a 0-100 security score.
//
// The package has two pure entry points:
//
//   - ParseBindings reads a listening-socket table and reports which ports
//     are open and which of those only listen on loopback.
//   - Engine.Score applies a Policy to an AuditInput and returns the score,
//     the ordered findings and the capped per-category deductions.
//
// Neither performs I/O or keeps state between calls, so both may be used
// concurrently for independent hosts. Callers validate input with
// AuditInput.Validate before scoring; Score itself never fails.
//
// Findings are a closed set of variants (PortFinding, FirewallFinding,
// SSHFinding, UpdateFinding) and are flattened with Record for output.
package posture
