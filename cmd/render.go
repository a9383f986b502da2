package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/khanhnv2901/seca-posture/internal/fleet"
	"github.com/khanhnv2901/seca-posture/internal/posture"
	secaerrors "github.com/khanhnv2901/seca-posture/internal/shared/errors"
)

const (
	jsonPrefix = ""
	jsonIndent = "  "
)

func writeJSONOutput(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, jsonPrefix, jsonIndent)
	if err != nil {
		return fmt.Errorf("%w: %w", secaerrors.ErrSerializationFailed, err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func joinPorts(ports []int) string {
	if len(ports) == 0 {
		return "none"
	}
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ", ")
}

func printBindings(w io.Writer, b posture.Bindings) {
	fmt.Fprintf(w, "Open ports:           %s\n", joinPorts(b.OpenPorts))
	fmt.Fprintf(w, "Localhost-only ports: %s\n", joinPorts(b.LocalhostOnlyPorts))
}

func printResult(w io.Writer, result posture.AuditResult, base int) {
	fmt.Fprintf(w, "%s %s/%d\n", colorBold("Score:"), formatScore(result.Score, base), base)

	if len(result.Findings) == 0 {
		fmt.Fprintf(w, "%s No findings\n", colorSuccess("✓"))
	} else {
		fmt.Fprintln(w, colorBold("Findings:"))
		for _, f := range result.Findings {
			fmt.Fprintf(w, "  [%s] %-8s %s\n", formatSeverity(f.Severity()), f.Category(), f.Message())
		}
	}

	d := result.Deductions
	fmt.Fprintf(w, "Deductions: ports=%d firewall=%d ssh=%d updates=%d (total %d)\n",
		d.Ports, d.Firewall, d.SSH, d.Updates, d.Total())
}

func printFleet(w io.Writer, reports []fleet.HostReport, summary fleet.Summary, base int) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HOST\tSTATUS\tSCORE\tTOP FINDING")
	for _, r := range reports {
		score, top := "-", r.Error
		if r.Result != nil {
			score = strconv.Itoa(r.Result.Score)
			top = "-"
			if sev := r.Result.HighestSeverity(); sev != "" {
				if f, ok := r.Result.FirstFinding(sev); ok {
					top = fmt.Sprintf("[%s] %s", sev, f.Message())
				}
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Host, formatStatusWithColor(r.Status), score, top)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\nHosts: %d  OK: %s  Errors: %s  High findings: %d\n",
		summary.Hosts, colorSuccess(strconv.Itoa(summary.OK)), colorError(strconv.Itoa(summary.Errors)), summary.HighFindings)
	if summary.OK > 0 {
		fmt.Fprintf(w, "Average score: %.1f  Lowest: %s (%s)\n",
			summary.AverageScore, formatScore(summary.LowestScore, base), summary.LowestHost)
	}
}
