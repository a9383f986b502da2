package cmd

import (
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/khanhnv2901/seca-posture/internal/posture"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorBold    = color.New(color.Bold).SprintFunc()
)

func formatStatusWithColor(status string) string {
	switch strings.ToLower(status) {
	case "ok", "success", "pass":
		return colorSuccess(status)
	case "error", "fail", "failed":
		return colorError(status)
	default:
		return status
	}
}

func formatSeverity(sev posture.Severity) string {
	label := strings.ToUpper(string(sev))
	switch sev {
	case posture.SeverityHigh:
		return colorError(label)
	case posture.SeverityMedium:
		return colorWarn(label)
	case posture.SeverityLow:
		return colorInfo(label)
	default:
		return label
	}
}

// formatScore colours a score relative to the policy's base score.
func formatScore(score, base int) string {
	text := strconv.Itoa(score)
	switch {
	case base <= 0:
		return text
	case score*10 >= base*8:
		return colorSuccess(text)
	case score*2 >= base:
		return colorWarn(text)
	default:
		return colorError(text)
	}
}
