package cmd

import (
	"strconv"
	"testing"

	"github.com/fatih/color"
	"github.com/khanhnv2901/seca-posture/internal/posture"
)

func TestFormatStatusWithColor(t *testing.T) {
	original := color.NoColor
	color.NoColor = true
	t.Cleanup(func() {
		color.NoColor = original
	})

	tests := []struct {
		name   string
		status string
		want   string
	}{
		{name: "success", status: "OK", want: "OK"},
		{name: "pass synonym", status: "pass", want: "pass"},
		{name: "failure", status: "FAILED", want: "FAILED"},
		{name: "unknown", status: "pending", want: "pending"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatStatusWithColor(tt.status); got != tt.want {
				t.Fatalf("formatStatusWithColor(%q) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestFormatSeverityAndScore(t *testing.T) {
	original := color.NoColor
	color.NoColor = true
	t.Cleanup(func() {
		color.NoColor = original
	})

	if got := formatSeverity(posture.SeverityHigh); got != "HIGH" {
		t.Fatalf("formatSeverity(high) = %q", got)
	}
	if got := formatSeverity(posture.SeverityInfo); got != "INFO" {
		t.Fatalf("formatSeverity(info) = %q", got)
	}
	for _, score := range []int{100, 60, 10} {
		if got := formatScore(score, 100); got != strconv.Itoa(score) {
			t.Fatalf("formatScore(%d) = %q", score, got)
		}
	}
}

func TestFormatScoreColors(t *testing.T) {
	original := color.NoColor
	color.NoColor = false
	t.Cleanup(func() {
		color.NoColor = original
	})

	if formatScore(90, 100) != colorSuccess("90") {
		t.Fatal("expected high scores in green")
	}
	if formatScore(55, 100) != colorWarn("55") {
		t.Fatal("expected middling scores in yellow")
	}
	if formatScore(20, 100) != colorError("20") {
		t.Fatal("expected low scores in red")
	}
	if formatScore(20, 0) != "20" {
		t.Fatal("expected plain text without a base score")
	}
}
