package fleet

import "github.com/khanhnv2901/seca-posture/internal/posture"

// Summary aggregates a fleet run.
type Summary struct {
	Hosts        int     `json:"hosts"`
	OK           int     `json:"ok"`
	Errors       int     `json:"errors"`
	AverageScore float64 `json:"average_score"`
	LowestScore  int     `json:"lowest_score"`
	LowestHost   string  `json:"lowest_host,omitempty"`
	HighFindings int     `json:"high_findings"`
}

// Summarize computes fleet-wide statistics over successful reports.
func Summarize(reports []HostReport) Summary {
	s := Summary{Hosts: len(reports)}
	total := 0
	for _, r := range reports {
		if r.Status != StatusOK || r.Result == nil {
			s.Errors++
			continue
		}
		s.OK++
		score := r.Result.Score
		total += score
		if s.LowestHost == "" || score < s.LowestScore {
			s.LowestScore = score
			s.LowestHost = r.Host
		}
		for _, f := range r.Result.Findings {
			if f.Severity() == posture.SeverityHigh {
				s.HighFindings++
			}
		}
	}
	if s.OK > 0 {
		s.AverageScore = float64(total) / float64(s.OK)
	}
	return s
}

// BelowThreshold returns the successful reports scoring under threshold.
func BelowThreshold(reports []HostReport, threshold int) []HostReport {
	var out []HostReport
	for _, r := range reports {
		if r.Status == StatusOK && r.Result != nil && r.Result.Score < threshold {
			out = append(out, r)
		}
	}
	return out
}
