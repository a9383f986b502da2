package cmd

import (
	"errors"
	"fmt"
	"strings"
)

// InputValidationError reports audit input rejected before scoring.
type InputValidationError struct {
	Source string
	Err    error
}

func (e *InputValidationError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("invalid audit input from %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("invalid audit input: %v", e.Err)
}

func (e *InputValidationError) Unwrap() error { return e.Err }

// ScoreThresholdError signals that a score fell below --min-score.
type ScoreThresholdError struct {
	Hosts    []string
	Score    int
	MinScore int
}

func (e *ScoreThresholdError) Error() string {
	switch len(e.Hosts) {
	case 0:
		return fmt.Sprintf("score %d is below minimum %d", e.Score, e.MinScore)
	case 1:
		return fmt.Sprintf("host %s scored below minimum %d", e.Hosts[0], e.MinScore)
	}
	return fmt.Sprintf("%d hosts scored below minimum %d: %s", len(e.Hosts), e.MinScore, strings.Join(e.Hosts, ", "))
}

// exitCode maps command errors to process exit codes; threshold failures exit 2.
func exitCode(err error) int {
	var threshold *ScoreThresholdError
	if errors.As(err, &threshold) {
		return 2
	}
	return 1
}
