package cmd

import (
	"fmt"

	"github.com/khanhnv2901/seca-posture/internal/posture"
	consts "github.com/khanhnv2901/seca-posture/internal/shared/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	Scoring ScoringConfig
	Audit   AuditRuntimeConfig
}

// ScoringConfig selects the policy the engine runs with.
type ScoringConfig struct {
	PolicyFile          string
	ExemptLocalhostOnly bool
}

// AuditRuntimeConfig consolidates flag-driven settings for fleet audits.
type AuditRuntimeConfig struct {
	Concurrency     int
	RateLimit       int
	TimeoutSecs     int
	ProgressEnabled bool
}

type defaultOverrides struct {
	PolicyFile          string
	ExemptLocalhostOnly *bool
	Concurrency         *int
	RateLimit           *int
	TimeoutSecs         *int
}

var cliConfig = newCLIConfig()

func newCLIConfig() *CLIConfig {
	return &CLIConfig{
		Audit: AuditRuntimeConfig{
			Concurrency:     consts.DefaultAuditConcurrency,
			RateLimit:       consts.DefaultAuditRateLimit,
			TimeoutSecs:     int(consts.DefaultAuditTimeout.Seconds()),
			ProgressEnabled: true,
		},
	}
}

func loadDefaultOverrides() defaultOverrides {
	overrides := defaultOverrides{}

	if viper.IsSet("scoring.policy_file") {
		overrides.PolicyFile = viper.GetString("scoring.policy_file")
	}

	if viper.IsSet("scoring.exempt_localhost_only") {
		val := viper.GetBool("scoring.exempt_localhost_only")
		overrides.ExemptLocalhostOnly = &val
	}

	if viper.IsSet("audit.concurrency") {
		val := viper.GetInt("audit.concurrency")
		overrides.Concurrency = &val
	}

	if viper.IsSet("audit.rate_limit") {
		val := viper.GetInt("audit.rate_limit")
		overrides.RateLimit = &val
	}

	if viper.IsSet("audit.timeout_secs") {
		val := viper.GetInt("audit.timeout_secs")
		overrides.TimeoutSecs = &val
	}

	return overrides
}

// applyConfigDefaults merges config file defaults into the runtime config when the user
// did not explicitly override the corresponding flag.
func applyConfigDefaults(cmd *cobra.Command) {
	overrides := loadDefaultOverrides()
	flags := rootCmd.PersistentFlags()
	if cmd != nil {
		flags = cmd.Flags()
	}

	if overrides.PolicyFile != "" {
		setStringFlagIfUnset(flags, "policy", overrides.PolicyFile)
	}

	if overrides.ExemptLocalhostOnly != nil {
		applyBoolDefault(flags, "exempt-localhost", *overrides.ExemptLocalhostOnly, func(v bool) {
			cliConfig.Scoring.ExemptLocalhostOnly = v
		})
	}

	if overrides.Concurrency != nil {
		applyIntDefault(auditCmd.Flags(), "concurrency", *overrides.Concurrency, func(v int) {
			cliConfig.Audit.Concurrency = v
		})
	}

	if overrides.RateLimit != nil {
		applyIntDefault(auditCmd.Flags(), "rate-limit", *overrides.RateLimit, func(v int) {
			cliConfig.Audit.RateLimit = v
		})
	}

	if overrides.TimeoutSecs != nil {
		applyIntDefault(auditCmd.Flags(), "timeout", *overrides.TimeoutSecs, func(v int) {
			cliConfig.Audit.TimeoutSecs = v
		})
	}
}

// buildEngine resolves the scoring policy from the policy file and flags.
func buildEngine(cfg *CLIConfig) (*posture.Engine, error) {
	policy := posture.DefaultPolicy()
	if cfg.Scoring.PolicyFile != "" {
		loaded, err := posture.LoadPolicy(cfg.Scoring.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load policy %s: %w", cfg.Scoring.PolicyFile, err)
		}
		policy = loaded
	}
	if cfg.Scoring.ExemptLocalhostOnly {
		policy.ExemptLocalhostOnly = true
	}
	return posture.NewEngine(policy), nil
}

func applyIntDefault(flags *pflag.FlagSet, name string, value int, setter func(int)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func applyBoolDefault(flags *pflag.FlagSet, name string, value bool, setter func(bool)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func setStringFlagIfUnset(flags *pflag.FlagSet, name, value string) {
	if flags == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag == nil || flag.Changed {
		return
	}
	_ = flag.Value.Set(value)
}
