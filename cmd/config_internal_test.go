package cmd

import (
	"errors"
	"path/filepath"
	"testing"

	consts "github.com/khanhnv2901/seca-posture/internal/shared/constants"
	secaerrors "github.com/khanhnv2901/seca-posture/internal/shared/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestApplyIntDefault(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("concurrency", 0, "")

	var applied int
	applyIntDefault(flags, "concurrency", 15, func(v int) {
		applied = v
	})
	if applied != 15 {
		t.Fatalf("expected setter to receive 15, got %d", applied)
	}

	// When flag already set, setter should not run.
	if err := flags.Set("concurrency", "7"); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}
	applied = 0
	applyIntDefault(flags, "concurrency", 20, func(v int) {
		applied = v
	})
	if applied != 0 {
		t.Fatalf("setter should not run when flag overridden, got %d", applied)
	}
}

func TestApplyBoolDefault(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("exempt-localhost", false, "")

	applied := false
	applyBoolDefault(flags, "exempt-localhost", true, func(v bool) {
		applied = v
	})
	if !applied {
		t.Fatal("expected setter to run with true")
	}

	if err := flags.Set("exempt-localhost", "false"); err != nil {
		t.Fatalf("failed to set bool flag: %v", err)
	}
	applied = true
	applyBoolDefault(flags, "exempt-localhost", true, func(v bool) {
		applied = v
	})
	if !applied {
		t.Fatalf("setter should not change value when flag already set")
	}
}

func TestSetStringFlagIfUnset(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("policy", "", "")

	setStringFlagIfUnset(flags, "policy", "default.yaml")
	if got := flags.Lookup("policy").Value.String(); got != "default.yaml" {
		t.Fatalf("expected policy default, got %s", got)
	}

	if err := flags.Set("policy", "mine.yaml"); err != nil {
		t.Fatalf("failed to set policy: %v", err)
	}
	setStringFlagIfUnset(flags, "policy", "other.yaml")
	if got := flags.Lookup("policy").Value.String(); got != "mine.yaml" {
		t.Fatalf("expected policy to remain user-provided, got %s", got)
	}
}

func TestNewCLIConfigDefaults(t *testing.T) {
	cfg := newCLIConfig()
	if cfg.Audit.Concurrency != consts.DefaultAuditConcurrency {
		t.Fatalf("unexpected concurrency default: %d", cfg.Audit.Concurrency)
	}
	if cfg.Audit.RateLimit != consts.DefaultAuditRateLimit {
		t.Fatalf("unexpected rate limit default: %d", cfg.Audit.RateLimit)
	}
	if cfg.Audit.TimeoutSecs != 30 {
		t.Fatalf("unexpected timeout default: %d", cfg.Audit.TimeoutSecs)
	}
	if !cfg.Audit.ProgressEnabled {
		t.Fatal("expected progress to be enabled by default")
	}
	if cfg.Scoring.ExemptLocalhostOnly || cfg.Scoring.PolicyFile != "" {
		t.Fatalf("expected default scoring config, got %+v", cfg.Scoring)
	}
}

func TestLoadDefaultOverrides(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("scoring.policy_file", "/etc/posture/policy.yaml")
	viper.Set("scoring.exempt_localhost_only", true)
	viper.Set("audit.concurrency", 8)
	viper.Set("audit.rate_limit", 0)
	viper.Set("audit.timeout_secs", 5)

	overrides := loadDefaultOverrides()

	if overrides.PolicyFile != "/etc/posture/policy.yaml" {
		t.Fatalf("expected policy file override, got %q", overrides.PolicyFile)
	}
	if overrides.ExemptLocalhostOnly == nil || !*overrides.ExemptLocalhostOnly {
		t.Fatalf("expected exempt override true, got %+v", overrides.ExemptLocalhostOnly)
	}
	if overrides.Concurrency == nil || *overrides.Concurrency != 8 {
		t.Fatalf("expected concurrency override 8, got %+v", overrides.Concurrency)
	}
	if overrides.RateLimit == nil || *overrides.RateLimit != 0 {
		t.Fatalf("expected rate limit override 0, got %+v", overrides.RateLimit)
	}
	if overrides.TimeoutSecs == nil || *overrides.TimeoutSecs != 5 {
		t.Fatalf("expected timeout override 5, got %+v", overrides.TimeoutSecs)
	}

	viper.Reset()
	if empty := loadDefaultOverrides(); empty.Concurrency != nil || empty.PolicyFile != "" {
		t.Fatalf("expected no overrides without config, got %+v", empty)
	}
}

func TestApplyConfigDefaults(t *testing.T) {
	t.Cleanup(func() {
		viper.Reset()
		resetCommandFlags(rootCmd)
		*cliConfig = *newCLIConfig()
	})

	resetCommandFlags(rootCmd)
	*cliConfig = *newCLIConfig()

	viper.Set("scoring.exempt_localhost_only", true)
	viper.Set("audit.concurrency", 12)
	viper.Set("audit.timeout_secs", 3)

	// An explicit --rate-limit wins over the config file.
	if err := auditCmd.Flags().Set("rate-limit", "2"); err != nil {
		t.Fatalf("failed to set rate-limit: %v", err)
	}
	viper.Set("audit.rate_limit", 50)

	testCmd := &cobra.Command{Use: "root"}
	testCmd.Flags().String("policy", "", "")
	testCmd.Flags().Bool("exempt-localhost", false, "")

	applyConfigDefaults(testCmd)

	if !cliConfig.Scoring.ExemptLocalhostOnly {
		t.Fatal("expected exempt_localhost_only from config")
	}
	if cliConfig.Audit.Concurrency != 12 || cliConfig.Audit.TimeoutSecs != 3 {
		t.Fatalf("expected audit overrides, got %+v", cliConfig.Audit)
	}
	if cliConfig.Audit.RateLimit != 2 {
		t.Fatalf("expected explicit flag to win, got rate limit %d", cliConfig.Audit.RateLimit)
	}
}

func TestBuildEngine(t *testing.T) {
	engine, err := buildEngine(newCLIConfig())
	if err != nil {
		t.Fatalf("buildEngine: %v", err)
	}
	if engine.Policy().ExemptLocalhostOnly {
		t.Fatal("default engine must penalise localhost-only ports")
	}

	path := writeFile(t, filepath.Join(t.TempDir(), "policy.yaml"), "base_score: 90\nfloors:\n  firewall_active: 5\n")
	cfg := newCLIConfig()
	cfg.Scoring.PolicyFile = path
	cfg.Scoring.ExemptLocalhostOnly = true
	engine, err = buildEngine(cfg)
	if err != nil {
		t.Fatalf("buildEngine with policy: %v", err)
	}
	if engine.Policy().BaseScore != 90 || !engine.Policy().ExemptLocalhostOnly {
		t.Fatalf("unexpected policy: %+v", engine.Policy())
	}

	cfg.Scoring.PolicyFile = writeFile(t, filepath.Join(t.TempDir(), "bad.yaml"), "updates:\n  pending_divisor: 0\n")
	if _, err := buildEngine(cfg); !errors.Is(err, secaerrors.ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
}
