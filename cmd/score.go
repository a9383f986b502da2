package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/khanhnv2901/seca-posture/internal/posture"
	secaerrors "github.com/khanhnv2901/seca-posture/internal/shared/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a single host from collected facts",
	Long: `Score one host. Facts come from --input (JSON or YAML, "-" for stdin),
from individual flags, or both; explicitly set flags override the input file.
--bindings replaces the port lists with those parsed from a socket table.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		asJSON, _ := cmd.Flags().GetBool("json")
		minScore, _ := cmd.Flags().GetInt("min-score")

		in, source, err := buildAuditInput(cmd.Flags(), cmd.InOrStdin())
		if err != nil {
			return err
		}
		if err := in.Validate(); err != nil {
			return &InputValidationError{Source: source, Err: err}
		}

		result := appCtx.Engine.Score(in)
		appCtx.Logger.Debugw("host scored", "source", source, "score", result.Score, "findings", len(result.Findings))

		if asJSON {
			if err := writeJSONOutput(cmd.OutOrStdout(), result); err != nil {
				return err
			}
		} else {
			printResult(cmd.OutOrStdout(), result, appCtx.Engine.Policy().BaseScore)
		}

		if minScore > 0 && result.Score < minScore {
			return &ScoreThresholdError{Score: result.Score, MinScore: minScore}
		}
		return nil
	},
}

// buildAuditInput layers the input file, the bindings table and explicit flags.
func buildAuditInput(flags *pflag.FlagSet, stdin io.Reader) (posture.AuditInput, string, error) {
	var in posture.AuditInput
	source := "flags"

	if path, _ := flags.GetString("input"); path != "" {
		loaded, err := loadAuditInput(stdin, path)
		if err != nil {
			return in, path, err
		}
		in, source = loaded, path
	}

	if path, _ := flags.GetString("bindings"); path != "" {
		bindings, err := readBindings(stdin, path)
		if err != nil {
			return in, source, err
		}
		in.OpenPorts = bindings.OpenPorts
		in.LocalhostOnlyPorts = bindings.LocalhostOnlyPorts
	}

	if flags.Changed("ports") {
		in.OpenPorts, _ = flags.GetIntSlice("ports")
	}
	if flags.Changed("localhost-ports") {
		in.LocalhostOnlyPorts, _ = flags.GetIntSlice("localhost-ports")
	}
	if flags.Changed("firewall") {
		in.FirewallActive, _ = flags.GetBool("firewall")
	}
	if flags.Changed("fail2ban") {
		in.Fail2banActive, _ = flags.GetBool("fail2ban")
	}
	if flags.Changed("failed-ssh") {
		in.FailedSSHAttempts, _ = flags.GetInt("failed-ssh")
	}
	if flags.Changed("security-updates") {
		in.SecurityUpdates, _ = flags.GetInt("security-updates")
	}
	if flags.Changed("pending-updates") {
		in.PendingUpdates, _ = flags.GetInt("pending-updates")
	}
	return in, source, nil
}

// loadAuditInput decodes .json files as JSON and .yaml, .yml or stdin as YAML.
func loadAuditInput(stdin io.Reader, path string) (posture.AuditInput, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path) // #nosec G304 -- operator-supplied input file.
	}
	if err != nil {
		return posture.AuditInput{}, fmt.Errorf("failed to read audit input: %w", err)
	}

	var in posture.AuditInput
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &in)
	case ".yaml", ".yml", "":
		err = yaml.Unmarshal(data, &in)
	default:
		return posture.AuditInput{}, fmt.Errorf("%w: %s", secaerrors.ErrUnsupportedType, ext)
	}
	if err != nil {
		return posture.AuditInput{}, fmt.Errorf("%w: %s: %w", secaerrors.ErrDeserializationFailed, path, err)
	}
	return in, nil
}

func addScoreFlags(flags *pflag.FlagSet) {
	flags.String("input", "", "Audit input file (JSON or YAML, - for stdin)")
	flags.String("bindings", "", "Listening-socket table to derive port lists from (- for stdin)")
	flags.IntSlice("ports", nil, "Open ports")
	flags.IntSlice("localhost-ports", nil, "Ports bound only to loopback")
	flags.Bool("firewall", false, "Host firewall is active")
	flags.Bool("fail2ban", false, "fail2ban is active")
	flags.Int("failed-ssh", 0, "Failed SSH login attempts in the last 24h")
	flags.Int("security-updates", 0, "Pending security updates")
	flags.Int("pending-updates", 0, "Pending updates of any kind")
	flags.Bool("json", false, "Print the result as JSON")
	flags.Int("min-score", 0, "Exit with status 2 when the score is below this value (0 = disabled)")
}

func init() {
	addScoreFlags(scoreCmd.Flags())
}
