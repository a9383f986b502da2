package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/khanhnv2901/seca-posture/internal/fleet"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit a fleet of hosts from captured snapshots",
	Long: `Audit every host under --snapshots (or only those named with --host).
Each host directory may hold listening.txt (socket table) and facts.yaml
(firewall_active, fail2ban_active, failed_ssh_attempts, security_updates,
pending_updates).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		snapshots, _ := cmd.Flags().GetString("snapshots")
		hosts, _ := cmd.Flags().GetStringSlice("host")
		asJSON, _ := cmd.Flags().GetBool("json")
		minScore, _ := cmd.Flags().GetInt("min-score")

		if snapshots == "" {
			return fmt.Errorf("--snapshots is required")
		}
		collector := &fleet.SnapshotCollector{Dir: snapshots}
		if len(hosts) == 0 {
			discovered, err := collector.Hosts()
			if err != nil {
				return err
			}
			hosts = discovered
		}
		if len(hosts) == 0 {
			return fmt.Errorf("no hosts found under %s", snapshots)
		}

		cfg := appCtx.Config.Audit
		runner := &fleet.Runner{
			Concurrency: cfg.Concurrency,
			RateLimit:   cfg.RateLimit,
			Timeout:     time.Duration(cfg.TimeoutSecs) * time.Second,
			Engine:      appCtx.Engine,
		}

		var progress *progressPrinter
		if cfg.ProgressEnabled && !asJSON {
			progress = newProgressPrinter(cmd.ErrOrStderr(), len(hosts), "audit")
			progress.Start()
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		logger := appCtx.Logger
		start := time.Now()
		reports := runner.RunAudits(ctx, hosts, collector, func(r fleet.HostReport) {
			if r.Status == fleet.StatusError {
				logger.Warnw("host audit failed", "host", r.Host, "error", r.Error)
			}
			if progress != nil {
				progress.Increment(r.Status == fleet.StatusOK, r.DurationMs/1000)
			}
		})
		if progress != nil {
			progress.Stop()
		}

		summary := fleet.Summarize(reports)
		logger.Infow("fleet audit finished",
			"hosts", summary.Hosts,
			"ok", summary.OK,
			"errors", summary.Errors,
			"duration", time.Since(start).String(),
		)

		if asJSON {
			if err := writeJSONOutput(cmd.OutOrStdout(), struct {
				Reports []fleet.HostReport `json:"reports"`
				Summary fleet.Summary      `json:"summary"`
			}{reports, summary}); err != nil {
				return err
			}
		} else {
			printFleet(cmd.OutOrStdout(), reports, summary, appCtx.Engine.Policy().BaseScore)
		}

		if minScore > 0 {
			if below := fleet.BelowThreshold(reports, minScore); len(below) > 0 {
				names := make([]string, len(below))
				for i, r := range below {
					names[i] = r.Host
				}
				return &ScoreThresholdError{Hosts: names, MinScore: minScore}
			}
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().String("snapshots", "", "Directory of per-host snapshots (<dir>/<host>/listening.txt, facts.yaml)")
	auditCmd.Flags().StringSlice("host", nil, "Audit only these hosts (repeatable)")
	auditCmd.Flags().IntVar(&cliConfig.Audit.Concurrency, "concurrency", cliConfig.Audit.Concurrency, "Maximum hosts audited in parallel")
	auditCmd.Flags().IntVar(&cliConfig.Audit.RateLimit, "rate-limit", cliConfig.Audit.RateLimit, "Host audits started per second (0 = unlimited)")
	auditCmd.Flags().IntVar(&cliConfig.Audit.TimeoutSecs, "timeout", cliConfig.Audit.TimeoutSecs, "Per-host collection timeout in seconds")
	auditCmd.Flags().BoolVar(&cliConfig.Audit.ProgressEnabled, "progress", cliConfig.Audit.ProgressEnabled, "Show progress while auditing")
	auditCmd.Flags().Bool("json", false, "Print reports and summary as JSON")
	auditCmd.Flags().Int("min-score", 0, "Exit with status 2 when any host scores below this value (0 = disabled)")
}
