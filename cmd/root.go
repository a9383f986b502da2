package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string
var logger *zap.SugaredLogger

var rootCmd = &cobra.Command{
	Use:           "posture",
	Short:         "Score host security posture from listening sockets and hardening facts",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// rootPersistentPreRunE is assigned in init() to avoid an initialization cycle
// (applyConfigDefaults refers to rootCmd).
func rootPersistentPreRunE(cmd *cobra.Command, args []string) error {
	// init config
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".posture")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	applyConfigDefaults(cmd)

	// init logger
	if logger == nil {
		l, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l.Sugar()
	}

	engine, err := buildEngine(cliConfig)
	if err != nil {
		return err
	}

	logger.Debugw("configuration loaded",
		"config_file", viper.ConfigFileUsed(),
		"policy_file", cliConfig.Scoring.PolicyFile,
		"exempt_localhost_only", engine.Policy().ExemptLocalhostOnly,
	)

	storeAppContext(cmd, &AppContext{Logger: logger, Config: cliConfig, Engine: engine})
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorError(err.Error()))
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentPreRunE = rootPersistentPreRunE

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.posture.yaml)")
	rootCmd.PersistentFlags().StringVar(&cliConfig.Scoring.PolicyFile, "policy", "", "YAML scoring policy overriding the defaults")
	rootCmd.PersistentFlags().BoolVar(&cliConfig.Scoring.ExemptLocalhostOnly, "exempt-localhost", false, "do not penalise ports bound only to loopback")

	// add subcommands
	rootCmd.AddCommand(bindingsCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
