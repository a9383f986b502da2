package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	consts "github.com/khanhnv2901/seca-posture/internal/shared/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// executeCommand runs the root command with args against a clean configuration
// and returns what it wrote to stdout and stderr.
func executeCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	originalNoColor := color.NoColor
	color.NoColor = true
	originalCtx := globalAppContext
	originalLogger := logger
	logger = zap.NewNop().Sugar()
	t.Cleanup(func() {
		color.NoColor = originalNoColor
		globalAppContext = originalCtx
		logger = originalLogger
		viper.Reset()
		resetCommandFlags(rootCmd)
		*cliConfig = *newCLIConfig()
		cfgFile = ""
	})

	viper.Reset()
	resetCommandFlags(rootCmd)
	*cliConfig = *newCLIConfig()
	cfgFile = ""

	var stdout, stderr bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	_, err := rootCmd.ExecuteC()
	return stdout.String(), stderr.String(), err
}

// resetCommandFlags returns every flag in the tree to its default so that
// Changed state does not leak between test runs.
func resetCommandFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, child := range c.Commands() {
		resetCommandFlags(child)
	}
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), consts.DefaultDirPerm); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), consts.DefaultFilePerm); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
