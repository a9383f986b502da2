package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/khanhnv2901/seca-posture/internal/posture"
	"github.com/spf13/cobra"
)

var bindingsCmd = &cobra.Command{
	Use:   "bindings [file|-]",
	Short: "Extract open and localhost-only ports from a listening-socket table",
	Long: `Parse the output of "ss -tlnH", "netstat -tln" or a plain list of
address:port lines. Reads standard input when no file is given or the file is "-".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		source := "-"
		if len(args) == 1 {
			source = args[0]
		}
		bindings, err := readBindings(cmd.InOrStdin(), source)
		if err != nil {
			return err
		}

		if asJSON {
			return writeJSONOutput(cmd.OutOrStdout(), bindings)
		}
		printBindings(cmd.OutOrStdout(), bindings)
		return nil
	},
}

// readBindings parses the socket table at path, or stdin when path is "-".
func readBindings(stdin io.Reader, path string) (posture.Bindings, error) {
	if path == "-" {
		bindings, err := posture.ParseBindingsReader(stdin)
		if err != nil {
			return posture.Bindings{}, fmt.Errorf("failed to read bindings from stdin: %w", err)
		}
		return bindings, nil
	}

	f, err := os.Open(path) // #nosec G304 -- operator-supplied input file.
	if err != nil {
		return posture.Bindings{}, fmt.Errorf("failed to open bindings file: %w", err)
	}
	defer f.Close()

	bindings, err := posture.ParseBindingsReader(f)
	if err != nil {
		return posture.Bindings{}, fmt.Errorf("failed to read bindings file %s: %w", path, err)
	}
	return bindings, nil
}

func init() {
	bindingsCmd.Flags().Bool("json", false, "Print bindings as JSON")
}
