package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"iocdash/internal/bootstrap"
	"iocdash/internal/config"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// app carries state shared by every subcommand once the root command has
// loaded configuration.
type app struct {
	configFile string
	outputJSON bool
	noColor    bool

	cfg    *config.Config
	logger *zap.SugaredLogger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "iocdash",
		Short: "Extract and search Indicators of Compromise in AsciiDoc reports",
		Long: `iocdash parses AsciiDoc IOC reports into structured indicators, keeps
snapshots of each parse in a local database and searches them through a
full-text index.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.noColor {
				color.NoColor = true
			}
			cfg, logger, err := bootstrap.Setup(a.configFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "Config file path (default: ./iocdash.yaml)")
	root.PersistentFlags().BoolVar(&a.outputJSON, "json", false, "Output in JSON format")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(newParseCmd(a))
	root.AddCommand(newIndexCmd(a))
	root.AddCommand(newSearchCmd(a))
	root.AddCommand(newCountCmd(a))

	return root
}

// writeJSON prints v indented.
func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
