// Package cli implements formulactl, a command-line client that runs the
// gateway's recognition and solve pipelines directly against model backends.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/formulalab/formula-gateway/internal/infrastructure/config"
	"github.com/formulalab/formula-gateway/internal/infrastructure/logger"
)

// Version is set at build time
var Version = "dev"

// app carries what every subcommand needs after PersistentPreRunE
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCommand builds the formulactl command tree
func NewRootCommand() *cobra.Command {
	a := &app{}
	var cfgFile string

	root := &cobra.Command{
		Use:   "formulactl",
		Short: "Recognize and solve mathematical formulas with the gateway's models",
		Long: `formulactl runs the formula gateway pipeline from the command line.

Examples:
  # Recognize formula images
  formulactl recognize eq1.png eq2.jpg

  # Solve a formula
  formulactl solve 'x^2 - 4 = 0'

  # Verify that the configured model backends are ready
  formulactl check`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cfgFile == "" {
				cfgFile = os.Getenv(config.EnvPrefix + "_CONFIG")
			}
			flags := cmd.Root().PersistentFlags()
			cfg, err := config.LoadFile(cfgFile,
				config.WithFlag("log.level", flags.Lookup("log-level")),
				config.WithFlag("log.format", flags.Lookup("log-format")))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log, err := logger.NewLoggerTo(&cfg.Log, zapcore.AddSync(cmd.ErrOrStderr()))
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}

			a.cfg = cfg
			a.logger = log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (e.g. gateway.yaml)")
	root.PersistentFlags().String("log-level", "", "override log.level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "override log.format (console, json)")

	root.AddCommand(
		newRecognizeCommand(a),
		newSolveCommand(a),
		newCheckCommand(a),
	)

	return root
}

// Execute runs formulactl and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
