package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/formulalab/formula-gateway/internal/bootstrap"
)

func newCheckCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify that the configured model backends serve the expected models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			models, err := bootstrap.LoadModels(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "recognizer\t%s\tok\n", models.Recognizer.ModelID())
			if models.Solver != nil {
				fmt.Fprintf(w, "solver\t%s\tok\n", models.Solver.ModelID())
			} else {
				fmt.Fprintf(w, "solver\t-\tdisabled\n")
			}
			return nil
		},
	}
}
