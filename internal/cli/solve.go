package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/formulalab/formula-gateway/internal/bootstrap"
	"github.com/formulalab/formula-gateway/internal/usecase"
)

func newSolveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "solve <formula>",
		Short: "Generate a solution for a formula",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			solver, err := bootstrap.LoadSolver(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			uc := usecase.NewFormulaUsecase(nil, solver, nil, nil, nil, usecase.Options{
				MaxInputChars: a.cfg.Solver.MaxInputChars,
			}, a.logger)

			out, err := uc.Solve(ctx, &usecase.SolveInput{
				Formula:   strings.Join(args, " "),
				RequestID: uuid.New().String(),
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), out.Solution)
			return err
		},
	}
}
