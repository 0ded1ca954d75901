package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/formulalab/formula-gateway/internal/bootstrap"
	"github.com/formulalab/formula-gateway/internal/usecase"
)

// RecognizeResult is one line of recognize output
type RecognizeResult struct {
	Path    string `json:"path"`
	Formula string `json:"formula,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newRecognizeCommand(a *app) *cobra.Command {
	var (
		concurrency int
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "recognize <image>...",
		Short: "Recognize formula images into LaTeX",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			recognizer, pre, err := bootstrap.LoadRecognizer(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			uc := usecase.NewFormulaUsecase(recognizer, nil, pre, nil, nil, usecase.Options{}, a.logger)

			results := recognizeAll(ctx, uc, args, concurrency, a.logger)
			if err := writeResults(cmd.OutOrStdout(), results, asJSON); err != nil {
				return err
			}

			for _, r := range results {
				if r.Error != "" {
					return fmt.Errorf("%d of %d images failed", countFailed(results), len(results))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "number of images recognized in parallel")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as a JSON array")

	return cmd
}

// recognizeAll runs one recognition per path. Results keep the input order.
func recognizeAll(ctx context.Context, uc usecase.FormulaUsecase, paths []string, concurrency int, logger *zap.Logger) []RecognizeResult {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]RecognizeResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, path := range paths {
		g.Go(func() error {
			results[i] = recognizeFile(gctx, uc, path, logger)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func recognizeFile(ctx context.Context, uc usecase.FormulaUsecase, path string, logger *zap.Logger) RecognizeResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return RecognizeResult{Path: path, Error: err.Error()}
	}

	requestID := uuid.New().String()
	out, err := uc.Recognize(ctx, &usecase.RecognizeInput{Image: data, RequestID: requestID})
	if err != nil {
		logger.Warn("Recognition failed",
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(err))
		return RecognizeResult{Path: path, Error: err.Error()}
	}
	return RecognizeResult{Path: path, Formula: out.Formula}
}

func writeResults(w io.Writer, results []RecognizeResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, r := range results {
		var err error
		if r.Error != "" {
			_, err = fmt.Fprintf(w, "%s\terror: %s\n", r.Path, r.Error)
		} else {
			_, err = fmt.Fprintf(w, "%s\t%s\n", r.Path, r.Formula)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func countFailed(results []RecognizeResult) int {
	n := 0
	for _, r := range results {
		if r.Error != "" {
			n++
		}
	}
	return n
}
