package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// batchResult is one output row.
type batchResult struct {
	Query     string
	FinalPlan string
	Output    string
}

func newBatchCmd(c *cli) *cobra.Command {
	var input, output string
	var concurrency int
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run every query of a CSV file without human intervention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			in, err := os.Open(input)
			if err != nil {
				return err
			}
			queries, err := readQueries(in)
			in.Close()
			if err != nil {
				return fmt.Errorf("read %s: %w", input, err)
			}

			a, err := c.buildApp(ctx, appOptions{intervention: false})
			if err != nil {
				return err
			}
			defer a.Close()

			stopProgress := a.reportProgress(ctx, 5*time.Second)
			results, err := a.runBatch(ctx, queries, concurrency)
			stopProgress()
			if err != nil {
				return err
			}

			out, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := writeResults(out, results); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d results to %s\n", len(results), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "queries.csv", "CSV file with one query per row")
	cmd.Flags().StringVarP(&output, "output", "o", "results.csv", "CSV file to write results to")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 4, "sessions to run at once")
	return cmd
}

// runBatch runs the queries concurrently. A failed session still yields a row; only a
// cancelled context stops the batch.
func (a *app) runBatch(ctx context.Context, queries []string, concurrency int) ([]batchResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]batchResult, len(queries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, q := range queries {
		g.Go(func() error {
			sess, err := a.controller.Run(ctx, q)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			row := batchResult{Query: q}
			if sess != nil {
				row.FinalPlan = strings.Join(sess.CurrentPlan(), "\n")
				row.Output = sess.SolutionSummary()
			}
			if err != nil {
				a.logger.Zap().Warn("batch session failed", zap.String("query", q), zap.Error(err))
				row.Output = "Error: " + err.Error()
			}
			results[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// reportProgress logs the tracker line every interval until the returned function is called.
func (a *app) reportProgress(ctx context.Context, interval time.Duration) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.logger.Zap().Info(a.tracker.Line())
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// readQueries reads the first column of each row. A header row whose first cell is "query"
// is skipped, as are blank rows.
func readQueries(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var queries []string
	for first := true; ; first = false {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 {
			continue
		}
		q := strings.TrimSpace(rec[0])
		if q == "" || (first && strings.EqualFold(q, "query")) {
			continue
		}
		queries = append(queries, q)
	}
	return queries, nil
}

func writeResults(w io.Writer, results []batchResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"query", "final_plan", "output"}); err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write([]string{r.Query, r.FinalPlan, r.Output}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
