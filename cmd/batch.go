package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ptel-geocoder/internal/intake"
	"github.com/sells-group/ptel-geocoder/internal/waterfall"
)

// batchReport is the JSON document written by the batch command.
type batchReport struct {
	RunID      string             `json:"run_id"`
	Input      string             `json:"input"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Total      int                `json:"total"`
	Resolved   int                `json:"resolved"`
	Results    []waterfall.Result `json:"results"`
}

func newBatchReport(runID, input string, started, finished time.Time, results []waterfall.Result) batchReport {
	r := batchReport{
		RunID:      runID,
		Input:      input,
		StartedAt:  started,
		FinishedAt: finished,
		Total:      len(results),
		Results:    results,
	}
	for _, res := range results {
		if res.Found() {
			r.Resolved++
		}
	}
	return r
}

var (
	batchInput   string
	batchOutput  string
	batchPauseMs int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Resolve an inventory file (CSV or XLSX) through the cascade",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queries, err := intake.ReadFile(ctx, batchInput)
		if err != nil {
			return err
		}
		if len(queries) == 0 {
			return eris.Errorf("batch: %s has no rows", batchInput)
		}

		env, err := initEnv(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		cascade := env.Cascade
		if cmd.Flags().Changed("pause-ms") {
			cascade = waterfall.New(env.Levels, env.Sources,
				waterfall.WithRecorder(env.Metrics),
				waterfall.WithPause(time.Duration(batchPauseMs)*time.Millisecond),
			)
		}

		runID := uuid.NewString()
		log := zap.L().With(zap.String("run_id", runID))
		log.Info("batch: starting", zap.String("input", batchInput), zap.Int("items", len(queries)))

		var bar *progressbar.ProgressBar
		if isatty.IsTerminal(os.Stderr.Fd()) {
			bar = progressbar.NewOptions(len(queries),
				progressbar.OptionSetDescription("geocoding"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		progress := func(done, total int, r waterfall.Result) {
			if bar != nil {
				_ = bar.Set(done)
				return
			}
			log.Debug("batch: item done",
				zap.Int("done", done),
				zap.Int("total", total),
				zap.Bool("found", r.Found()),
			)
		}

		started := time.Now().UTC()
		results := cascade.ResolveBatch(ctx, queries, progress)
		if bar != nil {
			_ = bar.Finish()
		}
		report := newBatchReport(runID, batchInput, started, time.Now().UTC(), results)
		log.Info("batch: finished", zap.Int("total", report.Total), zap.Int("resolved", report.Resolved))

		var out io.Writer = cmd.OutOrStdout()
		if batchOutput != "" {
			f, err := os.Create(batchOutput)
			if err != nil {
				return eris.Wrapf(err, "batch: create %s", batchOutput)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}
		return writeJSON(out, report)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "inventory file (.csv, .tsv, .txt or .xlsx)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "write the JSON report here instead of stdout")
	batchCmd.Flags().IntVar(&batchPauseMs, "pause-ms", 0, "pause between items (overrides cascade.pause_ms)")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}
