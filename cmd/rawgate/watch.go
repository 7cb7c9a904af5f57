package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	gerrors "github.com/logflow/rawgate/pkg/errors"
	"github.com/logflow/rawgate/pkg/pipeline"
	"github.com/logflow/rawgate/pkg/watch"
)

var (
	watchVariant  string
	watchDebounce time.Duration
	watchFlow     bool

	scheduleTraining   string
	schedulePrediction string
	scheduleFlow       bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [batch-dir]",
	Short: "Run the pipeline whenever files land in the batch directory",
	Long: `Watch a batch directory and run the pipeline after changes settle.

Changes arriving during a run schedule one more run once it finishes.

Examples:
  rawgate watch
  rawgate watch --variant prediction --flow Prediction_Batch_files
  rawgate watch --debounce 10s`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipelines on cron schedules",
	Long: `Run the training and prediction pipelines on the cron schedules from
the config's schedule section or the flags. A run still in progress when its
next tick arrives skips that tick.

Examples:
  rawgate schedule --training "0 2 * * *"
  rawgate schedule --prediction "*/15 * * * *" --flow`,
	RunE: runSchedule,
}

func init() {
	watchCmd.Flags().StringVar(&watchVariant, "variant", string(pipeline.Training), "Variant preset (training, prediction)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a run starts")
	watchCmd.Flags().BoolVar(&watchFlow, "flow", false, "Run the training or prediction flow instead of ingestion only")

	scheduleCmd.Flags().StringVar(&scheduleTraining, "training", "", "Cron expression for training runs (overrides config)")
	scheduleCmd.Flags().StringVar(&schedulePrediction, "prediction", "", "Cron expression for prediction runs (overrides config)")
	scheduleCmd.Flags().BoolVar(&scheduleFlow, "flow", false, "Run the training or prediction flow instead of ingestion only")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(scheduleCmd)
}

// unattended runs one pipeline for v without a progress bar. With flow it
// runs the training or prediction flow on top.
func unattended(ctx context.Context, v pipeline.Variant, batchDir string, flow bool) error {
	env, err := openRun(ctx, v, runOptions{batchDir: batchDir, noProgress: true})
	if err != nil {
		return err
	}
	defer env.Close()

	log := logger.With(slog.String("variant", string(v)))
	switch {
	case flow && v == pipeline.Prediction:
		path, err := predictor(env).Predict(ctx)
		if err != nil {
			return err
		}
		log.Info("predictions written", slog.String("path", path))
	case flow:
		res, err := trainer(env).Train(ctx)
		if err != nil {
			return err
		}
		log.Info("training run complete", slog.String("run", res.Report.RunID), slog.Any("models", res.Models))
	default:
		rep, err := env.Pipeline().Run(ctx)
		if err != nil {
			return err
		}
		log.Info("run complete",
			slog.String("run", rep.RunID),
			slog.Int("good", len(rep.GoodFiles)),
			slog.Int("bad", len(rep.BadFiles)),
			slog.Int64("rows", rep.RowsLoaded),
		)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	v, err := pipeline.ParseVariant(watchVariant)
	if err != nil {
		return err
	}
	dir := cfg.Variant(v).BatchDir
	if len(args) == 1 {
		dir = args[0]
	}

	w, err := watch.NewWatcher(dir, watchDebounce, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	w.OnBatch = func(ctx context.Context) error {
		return unattended(ctx, v, dir, watchFlow)
	}
	w.OnError = func(err error) {
		if gerrors.IsCode(err, gerrors.CodeRunLocked) {
			logger.Warn("run skipped, another run holds the lock", slog.String("dir", dir))
			return
		}
		logger.Error("run failed", slog.String("dir", dir), slog.String("error", err.Error()))
	}

	logger.Info("watching batch directory", slog.String("dir", w.Dir()), slog.String("variant", string(v)))
	if err := w.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	specs := map[pipeline.Variant]string{
		pipeline.Training:   cfg.Schedule.Training,
		pipeline.Prediction: cfg.Schedule.Prediction,
	}
	if scheduleTraining != "" {
		specs[pipeline.Training] = scheduleTraining
	}
	if schedulePrediction != "" {
		specs[pipeline.Prediction] = schedulePrediction
	}

	ctx := cmd.Context()
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	scheduled := 0
	for _, v := range []pipeline.Variant{pipeline.Training, pipeline.Prediction} {
		spec := specs[v]
		if spec == "" {
			continue
		}
		v := v
		if _, err := c.AddFunc(spec, func() {
			if err := unattended(ctx, v, "", scheduleFlow); err != nil {
				logger.Warn("scheduled run failed", slog.String("variant", string(v)), slog.String("error", err.Error()))
			}
		}); err != nil {
			return gerrors.Wrapf(err, gerrors.CodeConfig, "invalid %s schedule %q", v, spec)
		}
		logger.Info("scheduled pipeline", slog.String("variant", string(v)), slog.String("schedule", spec))
		scheduled++
	}
	if scheduled == 0 {
		return gerrors.New(gerrors.CodeConfig, "no schedule configured; set schedule.training or schedule.prediction")
	}

	c.Start()
	logger.Info("scheduler started")
	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("scheduler stopped")
	return nil
}
