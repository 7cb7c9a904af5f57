package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/logflow/rawgate/pkg/pipeline"
	"github.com/logflow/rawgate/pkg/tui"
)

// Run flags shared by validate, train and predict.
var (
	runFlags    runOptions
	variantFlag string
)

var validateCmd = &cobra.Command{
	Use:   "validate [batch-dir]",
	Short: "Validate, load and export one batch directory",
	Long: `Run the validation and ingestion sequence on a batch directory.

Files with a bad name, the wrong column count or a column with no values are
archived. The rest are loaded into the destination table, which is then
exported to <export_dir>/InputFile.csv.

Examples:
  rawgate validate
  rawgate validate Training_Batch_Files
  rawgate validate --variant prediction --recreate incoming/`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

var trainCmd = &cobra.Command{
	Use:   "train [batch-dir]",
	Short: "Ingest a training batch and train models",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTrain,
}

var predictCmd = &cobra.Command{
	Use:   "predict [batch-dir]",
	Short: "Ingest a prediction batch and write Predictions.csv",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPredict,
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runFlags.schemaPath, "schema", "", "Schema document (overrides config)")
	cmd.Flags().BoolVar(&runFlags.recreate, "recreate", false, "Drop the destination table before loading")
	cmd.Flags().BoolVar(&runFlags.parquet, "parquet", false, "Also export the table as Parquet")
	cmd.Flags().BoolVar(&runFlags.noProgress, "no-progress", false, "Disable the progress bar")
}

func init() {
	validateCmd.Flags().StringVar(&variantFlag, "variant", string(pipeline.Training), "Variant preset (training, prediction)")
	for _, cmd := range []*cobra.Command{validateCmd, trainCmd, predictCmd} {
		addRunFlags(cmd)
		rootCmd.AddCommand(cmd)
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	v, err := pipeline.ParseVariant(variantFlag)
	if err != nil {
		return err
	}
	opts := runFlags
	if len(args) == 1 {
		opts.batchDir = args[0]
	}

	env, err := openRun(cmd.Context(), v, opts)
	if err != nil {
		return err
	}
	defer env.Close()

	rep, err := env.Pipeline().Run(cmd.Context())
	if err != nil {
		return err
	}
	tui.PrintRunReport(cmd.OutOrStdout(), rep)
	return nil
}

func runTrain(cmd *cobra.Command, args []string) error {
	opts := runFlags
	if len(args) == 1 {
		opts.batchDir = args[0]
	}

	env, err := openRun(cmd.Context(), pipeline.Training, opts)
	if err != nil {
		return err
	}
	defer env.Close()

	res, err := trainer(env).Train(cmd.Context())
	if err != nil {
		return err
	}
	tui.PrintRunReport(cmd.OutOrStdout(), res.Report)
	for _, id := range res.Models {
		fmt.Fprintf(cmd.OutOrStdout(), "  saved model %s\n", id)
	}
	return nil
}

func runPredict(cmd *cobra.Command, args []string) error {
	opts := runFlags
	if len(args) == 1 {
		opts.batchDir = args[0]
	}

	env, err := openRun(cmd.Context(), pipeline.Prediction, opts)
	if err != nil {
		return err
	}
	defer env.Close()

	path, err := predictor(env).Predict(cmd.Context())
	if err != nil {
		return err
	}
	logger.Info("predictions written", slog.String("path", path))
	fmt.Fprintf(cmd.OutOrStdout(), "Prediction File created at %s\n", path)
	return nil
}
