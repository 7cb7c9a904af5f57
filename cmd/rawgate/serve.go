package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/logflow/rawgate/pkg/model"
	"github.com/logflow/rawgate/pkg/pipeline"
	"github.com/logflow/rawgate/pkg/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the train and predict endpoints",
	Long: `Start an HTTP server exposing the training and prediction flows.

Endpoints:
  POST /train     {"filepath": "<batch dir>"} or a filepath form field
  POST /predict   {"filepath": "<batch dir>"} or a filepath form field
  GET  /healthz

One flow runs at a time; a request arriving during a run gets 409.

Examples:
  rawgate serve
  rawgate serve --addr :8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, :5001)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	sc := cfg.Server
	if serveAddr != "" {
		sc.Addr = serveAddr
	}

	srv := server.New(serveTrain, servePredict, logger)
	return srv.ListenAndServe(cmd.Context(), sc)
}

func serveTrain(ctx context.Context, batchDir string) (*model.TrainResult, error) {
	env, err := openRun(ctx, pipeline.Training, runOptions{batchDir: batchDir, noProgress: true})
	if err != nil {
		return nil, err
	}
	defer env.Close()
	return trainer(env).Train(ctx)
}

func servePredict(ctx context.Context, batchDir string) (string, error) {
	env, err := openRun(ctx, pipeline.Prediction, runOptions{batchDir: batchDir, noProgress: true})
	if err != nil {
		return "", err
	}
	defer env.Close()
	return predictor(env).Predict(ctx)
}
