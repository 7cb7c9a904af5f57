package model

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/logflow/rawgate/pkg/audit"
	gerrors "github.com/logflow/rawgate/pkg/errors"
	"github.com/logflow/rawgate/pkg/parser"
	"github.com/logflow/rawgate/pkg/pipeline"
)

// PredictionsFile is the file Predictor writes into its output directory.
const PredictionsFile = "Predictions.csv"

// Runner produces the snapshot a flow reads.
type Runner interface {
	Run(ctx context.Context) (*pipeline.Report, error)
}

// Trainer runs the training pipeline and stores what the Selector trains.
type Trainer struct {
	Runner   Runner
	Selector Selector
	Store    *Store
	// Label defaults to DefaultLabel.
	Label string

	Sink   audit.Sink
	Stream string
	Logger *slog.Logger
}

// TrainResult describes a training flow.
type TrainResult struct {
	Report *pipeline.Report
	Models []string
}

// Train runs the flow: ingest, load the export, split the label, train,
// save every model.
func (t *Trainer) Train(ctx context.Context) (*TrainResult, error) {
	sink, log := flowDefaults(t.Sink, t.Logger)
	stream := t.Stream
	if stream == "" {
		stream = "ModelTrainingLog"
	}
	label := t.Label
	if label == "" {
		label = DefaultLabel
	}

	sink.Record(stream, "Start of Training")
	res, err := t.train(ctx, label, sink, stream)
	if err != nil {
		sink.Record(stream, fmt.Sprintf("Unsuccessful End of Training: %v", err))
		log.Error("training failed", slog.String("error", err.Error()))
		return res, err
	}
	sink.Record(stream, "Successful End of Training")
	log.Info("training complete", slog.Any("models", res.Models))
	return res, nil
}

func (t *Trainer) train(ctx context.Context, label string, sink audit.Sink, stream string) (*TrainResult, error) {
	res := &TrainResult{}

	rep, err := t.Runner.Run(ctx)
	res.Report = rep
	if err != nil {
		return res, err
	}

	ds, err := LoadDataset(rep.ExportPath)
	if err != nil {
		return res, err
	}
	features, labels, err := ds.SplitLabel(label)
	if err != nil {
		return res, gerrors.Wrap(err, gerrors.CodeModel, "split label")
	}

	models, err := t.Selector.Train(ctx, features, labels)
	if err != nil {
		return res, gerrors.Wrap(err, gerrors.CodeModel, "train")
	}
	for _, m := range models {
		if err := t.Store.Save(m); err != nil {
			return res, err
		}
		res.Models = append(res.Models, m.ID())
		sink.Record(stream, fmt.Sprintf("Model File %s saved", m.ID()))
	}
	return res, nil
}

// Predictor runs the prediction pipeline and writes the Selector's
// predictions for the export.
type Predictor struct {
	Runner    Runner
	Selector  Selector
	Store     *Store
	OutputDir string
	// Label is dropped from the features when the export carries it.
	Label string

	Sink   audit.Sink
	Stream string
	Logger *slog.Logger
}

// OutputPath returns where predictions are written.
func (p *Predictor) OutputPath() string {
	return filepath.Join(p.OutputDir, PredictionsFile)
}

// Predict deletes the previous predictions, runs the flow and returns the
// path of the new predictions file.
func (p *Predictor) Predict(ctx context.Context) (string, error) {
	sink, log := flowDefaults(p.Sink, p.Logger)
	stream := p.Stream
	if stream == "" {
		stream = pipeline.Prediction.MainStream()
	}

	out := p.OutputPath()
	if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
		return "", gerrors.Wrap(err, gerrors.CodeModel, "remove previous predictions").WithContext("path", out)
	}

	sink.Record(stream, "Start of Prediction")
	n, err := p.predict(ctx, out)
	if err != nil {
		sink.Record(stream, fmt.Sprintf("Error occurred while running the prediction!! Error:: %v", err))
		log.Error("prediction failed", slog.String("error", err.Error()))
		return "", err
	}
	sink.Record(stream, "End of Prediction")
	log.Info("prediction complete", slog.String("path", out), slog.Int("rows", n))
	return out, nil
}

func (p *Predictor) predict(ctx context.Context, out string) (int, error) {
	rep, err := p.Runner.Run(ctx)
	if err != nil {
		return 0, err
	}

	features, err := LoadDataset(rep.ExportPath)
	if err != nil {
		return 0, err
	}
	label := p.Label
	if label == "" {
		label = DefaultLabel
	}
	if features.Index(label) >= 0 {
		if features, _, err = features.SplitLabel(label); err != nil {
			return 0, gerrors.Wrap(err, gerrors.CodeModel, "drop label")
		}
	}

	preds, err := p.Selector.Predict(ctx, features, p.Store)
	if err != nil {
		return 0, gerrors.Wrap(err, gerrors.CodeModel, "predict")
	}
	if len(preds) != features.Len() {
		return 0, gerrors.Newf(gerrors.CodeModel, "selector returned %d predictions for %d rows", len(preds), features.Len())
	}

	t := &parser.Table{Header: []string{"Predictions"}, Rows: make([][]string, len(preds))}
	for i, v := range preds {
		t.Rows[i] = []string{v}
	}
	if err := os.MkdirAll(p.OutputDir, 0755); err != nil {
		return 0, gerrors.Wrap(err, gerrors.CodeModel, "create output directory")
	}
	if err := parser.WriteFile(out, t); err != nil {
		return 0, gerrors.Wrap(err, gerrors.CodeModel, "write predictions").WithContext("path", out)
	}
	return len(preds), nil
}

func flowDefaults(sink audit.Sink, log *slog.Logger) (audit.Sink, *slog.Logger) {
	if sink == nil {
		sink = audit.Discard
	}
	if log == nil {
		log = slog.Default()
	}
	return sink, log
}
