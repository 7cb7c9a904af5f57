package model

import (
	"context"
	"sort"
	"time"

	gerrors "github.com/logflow/rawgate/pkg/errors"
)

// Model is a trained model for one cluster. Params is opaque to rawgate
// and belongs to the Selector that produced it.
type Model struct {
	Name      string            `json:"name"`
	Cluster   int               `json:"cluster"`
	Features  []string          `json:"features"`
	Params    map[string]string `json:"params,omitempty"`
	TrainedAt time.Time         `json:"trained_at"`
}

// ID is the directory and file stem the model is stored under.
func (m *Model) ID() string {
	return ModelID(m.Name, m.Cluster)
}

// Models looks up stored models.
type Models interface {
	FindForCluster(cluster int) (*Model, error)
}

// Selector trains and applies per-cluster models.
type Selector interface {
	// Train returns one model per cluster it chooses to form.
	Train(ctx context.Context, features *Dataset, labels []string) ([]*Model, error)
	// Predict returns one prediction per feature row.
	Predict(ctx context.Context, features *Dataset, models Models) ([]string, error)
}

// MajoritySelector puts every row in cluster 0 and predicts the most
// frequent training label. Ties go to the smallest label.
type MajoritySelector struct{}

// MajorityModelName names the models MajoritySelector trains.
const MajorityModelName = "Majority"

// Train implements Selector.
func (MajoritySelector) Train(ctx context.Context, features *Dataset, labels []string) ([]*Model, error) {
	if len(labels) == 0 {
		return nil, gerrors.New(gerrors.CodeModel, "no training rows")
	}

	counts := make(map[string]int)
	for _, l := range labels {
		counts[l]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}

	return []*Model{{
		Name:      MajorityModelName,
		Cluster:   0,
		Features:  append([]string(nil), features.Columns...),
		Params:    map[string]string{"label": best},
		TrainedAt: time.Now().UTC(),
	}}, nil
}

// Predict implements Selector.
func (MajoritySelector) Predict(ctx context.Context, features *Dataset, models Models) ([]string, error) {
	m, err := models.FindForCluster(0)
	if err != nil {
		return nil, err
	}
	label, ok := m.Params["label"]
	if !ok {
		return nil, gerrors.New(gerrors.CodeModel, "model has no label").WithContext("model", m.ID())
	}

	out := make([]string, features.Len())
	for i := range out {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, gerrors.ContextCanceled("predict")
		}
		out[i] = label
	}
	return out, nil
}
