package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/logflow/rawgate/pkg/errors"
	"github.com/logflow/rawgate/pkg/model"
	"github.com/logflow/rawgate/pkg/pipeline"
)

func newTestServer(train TrainFunc, predict PredictFunc) *Server {
	if train == nil {
		train = func(context.Context, string) (*model.TrainResult, error) {
			return &model.TrainResult{Report: &pipeline.Report{RunID: "run-1"}, Models: []string{"Majority0"}}, nil
		}
	}
	if predict == nil {
		predict = func(_ context.Context, dir string) (string, error) {
			return "Prediction_Output_File/Predictions.csv", nil
		}
	}
	return New(train, predict, nil)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(nil, nil)

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestServer_TrainJSON(t *testing.T) {
	var gotDir string
	s := newTestServer(func(_ context.Context, dir string) (*model.TrainResult, error) {
		gotDir = dir
		return &model.TrainResult{Report: &pipeline.Report{RunID: "run-7"}, Models: []string{"Majority0"}}, nil
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/train", strings.NewReader(`{"filepath":"Training_Batch_Files"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "Training successfull!!", resp.Message)
	assert.Equal(t, "run-7", resp.RunID)
	assert.Equal(t, []string{"Majority0"}, resp.Models)
	assert.Equal(t, "Training_Batch_Files", gotDir)
}

func TestServer_PredictForm(t *testing.T) {
	var gotDir string
	s := newTestServer(nil, func(_ context.Context, dir string) (string, error) {
		gotDir = dir
		return "out/Predictions.csv", nil
	})

	form := url.Values{"filepath": {"Prediction_Batch_files"}}
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "Prediction File created at out/Predictions.csv!!!", resp.Message)
	assert.Equal(t, "out/Predictions.csv", resp.Path)
	assert.Equal(t, "Prediction_Batch_files", gotDir)
}

func TestServer_MissingFilepath(t *testing.T) {
	s := newTestServer(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w).Message, "filepath is required")
}

func TestServer_RejectsTraversal(t *testing.T) {
	called := false
	s := newTestServer(func(context.Context, string) (*model.TrainResult, error) {
		called = true
		return &model.TrainResult{}, nil
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/train", strings.NewReader(`{"filepath":"../../etc"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w).Message, "path traversal not allowed")
	assert.False(t, called)
}

func TestServer_FlowErrors(t *testing.T) {
	s := newTestServer(func(context.Context, string) (*model.TrainResult, error) {
		return nil, gerrors.FileNotFound("schema_training.json")
	}, func(context.Context, string) (string, error) {
		return "", errors.New("disk full")
	})

	req := httptest.NewRequest(http.MethodPost, "/train", strings.NewReader(`{"filepath":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(gerrors.CodeFileNotFound), decode(t, w).Code)

	req = httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"filepath":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Error Occurred! disk full", decode(t, w).Message)
}

func TestServer_OneFlowAtATime(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := newTestServer(func(context.Context, string) (*model.TrainResult, error) {
		close(started)
		<-release
		return &model.TrainResult{}, nil
	}, nil)

	done := make(chan int)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/train", strings.NewReader(`{"filepath":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		s.ServeHTTP(w, req)
		done <- w.Code
	}()
	<-started

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"filepath":"y"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(release)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(nil, nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/train", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s := newTestServer(nil, nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/train", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
