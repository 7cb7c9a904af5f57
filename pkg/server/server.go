// Package server exposes training and prediction over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/semaphore"

	gerrors "github.com/logflow/rawgate/pkg/errors"
	"github.com/logflow/rawgate/pkg/model"
	"github.com/logflow/rawgate/pkg/validation"
)

// TrainFunc trains on the batch files in batchDir.
type TrainFunc func(ctx context.Context, batchDir string) (*model.TrainResult, error)

// PredictFunc predicts for the batch files in batchDir and returns the
// predictions file path.
type PredictFunc func(ctx context.Context, batchDir string) (string, error)

// Config for the HTTP server.
type Config struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns the listen address and timeouts used when unset.
func DefaultConfig() Config {
	return Config{
		Addr:            ":5001",
		ReadTimeout:     30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Server handles HTTP requests. One flow runs at a time; a request arriving
// while another flow runs gets 409.
type Server struct {
	router  chi.Router
	train   TrainFunc
	predict PredictFunc
	sem     *semaphore.Weighted
	log     *slog.Logger
}

// New creates a Server.
func New(train TrainFunc, predict PredictFunc, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		train:   train,
		predict: predict,
		sem:     semaphore.NewWeighted(1),
		log:     log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.logRequests)
	r.Use(cors)

	r.Get("/healthz", s.handleHealth)
	r.Post("/train", s.handleTrain)
	r.Post("/predict", s.handlePredict)
	s.router = r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, cfg Config) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: cfg.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", slog.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Response is the body of /train and /predict.
type Response struct {
	Message string   `json:"message"`
	Path    string   `json:"path,omitempty"`
	RunID   string   `json:"run_id,omitempty"`
	Models  []string `json:"models,omitempty"`
	Code    string   `json:"code,omitempty"`
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	s.runFlow(w, r, func(ctx context.Context, dir string) (Response, error) {
		res, err := s.train(ctx, dir)
		if err != nil {
			return Response{}, err
		}
		resp := Response{Message: "Training successfull!!", Models: res.Models}
		if res.Report != nil {
			resp.RunID = res.Report.RunID
		}
		return resp, nil
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	s.runFlow(w, r, func(ctx context.Context, dir string) (Response, error) {
		path, err := s.predict(ctx, dir)
		if err != nil {
			return Response{}, err
		}
		return Response{Message: fmt.Sprintf("Prediction File created at %s!!!", path), Path: path}, nil
	})
}

func (s *Server) runFlow(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (Response, error)) {
	dir, err := filepathParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "Error Occurred! " + err.Error()})
		return
	}

	if !s.sem.TryAcquire(1) {
		writeJSON(w, http.StatusConflict, Response{Message: "Error Occurred! another run is in progress", Code: string(gerrors.CodeRunLocked)})
		return
	}
	defer s.sem.Release(1)

	resp, err := fn(r.Context(), dir)
	if err != nil {
		s.log.Error("flow failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, statusFor(err), Response{Message: "Error Occurred! " + err.Error(), Code: string(gerrors.GetCode(err))})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// filepathParam reads "filepath" from a JSON body or a form field.
func filepathParam(r *http.Request) (string, error) {
	var path string
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body struct {
			Filepath string `json:"filepath"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("invalid JSON body: %w", err)
		}
		path = body.Filepath
	} else {
		path = r.FormValue("filepath")
	}
	return validation.ValidateBatchPath(path)
}

func statusFor(err error) int {
	switch gerrors.GetCode(err) {
	case gerrors.CodeFileNotFound, gerrors.CodeConfig:
		return http.StatusBadRequest
	case gerrors.CodeRunLocked:
		return http.StatusConflict
	case gerrors.CodeContextCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
