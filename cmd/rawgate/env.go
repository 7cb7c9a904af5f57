package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/logflow/rawgate/pkg/audit"
	"github.com/logflow/rawgate/pkg/checkpoint"
	gerrors "github.com/logflow/rawgate/pkg/errors"
	"github.com/logflow/rawgate/pkg/model"
	"github.com/logflow/rawgate/pkg/pipeline"
	"github.com/logflow/rawgate/pkg/quarantine"
	"github.com/logflow/rawgate/pkg/runlock"
	"github.com/logflow/rawgate/pkg/storage/s3"
	"github.com/logflow/rawgate/pkg/tui"
)

// runEnv holds the collaborators of one pipeline run and closes them.
type runEnv struct {
	cfg      pipeline.Config
	sink     audit.Sink
	deps     pipeline.Deps
	closers  []func() error
	progress bool
}

// runOptions are per-command overrides of the variant config.
type runOptions struct {
	batchDir   string
	schemaPath string
	recreate   bool
	parquet    bool
	noProgress bool
}

// openRun builds the collaborators for variant v.
func openRun(ctx context.Context, v pipeline.Variant, opts runOptions) (*runEnv, error) {
	pc := cfg.Variant(v)
	if opts.batchDir != "" {
		pc.BatchDir = opts.batchDir
	}
	if opts.schemaPath != "" {
		pc.SchemaPath = opts.schemaPath
	}
	if opts.recreate {
		pc.TableMode = "recreate"
	}
	if opts.parquet {
		pc.Parquet = true
	}

	env := &runEnv{cfg: pc, progress: !opts.noProgress}

	fileSink, err := audit.NewFileSink(pc.LogDir)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.CodeConfig, "open audit logs").WithContext("dir", pc.LogDir)
	}
	env.closers = append(env.closers, fileSink.Close)
	env.sink = audit.Tee{fileSink, audit.SlogSink{Logger: logger}}

	checkpoints, err := openCheckpoints(ctx, env)
	if err != nil {
		env.Close()
		return nil, err
	}

	locker := openLocker(env, v)

	var mirror quarantine.Mirror
	if cfg.ArchiveMirror.Enabled {
		client, err := s3.NewClient(ctx, cfg.ArchiveMirror.S3)
		if err != nil {
			env.Close()
			return nil, gerrors.Wrap(err, gerrors.CodeConfig, "open archive mirror")
		}
		mirror = client
	}

	env.deps = pipeline.Deps{
		Sink:        env.sink,
		Logger:      logger.With(slog.String("variant", string(v))),
		Checkpoints: checkpoints,
		Locker:      locker,
		Mirror:      mirror,
	}
	if env.progress {
		env.deps.Progress = tui.LoadProgress(os.Stderr, -1)
	}
	return env, nil
}

// openCheckpoints returns the file backend, mirrored to Redis when an
// address is configured.
func openCheckpoints(ctx context.Context, env *runEnv) (checkpoint.Backend, error) {
	files, err := checkpoint.NewFileBackend(cfg.Checkpoint.Dir)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.CodeConfig, "open checkpoint directory")
	}
	if cfg.Checkpoint.Retention > 0 {
		if n, err := files.Cleanup(cfg.Checkpoint.Retention); err != nil {
			logger.Warn("checkpoint cleanup failed", slog.String("error", err.Error()))
		} else if n > 0 {
			logger.Debug("removed old checkpoints", slog.Int("count", n))
		}
	}
	if cfg.Checkpoint.Redis.Address == "" {
		return files, nil
	}

	rb, err := checkpoint.NewRedisBackend(ctx, cfg.Checkpoint.Redis)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.CodeConfig, "connect checkpoint redis")
	}
	env.closers = append(env.closers, rb.Close)
	return checkpoint.NewMultiBackend(files, rb), nil
}

// openLocker returns a Redis lock when configured. Otherwise the pipeline
// falls back to a lock file under the staging root.
func openLocker(env *runEnv, v pipeline.Variant) runlock.Locker {
	if cfg.Lock.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr})
	env.closers = append(env.closers, client.Close)
	return runlock.NewRedis(client, fmt.Sprintf("%s:%s", cfg.Lock.Key, v), cfg.Lock.TTL)
}

// Pipeline returns the pipeline for this environment.
func (e *runEnv) Pipeline() *pipeline.Pipeline {
	return pipeline.New(e.cfg, e.deps)
}

// Close closes everything openRun opened, last first.
func (e *runEnv) Close() error {
	var errs gerrors.MultiError
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs.Add(err)
		}
	}
	return errs.Combined()
}

// trainer builds a training flow over env.
func trainer(env *runEnv) *model.Trainer {
	return &model.Trainer{
		Runner:   env.Pipeline(),
		Selector: model.MajoritySelector{},
		Store:    model.NewStore(cfg.Models.Dir),
		Label:    cfg.Models.Label,
		Sink:     env.sink,
		Logger:   env.deps.Logger,
	}
}

// predictor builds a prediction flow over env.
func predictor(env *runEnv) *model.Predictor {
	return &model.Predictor{
		Runner:    env.Pipeline(),
		Selector:  model.MajoritySelector{},
		Store:     model.NewStore(cfg.Models.Dir),
		OutputDir: cfg.Models.OutputDir,
		Label:     cfg.Models.Label,
		Sink:      env.sink,
		Logger:    env.deps.Logger,
	}
}
