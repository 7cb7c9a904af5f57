// Package pipeline runs the raw data validation and ingestion sequence for
// one batch directory.
//
// A run loads the schema, stages every batch file as Good or Bad by name,
// rejects Good files with the wrong width or a wholly-null column,
// normalizes missing values, loads the survivors into the destination
// table one transaction per file, archives the rejects and exports the
// table. Per-file failures end up in Bad staging and the archive; only
// schema, staging and store failures abort the run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/logflow/rawgate/pkg/audit"
	"github.com/logflow/rawgate/pkg/checkpoint"
	gerrors "github.com/logflow/rawgate/pkg/errors"
	"github.com/logflow/rawgate/pkg/naming"
	"github.com/logflow/rawgate/pkg/quarantine"
	"github.com/logflow/rawgate/pkg/runlock"
	"github.com/logflow/rawgate/pkg/schema"
	"github.com/logflow/rawgate/pkg/store"
	"github.com/logflow/rawgate/pkg/telemetry"
	"github.com/logflow/rawgate/pkg/transform"
	"github.com/logflow/rawgate/pkg/validate"
)

// Deps are the collaborators a run records to and coordinates through.
// Zero fields fall back to no-op or file-based defaults.
type Deps struct {
	// Sink receives audit records. The caller opens and closes it.
	Sink   audit.Sink
	Logger *slog.Logger

	Checkpoints checkpoint.Backend
	// Locker defaults to a lock file under the staging root.
	Locker runlock.Locker
	// Mirror receives archived rejects and, with UploadExport, the export.
	Mirror quarantine.Mirror

	// Progress is called after each Good file is loaded or rejected.
	Progress func(file string, rows int)

	Now func() time.Time
}

// Pipeline runs the sequence for one Config.
type Pipeline struct {
	cfg  Config
	deps Deps
}

// New creates a Pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if deps.Sink == nil {
		deps.Sink = audit.Discard
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Checkpoints == nil {
		deps.Checkpoints = checkpoint.Discard
	}
	if deps.Locker == nil {
		deps.Locker = runlock.NewFile(cfg.StagingRoot, cfg.LockStaleAfter)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{cfg: cfg, deps: deps}
}

// Config returns the run configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// run is the state of one Run call.
type run struct {
	*Pipeline
	cp      *checkpoint.Checkpoint
	report  *Report
	streams audit.Streams
	log     *slog.Logger
}

// Run executes the sequence. The returned Report is never nil and
// describes how far the run got, also when an error is returned.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	id := uuid.NewString()
	r := &run{
		Pipeline: p,
		cp:       checkpoint.New(id, string(p.cfg.Variant), p.cfg.BatchDir),
		report:   &Report{RunID: id, Variant: p.cfg.Variant, StartedAt: p.deps.Now()},
		streams:  p.cfg.Streams,
		log:      p.deps.Logger.With(slog.String("run_id", id), slog.String("variant", string(p.cfg.Variant))),
	}

	ctx, span := telemetry.Start(ctx, "pipeline.run",
		attribute.String("run.id", id),
		attribute.String("run.variant", string(p.cfg.Variant)),
		attribute.String("run.batch_dir", p.cfg.BatchDir),
	)

	err := r.execute(ctx)
	r.report.Duration = p.deps.Now().Sub(r.report.StartedAt)

	if err != nil {
		r.cp.Fail(err)
		r.record(r.streams.Main, fmt.Sprintf("Error Occurred:: %v", err))
		if gerrors.IsFatal(err) {
			r.log.Error("run failed", slog.String("code", string(gerrors.GetCode(err))), slog.String("error", err.Error()))
		} else {
			r.log.Warn("run stopped", slog.String("code", string(gerrors.GetCode(err))), slog.String("error", err.Error()))
		}
	} else {
		r.cp.SetPhase(checkpoint.PhaseComplete)
		r.log.Info("run complete",
			slog.Int("good_files", len(r.report.GoodFiles)),
			slog.Int("bad_files", len(r.report.BadFiles)),
			slog.Int64("rows", r.report.RowsLoaded),
			slog.Duration("duration", r.report.Duration),
		)
	}
	r.saveCheckpoint(context.WithoutCancel(ctx))

	span.SetAttributes(attribute.Int64("run.rows_loaded", r.report.RowsLoaded))
	telemetry.End(span, err)
	return r.report, err
}

func (r *run) execute(ctx context.Context) (err error) {
	if err := r.cfg.Validate(); err != nil {
		return err
	}
	mode, _ := store.ParseMode(r.cfg.TableMode)

	r.saveCheckpoint(ctx)

	lease, err := r.deps.Locker.Acquire(ctx, r.report.RunID)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
			r.log.Warn("release run lock", slog.String("error", rerr.Error()))
		}
	}()

	var spec *schema.Spec
	if err := r.step(ctx, "load_schema", func(ctx context.Context) error {
		spec, err = r.loadSchema()
		return err
	}); err != nil {
		return err
	}
	pattern := naming.ForSpec(r.cfg.FilenamePrefix, spec)

	qopts := []quarantine.Option{quarantine.WithAudit(r.deps.Sink, r.streams.General)}
	if r.deps.Mirror != nil {
		qopts = append(qopts, quarantine.WithMirror(r.deps.Mirror))
	}
	qs := quarantine.New(r.cfg.StagingRoot, r.cfg.ArchiveRoot, qopts...)

	r.record(r.streams.Main, "Start of Validation on files!!")

	if err := r.step(ctx, "stage", func(ctx context.Context) error {
		return r.stage(ctx, qs, pattern, spec)
	}); err != nil {
		return err
	}
	r.phase(ctx, checkpoint.PhaseStaged)

	if err := r.step(ctx, "validate", func(ctx context.Context) error {
		v := validate.New(spec, qs, r.deps.Sink, r.streams.Column, r.streams.Missing)
		res, err := v.ColumnCountPass(ctx)
		r.reject(res.Rejected, "column_count")
		if err != nil {
			return err
		}
		res, err = v.NullColumnPass(ctx)
		r.reject(res.Rejected, "null_column")
		return err
	}); err != nil {
		return err
	}
	r.record(r.streams.Main, "Raw Data Validation Complete!!")
	r.phase(ctx, checkpoint.PhaseValidated)

	r.record(r.streams.Main, "Starting Data Transformation!!")
	if err := r.step(ctx, "transform", func(ctx context.Context) error {
		st, err := transform.Normalize(ctx, qs.GoodDir(), r.deps.Sink, r.streams.Transform)
		r.report.CellsNormalized = st.Cells
		return err
	}); err != nil {
		return err
	}
	r.record(r.streams.Main, "DataTransformation Completed!!!")

	r.record(r.streams.Main, "Creating database and tables on the basis of given schema!!!")
	sopts := []store.Option{store.WithAudit(r.deps.Sink, r.streams)}
	if r.deps.Progress != nil {
		sopts = append(sopts, store.WithProgress(r.deps.Progress))
	}
	loader, err := store.Open(ctx, r.cfg.Store, sopts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := loader.Close(); cerr != nil && err == nil {
			err = gerrors.Wrap(cerr, gerrors.CodeStoreOpen, "close database")
		}
	}()

	if err := r.step(ctx, "ensure_table", func(ctx context.Context) error {
		return loader.EnsureTable(ctx, spec, mode)
	}); err != nil {
		return err
	}
	r.record(r.streams.Main, "Table creation Completed!!")
	r.phase(ctx, checkpoint.PhaseSchemaEnsured)

	r.record(r.streams.Main, "Insertion of Data into Table started!!!!")
	if err := r.step(ctx, "load", func(ctx context.Context) error {
		results, err := loader.LoadGoodFiles(ctx, qs.GoodDir(), qs)
		for _, fr := range results {
			if fr.Loaded() {
				r.report.GoodFiles = append(r.report.GoodFiles, fr.File)
				r.report.RowsLoaded += int64(fr.Rows)
				continue
			}
			r.rejected(fr.File, "load", fr.Err)
		}
		return err
	}); err != nil {
		return err
	}
	r.record(r.streams.Main, "Insertion in Table completed!!!")
	r.phase(ctx, checkpoint.PhasePopulated)

	if err := r.step(ctx, "archive", func(ctx context.Context) error {
		r.record(r.streams.Main, "Deleting Good Data Folder!!!")
		if err := qs.PurgeGood(); err != nil {
			return err
		}
		r.record(r.streams.Main, "Good_Data folder deleted!!!")

		r.record(r.streams.Main, "Moving bad files to Archive and deleting Bad_Data folder!!!")
		bad, err := qs.BadFiles()
		if err != nil {
			return gerrors.Wrap(err, gerrors.CodeArchive, "list bad staging")
		}
		r.report.BadFiles = bad

		arch, err := qs.ArchiveBad(ctx, r.deps.Now())
		r.report.ArchiveFolder = arch.Folder
		if err != nil {
			return err
		}
		r.record(r.streams.Main, "Bad files moved to archive!! Bad folder Deleted!!")
		return nil
	}); err != nil {
		return err
	}
	r.record(r.streams.Main, "Validation Operation completed!!")
	r.phase(ctx, checkpoint.PhaseArchived)

	r.record(r.streams.Main, "Extracting csv file from table")
	if err := r.step(ctx, "export", func(ctx context.Context) error {
		return r.export(ctx, loader)
	}); err != nil {
		return err
	}
	r.phase(ctx, checkpoint.PhaseExported)

	r.record(r.streams.Main, fmt.Sprintf("%s Validation complete!!", r.cfg.Variant.Title()))
	return nil
}

func (r *run) loadSchema() (*schema.Spec, error) {
	spec, err := schema.Load(r.cfg.SchemaPath)
	if err != nil {
		r.record(r.streams.Schema, fmt.Sprintf("Error while reading schema %s:: %v", r.cfg.SchemaPath, err))
		return nil, err
	}
	r.record(r.streams.Schema, spec.Summary())
	return spec, nil
}

// stage resets staging and copies each batch file by its name verdict.
func (r *run) stage(ctx context.Context, qs *quarantine.Store, pattern *naming.Pattern, spec *schema.Spec) error {
	names, err := batchFiles(r.cfg.BatchDir)
	if err != nil {
		return err
	}
	if err := qs.Reset(); err != nil {
		return err
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return gerrors.ContextCanceled("stage batch files")
		}
		verdict, reason := pattern.Explain(name, spec)
		if _, err := qs.Admit(filepath.Join(r.cfg.BatchDir, name), verdict); err != nil {
			return err
		}
		r.record(r.streams.Name, naming.Describe(name, verdict, reason))
		if verdict == naming.Invalid {
			r.rejected(name, "filename", gerrors.New(gerrors.CodeFilenameInvalid, string(reason)))
		}
	}
	return nil
}

func (r *run) export(ctx context.Context, loader *store.Loader) error {
	path := r.cfg.ExportPath()
	if _, err := loader.ExportCSV(ctx, path); err != nil {
		return err
	}
	r.report.ExportPath = path
	r.cp.ExportPath = path

	uploads := []string{path}
	if r.cfg.Parquet {
		pq := r.cfg.ParquetPath()
		if err := loader.ExportParquet(ctx, pq, r.cfg.writerConfig()); err != nil {
			return err
		}
		r.report.ParquetPath = pq
		uploads = append(uploads, pq)
	}

	if r.cfg.UploadExport && r.deps.Mirror != nil {
		for _, local := range uploads {
			key := r.deps.Mirror.Key("exports", r.report.RunID, filepath.Base(local))
			if err := r.deps.Mirror.Upload(ctx, key, local); err != nil {
				r.record(r.streams.Export, fmt.Sprintf("Error while uploading %s: %v", filepath.Base(local), err))
				r.log.Warn("upload export", slog.String("key", key), slog.String("error", err.Error()))
				continue
			}
			r.report.Uploaded = append(r.report.Uploaded, key)
		}
	}
	return nil
}

// step runs fn inside a span and times it. Cancellation is checked before
// the step starts.
func (r *run) step(ctx context.Context, name string, fn func(context.Context) error) error {
	if ctx.Err() != nil {
		return gerrors.ContextCanceled(name)
	}
	ctx, span := telemetry.Start(ctx, "pipeline."+name)
	start := time.Now()

	err := fn(ctx)

	elapsed := time.Since(start)
	r.report.Steps = append(r.report.Steps, Step{Name: name, Duration: elapsed})
	r.log.Debug("step finished", slog.String("step", name), slog.Duration("duration", elapsed))
	telemetry.End(span, err)
	return err
}

func (r *run) reject(rs []validate.Rejection, stage string) {
	for _, rej := range rs {
		r.rejected(rej.File, stage, rej.Err)
	}
}

// rejected records a file the run contained. Errors that carry no
// rejection code are recorded and logged.
func (r *run) rejected(file, stage string, err error) {
	if !gerrors.IsRejection(err) {
		r.log.Warn("unclassified rejection", slog.String("file", file), slog.String("stage", stage), slog.String("error", err.Error()))
	}
	r.report.Rejections = append(r.report.Rejections, Rejection{
		File:   file,
		Stage:  stage,
		Code:   gerrors.GetCode(err),
		Reason: err.Error(),
	})
}

func (r *run) phase(ctx context.Context, ph checkpoint.Phase) {
	r.cp.SetPhase(ph)
	r.saveCheckpoint(ctx)
}

func (r *run) saveCheckpoint(ctx context.Context) {
	r.cp.GoodFiles = r.report.GoodFiles
	r.cp.BadFiles = r.report.BadFiles
	r.cp.RowsLoaded = r.report.RowsLoaded
	r.cp.ArchiveFolder = r.report.ArchiveFolder
	if err := r.deps.Checkpoints.Save(ctx, r.cp); err != nil {
		r.log.Warn("save checkpoint", slog.String("backend", r.deps.Checkpoints.Name()), slog.String("error", err.Error()))
	}
}

func (r *run) record(stream, msg string) {
	if stream != "" {
		r.deps.Sink.Record(stream, msg)
	}
}

// batchFiles lists the regular files of the batch directory, sorted.
func batchFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gerrors.FileNotFound(dir)
		}
		return nil, gerrors.Wrap(err, gerrors.CodeStaging, "list batch directory").WithContext("dir", dir)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
