package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/logflow/rawgate/pkg/audit"
	gerrors "github.com/logflow/rawgate/pkg/errors"
	"github.com/logflow/rawgate/pkg/store"
	"github.com/logflow/rawgate/pkg/writer"
)

// Variant selects the preset a run starts from. Both variants run the same
// sequence; they differ in paths, the main audit stream and the schema.
type Variant string

const (
	Training   Variant = "training"
	Prediction Variant = "prediction"
)

// MainStream returns the audit stream the run's top-level events go to.
func (v Variant) MainStream() string {
	if v == Prediction {
		return "Prediction_Log"
	}
	return "Training_Main_Log"
}

// Title returns the capitalized variant name.
func (v Variant) Title() string {
	if v == Prediction {
		return "Prediction"
	}
	return "Training"
}

// ParseVariant parses "training" or "prediction".
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(s)) {
	case Training:
		return Training, nil
	case Prediction:
		return Prediction, nil
	}
	return "", gerrors.Newf(gerrors.CodeConfig, "unknown variant %q", s)
}

// ExportFileName is the snapshot file written into the export directory.
const ExportFileName = "InputFile.csv"

// Config holds everything one run needs besides its collaborators.
type Config struct {
	Variant Variant `yaml:"-"`

	SchemaPath     string `yaml:"schema_path"`
	BatchDir       string `yaml:"batch_dir"`
	StagingRoot    string `yaml:"staging_root"`
	ArchiveRoot    string `yaml:"archive_root"`
	ExportDir      string `yaml:"export_dir"`
	LogDir         string `yaml:"log_dir"`
	FilenamePrefix string `yaml:"filename_prefix"`

	Store     store.Config `yaml:"store"`
	TableMode string       `yaml:"table_mode"` // extend | recreate

	// Parquet writes <export_dir>/InputFile.parquet next to the CSV.
	Parquet     bool   `yaml:"parquet"`
	Compression string `yaml:"compression"`

	// UploadExport copies the export to the archive mirror, when one is set.
	UploadExport bool `yaml:"upload_export"`

	LockStaleAfter time.Duration `yaml:"lock_stale_after"`

	Streams audit.Streams `yaml:"streams"`
}

// DefaultConfig returns the preset for v with paths relative to the
// working directory.
func DefaultConfig(v Variant) Config {
	cfg := Config{
		Variant:        v,
		TableMode:      store.ModeExtend.String(),
		Compression:    writer.CompressionSnappy.String(),
		LockStaleAfter: 6 * time.Hour,
		Streams:        audit.DefaultStreams(v.MainStream()),
	}

	switch v {
	case Prediction:
		cfg.SchemaPath = "schema_prediction.json"
		cfg.BatchDir = "Prediction_Batch_files"
		cfg.StagingRoot = "Prediction_Raw_Files_Validated"
		cfg.ArchiveRoot = "PredictionArchivedBadData"
		cfg.ExportDir = "Prediction_FileFromDB"
		cfg.LogDir = "Prediction_Logs"
		cfg.Store = store.Config{Dialect: store.DialectSQLite, Path: filepath.Join("Prediction_Database", "Prediction.db"), Table: store.DefaultTable}
		// Each prediction batch replaces the previous one.
		cfg.TableMode = store.ModeRecreate.String()
	default:
		cfg.Variant = Training
		cfg.SchemaPath = "schema_training.json"
		cfg.BatchDir = "Training_Batch_Files"
		cfg.StagingRoot = "Training_Raw_files_validated"
		cfg.ArchiveRoot = "TrainingArchiveBadData"
		cfg.ExportDir = "Training_FileFromDB"
		cfg.LogDir = "Training_Logs"
		cfg.Store = store.Config{Dialect: store.DialectSQLite, Path: filepath.Join("Training_Database", "Training.db"), Table: store.DefaultTable}
	}
	return cfg
}

// ExportPath returns the CSV snapshot path.
func (c Config) ExportPath() string {
	return filepath.Join(c.ExportDir, ExportFileName)
}

// ParquetPath returns the Parquet snapshot path.
func (c Config) ParquetPath() string {
	return filepath.Join(c.ExportDir, strings.TrimSuffix(ExportFileName, ".csv")+".parquet")
}

// Validate checks that the required paths are set and the mode parses.
func (c Config) Validate() error {
	required := []struct{ key, val string }{
		{"schema_path", c.SchemaPath},
		{"batch_dir", c.BatchDir},
		{"staging_root", c.StagingRoot},
		{"archive_root", c.ArchiveRoot},
		{"export_dir", c.ExportDir},
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			return gerrors.Newf(gerrors.CodeConfig, "%s is required", r.key).WithContext("variant", string(c.Variant))
		}
	}
	if _, err := store.ParseMode(c.TableMode); err != nil {
		return gerrors.Wrap(err, gerrors.CodeConfig, "table_mode")
	}
	if c.Streams.Main == "" {
		return gerrors.New(gerrors.CodeConfig, "streams are not configured")
	}
	return nil
}

func (c Config) writerConfig() writer.Config {
	wc := writer.DefaultConfig()
	if c.Compression != "" {
		wc.Compression = writer.ParseCompression(c.Compression)
	}
	return wc
}

func (c Config) String() string {
	return fmt.Sprintf("%s run of %s", c.Variant, c.BatchDir)
}
