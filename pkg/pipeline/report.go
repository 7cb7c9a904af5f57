package pipeline

import (
	"time"

	gerrors "github.com/logflow/rawgate/pkg/errors"
)

// Rejection is a file the run moved to Bad staging.
type Rejection struct {
	File   string       `json:"file"`
	Stage  string       `json:"stage"` // filename | column_count | null_column | load
	Code   gerrors.Code `json:"code"`
	Reason string       `json:"reason"`
}

// Step is the timing of one step of the sequence.
type Step struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Report summarizes a run.
type Report struct {
	RunID   string  `json:"run_id"`
	Variant Variant `json:"variant"`

	// GoodFiles were loaded; BadFiles were archived.
	GoodFiles  []string    `json:"good_files"`
	BadFiles   []string    `json:"bad_files"`
	Rejections []Rejection `json:"rejections,omitempty"`

	RowsLoaded      int64 `json:"rows_loaded"`
	CellsNormalized int   `json:"cells_normalized"`

	ArchiveFolder string   `json:"archive_folder,omitempty"`
	ExportPath    string   `json:"export_path,omitempty"`
	ParquetPath   string   `json:"parquet_path,omitempty"`
	Uploaded      []string `json:"uploaded,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Steps     []Step        `json:"steps"`
}

// RejectionFor returns the first rejection recorded for file.
func (r *Report) RejectionFor(file string) (Rejection, bool) {
	for _, rej := range r.Rejections {
		if rej.File == file {
			return rej, true
		}
	}
	return Rejection{}, false
}
