package exitcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/oppidan-dev/pg-backup-restore/internal/config"
	"github.com/oppidan-dev/pg-backup-restore/internal/pipeline"
)

func TestForNil(t *testing.T) {
	if got := For(nil); got != OK {
		t.Fatalf("nil error: got %d", got)
	}
}

func TestForMissingField(t *testing.T) {
	tests := []struct {
		check config.Check
		want  int
	}{
		{config.CheckDatabaseAuth, MissingDatabaseAuth},
		{config.CheckStorageKeys, MissingStorageKeys},
		{config.CheckStorageRegion, MissingStorageRegion},
		{config.CheckStorageBucket, MissingStorageBucket},
	}
	for _, tt := range tests {
		err := &config.MissingFieldError{Check: tt.check, Name: "X"}
		if got := For(err); got != tt.want {
			t.Errorf("check %d: got %d, want %d", tt.check, got, tt.want)
		}
	}
}

func TestForStageErrors(t *testing.T) {
	tests := []struct {
		stage pipeline.Stage
		want  int
	}{
		{pipeline.StageExport, ExportFailed},
		{pipeline.StageCompress, ExportFailed},
		{pipeline.StageUpload, UploadFailed},
		{pipeline.StageDownload, DownloadFailed},
		{pipeline.StageApply, ApplyFailed},
	}
	for _, tt := range tests {
		err := pipeline.Fail(tt.stage, errors.New("boom"))
		if got := For(err); got != tt.want {
			t.Errorf("stage %s: got %d, want %d", tt.stage, got, tt.want)
		}
	}
}

// Wrapping must not hide the typed error from the mapping.
func TestForWrappedError(t *testing.T) {
	err := fmt.Errorf("backup run: %w", pipeline.Fail(pipeline.StageUpload, errors.New("bucket gone")))
	if got := For(err); got != UploadFailed {
		t.Fatalf("wrapped stage error: got %d", got)
	}
}

func TestForUnknownError(t *testing.T) {
	if got := For(errors.New("something else")); got != Failure {
		t.Fatalf("unknown error: got %d", got)
	}
}

// The statuses must stay distinct; a scheduler distinguishes causes by code
// alone.
func TestCodesAreDistinct(t *testing.T) {
	codes := []int{OK, Usage, MissingDatabaseAuth, MissingStorageKeys,
		MissingStorageRegion, MissingStorageBucket, ExportFailed, UploadFailed,
		DownloadFailed, ApplyFailed, Failure}
	seen := map[int]bool{}
	for _, c := range codes {
		if seen[c] {
			t.Fatalf("duplicate exit code %d", c)
		}
		seen[c] = true
	}
}
