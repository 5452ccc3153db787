// Package exitcode maps pipeline outcomes to distinct process exit statuses.
// Schedulers (cron, orchestration) diagnose failures from the code alone:
// each missing precondition and each pipeline stage has its own small
// integer.
package exitcode

import (
	"errors"

	"github.com/oppidan-dev/pg-backup-restore/internal/config"
	"github.com/oppidan-dev/pg-backup-restore/internal/pipeline"
)

const (
	OK                   = 0
	Usage                = 1
	MissingDatabaseAuth  = 2
	MissingStorageKeys   = 3
	MissingStorageRegion = 4
	MissingStorageBucket = 5
	ExportFailed         = 6
	UploadFailed         = 7
	DownloadFailed       = 8
	ApplyFailed          = 9
	Failure              = 10
)

// For resolves an error to its exit status. Unrecognized errors fall back to
// the generic Failure code.
func For(err error) int {
	if err == nil {
		return OK
	}

	var mf *config.MissingFieldError
	if errors.As(err, &mf) {
		switch mf.Check {
		case config.CheckDatabaseAuth:
			return MissingDatabaseAuth
		case config.CheckStorageKeys:
			return MissingStorageKeys
		case config.CheckStorageRegion:
			return MissingStorageRegion
		case config.CheckStorageBucket:
			return MissingStorageBucket
		}
	}

	var se *pipeline.Error
	if errors.As(err, &se) {
		switch se.Stage {
		case pipeline.StageExport, pipeline.StageCompress:
			return ExportFailed
		case pipeline.StageUpload:
			return UploadFailed
		case pipeline.StageDownload:
			return DownloadFailed
		case pipeline.StageApply:
			return ApplyFailed
		}
	}

	return Failure
}
