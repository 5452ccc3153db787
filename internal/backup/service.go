// Package backup runs the backup pipeline: produce a consistent logical
// export, compress it on the fly into a per-run working directory, upload
// the artifact to object storage, then apply the local retention policy.
// Stages run strictly in order; the first failure is terminal.
package backup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oppidan-dev/pg-backup-restore/internal/config"
	"github.com/oppidan-dev/pg-backup-restore/internal/naming"
	"github.com/oppidan-dev/pg-backup-restore/internal/pipeline"
	"github.com/oppidan-dev/pg-backup-restore/internal/postgres"
	"github.com/oppidan-dev/pg-backup-restore/internal/provider"
	"github.com/oppidan-dev/pg-backup-restore/internal/stream"
)

// Test seams — overridden in unit tests.
var (
	dumpFn  = postgres.Dump
	timeNow = time.Now
)

// Result describes a completed backup run.
type Result struct {
	LocalPath string
	RemoteKey string
	RemoteURI string
	Size      int64
	Timestamp time.Time
}

// Run executes one backup pipeline invocation. The artifact lives in a
// per-run directory under cfg.BackupDir; the retention policy is applied to
// exactly that directory whether the run succeeds or fails.
func Run(ctx context.Context, cfg config.Config, p provider.Provider) (Result, error) {
	var res Result
	m := pipeline.New()

	ts := timeNow().UTC()
	art := naming.New(cfg.DB.Database, ts)
	runDir := filepath.Join(cfg.BackupDir, ts.Format(naming.TimestampLayout))

	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return res, m.Fail(pipeline.StageExport, err)
	}

	succeeded := false
	defer func() {
		// Cleanup never overrides the pipeline outcome; a failed removal is
		// only logged.
		if err := cfg.RetentionPolicy().Apply(runDir, succeeded); err != nil {
			log.Warn().
				Err(err).
				Str("action", "backup_cleanup").
				Str("dir", runDir).
				Msg("retention cleanup failed")
		}
	}()

	local := filepath.Join(runDir, art.Filename())
	if err := exportCompressed(ctx, cfg, local, m); err != nil {
		return res, err
	}

	st, err := os.Stat(local)
	if err != nil {
		return res, m.Fail(pipeline.StageCompress, err)
	}

	key := art.Key(cfg.Storage.PathPrefix)
	upCtx, cancel := context.WithTimeout(ctx, cfg.TransferTimeout)
	defer cancel()
	// On upload failure we return before any success-path cleanup: with the
	// default keep-on-failure policy the artifact stays available for retry.
	if err := p.Upload(upCtx, local, key); err != nil {
		return res, m.Fail(pipeline.StageUpload, err)
	}
	m.Advance(pipeline.StateUploaded)

	res = Result{
		LocalPath: local,
		RemoteKey: key,
		RemoteURI: naming.URI(cfg.Storage.Bucket, key),
		Size:      st.Size(),
		Timestamp: ts,
	}

	succeeded = true
	m.Advance(pipeline.StateCleaned)
	return res, nil
}

// exportCompressed streams the dump through the gzip transform straight into
// the local artifact. The uncompressed export is never buffered whole: the
// producer feeds a pipe the compressor drains chunk by chunk.
func exportCompressed(ctx context.Context, cfg config.Config, local string, m *pipeline.Machine) error {
	out, err := os.Create(local)
	if err != nil {
		return m.Fail(pipeline.StageCompress, err)
	}

	dumpCtx, cancel := context.WithTimeout(ctx, cfg.DumpTimeout)
	defer cancel()

	pr, pw := io.Pipe()
	dumpErr := make(chan error, 1)
	go func() {
		err := dumpFn(dumpCtx, cfg.DB, pw)
		_ = pw.CloseWithError(err)
		dumpErr <- err
	}()

	_, packErr := stream.Pack(out, pr)
	_ = pr.Close()
	closeErr := out.Close()

	// A producer failure wins over the downstream error it caused: a dump
	// that exited non-zero aborts the run even if bytes were written.
	if err := <-dumpErr; err != nil {
		return m.Fail(pipeline.StageExport, err)
	}
	if packErr != nil {
		return m.Fail(pipeline.StageCompress, packErr)
	}
	if closeErr != nil {
		return m.Fail(pipeline.StageCompress, closeErr)
	}

	m.Advance(pipeline.StateExported)
	m.Advance(pipeline.StateCompressed)
	return nil
}
