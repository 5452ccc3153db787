// Package restore runs the restore pipeline: fetch a stored artifact,
// decompress it on the fly and replay the export against the target
// database. Local cleanup of the download is a separate, optional,
// idempotent step that defaults to keeping the file.
package restore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
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
var applyFn = postgres.Apply

// Options controls the restore workflow.
type Options struct {
	// Remote is the fully qualified artifact address
	// (e.g. "s3://backups-bucket/daily/orders_01-06-2025_02:00.sql.gz").
	// It is treated as opaque; only the filename is extracted for the
	// local path.
	Remote string
	// Cleanup removes the downloaded artifact after a completed run.
	// The default is to keep it.
	Cleanup bool
}

// Run downloads the artifact into the restore working directory, then feeds
// the decompressed stream to the database in order. Any apply error leaves
// the target in tainted state; nothing is rolled forward or retried here.
func Run(ctx context.Context, cfg config.Config, p provider.Provider, opt Options) error {
	m := pipeline.New()

	remote := strings.TrimSpace(opt.Remote)
	if remote == "" {
		return fmt.Errorf("restore: remote address is empty")
	}

	if err := os.MkdirAll(cfg.RestoreDir, 0o755); err != nil {
		return m.Fail(pipeline.StageDownload, err)
	}
	local := filepath.Join(cfg.RestoreDir, naming.FilenameOf(remote))

	dlStart := time.Now()
	dlCtx, cancel := context.WithTimeout(ctx, cfg.TransferTimeout)
	defer cancel()
	if err := p.Download(dlCtx, remote, local); err != nil {
		return m.Fail(pipeline.StageDownload, err)
	}
	m.Advance(pipeline.StateDownloaded)
	log.Info().
		Str("action", "download").
		Str("provider", p.Name()).
		Str("remote", remote).
		Str("local", local).
		Dur("elapsed_ms", time.Since(dlStart)).
		Msg("download OK")

	if err := applyDecompressed(ctx, cfg, local, m); err != nil {
		return err
	}

	// Distinct idempotent cleanup step, independent of the pipeline result.
	if opt.Cleanup {
		if err := os.Remove(local); err != nil && !os.IsNotExist(err) {
			log.Warn().
				Err(err).
				Str("action", "restore_cleanup").
				Str("local", local).
				Msg("cleanup of downloaded artifact failed")
		}
	}
	m.Advance(pipeline.StateCleaned)
	return nil
}

// applyDecompressed streams the artifact through the gzip transform into the
// applier, chunk by chunk. Decompression errors count as apply failures:
// either way the stream did not replay cleanly.
func applyDecompressed(ctx context.Context, cfg config.Config, local string, m *pipeline.Machine) error {
	f, err := os.Open(local)
	if err != nil {
		return m.Fail(pipeline.StageApply, err)
	}
	defer func() { _ = f.Close() }()

	applyCtx, cancel := context.WithTimeout(ctx, cfg.ApplyTimeout)
	defer cancel()

	pr, pw := io.Pipe()
	unpackErr := make(chan error, 1)
	go func() {
		_, err := stream.Unpack(pw, f)
		_ = pw.CloseWithError(err)
		unpackErr <- err
	}()

	applyErr := applyFn(applyCtx, cfg.DB, pr)
	_ = pr.Close()

	if applyErr != nil {
		<-unpackErr
		return m.Fail(pipeline.StageApply, applyErr)
	}
	if err := <-unpackErr; err != nil {
		return m.Fail(pipeline.StageApply, err)
	}

	m.Advance(pipeline.StateApplied)
	return nil
}
