package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/oppidan-dev/pg-backup-restore/internal/backup"
	"github.com/oppidan-dev/pg-backup-restore/internal/config"
	"github.com/oppidan-dev/pg-backup-restore/internal/exitcode"
	"github.com/oppidan-dev/pg-backup-restore/internal/logx"
	"github.com/oppidan-dev/pg-backup-restore/internal/provider"
	"github.com/oppidan-dev/pg-backup-restore/internal/restore"
	"github.com/oppidan-dev/pg-backup-restore/internal/version"

	_ "github.com/oppidan-dev/pg-backup-restore/internal/provider/azure"
	_ "github.com/oppidan-dev/pg-backup-restore/internal/provider/s3"
)

// Test seams — overridden in unit tests. Keep signatures in sync with packages.
var (
	loadConfig  func() (config.Config, error)                                                  = config.Load
	newProvider func(name string, cfg any) (provider.Provider, error)                          = provider.New
	backupRun   func(context.Context, config.Config, provider.Provider) (backup.Result, error) = backup.Run
	restoreRun  func(context.Context, config.Config, provider.Provider, restore.Options) error = restore.Run
	exit        func(int)                                                                      = os.Exit
)

const usage = `
Usage:
  operator backup
  operator restore <s3://bucket/[prefix/]name.sql.gz>
  operator version | --version | -v
  operator help    | --help    | -h

Notes:
  - Backup takes no arguments; everything comes from env vars (or a .env file):
      PGHOST, PGPORT, PGUSER, PGDATABASE, PGPASSWORD (or PGPASSFILE),
      S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY, S3_REGION, S3_ACCOUNT_ID,
      S3_BUCKET, and optionally S3_PATH_PREFIX / S3_ENDPOINT.
  - Provider is selected with BACKUP_PROVIDER (default: s3).
  - Exit codes are distinct per failure cause so schedulers can tell a
    missing credential from a failed transfer without reading logs.
`

// main wires CLI -> config -> provider -> backup/restore.
func main() {
	_ = godotenv.Load() // best-effort
	logx.InitFromEnv()

	args := os.Args[1:]
	if len(args) < 1 {
		fmt.Print(usage)
		exit(exitcode.Usage)
	}
	action := strings.ToLower(args[0])

	if action == "version" || action == "--version" || action == "-v" {
		fmt.Printf("pg-backup-restore %s\n", version.Info())
		exit(exitcode.OK)
	}
	if action == "help" || action == "--help" || action == "-h" {
		fmt.Print(usage)
		exit(exitcode.OK)
	}

	// Argument shape is checked before config, provider or network work:
	// a usage error must cause no side effect at all.
	switch action {
	case "backup":
		if len(args) != 1 {
			fmt.Print(usage)
			exit(exitcode.Usage)
		}
	case "restore":
		if len(args) != 2 {
			fmt.Print(usage)
			exit(exitcode.Usage)
		}
	default:
		fmt.Print(usage)
		exit(exitcode.Usage)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Error().Err(err).Str("action", "config").Msg("precondition check failed")
		exit(exitcode.For(err))
	}

	p, err := newProvider(cfg.Provider, cfg)
	if err != nil {
		log.Error().Err(err).Str("provider", cfg.Provider).Msg("provider init error")
		exit(exitcode.Failure)
	}

	ctx := withSignals(context.Background())

	switch action {
	case "backup":
		start := time.Now()
		res, err := backupRun(ctx, cfg, p)
		if err != nil {
			log.Error().Err(err).Str("action", "backup").Msg("backup failed")
			exit(exitcode.For(err))
		}
		log.Info().
			Str("action", "backup").
			Str("provider", cfg.Provider).
			Str("database", cfg.DB.Database).
			Str("remote", res.RemoteURI).
			Int64("size_bytes", res.Size).
			Dur("elapsed_ms", time.Since(start)).
			Msg("backup OK")

	case "restore":
		remote := args[1]
		start := time.Now()
		err := restoreRun(ctx, cfg, p, restore.Options{
			Remote:  remote,
			Cleanup: cfg.RestoreCleanup,
		})
		if err != nil {
			log.Error().Err(err).Str("action", "restore").Str("remote", remote).Msg("restore failed")
			exit(exitcode.For(err))
		}
		log.Info().
			Str("action", "restore").
			Str("provider", cfg.Provider).
			Str("database", cfg.DB.Database).
			Str("remote", remote).
			Dur("elapsed_ms", time.Since(start)).
			Msg("restore OK")
	}
}

func withSignals(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		cancel()
	}()
	return ctx
}
