// Package main is Cinder's daemon entry point: it loads configuration,
// opens the pepper vault and SQLite database, wires the blob store (
// filesystem or S3 per config), builds the orchestrator.Service and the
// janitor, then starts the HTTP server. Grounded on the teacher's
// cmd/gone/main.go run() decomposition (haukened-gone): small single-
// purpose helpers composed by run(), slog for startup/fatal logging,
// os.Exit with distinct codes per failure stage.
package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cinderfile/cinder/internal/blobstore/filesystem"
	"github.com/cinderfile/cinder/internal/blobstore/s3"
	"github.com/cinderfile/cinder/internal/config"
	"github.com/cinderfile/cinder/internal/cryptoimpl"
	"github.com/cinderfile/cinder/internal/domain"
	"github.com/cinderfile/cinder/internal/filerepo"
	"github.com/cinderfile/cinder/internal/gate"
	"github.com/cinderfile/cinder/internal/httpx"
	"github.com/cinderfile/cinder/internal/ids"
	"github.com/cinderfile/cinder/internal/janitor"
	"github.com/cinderfile/cinder/internal/limittracker"
	"github.com/cinderfile/cinder/internal/metrics"
	"github.com/cinderfile/cinder/internal/orchestrator"
	"github.com/cinderfile/cinder/internal/pepper"
	"github.com/cinderfile/cinder/internal/sessioncache"
)

// filesystemOrS3 wraps whichever concrete blob backend was configured,
// exposing the single method set both orchestrator.FileStorePort and
// janitor.BlobLister need. Exactly one of fs/s3 is non-nil.
type filesystemOrS3 struct {
	fs *filesystem.Store
	s3 *s3.Store
}

func (b *filesystemOrS3) Write(ctx context.Context, linkID ids.LinkID, r io.Reader) (domain.PathReference, error) {
	if b.fs != nil {
		return b.fs.Write(ctx, linkID, r)
	}
	return b.s3.Write(ctx, linkID, r)
}

func (b *filesystemOrS3) Open(ctx context.Context, ref domain.PathReference) (io.ReadCloser, error) {
	if b.fs != nil {
		return b.fs.Open(ctx, ref)
	}
	return b.s3.Open(ctx, ref)
}

func (b *filesystemOrS3) Delete(ctx context.Context, ref domain.PathReference) error {
	if b.fs != nil {
		return b.fs.Delete(ctx, ref)
	}
	return b.s3.Delete(ctx, ref)
}

func (b *filesystemOrS3) List(ctx context.Context) ([]domain.PathReference, error) {
	if b.fs != nil {
		return b.fs.List(ctx)
	}
	return b.s3.List(ctx)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(2)
	}
	return cfg
}

func ensureDataDir(dir string) {
	if st, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if mkErr := os.MkdirAll(dir, 0o700); mkErr != nil {
				slog.Error("create data directory", "dir", dir, "err", mkErr)
				os.Exit(3)
			}
			return
		}
		slog.Error("stat data directory", "dir", dir, "err", err)
		os.Exit(3)
	} else if !st.IsDir() {
		slog.Error("data path not a directory", "dir", dir)
		os.Exit(3)
	}
}

func openDatabase(cfg *config.Config) *sql.DB {
	db, err := sql.Open("sqlite3", cfg.SQLiteDSN())
	if err != nil {
		slog.Error("open sqlite driver", "err", err)
		os.Exit(4)
	}
	return db
}

func openPepperVault(cfg *config.Config) *pepper.Vault {
	vault, err := pepper.Open(cfg.PepperHex, cfg.ActivePepperVersion)
	if err != nil {
		slog.Error("open pepper vault", "err", err)
		os.Exit(5)
	}
	return vault
}

// newBlobStore constructs the configured backend and returns it inside the
// filesystemOrS3 wrapper, which forwards to that adapter and satisfies both
// orchestrator.FileStorePort and janitor.BlobLister, so callers can use
// either interface against the value returned here.
func newBlobStore(ctx context.Context, cfg *config.Config) *filesystemOrS3 {
	switch cfg.BlobBackend {
	case "s3":
		store, err := s3.New(ctx, s3.Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			KeyPrefix:       cfg.S3KeyPrefix,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
			ForcePathStyle:  cfg.S3ForcePathStyle,
		})
		if err != nil {
			slog.Error("init s3 blob store", "err", err)
			os.Exit(6)
		}
		return &filesystemOrS3{s3: store}
	default:
		if err := os.MkdirAll(cfg.BlobDir, 0o700); err != nil {
			slog.Error("create blob directory", "dir", cfg.BlobDir, "err", err)
			os.Exit(6)
		}
		store, err := filesystem.New(cfg.BlobDir)
		if err != nil {
			slog.Error("init filesystem blob store", "err", err)
			os.Exit(6)
		}
		return &filesystemOrS3{fs: store}
	}
}

func run() error {
	cfg := loadConfig()
	ensureDataDir(cfg.DataDir)

	db := openDatabase(cfg)
	defer db.Close()

	vault := openPepperVault(cfg)
	defer vault.Teardown()

	gates := gate.NewRegistry()
	sessions := sessioncache.New(func() time.Time { return time.Now().UTC() })

	limits, err := limittracker.New(db)
	if err != nil {
		slog.Error("init limit tracker", "err", err)
		os.Exit(4)
	}

	files, err := filerepo.New(db, gates)
	if err != nil {
		slog.Error("init file repository", "err", err)
		os.Exit(4)
	}

	ctx := context.Background()
	blobs := newBlobStore(ctx, cfg)

	rec := metrics.New()
	svc := &orchestrator.Service{
		Clock:       realClock{},
		FileStore:   blobs,
		Sessions:    sessions,
		Limits:      limits,
		Files:       files,
		Crypto:      cryptoimpl.New(),
		Pepper:      vault,
		Metrics:     rec,
		BurnPolicy:  burnPolicyFromConfig(cfg),
		SessionTTL:  time.Duration(cfg.SessionTimeoutSeconds) * time.Second,
		ClockSkew:   time.Duration(cfg.ClockSkewSeconds) * time.Second,
		AckTimeout:  time.Duration(cfg.AckTimeoutSeconds) * time.Second,
		RequireHMAC: cfg.RequireHMAC,
	}

	readyz := func() error { return db.PingContext(ctx) }
	handler := httpx.New(svc, gates, int64(cfg.MaxBlobBytes), readyz)

	jan := janitor.New(svc, files, blobs, janitor.Config{
		Interval: time.Duration(cfg.JanitorIntervalSeconds) * time.Second,
		Logger:   slog.Default(),
		Observer: rec,
	})
	jan.Start(ctx)
	defer jan.Stop()

	if cfg.NATSURL != "" {
		trigger, err := janitor.NewNATSTrigger(ctx, jan, janitor.NATSTriggerConfig{
			URL:     cfg.NATSURL,
			Subject: cfg.NATSSubject,
			Logger:  slog.Default(),
		})
		if err != nil {
			slog.Error("nats janitor trigger", "err", err)
		} else {
			defer trigger.Close()
			slog.Info("nats janitor trigger subscribed", "subject", cfg.NATSSubject)
		}
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: rec.Handler(), ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, IdleTimeout: 30 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "err", err)
			}
		}()
		slog.Info("metrics server started", "addr", cfg.MetricsAddr)
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	slog.Info("starting server", "addr", cfg.Addr, "pid", os.Getpid())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(context.Background())
	}
	return nil
}

func burnPolicyFromConfig(cfg *config.Config) orchestrator.BurnPolicy {
	if cfg.BurnPolicy == "immediate" {
		return orchestrator.ImmediateBurn
	}
	return orchestrator.SplitBurn
}

func main() {
	if err := run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
