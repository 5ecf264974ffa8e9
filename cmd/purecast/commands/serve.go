package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/purecast-io/purecast/cmd/purecast/internal/build"
	"github.com/purecast-io/purecast/cmd/purecast/internal/config"
	"github.com/purecast-io/purecast/pkg/kv"
	"github.com/purecast-io/purecast/pkg/metrics"
	"github.com/purecast-io/purecast/pkg/recordings"
	"github.com/purecast-io/purecast/pkg/server"
	"github.com/purecast-io/purecast/pkg/storage"
	"github.com/purecast-io/purecast/pkg/stream"
	"github.com/purecast-io/purecast/pkg/transport/webrtc"
)

// logTailLines bounds the in-memory log ring served on /debug/logs.
const logTailLines = 500

var serveConfigFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the purecast server",
	Long: `Run the purecast API server and audio pipeline.

Without -f the server starts with built-in defaults: local recording
storage and an in-process badger metadata store.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigFile, "config", "f", "", "server config file (YAML)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	cfg, err := loadServerConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logTail := server.NewLogTail(logTailLines)
	logger := newLogger(cfg.LogLevel, logTail)
	slog.SetDefault(logger)

	slog.Info("starting purecast",
		"version", build.Version,
		"listen_addr", cfg.ListenAddr,
		"model_rate", cfg.Audio.ModelSampleRate,
		"storage", cfg.Storage.Backend,
		"metadata", cfg.Metadata.Backend)

	shutdownMetrics, err := metrics.InitProvider(ctx, metrics.ProviderConfig{
		ServiceVersion: build.Version,
	})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			slog.Error("metrics shutdown failed", "error", err)
		}
	}()

	files, err := buildFileStore(ctx, cfg)
	if err != nil {
		return err
	}
	meta, err := buildMetadataStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := meta.Close(); err != nil {
			slog.Error("metadata store close failed", "error", err)
		}
	}()

	registry := stream.NewRegistry()
	srv := server.New(server.Options{
		Registry:   registry,
		Recordings: recordings.NewStore(meta, files),
		Transport:  server.WebRTCTransport{Config: webrtc.Config{ICEServers: cfg.WebRTC.ICEServers}},
		Pipeline: server.Pipeline{
			ModelRate:     cfg.Audio.ModelSampleRate,
			ChunkFrames:   cfg.Audio.ChunkFrames(),
			OverlapFrames: cfg.Audio.OverlapFrames(),
			FrameSamples:  cfg.Audio.FrameSamples(),
			Enhancer:      cfg.Audio.Enhancer,
			Denoise:       cfg.Audio.Denoise,
			ReadyTimeout:  cfg.Session.ReadyTimeout.Duration(),
			FlushTimeout:  cfg.Session.FlushTimeout.Duration(),
			IngestQueue:   cfg.Session.IngestQueue,
			ListenerQueue: cfg.Session.ListenerQueue,
		},
		LogTail: logTail,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("api listening", "addr", cfg.ListenAddr)
		return server.Serve(gctx, &http.Server{Addr: cfg.ListenAddr, Handler: srv.Handler()})
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			mux := http.NewServeMux()
			mux.Handle("GET /metrics", promhttp.Handler())
			slog.Info("metrics listening", "addr", cfg.MetricsAddr)
			return server.Serve(gctx, &http.Server{Addr: cfg.MetricsAddr, Handler: mux})
		})
	}

	err = g.Wait()

	// Stop live sessions so in-flight recordings get flushed. The bound
	// covers the configured flush plus scheduling slack.
	closeCtx, cancel := context.WithTimeout(context.Background(),
		cfg.Session.FlushTimeout.Duration()+5*time.Second)
	defer cancel()
	if closeErr := registry.Close(closeCtx); closeErr != nil {
		slog.Error("session shutdown incomplete", "error", closeErr)
	}

	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	slog.Info("purecast stopped")
	return nil
}

func loadServerConfig() (*config.Config, error) {
	if serveConfigFile == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(serveConfigFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found", serveConfigFile)
		}
		return nil, err
	}
	return cfg, nil
}

// newLogger writes to stderr and to the log tail so /debug/logs can
// replay recent lines to operators.
func newLogger(level config.LogLevel, tail *server.LogTail) *slog.Logger {
	h := slog.NewTextHandler(io.MultiWriter(os.Stderr, tail), &slog.HandlerOptions{
		Level: level.Level(),
	})
	return slog.New(h)
}

func buildFileStore(ctx context.Context, cfg *config.Config) (storage.FileStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Storage.S3.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return storage.NewS3(s3.NewFromConfig(awsCfg), cfg.Storage.S3.Bucket, cfg.Storage.S3.Prefix), nil
	case config.StorageLocal:
		return storage.NewLocal(cfg.Storage.LocalDir)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func buildMetadataStore(cfg *config.Config) (kv.Store, error) {
	switch cfg.Metadata.Backend {
	case config.MetadataBadger:
		return kv.NewBadger(kv.BadgerOptions{Dir: cfg.Metadata.BadgerDir})
	case config.MetadataMemory:
		slog.Warn("memory metadata store selected: recordings will not survive a restart")
		return kv.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown metadata backend %q", cfg.Metadata.Backend)
}
