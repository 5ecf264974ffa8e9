// Package config provides the purecast server configuration schema and
// loader.
package config

import (
	"log/slog"
	"time"

	"github.com/purecast-io/purecast/pkg/audio/enhance"
	"github.com/purecast-io/purecast/pkg/jsontime"
)

// LogLevel controls log verbosity for the purecast server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps the config value onto a slog level.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration for the purecast server. It is loaded
// from a YAML file with [Load]; fields not present keep their defaults.
type Config struct {
	// ListenAddr is the TCP address the API server listens on.
	ListenAddr string `yaml:"listen_addr"`

	// MetricsAddr is the address of the Prometheus scrape listener.
	// Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	Audio    AudioConfig    `yaml:"audio"`
	Session  SessionConfig  `yaml:"session"`
	WebRTC   WebRTCConfig   `yaml:"webrtc"`
	Storage  StorageConfig  `yaml:"storage"`
	Metadata MetadataConfig `yaml:"metadata"`
}

// AudioConfig holds the processing geometry shared by every session.
type AudioConfig struct {
	// ModelSampleRate is the pipeline rate in Hz. Must be one of the
	// Opus-compatible rates: 8000, 12000, 16000, 24000, 48000.
	ModelSampleRate int `yaml:"model_sample_rate"`

	// ChunkSeconds is the analysis window length.
	ChunkSeconds float64 `yaml:"chunk_seconds"`

	// OverlapSeconds is the crossfade length between adjacent windows.
	OverlapSeconds float64 `yaml:"overlap_seconds"`

	// FrameMS is the listener frame size in milliseconds.
	FrameMS int `yaml:"frame_ms"`

	// Denoise is the default per-session enhancement flag; broadcasters
	// can override it per offer.
	Denoise bool `yaml:"denoise"`

	// Enhancer selects the enhancement model used when denoising.
	Enhancer enhance.Kind `yaml:"enhancer"`
}

// SessionConfig bounds session lifecycle behavior.
type SessionConfig struct {
	// ReadyTimeout bounds how long a joining listener waits for the
	// broadcaster's first audio.
	ReadyTimeout jsontime.Duration `yaml:"ready_timeout"`

	// FlushTimeout bounds the recording save at session close.
	FlushTimeout jsontime.Duration `yaml:"flush_timeout"`

	// IngestQueue is the broadcaster queue capacity, in audio blocks.
	IngestQueue int `yaml:"ingest_queue"`

	// ListenerQueue is the per-listener queue capacity, in segments.
	ListenerQueue int `yaml:"listener_queue"`
}

// WebRTCConfig holds transport settings.
type WebRTCConfig struct {
	// ICEServers lists STUN/TURN URLs handed to every peer connection.
	ICEServers []string `yaml:"ice_servers"`
}

// StorageBackend names a recording file store implementation.
type StorageBackend string

const (
	StorageLocal StorageBackend = "local"
	StorageS3    StorageBackend = "s3"
)

// IsValid reports whether b is a recognised storage backend.
func (b StorageBackend) IsValid() bool {
	return b == StorageLocal || b == StorageS3
}

// StorageConfig selects where recording WAV files live.
type StorageConfig struct {
	Backend  StorageBackend `yaml:"backend"`
	LocalDir string         `yaml:"local_dir"`
	S3       S3Config       `yaml:"s3"`
}

// S3Config holds the bucket coordinates for the s3 backend.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Prefix string `yaml:"prefix"`
}

// MetadataBackend names a recording metadata store implementation.
type MetadataBackend string

const (
	MetadataBadger MetadataBackend = "badger"
	MetadataMemory MetadataBackend = "memory"
)

// IsValid reports whether b is a recognised metadata backend.
func (b MetadataBackend) IsValid() bool {
	return b == MetadataBadger || b == MetadataMemory
}

// MetadataConfig selects where recording metadata lives. The memory
// backend loses recordings metadata on restart and exists for development.
type MetadataConfig struct {
	Backend   MetadataBackend `yaml:"backend"`
	BadgerDir string          `yaml:"badger_dir"`
}

// Default returns the configuration used when fields are absent from the
// config file.
func Default() *Config {
	return &Config{
		ListenAddr:  ":8440",
		MetricsAddr: ":9090",
		LogLevel:    LogInfo,
		Audio: AudioConfig{
			ModelSampleRate: 48000,
			ChunkSeconds:    2.0,
			OverlapSeconds:  0.5,
			FrameMS:         20,
			Denoise:         true,
			Enhancer:        enhance.KindRNNoise,
		},
		Session: SessionConfig{
			ReadyTimeout:  jsontime.FromDuration(15 * time.Second),
			FlushTimeout:  jsontime.FromDuration(10 * time.Second),
			IngestQueue:   64,
			ListenerQueue: 50,
		},
		WebRTC: WebRTCConfig{
			ICEServers: []string{"stun:stun.l.google.com:19302"},
		},
		Storage: StorageConfig{
			Backend:  StorageLocal,
			LocalDir: "/var/lib/purecast/recordings",
		},
		Metadata: MetadataConfig{
			Backend:   MetadataBadger,
			BadgerDir: "/var/lib/purecast/meta",
		},
	}
}

// ChunkFrames returns the analysis window length in samples.
func (c *Config) ChunkFrames() int {
	return int(c.Audio.ChunkSeconds * float64(c.Audio.ModelSampleRate))
}

// OverlapFrames returns the crossfade length in samples.
func (c *Config) OverlapFrames() int {
	return int(c.Audio.OverlapSeconds * float64(c.Audio.ModelSampleRate))
}

// FrameSamples returns the listener frame size in samples.
func (c *Config) FrameSamples() int {
	return c.Audio.ModelSampleRate * c.Audio.FrameMS / 1000
}
