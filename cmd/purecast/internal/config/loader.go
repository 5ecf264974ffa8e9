package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/purecast-io/purecast/pkg/audio/pcm"
)

// opusFrameMS lists the frame sizes the codec accepts. Fractional sizes
// (2.5ms, 5ms) are legal Opus but pointless for broadcast, so they are not
// offered.
var opusFrameMS = []int{10, 20, 40, 60}

// Load reads the YAML configuration file at path and returns a validated
// [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the defaults and
// validates the result. Unknown fields are rejected so typos surface at
// startup instead of silently keeping a default.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every validation failure found, so a broken config
// is fixed in one pass.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	audio := cfg.Audio
	if _, ok := pcm.FormatForRate(audio.ModelSampleRate); !ok {
		errs = append(errs, fmt.Errorf("audio.model_sample_rate %d is invalid; valid values: 8000, 12000, 16000, 24000, 48000", audio.ModelSampleRate))
	}
	if audio.ChunkSeconds < 0.5 || audio.ChunkSeconds > 4.0 {
		errs = append(errs, fmt.Errorf("audio.chunk_seconds %.2f is out of range [0.5, 4.0]", audio.ChunkSeconds))
	}
	if audio.OverlapSeconds < 0.1 || audio.OverlapSeconds > 0.5 {
		errs = append(errs, fmt.Errorf("audio.overlap_seconds %.2f is out of range [0.1, 0.5]", audio.OverlapSeconds))
	}
	if 2*audio.OverlapSeconds > audio.ChunkSeconds {
		errs = append(errs, fmt.Errorf("audio.overlap_seconds %.2f must be at most half of chunk_seconds %.2f", audio.OverlapSeconds, audio.ChunkSeconds))
	}
	if !validFrameMS(audio.FrameMS) {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d is invalid; valid values: %v", audio.FrameMS, opusFrameMS))
	}
	if !audio.Enhancer.Valid() {
		errs = append(errs, fmt.Errorf("audio.enhancer %q is invalid; valid values: rnnoise, bypass", audio.Enhancer))
	}

	sess := cfg.Session
	if sess.ReadyTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("session.ready_timeout must be positive"))
	}
	if sess.FlushTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("session.flush_timeout must be positive"))
	}
	if sess.IngestQueue <= 0 {
		errs = append(errs, errors.New("session.ingest_queue must be positive"))
	}
	if sess.ListenerQueue <= 0 {
		errs = append(errs, errors.New("session.listener_queue must be positive"))
	}

	switch cfg.Storage.Backend {
	case StorageLocal:
		if cfg.Storage.LocalDir == "" {
			errs = append(errs, errors.New("storage.local_dir is required for the local backend"))
		}
	case StorageS3:
		if cfg.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required for the s3 backend"))
		}
		if cfg.Storage.S3.Region == "" {
			errs = append(errs, errors.New("storage.s3.region is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: local, s3", cfg.Storage.Backend))
	}

	switch cfg.Metadata.Backend {
	case MetadataBadger:
		if cfg.Metadata.BadgerDir == "" {
			errs = append(errs, errors.New("metadata.badger_dir is required for the badger backend"))
		}
	case MetadataMemory:
	default:
		errs = append(errs, fmt.Errorf("metadata.backend %q is invalid; valid values: badger, memory", cfg.Metadata.Backend))
	}

	return errors.Join(errs...)
}

func validFrameMS(ms int) bool {
	for _, v := range opusFrameMS {
		if v == ms {
			return true
		}
	}
	return false
}
