// Package config handles configuration settings for Cinder, following the
// teacher's koanf-based load/validate pattern (haukened-gone's
// internal/config): defaults via structs.Provider, environment overrides
// via env.Provider, validation via go-playground/validator/v10 with custom
// field validators.
package config

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config holds Cinder's full configuration surface: spec.md §6's core
// fields (activePepperVersion, pepperHex, session.timeoutSeconds,
// file.clockSkewSeconds, file.maxBlobBytes) plus the delivery-layer fields
// (listen address, data directory, blob backend selection, metrics
// address) that SPEC_FULL.md's ambient stack adds.
type Config struct {
	Addr        string `koanf:"addr" validate:"required,ip_port"`
	MetricsAddr string `koanf:"metrics_addr" validate:"omitempty,ip_port"`
	DataDir     string `koanf:"data_dir" validate:"required,custom_path"`

	BlobBackend     string `koanf:"blob_backend" validate:"required,oneof=filesystem s3"`
	BlobDir         string `koanf:"blob_dir"`
	S3Bucket        string `koanf:"s3_bucket"`
	S3Region        string `koanf:"s3_region"`
	S3Endpoint      string `koanf:"s3_endpoint"`
	S3KeyPrefix     string `koanf:"s3_key_prefix"`
	S3AccessKeyID   string `koanf:"s3_access_key_id"`
	S3SecretKey     string `koanf:"s3_secret_access_key"`
	S3ForcePathStyle bool  `koanf:"s3_force_path_style"`

	ActivePepperVersion int16            `koanf:"active_pepper_version" validate:"required"`
	PepperHex           map[int16]string `koanf:"-" validate:"required"`

	SessionTimeoutSeconds uint32 `koanf:"session_timeout_seconds" validate:"required,gt=0"`
	AckTimeoutSeconds     uint32 `koanf:"ack_timeout_seconds" validate:"required,gt=0"`
	ClockSkewSeconds      uint32 `koanf:"clock_skew_seconds" validate:"required,gt=0"`
	MaxBlobBytes          uint64 `koanf:"max_blob_bytes" validate:"required,gt=0"`
	RequireHMAC           bool   `koanf:"require_hmac"`
	BurnPolicy            string `koanf:"burn_policy" validate:"omitempty,oneof=split immediate"`

	JanitorIntervalSeconds uint32 `koanf:"janitor_interval_seconds" validate:"required,gt=0"`
	NATSURL                string `koanf:"nats_url"`
	NATSSubject            string `koanf:"nats_subject"`
}

// DefaultAppConfig provides the default configuration values.
var DefaultAppConfig = Config{
	Addr:                   ":8443",
	MetricsAddr:            "",
	DataDir:                "/data",
	BlobBackend:            "filesystem",
	BlobDir:                "/data/blobs",
	SessionTimeoutSeconds:  300,
	AckTimeoutSeconds:      60,
	ClockSkewSeconds:       60,
	MaxBlobBytes:           64 * 1024 * 1024, // 64 MiB
	RequireHMAC:            true,
	BurnPolicy:             "split",
	JanitorIntervalSeconds: 30,
}

var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DefaultAppConfig, "koanf"), nil)
}

// envLoader loads environment variables with prefix "CINDER_", lower-cased
// and stripped of the prefix; comma-separated values become string slices
// (the same scheme the teacher's envLoader uses).
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{Prefix: "CINDER_", TransformFunc: func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, "CINDER_"))
		if strings.Contains(value, ",") {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return key, parts
		}
		return key, strings.TrimSpace(value)
	}}), nil)
}

// validIPPort validates a "host:port" or ":port" listen address.
func validIPPort(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	ip, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	if ip != "" && net.ParseIP(ip) == nil {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0 && portNum < 65536
}

// validDirNotExists rejects empty, root, "." or upward-traversing paths
// without requiring the directory to already exist.
func validDirNotExists(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return false
	}
	cleaned := filepath.Clean(raw)
	if cleaned == "." || cleaned == string(os.PathSeparator) {
		return false
	}
	for _, part := range strings.Split(cleaned, string(os.PathSeparator)) {
		if part == ".." {
			return false
		}
	}
	return true
}

var registerValidators = func(v *validator.Validate) error {
	if err := v.RegisterValidation("ip_port", validIPPort); err != nil {
		return err
	}
	return v.RegisterValidation("custom_path", validDirNotExists)
}

// Load applies defaults, overrides with CINDER_-prefixed environment
// variables, decodes CINDER_PEPPER_HEX into PepperHex, and validates the
// result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, err
	}
	if err := envLoader(k); err != nil {
		return nil, err
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, err
	}

	pepperHex, err := parsePepperHex(k.Get("pepper_hex"))
	if err != nil {
		return nil, err
	}
	cfg.PepperHex = pepperHex

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidators(validate); err != nil {
		return nil, err
	}
	if cfg.BlobBackend == "filesystem" && cfg.BlobDir == "" {
		cfg.BlobDir = filepath.Join(cfg.DataDir, "blobs")
	}
	if cfg.BlobBackend == "s3" && cfg.S3Bucket == "" {
		return nil, errMissingS3Bucket
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SQLiteDSN returns a hardened SQLite DSN derived from DataDir, following
// the teacher's Config.SQLiteDSN convention (WAL, foreign keys, busy
// timeout, full synchronous).
func (c *Config) SQLiteDSN() string {
	dbPath := filepath.Join(c.DataDir, "cinder.db")
	return "file:" + dbPath + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_synchronous=FULL"
}
