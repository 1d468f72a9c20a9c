// Package config loads strip-detect settings from STRIP_DETECT_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/ironsheep/strip-detect/internal/imaging"
	"github.com/ironsheep/strip-detect/internal/pipeline"
)

// Prefix is prepended to every variable name.
const Prefix = "STRIP_DETECT_"

// Config holds all settings for the service, the MCP server and the CLI.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Storage  StorageConfig
	Pipeline pipeline.Params

	// AutoOrient applies EXIF orientation when decoding JPEG input.
	AutoOrient bool

	// MaxPixels rejects input images larger than width*height pixels
	// before they are decoded. Zero disables the limit.
	MaxPixels int
}

// DefaultMaxPixels admits a 16 megapixel photo.
const DefaultMaxPixels = 16_000_000

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string        // Listen address
	MaxBodyBytes   int64         // Request body limit
	MaxConcurrent  int           // Pipelines allowed to run at once
	AcquireTimeout time.Duration // Wait for a free slot before answering 503
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	StaticDir      string // Served at / when set
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level  string // trace, debug, info, warn, error
	Format string // json or console
}

// StorageConfig holds artifact and database locations. Empty disables them.
type StorageConfig struct {
	ArtifactDir string
	DBPath      string
	JPEGQuality int
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":6868",
			MaxBodyBytes:   50 << 20,
			MaxConcurrent:  runtime.NumCPU(),
			AcquireTimeout: 5 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			JPEGQuality: imaging.DefaultJPEGQuality,
		},
		Pipeline:  pipeline.DefaultParams(),
		MaxPixels: DefaultMaxPixels,
	}
}

// Load returns Default overridden by any STRIP_DETECT_* variables that are
// set. The first malformed value is reported by variable name.
func Load() (Config, error) {
	cfg := Default()
	e := &env{}

	e.stringVar("ADDR", &cfg.Server.Addr)
	e.int64Var("MAX_BODY_BYTES", &cfg.Server.MaxBodyBytes)
	e.intVar("MAX_CONCURRENT", &cfg.Server.MaxConcurrent)
	e.durationVar("ACQUIRE_TIMEOUT", &cfg.Server.AcquireTimeout)
	e.durationVar("READ_TIMEOUT", &cfg.Server.ReadTimeout)
	e.durationVar("WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	e.stringVar("STATIC_DIR", &cfg.Server.StaticDir)

	e.stringVar("LOG_LEVEL", &cfg.Log.Level)
	e.stringVar("LOG_FORMAT", &cfg.Log.Format)

	e.stringVar("ARTIFACT_DIR", &cfg.Storage.ArtifactDir)
	e.stringVar("DB_PATH", &cfg.Storage.DBPath)
	e.intVar("JPEG_QUALITY", &cfg.Storage.JPEGQuality)

	e.boolVar("AUTO_ORIENT", &cfg.AutoOrient)
	e.intVar("MAX_PIXELS", &cfg.MaxPixels)

	p := &cfg.Pipeline
	e.floatVar("BLUR_RADIUS", &p.Edge.BlurRadius)
	e.floatVar("CANNY_LOW", &p.Edge.ThresholdLow)
	e.floatVar("CANNY_HIGH", &p.Edge.ThresholdHigh)
	e.intVar("MIN_RADIUS", &p.Hough.MinRadius)
	e.intVar("MAX_RADIUS", &p.Hough.MaxRadius)
	e.intVar("VOTE_THRESHOLD", &p.Hough.VoteThreshold)
	e.intVar("HOUGH_WORKERS", &p.Hough.Workers)
	e.floatVar("COLOUR_BLUR_RADIUS", &p.ColourBlurRadius)
	e.int64Var("CLUSTER_SEED", &p.Seed)

	if e.err != nil {
		return Config{}, e.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that parse but cannot be used.
func (c Config) Validate() error {
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("%sMAX_BODY_BYTES must be positive, got %d", Prefix, c.Server.MaxBodyBytes)
	}
	if c.Server.MaxConcurrent <= 0 {
		return fmt.Errorf("%sMAX_CONCURRENT must be positive, got %d", Prefix, c.Server.MaxConcurrent)
	}
	if c.Server.AcquireTimeout <= 0 {
		return fmt.Errorf("%sACQUIRE_TIMEOUT must be positive, got %v", Prefix, c.Server.AcquireTimeout)
	}
	if c.Storage.JPEGQuality < 1 || c.Storage.JPEGQuality > 100 {
		return fmt.Errorf("%sJPEG_QUALITY must be between 1 and 100, got %d", Prefix, c.Storage.JPEGQuality)
	}
	if c.MaxPixels < 0 {
		return fmt.Errorf("%sMAX_PIXELS must not be negative, got %d", Prefix, c.MaxPixels)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%sLOG_FORMAT must be json or console, got %q", Prefix, c.Log.Format)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline parameters: %w", err)
	}
	return nil
}

// Decoder returns the image decoder described by the configuration.
func (c Config) Decoder() imaging.Decoder {
	return imaging.Decoder{AutoOrient: c.AutoOrient, MaxPixels: c.MaxPixels}
}

// env reads variables and remembers the first parse failure.
type env struct {
	err error
}

func (e *env) lookup(name string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := os.LookupEnv(Prefix + name)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *env) fail(name, value string, err error) {
	e.err = fmt.Errorf("invalid %s%s=%q: %w", Prefix, name, value, err)
}

func (e *env) stringVar(name string, dst *string) {
	if v, ok := e.lookup(name); ok {
		*dst = v
	}
}

func (e *env) intVar(name string, dst *int) {
	if v, ok := e.lookup(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (e *env) int64Var(name string, dst *int64) {
	if v, ok := e.lookup(name); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (e *env) floatVar(name string, dst *float64) {
	if v, ok := e.lookup(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = f
	}
}

func (e *env) boolVar(name string, dst *bool) {
	if v, ok := e.lookup(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = b
	}
}

func (e *env) durationVar(name string, dst *time.Duration) {
	if v, ok := e.lookup(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = d
	}
}
