package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/strip-detect/internal/artifacts"
	"github.com/ironsheep/strip-detect/internal/config"
	"github.com/ironsheep/strip-detect/internal/imaging"
	"github.com/ironsheep/strip-detect/internal/logger"
	"github.com/ironsheep/strip-detect/internal/models"
	"github.com/ironsheep/strip-detect/internal/pipeline"
	"github.com/ironsheep/strip-detect/internal/server"
	"github.com/ironsheep/strip-detect/internal/store"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "--version", "-v", "version":
		fmt.Printf("strip-detect %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return
	case "--help", "-h", "help":
		printUsage()
		return
	case "serve", "mcp", "analyze":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	// Logs go to stderr; stdout carries MCP responses and analyze output
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	switch cmd {
	case "serve":
		err = runServe(cfg, log)
	case "mcp":
		err = runMCP(cfg, log)
	case "analyze":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: strip-detect analyze <image file>")
			os.Exit(2)
		}
		err = runAnalyze(cfg, log, os.Args[2])
	}
	if err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("exiting")
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("strip-detect - read the colour markers of a test strip photo")
	fmt.Println()
	fmt.Println("Usage: strip-detect [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve            Run the HTTP service (default)")
	fmt.Println("  mcp              Run the MCP server on stdin/stdout")
	fmt.Println("  analyze <file>   Analyze one image and print the result as JSON")
	fmt.Println("  version, -v      Print version information")
	fmt.Println("  help, -h         Print this help message")
	fmt.Println()
	fmt.Println("Environment variables (prefix " + config.Prefix + "):")
	fmt.Println("  ADDR, LOG_LEVEL, LOG_FORMAT, ARTIFACT_DIR, DB_PATH, STATIC_DIR,")
	fmt.Println("  MAX_BODY_BYTES, MAX_CONCURRENT, ACQUIRE_TIMEOUT, READ_TIMEOUT, WRITE_TIMEOUT,")
	fmt.Println("  JPEG_QUALITY, AUTO_ORIENT, MAX_PIXELS, BLUR_RADIUS, CANNY_LOW, CANNY_HIGH,")
	fmt.Println("  MIN_RADIUS, MAX_RADIUS, VOTE_THRESHOLD, HOUGH_WORKERS, COLOUR_BLUR_RADIUS, CLUSTER_SEED")
}

// outputs opens the optional artifact writer and readings store. Either
// may be nil.
func outputs(cfg config.Config) (*artifacts.Writer, *store.Store, error) {
	var w *artifacts.Writer
	if cfg.Storage.ArtifactDir != "" {
		var err error
		if w, err = artifacts.NewWriter(cfg.Storage.ArtifactDir, cfg.Storage.JPEGQuality); err != nil {
			return nil, nil, err
		}
	}
	var st *store.Store
	if cfg.Storage.DBPath != "" {
		var err error
		if st, err = store.Open(cfg.Storage.DBPath); err != nil {
			return nil, nil, err
		}
	}
	return w, st, nil
}

func runServe(cfg config.Config, log zerolog.Logger) error {
	p, err := pipeline.New(cfg.Pipeline, logger.Component(log, "pipeline"))
	if err != nil {
		return err
	}
	w, st, err := outputs(cfg)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	svc := server.NewService(cfg, p, logger.Component(log, "http"))
	svc.SetArtifacts(w)
	svc.SetStore(st)
	defer svc.Pool().Close()

	srv := svc.HTTPServer()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", Version).
			Int("max_concurrent", cfg.Server.MaxConcurrent).
			Bool("artifacts", w != nil).
			Bool("readings", st != nil).
			Msg("starting server")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(cfg config.Config, log zerolog.Logger) error {
	p, err := pipeline.New(cfg.Pipeline, logger.Component(log, "pipeline"))
	if err != nil {
		return err
	}

	log.Debug().Str("version", Version).Str("build_time", BuildTime).Str("commit", GitCommit).Msg("MCP server starting")

	srv := server.New(p, cfg.Decoder(), cfg.Storage.JPEGQuality, logger.Component(log, "mcp"))
	srv.SetVersion(Version)
	return srv.Run()
}

type analyzeOutput struct {
	Path       string                   `json:"path"`
	Width      int                      `json:"width"`
	Height     int                      `json:"height"`
	Circles    []models.Circle          `json:"circles"`
	WhitePoint models.Point             `json:"whitePoint"`
	Scale      imaging.ScaleFactors     `json:"scale"`
	Colour     []models.ColorSample     `json:"colour"`
	Timings    models.ProcessingTimings `json:"timings"`
	Artifacts  *artifacts.Paths         `json:"artifacts,omitempty"`
	ReadingID  int64                    `json:"readingId,omitempty"`
}

func runAnalyze(cfg config.Config, log zerolog.Logger, path string) error {
	p, err := pipeline.New(cfg.Pipeline, logger.Component(log, "pipeline"))
	if err != nil {
		return err
	}
	w, st, err := outputs(cfg)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	runID := fmt.Sprintf("%d", time.Now().UnixNano())
	decodeStart := time.Now()
	buf, err := cfg.Decoder().Open(path)
	if err != nil {
		return err
	}
	decodeTime := time.Since(decodeStart)

	res, err := p.Run(context.Background(), buf)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	res.Timings.ImageDecode = decodeTime

	out := analyzeOutput{
		Path:       path,
		Width:      buf.Width,
		Height:     buf.Height,
		Circles:    res.Circles,
		WhitePoint: res.WhitePoint,
		Scale:      res.Scale,
		Colour:     res.Samples,
		Timings:    res.Timings,
	}

	if w != nil {
		annotated, err := imaging.Annotate(res.Balanced, res.Circles, res.WhitePoint)
		if err != nil {
			return err
		}
		paths, err := w.Write(artifacts.Set{
			ID:        runID,
			Edges:     res.Edges,
			Blurred:   res.Blurred,
			Balanced:  res.Balanced,
			Annotated: annotated,
		})
		if err != nil {
			return err
		}
		out.Artifacts = &paths
	}
	if st != nil {
		id, err := st.Insert(context.Background(), &store.Reading{
			RequestID:  runID,
			Width:      buf.Width,
			Height:     buf.Height,
			WhitePoint: res.WhitePoint,
			Scale:      res.Scale,
			Samples:    res.Samples,
		})
		if err != nil {
			return err
		}
		out.ReadingID = id
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
