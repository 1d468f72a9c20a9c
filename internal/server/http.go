package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/ironsheep/strip-detect/internal/artifacts"
	"github.com/ironsheep/strip-detect/internal/config"
	"github.com/ironsheep/strip-detect/internal/imaging"
	"github.com/ironsheep/strip-detect/internal/models"
	"github.com/ironsheep/strip-detect/internal/pipeline"
	"github.com/ironsheep/strip-detect/internal/store"
)

// Messages sent to HTTP clients. Internal error detail is only logged.
const (
	msgNoImage = "You must send an image."
	msgGeneric = "There was an error handling your request."
)

// DefaultReadingsLimit is the number of readings GET /readings returns
// without a limit parameter.
const DefaultReadingsLimit = 20

// DetectRequest is the POST /detect-colour body. Width and Height are the
// client's idea of the image size and are only checked against the decoded
// image.
type DetectRequest struct {
	Image  string `json:"image"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// DetectResponse is the POST /detect-colour success body.
type DetectResponse struct {
	RequestID    string               `json:"requestId"`
	ReadingID    int64                `json:"readingId,omitempty"`
	EdgeJPEG     string               `json:"edgeJpeg"`
	BlurredJPEG  string               `json:"blurredJpeg"`
	BalancedJPEG string               `json:"balancedJpeg"`
	Colour       []models.ColorSample `json:"colour"`
	WhitePoint   models.Point         `json:"whitePoint"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Service is the HTTP front end of the pipeline.
type Service struct {
	cfg      config.ServerConfig
	quality  int
	decoder  imaging.Decoder
	pipeline *pipeline.Pipeline
	pool     *Pool
	log      zerolog.Logger

	artifacts *artifacts.Writer
	store     *store.Store
}

// NewService returns a service running p with the server and storage
// settings of cfg. Artifacts and readings stay disabled until SetArtifacts
// and SetStore are called.
func NewService(cfg config.Config, p *pipeline.Pipeline, log zerolog.Logger) *Service {
	return &Service{
		cfg:      cfg.Server,
		quality:  cfg.Storage.JPEGQuality,
		decoder:  cfg.Decoder(),
		pipeline: p,
		pool:     NewPool(cfg.Server.MaxConcurrent, cfg.Server.AcquireTimeout),
		log:      log,
	}
}

// SetArtifacts enables writing each run's images with w.
func (s *Service) SetArtifacts(w *artifacts.Writer) {
	s.artifacts = w
}

// SetStore enables saving readings and the /readings routes.
func (s *Service) SetStore(st *store.Store) {
	s.store = st
}

// Pool returns the analysis slot pool.
func (s *Service) Pool() *Pool {
	return s.pool
}

// Handler returns the routed handler with CORS and request logging applied.
func (s *Service) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/detect-colour", s.handleDetectColour).Methods(http.MethodPost)
	r.HandleFunc("/readings", s.handleReadings).Methods(http.MethodGet)
	r.HandleFunc("/readings/{id:[0-9]+}", s.handleReading).Methods(http.MethodGet)
	s.addMonitoringRoutes(r)

	if s.cfg.StaticDir != "" {
		r.PathPrefix("/").
			Handler(http.FileServer(http.Dir(s.cfg.StaticDir))).
			Methods(http.MethodGet, http.MethodHead)
	}

	return s.cors(s.logRequests(r))
}

// HTTPServer returns an http.Server for Handler with the configured
// address and timeouts.
func (s *Service) HTTPServer() *http.Server {
	return &http.Server{
		Handler:      s.Handler(),
		Addr:         s.cfg.Addr,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
}

func (s *Service) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

func (s *Service) handleDetectColour(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := zerolog.Ctx(ctx)
	requestID := requestIDFrom(ctx)
	timings := models.ProcessingTimings{RequestID: requestID}

	var req DetectRequest
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn().Int64("limit", tooLarge.Limit).Msg("request body too large")
			sendErrorResponse(w, msgGeneric, http.StatusRequestEntityTooLarge)
			return
		}
		log.Warn().Err(err).Msg("invalid request body")
		sendErrorResponse(w, msgGeneric, http.StatusBadRequest)
		return
	}
	if req.Image == "" {
		sendErrorResponse(w, msgNoImage, http.StatusBadRequest)
		return
	}

	decodeStart := time.Now()
	buf, format, err := s.decoder.DecodeBase64(req.Image)
	timings.ImageDecode = time.Since(decodeStart)
	if err != nil {
		log.Warn().Err(err).Msg("failed to decode image")
		sendErrorResponse(w, msgGeneric, http.StatusBadRequest)
		return
	}
	if (req.Width != 0 && req.Width != buf.Width) || (req.Height != 0 && req.Height != buf.Height) {
		log.Warn().
			Int("width", req.Width).Int("height", req.Height).
			Int("decoded_width", buf.Width).Int("decoded_height", buf.Height).
			Msg("declared size differs from decoded image")
	}

	if err := s.pool.Acquire(ctx); err != nil {
		log.Warn().Err(err).Msg("no analysis slot")
		sendErrorResponse(w, msgGeneric, http.StatusServiceUnavailable)
		return
	}
	defer s.pool.Release()

	res, err := s.pipeline.Run(ctx, buf)
	if err != nil {
		log.Info().Err(err).Str("kind", imaging.Kind(err)).Str("format", format).Msg("pipeline failed")
		sendErrorResponse(w, msgGeneric, http.StatusUnprocessableEntity)
		return
	}
	pipelineTimings := res.Timings
	pipelineTimings.RequestID = timings.RequestID
	pipelineTimings.ImageDecode = timings.ImageDecode
	logTimings(log, &pipelineTimings)

	resp := DetectResponse{
		RequestID:  requestID,
		Colour:     res.Samples,
		WhitePoint: res.WhitePoint,
	}
	encoded := []struct {
		dst *string
		buf *imaging.PixelBuffer
	}{
		{&resp.EdgeJPEG, res.Edges.ToRGBA()},
		{&resp.BlurredJPEG, res.Blurred},
		{&resp.BalancedJPEG, res.Balanced},
	}
	for _, e := range encoded {
		if *e.dst, err = imaging.EncodeJPEGBase64(e.buf, s.quality); err != nil {
			log.Error().Err(err).Msg("failed to encode artifact")
			sendErrorResponse(w, msgGeneric, http.StatusInternalServerError)
			return
		}
	}

	if err := s.saveArtifacts(log, requestID, res); err != nil {
		log.Error().Err(err).Msg("failed to write artifacts")
		sendErrorResponse(w, msgGeneric, http.StatusInternalServerError)
		return
	}

	if s.store != nil {
		id, err := s.store.Insert(ctx, &store.Reading{
			RequestID:  requestID,
			Width:      buf.Width,
			Height:     buf.Height,
			WhitePoint: res.WhitePoint,
			Scale:      res.Scale,
			Samples:    res.Samples,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to store reading")
			sendErrorResponse(w, msgGeneric, http.StatusInternalServerError)
			return
		}
		resp.ReadingID = id
	}

	sendJSON(w, http.StatusOK, resp)
}

func (s *Service) saveArtifacts(log *zerolog.Logger, requestID string, res *pipeline.Result) error {
	if s.artifacts == nil {
		return nil
	}
	annotated, err := imaging.Annotate(res.Balanced, res.Circles, res.WhitePoint)
	if err != nil {
		return err
	}
	paths, err := s.artifacts.Write(artifacts.Set{
		ID:        requestID,
		Edges:     res.Edges,
		Blurred:   res.Blurred,
		Balanced:  res.Balanced,
		Annotated: annotated,
	})
	if err != nil {
		return err
	}
	log.Debug().Interface("paths", paths).Msg("artifacts written")
	return nil
}

func (s *Service) handleReadings(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		sendErrorResponse(w, "Readings are not enabled.", http.StatusNotFound)
		return
	}

	limit := DefaultReadingsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			sendErrorResponse(w, fmt.Sprintf("Invalid limit %q.", v), http.StatusBadRequest)
			return
		}
		limit = n
	}

	readings, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to list readings")
		sendErrorResponse(w, msgGeneric, http.StatusInternalServerError)
		return
	}
	if readings == nil {
		readings = []*store.Reading{}
	}
	sendJSON(w, http.StatusOK, readings)
}

func (s *Service) handleReading(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		sendErrorResponse(w, "Readings are not enabled.", http.StatusNotFound)
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		sendErrorResponse(w, "Reading not found.", http.StatusNotFound)
		return
	}

	reading, err := s.store.Get(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		sendErrorResponse(w, "Reading not found.", http.StatusNotFound)
	case err != nil:
		zerolog.Ctx(r.Context()).Error().Err(err).Int64("id", id).Msg("failed to load reading")
		sendErrorResponse(w, msgGeneric, http.StatusInternalServerError)
	default:
		sendJSON(w, http.StatusOK, reading)
	}
}

func (s *Service) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	stats := s.pool.Stats()
	response := map[string]interface{}{
		"pool_size":        stats.Size,
		"slots_in_use":     stats.InUse,
		"total_acquired":   stats.TotalAcquired,
		"total_released":   stats.TotalReleased,
		"acquire_failures": stats.AcquireFailures,
		"wait_time_ms":     stats.WaitTime.Milliseconds(),
	}
	sendJSON(w, http.StatusOK, response)
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// cors allows any origin and answers pre-flight requests directly.
func (s *Service) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ctxKey int

const requestIDKey ctxKey = iota

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests gives each request an id and a logger carrying it, then logs
// the outcome once the handler returns.
func (s *Service) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := fmt.Sprintf("%d", start.UnixNano())
		log := s.log.With().Str("request_id", requestID).Logger()

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = log.WithContext(ctx)
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func logTimings(log *zerolog.Logger, t *models.ProcessingTimings) {
	log.Debug().
		Str("request_id", t.RequestID).
		Dur("image_decode", t.ImageDecode).
		Dur("edges", t.Edges).
		Dur("voting", t.Voting).
		Dur("clustering", t.Clustering).
		Dur("colour_blur", t.ColourBlur).
		Dur("retinex", t.Retinex).
		Dur("sampling", t.Sampling).
		Dur("pipeline_total", t.Total).
		Msg("request timings")
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendErrorResponse(w http.ResponseWriter, message string, status int) {
	sendJSON(w, status, ErrorResponse{Error: message})
}
