package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/example/go-coqui-tts/internal/audio"
	"github.com/example/go-coqui-tts/internal/config"
	"github.com/example/go-coqui-tts/internal/model"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Synthesizer is the part of model.Host the handler needs.
type Synthesizer interface {
	ModelID() string
	SynthesizeToFile(ctx context.Context, text, dst string) error
}

// DownloadName is the file name suggested to clients for synthesized audio.
const DownloadName = "speech.wav"

// ErrEmptyText is returned for empty or whitespace-only input.
var ErrEmptyText = errors.New("Text cannot be empty") //nolint:staticcheck // message is part of the HTTP contract

// TextTooLongError is returned for input longer than the configured limit.
type TextTooLongError struct {
	Max int
}

func (e *TextTooLongError) Error() string {
	return fmt.Sprintf("Text exceeds maximum length of %d characters", e.Max)
}

// ValidateText checks text against the synthesis input rules. Length is
// counted in Unicode code points before trimming; emptiness after trimming.
func ValidateText(text string, maxChars int) error {
	if strings.TrimFunc(text, isBlank) == "" {
		return ErrEmptyText
	}
	if utf8.RuneCountInString(text) > maxChars {
		return &TextTooLongError{Max: maxChars}
	}
	return nil
}

// isBlank reports whitespace the way Python's str.isspace does: Unicode
// spaces plus the ASCII separators U+001C..U+001F.
func isBlank(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextChars   int
	tempDir        string
	requestTimeout time.Duration
	logger         *slog.Logger
	limiter        *rate.Limiter
	remove         func(string) error
}

func defaultOptions() options {
	return options{
		maxTextChars:   200,
		tempDir:        filepath.Join(os.TempDir(), "coquitts"),
		requestTimeout: 60 * time.Second,
		logger:         slog.Default(),
		remove:         os.Remove,
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextChars sets the maximum allowed text length in characters for /tts.
func WithMaxTextChars(n int) Option {
	return func(o *options) { o.maxTextChars = n }
}

// WithTempDir sets the directory that holds per-request output files.
func WithTempDir(dir string) Option {
	return func(o *options) {
		if dir != "" {
			o.tempDir = dir
		}
	}
}

// WithRequestTimeout sets the per-request synthesis deadline. d <= 0 means
// no deadline; synthesis then ends only when the client goes away.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithRateLimit caps accepted /tts requests at rps per second with the given
// burst. Requests over the limit get 429. rps <= 0 disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		if rps <= 0 {
			o.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	synth Synthesizer
	opts  options
	log   *slog.Logger
}

// NewHandler returns an http.Handler that serves GET / (health) and GET /tts.
func NewHandler(synth Synthesizer, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		synth: synth,
		opts:  opts,
		log:   opts.logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleHealth)
	mux.HandleFunc("/tts", h.handleTTS)
	return mux
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"model":  h.synth.ModelID(),
	})
}

func (h *handler) handleTTS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	query := r.URL.Query()
	if !query.Has("text") {
		writeError(w, http.StatusUnprocessableEntity, "Field required: text")
		return
	}
	text := query.Get("text")
	textLen := utf8.RuneCountInString(text)

	if err := ValidateText(text, h.opts.maxTextChars); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.opts.limiter != nil && !h.opts.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "Too Many Requests")
		return
	}

	reqID := uuid.NewString()
	w.Header().Set("X-Request-ID", reqID)
	log := h.log.With(slog.String("request_id", reqID))

	if err := os.MkdirAll(h.opts.tempDir, 0o700); err != nil {
		log.ErrorContext(r.Context(), "create temp dir", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Synthesis failed: "+err.Error())
		return
	}

	// Unique per request so concurrent requests never share a file.
	outPath := filepath.Join(h.opts.tempDir, reqID+".wav")
	defer h.cleanup(r.Context(), log, outPath)

	ctx := r.Context()
	if h.opts.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.requestTimeout)
		defer cancel()
	}

	start := time.Now()
	err := h.synth.SynthesizeToFile(ctx, text, outPath)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.WarnContext(r.Context(), "synthesis timed out",
				slog.Int("text_len", textLen),
				slog.Int64("duration_ms", durationMS),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusGatewayTimeout, "Synthesis timed out")
			return
		}
		log.ErrorContext(r.Context(), "synthesis failed",
			slog.Int("text_len", textLen),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Synthesis failed: "+err.Error())
		return
	}

	info, err := audio.InspectFile(outPath)
	if err != nil {
		log.ErrorContext(r.Context(), "synthesis produced unreadable audio",
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Synthesis failed: "+err.Error())
		return
	}

	f, err := os.Open(outPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Synthesis failed: "+err.Error())
		return
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Synthesis failed: "+err.Error())
		return
	}

	log.InfoContext(r.Context(), "synthesis complete",
		slog.Int("text_len", textLen),
		slog.Int64("duration_ms", durationMS),
		slog.Int64("wav_bytes", fi.Size()),
		slog.Int64("audio_ms", info.Duration.Milliseconds()),
		slog.Int("sample_rate", info.SampleRate),
	)

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+DownloadName+`"`)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, f); err != nil {
		log.WarnContext(r.Context(), "write response", slog.String("error", err.Error()))
	}
}

// cleanup removes a request's output file. Failures are logged and never
// change the response.
func (h *handler) cleanup(ctx context.Context, log *slog.Logger, path string) {
	err := h.opts.remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return
	}
	log.WarnContext(ctx, "cleanup failed",
		slog.String("path", path),
		slog.String("error", err.Error()),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	host            model.Host
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New returns a Server for an already-loaded host.
func New(cfg config.Config, host model.Host) *Server {
	return &Server{
		cfg:             cfg,
		host:            host,
		logger:          slog.Default(),
		shutdownTimeout: 30 * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithLogger overrides the logger passed to the handler.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.logger = l
	return s
}

// Handler builds the request handler from the server config.
func (s *Server) Handler() http.Handler {
	return NewHandler(s.host,
		WithMaxTextChars(s.cfg.Server.MaxTextChars),
		WithTempDir(s.cfg.Server.TempDir),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout)*time.Second),
		WithRateLimit(s.cfg.Server.RateLimit, s.cfg.Server.RateBurst),
		WithLogger(s.logger),
	)
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	if s.host == nil {
		return errors.New("model host is not loaded")
	}

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.Info("listening",
		slog.String("addr", s.cfg.Server.ListenAddr),
		slog.String("model", s.host.ModelID()),
	)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks the health route of a running server.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}

	var body struct {
		Status string `json:"status"`
		Model  string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}
	if body.Status != "ok" {
		return fmt.Errorf("unexpected health status %q", body.Status)
	}
	return nil
}
