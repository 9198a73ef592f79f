package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aezizhu/CellGen/internal/config"
	"github.com/aezizhu/CellGen/internal/credentials"
	"github.com/aezizhu/CellGen/internal/formula"
	"github.com/aezizhu/CellGen/internal/llm"
	"github.com/aezizhu/CellGen/internal/logging"
	"github.com/aezizhu/CellGen/internal/metrics"
	"github.com/aezizhu/CellGen/internal/ui"
)

const maxBodyBytes = 1 << 20

// Dispatcher is the part of llm.Dispatcher the panel needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, req llm.Request) (string, error)
}

type Server struct {
	cfg   config.Config
	mux   *http.ServeMux
	llm   Dispatcher
	keys  credentials.Store
	log   zerolog.Logger
	token string
	stats *metrics.Collector
}

func New(cfg config.Config, d Dispatcher, keys credentials.Store, log zerolog.Logger) *Server {
	s := &Server{
		cfg:   cfg,
		mux:   http.NewServeMux(),
		llm:   d,
		keys:  keys,
		log:   log,
		token: cfg.ServerToken,
	}
	s.mux.HandleFunc("/v1/generate", s.auth(s.handleGenerate))
	s.mux.HandleFunc("/v1/credentials", s.auth(s.handleCredentials))
	s.mux.HandleFunc("/v1/help", s.auth(s.handleHelp))
	s.mux.HandleFunc("/v1/metrics", s.auth(s.handleMetrics))
	s.mux.HandleFunc("/metrics", s.auth(s.handlePrometheus))
	s.mux.HandleFunc("/health", s.handleHealth)
	return s
}

// SetMetrics exposes c on /v1/metrics and, in the Prometheus format, on
// /metrics.
func (s *Server) SetMetrics(c *metrics.Collector) {
	s.stats = c
}

// Handler returns the mux wrapped with request ids and the access log.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.mux)
}

// Start listens on cfg.Listen() until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// A generate call may use the full provider timeout plus one retry.
		WriteTimeout: time.Duration(2*s.cfg.Timeout()+10) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("CellGen panel listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type GenerateRequest struct {
	Provider string `json:"provider"`
	Prompt   string `json:"prompt"`
	Context  string `json:"context"`
}

type GenerateResponse struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	provider := req.Provider
	if provider == "" {
		provider = s.cfg.DefaultProvider
	}
	if id, ok := formula.ProviderFor(provider); ok {
		provider = id
	}

	text, err := s.llm.Dispatch(r.Context(), llm.Request{Provider: provider, Prompt: req.Prompt, Context: req.Context})
	if err != nil {
		kind := llm.KindOf(err)
		writeJSON(w, statusFor(kind), GenerateResponse{
			Error: formula.Format(err),
			Kind:  kind.String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, GenerateResponse{Text: text})
}

func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		c := credentials.Load(s.keys)
		if reveal, _ := strconv.ParseBool(r.URL.Query().Get("reveal")); !reveal {
			c = credentials.Credentials{
				Gemini:   credentials.Mask(c.Gemini),
				ChatGPT:  credentials.Mask(c.ChatGPT),
				DeepSeek: credentials.Mask(c.DeepSeek),
			}
		}
		writeJSON(w, http.StatusOK, c)

	case http.MethodPost:
		var u credentials.Update
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&u); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := credentials.Save(s.keys, u); err != nil {
			s.log.Error().Str("event", logging.EventSettings).Err(err).Msg("saving credentials failed")
			http.Error(w, "Could not save credentials", http.StatusInternalServerError)
			return
		}
		s.log.Info().Str("event", logging.EventSettings).
			Bool("gemini", u.Gemini != nil).Bool("chatgpt", u.ChatGPT != nil).Bool("deepseek", u.DeepSeek != nil).
			Msg("credentials saved")
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleHelp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, ui.HelpText())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.stats == nil {
		http.Error(w, "Metrics are disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Summary metrics.Summary `json:"summary"`
		Metrics metrics.Metrics `json:"metrics"`
	}{s.stats.GetSummary(), s.stats.GetMetrics()})
}

func (s *Server) handlePrometheus(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		http.Error(w, "Metrics are disabled", http.StatusNotFound)
		return
	}
	s.stats.Handler().ServeHTTP(w, r)
}

// auth requires X-Auth-Token when a server token is configured.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("X-Auth-Token") != s.token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(logging.WithRequestID(r.Context(), id)))

		s.log.Info().Str("event", logging.EventRequest).Str("request_id", id).
			Str("method", r.Method).Str("path", r.URL.Path).Int("status", rec.status).
			Float64("elapsed_ms", logging.Elapsed(start)).Msg("request")
	})
}

func statusFor(kind llm.Kind) int {
	switch kind {
	case llm.KindInvalidProvider, llm.KindEmptyPrompt, llm.KindContextResolution:
		return http.StatusBadRequest
	case llm.KindMissingCredential:
		return http.StatusPreconditionFailed
	case llm.KindTransport, llm.KindMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
