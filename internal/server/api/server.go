package api

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"

	"github.com/dmitrijs2005/releasekeeper/internal/logging"
)

const (
	maxBodySize     = 1 << 20
	shutdownTimeout = 5 * time.Second
)

type Server struct {
	address        string
	handler        *Handler
	logger         logging.Logger
	requestTimeout time.Duration
	rateLimit      int
	rateWindow     time.Duration
}

type ServerOption func(*Server)

// WithRateLimit caps envelope requests per client IP. n <= 0 disables it.
func WithRateLimit(n int, window time.Duration) ServerOption {
	return func(s *Server) {
		s.rateLimit = n
		s.rateWindow = window
	}
}

func NewServer(address string, h *Handler, requestTimeout time.Duration, l logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		address:        address,
		handler:        h,
		logger:         l.With("module", "http_server"),
		requestTimeout: requestTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router builds the chi mux serving the envelope endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors)
	if s.rateLimit > 0 {
		r.Use(httprate.LimitByIP(s.rateLimit, s.rateWindow))
	}

	r.Post("/", s.serveEnvelope)
	r.Post("/api", s.serveEnvelope)
	r.Options("/", preflight)
	r.Options("/api", preflight)

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "OPTIONS,POST")
		next.ServeHTTP(w, r)
	})
}

func preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) serveEnvelope(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}
	logger := s.logger.With("request_id", middleware.GetReqID(ctx))

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	var resp Response
	if err != nil {
		logger.Warn(ctx, "failed to read request body", "error", err)
		resp = invalid("request must be in JSON format")
	} else {
		resp = s.handler.Invoke(ctx, logger, raw)
	}

	// Work finished past the deadline may not have been persisted.
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		resp = Response{StatusCode: http.StatusGatewayTimeout, Body: msgTimedOut}
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		logger.Error(ctx, "request failed", "status", resp.StatusCode)
	} else {
		logger.Debug(ctx, "request served", "status", resp.StatusCode)
	}

	render.Status(r, resp.StatusCode)
	render.JSON(w, r, resp)
}

func (s *Server) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "server shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
