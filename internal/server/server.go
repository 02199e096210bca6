package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"github.com/penwyp/podscope/internal/data/aggregator"
	"github.com/penwyp/podscope/internal/data/csvingest"
	"github.com/penwyp/podscope/internal/feed"
	"github.com/penwyp/podscope/internal/feed/localfs"
	"github.com/penwyp/podscope/internal/stream"
	"github.com/penwyp/podscope/internal/util"
)

// SliderTarget is the writable resource slider commands are appended to.
type SliderTarget struct {
	Fetcher  feed.Fetcher
	Writer   feed.Writer
	Resource string
}

// EDFOptions locates the recording served by the streaming endpoints.
type EDFOptions struct {
	// Path wins over SessionsDir when set.
	Path        string
	SessionsDir string
	Channel     string
}

// Options wires the server to its collaborators. Optional fields disable the
// endpoints that need them.
type Options struct {
	Addr         string
	Store        *aggregator.Store
	Ingestor     *csvingest.Ingestor
	// CSVDir confines CSV files loaded by path; empty disables path loading.
	CSVDir       string
	Sessions     *stream.Manager
	Slider       *SliderTarget
	EDF          EDFOptions
	Metrics      http.Handler
	// Status reports runtime state for GET /api/status.
	Status       func() interface{}
	TimeProvider *util.TimeProvider
}

// Server is the HTTP API.
type Server struct {
	opts    Options
	mux     *http.ServeMux
	http    *http.Server
	csvRoot *localfs.Store
}

// New builds the routes.
func New(opts Options) *Server {
	if opts.TimeProvider == nil {
		opts.TimeProvider = util.GetTimeProvider()
	}
	if opts.Ingestor == nil {
		opts.Ingestor = csvingest.NewIngestor(opts.TimeProvider.Location())
	}
	s := &Server{opts: opts, mux: http.NewServeMux()}
	if opts.CSVDir != "" {
		root, err := localfs.New(opts.CSVDir)
		if err != nil {
			util.LogWarn("CSV loading by path disabled", util.F("dir", opts.CSVDir), util.F("error", err))
		} else {
			s.csvRoot = root
		}
	}
	s.routes()
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/points", s.handlePoints)
	s.mux.HandleFunc("GET /api/summary", s.handleSummary)
	s.mux.HandleFunc("POST /api/csv/load", s.handleLoadCSV)
	s.mux.HandleFunc("DELETE /api/csv", s.handleClearCSV)
	s.mux.HandleFunc("GET /api/updates", s.handleUpdates)
	s.mux.HandleFunc("DELETE /api/updates", s.handleClearUpdates)
	s.mux.HandleFunc("POST /api/slider", s.handleSliderAppend)
	s.mux.HandleFunc("DELETE /api/slider", s.handleSliderClear)

	s.mux.HandleFunc("GET /api/edf/info", s.handleEDFInfo)
	s.mux.HandleFunc("GET /api/edf/stream", s.handleEDFStream(stream.KindSamples))
	s.mux.HandleFunc("GET /api/edf/plot/stream", s.handleEDFStream(stream.KindSnapshots))
	s.mux.HandleFunc("GET /api/edf/ws", s.handleEDFWebSocket)
	s.mux.HandleFunc("DELETE /api/edf/sessions/{id}", s.handleCloseSession)

	if s.opts.Metrics != nil {
		s.mux.Handle("GET /metrics", s.opts.Metrics)
	}
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		util.LogInfof("HTTP API listening on %s", s.opts.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if s.opts.Sessions != nil {
			s.opts.Sessions.Shutdown()
		}
		return s.http.Shutdown(shutdownCtx)
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		util.LogError("Encode response failed", util.F("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// statusFor maps boundary errors to HTTP statuses.
func statusFor(err error) int {
	var status statusError
	switch {
	case errors.As(err, &status):
		return status.code
	case errors.Is(err, feed.ErrNotFound),
		errors.Is(err, stream.ErrSessionNotFound),
		errors.Is(err, stream.ErrNoEDFFiles):
		return http.StatusNotFound
	case errors.Is(err, csvingest.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, localfs.ErrOutsideRoot):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// statusError carries an explicit status for request validation failures.
type statusError struct {
	code int
	err  error
}

func (e statusError) Error() string { return e.err.Error() }
func (e statusError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return statusError{code: http.StatusBadRequest, err: err}
}

func badGateway(err error) error {
	return statusError{code: http.StatusBadGateway, err: err}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Status == nil {
		writeError(w, statusError{code: http.StatusServiceUnavailable, err: errStatusDisabled})
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Status())
}
