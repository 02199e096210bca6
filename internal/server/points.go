package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/data/aggregator"
	"github.com/penwyp/podscope/internal/data/normalizer"
)

const maxCSVBody = 32 << 20

type pointsResponse struct {
	Mode   string                          `json:"mode"`
	Type   string                          `json:"type"`
	Total  int                             `json:"total"`
	Groups map[string][]model.DisplayPoint `json:"groups"`
}

func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, err := model.ParseGroupingMode(q.Get("mode"))
	if err != nil {
		writeError(w, badRequest(err))
		return
	}
	filter, err := model.ParseKindFilter(q.Get("type"))
	if err != nil {
		writeError(w, badRequest(err))
		return
	}
	includeCSV := true
	if raw := q.Get("csv"); raw != "" {
		if includeCSV, err = strconv.ParseBool(raw); err != nil {
			writeError(w, badRequest(fmt.Errorf("invalid csv flag '%s'", raw)))
			return
		}
	}

	view := s.opts.Store.View(mode, filter, includeCSV)
	writeJSON(w, http.StatusOK, pointsResponse{
		Mode:   string(mode),
		Type:   string(filter),
		Total:  view.Len(),
		Groups: aggregator.ToDisplay(view, s.opts.TimeProvider.Location()),
	})
}

type summaryResponse struct {
	model.Summary
	CSV model.CSVSummary `json:"csv"`
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, summaryResponse{
		Summary: s.opts.Store.Summary(),
		CSV:     s.opts.Store.CSVSummary(),
	})
}

type loadRequest struct {
	Path string `json:"path"`
}

type loadResponse struct {
	Success bool             `json:"success"`
	Loaded  int              `json:"loaded"`
	CSV     model.CSVSummary `json:"csv"`
}

// ingestPath reads a CSV file inside the configured CSV directory.
func (s *Server) ingestPath(path string) ([]model.Point, error) {
	if s.csvRoot == nil {
		return nil, statusError{code: http.StatusForbidden, err: errCSVPathDisabled}
	}
	resolved, err := s.csvRoot.Contain(path)
	if err != nil {
		return nil, err
	}
	points, err := s.opts.Ingestor.IngestFile(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, statusError{code: http.StatusNotFound, err: fmt.Errorf("csv file %q not found", path)}
	}
	return points, err
}

// handleLoadCSV accepts either a JSON body naming a file inside the CSV
// directory or the CSV text itself, plain or gzip-compressed.
func (s *Server) handleLoadCSV(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCSVBody))
	if err != nil {
		writeError(w, badRequest(fmt.Errorf("read body: %w", err)))
		return
	}

	var points []model.Point
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req loadRequest
		if err := sonic.Unmarshal(body, &req); err != nil {
			writeError(w, badRequest(fmt.Errorf("decode request: %w", err)))
			return
		}
		if req.Path == "" {
			writeError(w, badRequest(fmt.Errorf("path is required")))
			return
		}
		points, err = s.ingestPath(req.Path)
	} else {
		points, err = s.opts.Ingestor.IngestReader(bytes.NewReader(body))
	}
	if err != nil {
		writeError(w, err)
		return
	}

	loaded := s.opts.Store.LoadCSV(normalizer.ForCSV(s.opts.TimeProvider).Normalize(points))
	writeJSON(w, http.StatusOK, loadResponse{Success: true, Loaded: loaded, CSV: s.opts.Store.CSVSummary()})
}

func (s *Server) handleClearCSV(w http.ResponseWriter, _ *http.Request) {
	s.opts.Store.ClearCSV()
	w.WriteHeader(http.StatusNoContent)
}

type updatesResponse struct {
	Updates []string `json:"updates"`
}

func (s *Server) handleUpdates(w http.ResponseWriter, _ *http.Request) {
	updates := s.opts.Store.Updates()
	if updates == nil {
		updates = []string{}
	}
	writeJSON(w, http.StatusOK, updatesResponse{Updates: updates})
}

func (s *Server) handleClearUpdates(w http.ResponseWriter, _ *http.Request) {
	s.opts.Store.UpdateLog().Clear()
	w.WriteHeader(http.StatusNoContent)
}
