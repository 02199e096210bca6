package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/penwyp/podscope/internal/core/constants"
	"github.com/penwyp/podscope/internal/data/parser"
	"github.com/penwyp/podscope/internal/feed"
	"github.com/penwyp/podscope/internal/util"
)

var (
	errStreamingDisabled = errors.New("streaming is not configured")
	errSliderDisabled    = errors.New("no slider resource configured")
	errStatusDisabled    = errors.New("status is not available")
	errCSVPathDisabled   = errors.New("loading CSV files by path is not configured")
)

type sliderRequest struct {
	Value string `json:"value"`
}

type sliderResponse struct {
	Success bool   `json:"success"`
	Line    string `json:"line,omitempty"`
}

func (s *Server) sliderTarget() (*SliderTarget, error) {
	if s.opts.Slider == nil || s.opts.Slider.Writer == nil {
		return nil, statusError{code: http.StatusServiceUnavailable, err: errSliderDisabled}
	}
	return s.opts.Slider, nil
}

// handleSliderAppend appends a timestamped command line to the slider resource.
func (s *Server) handleSliderAppend(w http.ResponseWriter, r *http.Request) {
	target, err := s.sliderTarget()
	if err != nil {
		writeError(w, err)
		return
	}
	var req sliderRequest
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest(fmt.Errorf("decode request: %w", err)))
		return
	}
	value := strings.TrimSpace(req.Value)
	if value == "" || strings.Contains(value, "\n") {
		writeError(w, badRequest(errors.New("value must be a single non-empty line")))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.FetchTimeout)
	defer cancel()

	current := ""
	if target.Fetcher != nil {
		current, err = target.Fetcher.Fetch(ctx, target.Resource)
		if err != nil && !errors.Is(err, feed.ErrNotFound) {
			writeError(w, badGateway(err))
			return
		}
	}

	now := s.opts.TimeProvider.Now()
	content := parser.AppendSliderCommand(current, value, now)
	if err := target.Writer.Write(ctx, target.Resource, content); err != nil {
		writeError(w, badGateway(err))
		return
	}
	line := "[" + parser.FormatSliderClock(now) + "]: " + value
	util.LogInfo("Slider command written", util.F("resource", target.Resource), util.F("value", value))
	writeJSON(w, http.StatusOK, sliderResponse{Success: true, Line: line})
}

func (s *Server) handleSliderClear(w http.ResponseWriter, r *http.Request) {
	target, err := s.sliderTarget()
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), constants.FetchTimeout)
	defer cancel()
	if err := target.Writer.Write(ctx, target.Resource, ""); err != nil {
		writeError(w, badGateway(err))
		return
	}
	writeJSON(w, http.StatusOK, sliderResponse{Success: true})
}
