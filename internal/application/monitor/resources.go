package monitor

import (
	"fmt"
	"net/http"

	"github.com/penwyp/podscope/internal/config"
	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/data/normalizer"
	"github.com/penwyp/podscope/internal/data/parser"
	"github.com/penwyp/podscope/internal/feed"
	"github.com/penwyp/podscope/internal/feed/localfs"
	"github.com/penwyp/podscope/internal/feed/solid"
	"github.com/penwyp/podscope/internal/util"
)

// Boundary is everything the monitor needs from a pod: reads, writes and
// change notifications.
type Boundary interface {
	feed.Fetcher
	feed.Writer
	feed.ChannelProvider
}

// NewBoundary picks the pod implementation for cfg. A watch directory wins over
// a base URI; with neither set there is no boundary and nil is returned.
func NewBoundary(cfg config.PodConfig) (Boundary, error) {
	switch {
	case cfg.WatchDir != "":
		store, err := localfs.New(cfg.WatchDir)
		if err != nil {
			return nil, fmt.Errorf("open watch dir: %w", err)
		}
		util.LogInfo("Using local pod directory", util.F("dir", store.Root()))
		return store, nil
	case cfg.BaseURI != "":
		header := http.Header{}
		if cfg.Token != "" {
			header.Set("Authorization", "Bearer "+cfg.Token)
		}
		util.LogInfo("Using pod server", util.F("base_uri", cfg.BaseURI))
		return solid.NewClient(solid.Options{BaseURI: cfg.BaseURI, Header: header}), nil
	default:
		return nil, nil
	}
}

// ResourceParser parses a fetched blob with the format configured for its
// resource and normalizes the result as pod data.
type ResourceParser struct {
	parser     *parser.Parser
	normalizer *normalizer.Normalizer
	formats    map[string]parser.Format
}

// NewResourceParser indexes the configured formats by resource URL.
func NewResourceParser(p *parser.Parser, n *normalizer.Normalizer, resources []config.Resource) *ResourceParser {
	formats := make(map[string]parser.Format, len(resources))
	for _, r := range resources {
		format, err := parser.ParseFormat(r.Format)
		if err != nil {
			format = parser.FormatAuto
		}
		formats[r.URL] = format
	}
	return &ResourceParser{parser: p, normalizer: n, formats: formats}
}

// Parse implements feed.ParseFunc.
func (rp *ResourceParser) Parse(resource, blob string) []model.Point {
	format, ok := rp.formats[resource]
	if !ok {
		format = parser.FormatAuto
	}
	return rp.normalizer.Normalize(rp.parser.ParseBlob(format, blob))
}
