package metrics_test

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/data/aggregator"
	"github.com/penwyp/podscope/internal/feed"
	"github.com/penwyp/podscope/internal/metrics"
	"github.com/penwyp/podscope/internal/stream"
)

func TestStoreObserver(t *testing.T) {
	m := metrics.New()
	m.ObserveMerge(aggregator.MergeResult{Added: make([]model.Point, 3), Duplicates: 2, Evicted: 1})
	m.ObserveMerge(aggregator.MergeResult{Added: make([]model.Point, 1)})
	m.ObserveSizes(4, 10)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.PointsMerged))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PointsDuplicate))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PointsEvicted))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.StoreSize.WithLabelValues("live")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.StoreSize.WithLabelValues("csv")))
}

func TestFeedObserver(t *testing.T) {
	m := metrics.New()
	m.ObserveNotification("modbus")
	m.ObserveNotification("modbus")
	m.ObservePull("modbus", nil)
	m.ObservePull("modbus", errors.New("timeout"))

	tests := []struct {
		cause error
		label string
	}{
		{cause: nil, label: "unsubscribed"},
		{cause: feed.ErrUnsubscribed, label: "unsubscribed"},
		{cause: fmt.Errorf("socket: %w", feed.ErrChannelClosed), label: "channel_closed"},
		{cause: errors.New("boom"), label: "error"},
	}
	for _, tt := range tests {
		m.ObserveSubscriptionEnd("r-"+tt.label, tt.cause)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Notifications.WithLabelValues("modbus")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pulls.WithLabelValues("modbus", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pulls.WithLabelValues("modbus", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SubscriptionEnds.WithLabelValues("r-unsubscribed", "unsubscribed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscriptionEnds.WithLabelValues("r-channel_closed", "channel_closed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscriptionEnds.WithLabelValues("r-error", "error")))
}

func TestSessionObserver(t *testing.T) {
	m := metrics.New()
	m.SessionOpened(stream.KindSamples)
	m.SessionOpened(stream.KindSamples)
	m.EventEmitted(stream.KindSamples)
	m.SessionEnded(stream.KindSamples, stream.StateExhausted)
	m.ObserveBusMessage(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive.WithLabelValues("samples")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsEnded.WithLabelValues("samples", "exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamEvents.WithLabelValues("samples")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BusMessages.WithLabelValues("ok")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := metrics.New()
	m.ObserveMerge(aggregator.MergeResult{Added: make([]model.Point, 7)})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "podscope_store_points_merged_total 7")
}
