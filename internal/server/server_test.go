package server_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/data/aggregator"
	"github.com/penwyp/podscope/internal/feed/localfs"
	"github.com/penwyp/podscope/internal/metrics"
	"github.com/penwyp/podscope/internal/server"
	"github.com/penwyp/podscope/internal/stream"
	"github.com/penwyp/podscope/internal/util"
)

var now = time.Date(2024, 3, 10, 15, 4, 5, 0, time.UTC)

const csvText = "timestamp,deviceId,dataType,register,value,function\n" +
	"2024-03-10T12:00:00Z,sim-1,modbus,3,7,F1\n" +
	"2024-03-10T12:00:01Z,sim-1,slider,,42,Slider\n"

type fixture struct {
	store   *aggregator.Store
	csvDir  string
	pod     *localfs.Store
	srv     *server.Server
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, edf server.EDFOptions) *fixture {
	t.Helper()
	tp, err := util.NewTimeProvider("UTC")
	require.NoError(t, err)
	tp.SetNowFunc(func() time.Time { return now })

	m := metrics.New()
	store := aggregator.NewStore(aggregator.StoreOptions{TimeProvider: tp, Observer: m})
	pod, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	csvDir := t.TempDir()

	srv := server.New(server.Options{
		Store:        store,
		CSVDir:       csvDir,
		Sessions:     stream.NewManager(stream.Options{SampleInterval: time.Millisecond, Observer: m}),
		Slider:       &server.SliderTarget{Fetcher: pod, Writer: pod, Resource: "esp/modbus"},
		EDF:          edf,
		Metrics:      m.Handler(),
		TimeProvider: tp,
	})
	return &fixture{store: store, csvDir: csvDir, pod: pod, srv: srv, metrics: m}
}

func (f *fixture) do(t *testing.T, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func livePoints() []model.Point {
	reg := model.NewRegisterPoint(7, 3, "F1", now.Add(-time.Minute).Unix())
	reg.Provenance = model.ProvenancePodLive
	reg.DeviceID = "esp-device"
	slider := model.NewSliderPoint(42, now.Add(-30*time.Second), "slider1", "[3:03:35 PM]: 42")
	slider.Provenance = model.ProvenancePodLive
	slider.DeviceID = "esp-device"
	return []model.Point{reg, slider}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, server.EDFOptions{})
	rec := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestPointsGroupedByMode(t *testing.T) {
	f := newFixture(t, server.EDFOptions{})
	f.store.Merge(livePoints())
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/csv/load", "text/csv", csvText).Code)

	tests := []struct {
		name   string
		query  string
		groups []string
		total  float64
	}{
		{name: "device default", query: "", groups: []string{"esp-device", "sim-1"}, total: 4},
		{name: "source", query: "?mode=source", groups: []string{"CSV: sim-1", "Solid Pod: esp-device"}, total: 4},
		{name: "combined", query: "?mode=combined", groups: []string{"All Data"}, total: 4},
		{name: "sliders only", query: "?mode=combined&type=slider", groups: []string{"All Data"}, total: 2},
		{name: "live only", query: "?csv=false", groups: []string{"esp-device"}, total: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/points"+tt.query, "", "")
			require.Equal(t, http.StatusOK, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tt.total, body["total"])
			groups := body["groups"].(map[string]interface{})
			var keys []string
			for k := range groups {
				keys = append(keys, k)
			}
			assert.ElementsMatch(t, tt.groups, keys)
		})
	}
}

func TestPointsDisplayFields(t *testing.T) {
	f := newFixture(t, server.EDFOptions{})
	f.store.Merge(livePoints()[:1])

	body := decode(t, f.do(t, http.MethodGet, "/api/points", "", ""))
	group := body["groups"].(map[string]interface{})["esp-device"].([]interface{})
	require.Len(t, group, 1)
	point := group[0].(map[string]interface{})
	assert.Equal(t, "Register 3", point["name"])
	assert.Equal(t, "15:03:05", point["time"])
	assert.Equal(t, "register", point["type"])
	assert.Equal(t, 3.0, point["register"])
}

func TestPointsRejectsBadQuery(t *testing.T) {
	f := newFixture(t, server.EDFOptions{})
	for _, q := range []string{"?mode=weekly", "?type=video", "?csv=maybe"} {
		rec := f.do(t, http.MethodGet, "/api/points"+q, "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, false, decode(t, rec)["success"])
	}
}

func TestSummary(t *testing.T) {
	f := newFixture(t, server.EDFOptions{})
	f.store.Merge(livePoints())
	f.do(t, http.MethodPost, "/api/csv/load", "text/csv", csvText)

	body := decode(t, f.do(t, http.MethodGet, "/api/summary", "", ""))
	assert.Equal(t, 4.0, body["total"])
	byKind := body["countByKind"].(map[string]interface{})
	assert.Equal(t, 2.0, byKind["register"])
	assert.Equal(t, 2.0, byKind["slider"])
	csv := body["csv"].(map[string]interface{})
	assert.Equal(t, 2.0, csv["total"])
	assert.Equal(t, 1.0, csv["modbus"])
	assert.Equal(t, 1.0, csv["slider"])
}

func TestCSVLoadFromPathAndClear(t *testing.T) {
	f := newFixture(t, server.EDFOptions{})
	require.NoError(t, os.MkdirAll(filepath.Join(f.csvDir, "runs"), 0o755))
	path := filepath.Join(f.csvDir, "runs", "sample.csv")
	require.NoError(t, os.WriteFile(path, []byte(csvText), 0o644))

	for _, target := range []string{"runs/sample.csv", path} {
		rec := f.do(t, http.MethodPost, "/api/csv/load", "application/json", `{"path":"`+target+`"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 2.0, decode(t, rec)["loaded"])
		assert.Len(t, f.store.CSV(), 2)
	}

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/csv", "", "").Code)
	assert.Empty(t, f.store.CSV())
}

func TestCSVLoadErrors(t *testing.T) {
	f := newFixture(t, server.EDFOptions{})
	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
	}{
		{name: "empty text", contentType: "text/csv", body: "", status: http.StatusBadRequest},
		{name: "bad json", contentType: "application/json", body: "{", status: http.StatusBadRequest},
		{name: "missing path", contentType: "application/json", body: `{}`, status: http.StatusBadRequest},
		{name: "missing file", contentType: "application/json", body: `{"path":"missing.csv"}`, status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/csv/load", tt.contentType, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestCSVLoadRejectsPathsOutsideDir(t *testing.T) {
	f := newFixture(t, server.EDFOptions{})
	outside := filepath.Join(t.TempDir(), "secret.csv")
	require.NoError(t, os.WriteFile(outside, []byte(csvText), 0o644))
	rel, err := filepath.Rel(f.csvDir, outside)
	require.NoError(t, err)

	for _, target := range []string{"../secret.csv", rel, outside, "/etc/passwd", "/does/not/exist.csv"} {
		t.Run(target, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/csv/load", "application/json", `{"path":"`+target+`"}`)
			assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "no such file")
			assert.Empty(t, f.store.CSV())
		})
	}
}

func TestCSVLoadByPathDisabledWithoutDir(t *testing.T) {
	srv := server.New(server.Options{Store: aggregator.NewStore(aggregator.StoreOptions{})})
	path := filepath.Join(t.TempDir(), "sample.csv")
	require.NoError(t, os.WriteFile(path, []byte(csvText), 0o644))

	req := httptest.NewRequest(http.MethodPost, "/api/csv/load", strings.NewReader(`{"path":"`+path+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
}

func TestCSVLoadGzipBody(t *testing.T) {
	f := newFixture(t, server.EDFOptions{})
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(csvText))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	rec := f.do(t, http.MethodPost, "/api/csv/load", "application/gzip", buf.String())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2.0, decode(t, rec)["loaded"])
	assert.Len(t, f.store.CSV(), 2)
}

func TestUpdates(t *testing.T) {
	f := newFixture(t, server.EDFOptions{})
	body := decode(t, f.do(t, http.MethodGet, "/api/updates", "", ""))
	assert.Equal(t, []interface{}{}, body["updates"])

	f.store.Merge(livePoints())
	body = decode(t, f.do(t, http.MethodGet, "/api/updates", "", ""))
	assert.Len(t, body["updates"], 2)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/updates", "", "").Code)
	assert.Empty(t, f.store.Updates())
}

func TestSliderAppendAndClear(t *testing.T) {
	f := newFixture(t, server.EDFOptions{})

	rec := f.do(t, http.MethodPost, "/api/slider", "application/json", `{"value":"42"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "[3:04:05 PM]: 42", decode(t, rec)["line"])

	f.do(t, http.MethodPost, "/api/slider", "application/json", `{"value":"43"}`)
	content, err := f.pod.Fetch(context.Background(), "esp/modbus")
	require.NoError(t, err)
	assert.Equal(t, "[3:04:05 PM]: 42\n[3:04:05 PM]: 43", content)

	rec = f.do(t, http.MethodDelete, "/api/slider", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	content, err = f.pod.Fetch(context.Background(), "esp/modbus")
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestSliderRejectsBadValue(t *testing.T) {
	f := newFixture(t, server.EDFOptions{})
	for _, body := range []string{`{"value":""}`, `{"value":"1\n2"}`, `nope`} {
		rec := f.do(t, http.MethodPost, "/api/slider", "application/json", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestSliderDisabled(t *testing.T) {
	srv := server.New(server.Options{Store: aggregator.NewStore(aggregator.StoreOptions{})})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/slider", strings.NewReader(`{"value":"1"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, server.EDFOptions{})
	f.store.Merge(livePoints())
	rec := f.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "podscope_store_points_merged_total 2")
}

func TestStatus(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, server.EDFOptions{})
		assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/status", "", "").Code)
	})

	t.Run("reported", func(t *testing.T) {
		srv := server.New(server.Options{
			Store:  aggregator.NewStore(aggregator.StoreOptions{}),
			Status: func() interface{} { return map[string]int{"live": 3} },
		})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 3.0, decode(t, rec)["live"])
	})
}
