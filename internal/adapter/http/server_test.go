package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/repeater-data-etl/internal/adapter/http"
	"github.com/couchcryptid/repeater-data-etl/internal/domain"
	"github.com/couchcryptid/repeater-data-etl/internal/model"
	"github.com/couchcryptid/repeater-data-etl/internal/pipeline"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type staticSummary struct {
	summary *pipeline.Summary
}

func (s staticSummary) Last() *pipeline.Summary { return s.summary }

func f(v float64) *float64 { return &v }

func testSummary() *pipeline.Summary {
	rec := domain.NormalizedRecord{
		RX:       f(145),
		TX:       f(145.6),
		Offset:   f(0.6),
		Color:    f(1),
		Timeslot: []int{1},
		Info:     domain.Info{DMRID: f(123)},
		Location: domain.Location{State: "sp", City: "Sao Paulo"},
	}
	return &pipeline.Summary{
		RunID:      "run-1",
		States:     []string{"sp"},
		RecordsIn:  2,
		RecordsOut: 1,
		Dropped:    map[string]int{"country": 1},
		Contents:   map[string][]domain.NormalizedRecord{"sp": {rec}},
		Files:      []string{"out/uf/sp/sp.json"},
	}
}

func newTestServer(readyErr error, summary *pipeline.Summary, models ...model.Model) *httpadapter.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, staticSummary{summary}, models, logger)
}

func get(srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(newTestServer(nil, nil), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(newTestServer(nil, nil), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(newTestServer(fmt.Errorf("no run has completed yet"), nil), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(newTestServer(nil, nil), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStatesBeforeFirstRun(t *testing.T) {
	srv := newTestServer(nil, nil)
	for _, path := range []string{"/states", "/states/sp", "/states/sp/rt4d.csv"} {
		rec := get(srv, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestStatesSummary(t *testing.T) {
	rec := get(newTestServer(nil, testSummary()), "/states")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, []any{"sp"}, body["states"])
	assert.InDelta(t, 1.0, body["records_out"], 0)
	assert.NotContains(t, body, "Contents")
}

func TestStateJSON(t *testing.T) {
	rec := get(newTestServer(nil, testSummary()), "/states/SP")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"sp":[{"rx":145,"tx":145.6,"offset":0.6,"color":1,"timeslot":[1],
		"info":{"dmr_id":123},"location":["SP","Sao Paulo"]}]}`, rec.Body.String())
}

func TestStateJSONEmptyGroup(t *testing.T) {
	rec := get(newTestServer(nil, testSummary()), "/states/ac")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ac":[]}`, rec.Body.String())
}

func TestStateUnknownCode(t *testing.T) {
	rec := get(newTestServer(nil, testSummary()), "/states/xx")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStateCSV(t *testing.T) {
	rec := get(newTestServer(nil, testSummary(), model.RT4D), "/states/sp/rt4d.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `sp.rt4d.csv`)

	lines := strings.Split(rec.Body.String(), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `"CH","RX Freq"`))
	assert.True(t, strings.HasPrefix(lines[1], `1,145.00000,145.60000,"Digital"`))
}

func TestStateCSVUsesConfiguredModel(t *testing.T) {
	tuned := model.RT4D.WithDelimiter(";")
	rec := get(newTestServer(nil, testSummary(), tuned), "/states/sp/rt4d.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), `"CH";"RX Freq"`))
}

func TestStateCSVUnknownModel(t *testing.T) {
	srv := newTestServer(nil, testSummary())
	assert.Equal(t, http.StatusNotFound, get(srv, "/states/sp/ic705.csv").Code)
	assert.Equal(t, http.StatusNotFound, get(srv, "/states/sp/rt4d.txt").Code)
}
