package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/repeater-data-etl/internal/domain"
	"github.com/couchcryptid/repeater-data-etl/internal/matcher"
	"github.com/couchcryptid/repeater-data-etl/internal/observability"
	"github.com/couchcryptid/repeater-data-etl/internal/pipeline"
)

// --- mocks ---

type mockLoader struct {
	data    []byte
	err     error
	calls   atomic.Int32
	forgets atomic.Int32
}

func (m *mockLoader) Load(context.Context, []string, string) ([]byte, error) {
	m.calls.Add(1)
	return m.data, m.err
}

func (m *mockLoader) Forget(string) { m.forgets.Add(1) }

type mockIndex struct {
	names []string
	err   error
	calls atomic.Int32
}

func (m *mockIndex) Names(context.Context) ([]string, error) {
	m.calls.Add(1)
	return m.names, m.err
}

type saved struct {
	state   string
	records []domain.NormalizedRecord
}

type recordingSaver struct {
	mu    sync.Mutex
	saved []saved
	err   error
}

func (s *recordingSaver) Save(_ context.Context, state string, records []domain.NormalizedRecord) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.saved = append(s.saved, saved{state: state, records: records})
	return []string{state + ".json"}, nil
}

type allRecordingSaver struct {
	recordingSaver
	all []domain.NormalizedRecord
}

func (s *allRecordingSaver) SaveAll(_ context.Context, records []domain.NormalizedRecord) ([]string, error) {
	s.all = records
	return []string{"repeaters.csv"}, nil
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testIndex = []string{
	"campinas", "sao jose dos campos", "santos", "rio de janeiro",
	"niteroi", "curitiba", "alvares machado", "avare", "sao paulo",
}

func matcherFactory(calls *atomic.Int32) pipeline.MatcherFactory {
	return func(index []string) (domain.CityMatcher, error) {
		if calls != nil {
			calls.Add(1)
		}
		return matcher.New(index, matcher.DefaultConfig()), nil
	}
}

func newProcessor(loader pipeline.Loader, saver pipeline.Saver, workers int) *pipeline.Processor {
	return pipeline.New(loader, &mockIndex{names: testIndex}, saver, pipeline.Options{
		Sources:    []string{"rptrs.json"},
		CacheKey:   "radioid",
		Workers:    workers,
		NewMatcher: matcherFactory(nil),
	}, discardLogger(), newTestMetrics())
}

type rawRecord map[string]any

func dataset(t *testing.T, recs ...rawRecord) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{"rptrs": recs})
	require.NoError(t, err)
	return data
}

func active(state, city string, freq float64) rawRecord {
	return rawRecord{
		"state": state, "city": city, "country": "Brazil", "status": "Active",
		"frequency": freq, "offset": -5, "color_code": 1,
	}
}

// --- tests ---

func TestProcessor_EndToEndScenario(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	domain.SetClock(fake)
	defer domain.SetClock(nil)

	data := []byte(`{"rptrs":[{"state":"SP","country":"Brazil","status":"Active","city":"Sao Paulo - SP","frequency":145.0,"offset":0.6,"color_code":"1","id":"123","ts_linked":"TS1"}]}`)
	saver := &recordingSaver{}
	p := newProcessor(&mockLoader{data: data}, saver, 1)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"sp"}, summary.States)
	assert.Equal(t, 1, summary.TotalStates())
	assert.Equal(t, 1, summary.RecordsIn)
	assert.Equal(t, 1, summary.RecordsOut)
	assert.Equal(t, fake.Now(), summary.GeneratedAt)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, []string{"sp.json"}, summary.Files)

	require.Len(t, saver.saved, 1)
	out, err := json.Marshal(saver.saved[0].records[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"rx": 145, "tx": 145.6, "offset": 0.6, "color": 1, "timeslot": [1],
		"info": {"dmr_id": 123},
		"location": ["SP", "Sao Paulo"]
	}`, string(out))

	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.Same(t, summary, p.Last())
}

func TestProcessor_NotReadyBeforeFirstRun(t *testing.T) {
	p := newProcessor(&mockLoader{}, &recordingSaver{}, 1)
	require.Error(t, p.CheckReadiness(context.Background()))
	assert.Nil(t, p.Last())
}

func TestProcessor_DuplicateIndexFollowsInputOrder(t *testing.T) {
	a := active("SP", "Campinas", 439.1)
	b := active("SP", "Campinas - SP", 439.2)
	c := active("SP", "campinas", 439.3)

	rxByIndex := func(recs ...rawRecord) map[int]float64 {
		saver := &recordingSaver{}
		p := newProcessor(&mockLoader{data: dataset(t, recs...)}, saver, 1)
		_, err := p.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, saver.saved, 1)

		got := make(map[int]float64)
		for _, r := range saver.saved[0].records {
			assert.Equal(t, "Campinas", r.City())
			got[r.Location.Index] = *r.RX
		}
		return got
	}

	assert.Equal(t, map[int]float64{0: 439.1, 1: 439.2, 2: 439.3}, rxByIndex(a, b, c))
	assert.Equal(t, map[int]float64{0: 439.3, 1: 439.1, 2: 439.2}, rxByIndex(c, a, b))
}

func TestProcessor_GroupsInFirstSeenOrderAndSortsCities(t *testing.T) {
	data := dataset(t,
		active("RJ", "Niteroi", 1),
		active("SP", "Campinas", 2),
		active("SP", "Álvares Machado", 3),
		active("RJ", "Rio de Janeiro", 4),
		active("SP", "Avaré", 5),
		active("SP", "Campinas", 6),
	)
	saver := &recordingSaver{}
	p := newProcessor(&mockLoader{data: data}, saver, 1)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"rj", "sp"}, summary.States)

	var cities []string
	var rx []float64
	for _, r := range summary.Contents["sp"] {
		cities = append(cities, r.City())
		rx = append(rx, *r.RX)
	}
	assert.Equal(t, []string{"Álvares Machado", "Avaré", "Campinas", "Campinas"}, cities)
	assert.Equal(t, []float64{3, 5, 2, 6}, rx, "equal cities keep input order")

	require.Len(t, saver.saved, 2)
	assert.Equal(t, "rj", saver.saved[0].state)
	assert.Equal(t, "sp", saver.saved[1].state)
}

func TestProcessor_RejectionsAreCounted(t *testing.T) {
	inactive := active("SP", "Campinas", 1)
	inactive["status"] = "inactive"
	foreign := active("SP", "Campinas", 2)
	foreign["country"] = "Argentina"
	unknown := active("Atlantis", "Campinas", 3)
	noCity := active("SP", "", 4)
	kept := active("SP", "Campinas", 5)

	saver := &recordingSaver{}
	p := newProcessor(&mockLoader{data: dataset(t, inactive, foreign, unknown, noCity, kept)}, saver, 1)
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.RecordsIn)
	assert.Equal(t, 1, summary.RecordsOut)
	assert.Equal(t, map[string]int{"status": 1, "country": 1, "state": 1, "city": 1}, summary.Dropped)
	assert.Equal(t, 0, summary.Contents["sp"][0].Location.Index, "rejected records never touch the counter")
}

func TestProcessor_MalformedRecordIsDropped(t *testing.T) {
	data := []byte(`{"rptrs":[
		{"state":"SP","city":"Campinas","country":"Brazil","status":"Active","frequency":439.975,"offset":-5,"color_code":1},
		{"state":"RJ","city":"Niteroi","country":"Brazil","status":"Active","frequency":439.9,"offset":-5,"ts_linked":["TS1","TS2"]},
		{"state":"BA","country":"Argentina","status":"Active","map":{"lat":1}},
		7
	]}`)

	saver := &recordingSaver{}
	p := newProcessor(&mockLoader{data: data}, saver, 1)
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.RecordsIn)
	assert.Equal(t, 1, summary.RecordsOut)
	assert.Equal(t, map[string]int{"decode": 3}, summary.Dropped)
	assert.Equal(t, []string{"sp"}, summary.States)
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestProcessor_InvalidDatasetSavesNothing(t *testing.T) {
	for _, body := range []string{`{"foo":1}`, `[1,2]`, `{"rptrs":{}}`, `not json`} {
		t.Run(body, func(t *testing.T) {
			saver := &recordingSaver{}
			p := newProcessor(&mockLoader{data: []byte(body)}, saver, 1)
			_, err := p.Run(context.Background())
			require.ErrorIs(t, err, domain.ErrInvalidDataset)
			assert.Empty(t, saver.saved)
			assert.Error(t, p.CheckReadiness(context.Background()))
		})
	}
}

func TestProcessor_LoaderErrorIsFatal(t *testing.T) {
	errOffline := errors.New("offline")
	p := newProcessor(&mockLoader{err: errOffline}, &recordingSaver{}, 1)
	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, errOffline)
	assert.Contains(t, err.Error(), "load dataset")
}

func TestProcessor_SaverErrorIsFatal(t *testing.T) {
	saver := &recordingSaver{err: errors.New("disk full")}
	p := newProcessor(&mockLoader{data: dataset(t, active("SP", "Campinas", 1))}, saver, 1)
	_, err := p.Run(context.Background())
	require.ErrorContains(t, err, "save state sp: disk full")
	assert.Nil(t, p.Last())
}

func TestProcessor_WorkersProduceIdenticalOutput(t *testing.T) {
	cities := []string{"Campinas - SP", "Santos", "Niterói/RJ", "Curitiba, Parana", "campinas", "Avare", "Xyzzy"}
	states := []string{"SP", "SP", "RJ", "PR", "São Paulo", "sp", "SP"}
	var recs []rawRecord
	for i := range 200 {
		r := active(states[i%len(states)], cities[i%len(cities)], 145+float64(i)/1000)
		if i%13 == 0 {
			r["status"] = "Offline"
		}
		recs = append(recs, r)
	}
	data := dataset(t, recs...)

	sequential, err := newProcessor(&mockLoader{data: data}, &recordingSaver{}, 1).Run(context.Background())
	require.NoError(t, err)
	parallel, err := newProcessor(&mockLoader{data: data}, &recordingSaver{}, 8).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sequential.States, parallel.States)
	assert.Equal(t, sequential.Dropped, parallel.Dropped)
	if diff := cmp.Diff(sequential.Contents, parallel.Contents); diff != "" {
		t.Errorf("contents mismatch (-sequential +parallel):\n%s", diff)
	}
}

func TestProcessor_IndexFailureFallsBackToCleanedCities(t *testing.T) {
	var built atomic.Int32
	index := &mockIndex{err: errors.New("github down")}
	p := pipeline.New(&mockLoader{data: dataset(t, active("SP", "CAMPINAS - SP", 1))}, index, &recordingSaver{},
		pipeline.Options{NewMatcher: matcherFactory(&built)}, discardLogger(), newTestMetrics())

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Campinas", summary.Contents["sp"][0].City())
	assert.Equal(t, int32(0), built.Load())

	index.err, index.names = nil, testIndex
	_, err = p.Run(context.Background())
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), built.Load(), "matcher is built once the index loads")
	assert.Equal(t, int32(2), index.calls.Load())
}

func TestProcessor_NilIndex(t *testing.T) {
	p := pipeline.New(&mockLoader{data: dataset(t, active("SP", "são paulo - sp", 1))}, nil, &recordingSaver{},
		pipeline.Options{}, discardLogger(), newTestMetrics())
	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "São Paulo", summary.Contents["sp"][0].City())
}

func TestProcessor_AllSaverReceivesEveryRecord(t *testing.T) {
	data := dataset(t, active("SP", "Santos", 1), active("RJ", "Niteroi", 2), active("SP", "Campinas", 3))
	all := &allRecordingSaver{}
	plain := &recordingSaver{}
	p := newProcessor(&mockLoader{data: data}, pipeline.MultiSaver{plain, all}, 1)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	var cities []string
	for _, r := range all.all {
		cities = append(cities, r.City())
	}
	assert.Equal(t, []string{"Campinas", "Santos", "Niteroi"}, cities)
	assert.Len(t, plain.saved, 2)
	assert.Equal(t, []string{"sp.json", "sp.json", "rj.json", "rj.json", "repeaters.csv"}, summary.Files)
}

func TestMultiSaver_StopsAtFirstError(t *testing.T) {
	failing := &recordingSaver{err: errors.New("boom")}
	after := &recordingSaver{}
	written, err := pipeline.MultiSaver{&recordingSaver{}, failing, after}.Save(context.Background(), "sp", nil)
	require.Error(t, err)
	assert.Equal(t, []string{"sp.json"}, written)
	assert.Empty(t, after.saved)
}

func TestProcessor_Serve(t *testing.T) {
	loader := &mockLoader{data: dataset(t, active("SP", "Campinas", 1))}
	p := newProcessor(loader, &recordingSaver{}, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Serve(ctx, 20*time.Millisecond))
	assert.GreaterOrEqual(t, loader.calls.Load(), int32(2))
	assert.GreaterOrEqual(t, loader.forgets.Load(), int32(1))
}

func TestProcessor_ServeStopsDuringBackoff(t *testing.T) {
	loader := &mockLoader{err: errors.New("offline")}
	p := newProcessor(loader, &recordingSaver{}, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, p.Serve(ctx, time.Hour))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestProcessor_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newProcessor(&mockLoader{data: dataset(t, active("SP", "Campinas", 1))}, &recordingSaver{}, 4)
	_, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func ExampleMultiSaver() {
	s := pipeline.MultiSaver{}
	files, err := s.Save(context.Background(), "sp", nil)
	fmt.Println(len(files), err)
	// Output: 0 <nil>
}
