package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/repeater-data-etl/internal/domain"
)

func readSample(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "rptrs_sample.json"))
	require.NoError(t, err)
	return data
}

type cityRow struct {
	city  string
	index int
	call  string
}

func rows(recs []domain.NormalizedRecord) []cityRow {
	out := make([]cityRow, len(recs))
	for i, r := range recs {
		out[i] = cityRow{city: r.City(), index: r.Location.Index, call: r.Info.Callsign.String()}
	}
	return out
}

func TestProcessor_SampleDataset(t *testing.T) {
	saver := &recordingSaver{}
	p := newProcessor(&mockLoader{}, saver, 1)

	summary, err := p.Process(context.Background(), readSample(t))
	require.NoError(t, err)

	assert.Equal(t, 11, summary.RecordsIn)
	assert.Equal(t, 7, summary.RecordsOut)
	assert.Equal(t, []string{"sp", "rj", "pr"}, summary.States)
	assert.Equal(t, map[string]int{"status": 1, "country": 1, "state": 1, "city": 1}, summary.Dropped)

	assert.Equal(t, []cityRow{
		{"Campinas", 0, "PY2KCP"},
		{"Campinas", 1, "PY2CPS"},
		{"Campinas", 2, "PY2CP2"},
		{"São José Dos Campos", 0, "PY2SJC"},
	}, rows(summary.Contents["sp"]))
	assert.Equal(t, []cityRow{
		{"Niterói", 0, "PY1NIT"},
		{"Rio De Janeiro", 0, "PY1RIO"},
	}, rows(summary.Contents["rj"]))
	assert.Equal(t, []cityRow{{"Curitiba", 0, "PY5CWB"}}, rows(summary.Contents["pr"]))
}

func TestProcessor_SampleDatasetFields(t *testing.T) {
	p := newProcessor(&mockLoader{}, &recordingSaver{}, 1)
	summary, err := p.Process(context.Background(), readSample(t))
	require.NoError(t, err)

	kcp := summary.Contents["sp"][0]
	assert.InDelta(t, 439.975, *kcp.RX, 1e-9)
	assert.InDelta(t, -5.0, *kcp.Offset, 1e-9)
	assert.InDelta(t, 434.975, *kcp.TX, 1e-9)
	assert.InDelta(t, 1.0, *kcp.Color, 0)
	assert.Equal(t, []int{1, 2}, kcp.Timeslot)
	assert.InDelta(t, 724001.0, *kcp.Info.DMRID, 0)
	assert.Equal(t, "GG67", kcp.Info.Locator.String())
	assert.Equal(t, "PY2ABC", kcp.Info.Trustee.String())
	assert.Equal(t, "BM", kcp.Info.IPSC.String())
	assert.Equal(t, "Peer", kcp.Info.Assigned.String())

	cp2 := summary.Contents["sp"][2]
	assert.Nil(t, cp2.Timeslot, "no ts_linked means no timeslot")
	assert.InDelta(t, 0.0, *cp2.Color, 0)
	assert.InDelta(t, 146.1, *cp2.TX, 1e-9)
}
