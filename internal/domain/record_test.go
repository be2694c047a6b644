package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataset(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		ds, err := ParseDataset([]byte(`{"rptrs":[{"state":"SP","frequency":"145.25"},null]}`))
		require.NoError(t, err)
		require.Len(t, ds.Rptrs, 2)
		assert.Equal(t, "SP", ds.Rptrs[0].State.String())
		assert.InDelta(t, 145.25, ds.Rptrs[0].Frequency.Float(), 1e-9)
		assert.False(t, ds.Rptrs[1].State.Set)
	})

	t.Run("malformed elements are set aside", func(t *testing.T) {
		ds, err := ParseDataset([]byte(`{"rptrs":[
			{"state":"SP","frequency":"145.25"},
			{"state":"RJ","ts_linked":["TS1","TS2"]},
			{"country":"Argentina","map":{"lat":1}},
			1,
			{"state":"PR"}
		]}`))
		require.NoError(t, err)
		require.Len(t, ds.Rptrs, 2)
		assert.Equal(t, "SP", ds.Rptrs[0].State.String())
		assert.Equal(t, "PR", ds.Rptrs[1].State.String())
		require.Len(t, ds.Malformed, 3)
		for _, err := range ds.Malformed {
			require.ErrorIs(t, err, ErrMalformedRecord)
			assert.NotErrorIs(t, err, ErrInvalidDataset)
		}
		assert.Contains(t, ds.Malformed[0].Error(), "element 1")
		assert.Equal(t, 5, ds.Total())
	})

	invalid := map[string]string{
		"missing rptrs": `{"repeaters":[]}`,
		"rptrs object":  `{"rptrs":{}}`,
		"top array":     `[]`,
		"not json":      `<html>`,
	}
	for name, body := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDataset([]byte(body))
			require.ErrorIs(t, err, ErrInvalidDataset)
		})
	}
}

func TestScalar(t *testing.T) {
	var s Scalar
	require.NoError(t, json.Unmarshal([]byte(`"1"`), &s))
	assert.True(t, s.Set)
	assert.False(t, s.IsNum)
	assert.Equal(t, 1.0, s.Float())

	require.NoError(t, json.Unmarshal([]byte(`145.5`), &s))
	assert.True(t, s.IsNum)
	assert.Equal(t, "145.5", s.String())

	require.NoError(t, json.Unmarshal([]byte(`null`), &s))
	assert.False(t, s.Set)
	assert.Equal(t, "", s.String())

	require.NoError(t, json.Unmarshal([]byte(`true`), &s))
	assert.Equal(t, "true", s.String())

	b, err := json.Marshal(NumberScalar(7))
	require.NoError(t, err)
	assert.Equal(t, "7", string(b))
}

func TestLocation_JSON(t *testing.T) {
	var loc Location
	require.NoError(t, json.Unmarshal([]byte(`["SP","Campinas",2]`), &loc))
	assert.Equal(t, Location{State: "sp", City: "Campinas", Index: 2}, loc)
	assert.Equal(t, "sp:Campinas", loc.Key())

	require.Error(t, json.Unmarshal([]byte(`["SP"]`), &loc))
	require.Error(t, json.Unmarshal([]byte(`"SP"`), &loc))
}

func TestNormalizedRecord_ReadsPublishedFile(t *testing.T) {
	published := `{"sp":[{"rx":439.975,"tx":434.975,"offset":-5,"color":1,"timeslot":[1,2],
		"info":{"dmr_id":724001,"callsign":"PY2KCP","ipsc":"BrandMeister"},
		"location":["SP","Campinas",1],"details":"Linked"}]}`

	var groups map[string][]NormalizedRecord
	require.NoError(t, json.Unmarshal([]byte(published), &groups))
	require.Len(t, groups["sp"], 1)
	rec := groups["sp"][0]

	assert.Equal(t, "sp", rec.State())
	assert.Equal(t, "Campinas", rec.City())
	assert.Equal(t, 1, rec.Location.Index)
	assert.Equal(t, []int{1, 2}, rec.Timeslot)
	assert.Equal(t, 724001.0, *rec.Info.DMRID)
	assert.Equal(t, "PY2KCP", rec.Info.Callsign.String())

	again, err := json.Marshal(groups)
	require.NoError(t, err)

	var a, b any
	require.NoError(t, json.Unmarshal([]byte(published), &a))
	require.NoError(t, json.Unmarshal(again, &b))
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("published file changed on rewrite (-want +got):\n%s", diff)
	}
}
