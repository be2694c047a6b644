package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/repeater-data-etl/internal/domain"
)

func f(v float64) *float64 { return &v }

func TestMessageKey(t *testing.T) {
	r := domain.NormalizedRecord{Location: domain.Location{State: "sp", City: "Campinas"}}
	assert.Equal(t, "sp:Campinas", MessageKey(r))

	r.Location.Index = 2
	assert.Equal(t, "sp:Campinas:2", MessageKey(r))
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	r := domain.NormalizedRecord{
		RX:       f(145),
		TX:       f(145.6),
		Offset:   f(0.6),
		Location: domain.Location{State: "rj", City: "Niteroi", Index: 1},
	}

	msg, err := serializeToMessage(r, "run-1", now)
	require.NoError(t, err)

	assert.Equal(t, []byte("rj:Niteroi:1"), msg.Key)
	assert.Contains(t, string(msg.Value), `"location":["RJ","Niteroi",1]`)
	assert.Contains(t, string(msg.Value), `"tx":145.6`)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "state", msg.Headers[0].Key)
	assert.Equal(t, []byte("RJ"), msg.Headers[0].Value)
	assert.Equal(t, "published_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
	assert.Equal(t, "run_id", msg.Headers[2].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[2].Value)
}

func TestSerializeToMessage_NoRunID(t *testing.T) {
	r := domain.NormalizedRecord{Location: domain.Location{State: "sp", City: "Santos"}}
	msg, err := serializeToMessage(r, "", time.Now())
	require.NoError(t, err)
	assert.Len(t, msg.Headers, 2)
}

func TestWriter_SaveEmptyGroupIsNoop(t *testing.T) {
	w := &Writer{}
	written, err := w.Save(context.Background(), "sp", nil)
	require.NoError(t, err)
	assert.Empty(t, written)
}
