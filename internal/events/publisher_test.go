package events

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct{ got []Event }

func (c *capture) Publish(ev Event) { c.got = append(c.got, ev) }

func TestLogPublisherWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	p := NewLogPublisher(log)
	p.Publish(Event{Name: "load_done", Workload: "image", JobID: "ab12", Fields: map[string]any{"elapsed_ms": 120}})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "load_done", line["event"])
	assert.Equal(t, "image", line["workload"])
	assert.Equal(t, "ab12", line["job_id"])
	assert.Equal(t, float64(120), line["elapsed_ms"])
}

func TestTeeFansOut(t *testing.T) {
	a, b := &capture{}, &capture{}
	Tee{a, b}.Publish(Event{Name: "evict"})
	require.Len(t, a.got, 1)
	require.Len(t, b.got, 1)
	assert.Equal(t, "evict", a.got[0].Name)
}

func TestBuildMessage(t *testing.T) {
	ev := Event{Name: "generate_done", Workload: "mesh", Time: time.Unix(1700000000, 0).UTC()}
	msg, err := buildMessage(ev)
	require.NoError(t, err)
	assert.Equal(t, []byte("mesh"), msg.Key)
	assert.Equal(t, ev.Time, msg.Time)

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "generate_done", decoded.Name)
}

func TestBuildMessageFillsTime(t *testing.T) {
	msg, err := buildMessage(Event{Name: "x"})
	require.NoError(t, err)
	assert.False(t, msg.Time.IsZero())
}
