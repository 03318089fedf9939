package stats

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRun(t *testing.T) {
	events := make(chan Event, 8)
	readErr := errors.New("read failed")
	events <- Event{Type: EventTypeScanned}
	events <- Event{Type: EventTypeScanned}
	events <- Event{Type: EventTypeScanned}
	events <- Event{Type: EventTypeScanned}
	events <- Event{Type: EventTypeConverted, Bytes: 100}
	events <- Event{Type: EventTypeFiltered}
	events <- Event{Type: EventTypeDuplicate}
	events <- Event{Type: EventTypeError, Err: readErr}
	close(events)

	c := NewCollector()
	c.Run(context.Background(), events)

	s := c.Snapshot()
	assert.Equal(t, 4, s.Scanned)
	assert.Equal(t, 1, s.Converted)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Filtered)
	assert.Equal(t, 1, s.Duplicates)
	assert.EqualValues(t, 100, s.Bytes)
	assert.ErrorIs(t, s.LastError, readErr)
}

func TestSummaryLogAttrs(t *testing.T) {
	s := Summary{Converted: 2, Bytes: 2048, LastError: errors.New("boom")}
	attrs := s.LogAttrs()

	idx := -1
	for i, a := range attrs {
		if a == "written" {
			idx = i
		}
	}
	require.NotEqual(t, -1, idx)
	assert.Equal(t, "2.0 kB", attrs[idx+1])
	assert.Equal(t, "boom", attrs[len(attrs)-1])
}

func TestTopN(t *testing.T) {
	m := map[string]int{"b": 2, "a": 2, "c": 5, "d": 1}

	assert.Equal(t, []Pair{{"c", 5}, {"a", 2}, {"b", 2}}, TopN(m, 3))
	assert.Len(t, TopN(m, 10), 4)

	var buf bytes.Buffer
	PrettyPrintTop(&buf, m, 2)
	assert.Equal(t, "1. c (5)\n2. a (2)\n", buf.String())
}
