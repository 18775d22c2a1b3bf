package presentation

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func newGolden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestFormatter_GoldenEntities(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf).FormatEntities([]EntityDTO{
		{Name: "Author", URL: "/author", Fields: []string{"name", "id"}, Cache: true, Records: 2},
		{Name: "Post", URL: "/post", Fields: []string{"title", "author", "id"}, Refs: map[string]string{"author": "Author"}, Records: 1},
	}))
	newGolden(t).Assert(t, "entities", buf.Bytes())
}

func TestFormatter_GoldenRecords(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf).FormatRecords([]RecordDTO{
		{Entity: "Post", LID: "lid-1", ID: "p1", Saved: true, Data: map[string]any{"title": "Engines", "id": "p1", "author": "a1"}},
		{Entity: "Post", LID: "lid-2", Modified: true, Data: map[string]any{"title": "Draft", "id": nil, "author": nil}},
	}))
	newGolden(t).Assert(t, "records", buf.Bytes())
}

func TestFormatter_GoldenEvents(t *testing.T) {
	at := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	f := NewFormatter(&buf)
	require.NoError(t, f.FormatEvent(EventDTO{Type: "created", Entity: "Post", LID: "lid-1", ID: "p1", Collection: "Post", At: at}))
	require.NoError(t, f.FormatEvent(EventDTO{Type: "updated", Entity: "Post", LID: "lid-1", ID: "p1", Field: "title", At: at}))
	newGolden(t).Assert(t, "events", buf.Bytes())
}
