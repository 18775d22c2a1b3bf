package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/mdata/internal/config"
	"github.com/zjrosen/mdata/internal/presentation"
	"github.com/zjrosen/mdata/internal/store"
)

// workspace is a temp config, schema file and SQLite store.
type workspace struct {
	dir    string
	config string
	schema string
	db     string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{
		dir:    dir,
		config: filepath.Join(dir, "config.yaml"),
		schema: filepath.Join(dir, "schema.yaml"),
		db:     filepath.Join(dir, "store.db"),
	}
	cfg := fmt.Sprintf("schema: %s\nstore:\n  backend: sqlite\n  path: %s\nwatch:\n  debounce: 20ms\n", ws.schema, ws.db)
	require.NoError(t, os.WriteFile(ws.config, []byte(cfg), 0o600))
	return ws
}

func (ws workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := execute(append([]string{"--config", ws.config}, args...), &stdout, &stderr)
	return stdout.String(), err
}

func (ws workspace) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := ws.run(t, args...)
	require.NoError(t, err, "mdata %s", strings.Join(args, " "))
	return out
}

func (ws workspace) defineBlog(t *testing.T) {
	t.Helper()
	ws.mustRun(t, "types:define", "Author", "--field", "name", "--cache")
	ws.mustRun(t, "types:define", "Post", "--field", "title", "--ref", "author=Author", "--cache")
}

func decodeRecords(t *testing.T, out string) []presentation.RecordDTO {
	t.Helper()
	var recs []presentation.RecordDTO
	require.NoError(t, json.Unmarshal([]byte(out), &recs), out)
	return recs
}

func decodeRecord(t *testing.T, out string) presentation.RecordDTO {
	t.Helper()
	var rec presentation.RecordDTO
	require.NoError(t, json.Unmarshal([]byte(out), &rec), out)
	return rec
}

func TestInit_WritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	var out bytes.Buffer

	require.NoError(t, execute([]string{"--config", path, "init"}, &out, &out))
	require.Contains(t, out.String(), "Wrote "+path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, config.DefaultConfigTemplate(), string(data))

	err = execute([]string{"--config", path, "init"}, &out, &out)
	require.ErrorContains(t, err, "already exists")
	require.NoError(t, execute([]string{"--config", path, "init", "--force"}, &out, &out))
}

func TestTypes_DefineListRemove(t *testing.T) {
	ws := newWorkspace(t)

	out := ws.mustRun(t, "types")
	require.JSONEq(t, "[]", out)

	ws.defineBlog(t)

	var entities []presentation.EntityDTO
	require.NoError(t, json.Unmarshal([]byte(ws.mustRun(t, "types")), &entities))
	require.Len(t, entities, 2)
	require.Equal(t, "Post", entities[1].Name)
	require.Equal(t, []string{"title", "author", "id"}, entities[1].Fields)
	require.Equal(t, map[string]string{"author": "Author"}, entities[1].Refs)

	_, err := ws.run(t, "types:remove", "Author")
	require.ErrorContains(t, err, "Post.author references Author")

	ws.mustRun(t, "types:remove", "Post")
	ws.mustRun(t, "types:remove", "Author")
	_, err = ws.run(t, "types:remove", "Author")
	require.ErrorIs(t, err, config.ErrEntityNotFound)
}

func TestTypes_DefineRejectsUnknownReference(t *testing.T) {
	ws := newWorkspace(t)

	_, err := ws.run(t, "types:define", "Post", "--field", "title", "--ref", "author=Author")
	require.ErrorContains(t, err, "invalid schema")

	entities, err := config.LoadSchema(ws.schema)
	require.NoError(t, err)
	require.Empty(t, entities, "nothing is written when validation fails")
}

func TestRecords_CreateGetUpdateDelete(t *testing.T) {
	ws := newWorkspace(t)
	ws.defineBlog(t)

	ada := decodeRecord(t, ws.mustRun(t, "create", "Author", "--set", "id=a1", "--set", "name=Ada"))
	require.Equal(t, "a1", ada.ID)
	require.True(t, ada.Saved)

	post := decodeRecord(t, ws.mustRun(t, "create", "Post", "--data", `{"title":"Engines","author":"a1"}`))
	require.NotEmpty(t, post.ID, "the store assigns an identity")
	postID := post.ID.(string)

	got := decodeRecords(t, ws.mustRun(t, "get", "Post", postID))
	require.Len(t, got, 1)
	require.Equal(t, "Engines", got[0].Data["title"])
	require.Equal(t, "a1", got[0].Data["author"])

	updated := decodeRecord(t, ws.mustRun(t, "update", "Post", postID, "--set", "title=Analytical"))
	require.Equal(t, "Analytical", updated.Data["title"])

	all := decodeRecords(t, ws.mustRun(t, "get", "Post"))
	require.Len(t, all, 1)
	require.Equal(t, "Analytical", all[0].Data["title"])

	deleted := decodeRecords(t, ws.mustRun(t, "delete", "Post", postID))
	require.Len(t, deleted, 1)
	require.JSONEq(t, "[]", ws.mustRun(t, "get", "Post"))

	_, err := ws.run(t, "get", "Post", postID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecords_PopulateAndDeep(t *testing.T) {
	ws := newWorkspace(t)
	ws.defineBlog(t)
	ws.mustRun(t, "create", "Author", "--set", "id=a1", "--set", "name=Ada")
	ws.mustRun(t, "create", "Post", "--set", "id=p1", "--set", "title=Engines", "--set", "author=a1")

	rec := decodeRecord(t, ws.mustRun(t, "populate", "Post", "p1"))
	author, ok := rec.Data["author"].(map[string]any)
	require.True(t, ok, "author is nested: %v", rec.Data)
	require.Equal(t, "Ada", author["name"])

	recs := decodeRecords(t, ws.mustRun(t, "get", "Post", "--deep"))
	require.Len(t, recs, 1)
	author, ok = recs[0].Data["author"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "a1", author["id"])
}

func TestRecords_InputErrors(t *testing.T) {
	ws := newWorkspace(t)
	ws.defineBlog(t)

	_, err := ws.run(t, "create", "Planet", "--set", "name=Mars")
	require.ErrorContains(t, err, `unknown entity type "Planet"`)

	_, err = ws.run(t, "create", "Author", "--set", "nickname=A")
	require.ErrorContains(t, err, `Author has no field "nickname"`)

	_, err = ws.run(t, "create", "Author", "--set", "noequals")
	require.ErrorContains(t, err, "want field=value")

	_, err = ws.run(t, "create", "Author", "--data", "{broken")
	require.ErrorContains(t, err, "invalid --data")

	_, err = ws.run(t, "update", "Author", "a1")
	require.ErrorContains(t, err, "nothing to update")

	_, err = ws.run(t, "populate", "Post", "p1", "--path", "author")
	require.ErrorContains(t, err, "want field=path")
}

func TestStoreFlagOverridesConfig(t *testing.T) {
	ws := newWorkspace(t)
	ws.defineBlog(t)

	ws.mustRun(t, "--store", "memory", "create", "Author", "--set", "id=a1", "--set", "name=Ada")

	// The memory store does not outlive the command, and the SQLite file was not touched.
	require.JSONEq(t, "[]", ws.mustRun(t, "get", "Author"))

	_, err := ws.run(t, "--store", "carrier-pigeon", "types")
	require.ErrorContains(t, err, "store.backend")
}

func TestParseValues(t *testing.T) {
	values, err := parseValues(`{"title":"Engines","votes":1}`, []string{"votes=3", "tags=[\"a\"]", "note=plain text"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"title": "Engines",
		"votes": float64(3),
		"tags":  []any{"a"},
		"note":  "plain text",
	}, values)
}

// syncBuffer is a bytes.Buffer safe for a writer goroutine and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// watchUntilUpdated runs watch with extra args while another connection
// rewrites author a1, and returns the printed events once an update shows up.
func watchUntilUpdated(t *testing.T, ws workspace, args ...string) []presentation.EventDTO {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var out syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- executeContext(ctx, append([]string{"--config", ws.config, "watch"}, args...), &out, &out)
	}()

	other, err := store.OpenSQLite(ws.db, "")
	require.NoError(t, err)
	defer other.Close()

	// Keep writing until the watcher has picked a write up.
	n := 0
	require.Eventually(t, func() bool {
		n++
		if _, err := other.Put(context.Background(), "/author", map[string]any{"id": "a1", "name": fmt.Sprintf("Ada %d", n)}, nil); err != nil {
			return false
		}
		return strings.Contains(out.String(), `"type":"updated"`)
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}

	var events []presentation.EventDTO
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var ev presentation.EventDTO
		require.NoError(t, json.Unmarshal([]byte(line), &ev), line)
		events = append(events, ev)
	}
	return events
}

func TestWatch_StreamsChangesFromOtherWriters(t *testing.T) {
	ws := newWorkspace(t)
	ws.defineBlog(t)
	ws.mustRun(t, "create", "Author", "--set", "id=a1", "--set", "name=Ada")

	events := watchUntilUpdated(t, ws)
	types := map[string]bool{}
	for _, ev := range events {
		require.Equal(t, "Author", ev.Entity)
		types[ev.Type] = true
	}
	require.True(t, types["created"], "the initial load is streamed")
	require.True(t, types["updated"])
}

func TestWatch_EventsFlagFilters(t *testing.T) {
	ws := newWorkspace(t)
	ws.defineBlog(t)
	ws.mustRun(t, "create", "Author", "--set", "id=a1", "--set", "name=Ada")

	for _, ev := range watchUntilUpdated(t, ws, "--events", "updated") {
		require.Equal(t, "updated", ev.Type)
	}

	_, err := ws.run(t, "watch", "--events", "renamed")
	require.ErrorContains(t, err, `unknown event type "renamed"`)
}

func TestWatch_RequiresSQLite(t *testing.T) {
	ws := newWorkspace(t)
	_, err := ws.run(t, "--store", "memory", "watch")
	require.ErrorContains(t, err, `watch needs the "sqlite" store backend`)
}
