package model_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/mdata/internal/model"
	"github.com/zjrosen/mdata/internal/pubsub"
	"github.com/zjrosen/mdata/internal/testutil"
)

// redrawCounter returns a Config hook and a counter of its calls.
func redrawCounter(redraw bool) (func(*model.Config), *atomic.Int32) {
	var n atomic.Int32
	return func(cfg *model.Config) {
		cfg.Redraw = redraw
		cfg.RedrawHook = func() { n.Add(1) }
	}, &n
}

func TestPropagation_NoOptInNoRedraw(t *testing.T) {
	configure, redraws := redrawCounter(false)
	blog := testutil.NewBlog(t, nil, configure)

	a := blog.Author.New(map[string]any{"name": "Ada"})
	a.Set("name", "Ada L.")
	a.SetData(map[string]any{"name": "Ada Lovelace"}, false, false)

	require.Zero(t, redraws.Load())
}

func TestPropagation_InstanceRedrawOncePerWrite(t *testing.T) {
	configure, redraws := redrawCounter(false)
	blog := testutil.NewBlog(t, nil, configure)

	a := blog.Author.New(map[string]any{"name": "Ada"})
	a.SetRedraw(true)

	a.Set("name", "Ada L.")
	require.EqualValues(t, 1, redraws.Load())

	a.SetData(map[string]any{"id": "a1", "name": "Ada Lovelace"}, false, false)
	require.EqualValues(t, 2, redraws.Load(), "a bulk write redraws once")

	a.SetWith("name", "quiet", true, false)
	a.Cell("name").SetWith("quieter", true, false)
	require.EqualValues(t, 2, redraws.Load(), "silent writes never redraw")

	a.Cell("name").Set("loud")
	require.EqualValues(t, 3, redraws.Load())
}

func TestPropagation_CollectionRedraw(t *testing.T) {
	configure, redraws := redrawCounter(false)
	blog := testutil.NewBlog(t, nil, configure)

	a := blog.Author.New(map[string]any{"name": "Ada"})
	favs := model.NewCollection(blog.Registry, model.CollectionOptions{Name: "favs", Model: blog.Author, Redraw: true})
	pinned := model.NewCollection(blog.Registry, model.CollectionOptions{Name: "pinned", Model: blog.Author, Redraw: true})

	_, err := favs.Add(a, false, false)
	require.NoError(t, err)
	require.EqualValues(t, 1, redraws.Load(), "membership change redraws")

	_, err = pinned.Add(a, false, true)
	require.NoError(t, err)
	require.EqualValues(t, 1, redraws.Load(), "silent add does not")

	a.Set("name", "Ada L.")
	require.EqualValues(t, 2, redraws.Load(), "two opted-in collections still redraw once")

	favs.Remove(false, a)
	pinned.Remove(true, a)
	require.EqualValues(t, 3, redraws.Load())

	a.Set("name", "Ada")
	require.EqualValues(t, 3, redraws.Load(), "no longer a member of a redrawing collection")
}

func TestPropagation_ControllerAndSchemaRedraw(t *testing.T) {
	var n atomic.Int32
	reg := model.NewRegistry(model.Config{RedrawHook: func() { n.Add(1) }})
	defer reg.Close()

	tags := reg.MustDefine(model.Schema{Name: "Tag", Fields: []string{"label"}}, model.WithCollectionRedraw(true))
	notes := reg.MustDefine(model.Schema{Name: "Note", Fields: []string{"text"}, Redraw: true})

	tag := tags.New(map[string]any{"label": "go"})
	require.EqualValues(t, 1, n.Load(), "joining a redrawing controller")
	tag.Set("label", "golang")
	require.EqualValues(t, 2, n.Load())

	note := notes.New(nil)
	require.EqualValues(t, 2, n.Load(), "schema redraw covers writes, not membership")
	note.Set("text", "hello")
	require.EqualValues(t, 3, n.Load())
}

func TestPropagation_GlobalRedraw(t *testing.T) {
	configure, redraws := redrawCounter(true)
	blog := testutil.NewBlog(t, nil, configure)

	a := blog.Author.New(map[string]any{"name": "Ada"})
	require.EqualValues(t, 1, redraws.Load())

	a.Set("name", "Ada L.")
	require.EqualValues(t, 2, redraws.Load())
}

func TestPropagation_ReferenceWriteRedrawsOnce(t *testing.T) {
	configure, redraws := redrawCounter(true)
	blog := testutil.NewBlog(t, nil, configure)

	p := blog.Post.New(map[string]any{"title": "Engines"})
	before := redraws.Load()

	p.Set("author", map[string]any{"id": "a1", "name": "X"})
	require.EqualValues(t, before+1, redraws.Load(), "creating the referenced record")
	author := p.Ref("author")
	require.NotNil(t, author)
	require.True(t, blog.Author.Contains(author))

	p.Set("author", map[string]any{"id": "a1", "name": "Y"})
	require.EqualValues(t, before+2, redraws.Load(), "merging into the referenced record")
	require.Same(t, author, p.Ref("author"))
	require.Equal(t, "Y", author.Get("name"))
	require.Equal(t, 1, blog.Author.Size())
}

func TestPropagation_ReferenceWriteStillPublishesEvents(t *testing.T) {
	blog := testutil.NewBlog(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := blog.Post.New(map[string]any{"title": "Engines"})
	events := blog.Registry.Events().Subscribe(ctx)

	p.Set("author", map[string]any{"id": "a1", "name": "X"})
	var added, created bool
	for !(added && created) {
		ev := nextEvent(t, events)
		if ev.Payload.Entity != "Author" {
			continue
		}
		switch ev.Type {
		case pubsub.AddedEvent:
			added = true
		case pubsub.CreatedEvent:
			created = true
		}
	}
	ev := nextEvent(t, events)
	require.Equal(t, pubsub.UpdatedEvent, ev.Type)
	require.Equal(t, "Post", ev.Payload.Entity)
	require.Equal(t, "author", ev.Payload.Field)
}

func TestPropagation_ChangeEvents(t *testing.T) {
	blog := testutil.NewBlog(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := blog.Author.New(map[string]any{"id": "a1", "name": "Ada"})
	events := blog.Registry.Events().Subscribe(ctx)

	a.Set("name", "Ada L.")
	ev := nextEvent(t, events)
	require.Equal(t, pubsub.UpdatedEvent, ev.Type)
	require.Equal(t, "Author", ev.Payload.Entity)
	require.Equal(t, "a1", ev.Payload.ID)
	require.Equal(t, "name", ev.Payload.Field)
	require.Equal(t, a.LID(), ev.Payload.LID)

	favs := model.NewCollection(blog.Registry, model.CollectionOptions{Name: "favs", Model: blog.Author})
	_, err := favs.Add(a, false, false)
	require.NoError(t, err)
	ev = nextEvent(t, events)
	require.Equal(t, pubsub.AddedEvent, ev.Type)
	require.Equal(t, "favs", ev.Payload.Collection)

	a.Remove()
	ev = nextEvent(t, events)
	require.Equal(t, pubsub.RemovedEvent, ev.Type)
	require.Equal(t, "Author", ev.Payload.Collection)
	ev = nextEvent(t, events)
	require.Equal(t, pubsub.RemovedEvent, ev.Type)
	require.Equal(t, "favs", ev.Payload.Collection)
	ev = nextEvent(t, events)
	require.Equal(t, pubsub.DisposedEvent, ev.Type)
	require.Equal(t, "a1", ev.Payload.ID)
}

func nextEvent(t *testing.T, ch <-chan pubsub.Event[model.ChangeEvent]) pubsub.Event[model.ChangeEvent] {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for change event")
		return pubsub.Event[model.ChangeEvent]{}
	}
}
