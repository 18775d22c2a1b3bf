package model_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/mdata/internal/model"
	"github.com/zjrosen/mdata/internal/store"
	"github.com/zjrosen/mdata/internal/testutil"
)

func TestRecord_Populate(t *testing.T) {
	mem := store.NewMemory("")
	testutil.NewBuilder(t, mem).WithBlogData().Build()
	blog := testutil.NewBlog(t, mem)
	ctx := context.Background()

	comments, err := blog.Comment.PullByID(ctx, "c1")
	require.NoError(t, err)
	c := comments[0]
	require.Equal(t, "p1", c.Get("post"))
	require.Nil(t, c.Ref("post"))

	require.NoError(t, c.Populate(ctx, nil))

	post := c.Ref("post")
	require.NotNil(t, post)
	require.Equal(t, "Engines", post.Get("title"))
	require.True(t, post.IsSaved())
	require.Equal(t, "a1", post.Get("author"), "populate resolves one level")

	author := c.Ref("author")
	require.NotNil(t, author)
	require.Equal(t, "Grace", author.Get("name"))
	require.Same(t, author, blog.Author.Get("a2"))
}

func TestRecord_PopulatePartialFailure(t *testing.T) {
	st := testutil.NewMockStore(t)
	blog := testutil.NewBlog(t, st)
	ctx := context.Background()
	boom := errors.New("boom")

	c := blog.Comment.New(map[string]any{"id": "c1", "body": "Hi", "post": "p9", "author": "a1"})

	st.On("Get", mock.Anything, "/author", []any{"a1"}, noOpts).
		Return([]any{map[string]any{"id": "a1", "name": "Ada"}}, nil).Once()
	require.NoError(t, blog.Author.LoadByID(ctx, "a1"))

	st.On("Get", mock.Anything, "/post", map[string]any{"id": "p9"}, noOpts).Return(nil, boom).Once()

	err := c.Populate(ctx, nil)
	require.ErrorIs(t, err, boom)

	// The saved author was linked without a fetch; the failed post stays a bare identity.
	require.Same(t, blog.Author.Get("a1"), c.Ref("author"))
	require.Equal(t, "p9", c.Get("post"))
	require.Nil(t, c.Ref("post"))
}

func TestRecord_PopulateSkipsResolvedAndEmptyReferences(t *testing.T) {
	st := testutil.NewMockStore(t)
	blog := testutil.NewBlog(t, st)

	ada := blog.Author.New(map[string]any{"id": "a1", "name": "Ada"})
	c := blog.Comment.New(map[string]any{"body": "Hi", "author": ada})

	require.NoError(t, c.Populate(context.Background(), nil))
	require.Same(t, ada, c.Ref("author"))
	require.Nil(t, c.Get("post"))
}

func TestRecord_PopulateUsesFieldOptions(t *testing.T) {
	st := testutil.NewMockStore(t)
	blog := testutil.NewBlog(t, st)
	postOpts := &store.Options{Path: "post"}

	st.On("Get", mock.Anything, "/post", map[string]any{"id": "p1"}, postOpts).
		Return(map[string]any{"post": map[string]any{"id": "p1", "title": "Engines"}}, nil).Once()

	c := blog.Comment.New(map[string]any{"post": "p1"})
	err := c.Populate(context.Background(), &model.PopulateOptions{
		Fetch: map[string]*store.Options{"post": postOpts},
	})
	require.NoError(t, err)
	require.Equal(t, "Engines", c.Ref("post").Get("title"))
}

// defineTeams registers Team{lead, deputy} referencing Person{org}
// referencing Org. Org parsing is slowed so concurrent merges overlap.
func defineTeams(t *testing.T, st store.Store) (teams, people, orgs *model.Controller) {
	t.Helper()
	reg := model.NewRegistry(model.Config{Store: st})
	t.Cleanup(reg.Close)

	orgs = reg.MustDefine(model.Schema{
		Name:   "Org",
		Fields: []string{"name"},
		Parser: func(in map[string]any) map[string]any {
			time.Sleep(time.Millisecond)
			return in
		},
	})
	people = reg.MustDefine(model.Schema{
		Name:   "Person",
		Fields: []string{"name", "org"},
		Refs:   map[string]string{"org": "Org"},
	})
	teams = reg.MustDefine(model.Schema{
		Name:   "Team",
		Fields: []string{"lead", "deputy"},
		Refs:   map[string]string{"lead": "Person", "deputy": "Person"},
	})
	return teams, people, orgs
}

func TestRecord_PopulateSharesNestedReferences(t *testing.T) {
	for range 20 {
		st := testutil.NewMockStore(t)
		teams, people, orgs := defineTeams(t, st)

		// Both person fetches return together, each carrying the same org.
		var arrived sync.WaitGroup
		arrived.Add(2)
		together := func(mock.Arguments) {
			arrived.Done()
			arrived.Wait()
		}
		for _, id := range []string{"u1", "u2"} {
			st.On("Get", mock.Anything, "/person", map[string]any{"id": id}, noOpts).
				Run(together).
				Return(map[string]any{"id": id, "name": id, "org": map[string]any{"id": "o1", "name": "Acme"}}, nil).
				Once()
		}

		tm := teams.New(map[string]any{"lead": "u1", "deputy": "u2"})
		require.NoError(t, tm.Populate(context.Background(), nil))

		lead, deputy := tm.Ref("lead"), tm.Ref("deputy")
		require.NotNil(t, lead)
		require.NotNil(t, deputy)
		require.Same(t, lead.Ref("org"), deputy.Ref("org"))
		require.Equal(t, 1, orgs.Size())
		require.Equal(t, 2, people.Size())
		require.True(t, orgs.Contains(lead.Ref("org")))
	}
}
