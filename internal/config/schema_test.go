package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/mdata/internal/model"
)

const blogSchema = `# blog entities
entities:
  - name: Author
    fields: [name]
    cache: true
  - name: Post
    url: /posts
    fields: [title, author]
    refs:
      author: Author
    defaults:
      status: draft
    placehold: [title]
`

func writeSchema(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSchema(t *testing.T) {
	entities, err := LoadSchema(writeSchema(t, blogSchema))
	require.NoError(t, err)
	require.Len(t, entities, 2)

	post := entities[1].Schema()
	require.Equal(t, "Post", post.Name)
	require.Equal(t, "/posts", post.URL)
	require.Equal(t, map[string]string{"author": "Author"}, post.Refs)
	require.Equal(t, "draft", post.Defaults["status"])
	require.Equal(t, []string{"title"}, post.Placehold)
	require.True(t, entities[0].Cache)
}

func TestLoadSchema_Missing(t *testing.T) {
	entities, err := LoadSchema(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	require.Empty(t, entities)
}

func TestLoadSchema_Invalid(t *testing.T) {
	_, err := LoadSchema(writeSchema(t, "entities:\n  - name: A\n  - name: A\n"))
	require.ErrorContains(t, err, "duplicate name")

	_, err = LoadSchema(writeSchema(t, "entities:\n  - fields: [x]\n"))
	require.ErrorContains(t, err, "name is required")

	_, err = LoadSchema(writeSchema(t, "entities: ["))
	require.ErrorContains(t, err, "parsing schema")
}

func TestDefineAll(t *testing.T) {
	entities, err := LoadSchema(writeSchema(t, blogSchema))
	require.NoError(t, err)

	reg := model.NewRegistry(model.Config{BaseURL: "/api"})
	defer reg.Close()
	require.NoError(t, DefineAll(reg, entities))

	post, ok := reg.Controller("Post")
	require.True(t, ok)
	require.Equal(t, "/api/posts", post.URL())
	require.Equal(t, []string{"Author", "Post"}, reg.Names())
}

func TestDefineAll_UnknownReference(t *testing.T) {
	reg := model.NewRegistry(model.Config{})
	defer reg.Close()

	err := DefineAll(reg, []EntityConfig{{Name: "Post", Fields: []string{"author"}, Refs: map[string]string{"author": "Author"}}})
	require.ErrorIs(t, err, model.ErrUnknownEntity)
}

func TestSaveEntity_PreservesCommentsAndReplaces(t *testing.T) {
	path := writeSchema(t, blogSchema)

	require.NoError(t, SaveEntity(path, EntityConfig{Name: "Tag", Fields: []string{"label"}}))
	require.NoError(t, SaveEntity(path, EntityConfig{Name: "Author", Fields: []string{"name", "email"}, Cache: true}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "# blog entities")

	entities, err := LoadSchema(path)
	require.NoError(t, err)
	require.Len(t, entities, 3)
	require.Equal(t, "Author", entities[0].Name)
	require.Equal(t, []string{"name", "email"}, entities[0].Fields)
	require.Equal(t, "Tag", entities[2].Name)
}

func TestSaveEntity_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "schema.yaml")

	require.NoError(t, SaveEntity(path, EntityConfig{Name: "Note", Fields: []string{"text"}}))

	entities, err := LoadSchema(path)
	require.NoError(t, err)
	require.Equal(t, []EntityConfig{{Name: "Note", Fields: []string{"text"}}}, entities)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".schema.yaml.tmp.*"))
	require.NoError(t, err)
	require.Empty(t, matches, "temp files are cleaned up")
}

func TestRemoveEntity(t *testing.T) {
	path := writeSchema(t, blogSchema)

	require.NoError(t, RemoveEntity(path, "Author"))
	require.ErrorIs(t, RemoveEntity(path, "Author"), ErrEntityNotFound)

	entities, err := LoadSchema(path)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	require.Equal(t, "Post", entities[0].Name)
}
