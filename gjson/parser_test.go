package gjson_test

import (
	"testing"

	"github.com/fwojciec/docq"
	"github.com/fwojciec/docq/gjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = `{
  "title": "Feed",
  "count": 3,
  "ok": true,
  "none": null,
  "user": {"name": "ann", "tags": ["a", "b"]},
  "items": [{"id": 1}, {"id": 2.5}]
}`

func names(nodes []*docq.Element) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, n.Name())
	}
	return out
}

func TestParser_Parse(t *testing.T) {
	t.Parallel()

	t.Run("wraps objects in a root element", func(t *testing.T) {
		t.Parallel()

		root, err := gjson.NewParser().Parse(doc)

		require.NoError(t, err)
		assert.Equal(t, gjson.RootName, root.Name())
		assert.Equal(t, docq.FormatJSON, root.Format())
		assert.Equal(t, []string{"title", "count", "ok", "none", "user", "items", "items"}, names(root.Children()))
	})

	t.Run("exposes scalar members as attributes and scalar children", func(t *testing.T) {
		t.Parallel()

		root, err := gjson.NewParser().Parse(doc)
		require.NoError(t, err)

		assert.Equal(t, map[string]string{"title": "Feed", "count": "3", "ok": "true", "none": ""}, root.Attributes())
		title := root.Children()[0]
		assert.Equal(t, docq.KindScalar, title.Kind())
		assert.Equal(t, "Feed", title.Text())
	})

	t.Run("expands arrays into repeated members", func(t *testing.T) {
		t.Parallel()

		root, err := gjson.NewParser().Parse(doc)
		require.NoError(t, err)

		tags, err := root.Query("user tags")
		require.NoError(t, err)
		require.Equal(t, 2, tags.Len())
		assert.Equal(t, "a", tags.At(0).Text())
		assert.Equal(t, "b", tags.At(1).Text())

		ids, err := root.Query("items@id")
		require.NoError(t, err)
		require.Equal(t, 2, ids.Len())
		assert.Equal(t, "1", ids.At(0).Text())
		assert.Equal(t, "2.5", ids.At(1).Text())

		name, ok, err := root.Value("user@name")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "ann", name)
	})

	t.Run("names top-level array items", func(t *testing.T) {
		t.Parallel()

		root, err := gjson.NewParser().Parse(`[1, {"a": "x"}, [2]]`)

		require.NoError(t, err)
		children := root.Children()
		assert.Equal(t, []string{gjson.ItemName, gjson.ItemName, gjson.ItemName}, names(children))
		assert.Equal(t, "1", children[0].Text())
		assert.Equal(t, map[string]string{"a": "x"}, children[1].Attributes())
		assert.Equal(t, "2", children[2].Text())
	})

	t.Run("stores a top-level scalar as root text", func(t *testing.T) {
		t.Parallel()

		root, err := gjson.NewParser().Parse(`"hello"`)

		require.NoError(t, err)
		assert.Equal(t, "hello", root.Text())
		assert.Empty(t, root.Children())
	})

	t.Run("returns EPARSE for invalid JSON", func(t *testing.T) {
		t.Parallel()

		for _, content := range []string{`{"a":`, ``, `{a: 1}`} {
			_, err := gjson.NewParser().Parse(content)
			assert.Equal(t, docq.EPARSE, docq.ErrorCode(err), content)
		}
	})
}
