package etree_test

import (
	"testing"

	"github.com/fwojciec/docq"
	"github.com/fwojciec/docq/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_Parse(t *testing.T) {
	t.Parallel()

	t.Run("builds a tree rooted at the document element", func(t *testing.T) {
		t.Parallel()

		root, err := etree.NewParser().Parse(`<?xml version="1.0"?><feed version="1"><entry><title>A</title></entry><entry><title>B</title></entry></feed>`)

		require.NoError(t, err)
		assert.Equal(t, "feed", root.Name())
		assert.Equal(t, docq.FormatXML, root.Format())
		assert.Nil(t, root.Parent())
		v, ok := root.Attr("version")
		assert.True(t, ok)
		assert.Equal(t, "1", v)

		entries := root.Children()
		require.Len(t, entries, 2)
		assert.Equal(t, "entry", entries[0].Name())
		assert.Same(t, root, entries[0].Parent())
		assert.Equal(t, "B", entries[1].Children()[0].Text())
	})

	t.Run("keeps namespace prefixes and drops declarations", func(t *testing.T) {
		t.Parallel()

		root, err := etree.NewParser().Parse(`<rss xmlns="urn:default" xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:creator xml:lang="en">ann</dc:creator></rss>`)

		require.NoError(t, err)
		assert.Empty(t, root.Attributes())

		creator := root.Children()[0]
		assert.Equal(t, "dc", creator.Namespace())
		assert.Equal(t, "creator", creator.Name())
		assert.Equal(t, "dc:creator", creator.QualifiedName())
		assert.Equal(t, map[string]string{"xml:lang": "en"}, creator.Attributes())
		lang, ok := creator.Attr("lang")
		assert.True(t, ok)
		assert.Equal(t, "en", lang)
	})

	t.Run("concatenates character data and CDATA", func(t *testing.T) {
		t.Parallel()

		root, err := etree.NewParser().Parse(`<a>x &amp; <![CDATA[<y>]]></a>`)

		require.NoError(t, err)
		assert.Equal(t, "x & <y>", root.Text())
	})

	t.Run("returns EPARSE for malformed documents", func(t *testing.T) {
		t.Parallel()

		for _, content := range []string{`<a><b></a>`, ``, `just text`} {
			_, err := etree.NewParser().Parse(content)
			assert.Equal(t, docq.EPARSE, docq.ErrorCode(err), content)
		}
	})

	t.Run("permissive mode tolerates unquoted attributes", func(t *testing.T) {
		t.Parallel()

		_, err := etree.NewParser().Parse(`<a b=c></a>`)
		assert.Equal(t, docq.EPARSE, docq.ErrorCode(err))

		p := etree.NewParser()
		p.Permissive = true
		root, err := p.Parse(`<a b=c></a>`)
		require.NoError(t, err)
		v, _ := root.Attr("b")
		assert.Equal(t, "c", v)
	})
}
