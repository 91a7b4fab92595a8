package content

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/healthplusinnovation/storefront/pkg/errors"
)

func TestBundledPagesRender(t *testing.T) {
	lib := NewLibrary()

	slugs, err := lib.Slugs()
	require.NoError(t, err)
	assert.Equal(t, []string{"refund-policy", "shipping"}, slugs)

	page, err := lib.Get("refund-policy")
	require.NoError(t, err)
	assert.Equal(t, "Refund and Returns Policy", page.Title)
	assert.Contains(t, page.HTML, "<h2")
	assert.Contains(t, page.HTML, "7-day period")
	assert.Contains(t, page.HTML, `href="mailto:innovateplushealth@gmail.com"`)
	assert.False(t, page.UpdatedAt.IsZero())

	shipping, err := lib.Get(" Shipping ")
	require.NoError(t, err)
	assert.Equal(t, "shipping", shipping.Slug)
	assert.Contains(t, shipping.HTML, "3–7 business days")
}

func TestUnknownOrInvalidSlugIsNotFound(t *testing.T) {
	lib := NewLibrary()
	for _, slug := range []string{"privacy", "../go.mod", "", "Refund_Policy"} {
		_, err := lib.Get(slug)
		require.Error(t, err, slug)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound), slug)
	}
}

func TestRenderSanitizesHTMLAndDefaultsTitle(t *testing.T) {
	lib := NewLibraryFS(fstest.MapFS{
		"terms-of-sale.md": {Data: []byte("Hello <script>alert(1)</script> **world**\n\n[x](javascript:alert(1))")},
	})

	page, err := lib.Get("terms-of-sale")
	require.NoError(t, err)
	assert.Equal(t, "Terms Of Sale", page.Title)
	assert.NotContains(t, page.HTML, "<script")
	assert.NotContains(t, page.HTML, "javascript:")
	assert.Contains(t, page.HTML, "<strong>world</strong>")
}

func TestMalformedFrontMatterIsInternalError(t *testing.T) {
	lib := NewLibraryFS(fstest.MapFS{
		"broken.md": {Data: []byte("---\ntitle: [unterminated\n---\nbody")},
	})
	_, err := lib.Get("broken")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInternal))
}

func TestPagesAreCachedAfterFirstRender(t *testing.T) {
	source := fstest.MapFS{"faq.md": {Data: []byte("---\ntitle: FAQ\n---\nfirst")}}
	lib := NewLibraryFS(source)

	first, err := lib.Get("faq")
	require.NoError(t, err)
	source["faq.md"] = &fstest.MapFile{Data: []byte("---\ntitle: FAQ\n---\nsecond")}

	second, err := lib.Get("faq")
	require.NoError(t, err)
	assert.Equal(t, first.HTML, second.HTML)
	assert.Contains(t, second.HTML, "first")
}
