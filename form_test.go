package blogconsole

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*FormState)
		valid bool
	}{
		{"complete", func(*FormState) {}, true},
		{"blank title", func(f *FormState) { f.Title = "  " }, false},
		{"blank excerpt", func(f *FormState) { f.Excerpt = "" }, false},
		{"blank content", func(f *FormState) { f.ContentMarkdown = "\n\t" }, false},
		{"https cover", func(f *FormState) { f.CoverImageURL = "https://cdn.example.com/a.png" }, true},
		{"relative cover", func(f *FormState) { f.CoverImageURL = "/a.png" }, false},
		{"ftp cover", func(f *FormState) { f.CoverImageURL = "ftp://example.com/a.png" }, false},
		{"slug and tags are optional", func(f *FormState) { f.Slug, f.TagsInput = "", "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validForm()
			tt.edit(&form)
			assert.Equal(t, tt.valid, form.Validate() == nil)
			assert.Equal(t, tt.valid, form.CanSave())
		})
	}
}

func TestFormFromPost(t *testing.T) {
	form := FormFromPost(samplePosts()[1])

	assert.Equal(t, FormState{
		Title:           "Second",
		Slug:            "second",
		Excerpt:         "two",
		CoverImageURL:   "https://cdn.example.com/2.png",
		TagsInput:       "go, web",
		ContentMarkdown: "# Two",
		Publish:         true,
	}, form)
}

func TestFormPayloadForCreate(t *testing.T) {
	form := FormState{
		Title:           "  Title  ",
		Slug:            " my-slug ",
		Excerpt:         " excerpt ",
		ContentMarkdown: "  body\n",
		TagsInput:       "a, , b ,",
	}

	in := form.Payload(nil)

	assert.Equal(t, "Title", in.Title)
	assert.Equal(t, "my-slug", in.Slug)
	assert.Equal(t, "excerpt", in.Excerpt)
	assert.Equal(t, "  body\n", in.ContentMarkdown)
	assert.Equal(t, []string{"a", "b"}, in.Tags)
	require.NotNil(t, in.CoverImageURL)
	assert.Equal(t, "", *in.CoverImageURL)
	require.NotNil(t, in.Publish)
	assert.False(t, *in.Publish)
}

func TestFormPayloadOmitsUnchangedPublish(t *testing.T) {
	published := samplePosts()[1]

	in := FormFromPost(published).Payload(&published)
	assert.Nil(t, in.Publish)

	form := FormFromPost(published)
	form.Publish = false
	in = form.Payload(&published)
	require.NotNil(t, in.Publish)
	assert.False(t, *in.Publish)
}

func TestFormPayloadTagsNeverNil(t *testing.T) {
	in := validForm()
	in.TagsInput = ""
	assert.NotNil(t, in.Payload(nil).Tags)
}
