package blogconsole

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// FormState is the editable copy of a post in the console editor.
type FormState struct {
	Title           string `form:"title"`
	Slug            string `form:"slug"`
	Excerpt         string `form:"excerpt"`
	CoverImageURL   string `form:"cover_image_url"`
	TagsInput       string `form:"tags"`
	ContentMarkdown string `form:"content_markdown"`
	Publish         bool   `form:"publish"`
}

type formRules struct {
	Title           string `validate:"required"`
	Excerpt         string `validate:"required"`
	ContentMarkdown string `validate:"required"`
	CoverImageURL   string `validate:"omitempty,http_url"`
}

// EmptyForm is the editor state for a new post.
func EmptyForm() FormState {
	return FormState{}
}

// FormFromPost fills the editor from an existing post.
func FormFromPost(p BlogPost) FormState {
	f := FormState{
		Title:           p.Title,
		Slug:            p.Slug,
		Excerpt:         p.Excerpt,
		TagsInput:       JoinTags(p.Tags),
		ContentMarkdown: p.ContentMarkdown,
		Publish:         p.Published(),
	}
	if p.CoverImageURL != nil {
		f.CoverImageURL = *p.CoverImageURL
	}
	return f
}

// Validate checks the fields the backend insists on. The cover image, when
// given, must be an absolute http or https URL.
func (f FormState) Validate() error {
	return validate.Struct(formRules{
		Title:           strings.TrimSpace(f.Title),
		Excerpt:         strings.TrimSpace(f.Excerpt),
		ContentMarkdown: strings.TrimSpace(f.ContentMarkdown),
		CoverImageURL:   strings.TrimSpace(f.CoverImageURL),
	})
}

// CanSave reports whether the form may be submitted.
func (f FormState) CanSave() bool {
	return f.Validate() == nil
}

// Payload builds the create or update input from the form. existing is the
// post being edited, or nil for a new post. An update only carries Publish
// when the desired state differs from the current one.
func (f FormState) Payload(existing *BlogPost) BlogPostInput {
	in := BlogPostInput{
		Title:           strings.TrimSpace(f.Title),
		Slug:            strings.TrimSpace(f.Slug),
		Excerpt:         strings.TrimSpace(f.Excerpt),
		ContentMarkdown: f.ContentMarkdown,
		CoverImageURL:   ptr(strings.TrimSpace(f.CoverImageURL)),
		Tags:            ParseTags(f.TagsInput),
	}
	if existing == nil || f.Publish != existing.Published() {
		in.Publish = ptr(f.Publish)
	}
	return in
}
