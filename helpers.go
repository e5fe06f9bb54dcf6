package blogconsole

import (
	"encoding/json"
	"net/url"
	"path"
	"strings"
)

// Slugify lowercases s and joins its ASCII letter and digit runs with
// hyphens. Everything else, including non-ASCII letters, separates runs.
func Slugify(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
	return strings.Join(words, "-")
}

// ParseTags splits a comma-separated tag field into trimmed, non-empty tags,
// keeping the order they were typed in.
func ParseTags(input string) []string {
	return FilterEmpty(strings.Split(input, ","))
}

// FilterEmpty trims every value and drops the empty ones.
func FilterEmpty(vals []string) []string {
	out := []string{}
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// JoinTags joins tags with ", ".
func JoinTags(tags []string) string {
	return strings.Join(tags, ", ")
}

// BuildURL joins a base URL with path segments, ensuring a trailing slash.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// StorefrontURL is the public address of a producer's blog under base, or
// of one of its posts when a slug is given.
func StorefrontURL(base, producerID string, slug ...string) string {
	return BuildURL(base, append([]string{"store", producerID, "blog"}, slug...)...)
}

// LoginRedirectTarget builds the login URL a user is sent to after the
// backend rejected their credentials, carrying the page they were on.
func LoginRedirectTarget(loginPath, current string) string {
	if current == "" || current == loginPath {
		return loginPath
	}
	return loginPath + "?" + url.Values{"next": {current}}.Encode()
}

// BlogPostingJsonLD returns a JSON-LD string for a BlogPosting schema.
func BlogPostingJsonLD(post BlogPost, cfg SiteConfig) string {
	postURL := StorefrontURL(cfg.URL, post.ProducerID, post.Slug)
	data := map[string]interface{}{
		"@context":     "https://schema.org",
		"@type":        "BlogPosting",
		"headline":     post.Title,
		"description":  post.Excerpt,
		"url":          postURL,
		"dateModified": post.UpdatedAt.UTC().Format("2006-01-02"),
		"mainEntityOfPage": map[string]string{
			"@type": "WebPage",
			"@id":   postURL,
		},
		"author": map[string]string{
			"@type": "Organization",
			"name":  post.ProducerID,
		},
	}
	if post.PublishedAt != nil {
		data["datePublished"] = post.PublishedAt.UTC().Format("2006-01-02")
	}
	if post.CoverImageURL != nil && *post.CoverImageURL != "" {
		data["image"] = *post.CoverImageURL
	}
	if cfg.Name != "" {
		data["publisher"] = map[string]string{
			"@type": "Organization",
			"name":  cfg.Name,
		}
	}
	if len(post.Tags) > 0 {
		data["keywords"] = strings.Join(post.Tags, ", ")
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}
