package blogconsole

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello, World!", "hello-world"},
		{"  Go   1.24 release  ", "go-1-24-release"},
		{"--already-slugged--", "already-slugged"},
		{"Ünïcode only", "n-code-only"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"go, web", []string{"go", "web"}},
		{" go ,, ,web,", []string{"go", "web"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		got := ParseTags(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseTags(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestJoinTagsRoundTrip(t *testing.T) {
	tags := []string{"go", "web"}
	if got := ParseTags(JoinTags(tags)); !reflect.DeepEqual(got, tags) {
		t.Fatalf("round trip = %#v", got)
	}
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		base string
		segs []string
		want string
	}{
		{"https://example.com", []string{"store", "acme", "blog"}, "https://example.com/store/acme/blog/"},
		{"https://example.com/", nil, "https://example.com/"},
		{"/", []string{"producers", "acme", "blog", "save"}, "/producers/acme/blog/save/"},
	}
	for _, tt := range tests {
		if got := BuildURL(tt.base, tt.segs...); got != tt.want {
			t.Errorf("BuildURL(%q, %v) = %q, want %q", tt.base, tt.segs, got, tt.want)
		}
	}
}

func TestStorefrontURL(t *testing.T) {
	if got := StorefrontURL("https://example.com", "acme"); got != "https://example.com/store/acme/blog/" {
		t.Errorf("index URL = %q", got)
	}
	if got := StorefrontURL("https://example.com", "acme", "first-post"); got != "https://example.com/store/acme/blog/first-post/" {
		t.Errorf("post URL = %q", got)
	}
}

func TestLoginRedirectTarget(t *testing.T) {
	if got := LoginRedirectTarget("/login", "/producers/acme/blog/?post=p1"); got != "/login?next=%2Fproducers%2Facme%2Fblog%2F%3Fpost%3Dp1" {
		t.Errorf("unexpected target %q", got)
	}
	if got := LoginRedirectTarget("/login", ""); got != "/login" {
		t.Errorf("unexpected target %q", got)
	}
}

func TestIsTempID(t *testing.T) {
	if !IsTempID("temp-123") {
		t.Error("temp-123 should be temporary")
	}
	if IsTempID("post-123") {
		t.Error("post-123 should not be temporary")
	}
}

func TestBlogPostingJsonLD(t *testing.T) {
	post := samplePosts()[1]
	cfg := SiteConfig{Name: "Acme Blog", URL: "https://example.com"}

	var data map[string]any
	if err := json.Unmarshal([]byte(BlogPostingJsonLD(post, cfg)), &data); err != nil {
		t.Fatalf("invalid JSON-LD: %v", err)
	}
	if data["@type"] != "BlogPosting" {
		t.Errorf("@type = %v", data["@type"])
	}
	if data["url"] != "https://example.com/store/acme/blog/second/" {
		t.Errorf("url = %v", data["url"])
	}
	if data["datePublished"] != t0.Add(time.Hour).Format("2006-01-02") {
		t.Errorf("datePublished = %v", data["datePublished"])
	}
	if data["image"] != "https://cdn.example.com/2.png" {
		t.Errorf("image = %v", data["image"])
	}
	if data["keywords"] != "go, web" {
		t.Errorf("keywords = %v", data["keywords"])
	}
}

func TestClonePostsIsDeep(t *testing.T) {
	orig := samplePosts()
	cp := ClonePosts(orig)
	cp[1].Tags[0] = "x"
	*cp[1].CoverImageURL = "x"
	*cp[1].PublishedAt = time.Time{}

	if !reflect.DeepEqual(orig, samplePosts()) {
		t.Fatal("clone shares memory with the original")
	}
	if ClonePosts(nil) != nil {
		t.Fatal("nil list should stay nil")
	}
}
