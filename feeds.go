package blogconsole

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate,omitempty"`
	GUID        string   `xml:"guid"`
	Categories  []string `xml:"category"`
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// writeRSS writes the RSS 2.0 feed of a producer's published posts. The
// channel's build date is the newest post update.
func (a *App) writeRSS(w io.Writer, producerID string, posts []BlogPost) error {
	ch := rssChannel{
		Title:       a.Config.Name,
		Link:        StorefrontURL(a.Config.URL, producerID),
		Description: a.Config.Description,
		Items:       make([]rssItem, 0, len(posts)),
	}
	var newest time.Time
	for _, p := range posts {
		link := StorefrontURL(a.Config.URL, producerID, p.Slug)
		item := rssItem{
			Title:       p.Title,
			Link:        link,
			Description: p.Excerpt,
			GUID:        link,
			Categories:  p.Tags,
		}
		if p.PublishedAt != nil {
			item.PubDate = p.PublishedAt.UTC().Format(time.RFC1123Z)
		}
		if p.UpdatedAt.After(newest) {
			newest = p.UpdatedAt
		}
		ch.Items = append(ch.Items, item)
	}
	if !newest.IsZero() {
		ch.LastBuildDate = newest.UTC().Format(time.RFC1123Z)
	}
	return writeXML(w, rssFeed{Version: "2.0", Channel: ch})
}

// writeSitemap lists the storefront index and every published post.
func (a *App) writeSitemap(w io.Writer, producerID string, posts []BlogPost) error {
	set := urlSet{XMLNS: sitemapNS}
	set.URLs = append(set.URLs, sitemapURL{Loc: StorefrontURL(a.Config.URL, producerID)})
	for _, p := range posts {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:     StorefrontURL(a.Config.URL, producerID, p.Slug),
			LastMod: p.UpdatedAt.UTC().Format(time.DateOnly),
		})
	}
	return writeXML(w, set)
}

func writeXML(w io.Writer, v any) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	if err := xml.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("blogconsole: encode xml: %w", err)
	}
	return nil
}
