package blogconsole

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed stand-in for the blog backend, used in mock mode
// and local development. It implements Remote and Storefront with the same
// rules the real backend applies, and reports failures as *APIError.
type Store struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreClock replaces time.Now for timestamps the store assigns.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

var postColumns = []string{
	"id", "producer_id", "title", "slug", "excerpt", "content_markdown",
	"cover_image_url", "tags", "is_draft", "published_at", "created_at", "updated_at",
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and runs schema migrations.
func NewStore(path string, opts ...StoreOption) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets the storefront read while the console writes; writers wait
	// on the busy timeout instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA cache_size=-8000;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Question),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS blog_posts (
    id TEXT PRIMARY KEY,
    producer_id TEXT NOT NULL,
    title TEXT NOT NULL,
    slug TEXT NOT NULL,
    excerpt TEXT NOT NULL,
    content_markdown TEXT NOT NULL,
    cover_image_url TEXT,
    tags TEXT NOT NULL,
    is_draft INTEGER NOT NULL DEFAULT 1,
    published_at INTEGER,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE (producer_id, slug)
);
CREATE INDEX IF NOT EXISTS blog_posts_producer_updated ON blog_posts (producer_id, updated_at DESC);
`)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (BlogPost, error) {
	var (
		p                    BlogPost
		cover                sql.NullString
		tags                 string
		isDraft              int
		publishedAt          sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(&p.ID, &p.ProducerID, &p.Title, &p.Slug, &p.Excerpt, &p.ContentMarkdown,
		&cover, &tags, &isDraft, &publishedAt, &createdAt, &updatedAt)
	if err != nil {
		return BlogPost{}, err
	}
	if cover.Valid && cover.String != "" {
		p.CoverImageURL = ptr(cover.String)
	}
	p.Tags = decodeTags(tags)
	p.IsDraft = isDraft == 1
	if publishedAt.Valid {
		p.PublishedAt = ptr(fromNanos(publishedAt.Int64))
	}
	p.CreatedAt = fromNanos(createdAt)
	p.UpdatedAt = fromNanos(updatedAt)
	return p, nil
}

func (s *Store) queryPosts(ctx context.Context, q sq.SelectBuilder) ([]BlogPost, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []BlogPost{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *Store) queryPost(ctx context.Context, q sq.SelectBuilder) (BlogPost, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return BlogPost{}, err
	}
	p, err := scanPost(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return BlogPost{}, errPostNotFound()
	}
	return p, err
}

// ListPosts returns every post of the producer, drafts included, most
// recently updated first.
func (s *Store) ListPosts(ctx context.Context, producerID string) ([]BlogPost, error) {
	const op = "blogconsole.Store.ListPosts"
	posts, err := s.queryPosts(ctx, s.sb.Select(postColumns...).
		From("blog_posts").
		Where(sq.Eq{"producer_id": producerID}).
		OrderBy("updated_at DESC"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return posts, nil
}

// GetPost returns one post of the producer regardless of its publish state.
func (s *Store) GetPost(ctx context.Context, producerID, postID string) (BlogPost, error) {
	return s.getPost(ctx, s.db, producerID, postID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getPost(ctx context.Context, db queryRower, producerID, postID string) (BlogPost, error) {
	query, args, err := s.sb.Select(postColumns...).
		From("blog_posts").
		Where(sq.Eq{"producer_id": producerID, "id": postID}).
		ToSql()
	if err != nil {
		return BlogPost{}, err
	}
	p, err := scanPost(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return BlogPost{}, errPostNotFound()
	}
	return p, err
}

// CreatePost stores a new post. The slug defaults to the slugified title
// and must be unique within the producer.
func (s *Store) CreatePost(ctx context.Context, producerID string, in BlogPostInput) (BlogPost, error) {
	const op = "blogconsole.Store.CreatePost"

	now := s.now().UTC()
	id := uuid.NewString()
	slug := in.Slug
	if slug == "" {
		slug = Slugify(in.Title)
	}
	if slug == "" {
		slug = "post-" + id[:8]
	}
	var cover, publishedAt any
	if in.CoverImageURL != nil && *in.CoverImageURL != "" {
		cover = *in.CoverImageURL
	}
	isDraft := 1
	if in.Publish != nil && *in.Publish {
		isDraft = 0
		publishedAt = now.UnixNano()
	}

	query, args, err := s.sb.Insert("blog_posts").
		Columns(postColumns...).
		Values(id, producerID, in.Title, slug, in.Excerpt, in.ContentMarkdown,
			cover, encodeTags(in.Tags), isDraft, publishedAt, now.UnixNano(), now.UnixNano()).
		ToSql()
	if err != nil {
		return BlogPost{}, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return BlogPost{}, errSlugTaken()
		}
		return BlogPost{}, fmt.Errorf("%s: %w", op, err)
	}
	return s.GetPost(ctx, producerID, id)
}

// UpdatePost applies in to an existing post. PublishedAt is stamped when a
// draft is published and cleared when a post is unpublished; asking for the
// state the post is already in changes nothing.
func (s *Store) UpdatePost(ctx context.Context, producerID, postID string, in BlogPostInput) (BlogPost, error) {
	const op = "blogconsole.Store.UpdatePost"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return BlogPost{}, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	current, err := s.getPost(ctx, tx, producerID, postID)
	if err != nil {
		return BlogPost{}, err
	}

	now := s.now().UTC()
	update := s.sb.Update("blog_posts").
		Set("title", in.Title).
		Set("excerpt", in.Excerpt).
		Set("content_markdown", in.ContentMarkdown).
		Set("tags", encodeTags(in.Tags)).
		Set("updated_at", now.UnixNano()).
		Where(sq.Eq{"producer_id": producerID, "id": postID})
	if in.Slug != "" {
		update = update.Set("slug", in.Slug)
	}
	if in.CoverImageURL != nil {
		if *in.CoverImageURL == "" {
			update = update.Set("cover_image_url", nil)
		} else {
			update = update.Set("cover_image_url", *in.CoverImageURL)
		}
	}
	if in.Publish != nil && *in.Publish != current.Published() {
		if *in.Publish {
			update = update.Set("is_draft", 0).Set("published_at", now.UnixNano())
		} else {
			update = update.Set("is_draft", 1).Set("published_at", nil)
		}
	}

	query, args, err := update.ToSql()
	if err != nil {
		return BlogPost{}, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return BlogPost{}, errSlugTaken()
		}
		return BlogPost{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return BlogPost{}, fmt.Errorf("%s: %w", op, err)
	}
	return s.GetPost(ctx, producerID, postID)
}

// DeletePost removes a post.
func (s *Store) DeletePost(ctx context.Context, producerID, postID string) error {
	const op = "blogconsole.Store.DeletePost"

	query, args, err := s.sb.Delete("blog_posts").
		Where(sq.Eq{"producer_id": producerID, "id": postID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return errPostNotFound()
	}
	return nil
}

// GetInsights aggregates the producer's posts.
func (s *Store) GetInsights(ctx context.Context, producerID string) (BlogInsightsSummary, error) {
	const op = "blogconsole.Store.GetInsights"

	query, args, err := s.sb.Select(
		"COUNT(*)",
		"COALESCE(SUM(CASE WHEN is_draft = 0 THEN 1 ELSE 0 END), 0)",
		"MAX(CASE WHEN is_draft = 0 THEN published_at END)",
	).
		From("blog_posts").
		Where(sq.Eq{"producer_id": producerID}).
		ToSql()
	if err != nil {
		return BlogInsightsSummary{}, fmt.Errorf("%s: %w", op, err)
	}

	var (
		summary BlogInsightsSummary
		last    sql.NullInt64
	)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&summary.TotalPosts, &summary.PublishedPosts, &last); err != nil {
		return BlogInsightsSummary{}, fmt.Errorf("%s: %w", op, err)
	}
	summary.DraftPosts = summary.TotalPosts - summary.PublishedPosts
	if last.Valid {
		summary.LastPublishedAt = ptr(fromNanos(last.Int64))
	}
	return summary, nil
}

// ListPublishedPosts returns the producer's published posts, newest first.
func (s *Store) ListPublishedPosts(ctx context.Context, producerID string) ([]BlogPost, error) {
	const op = "blogconsole.Store.ListPublishedPosts"
	posts, err := s.queryPosts(ctx, s.sb.Select(postColumns...).
		From("blog_posts").
		Where(sq.Eq{"producer_id": producerID, "is_draft": 0}).
		OrderBy("published_at DESC"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return posts, nil
}

// GetPublishedPost returns a published post by slug. Drafts are reported
// as not found.
func (s *Store) GetPublishedPost(ctx context.Context, producerID, slug string) (BlogPost, error) {
	return s.queryPost(ctx, s.sb.Select(postColumns...).
		From("blog_posts").
		Where(sq.Eq{"producer_id": producerID, "slug": slug, "is_draft": 0}))
}

// SeedDemo fills an empty producer with a few demo posts. It reports how
// many posts were written.
func (s *Store) SeedDemo(ctx context.Context, producerID string) (int, error) {
	existing, err := s.ListPosts(ctx, producerID)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for _, in := range demoPosts() {
		if _, err := s.CreatePost(ctx, producerID, in); err != nil {
			return 0, fmt.Errorf("blogconsole: seed %q: %w", in.Title, err)
		}
	}
	return len(demoPosts()), nil
}

func demoPosts() []BlogPostInput {
	return []BlogPostInput{
		{
			Title:           "How probiotics change a dog's gut health",
			Excerpt:         "Choosing a probiotic that eases bloating, improves appetite and supports immunity.",
			ContentMarkdown: "## Why the gut matters\n\nGood bacteria produce short-chain fatty acids that support the immune system.\n\n- at least three active strains\n- pair with soluble fibre",
			CoverImageURL:   ptr("https://images.example.com/blog-probiotic-bowl.jpg"),
			Tags:            []string{"nutrition", "probiotics"},
			Publish:         ptr(true),
		},
		{
			Title:           "A 30-day plan for joint support",
			Excerpt:         "From the right supplement to light play: keeping joints loose and your dog moving.",
			ContentMarkdown: "## Golden habits\n\nRegular **glucosamine** with daily stretching improves range of motion within four weeks.\n\n> Light water exercise and weight control come first.",
			CoverImageURL:   ptr("https://images.example.com/blog-joint-care.jpg"),
			Tags:            []string{"movement", "health"},
			Publish:         ptr(true),
		},
		{
			Title:           "A nightly ritual for anxious dogs",
			Excerpt:         "Four simple steps to prepare the sleeping area for dogs that react to sudden noise.",
			ContentMarkdown: "## Four calming steps\n\nDim the screens, keep a steady rhythm before bed and finish with a gentle shoulder massage.",
			Tags:            []string{"behaviour", "calm"},
		},
	}
}

// encodeTags stores tags as a JSON array, so a tag may contain commas.
func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

// decodeTags reads the tags column. Databases created before tags were
// stored as JSON hold a comma-joined list.
func decodeTags(s string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return ParseTags(s)
	}
	if tags == nil {
		return []string{}
	}
	return tags
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func errPostNotFound() error {
	return newAPIError(http.StatusNotFound, "Post not found", ErrNotFound)
}

func errSlugTaken() error {
	return newAPIError(http.StatusConflict, "Slug already in use", ErrSlugTaken)
}
