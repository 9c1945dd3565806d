package postgres

import (
	"context"
	"fmt"

	"github.com/davidnkusi/leadscout/internal/leadscout"
)

// PostStore writes raw posts into Postgres. The (platform, post_id) primary
// key plus ON CONFLICT upsert makes persistence idempotent under queue
// redelivery: the latest write wins.
type PostStore struct {
	pool dbConn
}

// NewPostStore constructs a PostStore over an existing pool.
func NewPostStore(pool dbConn) (*PostStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *PostStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const upsertPostSQL = `
INSERT INTO raw_posts (
	platform,
	post_id,
	target_id,
	user_id,
	text,
	author,
	author_handle,
	posted_at,
	url,
	processed,
	fetched_at,
	blob_uri
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
ON CONFLICT (platform, post_id) DO UPDATE SET
	target_id = EXCLUDED.target_id,
	user_id = EXCLUDED.user_id,
	text = EXCLUDED.text,
	author = EXCLUDED.author,
	author_handle = EXCLUDED.author_handle,
	posted_at = EXCLUDED.posted_at,
	url = EXCLUDED.url,
	processed = EXCLUDED.processed,
	fetched_at = EXCLUDED.fetched_at,
	blob_uri = EXCLUDED.blob_uri`

// UpsertPost inserts or replaces a raw post row.
func (s *PostStore) UpsertPost(ctx context.Context, post leadscout.RawPost) error {
	if post.PostID == "" {
		return fmt.Errorf("post id is required")
	}
	args := []any{
		string(post.Platform),
		post.PostID,
		post.TargetID,
		post.UserID,
		post.Text,
		post.Author,
		post.AuthorHandle,
		post.PostedAt,
		post.URL,
		post.Processed,
		post.FetchedAt,
		post.BlobURI,
	}
	if _, err := s.pool.Exec(ctx, upsertPostSQL, args...); err != nil {
		return fmt.Errorf("upsert raw post: %w", err)
	}
	return nil
}
