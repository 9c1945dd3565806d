package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/davidnkusi/leadscout/internal/leadscout"
)

type postKey struct {
	platform leadscout.Platform
	postID   string
}

// PostStore is an in-memory raw post collection, keyed by (platform, post_id).
type PostStore struct {
	mu    sync.RWMutex
	posts map[postKey]leadscout.RawPost
}

// NewPostStore constructs an empty PostStore.
func NewPostStore() *PostStore {
	return &PostStore{posts: make(map[postKey]leadscout.RawPost)}
}

// UpsertPost stores a post; a second write for the same key wins.
func (s *PostStore) UpsertPost(_ context.Context, post leadscout.RawPost) error {
	if post.PostID == "" {
		return fmt.Errorf("post id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[postKey{platform: post.Platform, postID: post.PostID}] = post
	return nil
}

// Get fetches a post by key. Returns false when absent.
func (s *PostStore) Get(_ context.Context, platform leadscout.Platform, postID string) (leadscout.RawPost, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[postKey{platform: platform, postID: postID}]
	return p, ok
}

// Len reports how many distinct posts are stored.
func (s *PostStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}
