package feed

import (
	"context"
	"fmt"
	"log"
	"strings"

	"eunify/feed/internal/docstore"
	"eunify/feed/internal/identity"
)

// CommentRepository synchronizes per-post comment threads with the same
// full-replace reconciliation as the post feed, one independent stream per
// subscription.
type CommentRepository struct {
	docs docstore.Store
	who  identity.Provider
}

func NewCommentRepository(docs docstore.Store, who identity.Provider) *CommentRepository {
	return &CommentRepository{docs: docs, who: who}
}

// Subscribe opens a live stream over one post's thread. fn receives the full
// comment list, sorted most-recent-first, once per snapshot. The returned
// cancel stops the stream and further delivery; it is safe to call more than
// once.
func (r *CommentRepository) Subscribe(ctx context.Context, postID string, fn func([]Comment)) (func(), error) {
	ctx, stop := context.WithCancel(ctx)
	snapshots, err := r.docs.Observe(ctx, commentsCollection(postID))
	if err != nil {
		stop()
		return nil, fmt.Errorf("observe comments for %s: %w", postID, err)
	}

	n := &notifier[[]Comment]{fn: fn}
	go func() {
		for snap := range snapshots {
			n.notify(reconcileComments(postID, snap))
		}
	}()

	return func() {
		stop()
		n.cancel()
	}, nil
}

// reconcileComments parses one full snapshot into the sorted thread,
// skipping malformed documents individually.
func reconcileComments(postID string, snap docstore.Snapshot) []Comment {
	comments := make([]Comment, 0, len(snap))
	for _, doc := range snap {
		comment, perr := parseComment(postID, doc)
		if perr != nil {
			log.Printf("feed: skipping comment on post %s: %v", postID, perr)
			continue
		}
		comments = append(comments, comment)
	}
	sortComments(comments)
	return comments
}

// AddComment writes a new comment with a server timestamp. Whitespace-only
// text is rejected before any network call with ErrEmptyComment. The thread
// picks the comment up with the next snapshot; nothing is inserted locally.
func (r *CommentRepository) AddComment(ctx context.Context, postID, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyComment
	}

	author := r.who.Current().DisplayName
	if author == "" {
		author = "Anonymous"
	}

	data := map[string]any{
		"text":      text,
		"author":    author,
		"timestamp": docstore.ServerTimestamp,
	}
	if _, err := r.docs.Add(ctx, commentsCollection(postID), data); err != nil {
		return fmt.Errorf("add comment to %s: %w", postID, err)
	}
	return nil
}
