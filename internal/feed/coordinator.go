package feed

import (
	"context"

	"eunify/feed/internal/assets"
	"eunify/feed/internal/docstore"
	"eunify/feed/internal/identity"
)

// Coordinator wires the identity context and the two gateways into the
// repositories and owns the feed subscription lifecycle. The UI collaborator
// talks to Posts, Comments and Profile directly.
type Coordinator struct {
	Posts    *PostRepository
	Comments *CommentRepository
	Profile  *ProfileRepository

	cancel context.CancelFunc
}

func NewCoordinator(docs docstore.Store, blobs assets.Store, who identity.Provider) *Coordinator {
	return &Coordinator{
		Posts:    NewPostRepository(docs, blobs, who),
		Comments: NewCommentRepository(docs, who),
		Profile:  NewProfileRepository(docs, blobs, who),
	}
}

// Start begins feed synchronization. Comment threads are observed on demand
// through Comments.Subscribe and are not started here.
func (c *Coordinator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	if err := c.Posts.Start(ctx); err != nil {
		cancel()
		return err
	}
	c.cancel = cancel
	return nil
}

// Close stops synchronization and waits for the reconciliation loop to
// finish. In-flight remote writes are not cancelled; they complete or fail
// on their own.
func (c *Coordinator) Close() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.Posts.Done()
	c.cancel = nil
}
