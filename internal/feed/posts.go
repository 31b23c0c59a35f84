package feed

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"eunify/feed/internal/assets"
	"eunify/feed/internal/docstore"
	"eunify/feed/internal/identity"
)

// PostRepository owns the canonical, reconciled, sorted set of posts and
// coordinates mutations with the document and asset gateways. The canonical
// set is always a pure function of the latest remote snapshot; mutations
// never insert optimistically.
type PostRepository struct {
	docs  docstore.Store
	blobs assets.Store
	who   identity.Provider

	mu        sync.Mutex
	posts     []Post
	observers map[int]*notifier[[]Post]
	nextKey   int
	done      chan struct{}
}

func NewPostRepository(docs docstore.Store, blobs assets.Store, who identity.Provider) *PostRepository {
	return &PostRepository{
		docs:      docs,
		blobs:     blobs,
		who:       who,
		observers: make(map[int]*notifier[[]Post]),
	}
}

// Draft is the author's input to CreatePost.
type Draft struct {
	Content  string
	Hashtags string
	Category Category
}

// ImageUpload is image data chosen on the device, streamed to the asset
// store before the post document is written.
type ImageUpload struct {
	Reader      io.Reader
	Size        int64
	ContentType string
}

// Patch is a field-level partial update for EditPost. Nil fields are left
// untouched.
type Patch struct {
	Content  *string
	Hashtags *string
	Category *Category
}

// Start begins consuming the live posts query. Snapshots are reconciled
// strictly in arrival order on a single goroutine; the loop stops when ctx
// is done or the subscription is lost.
func (r *PostRepository) Start(ctx context.Context) error {
	snapshots, err := r.docs.Observe(ctx, postsCollection)
	if err != nil {
		return fmt.Errorf("observe %s: %w", postsCollection, err)
	}
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		for snap := range snapshots {
			r.reconcile(snap)
		}
	}()
	return nil
}

// Done is closed when the reconciliation loop has stopped.
func (r *PostRepository) Done() <-chan struct{} {
	return r.done
}

// Subscribe registers fn to receive the full, sorted post collection: the
// current state immediately, then once per reconciled snapshot. The returned
// cancel stops delivery and is safe to call more than once.
func (r *PostRepository) Subscribe(fn func([]Post)) func() {
	n := &notifier[[]Post]{fn: fn}

	// The delivery slot is claimed while the registry lock is held, so a
	// reconciliation racing with registration cannot notify before the
	// subscriber has seen the state it was registered against.
	r.mu.Lock()
	key := r.nextKey
	r.nextKey++
	r.observers[key] = n
	current := clonePosts(r.posts)
	deliver := n.hold()
	r.mu.Unlock()

	deliver(current)

	return func() {
		r.mu.Lock()
		delete(r.observers, key)
		r.mu.Unlock()
		n.cancel()
	}
}

// Posts returns a copy of the current canonical collection.
func (r *PostRepository) Posts() []Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clonePosts(r.posts)
}

// reconcile replaces the canonical collection with the parse of one full
// snapshot and notifies every observer exactly once. A malformed document is
// skipped and logged; it never aborts the rest of the batch. Observers are
// notified on every snapshot, also when the content did not change.
func (r *PostRepository) reconcile(snap docstore.Snapshot) {
	posts := make([]Post, 0, len(snap))
	for _, doc := range snap {
		post, perr := parsePost(doc)
		if perr != nil {
			log.Printf("feed: skipping post: %v", perr)
			continue
		}
		posts = append(posts, post)
	}
	sortPosts(posts)

	r.mu.Lock()
	r.posts = posts
	targets := make([]*notifier[[]Post], 0, len(r.observers))
	for _, n := range r.observers {
		targets = append(targets, n)
	}
	r.mu.Unlock()

	for _, n := range targets {
		n.notify(clonePosts(posts))
	}
}

// CreatePost publishes a new post. With an image the blob is uploaded first
// and the document is only written once the upload succeeded; an upload
// failure means no post is created. Returns when the write is acknowledged —
// the canonical collection picks the post up with the next snapshot.
func (r *PostRepository) CreatePost(ctx context.Context, draft Draft, image *ImageUpload) error {
	user := r.who.Current()
	data := map[string]any{
		"content":   draft.Content,
		"tags":      draft.Hashtags,
		"category":  string(draft.Category),
		"createdBy": user.Email,
		"time":      docstore.ServerTimestamp,
	}

	if image != nil {
		url, err := r.blobs.Upload(ctx, assets.PostImages, image.Reader, image.Size, image.ContentType)
		if err != nil {
			return fmt.Errorf("upload post image: %w", err)
		}
		data["imageUrl"] = url
	}

	if _, err := r.docs.Add(ctx, postsCollection, data); err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// EditPost applies a partial update. A newly chosen image follows the same
// upload-then-write sequence as creation; the replaced blob is deleted best
// effort afterwards. Ownership is not re-verified here — the caller decides
// who may edit.
func (r *PostRepository) EditPost(ctx context.Context, id string, patch Patch, image *ImageUpload) error {
	fields := map[string]any{}
	if patch.Content != nil {
		fields["content"] = *patch.Content
	}
	if patch.Hashtags != nil {
		fields["tags"] = *patch.Hashtags
	}
	if patch.Category != nil {
		fields["category"] = string(*patch.Category)
	}

	previousURL := ""
	if post, ok := r.lookup(id); ok {
		previousURL = post.ImageURL
	}

	newURL := ""
	if image != nil {
		url, err := r.blobs.Upload(ctx, assets.PostImages, image.Reader, image.Size, image.ContentType)
		if err != nil {
			return fmt.Errorf("upload post image: %w", err)
		}
		newURL = url
		fields["imageUrl"] = url
	}

	if len(fields) == 0 {
		return nil
	}

	if err := r.docs.Update(ctx, postsCollection, id, fields); err != nil {
		if newURL != "" {
			log.Printf("feed: orphaned blob %s after failed edit of post %s", newURL, id)
		}
		return fmt.Errorf("edit post %s: %w", id, err)
	}

	if newURL != "" && previousURL != "" {
		if err := r.blobs.Delete(ctx, previousURL); err != nil {
			log.Printf("feed: orphaned blob for post %s: %v", id, err)
		}
	}
	return nil
}

// DeletePost deletes the post document, then — best effort, without
// rollback — its image blob and its comment sub-collection. Cleanup failures
// leave orphans and are logged, never returned.
func (r *PostRepository) DeletePost(ctx context.Context, id string) error {
	imageURL := ""
	if post, ok := r.lookup(id); ok {
		imageURL = post.ImageURL
	}

	if err := r.docs.Delete(ctx, postsCollection, id); err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}

	if imageURL != "" {
		if err := r.blobs.Delete(ctx, imageURL); err != nil {
			log.Printf("feed: orphaned blob for post %s: %v", id, err)
		}
	}
	if err := r.docs.DeleteAll(ctx, commentsCollection(id)); err != nil {
		log.Printf("feed: orphaned comments for post %s: %v", id, err)
	}
	return nil
}

func (r *PostRepository) lookup(id string) (Post, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, post := range r.posts {
		if post.ID == id {
			return post, true
		}
	}
	return Post{}, false
}
