package feed

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"eunify/feed/internal/assets"
	"eunify/feed/internal/docstore"
	"eunify/feed/internal/identity"
)

type fakeDocStore struct {
	addFn       func(ctx context.Context, path string, data map[string]any) (string, error)
	setFn       func(ctx context.Context, path, id string, data map[string]any) error
	updateFn    func(ctx context.Context, path, id string, patch map[string]any) error
	deleteFn    func(ctx context.Context, path, id string) error
	deleteAllFn func(ctx context.Context, path string) error
	observeFn   func(ctx context.Context, path string) (<-chan docstore.Snapshot, error)
}

func (f *fakeDocStore) Add(ctx context.Context, path string, data map[string]any) (string, error) {
	if f.addFn != nil {
		return f.addFn(ctx, path, data)
	}
	return "generated-id", nil
}

func (f *fakeDocStore) Set(ctx context.Context, path, id string, data map[string]any) error {
	if f.setFn != nil {
		return f.setFn(ctx, path, id, data)
	}
	return nil
}

func (f *fakeDocStore) Update(ctx context.Context, path, id string, patch map[string]any) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, path, id, patch)
	}
	return nil
}

func (f *fakeDocStore) Delete(ctx context.Context, path, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, path, id)
	}
	return nil
}

func (f *fakeDocStore) DeleteAll(ctx context.Context, path string) error {
	if f.deleteAllFn != nil {
		return f.deleteAllFn(ctx, path)
	}
	return nil
}

func (f *fakeDocStore) Observe(ctx context.Context, path string) (<-chan docstore.Snapshot, error) {
	if f.observeFn != nil {
		return f.observeFn(ctx, path)
	}
	ch := make(chan docstore.Snapshot)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (f *fakeDocStore) Close() error { return nil }

type fakeBlobStore struct {
	uploadURL string
	uploadErr error
	deleteErr error
	deleteFn  func(url string) error
	uploads   int
	deletes   int
	lastNS    assets.Namespace
}

func (f *fakeBlobStore) Upload(_ context.Context, ns assets.Namespace, _ io.Reader, _ int64, _ string) (string, error) {
	f.uploads++
	f.lastNS = ns
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	if f.uploadURL != "" {
		return f.uploadURL, nil
	}
	return "http://media/b/" + string(ns) + "/generated.jpg", nil
}

func (f *fakeBlobStore) Delete(_ context.Context, url string) error {
	f.deletes++
	if f.deleteFn != nil {
		return f.deleteFn(url)
	}
	return f.deleteErr
}

func postDoc(id string, category Category, createdAt time.Time) docstore.Document {
	return docstore.Document{
		ID: id,
		Data: map[string]any{
			"content":   "content of " + id,
			"tags":      "#go",
			"createdBy": "alice@example.com",
			"category":  string(category),
			"time":      createdAt,
		},
	}
}

func newTestRepo() *PostRepository {
	return NewPostRepository(&fakeDocStore{}, &fakeBlobStore{}, identity.NewStatic("alice@example.com", "Alice"))
}

func TestReconcileSortsAndSkipsMalformed(t *testing.T) {
	repo := newTestRepo()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := docstore.Snapshot{
		postDoc("c", CategorySchool, base.Add(-time.Hour)),
		{ID: "broken", Data: map[string]any{"tags": "#x"}},
		postDoc("b", CategoryTrending, base),
		postDoc("a", CategoryTrending, base),
	}
	repo.reconcile(snap)

	posts := repo.Posts()
	if len(posts) != 3 {
		t.Fatalf("expected 3 posts, got %d", len(posts))
	}
	// Newest first; equal timestamps break ties by id ascending.
	got := []string{posts[0].ID, posts[1].ID, posts[2].ID}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestReconcileOrderIndependentOfDelivery(t *testing.T) {
	repo := newTestRepo()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	forward := docstore.Snapshot{
		postDoc("a", CategoryTrending, base),
		postDoc("b", CategoryTrending, base.Add(time.Minute)),
	}
	reversed := docstore.Snapshot{forward[1], forward[0]}

	repo.reconcile(forward)
	first := repo.Posts()
	repo.reconcile(reversed)
	second := repo.Posts()

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected 2 posts in both reconciliations")
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("order depends on delivery order: %v vs %v", first, second)
		}
	}
}

func TestReconcileNotifiesEverySnapshot(t *testing.T) {
	repo := newTestRepo()

	calls := 0
	cancel := repo.Subscribe(func([]Post) { calls++ })
	defer cancel()

	snap := docstore.Snapshot{postDoc("a", CategoryTrending, time.Now())}
	repo.reconcile(snap)
	repo.reconcile(snap)

	// One initial delivery plus one per snapshot, identical content or not.
	if calls != 3 {
		t.Fatalf("expected 3 notifications, got %d", calls)
	}
}

func TestSubscribeDeliversCurrentState(t *testing.T) {
	repo := newTestRepo()
	repo.reconcile(docstore.Snapshot{postDoc("a", CategorySchool, time.Now())})

	var got []Post
	cancel := repo.Subscribe(func(posts []Post) { got = posts })
	defer cancel()

	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("expected current state on subscribe, got %v", got)
	}
}

func TestSubscribeDuringReconcileNeverEndsStale(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	one := docstore.Snapshot{postDoc("a", CategoryTrending, base)}
	two := docstore.Snapshot{
		postDoc("a", CategoryTrending, base),
		postDoc("b", CategoryTrending, base.Add(time.Minute)),
	}

	for i := 0; i < 500; i++ {
		repo := newTestRepo()
		repo.reconcile(one)

		var mu sync.Mutex
		var last []Post
		done := make(chan struct{})
		go func() {
			defer close(done)
			repo.reconcile(two)
		}()
		cancel := repo.Subscribe(func(posts []Post) {
			mu.Lock()
			last = posts
			mu.Unlock()
		})
		<-done
		cancel()

		// Whatever the interleaving, the subscriber's final delivery must
		// match the canonical collection.
		mu.Lock()
		got := len(last)
		mu.Unlock()
		if want := len(repo.Posts()); got != want {
			t.Fatalf("iteration %d: final delivery has %d posts, canonical has %d", i, got, want)
		}
	}
}

func TestCancelStopsDeliveryAndIsIdempotent(t *testing.T) {
	repo := newTestRepo()

	calls := 0
	cancel := repo.Subscribe(func([]Post) { calls++ })
	cancel()
	cancel()

	repo.reconcile(docstore.Snapshot{postDoc("a", CategoryTrending, time.Now())})
	if calls != 1 {
		t.Fatalf("expected only the initial delivery, got %d calls", calls)
	}
}

func TestCreatePostWithoutImage(t *testing.T) {
	var gotPath string
	var gotData map[string]any
	docs := &fakeDocStore{
		addFn: func(_ context.Context, path string, data map[string]any) (string, error) {
			gotPath = path
			gotData = data
			return "id1", nil
		},
	}
	blobs := &fakeBlobStore{}
	repo := NewPostRepository(docs, blobs, identity.NewStatic("alice@example.com", "Alice"))

	draft := Draft{Content: "hello", Hashtags: "#go", Category: CategoryProgramming}
	if err := repo.CreatePost(context.Background(), draft, nil); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	if gotPath != "posts" {
		t.Errorf("expected posts collection, got %q", gotPath)
	}
	if blobs.uploads != 0 {
		t.Errorf("expected no uploads, got %d", blobs.uploads)
	}
	if gotData["createdBy"] != "alice@example.com" {
		t.Errorf("expected author email, got %v", gotData["createdBy"])
	}
	if gotData["time"] != docstore.ServerTimestamp {
		t.Errorf("expected server timestamp marker, got %v", gotData["time"])
	}
	if _, present := gotData["imageUrl"]; present {
		t.Errorf("imageUrl must be absent without an image")
	}
}

func TestCreatePostUploadFailureSkipsWrite(t *testing.T) {
	writes := 0
	docs := &fakeDocStore{
		addFn: func(context.Context, string, map[string]any) (string, error) {
			writes++
			return "", nil
		},
	}
	blobs := &fakeBlobStore{uploadErr: assets.ErrUploadFailed}
	repo := NewPostRepository(docs, blobs, identity.NewStatic("alice@example.com", "Alice"))

	image := &ImageUpload{Reader: strings.NewReader("jpeg"), Size: 4, ContentType: "image/jpeg"}
	err := repo.CreatePost(context.Background(), Draft{Content: "x", Category: CategoryTrending}, image)
	if !errors.Is(err, assets.ErrUploadFailed) {
		t.Fatalf("expected upload failure, got %v", err)
	}
	if writes != 0 {
		t.Fatalf("post must not be written when the upload fails; got %d writes", writes)
	}
}

func TestCreatePostWithImageWritesURL(t *testing.T) {
	var gotData map[string]any
	docs := &fakeDocStore{
		addFn: func(_ context.Context, _ string, data map[string]any) (string, error) {
			gotData = data
			return "id1", nil
		},
	}
	blobs := &fakeBlobStore{uploadURL: "http://media/eunify-media/post_images/u1.jpg"}
	repo := NewPostRepository(docs, blobs, identity.NewStatic("alice@example.com", "Alice"))

	image := &ImageUpload{Reader: strings.NewReader("jpeg"), Size: 4, ContentType: "image/jpeg"}
	if err := repo.CreatePost(context.Background(), Draft{Content: "x", Category: CategoryTrending}, image); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	if blobs.uploads != 1 {
		t.Fatalf("expected one upload, got %d", blobs.uploads)
	}
	if gotData["imageUrl"] != blobs.uploadURL {
		t.Fatalf("expected image url in document, got %v", gotData["imageUrl"])
	}
}

func TestDeletePostBlobAfterDocument(t *testing.T) {
	var order []string
	docs := &fakeDocStore{
		deleteFn: func(_ context.Context, path, id string) error {
			order = append(order, "document")
			return nil
		},
		deleteAllFn: func(_ context.Context, path string) error {
			order = append(order, "comments:"+path)
			return nil
		},
	}
	blobs := &fakeBlobStore{
		deleteFn: func(url string) error {
			order = append(order, "blob:"+url)
			return nil
		},
	}
	repo := NewPostRepository(docs, blobs, identity.NewStatic("alice@example.com", "Alice"))

	doc := postDoc("p1", CategoryTrending, time.Now())
	doc.Data["imageUrl"] = "http://media/eunify-media/post_images/u1.jpg"
	repo.reconcile(docstore.Snapshot{doc})

	if err := repo.DeletePost(context.Background(), "p1"); err != nil {
		t.Fatalf("DeletePost failed: %v", err)
	}

	want := []string{
		"document",
		"blob:http://media/eunify-media/post_images/u1.jpg",
		"comments:posts/p1/comments",
	}
	if len(order) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, order)
		}
	}
}

func TestDeletePostDocumentFailureSkipsBlob(t *testing.T) {
	docs := &fakeDocStore{
		deleteFn: func(context.Context, string, string) error {
			return docstore.ErrDeleteFailed
		},
	}
	blobs := &fakeBlobStore{}
	repo := NewPostRepository(docs, blobs, identity.NewStatic("alice@example.com", "Alice"))

	doc := postDoc("p1", CategoryTrending, time.Now())
	doc.Data["imageUrl"] = "http://media/b/post_images/u1.jpg"
	repo.reconcile(docstore.Snapshot{doc})

	err := repo.DeletePost(context.Background(), "p1")
	if !errors.Is(err, docstore.ErrDeleteFailed) {
		t.Fatalf("expected delete failure, got %v", err)
	}
	if blobs.deletes != 0 {
		t.Fatalf("blob delete must not run when the document delete failed")
	}
}

func TestDeletePostBlobFailureIsNotFatal(t *testing.T) {
	docs := &fakeDocStore{}
	blobs := &fakeBlobStore{deleteErr: assets.ErrDeleteFailed}
	repo := NewPostRepository(docs, blobs, identity.NewStatic("alice@example.com", "Alice"))

	doc := postDoc("p1", CategoryTrending, time.Now())
	doc.Data["imageUrl"] = "http://media/b/post_images/u1.jpg"
	repo.reconcile(docstore.Snapshot{doc})

	if err := repo.DeletePost(context.Background(), "p1"); err != nil {
		t.Fatalf("orphaned blob must not fail the delete, got %v", err)
	}
	if blobs.deletes != 1 {
		t.Fatalf("expected one blob delete attempt, got %d", blobs.deletes)
	}
}

func TestEditPostPatchesOnlySetFields(t *testing.T) {
	var gotPatch map[string]any
	docs := &fakeDocStore{
		updateFn: func(_ context.Context, _, _ string, patch map[string]any) error {
			gotPatch = patch
			return nil
		},
	}
	repo := NewPostRepository(docs, &fakeBlobStore{}, identity.NewStatic("alice@example.com", "Alice"))

	content := "updated"
	category := CategoryOutdoor
	err := repo.EditPost(context.Background(), "p1", Patch{Content: &content, Category: &category}, nil)
	if err != nil {
		t.Fatalf("EditPost failed: %v", err)
	}

	if gotPatch["content"] != "updated" || gotPatch["category"] != "Outdoor" {
		t.Fatalf("unexpected patch %v", gotPatch)
	}
	if _, present := gotPatch["tags"]; present {
		t.Fatalf("tags must not be patched when unset")
	}
}

func TestEditPostUploadFailureSkipsUpdate(t *testing.T) {
	updates := 0
	docs := &fakeDocStore{
		updateFn: func(context.Context, string, string, map[string]any) error {
			updates++
			return nil
		},
	}
	blobs := &fakeBlobStore{uploadErr: assets.ErrUploadFailed}
	repo := NewPostRepository(docs, blobs, identity.NewStatic("alice@example.com", "Alice"))

	image := &ImageUpload{Reader: strings.NewReader("jpeg"), Size: 4, ContentType: "image/jpeg"}
	err := repo.EditPost(context.Background(), "p1", Patch{}, image)
	if !errors.Is(err, assets.ErrUploadFailed) {
		t.Fatalf("expected upload failure, got %v", err)
	}
	if updates != 0 {
		t.Fatalf("document must not be updated when the upload fails")
	}
}

func TestEditPostReplacedImageDeletedBestEffort(t *testing.T) {
	docs := &fakeDocStore{}
	var deleted []string
	blobs := &fakeBlobStore{
		uploadURL: "http://media/b/post_images/new.jpg",
		deleteFn: func(url string) error {
			deleted = append(deleted, url)
			return nil
		},
	}
	repo := NewPostRepository(docs, blobs, identity.NewStatic("alice@example.com", "Alice"))

	doc := postDoc("p1", CategoryTrending, time.Now())
	doc.Data["imageUrl"] = "http://media/b/post_images/old.jpg"
	repo.reconcile(docstore.Snapshot{doc})

	image := &ImageUpload{Reader: strings.NewReader("jpeg"), Size: 4, ContentType: "image/jpeg"}
	if err := repo.EditPost(context.Background(), "p1", Patch{}, image); err != nil {
		t.Fatalf("EditPost failed: %v", err)
	}

	if len(deleted) != 1 || deleted[0] != "http://media/b/post_images/old.jpg" {
		t.Fatalf("expected the replaced blob to be deleted, got %v", deleted)
	}
}

func TestStartReconcilesObservedSnapshots(t *testing.T) {
	snapshots := make(chan docstore.Snapshot)
	docs := &fakeDocStore{
		observeFn: func(context.Context, string) (<-chan docstore.Snapshot, error) {
			return snapshots, nil
		},
	}
	repo := NewPostRepository(docs, &fakeBlobStore{}, identity.NewStatic("alice@example.com", "Alice"))

	delivered := make(chan []Post, 4)
	cancel := repo.Subscribe(func(posts []Post) { delivered <- posts })
	defer cancel()
	<-delivered // initial empty state

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if err := repo.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	snapshots <- docstore.Snapshot{postDoc("a", CategoryTrending, time.Now())}
	select {
	case posts := <-delivered:
		if len(posts) != 1 || posts[0].ID != "a" {
			t.Fatalf("unexpected delivery %v", posts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reconciled snapshot")
	}

	close(snapshots)
	select {
	case <-repo.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after the stream closed")
	}
}
