package feed

import (
	"context"
	"fmt"
	"log"

	"eunify/feed/internal/assets"
	"eunify/feed/internal/docstore"
	"eunify/feed/internal/identity"
)

const usersCollection = "users"

// ProfileRepository maintains the signed-in user's profile document, keyed
// by email. Avatars follow the same upload-then-write sequence as post
// images.
type ProfileRepository struct {
	docs  docstore.Store
	blobs assets.Store
	who   identity.Provider
}

func NewProfileRepository(docs docstore.Store, blobs assets.Store, who identity.Provider) *ProfileRepository {
	return &ProfileRepository{docs: docs, blobs: blobs, who: who}
}

// SetProfileImage uploads the new avatar and upserts the profile document
// with its URL. An upload failure leaves the profile untouched; a write
// failure after the upload leaves an orphaned blob, which is logged.
// Returns the new avatar URL.
func (p *ProfileRepository) SetProfileImage(ctx context.Context, image ImageUpload) (string, error) {
	user := p.who.Current()

	url, err := p.blobs.Upload(ctx, assets.ProfileImages, image.Reader, image.Size, image.ContentType)
	if err != nil {
		return "", fmt.Errorf("upload profile image: %w", err)
	}

	fields := map[string]any{
		"photoUrl": url,
		"name":     user.DisplayName,
		"email":    user.Email,
		"updated":  docstore.ServerTimestamp,
	}
	if err := p.docs.Set(ctx, usersCollection, user.Email, fields); err != nil {
		log.Printf("feed: orphaned blob %s after failed profile write for %s", url, user.Email)
		return "", fmt.Errorf("update profile %s: %w", user.Email, err)
	}
	return url, nil
}
