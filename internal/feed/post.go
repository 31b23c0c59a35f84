package feed

import (
	"sort"
	"strings"
	"time"

	"eunify/feed/internal/docstore"
)

// Category is the partition a post belongs to. Every post maps to exactly
// one bucket.
type Category string

const (
	CategoryTrending    Category = "Trending"
	CategoryProgramming Category = "Programming"
	CategoryOutdoor     Category = "Outdoor"
	CategorySchool      Category = "School"
)

// Categories lists the buckets in display order.
var Categories = []Category{CategoryTrending, CategoryProgramming, CategoryOutdoor, CategorySchool}

func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Post is one reconciled feed entry.
type Post struct {
	ID           string
	AuthorEmail  string
	AuthorHandle string
	Content      string
	Hashtags     string
	Category     Category
	ImageURL     string
	CreatedAt    time.Time
}

const postsCollection = "posts"

func commentsCollection(postID string) string {
	return postsCollection + "/" + postID + "/comments"
}

// parsePost validates one remote document into a Post. Required fields:
// content, tags, createdBy, time, category. imageUrl is optional.
func parsePost(doc docstore.Document) (Post, *ParseError) {
	content, perr := fieldString(doc, "content")
	if perr != nil {
		return Post{}, perr
	}
	tags, perr := fieldString(doc, "tags")
	if perr != nil {
		return Post{}, perr
	}
	createdBy, perr := fieldString(doc, "createdBy")
	if perr != nil {
		return Post{}, perr
	}
	rawCategory, perr := fieldString(doc, "category")
	if perr != nil {
		return Post{}, perr
	}
	category, ok := ParseCategory(rawCategory)
	if !ok {
		return Post{}, &ParseError{DocID: doc.ID, Field: "category", Reason: "is not a known category"}
	}
	createdAt, perr := fieldTime(doc, "time")
	if perr != nil {
		return Post{}, perr
	}

	imageURL := ""
	if raw, present := doc.Data["imageUrl"]; present {
		s, ok := raw.(string)
		if !ok {
			return Post{}, &ParseError{DocID: doc.ID, Field: "imageUrl", Reason: "is not a string"}
		}
		imageURL = s
	}

	local, _, _ := strings.Cut(createdBy, "@")
	return Post{
		ID:           doc.ID,
		AuthorEmail:  createdBy,
		AuthorHandle: "@" + local,
		Content:      content,
		Hashtags:     tags,
		Category:     category,
		ImageURL:     imageURL,
		CreatedAt:    createdAt,
	}, nil
}

// sortPosts orders by CreatedAt descending, id ascending on ties, so the
// collection order is deterministic regardless of document delivery order.
func sortPosts(posts []Post) {
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID < posts[j].ID
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}

func clonePosts(posts []Post) []Post {
	out := make([]Post, len(posts))
	copy(out, posts)
	return out
}

func fieldString(doc docstore.Document, name string) (string, *ParseError) {
	raw, present := doc.Data[name]
	if !present {
		return "", &ParseError{DocID: doc.ID, Field: name, Reason: "is missing"}
	}
	s, ok := raw.(string)
	if !ok {
		return "", &ParseError{DocID: doc.ID, Field: name, Reason: "is not a string"}
	}
	return s, nil
}

func fieldTime(doc docstore.Document, name string) (time.Time, *ParseError) {
	raw, present := doc.Data[name]
	if !present {
		return time.Time{}, &ParseError{DocID: doc.ID, Field: name, Reason: "is missing"}
	}
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, &ParseError{DocID: doc.ID, Field: name, Reason: "is not a timestamp"}
		}
		return t, nil
	default:
		return time.Time{}, &ParseError{DocID: doc.ID, Field: name, Reason: "is not a timestamp"}
	}
}
