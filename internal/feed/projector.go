package feed

import "strings"

// Project returns the posts visible for one category, preserving the
// repository's ordering. Pure: the input is never mutated, so it is cheap
// and safe to call on every canonical-state or filter change.
func Project(posts []Post, category Category) []Post {
	out := make([]Post, 0, len(posts))
	for _, post := range posts {
		if post.Category == category {
			out = append(out, post)
		}
	}
	return out
}

// Search narrows posts to those whose content, hashtags or author match the
// query, case-insensitively, preserving order. An empty query matches
// everything.
func Search(posts []Post, query string) []Post {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return clonePosts(posts)
	}
	out := make([]Post, 0, len(posts))
	for _, post := range posts {
		if strings.Contains(strings.ToLower(post.Content), query) ||
			strings.Contains(strings.ToLower(post.Hashtags), query) ||
			strings.Contains(strings.ToLower(post.AuthorEmail), query) {
			out = append(out, post)
		}
	}
	return out
}
