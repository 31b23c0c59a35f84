package feed

import (
	"sort"
	"time"

	"eunify/feed/internal/docstore"
)

// Comment is one entry in a post's thread. Comments are created, never
// edited; they disappear only when their post is deleted.
type Comment struct {
	ID        string
	PostID    string
	Author    string
	Text      string
	CreatedAt time.Time
}

// parseComment validates one remote comment document. Required fields:
// text, author, timestamp. Extra fields such as reaction counters are
// accepted and ignored.
func parseComment(postID string, doc docstore.Document) (Comment, *ParseError) {
	text, perr := fieldString(doc, "text")
	if perr != nil {
		return Comment{}, perr
	}
	author, perr := fieldString(doc, "author")
	if perr != nil {
		return Comment{}, perr
	}
	createdAt, perr := fieldTime(doc, "timestamp")
	if perr != nil {
		return Comment{}, perr
	}

	return Comment{
		ID:        doc.ID,
		PostID:    postID,
		Author:    author,
		Text:      text,
		CreatedAt: createdAt,
	}, nil
}

// sortComments orders most-recent-first, id ascending on ties.
func sortComments(comments []Comment) {
	sort.Slice(comments, func(i, j int) bool {
		if comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].ID < comments[j].ID
		}
		return comments[i].CreatedAt.After(comments[j].CreatedAt)
	})
}
