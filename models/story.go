package models

import (
	"time"

	"github.com/google/uuid"
)

// Story is a single Hacker News story extracted from the front page.
//
// HNID is the canonical business key — all deduplication and upsert logic
// keys on it, never on the surrogate ID. Stories are value types: enrichment
// (WithTopComment) and re-observation produce new values, existing ones are
// never mutated.
type Story struct {
	// ID is the surrogate identity, generated once at first construction and
	// preserved across upserts.
	ID uuid.UUID `json:"id"`

	// HNID is the Hacker News item ID (e.g. "12345678"). Unique business key.
	HNID string `json:"hn_id"`

	// Title is the headline as displayed on the front page.
	Title string `json:"title"`

	// URL is the external link target. Empty for Ask HN / Show HN posts whose
	// title links back to the item page itself.
	URL string `json:"url,omitempty"`

	// Rank is the 1-indexed front-page position at scrape time.
	Rank int `json:"rank"`

	Points        int    `json:"points"`
	Author        string `json:"author"`
	CommentsCount int    `json:"comments_count"`

	// TopComment is the first displayed comment on the story's item page,
	// truncated to the configured cap. Empty when the story has no comments
	// or comment scraping failed for this story.
	TopComment string `json:"top_comment,omitempty"`

	// ScrapedAt is updated on every observation; CreatedAt is set once and
	// preserved across upserts.
	ScrapedAt time.Time `json:"scraped_at"`
	CreatedAt time.Time `json:"created_at"`
}

// NewStory constructs a Story with a fresh surrogate ID and current timestamps.
func NewStory(hnID, title, url string, rank, points int, author string, commentsCount int) Story {
	now := time.Now().UTC()
	return Story{
		ID:            uuid.New(),
		HNID:          hnID,
		Title:         title,
		URL:           url,
		Rank:          rank,
		Points:        points,
		Author:        author,
		CommentsCount: commentsCount,
		ScrapedAt:     now,
		CreatedAt:     now,
	}
}

// WithTopComment returns a copy of the story carrying the given comment text.
func (s Story) WithTopComment(comment string) Story {
	s.TopComment = comment
	return s
}
