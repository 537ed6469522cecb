// Package preference infers what a user likes, dislikes, wants or avoids
// from their prompts and ranks those stances by recency-weighted frequency.
package preference

import (
	"context"
	"strings"
	"unicode"
)

// Relation is a stance linking the user to a topic. The four built-in
// relations cover the cue words the extractor knows; inference can produce
// arbitrary relation strings.
type Relation string

const (
	Like    Relation = "like"
	Dislike Relation = "dislike"
	Want    Relation = "want"
	Avoid   Relation = "avoid"
)

// Sanitized returns the relation with every non-alphanumeric rune replaced
// by "_" so it can be used as a storage key fragment.
func (r Relation) Sanitized() string {
	return strings.Map(func(c rune) rune {
		if unicode.IsLetter(c) || unicode.IsNumber(c) {
			return c
		}
		return '_'
	}, string(r))
}

// Pair is a topic key with the relation the user expressed about it.
type Pair struct {
	Key      string
	Relation Relation
}

// Event is one detected preference mention. Events are append-only.
type Event struct {
	ID        string
	Key       string
	Relation  Relation
	Timestamp int64 // epoch seconds
}

// Item aggregates all mentions of one key+relation pair.
type Item struct {
	Key       string
	Relation  Relation
	UpdatedAt int64
	Count     int
}

// Status is the resolved stance for a key along with the stance it replaced.
type Status struct {
	Key       string
	Current   Relation
	UpdatedAt int64
	Previous  Relation
	ChangedAt int64
}

func (s Status) HasPrevious() bool {
	return s.Previous != ""
}

// Store persists preference state for a single user.
type Store interface {
	FetchEvents(ctx context.Context) ([]Event, error)
	AddEvents(ctx context.Context, events []Event) error
	DeleteEvent(ctx context.Context, id string) error

	FetchItems(ctx context.Context) ([]Item, error)
	// IncrementItems adds each item's Count to the stored count of its
	// key+relation and keeps the later UpdatedAt. Missing items are created.
	IncrementItems(ctx context.Context, items []Item) error
	DeleteItems(ctx context.Context, key string) error

	FetchStatus(ctx context.Context) ([]Status, error)
	UpdateStatus(ctx context.Context, status Status) error
	DeleteStatus(ctx context.Context, key string) error
}
