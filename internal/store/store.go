// Package store defines the durable storage boundary of the timeline tree.
//
// Reads go straight to the backend. Writes are queued on a Batch and
// applied together by a single Commit call: either every queued change is
// stored or none is.
package store

import (
	"context"

	"github.com/google/uuid"

	"chronozoom/pkg/models"
)

// RangeQuery selects the timelines of one collection whose range
// intersects [FromYear, ToYear] and whose span is at least MinSpan.
// Results are ordered by depth, then FromYear, then ID, and at most Limit
// rows are returned (Limit <= 0 means no limit).
type RangeQuery struct {
	CollectionID uuid.UUID
	FromYear     float64
	ToYear       float64
	MinSpan      float64
	Limit        int
}

// Store is implemented by every backend. Lookups by id return nil, nil when
// the row does not exist.
type Store interface {
	Ping(ctx context.Context) error

	SuperCollection(ctx context.Context, id uuid.UUID) (*models.SuperCollection, error)
	Collection(ctx context.Context, id uuid.UUID) (*models.Collection, error)
	Collections(ctx context.Context, superCollectionID uuid.UUID) ([]models.Collection, error)
	CollectionsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Collection, error)

	Timeline(ctx context.Context, id uuid.UUID) (*models.Timeline, error)
	ChildTimelines(ctx context.Context, parentID uuid.UUID) ([]models.Timeline, error)
	CollectionTimelines(ctx context.Context, collectionID uuid.UUID) ([]models.Timeline, error)
	TimelinesInRange(ctx context.Context, q RangeQuery) ([]models.Timeline, error)

	Exhibit(ctx context.Context, id uuid.UUID) (*models.Exhibit, error)
	Exhibits(ctx context.Context, timelineIDs []uuid.UUID) ([]models.Exhibit, error)

	ContentItem(ctx context.Context, id uuid.UUID) (*models.ContentItem, error)
	ContentItems(ctx context.Context, exhibitIDs []uuid.UUID) ([]models.ContentItem, error)

	Search(ctx context.Context, collectionID uuid.UUID, term string) ([]models.SearchResult, error)

	Tour(ctx context.Context, id uuid.UUID) (*models.Tour, error)
	Tours(ctx context.Context, collectionID uuid.UUID) ([]models.Tour, error)

	User(ctx context.Context, id uuid.UUID) (*models.User, error)
	UserByIdentity(ctx context.Context, nameIdentifier, identityProvider string) (*models.User, error)

	Commit(ctx context.Context, b *Batch) error
}
