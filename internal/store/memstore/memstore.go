// Package memstore is an in-memory store.Store used by tests and by the
// api-server when no database path is configured.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"chronozoom/internal/store"
	"chronozoom/pkg/models"
)

type Store struct {
	mu               sync.RWMutex
	superCollections map[uuid.UUID]models.SuperCollection
	collections      map[uuid.UUID]models.Collection
	timelines        map[uuid.UUID]models.Timeline
	exhibits         map[uuid.UUID]models.Exhibit
	contentItems     map[uuid.UUID]models.ContentItem
	tours            map[uuid.UUID]models.Tour
	users            map[uuid.UUID]models.User
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		superCollections: make(map[uuid.UUID]models.SuperCollection),
		collections:      make(map[uuid.UUID]models.Collection),
		timelines:        make(map[uuid.UUID]models.Timeline),
		exhibits:         make(map[uuid.UUID]models.Exhibit),
		contentItems:     make(map[uuid.UUID]models.ContentItem),
		tours:            make(map[uuid.UUID]models.Tour),
		users:            make(map[uuid.UUID]models.User),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) SuperCollection(_ context.Context, id uuid.UUID) (*models.SuperCollection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.superCollections[id]
	if !ok {
		return nil, nil
	}
	return &sc, nil
}

func (s *Store) Collection(_ context.Context, id uuid.UUID) (*models.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *Store) Collections(_ context.Context, superCollectionID uuid.UUID) ([]models.Collection, error) {
	return s.filterCollections(func(c models.Collection) bool {
		return c.SuperCollectionID == superCollectionID
	}), nil
}

func (s *Store) CollectionsByOwner(_ context.Context, ownerID uuid.UUID) ([]models.Collection, error) {
	return s.filterCollections(func(c models.Collection) bool {
		return c.OwnerID != nil && *c.OwnerID == ownerID
	}), nil
}

func (s *Store) filterCollections(keep func(models.Collection) bool) []models.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Collection, 0)
	for _, c := range s.collections {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (s *Store) Timeline(_ context.Context, id uuid.UUID) (*models.Timeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.timelines[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) ChildTimelines(_ context.Context, parentID uuid.UUID) ([]models.Timeline, error) {
	return s.filterTimelines(func(t models.Timeline) bool {
		return t.ParentID != nil && *t.ParentID == parentID
	}, 0), nil
}

func (s *Store) CollectionTimelines(_ context.Context, collectionID uuid.UUID) ([]models.Timeline, error) {
	return s.filterTimelines(func(t models.Timeline) bool {
		return t.CollectionID == collectionID
	}, 0), nil
}

func (s *Store) TimelinesInRange(_ context.Context, q store.RangeQuery) ([]models.Timeline, error) {
	return s.filterTimelines(func(t models.Timeline) bool {
		return t.CollectionID == q.CollectionID &&
			t.FromYear <= q.ToYear && t.ToYear >= q.FromYear &&
			t.Span() >= q.MinSpan
	}, q.Limit), nil
}

func (s *Store) filterTimelines(keep func(models.Timeline) bool, limit int) []models.Timeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Timeline, 0)
	for _, t := range s.timelines {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		if a.FromYear != b.FromYear {
			return a.FromYear < b.FromYear
		}
		return a.ID.String() < b.ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) Exhibit(_ context.Context, id uuid.UUID) (*models.Exhibit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.exhibits[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *Store) Exhibits(_ context.Context, timelineIDs []uuid.UUID) ([]models.Exhibit, error) {
	want := idSet(timelineIDs)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Exhibit, 0)
	for _, e := range s.exhibits {
		if _, ok := want[e.TimelineID]; ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) ContentItem(_ context.Context, id uuid.UUID) (*models.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ci, ok := s.contentItems[id]
	if !ok {
		return nil, nil
	}
	return &ci, nil
}

func (s *Store) ContentItems(_ context.Context, exhibitIDs []uuid.UUID) ([]models.ContentItem, error) {
	want := idSet(exhibitIDs)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ContentItem, 0)
	for _, ci := range s.contentItems {
		if _, ok := want[ci.ExhibitID]; ok {
			out = append(out, ci)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) Search(_ context.Context, collectionID uuid.UUID, term string) ([]models.SearchResult, error) {
	needle := strings.ToLower(term)
	match := func(fields ...string) bool {
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), needle) {
				return true
			}
		}
		return false
	}

	s.mu.RLock()
	var timelines, exhibits, items []models.SearchResult
	for _, t := range s.timelines {
		if t.CollectionID == collectionID && match(t.Title) {
			timelines = append(timelines, models.SearchResult{ID: t.ID, Title: t.Title, Type: "timeline"})
		}
	}
	for _, e := range s.exhibits {
		if e.CollectionID == collectionID && match(e.Title) {
			exhibits = append(exhibits, models.SearchResult{ID: e.ID, Title: e.Title, Type: "exhibit"})
		}
	}
	for _, ci := range s.contentItems {
		if ci.CollectionID == collectionID && match(ci.Title, ci.Caption) {
			items = append(items, models.SearchResult{ID: ci.ID, Title: ci.Title, Type: "contentitem"})
		}
	}
	s.mu.RUnlock()

	out := make([]models.SearchResult, 0, len(timelines)+len(exhibits)+len(items))
	for _, group := range [][]models.SearchResult{timelines, exhibits, items} {
		sortResults(group)
		out = append(out, group...)
	}
	return out, nil
}

func sortResults(rs []models.SearchResult) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := strings.ToLower(rs[i].Title), strings.ToLower(rs[j].Title)
		if a != b {
			return a < b
		}
		return rs[i].ID.String() < rs[j].ID.String()
	})
}

func (s *Store) Tour(_ context.Context, id uuid.UUID) (*models.Tour, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tours[id]
	if !ok {
		return nil, nil
	}
	t.Bookmarks = append([]models.Bookmark(nil), t.Bookmarks...)
	return &t, nil
}

func (s *Store) Tours(_ context.Context, collectionID uuid.UUID) ([]models.Tour, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Tour, 0)
	for _, t := range s.tours {
		if t.CollectionID == collectionID {
			t.Bookmarks = append([]models.Bookmark(nil), t.Bookmarks...)
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) User(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) UserByIdentity(_ context.Context, nameIdentifier, identityProvider string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.NameIdentifier == nameIdentifier && u.IdentityProvider == identityProvider {
			return &u, nil
		}
	}
	return nil, nil
}

// Commit applies every queued change under one write lock.
func (s *Store) Commit(ctx context.Context, b *store.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range b.Ops() {
		switch op.Kind {
		case store.OpPutSuperCollection:
			s.superCollections[op.ID] = *op.SuperCollection
		case store.OpPutCollection:
			s.collections[op.ID] = *op.Collection
		case store.OpPutTimeline:
			s.timelines[op.ID] = *op.Timeline
		case store.OpPutExhibit:
			s.exhibits[op.ID] = *op.Exhibit
		case store.OpPutContentItem:
			s.contentItems[op.ID] = *op.ContentItem
		case store.OpPutTour:
			s.tours[op.ID] = *op.Tour
		case store.OpPutUser:
			s.users[op.ID] = *op.User
		case store.OpDeleteSuperCollection:
			delete(s.superCollections, op.ID)
		case store.OpDeleteCollection:
			delete(s.collections, op.ID)
		case store.OpDeleteTimeline:
			delete(s.timelines, op.ID)
		case store.OpDeleteExhibit:
			delete(s.exhibits, op.ID)
		case store.OpDeleteContentItem:
			delete(s.contentItems, op.ID)
		case store.OpDeleteTour:
			delete(s.tours, op.ID)
		case store.OpDeleteUser:
			delete(s.users, op.ID)
		}
	}
	return nil
}

func idSet(ids []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
