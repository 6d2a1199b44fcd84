package timeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"chronozoom/internal/auth"
	"chronozoom/internal/identity"
	"chronozoom/internal/store"
	"chronozoom/internal/sync"
	"chronozoom/pkg/models"
)

// SandboxTitle names both the shared super collection and its collection.
const SandboxTitle = "Sandbox"

// SandboxRef addresses the shared collection anonymous callers work in.
var SandboxRef = CollectionRef{SuperCollection: SandboxTitle, Collection: SandboxTitle}

// CollectionInput carries the fields of PutCollectionName. Title must
// derive to the addressed collection.
type CollectionInput struct {
	Title              string
	Description        string
	Theme              string
	PubliclySearchable *bool
}

// PutCollectionName creates the addressed collection, and its super
// collection when needed, or updates its mutable fields.
func (e *MutationEngine) PutCollectionName(ctx context.Context, acting *models.User, ref CollectionRef, in *CollectionInput) (uuid.UUID, error) {
	id, err := e.putCollection(ctx, acting, ref, in)
	return id, e.record("put_collection", err)
}

func (e *MutationEngine) putCollection(ctx context.Context, acting *models.User, ref CollectionRef, in *CollectionInput) (uuid.UUID, error) {
	if in == nil {
		return uuid.Nil, newError(KindRequestBodyEmpty, "collection body is empty")
	}
	if !identity.ValidTitle(ref.SuperCollection) || !identity.ValidTitle(in.Title) {
		return uuid.Nil, newError(KindRequestBodyEmpty, "titles must be non-empty and must not contain %q", identity.Separator)
	}
	collectionID := ref.ID()
	if identity.DeriveCollectionID(ref.SuperCollection, in.Title) != collectionID {
		return uuid.Nil, newError(KindCollectionIdMismatch, "title %q does not name %s", in.Title, ref)
	}

	coll, err := e.store.Collection(ctx, collectionID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("get collection: %w", err)
	}

	b := store.NewBatch()
	if coll != nil {
		owner, err := collectionOwner(ctx, e.store, coll)
		if err != nil {
			return uuid.Nil, err
		}
		if !auth.CanModify(acting, owner) {
			return uuid.Nil, newError(KindUnauthorizedUser, "collection %s belongs to another user", ref)
		}
		coll.Description = in.Description
		coll.Theme = in.Theme
		if in.PubliclySearchable != nil {
			coll.PubliclySearchable = *in.PubliclySearchable
		}
		b.PutCollection(*coll)
	} else {
		var ownerID *uuid.UUID
		if acting != nil {
			u, err := e.store.UserByIdentity(ctx, acting.NameIdentifier, acting.IdentityProvider)
			if err != nil {
				return uuid.Nil, fmt.Errorf("get user: %w", err)
			}
			if u == nil {
				return uuid.Nil, newError(KindUserNotFound, "register before creating collections")
			}
			ownerID = &u.ID
		}

		sc, err := e.store.SuperCollection(ctx, ref.SuperCollectionID())
		if err != nil {
			return uuid.Nil, fmt.Errorf("get super collection: %w", err)
		}
		if sc == nil {
			b.PutSuperCollection(models.SuperCollection{ID: ref.SuperCollectionID(), Title: ref.SuperCollection, OwnerID: ownerID})
		} else {
			owner, err := e.ownerByID(ctx, sc.OwnerID)
			if err != nil {
				return uuid.Nil, err
			}
			if !auth.CanModify(acting, owner) {
				return uuid.Nil, newError(KindUnauthorizedUser, "super collection %q belongs to another user", ref.SuperCollection)
			}
		}

		created := e.newCollection(ref.SuperCollection, in.Title, ownerID)
		created.Description = in.Description
		created.Theme = in.Theme
		if in.PubliclySearchable != nil {
			created.PubliclySearchable = *in.PubliclySearchable
		}
		e.queueCollection(b, created)
		coll = &created
	}

	ev := sync.TreeEvent{Type: sync.EventCollectionPut, CollectionID: coll.ID, ID: coll.ID, Title: coll.Title}
	if err := e.commit(ctx, b, ev, coll.ID); err != nil {
		return uuid.Nil, err
	}
	return coll.ID, nil
}

func (e *MutationEngine) newCollection(superTitle, title string, ownerID *uuid.UUID) models.Collection {
	return models.Collection{
		ID:                identity.DeriveCollectionID(superTitle, title),
		SuperCollectionID: identity.DeriveSuperCollectionID(superTitle),
		Title:             title,
		Path:              identity.CollectionPath(superTitle, title),
		OwnerID:           ownerID,
	}
}

// queueCollection queues coll together with its root timeline.
func (e *MutationEngine) queueCollection(b *store.Batch, coll models.Collection) {
	b.PutCollection(coll)
	b.PutTimeline(models.Timeline{
		ID:           e.newID(),
		CollectionID: coll.ID,
		Title:        RootTimelineTitle,
		FromYear:     MinYear,
		ToYear:       MaxYear,
	})
}

func (e *MutationEngine) ownerByID(ctx context.Context, id *uuid.UUID) (*models.User, error) {
	if id == nil {
		return nil, nil
	}
	u, err := e.store.User(ctx, *id)
	if err != nil {
		return nil, fmt.Errorf("get owner: %w", err)
	}
	if u == nil {
		return &models.User{ID: *id}, nil
	}
	return u, nil
}

// DeleteCollection removes a collection with every timeline, exhibit,
// content item and tour in it. The super collection is kept.
func (e *MutationEngine) DeleteCollection(ctx context.Context, acting *models.User, ref CollectionRef) error {
	return e.record("delete_collection", e.deleteCollection(ctx, acting, ref))
}

func (e *MutationEngine) deleteCollection(ctx context.Context, acting *models.User, ref CollectionRef) error {
	sc, err := e.store.SuperCollection(ctx, ref.SuperCollectionID())
	if err != nil {
		return fmt.Errorf("get super collection: %w", err)
	}
	if sc == nil {
		return newError(KindSuperCollectionNotFound, "super collection %q", ref.SuperCollection)
	}
	coll, err := e.authorize(ctx, acting, ref)
	if err != nil {
		return err
	}

	b := store.NewBatch()
	if err := e.queueCollectionDelete(ctx, b, coll.ID); err != nil {
		return err
	}
	return e.commit(ctx, b, sync.TreeEvent{Type: sync.EventCollectionDelete, CollectionID: coll.ID, ID: coll.ID}, coll.ID)
}

func (e *MutationEngine) queueCollectionDelete(ctx context.Context, b *store.Batch, collectionID uuid.UUID) error {
	timelines, err := e.store.CollectionTimelines(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("list collection timelines: %w", err)
	}
	ids := make([]uuid.UUID, len(timelines))
	for i, t := range timelines {
		ids[i] = t.ID
	}
	if err := e.queueExhibitsDelete(ctx, b, ids); err != nil {
		return err
	}
	// Deepest first.
	for i := len(ids) - 1; i >= 0; i-- {
		b.DeleteTimeline(ids[i])
	}

	tours, err := e.store.Tours(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("list tours: %w", err)
	}
	for _, t := range tours {
		b.DeleteTour(t.ID)
	}
	b.DeleteCollection(collectionID)
	return nil
}

// EnsureSandbox creates the shared sandbox collection when it is missing.
func (e *MutationEngine) EnsureSandbox(ctx context.Context) error {
	coll, err := e.store.Collection(ctx, SandboxRef.ID())
	if err != nil {
		return fmt.Errorf("get sandbox collection: %w", err)
	}
	if coll != nil {
		return nil
	}

	b := store.NewBatch()
	sc, err := e.store.SuperCollection(ctx, SandboxRef.SuperCollectionID())
	if err != nil {
		return fmt.Errorf("get sandbox super collection: %w", err)
	}
	if sc == nil {
		b.PutSuperCollection(models.SuperCollection{ID: SandboxRef.SuperCollectionID(), Title: SandboxTitle})
	}
	created := e.newCollection(SandboxTitle, SandboxTitle, nil)
	created.PubliclySearchable = true
	e.queueCollection(b, created)

	ev := sync.TreeEvent{Type: sync.EventCollectionPut, CollectionID: created.ID, ID: created.ID, Title: created.Title}
	if err := e.commit(ctx, b, ev, created.ID); err != nil {
		return err
	}
	e.log.Info().Str("collection", SandboxRef.String()).Msg("created sandbox collection")
	return nil
}

// TourInput carries the fields of PutTour. Bookmarks replace the stored
// ones on update.
type TourInput struct {
	ID          *uuid.UUID
	Name        string
	Description string
	AudioURL    string
	Category    string
	Sequence    int
	Bookmarks   []BookmarkInput
}

type BookmarkInput struct {
	Name        string
	URL         string
	LapseTime   int
	Description string
}

func (e *MutationEngine) PutTour(ctx context.Context, acting *models.User, ref CollectionRef, in *TourInput) (uuid.UUID, error) {
	id, err := e.putTour(ctx, acting, ref, in)
	return id, e.record("put_tour", err)
}

func (e *MutationEngine) putTour(ctx context.Context, acting *models.User, ref CollectionRef, in *TourInput) (uuid.UUID, error) {
	if in == nil {
		return uuid.Nil, newError(KindRequestBodyEmpty, "tour body is empty")
	}
	coll, err := e.authorize(ctx, acting, ref)
	if err != nil {
		return uuid.Nil, err
	}

	tour := models.Tour{CollectionID: coll.ID}
	if in.ID == nil {
		tour.ID = e.newID()
	} else {
		cur, err := e.store.Tour(ctx, *in.ID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("get tour: %w", err)
		}
		if cur == nil {
			return uuid.Nil, newError(KindTourNotFound, "tour %s", in.ID)
		}
		if cur.CollectionID != coll.ID {
			return uuid.Nil, newError(KindCollectionIdMismatch, "tour %s is not in %s", in.ID, ref)
		}
		tour.ID = cur.ID
	}
	tour.Name = in.Name
	tour.Description = in.Description
	tour.AudioURL = in.AudioURL
	tour.Category = in.Category
	tour.Sequence = in.Sequence
	tour.Bookmarks = make([]models.Bookmark, len(in.Bookmarks))
	for i, bm := range in.Bookmarks {
		tour.Bookmarks[i] = models.Bookmark{
			ID:          e.newID(),
			Name:        bm.Name,
			URL:         bm.URL,
			LapseTime:   bm.LapseTime,
			Description: bm.Description,
			Sequence:    i,
		}
	}

	b := store.NewBatch()
	b.PutTour(tour)
	ev := sync.TreeEvent{Type: sync.EventTourPut, CollectionID: coll.ID, ID: tour.ID, Title: tour.Name}
	if err := e.commit(ctx, b, ev, coll.ID); err != nil {
		return uuid.Nil, err
	}
	return tour.ID, nil
}

func (e *MutationEngine) DeleteTour(ctx context.Context, acting *models.User, ref CollectionRef, id uuid.UUID) error {
	return e.record("delete_tour", e.deleteTour(ctx, acting, ref, id))
}

func (e *MutationEngine) deleteTour(ctx context.Context, acting *models.User, ref CollectionRef, id uuid.UUID) error {
	coll, err := e.authorize(ctx, acting, ref)
	if err != nil {
		return err
	}
	cur, err := e.store.Tour(ctx, id)
	if err != nil {
		return fmt.Errorf("get tour: %w", err)
	}
	if cur == nil {
		return newError(KindTourNotFound, "tour %s", id)
	}
	if cur.CollectionID != coll.ID {
		return newError(KindCollectionIdMismatch, "tour %s is not in %s", id, ref)
	}

	b := store.NewBatch()
	b.DeleteTour(cur.ID)
	return e.commit(ctx, b, sync.TreeEvent{Type: sync.EventTourDelete, CollectionID: coll.ID, ID: cur.ID}, coll.ID)
}
