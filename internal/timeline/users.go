package timeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"chronozoom/internal/identity"
	"chronozoom/internal/store"
	"chronozoom/internal/sync"
	"chronozoom/pkg/models"
)

// AnonymousNameIdentifier identifies the shared user row of anonymous
// callers. Its identity provider is empty, which no bearer token carries.
const AnonymousNameIdentifier = "anonymous"

type UserInput struct {
	DisplayName string
	Email       string
}

// PutUser registers or updates the acting user and returns the path of
// their personal collection, creating it on first use. Anonymous callers
// get the shared anonymous user and the sandbox collection.
func (e *MutationEngine) PutUser(ctx context.Context, acting *models.User, in *UserInput) (string, error) {
	path, err := e.putUser(ctx, acting, in)
	return path, e.record("put_user", err)
}

func (e *MutationEngine) putUser(ctx context.Context, acting *models.User, in *UserInput) (string, error) {
	if acting == nil {
		return e.putAnonymousUser(ctx)
	}
	if in == nil {
		return "", newError(KindRequestBodyEmpty, "user body is empty")
	}
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		name = strings.TrimSpace(acting.DisplayName)
	}
	if !identity.ValidTitle(name) {
		return "", newError(KindRequestBodyEmpty, "display name must be non-empty and must not contain %q", identity.Separator)
	}

	u, err := e.store.UserByIdentity(ctx, acting.NameIdentifier, acting.IdentityProvider)
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	b := store.NewBatch()
	if u == nil {
		u = &models.User{
			ID:               e.newID(),
			NameIdentifier:   acting.NameIdentifier,
			IdentityProvider: acting.IdentityProvider,
		}
	}
	u.DisplayName = name
	u.Email = in.Email
	b.PutUser(*u)

	owned, err := e.store.CollectionsByOwner(ctx, u.ID)
	if err != nil {
		return "", fmt.Errorf("list owned collections: %w", err)
	}
	var path string
	var collectionIDs []uuid.UUID
	if len(owned) > 0 {
		path = owned[0].Path
	} else {
		// The personal super collection and collection are both named
		// after the user.
		ref := CollectionRef{SuperCollection: name, Collection: name}
		sc, err := e.store.SuperCollection(ctx, ref.SuperCollectionID())
		if err != nil {
			return "", fmt.Errorf("get super collection: %w", err)
		}
		if sc != nil {
			owner, err := e.ownerByID(ctx, sc.OwnerID)
			if err != nil {
				return "", err
			}
			if owner == nil || owner.ID != u.ID {
				return "", newError(KindUnauthorizedUser, "super collection %q is already taken", name)
			}
		} else {
			b.PutSuperCollection(models.SuperCollection{ID: ref.SuperCollectionID(), Title: name, OwnerID: &u.ID})
		}
		coll := e.newCollection(name, name, &u.ID)
		e.queueCollection(b, coll)
		path = coll.Path
		collectionIDs = append(collectionIDs, coll.ID)
	}

	ev := sync.TreeEvent{Type: sync.EventUserPut, ID: u.ID, Title: u.DisplayName}
	if err := e.commit(ctx, b, ev, collectionIDs...); err != nil {
		return "", err
	}
	return path, nil
}

// putAnonymousUser finds or creates the anonymous user. A second call
// finds the row written by the first.
func (e *MutationEngine) putAnonymousUser(ctx context.Context) (string, error) {
	sc, err := e.store.SuperCollection(ctx, SandboxRef.SuperCollectionID())
	if err != nil {
		return "", fmt.Errorf("get sandbox super collection: %w", err)
	}
	if sc == nil {
		return "", newError(KindSandboxSuperCollectionNotFound, "super collection %q", SandboxTitle)
	}

	u, err := e.store.UserByIdentity(ctx, AnonymousNameIdentifier, "")
	if err != nil {
		return "", fmt.Errorf("get anonymous user: %w", err)
	}
	if u == nil {
		anon := models.User{ID: e.newID(), DisplayName: AnonymousNameIdentifier, NameIdentifier: AnonymousNameIdentifier}
		b := store.NewBatch()
		b.PutUser(anon)
		if err := e.commit(ctx, b, sync.TreeEvent{Type: sync.EventUserPut, ID: anon.ID, Title: anon.DisplayName}); err != nil {
			return "", err
		}
	}
	return SandboxRef.String(), nil
}

// DeleteUser removes the acting user with every collection and super
// collection they own.
func (e *MutationEngine) DeleteUser(ctx context.Context, acting *models.User) error {
	return e.record("delete_user", e.deleteUser(ctx, acting))
}

func (e *MutationEngine) deleteUser(ctx context.Context, acting *models.User) error {
	if acting == nil {
		return newError(KindUnauthenticated, "sign in to delete a user")
	}
	u, err := e.store.UserByIdentity(ctx, acting.NameIdentifier, acting.IdentityProvider)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return newError(KindUserNotFound, "no user for %s@%s", acting.NameIdentifier, acting.IdentityProvider)
	}
	owned, err := e.store.CollectionsByOwner(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("list owned collections: %w", err)
	}

	b := store.NewBatch()
	supers := make(map[uuid.UUID]bool)
	collectionIDs := make([]uuid.UUID, 0, len(owned))
	for _, c := range owned {
		if err := e.queueCollectionDelete(ctx, b, c.ID); err != nil {
			return err
		}
		collectionIDs = append(collectionIDs, c.ID)
		if supers[c.SuperCollectionID] {
			continue
		}
		sc, err := e.store.SuperCollection(ctx, c.SuperCollectionID)
		if err != nil {
			return fmt.Errorf("get super collection: %w", err)
		}
		if sc == nil {
			return newError(KindSuperCollectionNotFound, "super collection of %s", c.Path)
		}
		supers[sc.ID] = true
		// Shared super collections keep the collections of other users.
		if sc.OwnerID != nil && *sc.OwnerID == u.ID {
			b.DeleteSuperCollection(sc.ID)
		}
	}
	b.DeleteUser(u.ID)
	return e.commit(ctx, b, sync.TreeEvent{Type: sync.EventUserDelete, ID: u.ID}, collectionIDs...)
}

// GetUser returns the stored row of the acting user.
func (e *MutationEngine) GetUser(ctx context.Context, acting *models.User) (*models.User, error) {
	if acting == nil {
		return nil, newError(KindUnauthenticated, "sign in to read a user")
	}
	u, err := e.store.UserByIdentity(ctx, acting.NameIdentifier, acting.IdentityProvider)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, newError(KindUserNotFound, "no user for %s@%s", acting.NameIdentifier, acting.IdentityProvider)
	}
	return u, nil
}
