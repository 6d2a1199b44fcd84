package timeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"chronozoom/internal/identity"
	"chronozoom/internal/store"
	"chronozoom/pkg/models"
)

// CollectionRef names a collection the way clients address it: by the
// titles of its super collection and of the collection itself.
type CollectionRef struct {
	SuperCollection string
	Collection      string
}

func (r CollectionRef) ID() uuid.UUID {
	return identity.DeriveCollectionID(r.SuperCollection, r.Collection)
}

func (r CollectionRef) SuperCollectionID() uuid.UUID {
	return identity.DeriveSuperCollectionID(r.SuperCollection)
}

func (r CollectionRef) String() string {
	return identity.CollectionPath(r.SuperCollection, r.Collection)
}

// collectionOwner loads the owner of coll. It returns nil for an unowned
// collection. An owner whose user row is gone is returned with an empty
// identity, which matches no caller.
func collectionOwner(ctx context.Context, s store.Store, coll *models.Collection) (*models.User, error) {
	if coll.OwnerID == nil {
		return nil, nil
	}
	u, err := s.User(ctx, *coll.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("get collection owner: %w", err)
	}
	if u == nil {
		return &models.User{ID: *coll.OwnerID}, nil
	}
	return u, nil
}
