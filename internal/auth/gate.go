package auth

import "chronozoom/pkg/models"

// CanModify reports whether acting may change an entity owned by owner.
// Unowned entities are open to everyone, anonymous callers included.
// Otherwise the two users must share the same external identity pair; the
// internal id is not consulted.
func CanModify(acting, owner *models.User) bool {
	if owner == nil {
		return true
	}
	return acting.SameIdentity(owner)
}
