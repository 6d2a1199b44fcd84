package models

import "github.com/google/uuid"

// User is keyed by the external identity pair. The anonymous sandbox user
// is the single row with an empty IdentityProvider.
type User struct {
	ID               uuid.UUID `json:"id"`
	DisplayName      string    `json:"display_name"`
	Email            string    `json:"email,omitempty"`
	NameIdentifier   string    `json:"name_identifier"`
	IdentityProvider string    `json:"identity_provider"`
}

// SameIdentity compares two users by their external identity pair.
func (u *User) SameIdentity(other *User) bool {
	if u == nil || other == nil {
		return false
	}
	return u.NameIdentifier == other.NameIdentifier && u.IdentityProvider == other.IdentityProvider
}
