package models

import "github.com/google/uuid"

// SuperCollection groups the collections of one owner. Its ID is derived
// from Title, so the title never changes after creation.
type SuperCollection struct {
	ID      uuid.UUID  `json:"id"`
	Title   string     `json:"title"`
	OwnerID *uuid.UUID `json:"owner_id,omitempty"`
}

// Collection holds one timeline tree. A nil OwnerID marks a public
// (sandbox) collection that any caller may modify.
type Collection struct {
	ID                 uuid.UUID  `json:"id"`
	SuperCollectionID  uuid.UUID  `json:"super_collection_id"`
	Title              string     `json:"title"`
	Path               string     `json:"path"`
	Description        string     `json:"description,omitempty"`
	Theme              string     `json:"theme,omitempty"`
	PubliclySearchable bool       `json:"publicly_searchable"`
	OwnerID            *uuid.UUID `json:"owner_id,omitempty"`
}
