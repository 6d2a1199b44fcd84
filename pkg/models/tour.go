package models

import "github.com/google/uuid"

type Tour struct {
	ID           uuid.UUID  `json:"id"`
	CollectionID uuid.UUID  `json:"collection_id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	AudioURL     string     `json:"audio_url,omitempty"`
	Category     string     `json:"category,omitempty"`
	Sequence     int        `json:"sequence"`
	Bookmarks    []Bookmark `json:"bookmarks"`
}

type Bookmark struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	LapseTime   int       `json:"lapse_time"`
	Description string    `json:"description,omitempty"`
	Sequence    int       `json:"sequence"`
}
