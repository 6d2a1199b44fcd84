package models

import "github.com/google/uuid"

// Timeline is a ranged node of a collection's tree. ChildTimelines and
// Exhibits are only filled on query results; storage links nodes through
// ParentID.
type Timeline struct {
	ID             uuid.UUID   `json:"id"`
	CollectionID   uuid.UUID   `json:"collection_id"`
	ParentID       *uuid.UUID  `json:"parent_id,omitempty"`
	Title          string      `json:"title"`
	Regime         string      `json:"regime,omitempty"`
	FromYear       float64     `json:"from_year"`
	ToYear         float64     `json:"to_year"`
	Depth          int         `json:"depth"`
	ChildTimelines []*Timeline `json:"timelines,omitempty"`
	Exhibits       []*Exhibit  `json:"exhibits,omitempty"`
}

// Span is the length of the timeline in years.
func (t *Timeline) Span() float64 {
	return t.ToYear - t.FromYear
}

type Exhibit struct {
	ID           uuid.UUID      `json:"id"`
	CollectionID uuid.UUID      `json:"collection_id"`
	TimelineID   uuid.UUID      `json:"timeline_id"`
	Title        string         `json:"title"`
	Year         float64        `json:"year"`
	Depth        int            `json:"depth"`
	ContentItems []*ContentItem `json:"content_items,omitempty"`
}

type ContentItem struct {
	ID           uuid.UUID `json:"id"`
	CollectionID uuid.UUID `json:"collection_id"`
	ExhibitID    uuid.UUID `json:"exhibit_id"`
	Title        string    `json:"title"`
	Caption      string    `json:"caption,omitempty"`
	MediaType    string    `json:"media_type,omitempty"`
	Uri          string    `json:"uri,omitempty"`
	MediaSource  string    `json:"media_source,omitempty"`
	Attribution  string    `json:"attribution,omitempty"`
	Order        int       `json:"order"`
	Depth        int       `json:"depth"`
}

// SearchResult is one hit of a collection search.
type SearchResult struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Type  string    `json:"type"` // "timeline", "exhibit" or "contentitem"
}
