package sync

import (
	"time"

	"github.com/google/uuid"
)

// Event types published after a committed change.
const (
	EventCollectionPut    = "collection.put"
	EventCollectionDelete = "collection.delete"
	EventTimelinePut      = "timeline.put"
	EventTimelineDelete   = "timeline.delete"
	EventExhibitPut       = "exhibit.put"
	EventExhibitDelete    = "exhibit.delete"
	EventContentItemPut   = "contentitem.put"
	EventContentItemDel   = "contentitem.delete"
	EventTourPut          = "tour.put"
	EventTourDelete       = "tour.delete"
	EventUserPut          = "user.put"
	EventUserDelete       = "user.delete"
)

type TreeEvent struct {
	Type         string    `json:"type"`
	CollectionID uuid.UUID `json:"collection_id"`
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title,omitempty"`
	At           time.Time `json:"at"`
}
