package store

import (
	"github.com/google/uuid"

	"chronozoom/pkg/models"
)

// OpKind names the change a batch operation applies.
type OpKind int

const (
	OpPutSuperCollection OpKind = iota
	OpPutCollection
	OpPutTimeline
	OpPutExhibit
	OpPutContentItem
	OpPutTour
	OpPutUser
	OpDeleteSuperCollection
	OpDeleteCollection
	OpDeleteTimeline
	OpDeleteExhibit
	OpDeleteContentItem
	OpDeleteTour
	OpDeleteUser
)

// Op is one queued change. Put operations carry a copy of the entity;
// delete operations carry only ID.
type Op struct {
	Kind            OpKind
	ID              uuid.UUID
	SuperCollection *models.SuperCollection
	Collection      *models.Collection
	Timeline        *models.Timeline
	Exhibit         *models.Exhibit
	ContentItem     *models.ContentItem
	Tour            *models.Tour
	User            *models.User
}

// Batch queues changes for one Commit. Put operations insert or overwrite
// by id. Deletes do not cascade; callers queue every descendant they want
// removed. A Batch is not safe for concurrent use.
type Batch struct {
	ops []Op
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) Ops() []Op {
	return b.ops
}

func (b *Batch) Len() int {
	return len(b.ops)
}

func (b *Batch) PutSuperCollection(sc models.SuperCollection) {
	b.ops = append(b.ops, Op{Kind: OpPutSuperCollection, ID: sc.ID, SuperCollection: &sc})
}

func (b *Batch) PutCollection(c models.Collection) {
	b.ops = append(b.ops, Op{Kind: OpPutCollection, ID: c.ID, Collection: &c})
}

func (b *Batch) PutTimeline(t models.Timeline) {
	t.ChildTimelines = nil
	t.Exhibits = nil
	b.ops = append(b.ops, Op{Kind: OpPutTimeline, ID: t.ID, Timeline: &t})
}

func (b *Batch) PutExhibit(e models.Exhibit) {
	e.ContentItems = nil
	b.ops = append(b.ops, Op{Kind: OpPutExhibit, ID: e.ID, Exhibit: &e})
}

func (b *Batch) PutContentItem(ci models.ContentItem) {
	b.ops = append(b.ops, Op{Kind: OpPutContentItem, ID: ci.ID, ContentItem: &ci})
}

func (b *Batch) PutTour(t models.Tour) {
	t.Bookmarks = append([]models.Bookmark(nil), t.Bookmarks...)
	b.ops = append(b.ops, Op{Kind: OpPutTour, ID: t.ID, Tour: &t})
}

func (b *Batch) PutUser(u models.User) {
	b.ops = append(b.ops, Op{Kind: OpPutUser, ID: u.ID, User: &u})
}

func (b *Batch) DeleteSuperCollection(id uuid.UUID) {
	b.ops = append(b.ops, Op{Kind: OpDeleteSuperCollection, ID: id})
}

func (b *Batch) DeleteCollection(id uuid.UUID) {
	b.ops = append(b.ops, Op{Kind: OpDeleteCollection, ID: id})
}

func (b *Batch) DeleteTimeline(id uuid.UUID) {
	b.ops = append(b.ops, Op{Kind: OpDeleteTimeline, ID: id})
}

func (b *Batch) DeleteExhibit(id uuid.UUID) {
	b.ops = append(b.ops, Op{Kind: OpDeleteExhibit, ID: id})
}

func (b *Batch) DeleteContentItem(id uuid.UUID) {
	b.ops = append(b.ops, Op{Kind: OpDeleteContentItem, ID: id})
}

func (b *Batch) DeleteTour(id uuid.UUID) {
	b.ops = append(b.ops, Op{Kind: OpDeleteTour, ID: id})
}

func (b *Batch) DeleteUser(id uuid.UUID) {
	b.ops = append(b.ops, Op{Kind: OpDeleteUser, ID: id})
}
