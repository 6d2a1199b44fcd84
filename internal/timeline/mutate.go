package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chronozoom/internal/auth"
	"chronozoom/internal/cache"
	"chronozoom/internal/metrics"
	"chronozoom/internal/store"
	"chronozoom/internal/sync"
	"chronozoom/pkg/models"
)

// Broadcaster publishes committed changes to feed subscribers.
type Broadcaster interface {
	BroadcastJSON(v any)
}

// Thumbnailer receives content items after they were committed. It must
// not block the caller.
type Thumbnailer interface {
	Enqueue(item models.ContentItem)
}

// MutationEngine applies writes to the timeline tree. Every operation reads
// and checks everything it needs first and then commits a single batch, so
// a refused operation writes nothing.
type MutationEngine struct {
	store   store.Store
	cache   *cache.Cache
	log     zerolog.Logger
	metrics *metrics.Metrics
	feed    Broadcaster
	thumbs  Thumbnailer

	newID func() uuid.UUID
	now   func() time.Time
}

type MutationOption func(*MutationEngine)

func WithBroadcaster(b Broadcaster) MutationOption {
	return func(e *MutationEngine) { e.feed = b }
}

func WithThumbnailer(t Thumbnailer) MutationOption {
	return func(e *MutationEngine) { e.thumbs = t }
}

func WithMetrics(m *metrics.Metrics) MutationOption {
	return func(e *MutationEngine) { e.metrics = m }
}

func NewMutationEngine(s store.Store, c *cache.Cache, log zerolog.Logger, opts ...MutationOption) *MutationEngine {
	e := &MutationEngine{
		store: s,
		cache: c,
		log:   log.With().Str("component", "mutation").Logger(),
		newID: uuid.New,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// authorize loads the addressed collection and checks that acting may
// modify it.
func (e *MutationEngine) authorize(ctx context.Context, acting *models.User, ref CollectionRef) (*models.Collection, error) {
	coll, err := e.store.Collection(ctx, ref.ID())
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	if coll == nil {
		return nil, newError(KindCollectionNotFound, "collection %s", ref)
	}
	owner, err := collectionOwner(ctx, e.store, coll)
	if err != nil {
		return nil, err
	}
	if !auth.CanModify(acting, owner) {
		return nil, newError(KindUnauthorizedUser, "collection %s belongs to another user", ref)
	}
	return coll, nil
}

// commit applies b and publishes the change. Cached reads of every
// collection in collectionIDs are dropped once the batch is stored.
func (e *MutationEngine) commit(ctx context.Context, b *store.Batch, ev sync.TreeEvent, collectionIDs ...uuid.UUID) error {
	if err := e.store.Commit(ctx, b); err != nil {
		return fmt.Errorf("commit %s: %w", ev.Type, err)
	}
	for _, id := range collectionIDs {
		e.cache.DeletePrefix(collectionKeyPrefix(id))
	}
	if e.feed != nil {
		ev.At = e.now().UTC()
		go e.feed.BroadcastJSON(ev)
	}
	e.log.Debug().Str("event", ev.Type).Str("id", ev.ID.String()).Int("ops", b.Len()).Msg("committed")
	return nil
}

// record counts the outcome of op and passes err through.
func (e *MutationEngine) record(op string, err error) error {
	if e.metrics == nil {
		return err
	}
	result := "ok"
	if err != nil {
		result = KindOf(err).String()
	}
	e.metrics.MutationsTotal.WithLabelValues(op, result).Inc()
	return err
}

func (e *MutationEngine) dispatchThumbnails(items []models.ContentItem) {
	if e.thumbs == nil {
		return
	}
	for _, ci := range items {
		e.thumbs.Enqueue(ci)
	}
}

// TimelineInput carries the fields of PutTimeline. A nil ID creates a new
// timeline under ParentID, or a root timeline when ParentID is nil too.
// ParentID is ignored on update: timelines are never moved.
type TimelineInput struct {
	ID       *uuid.UUID
	ParentID *uuid.UUID
	Title    string
	Regime   string
	FromYear float64
	ToYear   float64
}

func (e *MutationEngine) PutTimeline(ctx context.Context, acting *models.User, ref CollectionRef, in *TimelineInput) (uuid.UUID, error) {
	id, err := e.putTimeline(ctx, acting, ref, in)
	return id, e.record("put_timeline", err)
}

func (e *MutationEngine) putTimeline(ctx context.Context, acting *models.User, ref CollectionRef, in *TimelineInput) (uuid.UUID, error) {
	if in == nil {
		return uuid.Nil, newError(KindRequestBodyEmpty, "timeline body is empty")
	}
	coll, err := e.authorize(ctx, acting, ref)
	if err != nil {
		return uuid.Nil, err
	}

	var t models.Timeline
	if in.ID == nil {
		var parent *models.Timeline
		if in.ParentID != nil {
			parent, err = e.store.Timeline(ctx, *in.ParentID)
			if err != nil {
				return uuid.Nil, fmt.Errorf("get parent timeline: %w", err)
			}
			if parent == nil || parent.CollectionID != coll.ID {
				return uuid.Nil, newError(KindParentTimelineNotFound, "parent timeline %s", in.ParentID)
			}
		}
		if !ValidateRange(parent, in.FromYear, in.ToYear) {
			return uuid.Nil, newError(KindTimelineRangeInvalid, "[%g, %g] does not fit its parent", in.FromYear, in.ToYear)
		}
		t = models.Timeline{ID: e.newID(), CollectionID: coll.ID}
		if parent != nil {
			t.ParentID = &parent.ID
			t.Depth = parent.Depth + 1
		}
	} else {
		cur, err := e.store.Timeline(ctx, *in.ID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("get timeline: %w", err)
		}
		if cur == nil {
			return uuid.Nil, newError(KindTimelineNotFound, "timeline %s", in.ID)
		}
		if cur.CollectionID != coll.ID {
			return uuid.Nil, newError(KindCollectionIdMismatch, "timeline %s is not in %s", in.ID, ref)
		}

		var parent *models.Timeline
		if cur.ParentID != nil {
			parent, err = e.store.Timeline(ctx, *cur.ParentID)
			if err != nil {
				return uuid.Nil, fmt.Errorf("get parent timeline: %w", err)
			}
			if parent == nil {
				return uuid.Nil, newError(KindParentTimelineNotFound, "parent timeline %s", cur.ParentID)
			}
		}
		if !ValidateRange(parent, in.FromYear, in.ToYear) {
			return uuid.Nil, newError(KindTimelineRangeInvalid, "[%g, %g] does not fit its parent", in.FromYear, in.ToYear)
		}
		children, err := e.store.ChildTimelines(ctx, cur.ID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("list child timelines: %w", err)
		}
		if !encloses(children, in.FromYear, in.ToYear) {
			return uuid.Nil, newError(KindTimelineRangeInvalid, "[%g, %g] no longer holds every child timeline", in.FromYear, in.ToYear)
		}
		t = *cur
	}
	t.Title = in.Title
	t.Regime = in.Regime
	t.FromYear = in.FromYear
	t.ToYear = in.ToYear

	b := store.NewBatch()
	b.PutTimeline(t)
	ev := sync.TreeEvent{Type: sync.EventTimelinePut, CollectionID: coll.ID, ID: t.ID, Title: t.Title}
	if err := e.commit(ctx, b, ev, coll.ID); err != nil {
		return uuid.Nil, err
	}
	return t.ID, nil
}

// DeleteTimeline removes a timeline with its whole subtree.
func (e *MutationEngine) DeleteTimeline(ctx context.Context, acting *models.User, ref CollectionRef, id uuid.UUID) error {
	return e.record("delete_timeline", e.deleteTimeline(ctx, acting, ref, id))
}

func (e *MutationEngine) deleteTimeline(ctx context.Context, acting *models.User, ref CollectionRef, id uuid.UUID) error {
	coll, err := e.authorize(ctx, acting, ref)
	if err != nil {
		return err
	}
	cur, err := e.store.Timeline(ctx, id)
	if err != nil {
		return fmt.Errorf("get timeline: %w", err)
	}
	if cur == nil {
		return newError(KindTimelineNotFound, "timeline %s", id)
	}
	if cur.CollectionID != coll.ID {
		return newError(KindCollectionIdMismatch, "timeline %s is not in %s", id, ref)
	}

	b := store.NewBatch()
	if err := e.queueSubtreeDelete(ctx, b, cur.ID); err != nil {
		return err
	}
	return e.commit(ctx, b, sync.TreeEvent{Type: sync.EventTimelineDelete, CollectionID: coll.ID, ID: cur.ID}, coll.ID)
}

// queueSubtreeDelete queues the removal of the timeline rootID and of
// everything below it, leaves first.
func (e *MutationEngine) queueSubtreeDelete(ctx context.Context, b *store.Batch, rootID uuid.UUID) error {
	ids := []uuid.UUID{rootID}
	for i := 0; i < len(ids); i++ {
		children, err := e.store.ChildTimelines(ctx, ids[i])
		if err != nil {
			return fmt.Errorf("list child timelines: %w", err)
		}
		for _, c := range children {
			ids = append(ids, c.ID)
		}
	}
	if err := e.queueExhibitsDelete(ctx, b, ids); err != nil {
		return err
	}
	for i := len(ids) - 1; i >= 0; i-- {
		b.DeleteTimeline(ids[i])
	}
	return nil
}

func (e *MutationEngine) queueExhibitsDelete(ctx context.Context, b *store.Batch, timelineIDs []uuid.UUID) error {
	exhibits, err := e.store.Exhibits(ctx, timelineIDs)
	if err != nil {
		return fmt.Errorf("list exhibits: %w", err)
	}
	if len(exhibits) == 0 {
		return nil
	}
	exIDs := make([]uuid.UUID, len(exhibits))
	for i, ex := range exhibits {
		exIDs[i] = ex.ID
	}
	items, err := e.store.ContentItems(ctx, exIDs)
	if err != nil {
		return fmt.Errorf("list content items: %w", err)
	}
	for _, ci := range items {
		b.DeleteContentItem(ci.ID)
	}
	for _, id := range exIDs {
		b.DeleteExhibit(id)
	}
	return nil
}

// ContentItemInput carries the fields of one content item. A nil ID
// creates a new item; a nil Order appends it after the existing items.
type ContentItemInput struct {
	ID              *uuid.UUID
	ParentExhibitID *uuid.UUID
	Title           string
	Caption         string
	MediaType       string
	Uri             string
	MediaSource     string
	Attribution     string
	Order           *int
}

func (in *ContentItemInput) apply(ci *models.ContentItem) {
	ci.Title = in.Title
	ci.Caption = in.Caption
	ci.MediaType = in.MediaType
	ci.Uri = in.Uri
	ci.MediaSource = in.MediaSource
	ci.Attribution = in.Attribution
	if in.Order != nil {
		ci.Order = *in.Order
	}
}

// ExhibitInput carries the fields of PutExhibit. ContentItems are created
// or updated together with the exhibit; items of the exhibit that are not
// listed are left alone.
type ExhibitInput struct {
	ID               *uuid.UUID
	ParentTimelineID *uuid.UUID
	Title            string
	Year             float64
	ContentItems     []ContentItemInput
}

// ExhibitResult reports the ids written by PutExhibit, content items in
// request order.
type ExhibitResult struct {
	ExhibitID      uuid.UUID   `json:"id"`
	ContentItemIDs []uuid.UUID `json:"content_item_ids"`
}

func (e *MutationEngine) PutExhibit(ctx context.Context, acting *models.User, ref CollectionRef, in *ExhibitInput) (ExhibitResult, error) {
	res, err := e.putExhibit(ctx, acting, ref, in)
	return res, e.record("put_exhibit", err)
}

func (e *MutationEngine) putExhibit(ctx context.Context, acting *models.User, ref CollectionRef, in *ExhibitInput) (ExhibitResult, error) {
	if in == nil {
		return ExhibitResult{}, newError(KindRequestBodyEmpty, "exhibit body is empty")
	}
	coll, err := e.authorize(ctx, acting, ref)
	if err != nil {
		return ExhibitResult{}, err
	}

	var ex models.Exhibit
	var existing []models.ContentItem
	if in.ID == nil {
		if in.ParentTimelineID == nil {
			return ExhibitResult{}, newError(KindParentTimelineNotFound, "exhibit has no parent timeline")
		}
		parent, err := e.store.Timeline(ctx, *in.ParentTimelineID)
		if err != nil {
			return ExhibitResult{}, fmt.Errorf("get parent timeline: %w", err)
		}
		if parent == nil || parent.CollectionID != coll.ID {
			return ExhibitResult{}, newError(KindParentTimelineNotFound, "parent timeline %s", in.ParentTimelineID)
		}
		ex = models.Exhibit{
			ID:           e.newID(),
			CollectionID: coll.ID,
			TimelineID:   parent.ID,
			Depth:        parent.Depth + 1,
		}
	} else {
		cur, err := e.store.Exhibit(ctx, *in.ID)
		if err != nil {
			return ExhibitResult{}, fmt.Errorf("get exhibit: %w", err)
		}
		if cur == nil {
			return ExhibitResult{}, newError(KindExhibitNotFound, "exhibit %s", in.ID)
		}
		if cur.CollectionID != coll.ID {
			return ExhibitResult{}, newError(KindCollectionIdMismatch, "exhibit %s is not in %s", in.ID, ref)
		}
		ex = *cur
		existing, err = e.store.ContentItems(ctx, []uuid.UUID{cur.ID})
		if err != nil {
			return ExhibitResult{}, fmt.Errorf("list content items: %w", err)
		}
	}
	ex.Title = in.Title
	ex.Year = in.Year

	items, err := e.buildContentItems(&ex, existing, in.ContentItems)
	if err != nil {
		return ExhibitResult{}, err
	}

	b := store.NewBatch()
	b.PutExhibit(ex)
	res := ExhibitResult{ExhibitID: ex.ID, ContentItemIDs: make([]uuid.UUID, 0, len(items))}
	for _, ci := range items {
		b.PutContentItem(ci)
		res.ContentItemIDs = append(res.ContentItemIDs, ci.ID)
	}
	ev := sync.TreeEvent{Type: sync.EventExhibitPut, CollectionID: coll.ID, ID: ex.ID, Title: ex.Title}
	if err := e.commit(ctx, b, ev, coll.ID); err != nil {
		return ExhibitResult{}, err
	}
	e.dispatchThumbnails(items)
	return res, nil
}

// buildContentItems resolves the content items of ex. existing must hold
// every stored item of ex: new items are ordered after them.
func (e *MutationEngine) buildContentItems(ex *models.Exhibit, existing []models.ContentItem, inputs []ContentItemInput) ([]models.ContentItem, error) {
	byID := make(map[uuid.UUID]models.ContentItem, len(existing))
	for _, ci := range existing {
		byID[ci.ID] = ci
	}
	next := len(existing)

	out := make([]models.ContentItem, 0, len(inputs))
	for i := range inputs {
		in := &inputs[i]
		var ci models.ContentItem
		if in.ID == nil {
			ci = models.ContentItem{
				ID:           e.newID(),
				CollectionID: ex.CollectionID,
				ExhibitID:    ex.ID,
				Depth:        ex.Depth + 1,
				Order:        next,
			}
			next++
		} else {
			cur, ok := byID[*in.ID]
			if !ok {
				return nil, newError(KindContentItemNotFound, "content item %s is not part of exhibit %s", in.ID, ex.ID)
			}
			ci = cur
		}
		in.apply(&ci)
		out = append(out, ci)
	}
	return out, nil
}

// DeleteExhibit removes an exhibit with its content items.
func (e *MutationEngine) DeleteExhibit(ctx context.Context, acting *models.User, ref CollectionRef, id uuid.UUID) error {
	return e.record("delete_exhibit", e.deleteExhibit(ctx, acting, ref, id))
}

func (e *MutationEngine) deleteExhibit(ctx context.Context, acting *models.User, ref CollectionRef, id uuid.UUID) error {
	coll, err := e.authorize(ctx, acting, ref)
	if err != nil {
		return err
	}
	cur, err := e.store.Exhibit(ctx, id)
	if err != nil {
		return fmt.Errorf("get exhibit: %w", err)
	}
	if cur == nil {
		return newError(KindExhibitNotFound, "exhibit %s", id)
	}
	if cur.CollectionID != coll.ID {
		return newError(KindCollectionIdMismatch, "exhibit %s is not in %s", id, ref)
	}

	items, err := e.store.ContentItems(ctx, []uuid.UUID{cur.ID})
	if err != nil {
		return fmt.Errorf("list content items: %w", err)
	}
	b := store.NewBatch()
	for _, ci := range items {
		b.DeleteContentItem(ci.ID)
	}
	b.DeleteExhibit(cur.ID)
	return e.commit(ctx, b, sync.TreeEvent{Type: sync.EventExhibitDelete, CollectionID: coll.ID, ID: cur.ID}, coll.ID)
}

func (e *MutationEngine) PutContentItem(ctx context.Context, acting *models.User, ref CollectionRef, in *ContentItemInput) (uuid.UUID, error) {
	id, err := e.putContentItem(ctx, acting, ref, in)
	return id, e.record("put_contentitem", err)
}

func (e *MutationEngine) putContentItem(ctx context.Context, acting *models.User, ref CollectionRef, in *ContentItemInput) (uuid.UUID, error) {
	if in == nil {
		return uuid.Nil, newError(KindRequestBodyEmpty, "content item body is empty")
	}
	coll, err := e.authorize(ctx, acting, ref)
	if err != nil {
		return uuid.Nil, err
	}

	var ci models.ContentItem
	if in.ID == nil {
		if in.ParentExhibitID == nil {
			return uuid.Nil, newError(KindParentExhibitNotFound, "content item has no parent exhibit")
		}
		ex, err := e.store.Exhibit(ctx, *in.ParentExhibitID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("get parent exhibit: %w", err)
		}
		if ex == nil || ex.CollectionID != coll.ID {
			return uuid.Nil, newError(KindParentExhibitNotFound, "parent exhibit %s", in.ParentExhibitID)
		}
		existing, err := e.store.ContentItems(ctx, []uuid.UUID{ex.ID})
		if err != nil {
			return uuid.Nil, fmt.Errorf("list content items: %w", err)
		}
		ci = models.ContentItem{
			ID:           e.newID(),
			CollectionID: coll.ID,
			ExhibitID:    ex.ID,
			Depth:        ex.Depth + 1,
			Order:        len(existing),
		}
	} else {
		cur, err := e.store.ContentItem(ctx, *in.ID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("get content item: %w", err)
		}
		if cur == nil {
			return uuid.Nil, newError(KindContentItemNotFound, "content item %s", in.ID)
		}
		if cur.CollectionID != coll.ID {
			return uuid.Nil, newError(KindCollectionIdMismatch, "content item %s is not in %s", in.ID, ref)
		}
		ci = *cur
	}
	in.apply(&ci)

	b := store.NewBatch()
	b.PutContentItem(ci)
	ev := sync.TreeEvent{Type: sync.EventContentItemPut, CollectionID: coll.ID, ID: ci.ID, Title: ci.Title}
	if err := e.commit(ctx, b, ev, coll.ID); err != nil {
		return uuid.Nil, err
	}
	e.dispatchThumbnails([]models.ContentItem{ci})
	return ci.ID, nil
}

func (e *MutationEngine) DeleteContentItem(ctx context.Context, acting *models.User, ref CollectionRef, id uuid.UUID) error {
	return e.record("delete_contentitem", e.deleteContentItem(ctx, acting, ref, id))
}

func (e *MutationEngine) deleteContentItem(ctx context.Context, acting *models.User, ref CollectionRef, id uuid.UUID) error {
	coll, err := e.authorize(ctx, acting, ref)
	if err != nil {
		return err
	}
	cur, err := e.store.ContentItem(ctx, id)
	if err != nil {
		return fmt.Errorf("get content item: %w", err)
	}
	if cur == nil {
		return newError(KindContentItemNotFound, "content item %s", id)
	}
	if cur.CollectionID != coll.ID {
		return newError(KindCollectionIdMismatch, "content item %s is not in %s", id, ref)
	}

	b := store.NewBatch()
	b.DeleteContentItem(cur.ID)
	return e.commit(ctx, b, sync.TreeEvent{Type: sync.EventContentItemDel, CollectionID: coll.ID, ID: cur.ID}, coll.ID)
}
