package timeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"chronozoom/internal/cache"
	"chronozoom/internal/identity"
	"chronozoom/internal/metrics"
	"chronozoom/internal/store"
	"chronozoom/pkg/models"
)

// DefaultMaxElements caps GetTimelines results when no limit is configured.
const DefaultMaxElements = 2000

// TimelineQuery holds the optional filters of GetTimelines. Nil fields take
// their defaults: the full supported year range, no minimum span and the
// configured element cap.
type TimelineQuery struct {
	FromYear       *float64
	ToYear         *float64
	MinSpan        *float64
	CommonAncestor *uuid.UUID
	MaxElements    *int
}

// QueryEngine answers the read operations of the timeline tree.
type QueryEngine struct {
	store       store.Store
	cache       *cache.Cache
	log         zerolog.Logger
	metrics     *metrics.Metrics
	maxElements int

	flight singleflight.Group
}

// NewQueryEngine builds a query engine. m may be nil.
func NewQueryEngine(s store.Store, c *cache.Cache, maxElements int, m *metrics.Metrics, log zerolog.Logger) *QueryEngine {
	if maxElements <= 0 {
		maxElements = DefaultMaxElements
	}
	return &QueryEngine{
		store:       s,
		cache:       c,
		log:         log.With().Str("component", "query").Logger(),
		metrics:     m,
		maxElements: maxElements,
	}
}

// GetTimelines returns the anchor node of the timelines of a collection
// that match q, with the matching descendants, exhibits and content items
// attached. It returns nil when the collection does not exist or nothing
// matches.
//
// Results for callers that do not own the collection are cached. Owners
// always read from the store.
func (q *QueryEngine) GetTimelines(ctx context.Context, acting *models.User, ref CollectionRef, tq TimelineQuery) (*models.Timeline, error) {
	start := time.Now()
	collectionID := ref.ID()

	coll, err := q.store.Collection(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	if coll == nil {
		return nil, nil
	}

	owner, err := collectionOwner(ctx, q.store, coll)
	if err != nil {
		return nil, err
	}
	if owner != nil && owner.SameIdentity(acting) {
		root, err := q.loadTree(ctx, collectionID, tq)
		q.observe("timelines", "store", start)
		return root, err
	}

	prefix := collectionKeyPrefix(collectionID)
	gen := q.cache.Generation(prefix)
	key := timelinesKey(collectionID, tq)
	if v, ok := q.cache.Get(key); ok {
		q.observe("timelines", "cache", start)
		return v.(*models.Timeline), nil
	}

	// The load outlives a leader that gives up, and is shared only by
	// callers that arrived before the same commit.
	fctx := context.WithoutCancel(ctx)
	v, err, _ := q.flight.Do(flightKey(key, gen), func() (any, error) {
		root, err := q.loadTree(fctx, collectionID, tq)
		if err != nil {
			return nil, err
		}
		q.cache.AddAt(key, prefix, gen, root, 0)
		return root, nil
	})
	q.observe("timelines", "store", start)
	if err != nil {
		return nil, err
	}
	return v.(*models.Timeline), nil
}

func (q *QueryEngine) loadTree(ctx context.Context, collectionID uuid.UUID, tq TimelineQuery) (*models.Timeline, error) {
	rq := store.RangeQuery{
		CollectionID: collectionID,
		FromYear:     MinYear,
		ToYear:       MaxYear,
		Limit:        q.maxElements,
	}
	if tq.FromYear != nil {
		rq.FromYear = *tq.FromYear
	}
	if tq.ToYear != nil {
		rq.ToYear = *tq.ToYear
	}
	if tq.MinSpan != nil {
		rq.MinSpan = *tq.MinSpan
	}
	if tq.MaxElements != nil && *tq.MaxElements > 0 && *tq.MaxElements < rq.Limit {
		rq.Limit = *tq.MaxElements
	}

	rows, err := q.store.TimelinesInRange(ctx, rq)
	if err != nil {
		return nil, fmt.Errorf("query timelines: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	nodes := make([]*models.Timeline, len(rows))
	byID := make(map[uuid.UUID]*models.Timeline, len(rows))
	ids := make([]uuid.UUID, len(rows))
	for i := range rows {
		t := rows[i]
		t.ChildTimelines = nil
		t.Exhibits = nil
		nodes[i] = &t
		byID[t.ID] = &t
		ids[i] = t.ID
	}
	// Rows come shallowest first, so each parent's children keep the
	// store order.
	for _, t := range nodes {
		if t.ParentID == nil {
			continue
		}
		if p, ok := byID[*t.ParentID]; ok {
			p.ChildTimelines = append(p.ChildTimelines, t)
		}
	}

	if err := q.attachExhibits(ctx, byID, ids); err != nil {
		return nil, err
	}

	if tq.CommonAncestor != nil {
		if t, ok := byID[*tq.CommonAncestor]; ok {
			return t, nil
		}
	}
	return nodes[0], nil
}

func (q *QueryEngine) attachExhibits(ctx context.Context, byID map[uuid.UUID]*models.Timeline, ids []uuid.UUID) error {
	exhibits, err := q.store.Exhibits(ctx, ids)
	if err != nil {
		return fmt.Errorf("query exhibits: %w", err)
	}
	if len(exhibits) == 0 {
		return nil
	}

	exByID := make(map[uuid.UUID]*models.Exhibit, len(exhibits))
	exIDs := make([]uuid.UUID, 0, len(exhibits))
	for i := range exhibits {
		e := exhibits[i]
		e.ContentItems = nil
		exByID[e.ID] = &e
		exIDs = append(exIDs, e.ID)
		if t, ok := byID[e.TimelineID]; ok {
			t.Exhibits = append(t.Exhibits, &e)
		}
	}

	items, err := q.store.ContentItems(ctx, exIDs)
	if err != nil {
		return fmt.Errorf("query content items: %w", err)
	}
	for i := range items {
		ci := items[i]
		if e, ok := exByID[ci.ExhibitID]; ok {
			e.ContentItems = append(e.ContentItems, &ci)
		}
	}
	return nil
}

// Search matches term against the titles of a collection's nodes and the
// captions of its content items, ignoring case. A blank term is not a
// query: it returns nil rather than an empty result.
func (q *QueryEngine) Search(ctx context.Context, ref CollectionRef, term string) ([]models.SearchResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		q.log.Warn().Str("collection", ref.String()).Msg("search called without a term")
		return nil, nil
	}

	start := time.Now()
	results, err := q.store.Search(ctx, ref.ID(), term)
	q.observe("search", "store", start)
	if err != nil {
		return nil, fmt.Errorf("search collection: %w", err)
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	return results, nil
}

// GetTours returns the tours of a collection with their bookmarks. The
// result is shared between callers and must not be modified.
func (q *QueryEngine) GetTours(ctx context.Context, ref CollectionRef) ([]models.Tour, error) {
	start := time.Now()
	collectionID := ref.ID()
	prefix := collectionKeyPrefix(collectionID)
	gen := q.cache.Generation(prefix)
	key := toursKey(collectionID)
	if v, ok := q.cache.Get(key); ok {
		q.observe("tours", "cache", start)
		return v.([]models.Tour), nil
	}

	fctx := context.WithoutCancel(ctx)
	v, err, _ := q.flight.Do(flightKey(key, gen), func() (any, error) {
		tours, err := q.store.Tours(fctx, collectionID)
		if err != nil {
			return nil, fmt.Errorf("list tours: %w", err)
		}
		if tours == nil {
			tours = []models.Tour{}
		}
		q.cache.AddAt(key, prefix, gen, tours, 0)
		return tours, nil
	})
	q.observe("tours", "store", start)
	if err != nil {
		return nil, err
	}
	return v.([]models.Tour), nil
}

// GetCollections lists the collections of a super collection.
func (q *QueryEngine) GetCollections(ctx context.Context, superCollection string) ([]models.Collection, error) {
	superID := identity.DeriveSuperCollectionID(superCollection)
	sc, err := q.store.SuperCollection(ctx, superID)
	if err != nil {
		return nil, fmt.Errorf("get super collection: %w", err)
	}
	if sc == nil {
		return nil, newError(KindSuperCollectionNotFound, "super collection %q", superCollection)
	}
	colls, err := q.store.Collections(ctx, superID)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	if colls == nil {
		colls = []models.Collection{}
	}
	return colls, nil
}

func (q *QueryEngine) observe(op, source string, start time.Time) {
	if q.metrics == nil {
		return
	}
	q.metrics.QueryDuration.WithLabelValues(op, source).Observe(time.Since(start).Seconds())
}

// Cache keys start with the collection id so a commit can drop every
// entry of the collection it wrote.
func collectionKeyPrefix(collectionID uuid.UUID) string {
	return collectionID.String() + "|"
}

func flightKey(key string, gen uint64) string {
	return key + "@" + strconv.FormatUint(gen, 10)
}

func toursKey(collectionID uuid.UUID) string {
	return collectionKeyPrefix(collectionID) + "tours"
}

func timelinesKey(collectionID uuid.UUID, tq TimelineQuery) string {
	var b strings.Builder
	b.WriteString(collectionKeyPrefix(collectionID))
	b.WriteString("timelines")
	for _, f := range []*float64{tq.FromYear, tq.ToYear, tq.MinSpan} {
		b.WriteByte('|')
		if f != nil {
			b.WriteString(strconv.FormatFloat(*f, 'g', -1, 64))
		}
	}
	b.WriteByte('|')
	if tq.CommonAncestor != nil {
		b.WriteString(tq.CommonAncestor.String())
	}
	b.WriteByte('|')
	if tq.MaxElements != nil {
		b.WriteString(strconv.Itoa(*tq.MaxElements))
	}
	return b.String()
}
