// Package sqlite implements store.Store on database/sql with the
// mattn/go-sqlite3 driver. Identifiers are stored as canonical UUID text.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"chronozoom/internal/store"
	"chronozoom/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

var _ store.Store = (*Repo)(nil)

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

func (r *Repo) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

func (r *Repo) SuperCollection(ctx context.Context, id uuid.UUID) (*models.SuperCollection, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, title, owner_id
		FROM super_collections
		WHERE id = ?
	`, id.String())

	var (
		sc    models.SuperCollection
		owner sql.NullString
	)
	if err := row.Scan(&sc.ID, &sc.Title, &owner); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get super collection: %w", err)
	}
	var err error
	if sc.OwnerID, err = parseNullID(owner); err != nil {
		return nil, fmt.Errorf("get super collection: %w", err)
	}
	return &sc, nil
}

const collectionColumns = `id, super_collection_id, title, path, description, theme, publicly_searchable, owner_id`

func scanCollection(sc scanner) (models.Collection, error) {
	var (
		c     models.Collection
		owner sql.NullString
	)
	if err := sc.Scan(&c.ID, &c.SuperCollectionID, &c.Title, &c.Path, &c.Description, &c.Theme, &c.PubliclySearchable, &owner); err != nil {
		return c, err
	}
	var err error
	c.OwnerID, err = parseNullID(owner)
	return c, err
}

func (r *Repo) Collection(ctx context.Context, id uuid.UUID) (*models.Collection, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+collectionColumns+` FROM collections WHERE id = ?`, id.String())
	c, err := scanCollection(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get collection: %w", err)
	}
	return &c, nil
}

func (r *Repo) Collections(ctx context.Context, superCollectionID uuid.UUID) ([]models.Collection, error) {
	return r.listCollections(ctx, `WHERE super_collection_id = ?`, superCollectionID.String())
}

func (r *Repo) CollectionsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Collection, error) {
	return r.listCollections(ctx, `WHERE owner_id = ?`, ownerID.String())
}

func (r *Repo) listCollections(ctx context.Context, where string, args ...any) ([]models.Collection, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+collectionColumns+` FROM collections `+where+` ORDER BY title, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	out := make([]models.Collection, 0)
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collection row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

const timelineColumns = `id, collection_id, parent_id, title, regime, from_year, to_year, depth`

func scanTimeline(sc scanner) (models.Timeline, error) {
	var (
		t      models.Timeline
		parent sql.NullString
	)
	if err := sc.Scan(&t.ID, &t.CollectionID, &parent, &t.Title, &t.Regime, &t.FromYear, &t.ToYear, &t.Depth); err != nil {
		return t, err
	}
	var err error
	t.ParentID, err = parseNullID(parent)
	return t, err
}

func (r *Repo) Timeline(ctx context.Context, id uuid.UUID) (*models.Timeline, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+timelineColumns+` FROM timelines WHERE id = ?`, id.String())
	t, err := scanTimeline(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get timeline: %w", err)
	}
	return &t, nil
}

func (r *Repo) ChildTimelines(ctx context.Context, parentID uuid.UUID) ([]models.Timeline, error) {
	return r.listTimelines(ctx, `WHERE parent_id = ?`, 0, parentID.String())
}

func (r *Repo) CollectionTimelines(ctx context.Context, collectionID uuid.UUID) ([]models.Timeline, error) {
	return r.listTimelines(ctx, `WHERE collection_id = ?`, 0, collectionID.String())
}

func (r *Repo) TimelinesInRange(ctx context.Context, q store.RangeQuery) ([]models.Timeline, error) {
	return r.listTimelines(ctx,
		`WHERE collection_id = ? AND from_year <= ? AND to_year >= ? AND (to_year - from_year) >= ?`,
		q.Limit, q.CollectionID.String(), q.ToYear, q.FromYear, q.MinSpan)
}

// listTimelines orders by depth first so that a LIMIT keeps the shallowest
// levels of the tree.
func (r *Repo) listTimelines(ctx context.Context, where string, limit int, args ...any) ([]models.Timeline, error) {
	q := `SELECT ` + timelineColumns + ` FROM timelines ` + where + ` ORDER BY depth, from_year, id`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list timelines: %w", err)
	}
	defer rows.Close()

	out := make([]models.Timeline, 0)
	for rows.Next() {
		t, err := scanTimeline(rows)
		if err != nil {
			return nil, fmt.Errorf("scan timeline row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

const exhibitColumns = `id, collection_id, timeline_id, title, year, depth`

func (r *Repo) Exhibit(ctx context.Context, id uuid.UUID) (*models.Exhibit, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+exhibitColumns+` FROM exhibits WHERE id = ?`, id.String())
	var e models.Exhibit
	if err := row.Scan(&e.ID, &e.CollectionID, &e.TimelineID, &e.Title, &e.Year, &e.Depth); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get exhibit: %w", err)
	}
	return &e, nil
}

func (r *Repo) Exhibits(ctx context.Context, timelineIDs []uuid.UUID) ([]models.Exhibit, error) {
	out := make([]models.Exhibit, 0)
	if len(timelineIDs) == 0 {
		return out, nil
	}
	in, args := inClause(timelineIDs)
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+exhibitColumns+`
		FROM exhibits
		WHERE timeline_id IN (`+in+`)
		ORDER BY year, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list exhibits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.Exhibit
		if err := rows.Scan(&e.ID, &e.CollectionID, &e.TimelineID, &e.Title, &e.Year, &e.Depth); err != nil {
			return nil, fmt.Errorf("scan exhibit row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

const contentItemColumns = `id, collection_id, exhibit_id, title, caption, media_type, uri, media_source, attribution, item_order, depth`

func scanContentItem(sc scanner) (models.ContentItem, error) {
	var ci models.ContentItem
	err := sc.Scan(&ci.ID, &ci.CollectionID, &ci.ExhibitID, &ci.Title, &ci.Caption, &ci.MediaType,
		&ci.Uri, &ci.MediaSource, &ci.Attribution, &ci.Order, &ci.Depth)
	return ci, err
}

func (r *Repo) ContentItem(ctx context.Context, id uuid.UUID) (*models.ContentItem, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+contentItemColumns+` FROM content_items WHERE id = ?`, id.String())
	ci, err := scanContentItem(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get content item: %w", err)
	}
	return &ci, nil
}

func (r *Repo) ContentItems(ctx context.Context, exhibitIDs []uuid.UUID) ([]models.ContentItem, error) {
	out := make([]models.ContentItem, 0)
	if len(exhibitIDs) == 0 {
		return out, nil
	}
	in, args := inClause(exhibitIDs)
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+contentItemColumns+`
		FROM content_items
		WHERE exhibit_id IN (`+in+`)
		ORDER BY item_order, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ci, err := scanContentItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content item row: %w", err)
		}
		out = append(out, ci)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// Search matches term case-insensitively as a substring. Case is folded by
// ulower, so non-ASCII titles match too. Timelines come first, then
// exhibits, then content items, each ordered by title.
func (r *Repo) Search(ctx context.Context, collectionID uuid.UUID, term string) ([]models.SearchResult, error) {
	kw := "%" + escapeLike(strings.ToLower(term)) + "%"
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, title, 'timeline' AS kind, 0 AS grp, ulower(title) AS sort_title FROM timelines
		WHERE collection_id = ? AND ulower(title) LIKE ? ESCAPE '\'
		UNION ALL
		SELECT id, title, 'exhibit', 1, ulower(title) FROM exhibits
		WHERE collection_id = ? AND ulower(title) LIKE ? ESCAPE '\'
		UNION ALL
		SELECT id, title, 'contentitem', 2, ulower(title) FROM content_items
		WHERE collection_id = ? AND (ulower(title) LIKE ? ESCAPE '\' OR ulower(caption) LIKE ? ESCAPE '\')
		ORDER BY grp, sort_title, id
	`, collectionID.String(), kw, collectionID.String(), kw, collectionID.String(), kw, kw)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	out := make([]models.SearchResult, 0)
	for rows.Next() {
		var (
			res       models.SearchResult
			grp       int
			sortTitle string
		)
		if err := rows.Scan(&res.ID, &res.Title, &res.Type, &grp, &sortTitle); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

const tourColumns = `id, collection_id, name, description, audio_url, category, sequence`

func scanTour(sc scanner) (models.Tour, error) {
	var t models.Tour
	err := sc.Scan(&t.ID, &t.CollectionID, &t.Name, &t.Description, &t.AudioURL, &t.Category, &t.Sequence)
	return t, err
}

func (r *Repo) Tour(ctx context.Context, id uuid.UUID) (*models.Tour, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+tourColumns+` FROM tours WHERE id = ?`, id.String())
	t, err := scanTour(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get tour: %w", err)
	}
	tours := []models.Tour{t}
	if err := r.loadBookmarks(ctx, tours); err != nil {
		return nil, err
	}
	return &tours[0], nil
}

// Tours returns the tours of a collection with their bookmarks loaded.
func (r *Repo) Tours(ctx context.Context, collectionID uuid.UUID) ([]models.Tour, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+tourColumns+`
		FROM tours
		WHERE collection_id = ?
		ORDER BY sequence, id
	`, collectionID.String())
	if err != nil {
		return nil, fmt.Errorf("list tours: %w", err)
	}
	defer rows.Close()

	out := make([]models.Tour, 0)
	for rows.Next() {
		t, err := scanTour(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tour row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	if err := r.loadBookmarks(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) loadBookmarks(ctx context.Context, tours []models.Tour) error {
	if len(tours) == 0 {
		return nil
	}
	index := make(map[uuid.UUID]int, len(tours))
	ids := make([]uuid.UUID, 0, len(tours))
	for i := range tours {
		tours[i].Bookmarks = make([]models.Bookmark, 0)
		index[tours[i].ID] = i
		ids = append(ids, tours[i].ID)
	}

	in, args := inClause(ids)
	rows, err := r.DB.QueryContext(ctx, `
		SELECT tour_id, id, name, url, lapse_time, description, sequence
		FROM bookmarks
		WHERE tour_id IN (`+in+`)
		ORDER BY sequence, id
	`, args...)
	if err != nil {
		return fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tourID uuid.UUID
			b      models.Bookmark
		)
		if err := rows.Scan(&tourID, &b.ID, &b.Name, &b.URL, &b.LapseTime, &b.Description, &b.Sequence); err != nil {
			return fmt.Errorf("scan bookmark row: %w", err)
		}
		if i, ok := index[tourID]; ok {
			tours[i].Bookmarks = append(tours[i].Bookmarks, b)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows err: %w", err)
	}
	return nil
}

const userColumns = `id, display_name, email, name_identifier, identity_provider`

func (r *Repo) User(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())
	return scanUser(row, "get user by id")
}

func (r *Repo) UserByIdentity(ctx context.Context, nameIdentifier, identityProvider string) (*models.User, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE name_identifier = ? AND identity_provider = ?
	`, nameIdentifier, identityProvider)
	return scanUser(row, "get user by identity")
}

func scanUser(row *sql.Row, op string) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.DisplayName, &u.Email, &u.NameIdentifier, &u.IdentityProvider); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func parseNullID(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil, fmt.Errorf("parse id %q: %w", s.String, err)
	}
	return &id, nil
}

func nullID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func inClause(ids []uuid.UUID) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id.String()
	}
	return strings.Join(marks, ","), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
