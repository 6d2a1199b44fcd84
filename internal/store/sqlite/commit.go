package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"chronozoom/internal/store"
)

// Commit applies the batch in a single transaction.
func (r *Repo) Commit(ctx context.Context, b *store.Batch) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, op := range b.Ops() {
		if err = apply(ctx, tx, op); err != nil {
			return fmt.Errorf("apply op %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func apply(ctx context.Context, tx *sql.Tx, op store.Op) error {
	switch op.Kind {
	case store.OpPutSuperCollection:
		sc := op.SuperCollection
		_, err := tx.ExecContext(ctx, `
			INSERT INTO super_collections (id, title, owner_id)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				owner_id = excluded.owner_id
		`, sc.ID.String(), sc.Title, nullID(sc.OwnerID))
		if err != nil {
			return fmt.Errorf("put super collection: %w", err)
		}

	case store.OpPutCollection:
		c := op.Collection
		_, err := tx.ExecContext(ctx, `
			INSERT INTO collections (id, super_collection_id, title, path, description, theme, publicly_searchable, owner_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				description = excluded.description,
				theme = excluded.theme,
				publicly_searchable = excluded.publicly_searchable,
				owner_id = excluded.owner_id
		`, c.ID.String(), c.SuperCollectionID.String(), c.Title, c.Path, c.Description, c.Theme,
			c.PubliclySearchable, nullID(c.OwnerID))
		if err != nil {
			return fmt.Errorf("put collection: %w", err)
		}

	case store.OpPutTimeline:
		t := op.Timeline
		_, err := tx.ExecContext(ctx, `
			INSERT INTO timelines (id, collection_id, parent_id, title, regime, from_year, to_year, depth)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				regime = excluded.regime,
				from_year = excluded.from_year,
				to_year = excluded.to_year
		`, t.ID.String(), t.CollectionID.String(), nullID(t.ParentID), t.Title, t.Regime,
			t.FromYear, t.ToYear, t.Depth)
		if err != nil {
			return fmt.Errorf("put timeline: %w", err)
		}

	case store.OpPutExhibit:
		e := op.Exhibit
		_, err := tx.ExecContext(ctx, `
			INSERT INTO exhibits (id, collection_id, timeline_id, title, year, depth)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				year = excluded.year
		`, e.ID.String(), e.CollectionID.String(), e.TimelineID.String(), e.Title, e.Year, e.Depth)
		if err != nil {
			return fmt.Errorf("put exhibit: %w", err)
		}

	case store.OpPutContentItem:
		ci := op.ContentItem
		_, err := tx.ExecContext(ctx, `
			INSERT INTO content_items (id, collection_id, exhibit_id, title, caption, media_type, uri,
				media_source, attribution, item_order, depth)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				caption = excluded.caption,
				media_type = excluded.media_type,
				uri = excluded.uri,
				media_source = excluded.media_source,
				attribution = excluded.attribution,
				item_order = excluded.item_order
		`, ci.ID.String(), ci.CollectionID.String(), ci.ExhibitID.String(), ci.Title, ci.Caption,
			ci.MediaType, ci.Uri, ci.MediaSource, ci.Attribution, ci.Order, ci.Depth)
		if err != nil {
			return fmt.Errorf("put content item: %w", err)
		}

	case store.OpPutTour:
		return putTour(ctx, tx, op)

	case store.OpPutUser:
		u := op.User
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, display_name, email, name_identifier, identity_provider)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				display_name = excluded.display_name,
				email = excluded.email
		`, u.ID.String(), u.DisplayName, u.Email, u.NameIdentifier, u.IdentityProvider)
		if err != nil {
			return fmt.Errorf("put user: %w", err)
		}

	default:
		table, ok := deleteTables[op.Kind]
		if !ok {
			return fmt.Errorf("unknown op kind %d", op.Kind)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, op.ID.String()); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return nil
}

var deleteTables = map[store.OpKind]string{
	store.OpDeleteSuperCollection: "super_collections",
	store.OpDeleteCollection:      "collections",
	store.OpDeleteTimeline:        "timelines",
	store.OpDeleteExhibit:         "exhibits",
	store.OpDeleteContentItem:     "content_items",
	store.OpDeleteTour:            "tours",
	store.OpDeleteUser:            "users",
}

// putTour upserts the tour row and replaces its bookmarks.
func putTour(ctx context.Context, tx *sql.Tx, op store.Op) error {
	t := op.Tour
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tours (id, collection_id, name, description, audio_url, category, sequence)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			audio_url = excluded.audio_url,
			category = excluded.category,
			sequence = excluded.sequence
	`, t.ID.String(), t.CollectionID.String(), t.Name, t.Description, t.AudioURL, t.Category, t.Sequence)
	if err != nil {
		return fmt.Errorf("put tour: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM bookmarks WHERE tour_id = ?`, t.ID.String()); err != nil {
		return fmt.Errorf("clear bookmarks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bookmarks (id, tour_id, name, url, lapse_time, description, sequence)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare bookmark insert: %w", err)
	}
	defer stmt.Close()

	for _, bm := range t.Bookmarks {
		if _, err := stmt.ExecContext(ctx, bm.ID.String(), t.ID.String(), bm.Name, bm.URL,
			bm.LapseTime, bm.Description, bm.Sequence); err != nil {
			return fmt.Errorf("insert bookmark %s: %w", bm.ID, err)
		}
	}
	return nil
}
