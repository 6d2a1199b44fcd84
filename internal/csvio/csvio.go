// Package csvio moves the timeline tree of a collection in and out of CSV.
//
// The columns are id, parent_id, title, regime, from_year and to_year. Ids
// in a file are only used to link rows to their parent; imported timelines
// get fresh ids.
package csvio

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chronozoom/internal/store"
	"chronozoom/internal/timeline"
	"chronozoom/pkg/models"
)

var Header = []string{"id", "parent_id", "title", "regime", "from_year", "to_year"}

// TimelinePutter is the part of the mutation engine an import needs.
type TimelinePutter interface {
	PutTimeline(ctx context.Context, acting *models.User, ref timeline.CollectionRef, in *timeline.TimelineInput) (uuid.UUID, error)
}

type Importer struct {
	Mutate TimelinePutter
	Store  store.Store
	Log    zerolog.Logger

	// KeepGoing skips rows the engine rejects instead of stopping at the
	// first one. Store failures always stop the import.
	KeepGoing bool
}

type Result struct {
	Created int
	Skipped int
}

// Import writes every row of r as a timeline of ref. Rows must list a
// parent before its children. A row without parent_id hangs off the
// collection root; a parentless row titled like the root is taken to be the
// root itself and is not written.
func (im *Importer) Import(ctx context.Context, acting *models.User, ref timeline.CollectionRef, r io.Reader) (Result, error) {
	var res Result

	root, err := im.root(ctx, ref)
	if err != nil {
		return res, err
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := readHeader(cr)
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}
	for _, col := range []string{"title", "from_year", "to_year"} {
		if _, ok := header[col]; !ok {
			return res, fmt.Errorf("missing column %q", col)
		}
	}

	ids := make(map[string]uuid.UUID)
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		if len(row) == 0 {
			continue
		}

		srcID := valueAt(header, row, "id")
		parentRef := valueAt(header, row, "parent_id")
		title := valueAt(header, row, "title")
		if title == "" {
			res.Skipped++
			continue
		}
		if parentRef == "" && title == timeline.RootTimelineTitle {
			if srcID != "" {
				ids[srcID] = root
			}
			continue
		}

		from, err := strconv.ParseFloat(valueAt(header, row, "from_year"), 64)
		if err != nil {
			return res, fmt.Errorf("line %d: parse from_year: %w", line, err)
		}
		to, err := strconv.ParseFloat(valueAt(header, row, "to_year"), 64)
		if err != nil {
			return res, fmt.Errorf("line %d: parse to_year: %w", line, err)
		}

		parent := root
		if parentRef != "" {
			p, ok := ids[parentRef]
			if !ok {
				return res, fmt.Errorf("line %d: parent %q not seen before", line, parentRef)
			}
			parent = p
		}

		id, err := im.Mutate.PutTimeline(ctx, acting, ref, &timeline.TimelineInput{
			ParentID: &parent,
			Title:    title,
			Regime:   valueAt(header, row, "regime"),
			FromYear: from,
			ToYear:   to,
		})
		if err != nil {
			if im.KeepGoing && timeline.KindOf(err) != timeline.KindUnknown {
				im.Log.Warn().Err(err).Int("line", line).Str("title", title).Msg("row skipped")
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		if srcID != "" {
			ids[srcID] = id
		}
		res.Created++
	}
	return res, nil
}

func (im *Importer) root(ctx context.Context, ref timeline.CollectionRef) (uuid.UUID, error) {
	rows, err := im.Store.CollectionTimelines(ctx, ref.ID())
	if err != nil {
		return uuid.Nil, fmt.Errorf("list timelines: %w", err)
	}
	for _, t := range rows {
		if t.ParentID == nil {
			return t.ID, nil
		}
	}
	return uuid.Nil, fmt.Errorf("collection %s has no root timeline", ref)
}

// Export writes every timeline of the collection, shallowest first, so
// that the output can be fed back to Import.
func Export(ctx context.Context, s store.Store, collectionID uuid.UUID, w io.Writer) (int, error) {
	rows, err := s.CollectionTimelines(ctx, collectionID)
	if err != nil {
		return 0, fmt.Errorf("list timelines: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, err
	}
	for _, t := range rows {
		parent := ""
		if t.ParentID != nil {
			parent = t.ParentID.String()
		}
		rec := []string{
			t.ID.String(),
			parent,
			t.Title,
			t.Regime,
			strconv.FormatFloat(t.FromYear, 'f', -1, 64),
			strconv.FormatFloat(t.ToYear, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(rows), cw.Error()
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
