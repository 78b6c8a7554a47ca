package sqlite3

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/scryforge/hub/internal/model"
)

func (s *SQLite) setFlag(ctx context.Context, id model.ItemID, column string, value bool) error {
	query, _, err := s.goqu.Update(s.tableItems).
		Set(goqu.Record{column: boolToInt(value)}).
		Where(goqu.I("id").Eq(string(id))).ToSQL()
	if err != nil {
		return fmt.Errorf("build set %s query: %w", column, err)
	}
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("set %s on item %q: %w", column, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set %s on item %q: %w", column, id, err)
	}
	if n == 0 {
		return fmt.Errorf("item %q: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *SQLite) MarkRead(ctx context.Context, id model.ItemID) error {
	return s.setFlag(ctx, id, "is_read", true)
}

func (s *SQLite) MarkUnread(ctx context.Context, id model.ItemID) error {
	return s.setFlag(ctx, id, "is_read", false)
}

func (s *SQLite) MarkSaved(ctx context.Context, id model.ItemID) error {
	return s.setFlag(ctx, id, "is_saved", true)
}

func (s *SQLite) MarkUnsaved(ctx context.Context, id model.ItemID) error {
	return s.setFlag(ctx, id, "is_saved", false)
}

func (s *SQLite) MarkArchived(ctx context.Context, id model.ItemID) error {
	return s.setFlag(ctx, id, "is_archived", true)
}

func (s *SQLite) Unarchive(ctx context.Context, id model.ItemID) error {
	return s.setFlag(ctx, id, "is_archived", false)
}

// RemoveProvider cascades the delete of every stream (and, by the schema's
// ON DELETE CASCADE, every item) owned by providerID, plus any collections
// that provider created.
func (s *SQLite) RemoveProvider(ctx context.Context, providerID string) error {
	tx, err := s.goqu.Begin()
	if err != nil {
		return fmt.Errorf("begin remove provider: %w", err)
	}
	defer tx.Rollback()

	q, _, err := tx.Delete(s.tableStreams).Where(goqu.I("provider_id").Eq(providerID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete streams query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("delete streams for provider %q: %w", providerID, err)
	}

	q, _, err = tx.Delete(s.tableCollections).Where(goqu.I("provider_id").Eq(providerID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete collections query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("delete collections for provider %q: %w", providerID, err)
	}

	q, _, err = tx.Delete(s.tableSyncState).Where(goqu.I("provider_id").Eq(providerID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete sync_state query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("delete sync_state for provider %q: %w", providerID, err)
	}

	return tx.Commit()
}

// Search runs the FTS residue (possibly empty) against the items_fts
// external-content index, narrowed by filter, ranked by FTS bm25 score then
// published DESC, capped at 100 rows.
func (s *SQLite) Search(ctx context.Context, query string, filter model.SearchFilter) ([]model.Item, error) {
	cols := make([]any, 0, len(itemColumns))
	for _, c := range itemColumns {
		cols = append(cols, goqu.I("i."+c.(string)))
	}

	builder := s.goqu.Select(cols...).From(goqu.T(s.tableItemsName).As("i"))
	if query != "" {
		builder = builder.
			Join(goqu.T(s.tableItemsFTS).As("f"), goqu.On(goqu.I("f.rowid").Eq(goqu.I("i.rowid")))).
			Where(goqu.L("f MATCH ?", query))
	}

	builder = applySearchFilter(builder, filter)

	if query != "" {
		builder = builder.Order(goqu.L("f.rank").Asc(), goqu.I("i.published").Desc())
	} else {
		builder = builder.Order(goqu.I("i.published").Desc())
	}
	builder = builder.Limit(100)

	sqlStr, _, err := builder.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	defer rows.Close()

	var out []model.Item
	for rows.Next() {
		it, err := s.scanItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func applySearchFilter(ds *goqu.SelectDataset, filter model.SearchFilter) *goqu.SelectDataset {
	if filter.StreamID != "" {
		ds = ds.Where(goqu.I("i.stream_id").Eq(string(filter.StreamID)))
	}
	if filter.ContentType != "" {
		ds = ds.Where(goqu.I("i.content_type").Eq(string(filter.ContentType)))
	}
	if filter.IsRead != nil {
		ds = ds.Where(goqu.I("i.is_read").Eq(boolToInt(*filter.IsRead)))
	}
	if filter.IsSaved != nil {
		ds = ds.Where(goqu.I("i.is_saved").Eq(boolToInt(*filter.IsSaved)))
	}
	if len(filter.Providers) > 0 {
		ds = ds.Where(goqu.L("substr(i.id, 1, instr(i.id, ':') - 1)").In(filter.Providers))
	}
	if len(filter.ExcludeProv) > 0 {
		ds = ds.Where(goqu.L("substr(i.id, 1, instr(i.id, ':') - 1)").NotIn(filter.ExcludeProv))
	}
	if filter.SinceUnix > 0 {
		// strftime returns TEXT; without the cast, comparing it against an
		// INTEGER bound param compares by type, not value.
		ds = ds.Where(goqu.L("CAST(strftime('%s', i.published) AS INTEGER) >= ?", filter.SinceUnix))
	}
	if filter.UntilUnix > 0 {
		ds = ds.Where(goqu.L("CAST(strftime('%s', i.published) AS INTEGER) <= ?", filter.UntilUnix))
	}
	return ds
}
