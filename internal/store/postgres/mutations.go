package postgres

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/scryforge/hub/internal/model"
)

func (p *Postgres) setFlag(ctx context.Context, id model.ItemID, column string, value bool) error {
	query, _, err := p.goqu.Update(p.tableItems).
		Set(goqu.Record{column: value}).
		Where(goqu.I("id").Eq(string(id))).ToSQL()
	if err != nil {
		return fmt.Errorf("build set %s query: %w", column, err)
	}
	res, err := p.db.ExecContext(ctx, query)
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

func (p *Postgres) MarkRead(ctx context.Context, id model.ItemID) error {
	return p.setFlag(ctx, id, "is_read", true)
}

func (p *Postgres) MarkUnread(ctx context.Context, id model.ItemID) error {
	return p.setFlag(ctx, id, "is_read", false)
}

func (p *Postgres) MarkSaved(ctx context.Context, id model.ItemID) error {
	return p.setFlag(ctx, id, "is_saved", true)
}

func (p *Postgres) MarkUnsaved(ctx context.Context, id model.ItemID) error {
	return p.setFlag(ctx, id, "is_saved", false)
}

func (p *Postgres) MarkArchived(ctx context.Context, id model.ItemID) error {
	return p.setFlag(ctx, id, "is_archived", true)
}

func (p *Postgres) Unarchive(ctx context.Context, id model.ItemID) error {
	return p.setFlag(ctx, id, "is_archived", false)
}

// RemoveProvider cascades the delete of every stream (and, by the schema's
// ON DELETE CASCADE, every item) owned by providerID.
func (p *Postgres) RemoveProvider(ctx context.Context, providerID string) error {
	tx, err := p.goqu.Begin()
	if err != nil {
		return fmt.Errorf("begin remove provider: %w", err)
	}
	defer tx.Rollback()

	q, _, err := tx.Delete(p.tableStreams).Where(goqu.I("provider_id").Eq(providerID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete streams query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("delete streams for provider %q: %w", providerID, err)
	}

	q, _, err = tx.Delete(p.tableCollections).Where(goqu.I("provider_id").Eq(providerID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete collections query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("delete collections for provider %q: %w", providerID, err)
	}

	q, _, err = tx.Delete(p.tableSyncState).Where(goqu.I("provider_id").Eq(providerID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete sync_state query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("delete sync_state for provider %q: %w", providerID, err)
	}

	return tx.Commit()
}

// Search runs query against the generated search_vector tsvector column via
// plainto_tsquery, ranked by ts_rank then published DESC, capped at 100
// rows. Unlike the sqlite3 backend's FTS5 join, the tsvector lives
// directly on the items row so no join is needed.
func (p *Postgres) Search(ctx context.Context, query string, filter model.SearchFilter) ([]model.Item, error) {
	cols := make([]any, 0, len(itemColumns))
	for _, c := range itemColumns {
		cols = append(cols, goqu.I("i."+c.(string)))
	}

	builder := p.goqu.Select(cols...).From(goqu.T(p.tableItemsName).As("i"))
	if query != "" {
		builder = builder.Where(goqu.L("i.search_vector @@ plainto_tsquery('simple', ?)", query))
	}

	builder = applySearchFilter(builder, filter)

	if query != "" {
		builder = builder.Order(goqu.L("ts_rank(i.search_vector, plainto_tsquery('simple', ?))", query).Desc(), goqu.I("i.published").Desc())
	} else {
		builder = builder.Order(goqu.I("i.published").Desc())
	}
	builder = builder.Limit(100)

	sqlStr, _, err := builder.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	defer rows.Close()

	var out []model.Item
	for rows.Next() {
		it, err := p.scanItem(rows.Scan)
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
		ds = ds.Where(goqu.I("i.is_read").Eq(*filter.IsRead))
	}
	if filter.IsSaved != nil {
		ds = ds.Where(goqu.I("i.is_saved").Eq(*filter.IsSaved))
	}
	if len(filter.Providers) > 0 {
		ds = ds.Where(goqu.L("split_part(i.id, ':', 1)").In(filter.Providers))
	}
	if len(filter.ExcludeProv) > 0 {
		ds = ds.Where(goqu.L("split_part(i.id, ':', 1)").NotIn(filter.ExcludeProv))
	}
	if filter.SinceUnix > 0 {
		ds = ds.Where(goqu.L("extract(epoch from i.published) >= ?", filter.SinceUnix))
	}
	if filter.UntilUnix > 0 {
		ds = ds.Where(goqu.L("extract(epoch from i.published) <= ?", filter.UntilUnix))
	}
	return ds
}
