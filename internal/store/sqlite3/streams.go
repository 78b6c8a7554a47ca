package sqlite3

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/scryforge/hub/internal/model"
	"github.com/worldline-go/types"
)

type streamRow struct {
	ID           string
	Name         string
	ProviderID   string
	StreamKind   string
	CustomTag    string
	Icon         string
	UnreadCount  sql.NullInt64
	TotalCount   sql.NullInt64
	LastUpdated  types.Null[types.Time]
	MetadataJSON string
	CreatedAt    types.Time
	UpdatedAt    types.Time
}

var streamColumns = []any{"id", "name", "provider_id", "stream_kind", "custom_tag", "icon", "unread_count", "total_count", "last_updated", "metadata_json", "created_at", "updated_at"}

func streamRowToModel(row streamRow) (model.Stream, error) {
	var meta map[string]string
	if err := json.Unmarshal([]byte(row.MetadataJSON), &meta); err != nil {
		return model.Stream{}, fmt.Errorf("unmarshal stream metadata %q: %w", row.ID, err)
	}

	st := model.Stream{
		ID:          model.StreamID(row.ID),
		Name:        row.Name,
		ProviderID:  row.ProviderID,
		Kind:        model.StreamKind(row.StreamKind),
		CustomTag:   row.CustomTag,
		Icon:        row.Icon,
		LastUpdated: row.LastUpdated,
		Metadata:    meta,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if row.UnreadCount.Valid {
		v := int(row.UnreadCount.Int64)
		st.UnreadCount = &v
	}
	if row.TotalCount.Valid {
		v := int(row.TotalCount.Int64)
		st.TotalCount = &v
	}
	return st, nil
}

func (s *SQLite) scanStream(scan func(dest ...any) error) (model.Stream, error) {
	var row streamRow
	if err := scan(&row.ID, &row.Name, &row.ProviderID, &row.StreamKind, &row.CustomTag, &row.Icon,
		&row.UnreadCount, &row.TotalCount, &row.LastUpdated, &row.MetadataJSON, &row.CreatedAt, &row.UpdatedAt); err != nil {
		return model.Stream{}, err
	}
	return streamRowToModel(row)
}

func (s *SQLite) GetStreams(ctx context.Context) ([]model.Stream, error) {
	query, _, err := s.goqu.From(s.tableStreams).Select(streamColumns...).Order(goqu.I("name").Asc()).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list streams query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer rows.Close()

	var out []model.Stream
	for rows.Next() {
		st, err := s.scanStream(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan stream row: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLite) GetStream(ctx context.Context, id model.StreamID) (*model.Stream, error) {
	query, _, err := s.goqu.From(s.tableStreams).Select(streamColumns...).
		Where(goqu.I("id").Eq(string(id))).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get stream query: %w", err)
	}

	st, err := s.scanStream(s.db.QueryRowContext(ctx, query).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stream %q: %w", id, err)
	}
	return &st, nil
}

// UpsertStreams validates each stream (owner prefix matches provider_id,
// unread <= total when both present), then inserts or replaces it by id.
// The merge keeps last_updated monotonic so a stale sync can never
// regress a stream's last_updated.
func (s *SQLite) UpsertStreams(ctx context.Context, streams []model.Stream) error {
	if len(streams) == 0 {
		return nil
	}

	tx, err := s.goqu.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert streams: %w", err)
	}
	defer tx.Rollback()

	for _, st := range streams {
		if err := st.Validate(); err != nil {
			return fmt.Errorf("upsert stream %q: %w", st.ID, err)
		}

		var count int
		existQuery, _, err := tx.From(s.tableStreams).Select(goqu.COUNT("id")).
			Where(goqu.I("id").Eq(string(st.ID))).ToSQL()
		if err != nil {
			return fmt.Errorf("build stream existence query: %w", err)
		}
		if err := tx.QueryRowContext(ctx, existQuery).Scan(&count); err != nil {
			return fmt.Errorf("check stream %q: %w", st.ID, err)
		}
		found := count > 0

		metaJSON, err := json.Marshal(st.Metadata)
		if err != nil {
			return fmt.Errorf("marshal stream metadata %q: %w", st.ID, err)
		}

		record := goqu.Record{
			"id":            string(st.ID),
			"name":          st.Name,
			"provider_id":   st.ProviderID,
			"stream_kind":   string(st.Kind),
			"custom_tag":    st.CustomTag,
			"icon":          st.Icon,
			"unread_count":  nil,
			"total_count":   nil,
			"metadata_json": string(metaJSON),
			"created_at":    st.CreatedAt,
			"updated_at":    st.UpdatedAt,
		}
		if st.UnreadCount != nil {
			record["unread_count"] = *st.UnreadCount
		}
		if st.TotalCount != nil {
			record["total_count"] = *st.TotalCount
		}

		if found {
			delete(record, "id")
			delete(record, "created_at")
			// A stream's last_updated never regresses. Comparison is
			// done in SQL against the stored TEXT column, in the same
			// RFC3339 encoding types.Time writes, so no Go-side clamping
			// logic is needed.
			record["last_updated"] = goqu.L("CASE WHEN last_updated IS NULL OR last_updated < ? THEN ? ELSE last_updated END", st.LastUpdated, st.LastUpdated)

			q, _, err := tx.Update(s.tableStreams).Set(record).Where(goqu.I("id").Eq(string(st.ID))).ToSQL()
			if err != nil {
				return fmt.Errorf("build update stream query: %w", err)
			}
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("update stream %q: %w", st.ID, err)
			}
		} else {
			record["last_updated"] = st.LastUpdated
			q, _, err := tx.Insert(s.tableStreams).Rows(record).ToSQL()
			if err != nil {
				return fmt.Errorf("build insert stream query: %w", err)
			}
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("insert stream %q: %w", st.ID, err)
			}
		}
	}

	return tx.Commit()
}
