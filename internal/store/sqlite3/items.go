package sqlite3

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/scryforge/hub/internal/model"
	"github.com/worldline-go/types"
)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type itemRow struct {
	ID              string
	StreamID        string
	Title           string
	ContentType     string
	ContentDataJSON string
	AuthorName      string
	AuthorEmail     string
	AuthorURL       string
	AuthorAvatar    string
	Published       types.Null[types.Time]
	Updated         types.Null[types.Time]
	URL             string
	ThumbnailURL    string
	IsRead          int
	IsSaved         int
	IsArchived      int
	TagsJSON        string
	MetadataJSON    string
	CreatedAt       types.Time
	UpdatedAt       types.Time
}

var itemColumns = []any{
	"id", "stream_id", "title", "content_type", "content_data_json",
	"author_name", "author_email", "author_url", "author_avatar",
	"published", "updated", "url", "thumbnail_url",
	"is_read", "is_saved", "is_archived", "tags_json", "metadata_json",
	"created_at", "updated_at",
}

func itemRowToModel(row itemRow) (model.Item, error) {
	content, err := model.UnmarshalContent([]byte(row.ContentDataJSON))
	if err != nil {
		return model.Item{}, fmt.Errorf("unmarshal item content %q: %w", row.ID, err)
	}

	var tags []string
	if err := json.Unmarshal([]byte(row.TagsJSON), &tags); err != nil {
		return model.Item{}, fmt.Errorf("unmarshal item tags %q: %w", row.ID, err)
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(row.MetadataJSON), &meta); err != nil {
		return model.Item{}, fmt.Errorf("unmarshal item metadata %q: %w", row.ID, err)
	}

	it := model.Item{
		ID:         model.ItemID(row.ID),
		StreamID:   model.StreamID(row.StreamID),
		Title:      row.Title,
		Content:    content,
		Published:  row.Published,
		Updated:    row.Updated,
		URL:        row.URL,
		Thumbnail:  row.ThumbnailURL,
		IsRead:     row.IsRead != 0,
		IsSaved:    row.IsSaved != 0,
		IsArchived: row.IsArchived != 0,
		Tags:       tags,
		Metadata:   meta,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	if row.AuthorName != "" || row.AuthorEmail != "" || row.AuthorURL != "" || row.AuthorAvatar != "" {
		it.Author = &model.Author{Name: row.AuthorName, Email: row.AuthorEmail, URL: row.AuthorURL, Avatar: row.AuthorAvatar}
	}
	return it, nil
}

func (s *SQLite) scanItem(scan func(dest ...any) error) (model.Item, error) {
	var row itemRow
	if err := scan(
		&row.ID, &row.StreamID, &row.Title, &row.ContentType, &row.ContentDataJSON,
		&row.AuthorName, &row.AuthorEmail, &row.AuthorURL, &row.AuthorAvatar,
		&row.Published, &row.Updated, &row.URL, &row.ThumbnailURL,
		&row.IsRead, &row.IsSaved, &row.IsArchived, &row.TagsJSON, &row.MetadataJSON,
		&row.CreatedAt, &row.UpdatedAt,
	); err != nil {
		return model.Item{}, err
	}
	return itemRowToModel(row)
}

func (s *SQLite) GetItems(ctx context.Context, streamID model.StreamID, opts model.ListOptions) ([]model.Item, error) {
	ds := s.goqu.From(s.tableItems).Select(itemColumns...).
		Where(goqu.I("stream_id").Eq(string(streamID))).
		Order(goqu.I("published").Desc(), goqu.I("id").Asc())

	if opts.IsRead != nil {
		ds = ds.Where(goqu.I("is_read").Eq(boolToInt(*opts.IsRead)))
	}
	if opts.IsSaved != nil {
		ds = ds.Where(goqu.I("is_saved").Eq(boolToInt(*opts.IsSaved)))
	}
	if opts.Limit > 0 {
		ds = ds.Limit(uint(opts.Limit))
	}
	if opts.Offset > 0 {
		ds = ds.Offset(uint(opts.Offset))
	}

	query, _, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list items query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []model.Item
	for rows.Next() {
		it, err := s.scanItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *SQLite) GetItem(ctx context.Context, id model.ItemID) (*model.Item, error) {
	query, _, err := s.goqu.From(s.tableItems).Select(itemColumns...).
		Where(goqu.I("id").Eq(string(id))).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get item query: %w", err)
	}

	it, err := s.scanItem(s.db.QueryRowContext(ctx, query).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %q: %w", id, err)
	}
	return &it, nil
}

// UpsertItems validates stream ownership, preserves local
// read/saved/archived flags across re-ingestion, merges tags and metadata
// (incoming wins on collision), then prunes each touched stream back down to maxItemsPerStream
// by discarding the oldest items past the retention window.
func (s *SQLite) UpsertItems(ctx context.Context, items []model.Item) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.goqu.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert items: %w", err)
	}
	defer tx.Rollback()

	touchedStreams := make(map[model.StreamID]struct{})

	for _, it := range items {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("upsert item %q: %w", it.ID, err)
		}
		touchedStreams[it.StreamID] = struct{}{}

		existQuery, _, err := tx.From(s.tableItems).
			Select("is_read", "is_saved", "is_archived", "tags_json", "metadata_json").
			Where(goqu.I("id").Eq(string(it.ID))).ToSQL()
		if err != nil {
			return fmt.Errorf("build item existence query: %w", err)
		}

		var existingRead, existingSaved, existingArchived int
		var existingTagsJSON, existingMetaJSON string
		err = tx.QueryRowContext(ctx, existQuery).Scan(&existingRead, &existingSaved, &existingArchived, &existingTagsJSON, &existingMetaJSON)
		found := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check item %q: %w", it.ID, err)
		}

		isRead, isSaved, isArchived := it.IsRead, it.IsSaved, it.IsArchived
		tags, meta := it.Tags, it.Metadata

		if found {
			isRead = existingRead != 0
			isSaved = existingSaved != 0
			isArchived = existingArchived != 0

			var existingTags []string
			if err := json.Unmarshal([]byte(existingTagsJSON), &existingTags); err != nil {
				return fmt.Errorf("unmarshal existing tags %q: %w", it.ID, err)
			}
			var existingMeta map[string]string
			if err := json.Unmarshal([]byte(existingMetaJSON), &existingMeta); err != nil {
				return fmt.Errorf("unmarshal existing metadata %q: %w", it.ID, err)
			}
			tags, meta = model.MergeTagsAndMetadata(existingTags, it.Tags, existingMeta, it.Metadata)
		}

		contentJSON, err := model.MarshalContent(it.Content)
		if err != nil {
			return fmt.Errorf("marshal item content %q: %w", it.ID, err)
		}
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("marshal item tags %q: %w", it.ID, err)
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal item metadata %q: %w", it.ID, err)
		}

		var author model.Author
		if it.Author != nil {
			author = *it.Author
		}

		record := goqu.Record{
			"id":                string(it.ID),
			"stream_id":         string(it.StreamID),
			"title":             it.Title,
			"content_type":      string(it.Content.Type()),
			"content_data_json": string(contentJSON),
			"author_name":       author.Name,
			"author_email":      author.Email,
			"author_url":        author.URL,
			"author_avatar":     author.Avatar,
			"published":         it.Published,
			"updated":           it.Updated,
			"url":               it.URL,
			"thumbnail_url":     it.Thumbnail,
			"is_read":           boolToInt(isRead),
			"is_saved":          boolToInt(isSaved),
			"is_archived":       boolToInt(isArchived),
			"tags_json":         string(tagsJSON),
			"metadata_json":     string(metaJSON),
			"updated_at":        it.UpdatedAt,
		}

		if found {
			q, _, err := tx.Update(s.tableItems).Set(record).Where(goqu.I("id").Eq(string(it.ID))).ToSQL()
			if err != nil {
				return fmt.Errorf("build update item query: %w", err)
			}
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("update item %q: %w", it.ID, err)
			}
		} else {
			record["created_at"] = it.CreatedAt
			q, _, err := tx.Insert(s.tableItems).Rows(record).ToSQL()
			if err != nil {
				return fmt.Errorf("build insert item query: %w", err)
			}
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("insert item %q: %w", it.ID, err)
			}
		}
	}

	for streamID := range touchedStreams {
		if err := pruneStream(ctx, tx, s.tableItems, streamID, s.maxItemsPerStream); err != nil {
			return fmt.Errorf("prune stream %q: %w", streamID, err)
		}
	}

	return tx.Commit()
}

// pruneStream enforces retention: at most maxPerStream items survive per
// stream, oldest (by published, falling back to created_at) discarded
// first. Saved or archived items are never candidates for deletion
// and are excluded from both the keep-set selection and the delete
// predicate, so they survive the cap regardless of age.
func pruneStream(ctx context.Context, tx *goqu.TxDatabase, table exp.IdentifierExpression, streamID model.StreamID, maxPerStream int) error {
	if maxPerStream <= 0 {
		return nil
	}

	prunable := goqu.And(
		goqu.I("stream_id").Eq(string(streamID)),
		goqu.I("is_saved").Eq(0),
		goqu.I("is_archived").Eq(0),
	)

	keepIDs := tx.From(table).Select("id").
		Where(prunable).
		Order(goqu.I("published").Desc(), goqu.I("created_at").Desc()).
		Limit(uint(maxPerStream))

	query, _, err := tx.Delete(table).
		Where(prunable, goqu.I("id").NotIn(keepIDs)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build prune query: %w", err)
	}

	_, err = tx.ExecContext(ctx, query)
	return err
}
