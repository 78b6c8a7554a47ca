package sqlite3

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/oklog/ulid/v2"
	"github.com/scryforge/hub/internal/model"
	"github.com/worldline-go/types"
)

type collectionRow struct {
	ID          string
	ProviderID  string
	Name        string
	Description string
	Icon        string
	IsEditable  int
	Owner       string
}

var collectionColumns = []any{"id", "provider_id", "name", "description", "icon", "is_editable", "owner"}

func (s *SQLite) collectionItemCount(ctx context.Context, id model.CollectionID) (int, error) {
	query, _, err := s.goqu.From(s.tableCollectionItems).Select(goqu.COUNT("item_id")).
		Where(goqu.I("collection_id").Eq(string(id))).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build collection item count query: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count collection items %q: %w", id, err)
	}
	return count, nil
}

func (s *SQLite) scanCollection(ctx context.Context, scan func(dest ...any) error) (model.Collection, error) {
	var row collectionRow
	if err := scan(&row.ID, &row.ProviderID, &row.Name, &row.Description, &row.Icon, &row.IsEditable, &row.Owner); err != nil {
		return model.Collection{}, err
	}
	count, err := s.collectionItemCount(ctx, model.CollectionID(row.ID))
	if err != nil {
		return model.Collection{}, err
	}
	return model.Collection{
		ID:          model.CollectionID(row.ID),
		Name:        row.Name,
		Description: row.Description,
		Icon:        row.Icon,
		ItemCount:   count,
		IsEditable:  row.IsEditable != 0,
		Owner:       row.Owner,
	}, nil
}

func (s *SQLite) ListCollections(ctx context.Context) ([]model.Collection, error) {
	query, _, err := s.goqu.From(s.tableCollections).Select(collectionColumns...).Order(goqu.I("name").Asc()).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list collections query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var out []model.Collection
	for rows.Next() {
		c, err := s.scanCollection(ctx, rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan collection row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) GetCollection(ctx context.Context, id model.CollectionID) (*model.Collection, error) {
	query, _, err := s.goqu.From(s.tableCollections).Select(collectionColumns...).
		Where(goqu.I("id").Eq(string(id))).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get collection query: %w", err)
	}

	c, err := s.scanCollection(ctx, s.db.QueryRowContext(ctx, query).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get collection %q: %w", id, err)
	}
	return &c, nil
}

func (s *SQLite) GetCollectionItems(ctx context.Context, id model.CollectionID) ([]model.Item, error) {
	cols := make([]any, 0, len(itemColumns))
	for _, c := range itemColumns {
		cols = append(cols, goqu.I("i."+c.(string)))
	}

	query, _, err := s.goqu.Select(cols...).
		From(goqu.T(s.tableItemsName).As("i")).
		Join(goqu.T(s.tableCollectionItemsName).As("ci"), goqu.On(goqu.I("ci.item_id").Eq(goqu.I("i.id")))).
		Where(goqu.I("ci.collection_id").Eq(string(id))).
		Order(goqu.I("ci.position").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build collection items query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list collection items: %w", err)
	}
	defer rows.Close()

	var out []model.Item
	for rows.Next() {
		it, err := s.scanItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan collection item row: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// CreateCollection creates a user-defined (owner=local) collection.
func (s *SQLite) CreateCollection(ctx context.Context, name string) (model.Collection, error) {
	id := model.NewCollectionID(model.OwnerLocal, ulid.Make().String())
	now := types.NewTime(time.Now().UTC())

	record := goqu.Record{
		"id":          string(id),
		"provider_id": model.OwnerLocal,
		"name":        name,
		"description": "",
		"icon":        "",
		"is_editable": 1,
		"owner":       model.OwnerLocal,
		"created_at":  now,
		"updated_at":  now,
	}

	query, _, err := s.goqu.Insert(s.tableCollections).Rows(record).ToSQL()
	if err != nil {
		return model.Collection{}, fmt.Errorf("build create collection query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return model.Collection{}, fmt.Errorf("create collection %q: %w", name, err)
	}

	return model.Collection{ID: id, Name: name, IsEditable: true, Owner: model.OwnerLocal}, nil
}

func (s *SQLite) AddToCollection(ctx context.Context, id model.CollectionID, itemID model.ItemID) error {
	var nextPos int
	query, _, err := s.goqu.From(s.tableCollectionItems).Select(goqu.COALESCE(goqu.MAX("position"), -1)).
		Where(goqu.I("collection_id").Eq(string(id))).ToSQL()
	if err != nil {
		return fmt.Errorf("build next position query: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, query).Scan(&nextPos); err != nil {
		return fmt.Errorf("compute next position for %q: %w", id, err)
	}
	nextPos++

	insQuery, _, err := s.goqu.Insert(s.tableCollectionItems).Rows(goqu.Record{
		"collection_id": string(id),
		"item_id":       string(itemID),
		"position":      nextPos,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build add to collection query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insQuery); err != nil {
		return fmt.Errorf("add item %q to collection %q: %w", itemID, id, err)
	}
	return nil
}

func (s *SQLite) RemoveFromCollection(ctx context.Context, id model.CollectionID, itemID model.ItemID) error {
	query, _, err := s.goqu.Delete(s.tableCollectionItems).
		Where(goqu.I("collection_id").Eq(string(id)), goqu.I("item_id").Eq(string(itemID))).ToSQL()
	if err != nil {
		return fmt.Errorf("build remove from collection query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("remove item %q from collection %q: %w", itemID, id, err)
	}
	return nil
}

// UpsertCollections replaces a provider's entire set of provider-owned
// collections and their ordered item membership in one transaction; unlike
// local collections these mirror the provider's upstream ordering verbatim.
func (s *SQLite) UpsertCollections(ctx context.Context, providerID string, collections []model.Collection, itemIDsByCollection map[model.CollectionID][]model.ItemID) error {
	tx, err := s.goqu.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert collections: %w", err)
	}
	defer tx.Rollback()

	now := types.NewTime(time.Now().UTC())

	for _, c := range collections {
		var count int
		existQuery, _, err := tx.From(s.tableCollections).Select(goqu.COUNT("id")).
			Where(goqu.I("id").Eq(string(c.ID))).ToSQL()
		if err != nil {
			return fmt.Errorf("build collection existence query: %w", err)
		}
		if err := tx.QueryRowContext(ctx, existQuery).Scan(&count); err != nil {
			return fmt.Errorf("check collection %q: %w", c.ID, err)
		}

		record := goqu.Record{
			"provider_id": providerID,
			"name":        c.Name,
			"description": c.Description,
			"icon":        c.Icon,
			"is_editable": boolToInt(false),
			"owner":       providerID,
			"updated_at":  now,
		}

		if count > 0 {
			q, _, err := tx.Update(s.tableCollections).Set(record).Where(goqu.I("id").Eq(string(c.ID))).ToSQL()
			if err != nil {
				return fmt.Errorf("build update collection query: %w", err)
			}
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("update collection %q: %w", c.ID, err)
			}
		} else {
			record["id"] = string(c.ID)
			record["created_at"] = now
			q, _, err := tx.Insert(s.tableCollections).Rows(record).ToSQL()
			if err != nil {
				return fmt.Errorf("build insert collection query: %w", err)
			}
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("insert collection %q: %w", c.ID, err)
			}
		}

		delQuery, _, err := tx.Delete(s.tableCollectionItems).Where(goqu.I("collection_id").Eq(string(c.ID))).ToSQL()
		if err != nil {
			return fmt.Errorf("build clear collection items query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, delQuery); err != nil {
			return fmt.Errorf("clear items for collection %q: %w", c.ID, err)
		}

		for pos, itemID := range itemIDsByCollection[c.ID] {
			insQuery, _, err := tx.Insert(s.tableCollectionItems).Rows(goqu.Record{
				"collection_id": string(c.ID),
				"item_id":       string(itemID),
				"position":      pos,
			}).ToSQL()
			if err != nil {
				return fmt.Errorf("build insert collection item query: %w", err)
			}
			if _, err := tx.ExecContext(ctx, insQuery); err != nil {
				return fmt.Errorf("insert collection item %q/%q: %w", c.ID, itemID, err)
			}
		}
	}

	return tx.Commit()
}
