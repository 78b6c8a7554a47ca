package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/scryforge/hub/internal/model"
	"github.com/worldline-go/types"
)

var syncStateColumns = []any{
	"provider_id", "is_syncing", "last_sync", "last_success", "last_error",
	"items_synced", "next_sync", "consecutive_fail", "healthy",
}

func scanSyncState(scan func(dest ...any) error) (model.ProviderSyncState, error) {
	var (
		providerID      string
		isSyncing       bool
		lastSync        types.Null[types.Time]
		lastSuccess     types.Null[types.Time]
		lastError       string
		itemsSynced     int64
		nextSync        types.Null[types.Time]
		consecutiveFail int
		healthy         bool
	)
	if err := scan(&providerID, &isSyncing, &lastSync, &lastSuccess, &lastError, &itemsSynced, &nextSync, &consecutiveFail, &healthy); err != nil {
		return model.ProviderSyncState{}, err
	}
	return model.ProviderSyncState{
		ProviderID:      providerID,
		IsSyncing:       isSyncing,
		LastSync:        lastSync,
		LastSuccess:     lastSuccess,
		LastError:       lastError,
		ItemsSynced:     itemsSynced,
		NextSync:        nextSync,
		ConsecutiveFail: consecutiveFail,
		Healthy:         healthy,
	}, nil
}

func (p *Postgres) GetSyncState(ctx context.Context, providerID string) (*model.ProviderSyncState, error) {
	query, _, err := p.goqu.From(p.tableSyncState).Select(syncStateColumns...).
		Where(goqu.I("provider_id").Eq(providerID)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get sync_state query: %w", err)
	}

	st, err := scanSyncState(p.db.QueryRowContext(ctx, query).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync_state %q: %w", providerID, err)
	}
	return &st, nil
}

func (p *Postgres) ListSyncStates(ctx context.Context) (map[string]model.ProviderSyncState, error) {
	query, _, err := p.goqu.From(p.tableSyncState).Select(syncStateColumns...).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list sync_state query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sync_state: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.ProviderSyncState)
	for rows.Next() {
		st, err := scanSyncState(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan sync_state row: %w", err)
		}
		out[st.ProviderID] = st
	}
	return out, rows.Err()
}

// SetSyncState upserts the scheduler's per-provider snapshot.
func (p *Postgres) SetSyncState(ctx context.Context, state model.ProviderSyncState) error {
	now := types.NewTime(time.Now().UTC())

	record := goqu.Record{
		"provider_id":      state.ProviderID,
		"is_syncing":       state.IsSyncing,
		"last_sync":        state.LastSync,
		"last_success":     state.LastSuccess,
		"last_error":       state.LastError,
		"items_synced":     state.ItemsSynced,
		"next_sync":        state.NextSync,
		"consecutive_fail": state.ConsecutiveFail,
		"healthy":          state.Healthy,
		"updated_at":       now,
	}

	var count int
	existQuery, _, err := p.goqu.From(p.tableSyncState).Select(goqu.COUNT("provider_id")).
		Where(goqu.I("provider_id").Eq(state.ProviderID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build sync_state existence query: %w", err)
	}
	if err := p.db.QueryRowContext(ctx, existQuery).Scan(&count); err != nil {
		return fmt.Errorf("check sync_state %q: %w", state.ProviderID, err)
	}

	if count > 0 {
		delete(record, "provider_id")
		q, _, err := p.goqu.Update(p.tableSyncState).Set(record).
			Where(goqu.I("provider_id").Eq(state.ProviderID)).ToSQL()
		if err != nil {
			return fmt.Errorf("build update sync_state query: %w", err)
		}
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("update sync_state %q: %w", state.ProviderID, err)
		}
		return nil
	}

	q, _, err := p.goqu.Insert(p.tableSyncState).Rows(record).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert sync_state query: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("insert sync_state %q: %w", state.ProviderID, err)
	}
	return nil
}
