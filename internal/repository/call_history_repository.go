package repository

import (
	"context"
	"time"

	"huntcall/internal/domain/call"
)

type callHistoryRepository struct {
	db  DBTX
	now func() time.Time
}

func NewCallHistoryRepository(db DBTX) CallHistoryRepository {
	return &callHistoryRepository{db: db, now: time.Now}
}

func (r *callHistoryRepository) Touch(ctx context.Context, hunt, callID string) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO call_histories (call, hunt, last_activity)
        VALUES ($1,$2,$3)
        ON CONFLICT (call) DO UPDATE SET last_activity = EXCLUDED.last_activity
    `, callID, hunt, r.now())
	return err
}

func (r *callHistoryRepository) Get(ctx context.Context, callID string) (call.CallHistory, error) {
	var h call.CallHistory
	err := r.db.QueryRowContext(ctx, `
        SELECT hunt, call, last_activity FROM call_histories WHERE call = $1
    `, callID).Scan(&h.Hunt, &h.Call, &h.LastActivity)
	if err != nil {
		return call.CallHistory{}, mapRowErr(err)
	}
	return h, nil
}

func (r *callHistoryRepository) ListByHunt(ctx context.Context, hunt string) ([]call.CallHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT hunt, call, last_activity FROM call_histories
        WHERE hunt = $1
        ORDER BY last_activity DESC
    `, hunt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []call.CallHistory
	for rows.Next() {
		var h call.CallHistory
		if err := rows.Scan(&h.Hunt, &h.Call, &h.LastActivity); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
