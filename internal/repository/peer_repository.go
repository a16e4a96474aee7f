package repository

import (
	"context"
	"time"

	"huntcall/internal/domain/call"
	huntcall_errors "huntcall/pkg/errors"
)

type peerRepository struct {
	db DBTX
}

func NewPeerRepository(db DBTX) PeerRepository {
	return &peerRepository{db: db}
}

const peerColumns = `id, hunt, call, tab, created_server, created_by, muted, deafened, initial_peer_state, created_at`

func scanPeer(row interface{ Scan(...interface{}) error }) (call.Peer, error) {
	var p call.Peer
	var state string
	err := row.Scan(&p.ID, &p.Hunt, &p.Call, &p.Tab, &p.CreatedServer, &p.CreatedBy,
		&p.Muted, &p.Deafened, &state, &p.CreatedAt)
	p.InitialPeerState = call.PeerState(state)
	return p, err
}

func (r *peerRepository) Create(ctx context.Context, p *call.Peer) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO peers (`+peerColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    `,
		p.ID,
		p.Hunt,
		p.Call,
		p.Tab,
		p.CreatedServer,
		p.CreatedBy,
		p.Muted,
		p.Deafened,
		string(p.InitialPeerState),
		p.CreatedAt,
	)
	return mapInsertErr(err)
}

func (r *peerRepository) GetByID(ctx context.Context, id string) (call.Peer, error) {
	p, err := scanPeer(r.db.QueryRowContext(ctx, `SELECT `+peerColumns+` FROM peers WHERE id = $1`, id))
	if err != nil {
		return call.Peer{}, mapRowErr(err)
	}
	return p, nil
}

func (r *peerRepository) ListByCall(ctx context.Context, callID string) ([]call.Peer, error) {
	return r.list(ctx, `SELECT `+peerColumns+` FROM peers WHERE call = $1 ORDER BY created_at`, callID)
}

func (r *peerRepository) ListByTab(ctx context.Context, hunt, callID, tab string) ([]call.Peer, error) {
	return r.list(ctx, `
        SELECT `+peerColumns+` FROM peers
        WHERE hunt = $1 AND call = $2 AND tab = $3
        ORDER BY created_at
    `, hunt, callID, tab)
}

func (r *peerRepository) ListAll(ctx context.Context) ([]call.Peer, error) {
	return r.list(ctx, `SELECT `+peerColumns+` FROM peers ORDER BY created_at`)
}

func (r *peerRepository) CountByCall(ctx context.Context, callID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM peers WHERE call = $1`, callID).Scan(&n)
	return n, err
}

func (r *peerRepository) UpdateState(ctx context.Context, id string, muted, deafened bool) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE peers SET muted = $1, deafened = $2
        WHERE id = $3
    `, muted, deafened, id)
	if err != nil {
		return err
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return huntcall_errors.ErrNotFound
	}
	return nil
}

func (r *peerRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM peers WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (r *peerRepository) DeleteByServers(ctx context.Context, servers []string) ([]call.Peer, error) {
	if len(servers) == 0 {
		return nil, nil
	}
	return r.list(ctx,
		`DELETE FROM peers WHERE created_server IN (`+buildPlaceholders(1, len(servers))+`) RETURNING `+peerColumns,
		stringArgs(servers)...)
}

func (r *peerRepository) list(ctx context.Context, query string, args ...interface{}) ([]call.Peer, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []call.Peer
	for rows.Next() {
		p, err := scanPeer(rows)
		if err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}
