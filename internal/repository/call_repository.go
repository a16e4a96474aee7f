package repository

import (
	"context"
	"time"

	"huntcall/internal/domain/call"
)

type roomRepository struct {
	db DBTX
}

func NewRoomRepository(db DBTX) RoomRepository {
	return &roomRepository{db: db}
}

const roomColumns = `id, hunt, call, routed_server, created_by, created_at`

func scanRoom(row interface{ Scan(...interface{}) error }) (call.Room, error) {
	var r call.Room
	err := row.Scan(&r.ID, &r.Hunt, &r.Call, &r.RoutedServer, &r.CreatedBy, &r.CreatedAt)
	return r, err
}

func (r *roomRepository) Create(ctx context.Context, room *call.Room) error {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO rooms (`+roomColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6)
    `, room.ID, room.Hunt, room.Call, room.RoutedServer, room.CreatedBy, room.CreatedAt)
	return mapInsertErr(err)
}

func (r *roomRepository) GetByCall(ctx context.Context, callID string) (call.Room, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE call = $1`, callID)
	room, err := scanRoom(row)
	if err != nil {
		return call.Room{}, mapRowErr(err)
	}
	return room, nil
}

func (r *roomRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (r *roomRepository) DeleteIfRoutedTo(ctx context.Context, id string, servers []string) (bool, error) {
	if len(servers) == 0 {
		return false, nil
	}
	args := append([]interface{}{id}, stringArgs(servers)...)
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM rooms WHERE id = $1 AND routed_server IN (`+buildPlaceholders(2, len(servers))+`)`,
		args...)
	if err != nil {
		return false, err
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (r *roomRepository) ListRoutedTo(ctx context.Context, servers []string) ([]call.Room, error) {
	if len(servers) == 0 {
		return nil, nil
	}
	return r.list(ctx, `SELECT `+roomColumns+` FROM rooms WHERE routed_server IN (`+buildPlaceholders(1, len(servers))+`) ORDER BY created_at`,
		stringArgs(servers)...)
}

func (r *roomRepository) ListAll(ctx context.Context) ([]call.Room, error) {
	return r.list(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY created_at`)
}

func (r *roomRepository) list(ctx context.Context, query string, args ...interface{}) ([]call.Room, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []call.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

type routerRepository struct {
	db DBTX
}

func NewRouterRepository(db DBTX) RouterRepository {
	return &routerRepository{db: db}
}

const routerColumns = `id, call, created_server, created_at`

func (r *routerRepository) Create(ctx context.Context, router *call.Router) error {
	if router.CreatedAt.IsZero() {
		router.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO routers (`+routerColumns+`)
        VALUES ($1,$2,$3,$4)
    `, router.ID, router.Call, router.CreatedServer, router.CreatedAt)
	return mapInsertErr(err)
}

func (r *routerRepository) GetByCall(ctx context.Context, callID string) (call.Router, error) {
	var router call.Router
	err := r.db.QueryRowContext(ctx, `SELECT `+routerColumns+` FROM routers WHERE call = $1`, callID).
		Scan(&router.ID, &router.Call, &router.CreatedServer, &router.CreatedAt)
	if err != nil {
		return call.Router{}, mapRowErr(err)
	}
	return router, nil
}

func (r *routerRepository) ListByServer(ctx context.Context, serverID string) ([]call.Router, error) {
	return r.list(ctx, `SELECT `+routerColumns+` FROM routers WHERE created_server = $1`, serverID)
}

func (r *routerRepository) ListAll(ctx context.Context) ([]call.Router, error) {
	return r.list(ctx, `SELECT `+routerColumns+` FROM routers ORDER BY created_at`)
}

func (r *routerRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM routers WHERE id = $1`, id)
	return err
}

func (r *routerRepository) DeleteByCall(ctx context.Context, callID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM routers WHERE call = $1`, callID)
	return err
}

func (r *routerRepository) DeleteByServers(ctx context.Context, servers []string) (int64, error) {
	if len(servers) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM routers WHERE created_server IN (`+buildPlaceholders(1, len(servers))+`)`,
		stringArgs(servers)...)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}

func (r *routerRepository) list(ctx context.Context, query string, args ...interface{}) ([]call.Router, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routers []call.Router
	for rows.Next() {
		var router call.Router
		if err := rows.Scan(&router.ID, &router.Call, &router.CreatedServer, &router.CreatedAt); err != nil {
			return nil, err
		}
		routers = append(routers, router)
	}
	return routers, rows.Err()
}
