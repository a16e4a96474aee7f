package repository

import (
	"context"
	"time"

	"huntcall/internal/domain/negotiation"
)

type negotiationRepository struct {
	db DBTX
}

func NewNegotiationRepository(db DBTX) NegotiationRepository {
	return &negotiationRepository{db: db}
}

type scanner interface {
	Scan(...interface{}) error
}

const (
	transportRequestColumns = `id, created_server, routed_server, call, peer, created_by, rtp_capabilities, created_at`
	transportColumns        = `id, transport_request, created_server, call, peer, direction, transport_id, ice_parameters, ice_candidates, dtls_parameters, created_at`
	connectRequestColumns   = `id, transport_request, created_server, routed_server, call, peer, transport, connect_parameters, created_at`
	connectAckColumns       = `id, transport_request, created_server, call, peer, transport, created_at`
	producerClientColumns   = `id, transport_request, created_server, routed_server, call, peer, transport, track_id, kind, rtp_parameters, paused, created_at`
	producerServerColumns   = `id, transport_request, created_server, call, peer, transport, producer_client, track_id, kind, producer_id, created_at`
	consumerColumns         = `id, transport_request, created_server, call, peer, transport, producer_server, producer_peer, producer_id, consumer_id, kind, rtp_parameters, paused, created_at`
	consumerAckColumns      = `id, transport_request, created_server, routed_server, call, peer, consumer, paused, created_at`
)

// groupTables are the child tables of a correlation group, deleted child first.
var groupTables = []string{
	"consumer_acks",
	"consumers",
	"producer_servers",
	"producer_clients",
	"connect_acks",
	"connect_requests",
	"transports",
}

func stamp(t *time.Time) time.Time {
	if t.IsZero() {
		*t = time.Now()
	}
	return *t
}

func scanTransportRequest(row scanner) (negotiation.TransportRequest, error) {
	var tr negotiation.TransportRequest
	err := row.Scan(&tr.ID, &tr.CreatedServer, &tr.RoutedServer, &tr.Call, &tr.Peer, &tr.CreatedBy, &tr.RTPCapabilities, &tr.CreatedAt)
	return tr, err
}

func scanTransport(row scanner) (negotiation.Transport, error) {
	var t negotiation.Transport
	var dir string
	err := row.Scan(&t.ID, &t.TransportRequest, &t.CreatedServer, &t.Call, &t.Peer, &dir, &t.TransportID,
		&t.ICEParameters, &t.ICECandidates, &t.DTLSParameters, &t.CreatedAt)
	t.Direction = negotiation.Direction(dir)
	return t, err
}

func scanConnectRequest(row scanner) (negotiation.ConnectRequest, error) {
	var c negotiation.ConnectRequest
	err := row.Scan(&c.ID, &c.TransportRequest, &c.CreatedServer, &c.RoutedServer, &c.Call, &c.Peer, &c.Transport, &c.ConnectParameters, &c.CreatedAt)
	return c, err
}

func scanConnectAck(row scanner) (negotiation.ConnectAck, error) {
	var a negotiation.ConnectAck
	err := row.Scan(&a.ID, &a.TransportRequest, &a.CreatedServer, &a.Call, &a.Peer, &a.Transport, &a.CreatedAt)
	return a, err
}

func scanProducerClient(row scanner) (negotiation.ProducerClient, error) {
	var p negotiation.ProducerClient
	var kind string
	err := row.Scan(&p.ID, &p.TransportRequest, &p.CreatedServer, &p.RoutedServer, &p.Call, &p.Peer, &p.Transport,
		&p.TrackID, &kind, &p.RTPParameters, &p.Paused, &p.CreatedAt)
	p.Kind = negotiation.Kind(kind)
	return p, err
}

func scanProducerServer(row scanner) (negotiation.ProducerServer, error) {
	var p negotiation.ProducerServer
	var kind string
	err := row.Scan(&p.ID, &p.TransportRequest, &p.CreatedServer, &p.Call, &p.Peer, &p.Transport, &p.ProducerClient,
		&p.TrackID, &kind, &p.ProducerID, &p.CreatedAt)
	p.Kind = negotiation.Kind(kind)
	return p, err
}

func scanConsumer(row scanner) (negotiation.Consumer, error) {
	var c negotiation.Consumer
	var kind string
	err := row.Scan(&c.ID, &c.TransportRequest, &c.CreatedServer, &c.Call, &c.Peer, &c.Transport, &c.ProducerServer,
		&c.ProducerPeer, &c.ProducerID, &c.ConsumerID, &kind, &c.RTPParameters, &c.Paused, &c.CreatedAt)
	c.Kind = negotiation.Kind(kind)
	return c, err
}

func scanConsumerAck(row scanner) (negotiation.ConsumerAck, error) {
	var a negotiation.ConsumerAck
	err := row.Scan(&a.ID, &a.TransportRequest, &a.CreatedServer, &a.RoutedServer, &a.Call, &a.Peer, &a.Consumer, &a.Paused, &a.CreatedAt)
	return a, err
}

func (r *negotiationRepository) CreateTransportRequest(ctx context.Context, tr *negotiation.TransportRequest) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO transport_requests (`+transportRequestColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    `, tr.ID, tr.CreatedServer, tr.RoutedServer, tr.Call, tr.Peer, tr.CreatedBy, tr.RTPCapabilities, stamp(&tr.CreatedAt))
	return mapInsertErr(err)
}

func (r *negotiationRepository) GetTransportRequest(ctx context.Context, id string) (negotiation.TransportRequest, error) {
	tr, err := scanTransportRequest(r.db.QueryRowContext(ctx,
		`SELECT `+transportRequestColumns+` FROM transport_requests WHERE id = $1`, id))
	if err != nil {
		return negotiation.TransportRequest{}, mapRowErr(err)
	}
	return tr, nil
}

func (r *negotiationRepository) ListTransportRequestsByPeer(ctx context.Context, peerID string) ([]negotiation.TransportRequest, error) {
	return r.listTransportRequests(ctx,
		`SELECT `+transportRequestColumns+` FROM transport_requests WHERE peer = $1 ORDER BY created_at`, peerID)
}

func (r *negotiationRepository) ListTransportRequests(ctx context.Context) ([]negotiation.TransportRequest, error) {
	return r.listTransportRequests(ctx, `SELECT `+transportRequestColumns+` FROM transport_requests ORDER BY created_at`)
}

func (r *negotiationRepository) listTransportRequests(ctx context.Context, query string, args ...interface{}) ([]negotiation.TransportRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []negotiation.TransportRequest
	for rows.Next() {
		tr, err := scanTransportRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (r *negotiationRepository) CreateTransport(ctx context.Context, t *negotiation.Transport) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO transports (`+transportColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    `, t.ID, t.TransportRequest, t.CreatedServer, t.Call, t.Peer, string(t.Direction), t.TransportID,
		t.ICEParameters, t.ICECandidates, t.DTLSParameters, stamp(&t.CreatedAt))
	return mapInsertErr(err)
}

func (r *negotiationRepository) GetTransport(ctx context.Context, id string) (negotiation.Transport, error) {
	t, err := scanTransport(r.db.QueryRowContext(ctx, `SELECT `+transportColumns+` FROM transports WHERE id = $1`, id))
	if err != nil {
		return negotiation.Transport{}, mapRowErr(err)
	}
	return t, nil
}

func (r *negotiationRepository) CreateConnectRequest(ctx context.Context, c *negotiation.ConnectRequest) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO connect_requests (`+connectRequestColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    `, c.ID, c.TransportRequest, c.CreatedServer, c.RoutedServer, c.Call, c.Peer, c.Transport, c.ConnectParameters, stamp(&c.CreatedAt))
	return mapInsertErr(err)
}

func (r *negotiationRepository) CreateConnectAck(ctx context.Context, a *negotiation.ConnectAck) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO connect_acks (`+connectAckColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
    `, a.ID, a.TransportRequest, a.CreatedServer, a.Call, a.Peer, a.Transport, stamp(&a.CreatedAt))
	return mapInsertErr(err)
}

func (r *negotiationRepository) CreateProducerClient(ctx context.Context, p *negotiation.ProducerClient) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO producer_clients (`+producerClientColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
    `, p.ID, p.TransportRequest, p.CreatedServer, p.RoutedServer, p.Call, p.Peer, p.Transport,
		p.TrackID, string(p.Kind), p.RTPParameters, p.Paused, stamp(&p.CreatedAt))
	return mapInsertErr(err)
}

func (r *negotiationRepository) GetProducerClient(ctx context.Context, id string) (negotiation.ProducerClient, error) {
	p, err := scanProducerClient(r.db.QueryRowContext(ctx,
		`SELECT `+producerClientColumns+` FROM producer_clients WHERE id = $1`, id))
	if err != nil {
		return negotiation.ProducerClient{}, mapRowErr(err)
	}
	return p, nil
}

func (r *negotiationRepository) DeleteProducerClient(ctx context.Context, id string) error {
	return WithTx(ctx, r.db, func(tx DBTX) error {
		stmts := []string{
			`DELETE FROM consumer_acks WHERE consumer IN (
                SELECT c.id FROM consumers c JOIN producer_servers p ON c.producer_server = p.id
                WHERE p.producer_client = $1)`,
			`DELETE FROM consumers WHERE producer_server IN (
                SELECT id FROM producer_servers WHERE producer_client = $1)`,
			`DELETE FROM producer_servers WHERE producer_client = $1`,
			`DELETE FROM producer_clients WHERE id = $1`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *negotiationRepository) CreateProducerServer(ctx context.Context, p *negotiation.ProducerServer) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO producer_servers (`+producerServerColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    `, p.ID, p.TransportRequest, p.CreatedServer, p.Call, p.Peer, p.Transport, p.ProducerClient,
		p.TrackID, string(p.Kind), p.ProducerID, stamp(&p.CreatedAt))
	return mapInsertErr(err)
}

func (r *negotiationRepository) ListProducerServersByCall(ctx context.Context, callID string) ([]negotiation.ProducerServer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+producerServerColumns+` FROM producer_servers WHERE call = $1 ORDER BY created_at`, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []negotiation.ProducerServer
	for rows.Next() {
		p, err := scanProducerServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *negotiationRepository) CreateConsumer(ctx context.Context, c *negotiation.Consumer) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO consumers (`+consumerColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
    `, c.ID, c.TransportRequest, c.CreatedServer, c.Call, c.Peer, c.Transport, c.ProducerServer,
		c.ProducerPeer, c.ProducerID, c.ConsumerID, string(c.Kind), c.RTPParameters, c.Paused, stamp(&c.CreatedAt))
	return mapInsertErr(err)
}

func (r *negotiationRepository) GetConsumer(ctx context.Context, id string) (negotiation.Consumer, error) {
	c, err := scanConsumer(r.db.QueryRowContext(ctx, `SELECT `+consumerColumns+` FROM consumers WHERE id = $1`, id))
	if err != nil {
		return negotiation.Consumer{}, mapRowErr(err)
	}
	return c, nil
}

func (r *negotiationRepository) CreateConsumerAck(ctx context.Context, a *negotiation.ConsumerAck) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO consumer_acks (`+consumerAckColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    `, a.ID, a.TransportRequest, a.CreatedServer, a.RoutedServer, a.Call, a.Peer, a.Consumer, a.Paused, stamp(&a.CreatedAt))
	return mapInsertErr(err)
}

func (r *negotiationRepository) LoadGroup(ctx context.Context, transportRequestID string) (negotiation.Group, error) {
	tr, err := r.GetTransportRequest(ctx, transportRequestID)
	if err != nil {
		return negotiation.Group{}, err
	}
	groups, err := r.loadGroups(ctx, []negotiation.TransportRequest{tr})
	if err != nil {
		return negotiation.Group{}, err
	}
	return groups[0], nil
}

func (r *negotiationRepository) LoadGroupsRoutedTo(ctx context.Context, serverID string) ([]negotiation.Group, error) {
	trs, err := r.listTransportRequests(ctx,
		`SELECT `+transportRequestColumns+` FROM transport_requests WHERE routed_server = $1 ORDER BY created_at`, serverID)
	if err != nil {
		return nil, err
	}
	return r.loadGroups(ctx, trs)
}

// loadGroups fetches the children of trs with one query per table.
func (r *negotiationRepository) loadGroups(ctx context.Context, trs []negotiation.TransportRequest) ([]negotiation.Group, error) {
	if len(trs) == 0 {
		return nil, nil
	}
	index := make(map[string]int, len(trs))
	groups := make([]negotiation.Group, len(trs))
	ids := make([]string, len(trs))
	for i, tr := range trs {
		groups[i] = negotiation.Group{Request: tr}
		index[tr.ID] = i
		ids[i] = tr.ID
	}
	in := buildPlaceholders(1, len(ids))
	args := stringArgs(ids)

	each := func(table, columns string, fn func(rows scanner) error) error {
		rows, err := r.db.QueryContext(ctx,
			`SELECT `+columns+` FROM `+table+` WHERE transport_request IN (`+in+`) ORDER BY created_at`, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			if err := fn(rows); err != nil {
				return err
			}
		}
		return rows.Err()
	}

	steps := []struct {
		table   string
		columns string
		fn      func(rows scanner) error
	}{
		{"transports", transportColumns, func(rows scanner) error {
			t, err := scanTransport(rows)
			if err == nil {
				g := &groups[index[t.TransportRequest]]
				g.Transports = append(g.Transports, t)
			}
			return err
		}},
		{"connect_requests", connectRequestColumns, func(rows scanner) error {
			c, err := scanConnectRequest(rows)
			if err == nil {
				g := &groups[index[c.TransportRequest]]
				g.ConnectRequests = append(g.ConnectRequests, c)
			}
			return err
		}},
		{"connect_acks", connectAckColumns, func(rows scanner) error {
			a, err := scanConnectAck(rows)
			if err == nil {
				g := &groups[index[a.TransportRequest]]
				g.ConnectAcks = append(g.ConnectAcks, a)
			}
			return err
		}},
		{"producer_clients", producerClientColumns, func(rows scanner) error {
			p, err := scanProducerClient(rows)
			if err == nil {
				g := &groups[index[p.TransportRequest]]
				g.ProducerClients = append(g.ProducerClients, p)
			}
			return err
		}},
		{"producer_servers", producerServerColumns, func(rows scanner) error {
			p, err := scanProducerServer(rows)
			if err == nil {
				g := &groups[index[p.TransportRequest]]
				g.ProducerServers = append(g.ProducerServers, p)
			}
			return err
		}},
		{"consumers", consumerColumns, func(rows scanner) error {
			c, err := scanConsumer(rows)
			if err == nil {
				g := &groups[index[c.TransportRequest]]
				g.Consumers = append(g.Consumers, c)
			}
			return err
		}},
		{"consumer_acks", consumerAckColumns, func(rows scanner) error {
			a, err := scanConsumerAck(rows)
			if err == nil {
				g := &groups[index[a.TransportRequest]]
				g.ConsumerAcks = append(g.ConsumerAcks, a)
			}
			return err
		}},
	}
	for _, step := range steps {
		if err := each(step.table, step.columns, step.fn); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func (r *negotiationRepository) DeleteGroup(ctx context.Context, transportRequestID string) error {
	return WithTx(ctx, r.db, func(tx DBTX) error {
		return deleteGroup(ctx, tx, transportRequestID)
	})
}

func deleteGroup(ctx context.Context, tx DBTX, id string) error {
	// consumers in other groups reading from this group's producers
	stmts := []string{
		`DELETE FROM consumer_acks WHERE consumer IN (
            SELECT c.id FROM consumers c JOIN producer_servers p ON c.producer_server = p.id
            WHERE p.transport_request = $1)`,
		`DELETE FROM consumers WHERE producer_server IN (
            SELECT id FROM producer_servers WHERE transport_request = $1)`,
	}
	for _, table := range groupTables {
		stmts = append(stmts, `DELETE FROM `+table+` WHERE transport_request = $1`)
	}
	stmts = append(stmts, `DELETE FROM transport_requests WHERE id = $1`)

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *negotiationRepository) DeleteGroupsByServers(ctx context.Context, servers []string) ([]string, error) {
	if len(servers) == 0 {
		return nil, nil
	}
	in := buildPlaceholders(1, len(servers))
	trs, err := r.listTransportRequests(ctx,
		`SELECT `+transportRequestColumns+` FROM transport_requests
         WHERE created_server IN (`+in+`) OR routed_server IN (`+in+`)`,
		stringArgs(servers)...)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(trs))
	err = WithTx(ctx, r.db, func(tx DBTX) error {
		for _, tr := range trs {
			if err := deleteGroup(ctx, tx, tr.ID); err != nil {
				return err
			}
			ids = append(ids, tr.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
