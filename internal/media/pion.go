package media

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"huntcall/pkg/logger"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

type PionConfig struct {
	ICEServers    []string
	UDPPortMin    int
	UDPPortMax    int
	GatherTimeout time.Duration
}

// PionEngine routes media with the pion ORTC objects: every transport is an
// ICE gatherer, ICE transport and DTLS transport triple, producers are RTP
// receivers and consumers are RTP senders fed by a forwarding loop.
type PionEngine struct {
	api           *webrtc.API
	iceServers    []webrtc.ICEServer
	gatherTimeout time.Duration
	log           *logger.Logger

	mu         sync.Mutex
	routers    map[string]*pionRouter
	transports map[string]*pionTransport
	producers  map[string]*pionProducer
	consumers  map[string]*pionConsumer
}

type pionRouter struct {
	id         string
	transports map[string]struct{}
}

type pionTransport struct {
	id       string
	router   string
	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	connectOnce sync.Once
	connected   chan struct{}
	connectErr  error

	producers map[string]struct{}
	consumers map[string]struct{}
}

type pionProducer struct {
	id        string
	transport string
	params    ProduceParameters
	receiver  *webrtc.RTPReceiver

	mu        sync.RWMutex
	consumers map[string]*pionConsumer
}

type pionConsumer struct {
	id        string
	transport string
	producer  string
	track     *webrtc.TrackLocalStaticRTP
	sender    *webrtc.RTPSender

	mu      sync.Mutex
	resumed bool
}

func NewPionEngine(cfg PionConfig, log *logger.Logger) (*PionEngine, error) {
	if log == nil {
		log = logger.NewNop()
	}
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if cfg.UDPPortMin > 0 && cfg.UDPPortMax >= cfg.UDPPortMin && cfg.UDPPortMax <= 65535 {
		if err := settingEngine.SetEphemeralUDPPortRange(uint16(cfg.UDPPortMin), uint16(cfg.UDPPortMax)); err != nil {
			log.Logger.Warn("failed setting UDP port range",
				zap.Int("min", cfg.UDPPortMin),
				zap.Int("max", cfg.UDPPortMax),
				zap.Error(err),
			)
		}
	}

	var iceServers []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		iceServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	gatherTimeout := cfg.GatherTimeout
	if gatherTimeout <= 0 {
		gatherTimeout = 5 * time.Second
	}

	return &PionEngine{
		api:           webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(settingEngine)),
		iceServers:    iceServers,
		gatherTimeout: gatherTimeout,
		log:           log,
		routers:       make(map[string]*pionRouter),
		transports:    make(map[string]*pionTransport),
		producers:     make(map[string]*pionProducer),
		consumers:     make(map[string]*pionConsumer),
	}, nil
}

func (e *PionEngine) CreateRouter(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.routers[id]; !ok {
		e.routers[id] = &pionRouter{id: id, transports: make(map[string]struct{})}
	}
	return nil
}

func (e *PionEngine) CloseRouter(id string) error {
	e.mu.Lock()
	r, ok := e.routers[id]
	if !ok {
		e.mu.Unlock()
		return ErrRouterNotFound
	}
	var stops []func()
	for tid := range r.transports {
		stops = append(stops, e.closeTransportLocked(tid)...)
	}
	delete(e.routers, id)
	e.mu.Unlock()

	runAll(stops)
	return nil
}

func (e *PionEngine) RouterIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sortedKeys(e.routers)
}

func (e *PionEngine) CreateTransport(ctx context.Context, routerID string) (TransportInfo, error) {
	e.mu.Lock()
	_, ok := e.routers[routerID]
	e.mu.Unlock()
	if !ok {
		return TransportInfo{}, ErrRouterNotFound
	}

	gatherer, err := e.api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: e.iceServers})
	if err != nil {
		return TransportInfo{}, fmt.Errorf("create ice gatherer: %w", err)
	}
	gathered := make(chan struct{})
	var once sync.Once
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(gathered) })
		}
	})
	if err := gatherer.Gather(); err != nil {
		_ = gatherer.Close()
		return TransportInfo{}, fmt.Errorf("gather candidates: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.gatherTimeout)
	defer cancel()
	select {
	case <-gathered:
	case <-waitCtx.Done():
		_ = gatherer.Close()
		return TransportInfo{}, fmt.Errorf("gather candidates: %w", waitCtx.Err())
	}

	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return TransportInfo{}, err
	}
	candidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		_ = gatherer.Close()
		return TransportInfo{}, err
	}

	ice := e.api.NewICETransport(gatherer)
	dtls, err := e.api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return TransportInfo{}, fmt.Errorf("create dtls transport: %w", err)
	}
	dtlsParams, err := dtls.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return TransportInfo{}, err
	}

	t := &pionTransport{
		id:        uuid.NewString(),
		router:    routerID,
		gatherer:  gatherer,
		ice:       ice,
		dtls:      dtls,
		connected: make(chan struct{}),
		producers: make(map[string]struct{}),
		consumers: make(map[string]struct{}),
	}

	info := TransportInfo{ID: t.id}
	if info.ICEParameters, err = encode(iceParams); err != nil {
		return TransportInfo{}, err
	}
	if info.ICECandidates, err = encode(candidates); err != nil {
		return TransportInfo{}, err
	}
	if info.DTLSParameters, err = encode(dtlsParams); err != nil {
		return TransportInfo{}, err
	}

	e.mu.Lock()
	r, ok := e.routers[routerID]
	if !ok {
		e.mu.Unlock()
		t.stop()
		return TransportInfo{}, ErrRouterNotFound
	}
	r.transports[t.id] = struct{}{}
	e.transports[t.id] = t
	e.mu.Unlock()

	return info, nil
}

// ConnectTransport starts ICE in the controlled role followed by DTLS. The
// handshake completes in the background; Produce reports
// ErrTransportNotConnected until it does.
func (e *PionEngine) ConnectTransport(_ context.Context, transportID, connectParameters string) error {
	var params ConnectParameters
	if err := decode(connectParameters, &params); err != nil {
		return err
	}

	e.mu.Lock()
	t, ok := e.transports[transportID]
	e.mu.Unlock()
	if !ok {
		return ErrTransportNotFound
	}

	t.connectOnce.Do(func() {
		go func() {
			role := webrtc.ICERoleControlled
			err := t.ice.SetRemoteCandidates(params.ICECandidates)
			if err == nil {
				err = t.ice.Start(nil, params.ICEParameters, &role)
			}
			if err == nil {
				err = t.dtls.Start(params.DTLSParameters)
			}
			if err != nil {
				e.log.Logger.Warn("transport connect failed",
					zap.String("transport", t.id),
					zap.Error(err),
				)
			}
			t.connectErr = err
			close(t.connected)
		}()
	})
	return nil
}

func (t *pionTransport) ready() error {
	select {
	case <-t.connected:
		if t.connectErr != nil {
			return fmt.Errorf("%w: %v", ErrTransportNotConnected, t.connectErr)
		}
		return nil
	default:
		return ErrTransportNotConnected
	}
}

func (t *pionTransport) stop() {
	_ = t.dtls.Stop()
	_ = t.ice.Stop()
	_ = t.gatherer.Close()
}

func (e *PionEngine) CloseTransport(id string) error {
	e.mu.Lock()
	if _, ok := e.transports[id]; !ok {
		e.mu.Unlock()
		return ErrTransportNotFound
	}
	stops := e.closeTransportLocked(id)
	e.mu.Unlock()

	runAll(stops)
	return nil
}

func (e *PionEngine) closeTransportLocked(id string) []func() {
	t, ok := e.transports[id]
	if !ok {
		return nil
	}
	var stops []func()
	for pid := range t.producers {
		stops = append(stops, e.closeProducerLocked(pid)...)
	}
	for cid := range t.consumers {
		stops = append(stops, e.closeConsumerLocked(cid)...)
	}
	delete(e.transports, id)
	if r, ok := e.routers[t.router]; ok {
		delete(r.transports, id)
	}
	return append(stops, t.stop)
}

func (e *PionEngine) TransportIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sortedKeys(e.transports)
}

func (e *PionEngine) Produce(_ context.Context, transportID, kind, rtpParameters string) (string, error) {
	var params ProduceParameters
	if err := decode(rtpParameters, &params); err != nil {
		return "", err
	}
	if err := params.validate(); err != nil {
		return "", err
	}
	codecType := webrtc.NewRTPCodecType(kind)
	if codecType == 0 {
		return "", fmt.Errorf("%w: kind %q", ErrInvalidParameters, kind)
	}

	e.mu.Lock()
	t, ok := e.transports[transportID]
	e.mu.Unlock()
	if !ok {
		return "", ErrTransportNotFound
	}
	if err := t.ready(); err != nil {
		return "", err
	}

	receiver, err := e.api.NewRTPReceiver(codecType, t.dtls)
	if err != nil {
		return "", fmt.Errorf("create rtp receiver: %w", err)
	}
	err = receiver.Receive(webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC:        webrtc.SSRC(params.SSRC),
				PayloadType: webrtc.PayloadType(params.PayloadType),
			},
		}},
	})
	if err != nil {
		_ = receiver.Stop()
		return "", fmt.Errorf("receive rtp: %w", err)
	}

	p := &pionProducer{
		id:        uuid.NewString(),
		transport: transportID,
		params:    params,
		receiver:  receiver,
		consumers: make(map[string]*pionConsumer),
	}

	e.mu.Lock()
	if _, ok := e.transports[transportID]; !ok {
		e.mu.Unlock()
		_ = receiver.Stop()
		return "", ErrTransportNotFound
	}
	t.producers[p.id] = struct{}{}
	e.producers[p.id] = p
	e.mu.Unlock()

	go p.forward()
	return p.id, nil
}

// forward copies every inbound packet to the producer's consumers until the
// receiver is stopped. Consumers that were never resumed have no bound
// sender, so their writes are dropped.
func (p *pionProducer) forward() {
	track := p.receiver.Track()
	if track == nil {
		return
	}
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		p.mu.RLock()
		for _, c := range p.consumers {
			_ = c.track.WriteRTP(pkt)
		}
		p.mu.RUnlock()
	}
}

func (e *PionEngine) CloseProducer(id string) error {
	e.mu.Lock()
	if _, ok := e.producers[id]; !ok {
		e.mu.Unlock()
		return ErrProducerNotFound
	}
	stops := e.closeProducerLocked(id)
	e.mu.Unlock()

	runAll(stops)
	return nil
}

func (e *PionEngine) closeProducerLocked(id string) []func() {
	p, ok := e.producers[id]
	if !ok {
		return nil
	}
	p.mu.RLock()
	ids := make([]string, 0, len(p.consumers))
	for cid := range p.consumers {
		ids = append(ids, cid)
	}
	p.mu.RUnlock()

	var stops []func()
	for _, cid := range ids {
		stops = append(stops, e.closeConsumerLocked(cid)...)
	}
	delete(e.producers, id)
	if t, ok := e.transports[p.transport]; ok {
		delete(t.producers, id)
	}
	return append(stops, func() { _ = p.receiver.Stop() })
}

func (e *PionEngine) ProducerIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sortedKeys(e.producers)
}

// Consume creates a paused consumer of producerID on transportID. It starts
// sending once resumed.
func (e *PionEngine) Consume(_ context.Context, transportID, producerID, _ string) (ConsumerInfo, error) {
	e.mu.Lock()
	t, ok := e.transports[transportID]
	p, pok := e.producers[producerID]
	e.mu.Unlock()
	if !ok {
		return ConsumerInfo{}, ErrTransportNotFound
	}
	if !pok {
		return ConsumerInfo{}, ErrProducerNotFound
	}

	id := uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticRTP(p.params.codec(), id, p.id)
	if err != nil {
		return ConsumerInfo{}, fmt.Errorf("create local track: %w", err)
	}
	sender, err := e.api.NewRTPSender(track, t.dtls)
	if err != nil {
		return ConsumerInfo{}, fmt.Errorf("create rtp sender: %w", err)
	}

	sendParams := sender.GetParameters()
	out := ConsumeParameters{
		MimeType:    p.params.MimeType,
		ClockRate:   p.params.ClockRate,
		Channels:    p.params.Channels,
		SDPFmtpLine: p.params.SDPFmtpLine,
		PayloadType: p.params.PayloadType,
		ProducerID:  p.id,
	}
	if len(sendParams.Encodings) > 0 {
		out.SSRC = uint32(sendParams.Encodings[0].SSRC)
	}
	for _, codec := range sendParams.Codecs {
		if strings.EqualFold(codec.MimeType, p.params.MimeType) {
			out.PayloadType = uint8(codec.PayloadType)
			break
		}
	}
	rtpParams, err := encode(out)
	if err != nil {
		_ = sender.Stop()
		return ConsumerInfo{}, err
	}

	c := &pionConsumer{id: id, transport: transportID, producer: producerID, track: track, sender: sender}

	e.mu.Lock()
	t, ok = e.transports[transportID]
	p, pok = e.producers[producerID]
	if !ok || !pok {
		e.mu.Unlock()
		_ = sender.Stop()
		return ConsumerInfo{}, ErrProducerNotFound
	}
	t.consumers[id] = struct{}{}
	e.consumers[id] = c
	p.mu.Lock()
	p.consumers[id] = c
	p.mu.Unlock()
	e.mu.Unlock()

	return ConsumerInfo{ID: id, Kind: sender.Track().Kind().String(), RTPParameters: rtpParams}, nil
}

func (e *PionEngine) ResumeConsumer(id string) error {
	e.mu.Lock()
	c, ok := e.consumers[id]
	var t *pionTransport
	if ok {
		t = e.transports[c.transport]
	}
	e.mu.Unlock()
	if !ok || t == nil {
		return ErrConsumerNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resumed {
		return nil
	}
	if err := t.ready(); err != nil {
		return err
	}
	if err := c.sender.Send(c.sender.GetParameters()); err != nil {
		return fmt.Errorf("start rtp sender: %w", err)
	}
	c.resumed = true

	// drain RTCP so interceptors keep running
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := c.sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (e *PionEngine) CloseConsumer(id string) error {
	e.mu.Lock()
	if _, ok := e.consumers[id]; !ok {
		e.mu.Unlock()
		return ErrConsumerNotFound
	}
	stops := e.closeConsumerLocked(id)
	e.mu.Unlock()

	runAll(stops)
	return nil
}

func (e *PionEngine) closeConsumerLocked(id string) []func() {
	c, ok := e.consumers[id]
	if !ok {
		return nil
	}
	delete(e.consumers, id)
	if t, ok := e.transports[c.transport]; ok {
		delete(t.consumers, id)
	}
	if p, ok := e.producers[c.producer]; ok {
		p.mu.Lock()
		delete(p.consumers, id)
		p.mu.Unlock()
	}
	return []func(){func() { _ = c.sender.Stop() }}
}

func (e *PionEngine) ConsumerIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sortedKeys(e.consumers)
}

func (e *PionEngine) Close() error {
	for _, id := range e.RouterIDs() {
		_ = e.CloseRouter(id)
	}
	return nil
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
