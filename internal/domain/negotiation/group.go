package negotiation

// Group is every record sharing one TransportRequest id.
type Group struct {
	Request         TransportRequest `json:"request"`
	Transports      []Transport      `json:"transports"`
	ConnectRequests []ConnectRequest `json:"connect_requests"`
	ConnectAcks     []ConnectAck     `json:"connect_acks"`
	ProducerClients []ProducerClient `json:"producer_clients"`
	ProducerServers []ProducerServer `json:"producer_servers"`
	Consumers       []Consumer       `json:"consumers"`
	ConsumerAcks    []ConsumerAck    `json:"consumer_acks"`
}

func (g Group) Transport(dir Direction) (Transport, bool) {
	for _, t := range g.Transports {
		if t.Direction == dir {
			return t, true
		}
	}
	return Transport{}, false
}

func (g Group) TransportByID(id string) (Transport, bool) {
	for _, t := range g.Transports {
		if t.ID == id {
			return t, true
		}
	}
	return Transport{}, false
}

func (g Group) ConnectRequestFor(transport string) (ConnectRequest, bool) {
	for _, c := range g.ConnectRequests {
		if c.Transport == transport {
			return c, true
		}
	}
	return ConnectRequest{}, false
}

func (g Group) Connected(transport string) bool {
	for _, a := range g.ConnectAcks {
		if a.Transport == transport {
			return true
		}
	}
	return false
}

func (g Group) ProducerServerFor(producerClient string) (ProducerServer, bool) {
	for _, p := range g.ProducerServers {
		if p.ProducerClient == producerClient {
			return p, true
		}
	}
	return ProducerServer{}, false
}

func (g Group) ConsumerFor(transport, producerServer string) (Consumer, bool) {
	for _, c := range g.Consumers {
		if c.Transport == transport && c.ProducerServer == producerServer {
			return c, true
		}
	}
	return Consumer{}, false
}

func (g Group) AckFor(consumer string) (ConsumerAck, bool) {
	for _, a := range g.ConsumerAcks {
		if a.Consumer == consumer {
			return a, true
		}
	}
	return ConsumerAck{}, false
}

// Ready reports whether both transports exist and are connected.
func (g Group) Ready() bool {
	send, ok := g.Transport(DirectionSend)
	if !ok || !g.Connected(send.ID) {
		return false
	}
	recv, ok := g.Transport(DirectionRecv)
	return ok && g.Connected(recv.ID)
}
