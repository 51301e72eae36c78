package node

import (
	"context"
	"sync"
	"time"

	"masterclock/clock/protocol"
	"masterclock/datamodel/cycle"

	log "github.com/sirupsen/logrus"
)

// reply is a time_report delivered to a waiting exchange.
type reply struct {
	reportedTime int64
	receivedAt   int64
}

// pendingExchanges correlates inbound time reports with outstanding requests.
// The protocol has no request identifier, so the key is the slave address.
type pendingExchanges struct {
	mu      sync.Mutex
	waiters map[string]chan reply
}

func newPendingExchanges() *pendingExchanges {
	return &pendingExchanges{
		waiters: make(map[string]chan reply),
	}
}

func (p *pendingExchanges) register(address string) chan reply {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan reply, 1)
	p.waiters[address] = ch
	return ch
}

// deliver hands r to the exchange waiting on address. It never blocks.
func (p *pendingExchanges) deliver(address string, r reply) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.waiters[address]
	if !ok {
		return false
	}
	delete(p.waiters, address)
	ch <- r
	return true
}

func (p *pendingExchanges) cancel(address string, ch chan reply) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.waiters[address] == ch {
		delete(p.waiters, address)
	}
}

func (p *pendingExchanges) waiting(address string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.waiters[address]
	return ok
}

// ComputeOffset derives latency and offset from one exchange. sendTime and
// receiveTime bracket the round trip on the master clock, reportedTime is the
// slave clock and masterTime is the master clock the offset is taken against.
func ComputeOffset(address string, sendTime, receiveTime, reportedTime, masterTime int64) cycle.Sample {
	latency := (receiveTime - sendTime) / 2
	adjusted := reportedTime - latency

	return cycle.Sample{
		Address:           address,
		SendTime:          sendTime,
		ReceiveTime:       receiveTime,
		ReportedTime:      reportedTime,
		MasterTime:        masterTime,
		Latency:           latency,
		AdjustedSlaveTime: adjusted,
		Offset:            masterTime - adjusted,
	}
}

// exchange runs one request_time round trip. Concurrent callers for the same
// address share a single request on the wire.
func (m *Master) exchange(ctx context.Context, address string) (cycle.Sample, error) {
	v, err, shared := m.inflight.Do(address, func() (interface{}, error) {
		return m.doExchange(ctx, address)
	})
	if shared {
		log.WithField("slave", address).Debug("Joined in-flight exchange")
	}
	if err != nil {
		return cycle.Sample{}, err
	}
	return v.(cycle.Sample), nil
}

func (m *Master) doExchange(ctx context.Context, address string) (cycle.Sample, error) {
	payload, err := m.codec.Encode(protocol.RequestTime{})
	if err != nil {
		return cycle.Sample{}, err
	}

	// Register before sending so a fast reply cannot be missed
	ch := m.pending.register(address)
	defer m.pending.cancel(address, ch)

	sendTime := m.nowMillis()
	m.registry.RecordRequestSent(address, sendTime)

	if err := m.transport.Send(address, payload); err != nil {
		return cycle.Sample{}, &TransportError{Op: "send", Address: address, Err: err}
	}

	t := time.NewTimer(m.settings.ExchangeTimeout)
	defer t.Stop()

	select {
	case r := <-ch:
		return ComputeOffset(address, sendTime, r.receivedAt, r.reportedTime, m.nowMillis()), nil
	case <-t.C:
		return cycle.Sample{}, ErrExchangeTimeout
	case <-ctx.Done():
		return cycle.Sample{}, ctx.Err()
	}
}
