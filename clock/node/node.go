package node

import (
	"context"
	"fmt"
	"net"
	"time"

	"masterclock/clock/protocol"
	"masterclock/clock/registry"
	"masterclock/datamodel/cycle"
	"masterclock/helper/timer"
	"masterclock/metrics"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	log "github.com/sirupsen/logrus"
)

// Transport is the datagram endpoint the master sends and receives on.
type Transport interface {
	Send(address string, payload []byte) error
	Listen(ctx context.Context, handler func(payload []byte, from string)) error
}

// ReportPublisher receives every finished cycle report.
type ReportPublisher interface {
	PublishReport(*cycle.Report) error
}

type AdjustPolicy string

const (
	// AdjustAlways sends the average offset to every slave in the cycle snapshot.
	AdjustAlways AdjustPolicy = "always"
	// AdjustLatencyGated sends it only to responders whose measured latency is below |average offset|.
	AdjustLatencyGated AdjustPolicy = "latency"
)

type Settings struct {
	SyncInterval    timer.Interval
	SweepInterval   timer.Interval
	ExchangeTimeout time.Duration
	StaleThreshold  time.Duration
	Parallelism     int
	AdjustPolicy    AdjustPolicy
}

func DefaultSettings() Settings {
	return Settings{
		SyncInterval:    timer.Interval{Duration: 10 * time.Second, Jitter: 500 * time.Millisecond},
		SweepInterval:   timer.Interval{Duration: 5 * time.Second},
		ExchangeTimeout: 5 * time.Second,
		StaleThreshold:  60 * time.Second,
		Parallelism:     8,
		AdjustPolicy:    AdjustAlways,
	}
}

func (s *Settings) Validate() error {
	if err := s.SyncInterval.Validate(); err != nil {
		return fmt.Errorf("sync interval: %w", err)
	}
	if err := s.SweepInterval.Validate(); err != nil {
		return fmt.Errorf("sweep interval: %w", err)
	}
	if s.ExchangeTimeout <= 0 {
		return fmt.Errorf("exchange timeout must be positive, got %v", s.ExchangeTimeout)
	}
	if s.StaleThreshold <= 0 {
		return fmt.Errorf("stale threshold must be positive, got %v", s.StaleThreshold)
	}
	if s.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", s.Parallelism)
	}
	switch s.AdjustPolicy {
	case AdjustAlways, AdjustLatencyGated:
	default:
		return fmt.Errorf("unknown adjust policy %q", s.AdjustPolicy)
	}
	return nil
}

// Master runs the synchronization cycles and the inbound dispatcher.
type Master struct {
	settings  Settings
	transport Transport
	codec     protocol.Codec
	registry  *registry.Registry

	// Optional sinks for cycle reports
	Journal   cycle.Journal
	Metrics   *metrics.Metrics
	Publisher ReportPublisher

	pending  *pendingExchanges
	inflight singleflight.Group
	now      func() time.Time
}

func New(settings Settings, transport Transport, codec protocol.Codec, reg *registry.Registry) (*Master, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return &Master{
		settings:  settings,
		transport: transport,
		codec:     codec,
		registry:  reg,
		pending:   newPendingExchanges(),
		now:       time.Now,
	}, nil
}

func (m *Master) nowMillis() int64 {
	return m.now().UnixMilli()
}

func (m *Master) Registry() *registry.Registry {
	return m.registry
}

// Seed registers statically configured slaves as if they had introduced themselves.
// Addresses are resolved first so a seed names the same record the slave's own
// datagrams will be keyed by. Unresolvable seeds are skipped. It returns the
// number of slaves registered.
func (m *Master) Seed(addresses ...string) int {
	seeded := 0
	for _, addr := range addresses {
		resolved, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			log.WithField("slave", addr).Warnf("Skipping seed slave: %v", err)
			continue
		}
		m.registry.UpsertIntroduction(resolved.String())
		seeded++
	}
	m.Metrics.SetSlaves(m.registry.Len())
	return seeded
}

// This is run via the RunWithTicker() helper
func (m *Master) syncCycle(ctx context.Context) error {
	m.RunCycle(ctx)
	return nil
}

// This is run via the RunWithTicker() helper
func (m *Master) sweep(ctx context.Context) error {
	m.registry.EvictStale(m.nowMillis(), m.settings.StaleThreshold)
	m.Metrics.SetSlaves(m.registry.Len())
	return nil
}

// Run blocks until ctx is cancelled or the transport fails.
func (m *Master) Run(ctx context.Context) error {
	wg, cctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		return m.transport.Listen(cctx, m.HandleDatagram)
	})

	wg.Go(func() error {
		return timer.RunWithTicker(cctx, &m.settings.SyncInterval, m.syncCycle)
	})

	wg.Go(func() error {
		return timer.RunWithTicker(cctx, &m.settings.SweepInterval, m.sweep)
	})

	log.Infof("Master running: sync every %v, exchange timeout %v, stale after %v, adjust policy %s",
		m.settings.SyncInterval.Duration, m.settings.ExchangeTimeout, m.settings.StaleThreshold, m.settings.AdjustPolicy)

	return wg.Wait()
}
