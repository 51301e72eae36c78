package node

import (
	"context"
	"errors"

	"masterclock/clock/protocol"
	"masterclock/datamodel/cycle"
	"masterclock/datamodel/slave"
	"masterclock/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"
)

// AverageOffset returns the mean of offsets truncated toward zero, or false if there are none.
func AverageOffset(offsets []int64) (int64, bool) {
	if len(offsets) == 0 {
		return 0, false
	}

	var sum int64
	for _, o := range offsets {
		sum += o
	}
	return sum / int64(len(offsets)), true
}

type exchangeResult struct {
	sample cycle.Sample
	err    error
}

// RunCycle performs one full synchronization pass over the active slaves and
// returns its report. Individual exchange failures never abort the cycle.
func (m *Master) RunCycle(ctx context.Context) *cycle.Report {
	started := m.now()
	report := &cycle.Report{
		ID:        uuid.NewString(),
		StartedAt: started,
	}
	logger := log.WithField("cycle", report.ID)

	targets := m.registry.SnapshotActive()
	report.Targets = len(targets)

	results := make([]exchangeResult, len(targets))

	var g errgroup.Group
	g.SetLimit(m.settings.Parallelism)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			s, err := m.exchange(ctx, target.Address)
			results[i] = exchangeResult{sample: s, err: err}
			return nil
		})
	}
	g.Wait()

	var offsets []int64
	transportFailures := 0
	for i, res := range results {
		addr := targets[i].Address
		if res.err != nil {
			var te *TransportError
			switch {
			case errors.As(res.err, &te):
				transportFailures++
				m.Metrics.ObserveExchange(metrics.ExchangeTransportError, 0)
				logger.WithField("slave", addr).Warnf("Failed to send time request: %v", res.err)
			case errors.Is(res.err, ErrExchangeTimeout):
				m.Metrics.ObserveExchange(metrics.ExchangeTimeout, 0)
				logger.WithField("slave", addr).Infof("No time report within %v", m.settings.ExchangeTimeout)
			default:
				logger.WithField("slave", addr).Warnf("Exchange aborted: %v", res.err)
			}
			report.Failures = append(report.Failures, cycle.Failure{Address: addr, Reason: res.err.Error()})
			continue
		}

		m.Metrics.ObserveExchange(metrics.ExchangeOK, res.sample.Latency)
		logger.WithFields(log.Fields{
			"slave":   addr,
			"latency": res.sample.Latency,
			"offset":  res.sample.Offset,
		}).Debug("Measured slave offset")

		report.Samples = append(report.Samples, res.sample)
		offsets = append(offsets, res.sample.Offset)
	}

	avg, ok := AverageOffset(offsets)
	switch {
	case ok:
		report.AverageOffset = avg
		report.Adjusted = m.broadcast(targets, report.Samples, avg)
		report.Outcome = cycle.OutcomeSynced
	case len(targets) > 0 && transportFailures == len(targets):
		report.Outcome = cycle.OutcomeTransportFailure
	default:
		report.Outcome = cycle.OutcomeNoResponses
	}

	report.Duration = m.now().Sub(started)
	m.finish(report)

	return report
}

// broadcast sends the adjustment to the snapshot members selected by the adjust policy.
func (m *Master) broadcast(targets []slave.Entry, samples []cycle.Sample, adjustment int64) int {
	payload, err := m.codec.Encode(protocol.AdjustTime{Adjustment: adjustment})
	if err != nil {
		log.Errorf("Failed to encode adjust_time: %v", err)
		return 0
	}

	latencies := make(map[string]int64, len(samples))
	for _, s := range samples {
		latencies[s.Address] = s.Latency
	}

	magnitude := adjustment
	if magnitude < 0 {
		magnitude = -magnitude
	}

	sent := 0
	for _, t := range targets {
		if m.settings.AdjustPolicy == AdjustLatencyGated {
			latency, measured := latencies[t.Address]
			if !measured || magnitude <= latency {
				continue
			}
		}

		if err := m.transport.Send(t.Address, payload); err != nil {
			log.WithField("slave", t.Address).Warnf("Failed to send adjustment: %v", err)
			continue
		}
		sent++
	}

	return sent
}

// finish logs the report and hands it to the configured sinks.
func (m *Master) finish(report *cycle.Report) {
	logger := log.WithFields(log.Fields{
		"cycle":    report.ID,
		"outcome":  report.Outcome,
		"targets":  report.Targets,
		"duration": report.Duration,
	})

	switch report.Outcome {
	case cycle.OutcomeSynced:
		logger.Infof("Synced %d of %d slaves, average offset %dms, %d adjustments sent",
			report.Responders(), report.Targets, report.AverageOffset, report.Adjusted)
	case cycle.OutcomeTransportFailure:
		logger.Warn("Cycle failed: no time request could be sent")
	default:
		logger.Info("Cycle finished with no responses")
	}

	m.Metrics.ObserveCycle(report)

	if m.Journal != nil {
		if stored, err := m.Journal.Append(report); err != nil {
			log.Errorf("Failed to journal cycle %s: %v", report.ID, err)
		} else {
			report.SequenceNumber = stored.SequenceNumber
		}
	}

	if m.Publisher != nil {
		if err := m.Publisher.PublishReport(report); err != nil {
			log.Errorf("Failed to publish cycle %s: %v", report.ID, err)
		}
	}
}
