package node

import (
	"masterclock/clock/protocol"

	log "github.com/sirupsen/logrus"
)

// HandleDatagram is the receive-loop callback: it decodes one datagram and
// applies it to the registry and to any exchange waiting on the sender.
func (m *Master) HandleDatagram(payload []byte, from string) {
	receivedAt := m.nowMillis()

	msg, err := m.codec.Decode(payload)
	if err != nil {
		m.Metrics.ObserveDecodeError()
		log.WithField("slave", from).Warnf("Dropping datagram: %v", err)
		return
	}

	m.Metrics.ObserveDatagram(msg.Type())

	switch msg := msg.(type) {
	case protocol.Introduce:
		m.registry.UpsertIntroduction(from)
		log.WithField("slave", from).Debug("Introduction")
	case protocol.TimeReport:
		m.registry.RecordResponse(from, msg.Time)
		if m.pending.deliver(from, reply{reportedTime: msg.Time, receivedAt: receivedAt}) {
			log.WithField("slave", from).Debugf("Time report %d delivered to exchange", msg.Time)
		} else {
			log.WithField("slave", from).Debugf("Unsolicited time report %d", msg.Time)
		}
	case protocol.RequestTime, protocol.AdjustTime:
		log.WithField("slave", from).Warnf("Ignoring master-only message %s", msg.Type())
	case protocol.Unrecognized:
		log.WithField("slave", from).Warnf("Ignoring unknown message type %q", msg.Kind)
	}
}
