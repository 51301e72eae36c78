// Package events publishes cycle reports to NATS for external consumers.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"masterclock/datamodel/cycle"

	"github.com/nats-io/nats.go"

	log "github.com/sirupsen/logrus"
)

const DefaultSubject = "masterclock.cycles"

type Publisher struct {
	nc      *nats.Conn
	subject string
}

func NewPublisher(url, subject string) (*Publisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}

	opts := []nats.Option{
		nats.Name("masterclock"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warnf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("nats reconnected to %s", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	log.Infof("Publishing cycle reports to nats %s on %q", nc.ConnectedUrl(), subject)

	return &Publisher{nc: nc, subject: subject}, nil
}

// Encode returns the JSON payload published for r.
func Encode(r *cycle.Report) ([]byte, error) {
	return json.Marshal(r)
}

func (p *Publisher) PublishReport(r *cycle.Report) error {
	if p.nc == nil || p.nc.IsClosed() {
		return fmt.Errorf("nats not connected")
	}

	payload, err := Encode(r)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, payload)
}

func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.FlushTimeout(2 * time.Second); err != nil {
			log.Warnf("nats flush on close: %v", err)
		}
		p.nc.Close()
	}
}
