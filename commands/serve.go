package commands

import (
	"context"
	"errors"
	"fmt"
	"masterclock/clock/node"
	"masterclock/clock/protocol"
	"masterclock/clock/registry"
	"masterclock/config"
	"masterclock/datastore/leveldb"
	"masterclock/discovery"
	"masterclock/events"
	"masterclock/metrics"
	"masterclock/net/udp"

	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"
)

// optional wraps an auxiliary service so that its failure is logged without stopping the master.
func optional(name string, f func() error) func() error {
	return func() error {
		if err := f(); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("%s stopped: %v", name, err)
		}
		return nil
	}
}

// RunServe binds the master socket and runs until ctx is cancelled.
// Failing to bind is the only fatal condition once the config is valid.
func RunServe(ctx context.Context, cfg *config.Config) {
	codec, err := protocol.CodecByName(cfg.Network.Wire)
	if err != nil {
		log.Fatalf("Invalid wire codec: %v", err)
	}

	conn, err := udp.Listen(cfg.Network.ListenAddress, cfg.Network.BufferSize)
	if err != nil {
		log.Fatalf("Failed to bind: %v", err)
	}
	defer conn.Close()

	fmt.Printf("Master node running on %s\n", conn.LocalAddr())

	settings := cfg.SyncSettings()
	master, err := node.New(settings, conn, codec, registry.New(settings.StaleThreshold))
	if err != nil {
		log.Fatalf("Failed to create master: %v", err)
	}

	if cfg.DataStore.JournalPath != "" {
		journal, err := leveldb.NewJournal(cfg.DataStore.JournalPath, cfg.DataStore.JournalRetain)
		if err != nil {
			log.Errorf("Cycle journal disabled: %v", err)
		} else {
			defer journal.Close()
			master.Journal = journal
			log.Infof("Journaling cycles to %s (seq %d)", cfg.DataStore.JournalPath, journal.GetSeq())
		}
	}

	if cfg.Events.NatsURL != "" {
		pub, err := events.NewPublisher(cfg.Events.NatsURL, cfg.Events.Subject)
		if err != nil {
			log.Errorf("Cycle events disabled: %v", err)
		} else {
			defer pub.Close()
			master.Publisher = pub
		}
	}

	if cfg.Metrics.ListenAddress != "" {
		master.Metrics = metrics.New()
	}

	if len(cfg.Network.Slaves) > 0 {
		n := master.Seed(cfg.Network.Slaves...)
		log.Infof("Seeded %d of %d slaves: %v", n, len(cfg.Network.Slaves), cfg.Network.Slaves)
	}

	wg, cctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		return master.Run(cctx)
	})

	if master.Metrics != nil {
		wg.Go(optional("metrics", func() error {
			return master.Metrics.Serve(cctx, cfg.Metrics.ListenAddress)
		}))
	}

	if cfg.Discovery.UseMDNS {
		wg.Go(optional("mDNS advertisement", func() error {
			return discovery.Advertise(cctx, &discovery.Config{
				Instance: cfg.Discovery.Instance,
				Service:  cfg.Discovery.Service,
				Port:     conn.LocalAddr().Port,
				Wire:     codec.Name(),
			})
		}))
	}

	if err := wg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Master stopped: %v", err)
	}

	log.Info("Master stopped")
}
