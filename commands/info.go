package commands

import (
	"context"
	"masterclock/config"
	"masterclock/datastore/leveldb"

	log "github.com/sirupsen/logrus"
)

// RunInfo prints the most recent cycles from the journal.
func RunInfo(ctx context.Context, cfg *config.Config, count int) {
	journal, err := leveldb.NewJournal(cfg.DataStore.JournalPath, 0)
	if err != nil {
		log.Fatalf("Failed to open cycle journal: %v", err)
	}
	defer journal.Close()

	reports, err := journal.Last(count)
	if err != nil {
		log.Errorf("Failed to read cycle journal: %v", err)
		return
	}

	log.Infof("Cycle journal: %d cycles recorded, showing %d", journal.GetSeq(), len(reports))
	for _, r := range reports {
		log.Infof("Cycle #%d %s at %s: %s, %d/%d responded, average offset %dms, %d adjusted, took %v",
			r.SequenceNumber, r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Outcome,
			r.Responders(), r.Targets, r.AverageOffset, r.Adjusted, r.Duration)
		for _, s := range r.Samples {
			log.Infof("  %s: latency %dms, offset %dms", s.Address, s.Latency, s.Offset)
		}
		for _, f := range r.Failures {
			log.Infof("  %s: %s", f.Address, f.Reason)
		}
	}
}
