package leveldb

import (
	"masterclock/datamodel/cycle"

	"github.com/fxamacker/cbor/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	log "github.com/sirupsen/logrus"
)

const (
	keyPrefixSeq = "CYC" // Cycle reports indexed by sequence number. Followed by a 16-digit hexadecimal sequence number (64 bit)
)

var _ cycle.Journal = (*Journal)(nil)

// Journal stores cycle reports under increasing sequence numbers and
// keeps at most retain of them (0 keeps everything).
type Journal struct {
	LevelDB
	seq    uint64
	retain uint64
}

func NewJournal(path string, retain uint64) (*Journal, error) {
	// Init the underlying LevelDB object
	ldb, err := openLevelDB(path)
	if err != nil {
		return nil, err
	}

	// Scan the database to identify the sequence
	iter := ldb.NewIterator(util.BytesPrefix([]byte(keyPrefixSeq)), nil)
	defer iter.Release()

	var maxSeq uint64 = 0
	if iter.Last() {
		seq, err := seqFromKey(iter.Key())
		if err != nil {
			ldb.Close()
			return nil, err
		}
		maxSeq = seq
	}

	return &Journal{
		LevelDB: LevelDB{
			path: path,
			db:   ldb,
		},
		seq:    maxSeq,
		retain: retain,
	}, nil
}

func (l *Journal) GetSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

func (l *Journal) Append(report *cycle.Report) (*cycle.Report, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Copy the report so the caller's value is not renumbered on failure
	r := *report
	r.SequenceNumber = l.seq + 1

	raw, err := cbor.Marshal(&r)
	if err != nil {
		return nil, err
	}

	batch := new(leveldb.Batch)
	batch.Put(keyFromSeq(r.SequenceNumber), raw)

	// Drop the oldest entries beyond the retention window
	if l.retain > 0 && r.SequenceNumber > l.retain {
		cutoff := r.SequenceNumber - l.retain // Entries with seq <= cutoff are dropped
		iter := l.db.NewIterator(&util.Range{Start: keyFromSeq(0), Limit: keyFromSeq(cutoff + 1)}, nil)
		for iter.Next() {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
		iter.Release()
		if err := iter.Error(); err != nil {
			return nil, err
		}
	}

	if err := l.db.Write(batch, nil); err != nil {
		return nil, err
	}

	l.seq = r.SequenceNumber
	return &r, nil
}

func (l *Journal) GetBySeq(seq uint64) (*cycle.Report, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := l.db.Get(keyFromSeq(seq), nil)
	if err != nil {
		return nil, err
	}

	r := &cycle.Report{}
	if err := cbor.Unmarshal(raw, r); err != nil {
		return nil, err
	}

	// Compare the Sequence Number just in case
	if r.SequenceNumber != seq {
		log.Errorf("GetBySeq: Sequence Number mismatch: %d != %d", seq, r.SequenceNumber)
		return nil, ErrCorrupted
	}

	return r, nil
}

func (l *Journal) Last(n int) ([]*cycle.Report, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var results []*cycle.Report
	if n <= 0 {
		return results, nil
	}

	iter := l.db.NewIterator(util.BytesPrefix([]byte(keyPrefixSeq)), nil)
	defer iter.Release()

	// Walk backwards from the newest entry
	for ok := iter.Last(); ok && len(results) < n; ok = iter.Prev() {
		r := &cycle.Report{}
		if err := cbor.Unmarshal(iter.Value(), r); err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}

	return results, nil
}
