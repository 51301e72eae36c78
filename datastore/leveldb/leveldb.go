// Package leveldb stores the master's cycle journal in a LevelDB database.
// Reports are kept under sequence-numbered keys so that iteration order is
// journal order and old entries can be range-deleted.
package leveldb

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"

	log "github.com/sirupsen/logrus"
)

var ErrCorrupted = fmt.Errorf("corrupted")

const seqDigits = 16 // hex digits of a 64 bit sequence number

type LevelDB struct {
	path string
	mu   sync.Mutex
	db   *leveldb.DB
}

// keyFromSeq formats seq as fixed-width hex so byte order matches numeric order.
func keyFromSeq(seq uint64) []byte {
	return fmt.Appendf([]byte(keyPrefixSeq), "%0*x", seqDigits, seq)
}

func seqFromKey(key []byte) (uint64, error) {
	digits, ok := bytes.CutPrefix(key, []byte(keyPrefixSeq))
	if !ok {
		return 0, fmt.Errorf("journal key %q: missing %s prefix", key, keyPrefixSeq)
	}
	if len(digits) != seqDigits {
		return 0, fmt.Errorf("journal key %q: want %d digits, got %d", key, seqDigits, len(digits))
	}
	return strconv.ParseUint(string(digits), 16, 64)
}

func journalOptions() *opt.Options {
	return &opt.Options{
		Compression: opt.SnappyCompression,
	}
}

// openLevelDB opens or creates the database at path, creating parent
// directories and recovering the manifest if it is corrupted.
func openLevelDB(path string) (*leveldb.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := leveldb.OpenFile(path, journalOptions())
	if errors.IsCorrupted(err) {
		log.Warnf("Journal at %s is corrupted, attempting recovery", path)
		db, err = leveldb.RecoverFile(path, journalOptions())
	}
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	log.Infof("Opened journal at %s", path)
	return db, nil
}

func (l *LevelDB) Path() string {
	return l.path
}

// Close releases the database. Closing twice is a no-op.
func (l *LevelDB) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}
