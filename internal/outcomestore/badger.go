package outcomestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/signalnine/covbatch/internal/job"
	"github.com/signalnine/covbatch/internal/result"
)

var keyPrefix = []byte("outcome/")

type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger
}

func DefaultConfig() Config {
	return Config{SyncWrites: true}
}

func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

// Info and debug chatter from badger is demoted to debug.
func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Badger is a Store backed by an embedded badger database.
type Badger struct {
	db *badger.DB
}

func OpenBadger(cfg Config) (*Badger, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errNoPath
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("creating index dir %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening outcome index: %w", err)
	}
	return &Badger{db: db}, nil
}

func dbKey(k job.Key) []byte {
	return append(append([]byte(nil), keyPrefix...), k...)
}

func (b *Badger) Put(o *result.Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshaling outcome: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dbKey(o.Key()), data)
	})
}

func (b *Badger) Get(d job.Descriptor) (*result.Outcome, error) {
	var o *result.Outcome
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(d.Key()))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			o = new(result.Outcome)
			return json.Unmarshal(val, o)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading outcome %s: %w", d.Key(), err)
	}
	return o, nil
}

// All returns every stored Outcome ordered by key.
func (b *Badger) All() ([]*result.Outcome, error) {
	var outcomes []*result.Outcome
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var o result.Outcome
				if err := json.Unmarshal(val, &o); err != nil {
					return err
				}
				outcomes = append(outcomes, &o)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing outcomes: %w", err)
	}
	return outcomes, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}
