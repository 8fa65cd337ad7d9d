package simulated

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/openfroyo/partsync/pkg/engine"
)

// Store persists the simulated controller state between invocations.
type Store interface {
	// Load returns the persisted state, or nil when nothing was saved yet.
	Load(ctx context.Context) (*State, error)
	SaveCPC(ctx context.Context, cpc *engine.CPC) error
	SavePartition(ctx context.Context, p *engine.Partition) error
	DeletePartition(ctx context.Context, uri string) error
	SaveDependent(ctx context.Context, d *StoredDependent) error
	Close() error
}

// State is the full contents of a simulated controller.
type State struct {
	CPCs       []*engine.CPC
	Partitions []*engine.Partition
	Dependents []*StoredDependent
}

// StoredDependent is a dependent together with its parent partition or CPC.
type StoredDependent struct {
	ParentURI string           `json:"parent_uri"`
	Dependent engine.Dependent `json:"dependent"`
}

const (
	prefixCPC       = "cpc:"
	prefixPartition = "partition:"
	prefixDependent = "dependent:"
)

// BadgerStore implements Store on a Badger database directory.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) the state directory at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(path))
	opts.Logger = nil
	opts = opts.WithValueLogFileSize(1 << 20)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) put(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *BadgerStore) SaveCPC(ctx context.Context, cpc *engine.CPC) error {
	return s.put(prefixCPC+cpc.URI, cpc)
}

func (s *BadgerStore) SavePartition(ctx context.Context, p *engine.Partition) error {
	return s.put(prefixPartition+p.URI, p)
}

func (s *BadgerStore) DeletePartition(ctx context.Context, uri string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(prefixPartition + uri))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (s *BadgerStore) SaveDependent(ctx context.Context, d *StoredDependent) error {
	return s.put(prefixDependent+d.Dependent.URI, d)
}

// Load reads every persisted object. It returns nil when the store holds
// no CPC.
func (s *BadgerStore) Load(ctx context.Context) (*State, error) {
	state := &State{}
	err := s.db.View(func(txn *badger.Txn) error {
		if err := scan(txn, prefixCPC, func(v []byte) error {
			var cpc engine.CPC
			if err := json.Unmarshal(v, &cpc); err != nil {
				return err
			}
			state.CPCs = append(state.CPCs, &cpc)
			return nil
		}); err != nil {
			return err
		}
		if err := scan(txn, prefixPartition, func(v []byte) error {
			var p engine.Partition
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			state.Partitions = append(state.Partitions, &p)
			return nil
		}); err != nil {
			return err
		}
		return scan(txn, prefixDependent, func(v []byte) error {
			var d StoredDependent
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			state.Dependents = append(state.Dependents, &d)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(state.CPCs) == 0 {
		return nil, nil
	}
	return state, nil
}

func scan(txn *badger.Txn, prefix string, fn func([]byte) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}
