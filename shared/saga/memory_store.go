package saga

import (
	"context"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
)

const sagaTable = "sagas"

var _ Store = (*MemoryStore)(nil)

// MemoryStore is the volatile tier: an in-process table of instances indexed by ID and
// status. State is lost on restart. Write transactions are serialized by go-memdb,
// which makes Transition a compare-and-set.
type MemoryStore struct {
	db *memdb.MemDB
}

// NewMemoryStore creates an empty volatile store
func NewMemoryStore() (*MemoryStore, error) {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			sagaTable: {
				Name: sagaTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"status": {
						Name:    "status",
						Indexer: &memdb.StringFieldIndex{Field: "Status"},
					},
				},
			},
		},
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create in-memory saga table")
	}

	return &MemoryStore{db: db}, nil
}

// Create stores a new instance
func (s *MemoryStore) Create(_ context.Context, instance *Instance) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(sagaTable, "id", instance.ID)
	if err != nil {
		return errors.Wrap(err, "failed to look up saga")
	}
	if existing != nil {
		return errors.Errorf("saga %s already exists", instance.ID)
	}

	if err := txn.Insert(sagaTable, instance.Clone()); err != nil {
		return errors.Wrap(err, "failed to insert saga")
	}

	txn.Commit()
	return nil
}

// Update overwrites the instance while it is still in the expected status
func (s *MemoryStore) Update(_ context.Context, instance *Instance, expected Status) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	current, err := s.first(txn, instance.ID)
	if err != nil {
		return err
	}
	if current.Status.IsTerminal() {
		return errors.Wrapf(ErrSagaTerminal, "saga %s is %s", instance.ID, current.Status)
	}
	if current.Status != expected {
		return errors.Wrapf(ErrSagaClaimLost, "saga %s is %s, expected %s", instance.ID, current.Status, expected)
	}

	if err := txn.Insert(sagaTable, instance.Clone()); err != nil {
		return errors.Wrap(err, "failed to update saga")
	}

	txn.Commit()
	return nil
}

// Get returns a snapshot of the instance
func (s *MemoryStore) Get(_ context.Context, sagaID string) (*Instance, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	instance, err := s.first(txn, sagaID)
	if err != nil {
		return nil, err
	}
	return instance.Clone(), nil
}

// Delete removes the instance
func (s *MemoryStore) Delete(_ context.Context, sagaID string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(sagaTable, "id", sagaID); err != nil {
		return errors.Wrap(err, "failed to delete saga")
	}

	txn.Commit()
	return nil
}

// Transition swaps the status when it still equals from
func (s *MemoryStore) Transition(_ context.Context, sagaID string, from, to Status) (bool, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	current, err := s.first(txn, sagaID)
	if err != nil {
		return false, err
	}
	if current.Status != from {
		return false, nil
	}

	next := current.Clone()
	next.Status = to
	next.UpdatedAt = time.Now()
	if err := txn.Insert(sagaTable, next); err != nil {
		return false, errors.Wrap(err, "failed to transition saga")
	}

	txn.Commit()
	return true, nil
}

// ListByStatus returns every instance in the given status
func (s *MemoryStore) ListByStatus(_ context.Context, status Status) ([]*Instance, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(sagaTable, "status", string(status))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sagas")
	}

	var instances []*Instance
	for obj := it.Next(); obj != nil; obj = it.Next() {
		instances = append(instances, obj.(*Instance).Clone())
	}
	return instances, nil
}

func (s *MemoryStore) first(txn *memdb.Txn, sagaID string) (*Instance, error) {
	raw, err := txn.First(sagaTable, "id", sagaID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up saga")
	}
	if raw == nil {
		return nil, errors.Wrapf(ErrSagaNotFound, "saga %s", sagaID)
	}
	return raw.(*Instance), nil
}
