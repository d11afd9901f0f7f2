package store

import "github.com/dgraph-io/badger/v4"

// UpdateTxn runs fn in a read-write transaction.
func (s *Store) UpdateTxn(fn func(txn *badger.Txn) error) error {
	return s.update(fn)
}
