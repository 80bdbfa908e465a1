package badger

import (
	"context"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
)

// ListContentRefs returns the content references of all live file nodes.
func (s *Store) ListContentRefs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var refs []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixNodes)
		it := txn.NewIterator(opts)
		defer it.Close()

		refs = make([]string, 0, 64)
		for it.Rewind(); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			node, err := decodeNode(val)
			if err != nil {
				return err
			}
			if !node.Deleted && !node.Dir && node.ContentRef != "" {
				refs = append(refs, node.ContentRef)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(refs)
	return refs, nil
}
