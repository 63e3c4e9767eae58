package db

import (
	"bytes"
	"context"

	"ordkv/pkg/iterator"
	"ordkv/pkg/types"
)

// SearchOptions bounds a range search.
type SearchOptions struct {
	ReadOptions
	Reverse bool
	Limit   int
}

// SearchResult is one key/value pair yielded to a SearchCallback.
type SearchResult struct {
	Key   types.Key
	Value types.Value
}

// SearchCallback is invoked per result; returning a non-nil error stops
// the search and propagates out of SearchRange.
type SearchCallback func(SearchResult) error

// InternalSearchIterator is an alias, not a distinct named interface, so
// that *Engine's own NewIterator (which returns iterator.Iterator)
// satisfies SearchEngine directly under Go's exact-signature rule for
// interface satisfaction.
type InternalSearchIterator = iterator.Iterator

// SearchEngine provides internal search capabilities using iterators.
type SearchEngine interface {
	NewIterator(ctx context.Context, opts ReadOptions) (InternalSearchIterator, error)
}

// SearchRange performs a range search using internal iterators.
func SearchRange(ctx context.Context, engine SearchEngine, start, end types.Key, opts SearchOptions, callback SearchCallback) error {
	iter, err := engine.NewIterator(ctx, opts.ReadOptions)
	if err != nil {
		return err
	}
	defer iter.Close()

	switch {
	case opts.Reverse && end != nil:
		iter.Seek(end)
		if !iter.Valid() {
			iter.Last()
		}
	case opts.Reverse:
		iter.Last()
	case start != nil:
		iter.Seek(start)
	default:
		iter.First()
	}

	count := 0
	for iter.Valid() && (opts.Limit == 0 || count < opts.Limit) {
		key := iter.Key()

		if start != nil && bytes.Compare(key, start) < 0 {
			if opts.Reverse {
				break
			}
			iter.Next()
			continue
		}
		if end != nil && bytes.Compare(key, end) >= 0 {
			if opts.Reverse {
				iter.Prev()
				continue
			}
			break
		}

		if err := callback(SearchResult{Key: key, Value: iter.Value()}); err != nil {
			return err
		}

		count++
		if opts.Reverse {
			iter.Prev()
		} else {
			iter.Next()
		}
	}

	return nil
}
