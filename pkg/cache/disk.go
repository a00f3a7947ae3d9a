package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v4"
)

const diskKeyPrefix = "tscore/result/"

// diskTier persists encoded results in BadgerDB
type diskTier struct {
	db         *badger.DB
	compressor *Compressor
	ttl        time.Duration
}

// diskPayload is the value stored for each key
type diskPayload struct {
	Created    int64
	Compressed []byte
}

// openDiskTier opens the badger directory, retrying while another process
// still holds its lock.
func openDiskTier(path string, compressionLevel int, ttl time.Duration, retries int) (*diskTier, error) {
	opts := badger.DefaultOptions(filepath.Join(path, "badger"))
	opts.Logger = nil // Disable BadgerDB logging

	var db *badger.DB
	open := func() error {
		var err error
		db, err = badger.Open(opts)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	if err := backoff.Retry(open, backoff.WithMaxRetries(policy, uint64(retries))); err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	compressor, err := NewCompressor(compressionLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}

	return &diskTier{
		db:         db,
		compressor: compressor,
		ttl:        ttl,
	}, nil
}

func diskKey(key Key) []byte {
	return []byte(diskKeyPrefix + string(key))
}

// put stores an encoded result created at the given time
func (d *diskTier) put(key Key, encoded []byte, created time.Time) error {
	payload := &diskPayload{
		Created:    created.UnixNano(),
		Compressed: d.compressor.Compress(encoded),
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	return d.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(diskKey(key), payloadBytes)
		if d.ttl > 0 {
			entry = entry.WithTTL(d.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// get returns the decoded payload and its creation time. A missing or
// expired key returns ok == false with a nil error.
func (d *diskTier) get(key Key, now time.Time) (encoded []byte, created time.Time, ok bool, err error) {
	var payloadBytes []byte
	err = d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(diskKey(key))
		if err != nil {
			return err
		}
		payloadBytes, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("failed to read key: %w", err)
	}

	var payload diskPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	created = time.Unix(0, payload.Created)
	if d.ttl > 0 && now.Sub(created) > d.ttl {
		return nil, time.Time{}, false, nil
	}

	encoded, err = d.compressor.Decompress(payload.Compressed)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	return encoded, created, true, nil
}

func (d *diskTier) delete(key Key) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(diskKey(key))
	})
}

func (d *diskTier) dropAll() error {
	return d.db.DropPrefix([]byte(diskKeyPrefix))
}

func (d *diskTier) close() error {
	d.compressor.Close()
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
