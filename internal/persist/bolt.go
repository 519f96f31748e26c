package persist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/systmms/securekv/pkg/securekv"
)

var defaultBucket = []byte("securekv")

// Bolt keeps entries in a single bbolt database file.
type Bolt struct {
	db     *bolt.DB
	bucket []byte
}

// OpenBolt opens (creating if needed) the database at path. bucket defaults
// to "securekv" when empty.
func OpenBolt(path string, bucket string) (*Bolt, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create directory for %q: %w", path, err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}

	name := defaultBucket
	if bucket != "" {
		name = []byte(bucket)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %q: %w", name, err)
	}

	return &Bolt{db: db, bucket: name}, nil
}

func (b *Bolt) SetItem(_ context.Context, key, value string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), []byte(value))
	})
}

func (b *Bolt) GetItem(_ context.Context, key string) (value string, ok bool, err error) {
	err = b.db.View(func(tx *bolt.Tx) error {
		// Seek rather than Get so a stored empty value is told apart from a
		// missing key.
		k, data := tx.Bucket(b.bucket).Cursor().Seek([]byte(key))
		if k == nil || !bytes.Equal(k, []byte(key)) {
			return nil
		}
		// data is only valid for the life of the transaction; string() copies.
		value, ok = string(data), true
		return nil
	})
	return value, ok, err
}

func (b *Bolt) RemoveItem(_ context.Context, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Delete([]byte(key))
	})
}

// Close releases the database file lock.
func (b *Bolt) Close() error {
	return b.db.Close()
}

var _ securekv.PersistentMap = (*Bolt)(nil)
