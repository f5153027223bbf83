package offchain

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"anagolay/internal/verification/models"
	"anagolay/pkg/domain"
)

var boltBucket = []byte("offchain")

// BoltIndex stores envelopes in a node-local bolt file, surviving restarts
// without external services.
type BoltIndex struct {
	db *bolt.DB
}

// OpenBoltIndex opens (or creates) the bolt file at path.
func OpenBoltIndex(path string) (*BoltIndex, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt off-chain storage: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create off-chain bucket: %w", err)
	}
	return &BoltIndex{db: db}, nil
}

func (b *BoltIndex) Close() error {
	return b.db.Close()
}

func (b *BoltIndex) Append(_ context.Context, key []byte, data models.IndexingData) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		list, err := decodeList(bucket.Get(key))
		if err != nil {
			return err
		}
		list = append(list, data)
		encoded, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("encode indexing list: %w", err)
		}
		return bucket.Put(key, encoded)
	})
}

func (b *BoltIndex) Take(_ context.Context, key []byte) ([]models.IndexingData, error) {
	var out []models.IndexingData
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		list, err := decodeList(bucket.Get(key))
		if err != nil {
			return err
		}
		out = list
		return bucket.Delete(key)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadBestBlock returns the last saved finalized block, zero when none was saved.
func (b *BoltIndex) LoadBestBlock(_ context.Context) (domain.BlockNumber, error) {
	var best domain.BlockNumber
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(boltBucket).Get([]byte(BestBlockKey))
		if raw == nil {
			return nil
		}
		if len(raw) != 8 {
			return fmt.Errorf("corrupt best block record: %d bytes", len(raw))
		}
		best = domain.BlockNumber(binary.BigEndian.Uint64(raw))
		return nil
	})
	return best, err
}

func (b *BoltIndex) SaveBestBlock(_ context.Context, block domain.BlockNumber) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		raw := make([]byte, 8)
		binary.BigEndian.PutUint64(raw, uint64(block))
		return tx.Bucket(boltBucket).Put([]byte(BestBlockKey), raw)
	})
}

func decodeList(raw []byte) ([]models.IndexingData, error) {
	if raw == nil {
		return nil, nil
	}
	var list []models.IndexingData
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode indexing list: %w", err)
	}
	return list, nil
}
