package offchain

import (
	"context"
	"encoding/json"
	"fmt"

	"anagolay/internal/verification/models"
	"anagolay/pkg/domain"
)

// IndexStore is node-local key/value storage holding lists of envelopes.
// Take returns and removes everything under key, so each envelope is consumed
// at most once.
type IndexStore interface {
	Append(ctx context.Context, key []byte, data models.IndexingData) error
	Take(ctx context.Context, key []byte) ([]models.IndexingData, error)
}

// Indexer persists envelopes for the block they were created in.
type Indexer struct {
	store IndexStore
}

func NewIndexer(store IndexStore) *Indexer {
	return &Indexer{store: store}
}

// Index queues data for the worker tick of block.
func (i *Indexer) Index(ctx context.Context, block domain.BlockNumber, data models.IndexingData) error {
	if err := i.store.Append(ctx, IndexingKey(block), data); err != nil {
		return fmt.Errorf("index verification data for block %d: %w", block, err)
	}
	return nil
}

func encodeEnvelope(data models.IndexingData) ([]byte, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode indexing data: %w", err)
	}
	return b, nil
}

func decodeEnvelope(b []byte) (models.IndexingData, error) {
	var data models.IndexingData
	if err := json.Unmarshal(b, &data); err != nil {
		return models.IndexingData{}, fmt.Errorf("decode indexing data: %w", err)
	}
	return data, nil
}
