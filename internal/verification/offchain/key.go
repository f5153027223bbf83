// Package offchain bridges on-chain verification state and the node-local
// off-chain worker through block-keyed indexing storage.
package offchain

import (
	"encoding/binary"

	"anagolay/pkg/domain"
)

// IndexingPrefix namespaces verification envelopes in off-chain storage.
const IndexingPrefix = "verification::indexing::"

// BestBlockKey holds the last finalized block next to the envelopes, so a
// restarted node continues numbering past the keys already written.
const BestBlockKey = "verification::best_block"

// IndexingKey is IndexingPrefix followed by the big-endian block number.
func IndexingKey(block domain.BlockNumber) []byte {
	key := make([]byte, len(IndexingPrefix)+8)
	copy(key, IndexingPrefix)
	binary.BigEndian.PutUint64(key[len(IndexingPrefix):], uint64(block))
	return key
}
