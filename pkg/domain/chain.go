package domain

import "strconv"

// BlockNumber is the height of a block in the ledger.
type BlockNumber uint64

func (b BlockNumber) String() string {
	return strconv.FormatUint(uint64(b), 10)
}

// Balance is an amount of the native currency in its smallest unit.
type Balance uint64
