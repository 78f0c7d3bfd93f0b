package idgen

import (
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// Snowflake reference numbers
// ============================================================================
//
// [What they are for]
//
// Transactions and statements carry a reference number next to their UUID
// primary key. The number must be:
//  1. unique across every server instance
//  2. roughly increasing, so the unique index on reference_no stays
//     append-mostly
//  3. cheap to generate under concurrent postings
//  4. free of business volume, unlike a plain counter
//
// [Layout] 64 bits
//
//	0 - 41 bit timestamp - 10 bit worker - 12 bit sequence
//	|   |                  |               |
//	|   |                  |               +-- per-millisecond sequence (0-4095)
//	|   |                  +-- worker id from server.worker_id (0-1023)
//	|   +-- milliseconds since epoch (about 69 years)
//	+-- sign bit, always 0
//
// Two instances sharing a worker id can collide; deployments give every
// instance its own server.worker_id.
//
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10                   // worker id width
	sequenceBits   = 12                   // sequence width
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Reference number prefixes.
const (
	PrefixTransaction = "TXN"
	PrefixStatement   = "STM"
)

// Snowflake is a goroutine-safe id generator for one worker.
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64 // millisecond of the last id handed out
	workerID  int64
	sequence  int64 // position within timestamp
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

// NewSnowflake returns a generator for the given worker id (0-1023).
func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("worker id must be between 0 and %d, got %d", maxWorkerID, workerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

// Init sets up the package generator. Only the first call has an effect.
func Init(workerID int64) error {
	var err error
	once.Do(func() {
		defaultGenerator, err = NewSnowflake(workerID)
	})
	return err
}

// NextID draws from the package generator, initialising it with worker 1
// when Init was never called (tests, tools).
func NextID() int64 {
	if defaultGenerator == nil {
		_ = Init(1)
	}
	return defaultGenerator.Generate()
}

// Generate returns the next id. When the 4096 ids of one millisecond are used
// up it spins until the clock moves on. A clock that steps backwards is not
// detected; ids from that window may repeat an earlier sequence.
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// sequence exhausted for this millisecond
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// ReferenceNo builds a human readable number such as
// TXN20240115143052_000012345678: prefix, UTC wall time, snowflake id.
func ReferenceNo(prefix string) string {
	id := NextID()
	return fmt.Sprintf("%s%s_%012d", prefix, time.Now().UTC().Format("20060102150405"), id%1000000000000)
}

func TransactionNo() string { return ReferenceNo(PrefixTransaction) }

func StatementNo() string { return ReferenceNo(PrefixStatement) }
