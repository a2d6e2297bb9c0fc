package audit

import (
	"time"

	"github.com/google/uuid"
)

// Record is one resolved admin request: what was asked, where it went, and
// what the client was told.
type Record struct {
	ID           uuid.UUID
	Instance     string
	ConnectionID uint64
	Seq          uint64
	Operator     string // Authenticated key ID, empty when auth is disabled
	RequestKind  string
	Destination  string
	Outcome      string // Reply kind sent to the client
	SubmittedAt  time.Time
	EmittedAt    time.Time
}

// NewRecord creates a record with a fresh ID.
func NewRecord() Record {
	return Record{ID: uuid.New()}
}

// Sink accepts audit records. Implementations must not block.
type Sink interface {
	Record(r Record)
}

// Discard drops every record.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(Record) {}
