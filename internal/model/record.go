// Package model defines the core data structures for Flowtrace:
// raw instrumentation events as delivered by a trace source, and the
// canonical causal records handed to downstream graph construction.
package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Epoch is a coarse-grained unit of logical progress in the observed
// computation, in nanoseconds of logical time. A watermark advancing past an
// epoch guarantees that no further raw events for it will arrive.
type Epoch int64

// WatermarkClosed marks a terminated stream: every epoch is complete.
const WatermarkClosed Epoch = math.MaxInt64

func (e Epoch) String() string {
	if e == WatermarkClosed {
		return "closed"
	}
	return strconv.FormatInt(int64(e), 10)
}

// RawEvent is one instrumentation sample produced by the observed
// computation, as framed and delivered by the trace source adapter.
type RawEvent struct {
	// Timestamp is the logical time since computation start at which the
	// originating worker recorded the event. Monotonically non-decreasing
	// within one worker's stream.
	Timestamp time.Duration

	// WorkerID identifies the originating worker.
	WorkerID uint64

	// Payload is the event variant.
	Payload Payload
}

// Payload is the tagged variant carried by a RawEvent.
type Payload interface {
	payloadKind() string
}

// Schedule reports an operator beginning or ending execution.
type Schedule struct {
	OperatorID uint64
	// Start is true when the operator begins executing, false when it ends.
	Start bool
}

// Messages reports a data message crossing a channel between workers.
type Messages struct {
	Source  uint64
	Target  uint64
	IsSend  bool
	SeqNo   uint64
	Channel uint64
}

// Progress reports a control/progress message.
type Progress struct {
	Source  uint64
	IsSend  bool
	SeqNo   uint64
	Channel uint64
}

// Operates declares that an operator exists: its hierarchical address and
// global id. Emitted once per operator at computation bootstrap.
type Operates struct {
	Address    OperatorAddress
	OperatorID uint64
}

// Unknown is any event kind this core does not interpret. Classification
// drops it silently.
type Unknown struct {
	Kind string
}

func (Schedule) payloadKind() string { return "schedule" }
func (Messages) payloadKind() string { return "messages" }
func (Progress) payloadKind() string { return "progress" }
func (Operates) payloadKind() string { return "operates" }
func (u Unknown) payloadKind() string {
	if u.Kind == "" {
		return "unknown"
	}
	return u.Kind
}

// ActivityType classifies what kind of activity a LogRecord describes.
type ActivityType uint8

const (
	Scheduling ActivityType = iota
	DataMessage
	ControlMessage
)

func (a ActivityType) String() string {
	names := []string{"scheduling", "data_message", "control_message"}
	if int(a) < len(names) {
		return names[a]
	}
	return "unknown"
}

// EventType classifies the edge of an activity a LogRecord marks.
type EventType uint8

const (
	Start EventType = iota
	End
	Sent
	Received
)

func (e EventType) String() string {
	names := []string{"start", "end", "sent", "received"}
	if int(e) < len(names) {
		return names[e]
	}
	return "unknown"
}

// LogRecord is the canonical causal activity record consumed downstream.
//
// Exactly one of OperatorID / ChannelID is set, determined by ActivityType:
// scheduling records carry an operator id and never a correlator or remote
// worker; message records carry a channel id and a correlator id.
type LogRecord struct {
	// Timestamp is the epoch-bucketed logical time, copied from the epoch
	// retained when the record's raw event arrived, not from the event's own
	// timestamp.
	Timestamp Epoch

	// LocalWorker is the worker that observed the event.
	LocalWorker uint64

	ActivityType ActivityType
	EventType    EventType

	// CorrelatorID pairs a Sent record on one worker with the matching
	// Received record on another. Present for message kinds only.
	CorrelatorID *uint64

	// RemoteWorker is the worker on the other end of a message, when known.
	// Nil for control-message sends: progress messages are broadcast and the
	// recipient is not knowable at send time.
	RemoteWorker *uint64

	// OperatorID is present only for Scheduling records.
	OperatorID *uint64

	// ChannelID is present only for message records.
	ChannelID *uint64
}

// WeightedRecord is a LogRecord with a signed multiplicity. Classification
// emits every record with Diff +1; downstream relational layers may retract.
type WeightedRecord struct {
	Record LogRecord
	Diff   int64
}

// Uint64 returns a pointer to v, for populating optional record fields.
func Uint64(v uint64) *uint64 { return &v }

// OperatorAddress is the ordered sequence of child-indices locating an
// operator under the computation root.
type OperatorAddress []int

// Pop returns the address of the immediately enclosing operator. Popping an
// empty or root-level address yields the empty address.
func (a OperatorAddress) Pop() OperatorAddress {
	if len(a) == 0 {
		return nil
	}
	parent := make(OperatorAddress, len(a)-1)
	copy(parent, a[:len(a)-1])
	return parent
}

// Key encodes the address as an exact-equality join key. Two operators are
// in parent/child relation iff one address's Key equals the other's after a
// single Pop.
func (a OperatorAddress) Key() string {
	if len(a) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, c := range a {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.Itoa(c))
	}
	return sb.String()
}

func (a OperatorAddress) String() string {
	return "[" + a.Key() + "]"
}

// OperatorDecl is one tuple of the bootstrap operator topology.
type OperatorDecl struct {
	Address    OperatorAddress
	OperatorID uint64
}

func (d OperatorDecl) String() string {
	return fmt.Sprintf("operator %d @ %s", d.OperatorID, d.Address)
}

// TraceMessage is one framed message of a worker's replayed trace stream:
// a batch of raw events belonging to one epoch, a frontier advance, or both.
// Within one worker's stream, messages arrive in logical-time order.
type TraceMessage struct {
	Worker uint64

	// Epoch the Events belong to. Meaningless when Events is empty.
	Epoch  Epoch
	Events []RawEvent

	// Frontier is the lowest epoch for which this worker may still deliver
	// events, valid when HasFrontier is set. Frontier advances are the hard
	// completeness guarantee emission waits for.
	Frontier    Epoch
	HasFrontier bool
}

// RecordBatch is one epoch's classified output: the weighted records and
// operator declarations observed at that epoch, tagged with the global
// watermark in force when the batch was emitted.
//
// A batch with no records and no decls is a pure watermark advance.
type RecordBatch struct {
	Epoch   Epoch
	Records []WeightedRecord
	Decls   []OperatorDecl

	// Watermark is the lowest epoch that may still receive input across all
	// workers. Always Epoch < Watermark for batches carrying data.
	Watermark Epoch
}

// Empty reports whether the batch carries no data, only a watermark.
func (b *RecordBatch) Empty() bool {
	return len(b.Records) == 0 && len(b.Decls) == 0
}
