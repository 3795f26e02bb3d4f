// Package envelope defines the per-message state object that flows
// through the gateway's pipeline. An Envelope is created by the consumer
// on receipt, owned exclusively by the worker that dequeues it, and
// destroyed once its commit handle has fired.
package envelope

import "time"

// State is a step in the envelope's lifecycle state machine.
type State int

const (
	Received State = iota
	Filtered
	Resolved
	Decoded
	Transformed
	Encoded
	Produced
	DlqProduced
	Committed
	CommitFailed
)

func (s State) String() string {
	switch s {
	case Received:
		return "Received"
	case Filtered:
		return "Filtered"
	case Resolved:
		return "Resolved"
	case Decoded:
		return "Decoded"
	case Transformed:
		return "Transformed"
	case Encoded:
		return "Encoded"
	case Produced:
		return "Produced"
	case DlqProduced:
		return "DlqProduced"
	case Committed:
		return "Committed"
	case CommitFailed:
		return "CommitFailed"
	default:
		return "Unknown"
	}
}

// CommitHandle is the opaque token obtained from the consumer at receipt
// time. Invoking it exactly once advances the consumer offset for the
// envelope's partition. A nil handle is permitted (e.g. non-Kafka
// sources in tests) and is logged at warn-level by the commit coordinator
// instead of invoked.
type CommitHandle func()

// Envelope is the in-flight, per-message state object. Receipt fields
// are set at construction; derived fields are populated as the pipeline
// advances. An Envelope is owned by exactly one worker at a time.
type Envelope struct {
	// Set at receipt. All but Headers stay unchanged afterwards; Headers is
	// replaced by RestoreHeaders and gets its outbound messageSchema from
	// the router.
	SourceTopic      string
	Partition        int32
	Offset           int64
	PayloadBytes     []byte
	Headers          map[string]string // case-preserving original headers
	InboundSchema    string
	ReceivedAt       time.Time
	Commit           CommitHandle

	// Derived, populated as the pipeline advances.
	ChannelID          string
	OperationName      string
	Datacenter         string
	HeaderSnapshot     map[string]string
	PayloadJSON        string
	TransformedJSON    string
	OutboundBytes      []byte
	OutboundSchema     string
	DestinationTopic   string

	State State
}

// New constructs an Envelope in the Received state.
func New(sourceTopic string, partition int32, offset int64, payload []byte, headers map[string]string, inboundSchema string, commit CommitHandle) *Envelope {
	return &Envelope{
		SourceTopic:   sourceTopic,
		Partition:     partition,
		Offset:        offset,
		PayloadBytes:  payload,
		Headers:       headers,
		InboundSchema: inboundSchema,
		ReceivedAt:    time.Now(),
		Commit:        commit,
		State:         Received,
	}
}

// SnapshotHeaders copies the current header map so it can be restored
// after the transform stage, which is only permitted to touch
// TransformedJSON, never the header map itself.
func (e *Envelope) SnapshotHeaders() {
	snap := make(map[string]string, len(e.Headers))
	for k, v := range e.Headers {
		snap[k] = v
	}
	e.HeaderSnapshot = snap
}

// RestoreHeaders re-applies the snapshot taken by SnapshotHeaders.
func (e *Envelope) RestoreHeaders() {
	if e.HeaderSnapshot == nil {
		return
	}
	restored := make(map[string]string, len(e.HeaderSnapshot))
	for k, v := range e.HeaderSnapshot {
		restored[k] = v
	}
	e.Headers = restored
}
