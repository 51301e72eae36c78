package cycle

import (
	"time"
)

type Outcome string

const (
	OutcomeSynced           Outcome = "synced"
	OutcomeNoResponses      Outcome = "no_responses"
	OutcomeTransportFailure Outcome = "transport_failure"
)

// Sample is one successful request/response exchange. Times are milliseconds.
type Sample struct {
	Address           string `cbor:"1,keyasint,omitempty" json:"address"`
	SendTime          int64  `cbor:"2,keyasint,omitempty" json:"send_time"`
	ReceiveTime       int64  `cbor:"3,keyasint,omitempty" json:"receive_time"`
	ReportedTime      int64  `cbor:"4,keyasint,omitempty" json:"reported_time"`
	MasterTime        int64  `cbor:"5,keyasint,omitempty" json:"master_time"`
	Latency           int64  `cbor:"6,keyasint,omitempty" json:"latency"`
	AdjustedSlaveTime int64  `cbor:"7,keyasint,omitempty" json:"adjusted_slave_time"`
	Offset            int64  `cbor:"8,keyasint,omitempty" json:"offset"`
}

// Failure records an exchange that produced no sample.
type Failure struct {
	Address string `cbor:"1,keyasint,omitempty" json:"address"`
	Reason  string `cbor:"2,keyasint,omitempty" json:"reason"`
}

// Report summarizes one synchronization cycle.
type Report struct {
	SequenceNumber uint64        `cbor:"1,keyasint,omitempty" json:"seq,omitempty"`  // Assigned by the journal
	ID             string        `cbor:"2,keyasint,omitempty" json:"id"`             // Random cycle identifier
	StartedAt      time.Time     `cbor:"3,keyasint,omitempty" json:"started_at"`     // Wall clock at cycle start
	Duration       time.Duration `cbor:"4,keyasint,omitempty" json:"duration"`       // Time spent in the cycle
	Targets        int           `cbor:"5,keyasint,omitempty" json:"targets"`        // Slaves in the snapshot
	Samples        []Sample      `cbor:"6,keyasint,omitempty" json:"samples"`        // Successful exchanges
	Failures       []Failure     `cbor:"7,keyasint,omitempty" json:"failures"`       // Timeouts and transport errors
	AverageOffset  int64         `cbor:"8,keyasint,omitempty" json:"average_offset"` // Broadcast adjustment
	Adjusted       int           `cbor:"9,keyasint,omitempty" json:"adjusted"`       // adjust_time messages sent
	Outcome        Outcome       `cbor:"10,keyasint,omitempty" json:"outcome"`
}

// Responders returns the number of slaves that produced a sample.
func (r *Report) Responders() int {
	return len(r.Samples)
}

// Journal keeps a bounded history of cycle reports.
type Journal interface {
	// Append assigns the next sequence number to the report and stores it.
	Append(*Report) (*Report, error)

	// Last returns up to n most recent reports, newest first.
	Last(n int) ([]*Report, error)

	// GetSeq returns the sequence number of the most recently appended report.
	GetSeq() uint64

	Close() error
}
