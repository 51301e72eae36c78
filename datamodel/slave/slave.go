package slave

// Node is the master's view of one slave. All timestamps are milliseconds since epoch.
type Node struct {
	Address           string // Network endpoint, unique key
	LastResponseAt    int64  // Last time any message was received from this address
	LastRequestSentAt int64  // Last time a request_time was sent to this address
	LastReportedTime  int64  // Clock value carried by the most recent time_report
}

// IsStale reports whether the node has been silent for at least threshold milliseconds.
func (n *Node) IsStale(now int64, thresholdMillis int64) bool {
	return now-n.LastResponseAt >= thresholdMillis
}

// Entry is a point-in-time copy of the fields a synchronization cycle needs.
type Entry struct {
	Address           string
	LastRequestSentAt int64
}
