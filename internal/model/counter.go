package model

// CounterID is the fixed key of the singleton counters row.
const CounterID = 1

// Counter is the persisted POST counter. There is exactly one row,
// identified by CounterID, and Value only grows by one per increment.
//
// Fields:
//
//	ID    – counters.id, always CounterID.
//	Value – counters.value, non-negative.
type Counter struct {
	ID    int64 // counters.id
	Value int64 // counters.value
}

// CounterResponse is the JSON envelope returned by GET / and POST /.
type CounterResponse struct {
	Message          string `json:"message"`
	PostRequestCount int64  `json:"post_request_count"`
}
