package main

// represents one message taken off the queue
type QueueMessage struct {
	ID            string
	ReceiptHandle string
	Body          string
}

// raw response of a single queue fetch, consumed immediately
type Envelope struct {
	Messages []QueueMessage
	// server supplied Date response header
	Date string
}

// field name -> value, normalized and masked in place, then written as a row
type Record map[string]any

// record field names the pipeline depends on
const (
	fieldAppVersion     = "app_version"
	fieldCreateDate     = "create_date"
	fieldIP             = "ip"
	fieldDeviceID       = "device_id"
	fieldMaskedIP       = "masked_ip"
	fieldMaskedDeviceID = "masked_device_id"
)

type DriverState int

const (
	StateFetching DriverState = iota
	StateProcessing
	StateDone
)

func (s DriverState) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateProcessing:
		return "processing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// counters for a single driver run
type Summary struct {
	RunID          string
	Fetched        int
	Inserted       int
	Skipped        int // conflict, row already present
	Empty          int // fetches that returned no message
	Deleted        int
	DeleteFailures int
}
