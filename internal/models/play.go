package models

// Content result values for a completed play.
const (
	ResultUnknown = "Unknown"
	ResultSuccess = "Success"
	ResultFailure = "Failure"
)

// Play status values.
const (
	StatusPending   = "Pending"
	StatusCompleted = "Completed"
)

// Message is the payload carried along the chain.
type Message struct {
	Body        []byte
	ContentType string
}

// PlayResponse tracks one play request from the origin's point of view.
type PlayResponse struct {
	ID                  string     `json:"id,omitempty" yaml:"id,omitempty"` // ULID
	Status              string     `json:"status" yaml:"status"`
	ContentType         string     `json:"contentType" yaml:"contentType"`
	OriginalLength      int        `json:"originalLength" yaml:"originalLength"`
	OriginalHash        string     `json:"originalHash" yaml:"originalHash"`
	ContentResult       string     `json:"contentResult" yaml:"contentResult"`
	ReceivedHash        string     `json:"receivedHash" yaml:"receivedHash"`
	ReceivedLength      int        `json:"receivedLength" yaml:"receivedLength"`
	ReceivedContentType string     `json:"receivedContentType" yaml:"receivedContentType"`
	Signatures          Signatures `json:"signatures" yaml:"signatures"`
	Timestamp           int64      `json:"ts,omitempty" yaml:"ts,omitempty"` // Unix ms at completion
}
