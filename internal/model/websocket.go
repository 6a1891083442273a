package model

// Message types pushed to /ws/jobs/:jobId subscribers
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage is a bare message such as ping or pong
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage reports a separation job's progress. ProviderUsed is set
// once the provider chain has produced stems.
type WSProgressMessage struct {
	Type         string    `json:"type"`
	JobID        string    `json:"jobId"`
	Progress     int       `json:"progress"`
	Status       JobStatus `json:"status"`
	ProviderUsed string    `json:"providerUsed,omitempty"`
}

// WSCompleteMessage carries the finished job projection
type WSCompleteMessage struct {
	Type   string      `json:"type"`
	JobID  string      `json:"jobId"`
	Result interface{} `json:"result"`
}

// WSErrorMessage reports a FAILED job
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
