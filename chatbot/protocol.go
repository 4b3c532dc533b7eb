package chatbot

// ClientMessage is the message format from client to server
type ClientMessage struct {
	Type    string `json:"type"`              // "send", "select", or "clear"
	Message string `json:"message,omitempty"` // sent with "send"
	System  string `json:"system,omitempty"`  // Choice id sent with "select"
}

// ServerMessage is the message format from server to client
type ServerMessage struct {
	Type           string    `json:"type"`                      // "snapshot", "clarify", "done", "cleared", or "error"
	ConversationID string    `json:"conversation_id,omitempty"` // sent with every message
	Snapshot       *Snapshot `json:"snapshot,omitempty"`        // sent with all but "error"
	Error          string    `json:"error,omitempty"`           // sent with "error"
}

// Client message types
const (
	ClientTypeSend   = "send"
	ClientTypeSelect = "select"
	ClientTypeClear  = "clear"
)

// Server message types
const (
	MessageTypeSnapshot = "snapshot"
	MessageTypeClarify  = "clarify" // the turn is waiting for a Choice
	MessageTypeDone     = "done"    // the turn's stream has ended
	MessageTypeCleared  = "cleared"
	MessageTypeError    = "error"
)
