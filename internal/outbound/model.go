package outbound

import "time"

// Message status lifecycle. The values match what the clinic application
// already stores; "delivered" is historically lowercase there.
const (
	StatusPending   = "PENDING"
	StatusQueued    = "QUEUED"
	StatusSending   = "SENDING"
	StatusDelivered = "delivered"
	StatusFailed    = "FAILED"
)

// Actions to perform on the chat channel.
const (
	ActionSend   = "SEND"
	ActionEdit   = "EDIT"
	ActionDelete = "DELETE"
)

// ChatLogRef links a message back to the transcript entry it originated
// from, so the clinic UI can show its delivery state.
type ChatLogRef struct {
	PatientID string `dynamodbav:"patientId" json:"patientId"`
	EntryID   string `dynamodbav:"entryId" json:"entryId"`
}

// Message is one unit of outbound work against the chat channel.
type Message struct {
	ID     string `dynamodbav:"id" json:"id"`
	ChatID int64  `dynamodbav:"chatId" json:"chatId"`
	Action string `dynamodbav:"action" json:"action"`

	Text     string `dynamodbav:"text,omitempty" json:"text,omitempty"`
	PhotoKey string `dynamodbav:"photoKey,omitempty" json:"photoKey,omitempty"`
	VoiceKey string `dynamodbav:"voiceKey,omitempty" json:"voiceKey,omitempty"`

	// PlatformMessageID references a previously sent chat message for
	// EDIT and DELETE actions.
	PlatformMessageID int64 `dynamodbav:"platformMessageId,omitempty" json:"platformMessageId,omitempty"`

	ScheduledFor string `dynamodbav:"scheduledFor,omitempty" json:"scheduledFor,omitempty"`

	Status string `dynamodbav:"status" json:"status"`
	Error  string `dynamodbav:"error,omitempty" json:"error,omitempty"`

	// ResultMessageID is the platform id of the last successful send.
	ResultMessageID int64 `dynamodbav:"resultMessageId,omitempty" json:"resultMessageId,omitempty"`

	ChatLogRef *ChatLogRef `dynamodbav:"chatLogRef,omitempty" json:"chatLogRef,omitempty"`

	CreatedAt string `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt string `dynamodbav:"updatedAt" json:"updatedAt"`
}

// Due reports whether a scheduled message should be dispatched at now.
func (m *Message) Due(now time.Time) bool {
	if m.ScheduledFor == "" {
		return true
	}
	at, err := time.Parse(time.RFC3339, m.ScheduledFor)
	if err != nil {
		// Unparseable schedules are dispatched rather than stuck forever.
		return true
	}
	return !at.After(now)
}
