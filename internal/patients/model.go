package patients

import "time"

// Injection statuses as entered by clinic staff.
const (
	InjectionScheduled = "scheduled"
	InjectionDone      = "done"
	InjectionCanceled  = "canceled"
)

// PatientRecord is the clinic-owned patient document. The messaging core
// reads phone/injections/account linkage and writes only the chat identity
// link, language, and the unread counters.
type PatientRecord struct {
	ID              string      `dynamodbav:"id" json:"id"`
	FullName        string      `dynamodbav:"fullName" json:"fullName"`
	Phone           string      `dynamodbav:"phone" json:"phone"`
	AltPhone        string      `dynamodbav:"altPhone,omitempty" json:"altPhone,omitempty"`
	ChatID          string      `dynamodbav:"chatId,omitempty" json:"chatId,omitempty"`
	Language        string      `dynamodbav:"language,omitempty" json:"language,omitempty"`
	AccountID       string      `dynamodbav:"accountId,omitempty" json:"accountId,omitempty"`
	Injections      []Injection `dynamodbav:"injections,omitempty" json:"injections,omitempty"`
	UnreadCount     int         `dynamodbav:"unreadCount,omitempty" json:"unreadCount,omitempty"`
	LastMessageText string      `dynamodbav:"lastMessageText,omitempty" json:"lastMessageText,omitempty"`
	LastMessageAt   string      `dynamodbav:"lastMessageAt,omitempty" json:"lastMessageAt,omitempty"`
}

// Injection is one entry of the patient's injection plan. Dates are the
// strings staff typed in, usually "2006-01-02" or "2006-01-02 15:04".
type Injection struct {
	Date   string `dynamodbav:"date" json:"date"`
	Status string `dynamodbav:"status" json:"status"`
	Drug   string `dynamodbav:"drug,omitempty" json:"drug,omitempty"`
	Notes  string `dynamodbav:"notes,omitempty" json:"notes,omitempty"`
}

// ScheduledOn reports whether the injection is still planned and its stored
// date string starts with the given day (prefix match, staff dates may carry
// a time suffix).
func (i Injection) ScheduledOn(day string) bool {
	return i.Status == InjectionScheduled && len(i.Date) >= len(day) && i.Date[:len(day)] == day
}

// Chat log delivery states.
const (
	ChatLogPending   = "pending"
	ChatLogDelivered = "delivered"
)

// ChatLogEntry is one message of the patient's chat transcript, kept under
// the patient partition for the clinic UI.
type ChatLogEntry struct {
	ID            string `dynamodbav:"id" json:"id"`
	PatientID     string `dynamodbav:"patientId" json:"patientId"`
	Direction     string `dynamodbav:"direction" json:"direction"` // "in" from patient, "out" from clinic
	Text          string `dynamodbav:"text" json:"text"`
	ChatMessageID int64  `dynamodbav:"chatMessageId,omitempty" json:"chatMessageId,omitempty"`
	Delivery      string `dynamodbav:"delivery,omitempty" json:"delivery,omitempty"`
	CreatedAt     string `dynamodbav:"createdAt" json:"createdAt"`
}

// Now formats a timestamp the way records store them.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
