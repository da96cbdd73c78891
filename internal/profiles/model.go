package profiles

// Clinician roles.
const (
	RoleAdmin  = "admin"
	RoleDoctor = "doctor"
	RoleStaff  = "staff"
)

// ProfileRecord is a clinician or administrator document. The messaging core
// reads it for doctor routing and the OTP bridge; the clinic app owns it.
type ProfileRecord struct {
	ID         string `dynamodbav:"id" json:"id"`
	FullName   string `dynamodbav:"fullName" json:"fullName"`
	Phone      string `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
	Role       string `dynamodbav:"role" json:"role"`
	AccountID  string `dynamodbav:"accountId,omitempty" json:"accountId,omitempty"`
	ChatHandle string `dynamodbav:"chatHandle,omitempty" json:"chatHandle,omitempty"`
	ChatID     string `dynamodbav:"chatId,omitempty" json:"chatId,omitempty"`
}

// Contact is what a patient gets when they need to reach their clinician:
// a chat link when the clinician has a handle, otherwise a phone link.
type Contact struct {
	Name string
	Link string
}
