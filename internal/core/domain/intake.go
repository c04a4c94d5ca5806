package domain

import "time"

type Attachment struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
}

type MailMessage struct {
	MessageID   string       `json:"message_id"`
	ThreadID    string       `json:"thread_id,omitempty"`
	Subject     string       `json:"subject,omitempty"`
	Date        time.Time    `json:"date"`
	Attachments []Attachment `json:"attachments"`
}

type IntakeOutcome string

const (
	OutcomeStored           IntakeOutcome = "stored"
	OutcomeDuplicate        IntakeOutcome = "duplicate"
	OutcomeTriaged          IntakeOutcome = "triaged"
	OutcomeRepaired         IntakeOutcome = "repaired"
	OutcomeSkippedMessage   IntakeOutcome = "skipped_message"
	OutcomeSkippedLogged    IntakeOutcome = "skipped_logged"
	OutcomeSkippedPlacehold IntakeOutcome = "skipped_placeholder"
	OutcomeFailed           IntakeOutcome = "failed"
)

// IntakeDecision records what intake did with a single attachment.
type IntakeDecision struct {
	MessageID      string         `json:"message_id"`
	AttachmentName string         `json:"attachment_name"`
	CanonicalName  string         `json:"canonical_name,omitempty"`
	Outcome        IntakeOutcome  `json:"outcome"`
	UniqueID       string         `json:"unique_id,omitempty"`
	StorageRef     string         `json:"storage_ref,omitempty"`
	BufferRow      int            `json:"buffer_row,omitempty"`
	RepeatedRef    int            `json:"repeated_ref,omitempty"`
	Classification Classification `json:"classification"`
	Error          string         `json:"error,omitempty"`
}

type IntakeResult struct {
	RunID      string           `json:"run_id"`
	Company    string           `json:"company"`
	Total      int              `json:"total"`
	Processed  int              `json:"processed"`
	Stored     int              `json:"stored"`
	Duplicates int              `json:"duplicates"`
	Triaged    int              `json:"triaged"`
	Repaired   int              `json:"repaired"`
	Skipped    int              `json:"skipped"`
	Failed     int              `json:"failed"`
	Cancelled  bool             `json:"cancelled"`
	Decisions  []IntakeDecision `json:"decisions"`
}

// IntakeRequest is the input of one intake run for a company.
type IntakeRequest struct {
	Company                        string
	Messages                       []MailMessage
	AlreadyProcessedMessageIDs     []string
	AlreadyProcessedCanonicalNames []string
	Progress                       func(done, total int)
}
