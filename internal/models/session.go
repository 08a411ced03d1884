package models

// Status is the lifecycle stage of a defense session.
type Status string

const (
	StatusSubmitted       Status = "Submitted"
	StatusDefenseStarted  Status = "Defense Started"
	StatusDefenseComplete Status = "Defense Complete"
	StatusGraded          Status = "Graded"
	StatusReviewed        Status = "Reviewed"
)

var validStatuses = map[Status]bool{
	StatusSubmitted:       true,
	StatusDefenseStarted:  true,
	StatusDefenseComplete: true,
	StatusGraded:          true,
	StatusReviewed:        true,
}

func (s Status) IsValid() bool {
	return validStatuses[s]
}

// Session is one student's submission-through-grading record, keyed by Code.
type Session struct {
	Code             string `json:"code"`
	StudentName      string `json:"studentName"`
	PaperText        string `json:"paperText"`
	Status           Status `json:"status"`
	SubmittedAt      int64  `json:"submittedAt"`
	DefenseStartedAt *int64 `json:"defenseStartedAt,omitempty"`
	DefenseEndedAt   *int64 `json:"defenseEndedAt,omitempty"`
	TranscriptText   string `json:"transcriptText,omitempty"`
	ConversationID   string `json:"conversationId,omitempty"`
	Grade            string `json:"grade,omitempty"`
	Comments         string `json:"comments,omitempty"`
	InstructorNotes  string `json:"instructorNotes,omitempty"`
	FinalGrade       string `json:"finalGrade,omitempty"`
}

// --- Requests / responses ---

// SubmitRequest is the payload for POST /api/submissions.
type SubmitRequest struct {
	Name  string `json:"name"`
	Essay string `json:"essay"`
}

// SubmitResponse is returned from POST /api/submissions. Status is "success"
// or "error"; Success mirrors it for clients that only look at that field.
type SubmitResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// EssayResponse is returned from GET /api/essay.
type EssayResponse struct {
	Success     bool   `json:"success"`
	StudentName string `json:"studentName"`
	Essay       string `json:"essay"`
	WordCount   int    `json:"wordCount"`
}

// QuestionsResponse is returned from GET /api/questions.
type QuestionsResponse struct {
	Success          bool     `json:"success"`
	ContentQuestions []string `json:"contentQuestions"`
	ProcessQuestions []string `json:"processQuestions"`
	TotalQuestions   int      `json:"totalQuestions"`
}

// IngestResponse is returned from POST /webhooks/transcript on success.
type IngestResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse is the flat failure body shared by every endpoint.
type ErrorResponse struct {
	Success        bool   `json:"success"`
	Error          string `json:"error"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ReviewRequest is the payload for POST /api/sessions/{code}/review.
type ReviewRequest struct {
	FinalGrade      string `json:"finalGrade"`
	InstructorNotes string `json:"instructorNotes"`
}

// SessionListResponse is returned from GET /api/sessions.
type SessionListResponse struct {
	Success  bool       `json:"success"`
	Sessions []*Session `json:"sessions"`
}

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	Status       string       `json:"status"`
	DB           ServiceCheck `json:"db"`
	SessionCount int          `json:"sessionCount"`
}

type ServiceCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
