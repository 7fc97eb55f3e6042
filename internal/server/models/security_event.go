package models

import (
	"encoding/json"
	"time"
)

// SecurityEvent is one observation recorded by the validators, the limiter
// or the pattern monitor. Events are written in batches and never read back
// by the intake flow.
type SecurityEvent struct {
	Timestamp  time.Time
	EventType  string
	EventData  json.RawMessage
	Suspicious bool
	UserAgent  string
	URL        string
}

// Event types emitted by the submission pipeline.
const (
	EventValidationFailed  = "validation_failed"
	EventSecurityViolation = "security_violation"
	EventRateLimited       = "rate_limited"
	EventSuspicious        = "suspicious_submission"
	EventBlocked           = "blocked_submission"
	EventSubmitted         = "form_submitted"
	EventUploadRejected    = "upload_rejected"
	EventPrivilegedDelete  = "privileged_delete"
	EventDeleteRefused     = "delete_refused"
)
