package models

import "time"

// UploadRecord registers an object written through the API so a later
// privileged delete can check the caller's upload session.
type UploadRecord struct {
	Path      string
	SessionID string
	FormType  string
	Size      int64
	CreatedAt time.Time
}
