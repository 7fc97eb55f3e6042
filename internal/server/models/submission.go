package models

import (
	"encoding/json"
	"time"
)

// Attachment is one entry of the file_attachments manifest stored with a
// submitted row. The JSON field names are part of the stored format.
type Attachment struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Path     string `json:"path"`
}

// Submission is an inserted form row. Fields holds the sanitized form values
// as a JSON object; Attachments is nil when the form carried no uploaded files.
type Submission struct {
	ID          string
	FormType    string
	Email       string
	Company     string
	Fields      json.RawMessage
	Attachments []Attachment
	CreatedAt   time.Time
}
