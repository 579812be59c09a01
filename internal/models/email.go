package models

import "time"

// Email represents a normalized parsed email message
type Email struct {
	UID          uint32
	MessageID    string
	From         string
	Subject      string
	Attachments  []Attachment
	InternalDate time.Time
	TraceID      string
}

// Attachment is a decoded MIME part carrying document bytes
type Attachment struct {
	Filename string
	Data     []byte
}
