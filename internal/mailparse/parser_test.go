package mailparse

import (
	"strings"
	"testing"
	"time"
)

// pdfBase64 is "%PDF-1.4" encoded, enough to stand in for a document body
const pdfBase64 = "JVBERi0xLjQ="

func buildMessage(t *testing.T, headers string, parts ...string) string {
	t.Helper()

	var b strings.Builder
	b.WriteString(headers)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"frontier\"\r\n")
	b.WriteString("\r\n")
	for _, part := range parts {
		b.WriteString("--frontier\r\n")
		b.WriteString(part)
		b.WriteString("\r\n")
	}
	b.WriteString("--frontier--\r\n")
	return b.String()
}

const baseHeaders = "From: dispatch <alerts@mailfax.example.com>\r\n" +
	"To: station54@example.org\r\n" +
	"Subject: Rip and Run - Station 54\r\n" +
	"Message-Id: <20251208143000.ABC123@mailfax.example.com>\r\n" +
	"Date: Mon, 08 Dec 2025 14:30:00 -0500\r\n"

const textPart = "Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Dispatch document attached.\r\n"

func pdfAttachmentPart(filename, contentType string) string {
	return "Content-Type: " + contentType + "\r\n" +
		"Content-Disposition: attachment; filename=\"" + filename + "\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		pdfBase64 + "\r\n"
}

func TestParseReaderExtractsIdentityAndAttachment(t *testing.T) {
	raw := buildMessage(t, baseHeaders, textPart,
		pdfAttachmentPart("incident_123456.pdf", "application/pdf"))

	internalDate := time.Date(2025, 12, 8, 19, 30, 0, 0, time.UTC)
	email, err := ParseReader(strings.NewReader(raw), 42, internalDate)
	if err != nil {
		t.Fatalf("ParseReader error: %v", err)
	}

	if email.UID != 42 {
		t.Errorf("UID = %d, want 42", email.UID)
	}
	if email.MessageID != "20251208143000.ABC123@mailfax.example.com" {
		t.Errorf("MessageID = %q", email.MessageID)
	}
	if email.From != "alerts@mailfax.example.com" {
		t.Errorf("From = %q", email.From)
	}
	if email.Subject != "Rip and Run - Station 54" {
		t.Errorf("Subject = %q", email.Subject)
	}
	if !email.InternalDate.Equal(internalDate) {
		t.Errorf("InternalDate = %v, want %v", email.InternalDate, internalDate)
	}
	if email.TraceID == "" {
		t.Error("TraceID not assigned")
	}

	if len(email.Attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(email.Attachments))
	}
	att := email.Attachments[0]
	if att.Filename != "incident_123456.pdf" {
		t.Errorf("Filename = %q", att.Filename)
	}
	if string(att.Data) != "%PDF-1.4" {
		t.Errorf("Data = %q, want decoded PDF bytes", att.Data)
	}
}

func TestParseReaderOctetStreamGetsPDFExtension(t *testing.T) {
	raw := buildMessage(t, baseHeaders, textPart,
		pdfAttachmentPart("document", "application/octet-stream"))

	email, err := ParseReader(strings.NewReader(raw), 7, time.Now())
	if err != nil {
		t.Fatalf("ParseReader error: %v", err)
	}

	if len(email.Attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(email.Attachments))
	}
	if got := email.Attachments[0].Filename; got != "document.pdf" {
		t.Errorf("Filename = %q, want document.pdf", got)
	}
}

func TestParseReaderSkipsNonDocumentAttachments(t *testing.T) {
	logoPart := "Content-Type: image/png\r\n" +
		"Content-Disposition: attachment; filename=\"logo.png\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"iVBORw0KGgo=\r\n"

	raw := buildMessage(t, baseHeaders, textPart, logoPart,
		pdfAttachmentPart("incident_123456.pdf", "application/pdf"))

	email, err := ParseReader(strings.NewReader(raw), 7, time.Now())
	if err != nil {
		t.Fatalf("ParseReader error: %v", err)
	}

	if len(email.Attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(email.Attachments))
	}
	if got := email.Attachments[0].Filename; got != "incident_123456.pdf" {
		t.Errorf("kept wrong attachment: %q", got)
	}
}

func TestParseReaderUnnamedAttachmentGetsGeneratedName(t *testing.T) {
	unnamedPart := "Content-Type: application/pdf\r\n" +
		"Content-Disposition: attachment\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		pdfBase64 + "\r\n"

	raw := buildMessage(t, baseHeaders, textPart, unnamedPart)

	email, err := ParseReader(strings.NewReader(raw), 99, time.Now())
	if err != nil {
		t.Fatalf("ParseReader error: %v", err)
	}

	if len(email.Attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(email.Attachments))
	}
	name := email.Attachments[0].Filename
	if !strings.HasPrefix(name, "fax_99_") || !strings.HasSuffix(name, ".pdf") {
		t.Errorf("generated name = %q", name)
	}
}

func TestParseReaderInlinePDFIsCollected(t *testing.T) {
	inlinePart := "Content-Type: application/pdf\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		pdfBase64 + "\r\n"

	raw := buildMessage(t, baseHeaders, inlinePart)

	email, err := ParseReader(strings.NewReader(raw), 5, time.Now())
	if err != nil {
		t.Fatalf("ParseReader error: %v", err)
	}

	if len(email.Attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(email.Attachments))
	}
	if string(email.Attachments[0].Data) != "%PDF-1.4" {
		t.Errorf("Data = %q", email.Attachments[0].Data)
	}
}

func TestParseReaderNoAttachments(t *testing.T) {
	raw := buildMessage(t, baseHeaders, textPart)

	email, err := ParseReader(strings.NewReader(raw), 3, time.Now())
	if err != nil {
		t.Fatalf("ParseReader error: %v", err)
	}
	if len(email.Attachments) != 0 {
		t.Errorf("got %d attachments, want 0", len(email.Attachments))
	}
}

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{
			name:     "Plain ASCII",
			input:    "Rip and Run - Station 54",
			expected: "Rip and Run - Station 54",
			wantErr:  false,
		},
		{
			name:     "UTF-8 encoded",
			input:    "=?UTF-8?Q?Rip_and_Run_=E2=80=93_Station_54?=",
			expected: "Rip and Run – Station 54",
			wantErr:  false,
		},
		{
			name:     "ISO-8859-1 encoded",
			input:    "=?ISO-8859-1?Q?Caf=E9?=",
			expected: "Café",
			wantErr:  false,
		},
		{
			name:     "Base64 encoded",
			input:    "=?UTF-8?B?SGVsbG8gV29ybGQ=?=",
			expected: "Hello World",
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeHeader(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeHeader() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.expected {
				t.Errorf("DecodeHeader() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestExtractEmailAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Simple email",
			input:    "alerts@mailfax.example.com",
			expected: "alerts@mailfax.example.com",
		},
		{
			name:     "Email with name",
			input:    "County Dispatch <alerts@mailfax.example.com>",
			expected: "alerts@mailfax.example.com",
		},
		{
			name:     "Email with quotes",
			input:    `"Fax Gateway" <alerts@mailfax.example.com>`,
			expected: "alerts@mailfax.example.com",
		},
		{
			name:     "No email",
			input:    "Just some text",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractEmailAddress(tt.input)
			if got != tt.expected {
				t.Errorf("extractEmailAddress() = %v, want %v", got, tt.expected)
			}
		})
	}
}
