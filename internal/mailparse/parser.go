package mailparse

import (
	"fmt"
	"io"
	"mime"
	"regexp"
	"strings"
	"time"

	"ripandrun-ingest/internal/models"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Parse extracts the fields the pipeline needs from a fetched IMAP message:
// identity headers plus any PDF attachments.
func Parse(msg *imap.Message) (*models.Email, error) {
	section := &imap.BodySectionName{}
	r := msg.GetBody(section)
	if r == nil {
		return nil, io.EOF
	}

	return ParseReader(r, msg.Uid, msg.InternalDate)
}

// ParseReader parses a raw RFC 5322 message. Split out from Parse so tests
// can feed literal MIME text without an IMAP connection.
func ParseReader(r io.Reader, uid uint32, internalDate time.Time) (*models.Email, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, err
	}

	email := &models.Email{
		UID:          uid,
		InternalDate: internalDate,
		TraceID:      uuid.New().String(),
	}

	header := mr.Header

	if id, err := header.MessageID(); err == nil {
		email.MessageID = id
	}
	if email.MessageID == "" {
		email.MessageID = strings.Trim(strings.TrimSpace(header.Get("Message-Id")), "<>")
	}

	email.From = extractEmailAddress(header.Get("From"))

	decodedSubject, err := DecodeHeader(header.Get("Subject"))
	if err != nil {
		return nil, err
	}
	email.Subject = decodedSubject

	// Walk the MIME parts collecting document attachments
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		switch h := p.Header.(type) {
		case *mail.AttachmentHeader:
			att, ok, err := readAttachment(h, p.Body, uid)
			if err != nil {
				return nil, err
			}
			if ok {
				email.Attachments = append(email.Attachments, att)
			}
		case *mail.InlineHeader:
			// Fax gateways often send the PDF as an inline
			// application/octet-stream part with no disposition
			contentType, _, err := h.ContentType()
			if err != nil {
				continue
			}
			if contentType != "application/pdf" && contentType != "application/octet-stream" {
				continue
			}
			data, err := io.ReadAll(p.Body)
			if err != nil {
				continue
			}
			if len(data) == 0 {
				continue
			}
			email.Attachments = append(email.Attachments, models.Attachment{
				Filename: generatedName(uid),
				Data:     data,
			})
		}
	}

	return email, nil
}

// readAttachment decodes one attachment part, applying the document filter:
// PDFs are kept as-is, octet-streams are assumed to be PDFs from the fax
// system and get a .pdf extension, everything else is skipped.
func readAttachment(h *mail.AttachmentHeader, body io.Reader, uid uint32) (models.Attachment, bool, error) {
	filename, err := h.Filename()
	if err != nil {
		filename = ""
	}
	if filename != "" {
		if decoded, err := DecodeHeader(filename); err == nil {
			filename = decoded
		}
	}

	contentType, _, _ := h.ContentType()
	isOctetStream := contentType == "application/octet-stream"
	isPDF := contentType == "application/pdf" || strings.HasSuffix(strings.ToLower(filename), ".pdf")

	if !isPDF && !isOctetStream {
		return models.Attachment{}, false, nil
	}

	if filename == "" {
		filename = generatedName(uid)
	} else if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		filename += ".pdf"
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return models.Attachment{}, false, fmt.Errorf("read attachment %s: %w", filename, err)
	}
	if len(data) == 0 {
		return models.Attachment{}, false, nil
	}

	return models.Attachment{Filename: filename, Data: data}, true, nil
}

func generatedName(uid uint32) string {
	return fmt.Sprintf("fax_%d_%s.pdf", uid, time.Now().Format("20060102_150405"))
}

// Simple regex to extract email address from "From" header, which may contain name and email
func extractEmailAddress(fromHeader string) string {
	re := regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	return re.FindString(fromHeader)
}

// DecodeHeader decodes MIME-encoded headers (e.g., "=?UTF-8?B?...?=") to plain text
func DecodeHeader(encoded string) (string, error) {
	decoder := new(mime.WordDecoder)
	decoded, err := decoder.DecodeHeader(encoded)
	if err != nil {
		return "", err
	}
	return decoded, nil
}
