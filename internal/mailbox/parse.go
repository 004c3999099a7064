// Package mailbox fetches inbound messages from IMAP folders and mbox
// archives and converts them into domain messages.
package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/inward-bound/internal/model"
	"github.com/emersion/go-message/mail"
)

// ParseMessage converts one raw RFC 5322 message into a domain message.
// The body prefers the first text/plain part and falls back to text/html;
// markup stripping happens later in normalization. Attachment bodies are
// decoded from their transfer encoding.
func ParseMessage(raw []byte) (model.Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to parse message: %w", err)
	}

	var msg model.Message
	if id, err := mr.Header.MessageID(); err == nil {
		msg.ID = id
	}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	}
	if date, err := mr.Header.Date(); err == nil {
		msg.ReceivedAt = date
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.Sender = from[0].String()
	}

	var plain, html string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A broken part does not invalidate the parts already read.
			break
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			ctype, _, err := header.ContentType()
			if err != nil {
				continue
			}
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.EqualFold(ctype, "text/plain") && plain == "":
				plain = string(body)
			case strings.EqualFold(ctype, "text/html") && html == "":
				html = string(body)
			}
		case *mail.AttachmentHeader:
			filename, err := header.Filename()
			if err != nil || filename == "" {
				continue
			}
			ctype, _, _ := header.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			msg.Attachments = append(msg.Attachments, model.Attachment{
				Filename: filename,
				MIMEType: ctype,
				RawBytes: body,
			})
		}
	}

	msg.BodyText = plain
	if msg.BodyText == "" {
		msg.BodyText = html
	}

	return msg, nil
}
