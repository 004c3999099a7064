// Package model defines the core domain types shared across the application.
package model

import (
	"path"
	"strings"
	"time"
)

// Message is one inbound notification fetched from the mailbox. It is
// immutable once fetched and lives only for a single pipeline pass.
type Message struct {
	ReceivedAt  time.Time
	ID          string
	Sender      string
	Subject     string
	BodyText    string
	Attachments []Attachment
}

// Attachment is a file carried by a Message and owned exclusively by it.
type Attachment struct {
	Filename string
	MIMEType string
	RawBytes []byte
}

// IsPDF reports whether the attachment looks like a PDF document.
func (a Attachment) IsPDF() bool {
	if strings.EqualFold(a.MIMEType, "application/pdf") {
		return true
	}
	return strings.EqualFold(path.Ext(a.Filename), ".pdf")
}

// SenderAddress returns the bare address portion of the sender, lowercased.
// Handles both "a@b.com" and "Name <a@b.com>" forms.
func (m Message) SenderAddress() string {
	s := strings.TrimSpace(m.Sender)
	if open := strings.LastIndex(s, "<"); open >= 0 {
		s = s[open+1:]
		if close := strings.Index(s, ">"); close >= 0 {
			s = s[:close]
		}
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// SenderDomain returns the domain part of the sender address, lowercased,
// or "" when the sender has no parseable domain.
func (m Message) SenderDomain() string {
	addr := m.SenderAddress()
	at := strings.LastIndex(addr, "@")
	if at < 0 || at == len(addr)-1 {
		return ""
	}
	return addr[at+1:]
}
