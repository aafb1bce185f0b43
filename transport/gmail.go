// ABOUTME: Gmail API mail transport
// ABOUTME: Sends relance emails as raw RFC 2822 messages through users.messages.send
package transport

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

type GmailSender struct {
	service *gmail.Service
	from    string
}

// NewGmailSender creates a sender. Pass option.WithHTTPClient with an
// authenticated client from HTTPClient.
func NewGmailSender(ctx context.Context, from string, opts ...option.ClientOption) (*GmailSender, error) {
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &GmailSender{service: service, from: from}, nil
}

// Send delivers one email.
func (s *GmailSender) Send(ctx context.Context, destination, subject, body string) error {
	raw := buildMessage(s.from, destination, subject, body)
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}

	sent, err := s.service.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail send to %s: %w", destination, err)
	}
	if sent.Id == "" {
		return fmt.Errorf("gmail send to %s: empty message id", destination)
	}
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
