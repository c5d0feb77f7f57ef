// Package email delivers account mail for the dev backend.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/resend/resend-go/v2"
)

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var verificationHTML = template.Must(template.New("verify").Parse(
	`<p>Hi {{.Name}}, confirm your email address (the link expires in {{.TTL}}):</p>` +
		`<p><a href="{{.Link}}">{{.Link}}</a></p>`))

// Verification builds the confirm-your-address mail. name is escaped.
func Verification(to, name, link string, ttl time.Duration) (Message, error) {
	data := struct {
		Name, Link, TTL string
	}{name, link, humanize(ttl)}

	var html bytes.Buffer
	if err := verificationHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render verification email: %w", err)
	}
	return Message{
		To:      to,
		Subject: "Confirm your email",
		HTML:    html.String(),
		Text:    fmt.Sprintf("Hi %s, confirm your email address (the link expires in %s):\n%s\n", name, data.TTL, link),
	}, nil
}

func humanize(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return d.String()
}

// LogSender prints mail instead of delivering it, so links can be copied
// from the dev backend's output.
type LogSender struct {
	logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "outgoing email", "to", msg.To, "subject", msg.Subject, "text", msg.Text)
	return nil
}

type ResendSender struct {
	client *resend.Client
	from   string
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("send email to resend: %w", err)
	}
	return nil
}

// NewSender logs in ENV=local and delivers through Resend elsewhere.
func NewSender(env, apiKey, from string, logger *slog.Logger) Sender {
	if env == "local" {
		return &LogSender{logger: logger.With("component", "email")}
	}
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}
