package notifications

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/domain/notification"
	"github.com/R3E-Network/sentinel/internal/httputil"
	"github.com/R3E-Network/sentinel/internal/logging"
)

// Message is one outbound notification.
type Message struct {
	UserID  int64
	To      string // email address or phone number
	Subject string
	Body    string
	AlertID *int64
}

// Sender delivers messages over one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers email through an SMTP relay.
type SMTPSender struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender returns an email sender for cfg.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

// Send implements Sender.
func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("recipient email is empty")
	}
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	return s.send(addr, auth, s.cfg.From, []string{msg.To}, buildMail(s.cfg.From, msg, time.Now()))
}

func buildMail(from string, msg Message, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", strings.ReplaceAll(msg.Subject, "\n", " "))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	channel notification.Channel
	log     *logging.Logger
}

// NewLogSender returns a sender that logs messages for channel.
func NewLogSender(channel notification.Channel, log *logging.Logger) *LogSender {
	if log == nil {
		log = logging.NewDefault("notifications")
	}
	return &LogSender{channel: channel, log: log}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.WithField("channel", s.channel).
		WithField("user_id", msg.UserID).
		WithField("to", msg.To).
		WithField("subject", msg.Subject).
		Info(msg.Body)
	return nil
}

// WebhookSender posts push notifications to a JSON webhook.
type WebhookSender struct {
	client *httputil.Client
}

// NewWebhookSender returns a push sender posting to url.
func NewWebhookSender(url, token string) *WebhookSender {
	return &WebhookSender{client: httputil.NewClient(httputil.ClientConfig{BaseURL: url, Token: token})}
}

type pushPayload struct {
	UserID  int64  `json:"user_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	AlertID *int64 `json:"alert_id,omitempty"`
}

// Send implements Sender.
func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	resp, err := s.client.Post(ctx, "", pushPayload{UserID: msg.UserID, Title: msg.Subject, Message: msg.Body, AlertID: msg.AlertID})
	if err != nil {
		return err
	}
	return httputil.DecodeResponse(resp, nil)
}
