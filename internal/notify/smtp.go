package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
)

// SMTPConfig holds mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Sender   string
	Password string
}

// SMTPNotifier emails passcodes through a STARTTLS-capable relay.
type SMTPNotifier struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPNotifier creates a notifier for the given relay.
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, send: smtp.SendMail}
}

// Send emails the passcode to the destination address.
func (n *SMTPNotifier) Send(ctx context.Context, destination, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if destination == "" {
		return fmt.Errorf("smtp: empty destination address")
	}

	msg := buildOTPMessage(n.cfg.Sender, destination, code)
	addr := net.JoinHostPort(n.cfg.Host, n.cfg.Port)
	auth := smtp.PlainAuth("", n.cfg.Sender, n.cfg.Password, n.cfg.Host)

	if err := n.send(addr, auth, n.cfg.Sender, []string{destination}, msg); err != nil {
		return fmt.Errorf("smtp: send passcode to %s: %w", destination, err)
	}
	return nil
}

func buildOTPMessage(from, to, code string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	b.WriteString("Subject: Your OTP for Account Verification\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Your OTP is: %s\r\n", code)
	return []byte(b.String())
}

var _ Notifier = (*SMTPNotifier)(nil)
