// Package mail dispatches email over SMTP.
package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/shelfstack/lending-go/internal/domain"
)

const (
	serviceName        = "email dispatcher"
	defaultSendTimeout = 30 * time.Second
)

// SMTPDispatcher sends HTML mail through a plain SMTP relay. Every send
// runs under a connection deadline so a hung relay cannot block the
// caller indefinitely.
type SMTPDispatcher struct {
	addr    string
	auth    smtp.Auth
	from    string
	timeout time.Duration
}

// DispatcherOption defines a functional option for configuring an SMTPDispatcher.
type DispatcherOption func(*SMTPDispatcher)

// WithSendTimeout bounds one complete send, dialing included. Non-positive
// values are ignored and the default stays in effect.
func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *SMTPDispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewSMTPDispatcher creates a dispatcher for the given relay address
// ("host:port") and sender. auth may be nil for unauthenticated relays.
func NewSMTPDispatcher(addr string, auth smtp.Auth, from string, options ...DispatcherOption) *SMTPDispatcher {
	dispatcher := &SMTPDispatcher{addr: addr, auth: auth, from: from, timeout: defaultSendTimeout}

	for _, option := range options {
		option(dispatcher)
	}

	return dispatcher
}

// Send dispatches one HTML email. The connection carries a deadline taken
// from the context when it has one, from the send timeout otherwise.
func (d *SMTPDispatcher) Send(ctx context.Context, to string, subject string, htmlBody string) error {
	dialer := net.Dialer{Timeout: d.timeout}

	conn, err := dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return domain.ExternalServiceError{Service: serviceName, Err: err}
	}
	defer conn.Close()

	deadline := time.Now().Add(d.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	if err = conn.SetDeadline(deadline); err != nil {
		return domain.ExternalServiceError{Service: serviceName, Err: err}
	}

	host, _, splitErr := net.SplitHostPort(d.addr)
	if splitErr != nil {
		host = d.addr
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return domain.ExternalServiceError{Service: serviceName, Err: err}
	}
	defer client.Close()

	if d.auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err = client.Auth(d.auth); err != nil {
				return domain.ExternalServiceError{Service: serviceName, Err: err}
			}
		}
	}

	if err = client.Mail(d.from); err != nil {
		return domain.ExternalServiceError{Service: serviceName, Err: err}
	}

	if err = client.Rcpt(to); err != nil {
		return domain.ExternalServiceError{Service: serviceName, Err: err}
	}

	writer, err := client.Data()
	if err != nil {
		return domain.ExternalServiceError{Service: serviceName, Err: err}
	}

	if _, err = writer.Write(d.buildMessage(to, subject, htmlBody)); err != nil {
		return domain.ExternalServiceError{Service: serviceName, Err: err}
	}

	if err = writer.Close(); err != nil {
		return domain.ExternalServiceError{Service: serviceName, Err: err}
	}

	if err = client.Quit(); err != nil {
		return domain.ExternalServiceError{Service: serviceName, Err: err}
	}

	return nil
}

func (d *SMTPDispatcher) buildMessage(to string, subject string, htmlBody string) []byte {
	var message strings.Builder
	fmt.Fprintf(&message, "From: %s\r\n", d.from)
	fmt.Fprintf(&message, "To: %s\r\n", to)
	fmt.Fprintf(&message, "Subject: %s\r\n", subject)
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	message.WriteString("\r\n")
	message.WriteString(htmlBody)

	return []byte(message.String())
}
