package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"go.uber.org/zap"
)

const (
	SecurityTLS      = "tls"
	SecurityStartTLS = "starttls"
	SecurityNone     = "none"

	defaultDialTimeout    = 10 * time.Second
	defaultSessionTimeout = time.Minute
)

//go:embed templates/mail.html
var templateFS embed.FS

var mailTemplate = template.Must(template.ParseFS(templateFS, "templates/mail.html"))

type mailView struct {
	Title string
	Text  string
}

// SMTPConfig configures the email transport.
type SMTPConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Login    string
	Password string
	From     string
	FromName string
	Security string

	DialTimeout time.Duration
	// TLSConfig overrides the client TLS settings for tls and starttls.
	TLSConfig *tls.Config
}

// EmailChannel renders a notification into an HTML message and submits it
// over SMTP, one session per message.
type EmailChannel struct {
	cfg    SMTPConfig
	logger *zap.Logger
	now    func() time.Time
}

var _ Channel = (*EmailChannel)(nil)

func NewEmailChannel(cfg SMTPConfig, logger *zap.Logger) (*EmailChannel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.Security = strings.ToLower(strings.TrimSpace(cfg.Security))
	if cfg.Security == "" {
		cfg.Security = SecurityTLS
	}
	switch cfg.Security {
	case SecurityTLS, SecurityStartTLS, SecurityNone:
	default:
		return nil, fmt.Errorf("unsupported smtp security %q", cfg.Security)
	}

	if cfg.Enabled {
		if strings.TrimSpace(cfg.Host) == "" {
			return nil, fmt.Errorf("smtp host is required")
		}
		if cfg.Port <= 0 {
			return nil, fmt.Errorf("smtp port must be positive")
		}
		if strings.TrimSpace(cfg.From) == "" {
			return nil, fmt.Errorf("smtp sender address is required")
		}
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}

	return &EmailChannel{cfg: cfg, logger: logger, now: time.Now}, nil
}

func (c *EmailChannel) Deliver(ctx context.Context, n domain.Notification) error {
	address := strings.TrimSpace(n.RecipientAddress)
	if address == "" {
		return &Error{Channel: domain.ChannelEmail, Message: "recipient address is empty"}
	}

	message, err := c.compose(n, address)
	if err != nil {
		return err
	}

	if !c.cfg.Enabled {
		c.logger.Info("smtp disabled, email not transmitted",
			zap.String("notificationId", n.ID),
			zap.String("recipientAddress", address),
			zap.String("subject", n.Subject),
			zap.Int("size", len(message)),
		)
		return nil
	}

	return c.send(ctx, address, message)
}

func (c *EmailChannel) compose(n domain.Notification, address string) ([]byte, error) {
	var body bytes.Buffer
	if err := mailTemplate.Execute(&body, mailView{Title: n.Subject, Text: n.Message}); err != nil {
		return nil, &Error{Channel: domain.ChannelEmail, Message: "failed to render template", Cause: err}
	}

	var header mail.Header
	header.SetDate(c.now())
	header.SetAddressList("From", []*mail.Address{{Name: c.cfg.FromName, Address: c.cfg.From}})
	header.SetAddressList("To", []*mail.Address{{Name: n.RecipientName, Address: address}})
	header.SetSubject(n.Subject)
	header.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	if err := header.GenerateMessageIDWithHostname(c.messageIDHost()); err != nil {
		return nil, &Error{Channel: domain.ChannelEmail, Message: "failed to generate message id", Cause: err}
	}

	var out bytes.Buffer
	writer, err := mail.CreateSingleInlineWriter(&out, header)
	if err != nil {
		return nil, &Error{Channel: domain.ChannelEmail, Message: "failed to build message", Cause: err}
	}
	if _, err := writer.Write(body.Bytes()); err != nil {
		return nil, &Error{Channel: domain.ChannelEmail, Message: "failed to build message", Cause: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &Error{Channel: domain.ChannelEmail, Message: "failed to build message", Cause: err}
	}

	return out.Bytes(), nil
}

func (c *EmailChannel) messageIDHost() string {
	if at := strings.LastIndex(c.cfg.From, "@"); at >= 0 && at < len(c.cfg.From)-1 {
		return c.cfg.From[at+1:]
	}
	if c.cfg.Host != "" {
		return c.cfg.Host
	}
	return "localhost"
}

func (c *EmailChannel) send(ctx context.Context, to string, message []byte) error {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))

	dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return classifySMTPError("dial failed", err)
	}

	deadline := time.Now().Add(defaultSessionTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	if c.cfg.Security == SecurityTLS {
		tlsConn := tls.Client(conn, c.tlsConfig())
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return classifySMTPError("tls handshake failed", err)
		}
		conn = tlsConn
	}

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return classifySMTPError("greeting failed", err)
	}
	defer client.Close()

	if c.cfg.Security == SecurityStartTLS {
		if err := client.StartTLS(c.tlsConfig()); err != nil {
			return classifySMTPError("starttls failed", err)
		}
	}
	if c.cfg.Login != "" {
		// Auth rejection is a configuration fault; keep the message queued.
		if err := client.Auth(sasl.NewPlainClient("", c.cfg.Login, c.cfg.Password)); err != nil {
			deliveryErr := classifySMTPError("authentication failed", err)
			deliveryErr.Transient = true
			return deliveryErr
		}
	}

	if err := client.Mail(c.cfg.From, nil); err != nil {
		return classifySMTPError("sender rejected", err)
	}
	if err := client.Rcpt(to); err != nil {
		return classifySMTPError("recipient rejected", err)
	}

	writer, err := client.Data()
	if err != nil {
		return classifySMTPError("data rejected", err)
	}
	if _, err := writer.Write(message); err != nil {
		_ = writer.Close()
		return classifySMTPError("message write failed", err)
	}
	if err := writer.Close(); err != nil {
		return classifySMTPError("message rejected", err)
	}

	if err := client.Quit(); err != nil {
		c.logger.Debug("smtp quit failed", zap.Error(err))
	}
	return nil
}

func (c *EmailChannel) tlsConfig() *tls.Config {
	if c.cfg.TLSConfig != nil {
		return c.cfg.TLSConfig.Clone()
	}
	return &tls.Config{ServerName: c.cfg.Host, MinVersion: tls.VersionTLS12}
}

// classifySMTPError treats 4xx replies and transport failures as transient
// and 5xx replies as permanent.
func classifySMTPError(message string, err error) *Error {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return &Error{
			Channel:   domain.ChannelEmail,
			Code:      smtpErr.Code,
			Message:   message,
			Transient: smtpErr.Code/100 != 5,
			Cause:     err,
		}
	}

	return &Error{
		Channel:   domain.ChannelEmail,
		Message:   message,
		Transient: !errors.Is(err, context.Canceled),
		Cause:     err,
	}
}
