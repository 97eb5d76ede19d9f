// Package smtptest runs an in-process SMTP server for transport tests.
package smtptest

import (
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-smtp"
)

// Message is one accepted submission.
type Message struct {
	From string
	To   []string
	Data []byte
}

// Server accepts mail on 127.0.0.1. Recipients whose local part starts with
// "reject" get a 550, "busy" gets a 451.
type Server struct {
	Host string
	Port int

	login    string
	password string

	mu       sync.Mutex
	messages []Message
}

// Start serves until the test ends. When login is non-empty AUTH PLAIN is
// required and checked against login and password.
func Start(t testing.TB, login, password string) *Server {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}

	s := &Server{login: login, password: password}
	host, port, _ := net.SplitHostPort(listener.Addr().String())
	s.Host = host
	s.Port, _ = strconv.Atoi(port)

	server := smtp.NewServer(&backend{server: s})
	server.Domain = "localhost"
	server.AllowInsecureAuth = true
	server.AuthDisabled = login == ""

	go func() { _ = server.Serve(listener) }()
	t.Cleanup(func() { _ = server.Close() })

	return s
}

func (s *Server) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Server) record(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

type backend struct {
	server *Server
}

func (b *backend) Login(_ *smtp.ConnectionState, username, password string) (smtp.Session, error) {
	if username != b.server.login || password != b.server.password {
		return nil, &smtp.SMTPError{Code: 535, EnhancedCode: smtp.EnhancedCode{5, 7, 8}, Message: "invalid credentials"}
	}
	return &session{server: b.server}, nil
}

func (b *backend) AnonymousLogin(_ *smtp.ConnectionState) (smtp.Session, error) {
	if b.server.login != "" {
		return nil, smtp.ErrAuthRequired
	}
	return &session{server: b.server}, nil
}

type session struct {
	server *Server
	from   string
	to     []string
}

func (s *session) Mail(from string, _ smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *session) Rcpt(to string) error {
	switch {
	case strings.HasPrefix(to, "reject"):
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "mailbox unavailable"}
	case strings.HasPrefix(to, "busy"):
		return &smtp.SMTPError{Code: 451, EnhancedCode: smtp.EnhancedCode{4, 3, 0}, Message: "try again later"}
	}
	s.to = append(s.to, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.server.record(Message{From: s.from, To: append([]string(nil), s.to...), Data: data})
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error {
	return nil
}
