package smtp

import (
	"bufio"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	certs "github.com/shineum/contact-relay/internal/tls"
)

// received is one transaction accepted by the fake relay.
type received struct {
	from     string
	rcpt     []string
	data     string
	tls      bool
	authUser string
}

// fakeServer is a minimal in-process SMTP relay supporting EHLO, STARTTLS,
// AUTH PLAIN, MAIL, RCPT, DATA, RSET, NOOP and QUIT.
type fakeServer struct {
	ln        net.Listener
	tlsConfig *tls.Config
	implicit  bool
	username  string
	password  string
	// rejectRcpt makes RCPT fail with 550 for this address.
	rejectRcpt string

	mu       sync.Mutex
	messages []received
	wg       sync.WaitGroup
}

type fakeOption func(*fakeServer)

func withAuth(user, pass string) fakeOption {
	return func(f *fakeServer) { f.username, f.password = user, pass }
}

func withSTARTTLS(t *testing.T) fakeOption {
	return func(f *fakeServer) { f.tlsConfig = serverTLS(t) }
}

func withImplicitTLS(t *testing.T) fakeOption {
	return func(f *fakeServer) {
		f.tlsConfig = serverTLS(t)
		f.implicit = true
	}
}

func withRejectedRcpt(addr string) fakeOption {
	return func(f *fakeServer) { f.rejectRcpt = addr }
}

func serverTLS(t *testing.T) *tls.Config {
	t.Helper()
	cert, err := certs.GenerateSelfSignedCert()
	require.NoError(t, err)
	return &tls.Config{Certificates: []tls.Certificate{*cert}, MinVersion: tls.VersionTLS12}
}

func startFakeServer(t *testing.T, opts ...fakeOption) *fakeServer {
	t.Helper()

	f := &fakeServer{}
	for _, opt := range opts {
		opt(f)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	if f.implicit {
		ln = tls.NewListener(ln, f.tlsConfig)
	}
	f.ln = ln

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			f.wg.Add(1)
			go func() {
				defer f.wg.Done()
				f.serve(conn)
			}()
		}
	}()

	t.Cleanup(func() {
		ln.Close()
		f.wg.Wait()
	})
	return f
}

func (f *fakeServer) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeServer) accepted() []received {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]received(nil), f.messages...)
}

// fakeSession holds the per-connection protocol state.
type fakeSession struct {
	srv       *fakeServer
	conn      net.Conn
	reader    *bufio.Reader
	writer    *bufio.Writer
	greeted   bool
	tlsActive bool
	authUser  string
	mailFrom  string
	rcptTo    []string
}

func (f *fakeServer) serve(conn net.Conn) {
	s := &fakeSession{
		srv:       f,
		conn:      conn,
		reader:    bufio.NewReader(conn),
		writer:    bufio.NewWriter(conn),
		tlsActive: f.implicit,
	}
	defer func() { s.conn.Close() }()

	s.writeLine("220 fake.test ESMTP")

	for {
		if err := s.conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
			return
		}
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		cmd, arg := parseCommand(line)
		if s.handle(cmd, arg) {
			return
		}
	}
}

func (s *fakeSession) handle(cmd, arg string) bool {
	switch cmd {
	case "EHLO", "HELO":
		s.greeted = true
		s.writeLine("250-fake.test Hello %s", arg)
		if s.srv.tlsConfig != nil && !s.tlsActive {
			s.writeLine("250-STARTTLS")
		}
		if s.srv.username != "" {
			s.writeLine("250-AUTH PLAIN")
		}
		s.writeLine("250 OK")
	case "STARTTLS":
		if s.srv.tlsConfig == nil || s.tlsActive {
			s.writeLine("454 TLS not available")
			return false
		}
		s.writeLine("220 Ready to start TLS")
		tlsConn := tls.Server(s.conn, s.srv.tlsConfig)
		if err := tlsConn.Handshake(); err != nil {
			return true
		}
		s.conn = tlsConn
		s.reader = bufio.NewReader(tlsConn)
		s.writer = bufio.NewWriter(tlsConn)
		s.tlsActive = true
		s.greeted = false
	case "AUTH":
		parts := strings.SplitN(arg, " ", 2)
		if strings.ToUpper(parts[0]) != "PLAIN" || len(parts) != 2 {
			s.writeLine("504 Unrecognized authentication type")
			return false
		}
		user, ok := s.srv.verifyPlain(parts[1])
		if !ok {
			s.writeLine("535 Authentication failed")
			return false
		}
		s.authUser = user
		s.writeLine("235 Authentication successful")
	case "MAIL":
		if s.srv.username != "" && s.authUser == "" {
			s.writeLine("530 Authentication required")
			return false
		}
		if !s.greeted {
			s.writeLine("503 Send EHLO/HELO first")
			return false
		}
		if !strings.HasPrefix(strings.ToUpper(arg), "FROM:") {
			s.writeLine("501 Syntax: MAIL FROM:<address>")
			return false
		}
		s.mailFrom = extractAddress(arg[5:])
		s.rcptTo = nil
		s.writeLine("250 OK")
	case "RCPT":
		if s.mailFrom == "" {
			s.writeLine("503 Send MAIL FROM first")
			return false
		}
		if !strings.HasPrefix(strings.ToUpper(arg), "TO:") {
			s.writeLine("501 Syntax: RCPT TO:<address>")
			return false
		}
		addr := extractAddress(arg[3:])
		if addr == s.srv.rejectRcpt {
			s.writeLine("550 No such user")
			return false
		}
		s.rcptTo = append(s.rcptTo, addr)
		s.writeLine("250 OK")
	case "DATA":
		if len(s.rcptTo) == 0 {
			s.writeLine("503 Send RCPT TO first")
			return false
		}
		s.writeLine("354 Start mail input; end with <CRLF>.<CRLF>")
		var data strings.Builder
		for {
			line, err := s.reader.ReadString('\n')
			if err != nil {
				return true
			}
			trimmed := strings.TrimRight(line, "\r\n")
			if trimmed == "." {
				break
			}
			if strings.HasPrefix(trimmed, "..") {
				line = line[1:]
			}
			data.WriteString(line)
		}
		s.srv.mu.Lock()
		s.srv.messages = append(s.srv.messages, received{
			from:     s.mailFrom,
			rcpt:     s.rcptTo,
			data:     data.String(),
			tls:      s.tlsActive,
			authUser: s.authUser,
		})
		s.srv.mu.Unlock()
		s.mailFrom, s.rcptTo = "", nil
		s.writeLine("250 OK message queued")
	case "RSET":
		s.mailFrom, s.rcptTo = "", nil
		s.writeLine("250 OK")
	case "NOOP":
		s.writeLine("250 OK")
	case "QUIT":
		s.writeLine("221 Bye")
		return true
	default:
		s.writeLine("500 Unrecognized command")
	}
	return false
}

// verifyPlain decodes base64(authzid\0user\0pass) and checks it.
func (f *fakeServer) verifyPlain(encoded string) (string, bool) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	parts := strings.SplitN(string(decoded), "\x00", 3)
	if len(parts) != 3 || parts[1] != f.username || parts[2] != f.password {
		return "", false
	}
	return parts[1], true
}

func (s *fakeSession) writeLine(format string, args ...interface{}) {
	s.writer.WriteString(fmt.Sprintf(format, args...) + "\r\n")
	s.writer.Flush()
}

func parseCommand(line string) (string, string) {
	parts := strings.SplitN(line, " ", 2)
	cmd := strings.ToUpper(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}
	return cmd, arg
}

func extractAddress(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<") {
		end := strings.Index(s, ">")
		if end < 0 {
			return ""
		}
		return s[1:end]
	}
	return s
}
