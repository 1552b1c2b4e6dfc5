// Package smtptest provides a minimal in-process SMTP server for
// exercising the submission transport in tests. It speaks just enough of
// the protocol to accept a message: greeting, EHLO capabilities, AUTH
// PLAIN/LOGIN, optional STARTTLS or implicit TLS, MAIL, RCPT, and DATA
// with dot-unstuffing.
package smtptest

import (
	"bufio"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
)

// Options configures the test server.
type Options struct {
	// Hostname is used in the greeting and EHLO response.
	Hostname string

	// Username and Password enable and verify AUTH when both are set.
	Username string
	Password string

	// TLSConfig enables STARTTLS, or wraps the listener when ImplicitTLS
	// is set.
	TLSConfig *tls.Config

	// ImplicitTLS serves TLS on the raw socket instead of STARTTLS.
	ImplicitTLS bool
}

// Message is one accepted mail transaction.
type Message struct {
	From string
	To   []string
	Data []byte
}

// Server is a running test server. Close it when done.
type Server struct {
	opts Options
	ln   net.Listener
	port int

	wg sync.WaitGroup

	mu       sync.Mutex
	messages []Message
}

// Start launches the server on an ephemeral localhost port.
func Start(opts Options) (*Server, error) {
	if opts.Hostname == "" {
		opts.Hostname = "localhost"
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	if opts.ImplicitTLS {
		if opts.TLSConfig == nil {
			ln.Close()
			return nil, fmt.Errorf("implicit TLS requires a TLS config")
		}
		ln = tls.NewListener(ln, opts.TLSConfig)
	}

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		ln.Close()
		return nil, err
	}
	port, _ := strconv.Atoi(portStr)

	s := &Server{opts: opts, ln: ln, port: port}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Host returns the listen host.
func (s *Server) Host() string { return "127.0.0.1" }

// Port returns the listen port.
func (s *Server) Port() int { return s.port }

// Addr returns the host:port dial address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Close stops accepting connections and waits for in-flight sessions.
func (s *Server) Close() {
	s.ln.Close()
	s.wg.Wait()
}

// Messages returns a copy of every accepted message.
func (s *Server) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) authEnabled() bool {
	return s.opts.Username != "" && s.opts.Password != ""
}

func (s *Server) record(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// handle runs the command loop for one connection.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	writeLine := func(format string, args ...any) {
		fmt.Fprintf(writer, format+"\r\n", args...)
		writer.Flush()
	}

	writeLine("220 %s ESMTP smtptest", s.opts.Hostname)

	tlsActive := s.opts.ImplicitTLS
	authed := false
	var from string
	var to []string

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		cmd, arg := parseCommand(line)

		switch cmd {
		case "EHLO", "HELO":
			writeLine("250-%s Hello %s", s.opts.Hostname, arg)
			if s.opts.TLSConfig != nil && !tlsActive {
				writeLine("250-STARTTLS")
			}
			if s.authEnabled() {
				writeLine("250-AUTH PLAIN LOGIN")
			}
			writeLine("250 OK")

		case "STARTTLS":
			if s.opts.TLSConfig == nil || tlsActive {
				writeLine("454 TLS not available")
				continue
			}
			writeLine("220 Ready to start TLS")
			tlsConn := tls.Server(conn, s.opts.TLSConfig)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			conn = tlsConn
			reader = bufio.NewReader(tlsConn)
			writer = bufio.NewWriter(tlsConn)
			tlsActive = true

		case "AUTH":
			if !s.authEnabled() {
				writeLine("503 AUTH not available")
				continue
			}
			ok := s.handleAuth(arg, reader, writeLine)
			if ok {
				authed = true
				writeLine("235 Authentication successful")
			} else {
				writeLine("535 Authentication failed")
			}

		case "MAIL":
			if s.authEnabled() && !authed {
				writeLine("530 Authentication required")
				continue
			}
			addr := extractAddress(arg)
			if addr == "" {
				writeLine("501 Syntax: MAIL FROM:<address>")
				continue
			}
			from = addr
			to = nil
			writeLine("250 OK")

		case "RCPT":
			addr := extractAddress(arg)
			if addr == "" {
				writeLine("501 Syntax: RCPT TO:<address>")
				continue
			}
			to = append(to, addr)
			writeLine("250 OK")

		case "DATA":
			if from == "" || len(to) == 0 {
				writeLine("503 Send MAIL FROM and RCPT TO first")
				continue
			}
			writeLine("354 Start mail input; end with <CRLF>.<CRLF>")
			data, err := readData(reader)
			if err != nil {
				return
			}
			s.record(Message{From: from, To: to, Data: data})
			from = ""
			to = nil
			writeLine("250 OK message queued")

		case "RSET":
			from = ""
			to = nil
			writeLine("250 OK")

		case "NOOP":
			writeLine("250 OK")

		case "QUIT":
			writeLine("221 Bye")
			return

		default:
			writeLine("500 Unrecognized command")
		}
	}
}

// handleAuth verifies AUTH PLAIN (inline or challenge) and AUTH LOGIN.
func (s *Server) handleAuth(arg string, reader *bufio.Reader, writeLine func(string, ...any)) bool {
	parts := strings.SplitN(arg, " ", 2)
	mechanism := strings.ToUpper(parts[0])

	readLine := func() (string, bool) {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", false
		}
		return strings.TrimRight(line, "\r\n"), true
	}

	switch mechanism {
	case "PLAIN":
		encoded := ""
		if len(parts) > 1 && parts[1] != "" {
			encoded = parts[1]
		} else {
			writeLine("334")
			var ok bool
			if encoded, ok = readLine(); !ok {
				return false
			}
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return false
		}
		// \0username\0password
		fields := strings.SplitN(string(decoded), "\x00", 3)
		if len(fields) != 3 {
			return false
		}
		return fields[1] == s.opts.Username && fields[2] == s.opts.Password

	case "LOGIN":
		writeLine("334 VXNlcm5hbWU6")
		encodedUser, ok := readLine()
		if !ok {
			return false
		}
		writeLine("334 UGFzc3dvcmQ6")
		encodedPass, ok := readLine()
		if !ok {
			return false
		}
		user, err := base64.StdEncoding.DecodeString(encodedUser)
		if err != nil {
			return false
		}
		pass, err := base64.StdEncoding.DecodeString(encodedPass)
		if err != nil {
			return false
		}
		return string(user) == s.opts.Username && string(pass) == s.opts.Password

	default:
		return false
	}
}

// readData reads the DATA payload until the lone-dot terminator, removing
// dot-stuffing.
func readData(reader *bufio.Reader) ([]byte, error) {
	var data strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "." {
			return []byte(data.String()), nil
		}
		if strings.HasPrefix(trimmed, "..") {
			line = line[1:]
		}
		data.WriteString(line)
	}
}

// parseCommand splits an SMTP command line into the verb and its argument.
func parseCommand(line string) (string, string) {
	parts := strings.SplitN(line, " ", 2)
	cmd := strings.ToUpper(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}
	return cmd, arg
}

// extractAddress pulls the address out of a MAIL FROM: / RCPT TO:
// argument, handling both angle-bracket and bare formats.
func extractAddress(raw string) string {
	idx := strings.Index(raw, ":")
	if idx < 0 {
		return ""
	}
	s := strings.TrimSpace(raw[idx+1:])
	if strings.HasPrefix(s, "<") {
		end := strings.Index(s, ">")
		if end < 0 {
			return ""
		}
		return s[1:end]
	}
	return s
}
