package email

import (
	"net"
	"os"
	"strconv"
	"time"
)

// Session holds the resolved transport settings for talking to a mail
// server. It is constructed lazily from the builder configuration the
// first time it is requested, or supplied externally via SetSession, and
// reused afterwards.
type Session struct {
	// Host is the mail server host name.
	Host string

	// Port is the effective submission port: the SSL port when SSL is
	// enabled, the plain SMTP port otherwise.
	Port int

	// SSL indicates implicit TLS for the whole connection.
	SSL bool

	// ConnectionTimeout bounds connection establishment.
	ConnectionTimeout time.Duration

	// Timeout bounds individual I/O operations once connected.
	Timeout time.Duration

	// Bounce is the envelope sender used for delivery-failure notices.
	// When empty, the message sender is used.
	Bounce string

	// Username and Password are the submission credentials.
	Username string
	Password string
}

// AuthEnabled reports whether submission credentials are configured.
func (s *Session) AuthEnabled() bool {
	return s.Username != "" && s.Password != ""
}

// Addr returns the host:port dial address.
func (s *Session) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// SetSession supplies an externally constructed session. Session returns
// it unchanged.
func (e *Email) SetSession(s *Session) { e.session = s }

// Session returns the transport settings, building and caching them on
// first use. A host name must be available from the builder or the
// SMTP_HOST environment fallback; absent both, it fails with
// ErrNoHostname. When SSL is enabled the SSL port (default 465) replaces
// the plain SMTP port.
func (e *Email) Session() (*Session, error) {
	if e.session != nil {
		return e.session, nil
	}

	host := e.hostName
	if host == "" {
		host = os.Getenv(HostEnv)
	}
	if host == "" {
		return nil, ErrNoHostname
	}

	port := e.smtpPort
	if port <= 0 {
		port = DefaultPort
	}
	if e.ssl {
		port = e.sslPort
		if port <= 0 {
			port = DefaultSSLPort
		}
	}

	e.session = &Session{
		Host:              host,
		Port:              port,
		SSL:               e.ssl,
		ConnectionTimeout: e.connectTimeout,
		Timeout:           e.socketTimeout,
		Bounce:            e.bounce,
		Username:          e.username,
		Password:          e.password,
	}
	return e.session, nil
}
