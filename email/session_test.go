package email

import (
	"errors"
	"testing"
	"time"
)

func TestSession_External(t *testing.T) {
	t.Parallel()

	supplied := &Session{Host: "smtp.example.com", Port: 587}
	e := New()
	e.SetSession(supplied)

	got, err := e.Session()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != supplied {
		t.Error("Session did not return the supplied session unchanged")
	}
}

func TestSession_NoHost(t *testing.T) {
	t.Setenv(HostEnv, "")

	e := New()
	_, err := e.Session()
	if !errors.Is(err, ErrNoHostname) {
		t.Fatalf("Session: got error %v, want ErrNoHostname", err)
	}
	if got := err.Error(); got != "Cannot find valid hostname for mail session" {
		t.Errorf("error message: got %q", got)
	}
}

func TestSession_HostEnvFallback(t *testing.T) {
	t.Setenv(HostEnv, "smtp.fallback.example")

	e := New()
	sess, err := e.Session()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.Host != "smtp.fallback.example" {
		t.Errorf("Host: got %q, want %q", sess.Host, "smtp.fallback.example")
	}
	if sess.Port != DefaultPort {
		t.Errorf("Port: got %d, want %d", sess.Port, DefaultPort)
	}
}

func TestSession_Advanced(t *testing.T) {
	t.Parallel()

	e := New()
	e.SetHostName("smtp.advanced.com")
	e.SetSMTPPort(2525)
	e.SetConnectionTimeout(5 * time.Second)
	e.SetSocketTimeout(4 * time.Second)
	if err := e.SetBounceAddress("bounce@advanced.com"); err != nil {
		t.Fatalf("SetBounceAddress: %v", err)
	}
	e.SetSSLOnConnect(true)
	e.SetAuthentication("user", "pass")

	sess, err := e.Session()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.Host != "smtp.advanced.com" {
		t.Errorf("Host: got %q, want %q", sess.Host, "smtp.advanced.com")
	}
	// With SSL enabled the SSL port (default 465) replaces the SMTP port.
	if sess.Port != DefaultSSLPort {
		t.Errorf("Port: got %d, want %d", sess.Port, DefaultSSLPort)
	}
	if !sess.SSL {
		t.Error("SSL: got false, want true")
	}
	if sess.Bounce != "bounce@advanced.com" {
		t.Errorf("Bounce: got %q, want %q", sess.Bounce, "bounce@advanced.com")
	}
	if sess.Timeout != 4*time.Second {
		t.Errorf("Timeout: got %v, want %v", sess.Timeout, 4*time.Second)
	}
	if sess.ConnectionTimeout != 5*time.Second {
		t.Errorf("ConnectionTimeout: got %v, want %v", sess.ConnectionTimeout, 5*time.Second)
	}
	if !sess.AuthEnabled() {
		t.Error("AuthEnabled: got false, want true")
	}
}

func TestSession_ExplicitSSLPort(t *testing.T) {
	t.Parallel()

	e := New()
	e.SetHostName("smtp.example.com")
	e.SetSSLOnConnect(true)
	e.SetSSLPort(8465)

	sess, err := e.Session()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.Port != 8465 {
		t.Errorf("Port: got %d, want 8465", sess.Port)
	}
}

func TestSession_Cached(t *testing.T) {
	t.Parallel()

	e := New()
	e.SetHostName("smtp.example.com")
	first, err := e.Session()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Later configuration changes do not rebuild the cached session.
	e.SetSMTPPort(2525)
	second, err := e.Session()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Error("Session was rebuilt instead of reused")
	}
	if second.Port != DefaultPort {
		t.Errorf("Port: got %d, want %d", second.Port, DefaultPort)
	}
}

func TestSessionAddr(t *testing.T) {
	t.Parallel()

	s := &Session{Host: "smtp.example.com", Port: 587}
	if got := s.Addr(); got != "smtp.example.com:587" {
		t.Errorf("Addr: got %q, want %q", got, "smtp.example.com:587")
	}
}
