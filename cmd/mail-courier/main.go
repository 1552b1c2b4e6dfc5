// Package main is the entry point for the mail courier CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shineum/mail-courier-lite/email"
	"github.com/shineum/mail-courier-lite/internal/config"
	"github.com/shineum/mail-courier-lite/internal/dkim"
	"github.com/shineum/mail-courier-lite/internal/parser"
	"github.com/shineum/mail-courier-lite/internal/transport/graph"
	"github.com/shineum/mail-courier-lite/internal/transport/ses"
	"github.com/shineum/mail-courier-lite/internal/transport/smtp"
	"github.com/shineum/mail-courier-lite/internal/transport/stdout"
	couriertls "github.com/shineum/mail-courier-lite/internal/tls"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML configuration file (optional)")
		provider   = flag.String("provider", "", "delivery backend: smtp, ses, graph, or stdout (overrides config)")
		emlPath    = flag.String("eml", "", "send an existing RFC 5322 message file instead of composing one")

		from     = flag.String("from", "", "sender address")
		fromName = flag.String("from-name", "", "sender display name")
		subject  = flag.String("subject", "", "message subject")
		text     = flag.String("text", "", "plain text body")
		html     = flag.String("html", "", "HTML body")

		to      stringList
		cc      stringList
		bcc     stringList
		replyTo stringList
		headers stringList
		attach  stringList
	)
	flag.Var(&to, "to", "recipient address (repeatable)")
	flag.Var(&cc, "cc", "carbon copy address (repeatable)")
	flag.Var(&bcc, "bcc", "blind carbon copy address (repeatable)")
	flag.Var(&replyTo, "reply-to", "reply-to address (repeatable)")
	flag.Var(&headers, "header", "custom header as 'Name: Value' (repeatable)")
	flag.Var(&attach, "attach", "file to attach (repeatable)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging.Level)

	if *provider != "" {
		cfg.Provider = strings.ToLower(*provider)
	}

	// Graceful cancellation on SIGTERM/SIGINT
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, cancelling", "signal", sig)
		cancel()
	}()

	transport := selectTransport(ctx, cfg)

	if *emlPath != "" {
		if err := sendFile(ctx, transport, *emlPath); err != nil {
			slog.Error("delivery failed", "transport", transport.Name(), "error", err)
			os.Exit(1)
		}
		slog.Info("message sent", "transport", transport.Name(), "source", *emlPath)
		return
	}

	e := email.New()
	applySMTPSettings(e, cfg)

	if err := composeMessage(e, composeOptions{
		From:     *from,
		FromName: *fromName,
		Subject:  *subject,
		Text:     *text,
		HTML:     *html,
		To:       to,
		Cc:       cc,
		Bcc:      bcc,
		ReplyTo:  replyTo,
		Headers:  headers,
		Attach:   attach,
	}); err != nil {
		slog.Error("invalid message", "error", err)
		os.Exit(1)
	}

	if err := e.Send(ctx, transport); err != nil {
		slog.Error("delivery failed", "transport", transport.Name(), "error", err)
		os.Exit(1)
	}

	msg := e.Message()
	slog.Info("message sent",
		"transport", transport.Name(),
		"message_id", msg.MessageID,
		"recipients", len(msg.Recipients()),
	)
}

// composeOptions carries the flag values used to build a message.
type composeOptions struct {
	From     string
	FromName string
	Subject  string
	Text     string
	HTML     string
	To       []string
	Cc       []string
	Bcc      []string
	ReplyTo  []string
	Headers  []string
	Attach   []string
}

// composeMessage applies the flag values to the builder.
func composeMessage(e *email.Email, opts composeOptions) error {
	if opts.From != "" {
		if opts.FromName != "" {
			if err := e.SetFromWithName(opts.From, opts.FromName); err != nil {
				return err
			}
		} else if err := e.SetFrom(opts.From); err != nil {
			return err
		}
	}
	if len(opts.To) > 0 {
		if err := e.AddTo(opts.To...); err != nil {
			return err
		}
	}
	if len(opts.Cc) > 0 {
		if err := e.AddCc(opts.Cc...); err != nil {
			return err
		}
	}
	if len(opts.Bcc) > 0 {
		if err := e.AddBcc(opts.Bcc...); err != nil {
			return err
		}
	}
	for _, addr := range opts.ReplyTo {
		if err := e.AddReplyTo(addr, ""); err != nil {
			return err
		}
	}
	for _, h := range opts.Headers {
		name, value, found := strings.Cut(h, ":")
		if !found {
			return fmt.Errorf("invalid header %q, want 'Name: Value'", h)
		}
		if err := e.AddHeader(strings.TrimSpace(name), strings.TrimSpace(value)); err != nil {
			return err
		}
	}

	e.SetSubject(opts.Subject)

	switch {
	case opts.HTML != "" || len(opts.Attach) > 0:
		body := &email.Multipart{Text: opts.Text, HTML: opts.HTML}
		for _, path := range opts.Attach {
			if err := body.AttachFile(path); err != nil {
				return err
			}
		}
		e.SetBody(body)
	case opts.Text != "":
		e.SetText(opts.Text)
	}

	return nil
}

// sendFile parses an RFC 5322 file and hands it to the transport as-is.
func sendFile(ctx context.Context, t email.Transport, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read message file: %w", err)
	}
	msg, err := parser.Parse(raw)
	if err != nil {
		return err
	}
	return t.Send(ctx, msg)
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// applySMTPSettings copies the submission settings from the configuration
// onto the builder so its session resolves to the configured server.
func applySMTPSettings(e *email.Email, cfg *config.Config) {
	if cfg.SMTP.Host != "" {
		e.SetHostName(cfg.SMTP.Host)
	}
	e.SetSMTPPort(cfg.SMTP.Port)
	e.SetSSLPort(cfg.SMTP.SSLPort)
	e.SetSSLOnConnect(cfg.SMTP.SSL)
	e.SetConnectionTimeout(cfg.SMTP.ConnectTimeout.Std())
	e.SetSocketTimeout(cfg.SMTP.Timeout.Std())
	if cfg.AuthEnabled() {
		e.SetAuthentication(cfg.SMTP.Username, cfg.SMTP.Password)
	}
	if cfg.SMTP.Bounce != "" {
		if err := e.SetBounceAddress(cfg.SMTP.Bounce); err != nil {
			slog.Error("invalid bounce address", "address", cfg.SMTP.Bounce, "error", err)
			os.Exit(1)
		}
	}
}

// selectTransport chooses the delivery backend. An explicit provider
// (flag or config) takes precedence; otherwise the first configured
// backend wins, falling back to stdout.
func selectTransport(ctx context.Context, cfg *config.Config) email.Transport {
	switch cfg.Provider {
	case "smtp":
		if !cfg.SMTPConfigured() && os.Getenv(email.HostEnv) == "" {
			slog.Error("smtp transport selected but SMTP_HOST is required")
			os.Exit(1)
		}
		return newSMTPTransport(cfg)

	case "ses":
		if !cfg.SESConfigured() {
			slog.Error("SES transport selected but SES_REGION and SES_SENDER are required")
			os.Exit(1)
		}
		slog.Info("using AWS SES transport",
			"region", cfg.SES.Region,
			"sender", cfg.SES.Sender,
		)
		t, err := ses.New(ctx, ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
		})
		if err != nil {
			slog.Error("failed to create SES transport", "error", err)
			os.Exit(1)
		}
		return t

	case "graph":
		if !cfg.GraphConfigured() {
			slog.Error("Graph transport selected but GRAPH_TENANT_ID, GRAPH_CLIENT_ID, GRAPH_CLIENT_SECRET, and GRAPH_SENDER are required")
			os.Exit(1)
		}
		slog.Info("using Microsoft Graph transport",
			"sender", cfg.Graph.Sender,
		)
		return graph.New(graph.Config{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Sender:       cfg.Graph.Sender,
		})

	case "stdout":
		slog.Info("using stdout transport")
		return stdout.New()

	case "":
		// Auto-detection: SMTP first, then the API backends
		if cfg.SMTPConfigured() {
			return newSMTPTransport(cfg)
		}
		if cfg.GraphConfigured() {
			slog.Info("using Microsoft Graph transport (auto-detected)",
				"sender", cfg.Graph.Sender,
			)
			return graph.New(graph.Config{
				TenantID:     cfg.Graph.TenantID,
				ClientID:     cfg.Graph.ClientID,
				ClientSecret: cfg.Graph.ClientSecret,
				Sender:       cfg.Graph.Sender,
			})
		}
		if cfg.SESConfigured() {
			slog.Info("using AWS SES transport (auto-detected)",
				"region", cfg.SES.Region,
				"sender", cfg.SES.Sender,
			)
			t, err := ses.New(ctx, ses.Config{
				Region:          cfg.SES.Region,
				AccessKeyID:     cfg.SES.AccessKeyID,
				SecretAccessKey: cfg.SES.SecretAccessKey,
			})
			if err != nil {
				slog.Error("failed to create SES transport", "error", err)
				os.Exit(1)
			}
			return t
		}
		slog.Info("no transport configured, using stdout transport")
		return stdout.New()

	default:
		slog.Error("unknown provider", "provider", cfg.Provider)
		os.Exit(1)
		return nil
	}
}

// newSMTPTransport builds the SMTP transport from the configuration,
// wiring in client TLS settings and the DKIM signer when configured.
func newSMTPTransport(cfg *config.Config) email.Transport {
	session := sessionFromConfig(cfg)

	var opts []smtp.Option

	if cfg.TLS.ServerName != "" || cfg.TLS.CAFile != "" || cfg.TLS.InsecureSkipVerify {
		serverName := cfg.TLS.ServerName
		if serverName == "" {
			serverName = session.Host
		}
		tlsCfg, err := couriertls.ClientConfig(serverName, cfg.TLS.CAFile, cfg.TLS.InsecureSkipVerify)
		if err != nil {
			slog.Error("failed to build TLS config", "error", err)
			os.Exit(1)
		}
		opts = append(opts, smtp.WithTLSConfig(tlsCfg))
	}

	if cfg.DKIMConfigured() {
		signer, err := dkim.NewSigner(cfg.DKIM.Domain, cfg.DKIM.Selector, cfg.DKIM.KeyFile)
		if err != nil {
			slog.Error("failed to load DKIM key", "error", err)
			os.Exit(1)
		}
		opts = append(opts, smtp.WithSigner(signer.Sign))
		slog.Info("DKIM signing enabled",
			"domain", cfg.DKIM.Domain,
			"selector", cfg.DKIM.Selector,
		)
	}

	slog.Info("using SMTP transport",
		"host", session.Host,
		"port", session.Port,
		"ssl", session.SSL,
		"auth_enabled", session.AuthEnabled(),
	)

	return smtp.New(session, opts...)
}

// sessionFromConfig resolves the configuration into submission settings,
// applying the SSL port when SSL-on-connect is enabled.
func sessionFromConfig(cfg *config.Config) *email.Session {
	host := cfg.SMTP.Host
	if host == "" {
		host = os.Getenv(email.HostEnv)
	}
	port := cfg.SMTP.Port
	if cfg.SMTP.SSL {
		port = cfg.SMTP.SSLPort
	}
	return &email.Session{
		Host:              host,
		Port:              port,
		SSL:               cfg.SMTP.SSL,
		ConnectionTimeout: cfg.SMTP.ConnectTimeout.Std(),
		Timeout:           cfg.SMTP.Timeout.Std(),
		Bounce:            cfg.SMTP.Bounce,
		Username:          cfg.SMTP.Username,
		Password:          cfg.SMTP.Password,
	}
}
