package email

import (
	"context"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"

	contractx "github.com/attachehq/attache/agent/contract"
	logx "github.com/attachehq/attache/pkg/logger"
)

// Config carries the operator's mailbox credentials. Defaults target Gmail;
// PASSWORD is an app password there, never the account password.
type Config struct {
	Address    string        `envconfig:"ADDRESS" split_words:"true"`
	Password   string        `envconfig:"PASSWORD" split_words:"true"`
	SMTPServer string        `envconfig:"SMTP_SERVER" split_words:"true" default:"smtp.gmail.com"`
	SMTPPort   int           `envconfig:"SMTP_PORT" split_words:"true" default:"587"`
	IMAPServer string        `envconfig:"IMAP_SERVER" split_words:"true" default:"imap.gmail.com"`
	IMAPPort   int           `envconfig:"IMAP_PORT" split_words:"true" default:"993"`
	Timeout    time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

func (c Config) IsConfigured() bool {
	return strings.TrimSpace(c.Address) != "" && strings.TrimSpace(c.Password) != ""
}

type (
	sessionDialer func(cfg Config) (imapSession, error)
	sendFunc      func(ctx context.Context, cfg Config, msg *mail.Msg) error
)

// Adapter executes email actions: SMTP submission for sends, short-lived
// IMAP sessions for reads. Both network seams are injectable for tests.
type Adapter struct {
	cfg  Config
	dial sessionDialer
	send sendFunc
	log  zerolog.Logger
}

var _ contractx.Adapter = (*Adapter)(nil)

type Option func(*Adapter)

func WithSessionDialer(dial sessionDialer) Option {
	return func(a *Adapter) { a.dial = dial }
}

func WithSender(send sendFunc) Option {
	return func(a *Adapter) { a.send = send }
}

func New(cfg Config, opts ...Option) (*Adapter, error) {
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("%w: email address and password are required", contractx.ErrInvalidConfig)
	}
	cfg.Address = strings.TrimSpace(cfg.Address)
	a := &Adapter{
		cfg:  cfg,
		dial: dialIMAP,
		send: smtpSend,
		log:  logx.With("email"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Service() string { return "email" }

func (a *Adapter) Actions() []contractx.Action {
	return []contractx.Action{
		{
			Name:        "send_email",
			Service:     "email",
			Description: "Send an email from the operator's account.",
			Params: []contractx.Param{
				{Name: "to", Type: contractx.TypeString, Required: true, Description: "Recipient email address"},
				{Name: "subject", Type: contractx.TypeString, Required: true, Description: "Subject line"},
				{Name: "body", Type: contractx.TypeString, Required: true, Description: "Plain-text message body"},
				{Name: "cc", Type: contractx.TypeString, Required: false, Description: "Optional CC address"},
			},
			Format: formatSend,
		},
		{
			Name:        "get_unread_count",
			Service:     "email",
			Description: "Count the unread emails in the inbox.",
			Format:      formatUnread,
		},
		{
			Name:        "read_emails",
			Service:     "email",
			Description: "List the most recent emails in a folder.",
			Params: []contractx.Param{
				{Name: "count", Type: contractx.TypeInteger, Required: false, Description: "How many emails to list, 1-50 (default 5)"},
				{Name: "folder", Type: contractx.TypeString, Required: false, Description: "inbox, sent, drafts, spam, trash, starred, important or all (default inbox)"},
			},
			Format: formatRecent,
		},
		{
			Name:        "search_emails",
			Service:     "email",
			Description: "Search inbox emails by sender or subject keyword.",
			Params: []contractx.Param{
				{Name: "query", Type: contractx.TypeString, Required: true, Description: "Keyword to match against subject and sender"},
				{Name: "count", Type: contractx.TypeInteger, Required: false, Description: "Maximum matches to return, 1-50 (default 10)"},
			},
			Format: formatSearch,
		},
	}
}

func (a *Adapter) Execute(ctx context.Context, action string, params contractx.ParameterSet) (contractx.Result, error) {
	switch action {
	case "send_email":
		return a.sendEmail(ctx, params), nil
	case "get_unread_count":
		return a.unreadCount(), nil
	case "read_emails":
		return a.recentEmails(params), nil
	case "search_emails":
		return a.searchEmails(params), nil
	default:
		return contractx.Result{}, fmt.Errorf("%w: email adapter does not own %q", contractx.ErrActionNotFound, action)
	}
}

// sendEmail validates every address before any network activity: a bad
// recipient must never cost an SMTP dial.
func (a *Adapter) sendEmail(ctx context.Context, params contractx.ParameterSet) contractx.Result {
	to := params.String("to")
	subject := params.String("subject")
	body := params.String("body")
	cc := params.String("cc")

	if _, err := netmail.ParseAddress(to); err != nil {
		return contractx.Fail(contractx.FailInvalidInput, "%q is not a valid email address", to)
	}
	if cc != "" {
		if _, err := netmail.ParseAddress(cc); err != nil {
			return contractx.Fail(contractx.FailInvalidInput, "cc address %q is not valid", cc)
		}
	}

	msg := mail.NewMsg()
	if err := msg.From(a.cfg.Address); err != nil {
		return contractx.Fail(contractx.FailInvalidInput, "configured sender address %q is not valid", a.cfg.Address)
	}
	if err := msg.To(to); err != nil {
		return contractx.Fail(contractx.FailInvalidInput, "%q is not a valid email address", to)
	}
	if cc != "" {
		if err := msg.Cc(cc); err != nil {
			return contractx.Fail(contractx.FailInvalidInput, "cc address %q is not valid", cc)
		}
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	messageID := fmt.Sprintf("%s@attache", uuid.NewString())
	msg.SetMessageIDWithValue(messageID)

	if err := a.send(ctx, a.cfg, msg); err != nil {
		a.log.Debug().Err(err).Str("to", to).Msg("smtp send failed")
		return sendFailure(err)
	}

	a.log.Debug().Str("to", to).Str("message_id", messageID).Msg("email sent")
	payload := map[string]any{"to": to, "subject": subject, "message_id": messageID}
	if cc != "" {
		payload["cc"] = cc
	}
	return contractx.Success(payload)
}

// smtpSend is the production sendFunc: STARTTLS submission with plain auth,
// matching the usual port-587 setup.
func smtpSend(ctx context.Context, cfg Config, msg *mail.Msg) error {
	client, err := mail.NewClient(cfg.SMTPServer,
		mail.WithPort(cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Address),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
		mail.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// sendFailure maps an SMTP error to a failure kind with a constant, safe
// detail. The raw error goes to the debug log only.
func sendFailure(err error) contractx.Result {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "auth") || strings.Contains(msg, "535") {
		return contractx.Fail(contractx.FailAuth, "the email service rejected the sign-in; check the address and app password")
	}
	return contractx.Fail(contractx.FailTransport, "could not reach the email service")
}
