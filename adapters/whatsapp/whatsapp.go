// Package whatsapp sends and lists WhatsApp messages through the Meta Graph
// API on behalf of the operator's business number.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	contractx "github.com/attachehq/attache/agent/contract"
	logx "github.com/attachehq/attache/pkg/logger"
	"github.com/attachehq/attache/store/messagelog"
)

const maxResponseSizeBytes = 2 << 20

// Config holds the Graph API credentials, read from WHATSAPP_* variables.
// VerifyToken is only used by the webhook handshake, not by the adapter.
type Config struct {
	AccessToken   string        `split_words:"true"`
	PhoneNumberID string        `split_words:"true"`
	BaseURL       string        `split_words:"true" default:"https://graph.facebook.com/v18.0"`
	Timeout       time.Duration `split_words:"true" default:"15s"`
	VerifyToken   string        `split_words:"true"`
}

// IsConfigured reports whether the adapter has enough credentials to run.
func (c Config) IsConfigured() bool {
	return strings.TrimSpace(c.AccessToken) != "" && strings.TrimSpace(c.PhoneNumberID) != ""
}

// MessageReader lists recently received messages, newest first.
type MessageReader interface {
	Recent(ctx context.Context, limit int) ([]messagelog.Message, error)
}

// Adapter owns the whatsapp-service actions.
type Adapter struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	inbox      MessageReader
	log        zerolog.Logger
}

var _ contractx.Adapter = (*Adapter)(nil)

// Option customizes the adapter.
type Option func(*Adapter)

// WithHTTPClient replaces the Graph API client, mainly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// WithMessageReader wires an inbound-message log. Without one the
// get_whatsapp_messages action is not offered.
func WithMessageReader(inbox MessageReader) Option {
	return func(a *Adapter) {
		a.inbox = inbox
	}
}

func New(cfg Config, opts ...Option) (*Adapter, error) {
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("%w: whatsapp adapter needs WHATSAPP_ACCESS_TOKEN and WHATSAPP_PHONE_NUMBER_ID", contractx.ErrInvalidConfig)
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w: whatsapp base url: %v", contractx.ErrInvalidConfig, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	a := &Adapter{
		cfg:        cfg,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        logx.With("whatsapp"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Service() string { return "whatsapp" }

func (a *Adapter) Actions() []contractx.Action {
	actions := []contractx.Action{
		{
			Name:        "send_whatsapp_message",
			Description: "Send a WhatsApp text message to a phone number.",
			Params: []contractx.Param{
				{Name: "phone_number", Type: contractx.TypeString, Required: true, Description: "Recipient phone number with country code, e.g. +66812345678"},
				{Name: "message", Type: contractx.TypeString, Required: true, Description: "Text to send"},
			},
			Format: formatSent,
		},
		{
			Name:        "send_whatsapp_template_message",
			Description: "Send a pre-approved WhatsApp template message, used for business notifications.",
			Params: []contractx.Param{
				{Name: "phone_number", Type: contractx.TypeString, Required: true, Description: "Recipient phone number with country code"},
				{Name: "template_name", Type: contractx.TypeString, Required: true, Description: "Name of the approved message template"},
				{Name: "language_code", Type: contractx.TypeString, Required: false, Description: "Template language code (default en_US)"},
			},
			Format: formatTemplateSent,
		},
		{
			Name:        "get_whatsapp_business_profile",
			Description: "Show the business profile attached to the operator's WhatsApp number.",
			Format:      formatBusinessProfile,
		},
	}
	if a.inbox != nil {
		actions = append(actions, contractx.Action{
			Name:        "get_whatsapp_messages",
			Description: "List the most recent WhatsApp messages received by the operator's number.",
			Params: []contractx.Param{
				{Name: "count", Type: contractx.TypeInteger, Required: false, Description: "How many messages to list (default 10)"},
			},
			Format: formatInbox,
		})
	}
	return actions
}

func (a *Adapter) Execute(ctx context.Context, action string, params contractx.ParameterSet) (contractx.Result, error) {
	switch action {
	case "send_whatsapp_message":
		return a.sendMessage(ctx, params), nil
	case "send_whatsapp_template_message":
		return a.sendTemplate(ctx, params), nil
	case "get_whatsapp_business_profile":
		return a.businessProfile(ctx), nil
	case "get_whatsapp_messages":
		if a.inbox == nil {
			return contractx.Result{}, fmt.Errorf("%w: whatsapp adapter has no message log", contractx.ErrActionNotFound)
		}
		return a.recentMessages(ctx, params), nil
	default:
		return contractx.Result{}, fmt.Errorf("%w: whatsapp adapter does not own %q", contractx.ErrActionNotFound, action)
	}
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateBody struct {
	Name     string           `json:"name"`
	Language templateLanguage `json:"language"`
}

type outboundMessage struct {
	MessagingProduct string        `json:"messaging_product"`
	RecipientType    string        `json:"recipient_type"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textBody     `json:"text,omitempty"`
	Template         *templateBody `json:"template,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (a *Adapter) sendMessage(ctx context.Context, params contractx.ParameterSet) contractx.Result {
	to, err := normalizePhone(params.String("phone_number"))
	if err != nil {
		return contractx.Fail(contractx.FailInvalidInput, "%v", err)
	}

	return a.deliver(ctx, outboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &textBody{PreviewURL: false, Body: params.String("message")},
	})
}

func (a *Adapter) sendTemplate(ctx context.Context, params contractx.ParameterSet) contractx.Result {
	to, err := normalizePhone(params.String("phone_number"))
	if err != nil {
		return contractx.Fail(contractx.FailInvalidInput, "%v", err)
	}
	name := params.String("template_name")
	if name == "" {
		return contractx.Fail(contractx.FailInvalidInput, "a template name is required")
	}

	res := a.deliver(ctx, outboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "template",
		Template: &templateBody{
			Name:     name,
			Language: templateLanguage{Code: params.StringOr("language_code", "en_US")},
		},
	})
	if res.Ok() {
		res.Payload["template"] = name
	}
	return res
}

// deliver POSTs one outbound message and extracts the Graph message id.
func (a *Adapter) deliver(ctx context.Context, payload outboundMessage) contractx.Result {
	status, raw, err := a.do(ctx, http.MethodPost, "/messages", nil, payload)
	if err != nil {
		a.log.Debug().Err(err).Msg("whatsapp request failed")
		return contractx.Fail(contractx.FailTransport, "could not reach the WhatsApp service")
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		a.log.Debug().Int("status", status).Str("body", string(raw)).Msg("whatsapp send rejected")
		return graphFailure(status, raw)
	}

	var parsed sendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		a.log.Debug().Err(err).Msg("decode whatsapp response")
		return contractx.Fail(contractx.FailTransport, "the WhatsApp service returned an unexpected response")
	}

	result := map[string]any{"to": payload.To}
	if len(parsed.Messages) > 0 && parsed.Messages[0].ID != "" {
		result["message_id"] = parsed.Messages[0].ID
	}
	return contractx.Success(result)
}

type businessProfile struct {
	Data []struct {
		About       string   `json:"about"`
		Address     string   `json:"address"`
		Description string   `json:"description"`
		Email       string   `json:"email"`
		Vertical    string   `json:"vertical"`
		Websites    []string `json:"websites"`
	} `json:"data"`
}

func (a *Adapter) businessProfile(ctx context.Context) contractx.Result {
	query := url.Values{"fields": {"about,address,description,email,profile_picture_url,websites,vertical"}}
	status, raw, err := a.do(ctx, http.MethodGet, "/whatsapp_business_profile", query, nil)
	if err != nil {
		a.log.Debug().Err(err).Msg("whatsapp profile request failed")
		return contractx.Fail(contractx.FailTransport, "could not reach the WhatsApp service")
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		a.log.Debug().Int("status", status).Str("body", string(raw)).Msg("whatsapp profile rejected")
		return graphFailure(status, raw)
	}

	var parsed businessProfile
	if err := json.Unmarshal(raw, &parsed); err != nil || len(parsed.Data) == 0 {
		return contractx.Fail(contractx.FailTransport, "the WhatsApp service returned an unexpected response")
	}

	p := parsed.Data[0]
	return contractx.Success(map[string]any{
		"about":       p.About,
		"address":     p.Address,
		"description": p.Description,
		"email":       p.Email,
		"industry":    p.Vertical,
		"websites":    p.Websites,
	})
}

// do performs one Graph API call against the operator's phone-number node.
func (a *Adapter) do(ctx context.Context, method, path string, query url.Values, payload any) (int, []byte, error) {
	endpoint := fmt.Sprintf("%s/%s%s", a.baseURL, strings.TrimSpace(a.cfg.PhoneNumberID), path)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(a.cfg.AccessToken))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

// graphFailure maps a Graph API status to the failure taxonomy. Details stay
// constant or upstream-only; the access token never appears in them.
func graphFailure(status int, raw []byte) contractx.Result {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return contractx.Fail(contractx.FailAuth, "the WhatsApp access token was rejected; it may have expired")
	case http.StatusTooManyRequests:
		return contractx.Fail(contractx.FailQuota, "the WhatsApp API rate limit was hit; try again in a moment")
	}

	var upstream graphError
	if err := json.Unmarshal(raw, &upstream); err == nil && upstream.Error.Message != "" {
		return contractx.Fail(contractx.FailTransport, "the WhatsApp service rejected the request: %s", upstream.Error.Message)
	}
	return contractx.Fail(contractx.FailTransport, "the WhatsApp service rejected the request")
}

func (a *Adapter) recentMessages(ctx context.Context, params contractx.ParameterSet) contractx.Result {
	count := params.Int("count", 10)
	if count < 1 {
		count = 1
	}
	if count > 50 {
		count = 50
	}

	rows, err := a.inbox.Recent(ctx, count)
	if err != nil {
		a.log.Debug().Err(err).Msg("read message log")
		return contractx.Fail(contractx.FailTransport, "could not read the message log")
	}

	messages := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, map[string]any{
			"from":        row.From,
			"message":     row.Body,
			"received_at": row.ReceivedAt.Format("2006-01-02 15:04"),
		})
	}
	return contractx.Success(map[string]any{"messages": messages, "count": len(messages)})
}

// normalizePhone strips the formatting people type ("+66 81-234-5678") down
// to the digit string the Graph API expects.
func normalizePhone(raw string) (string, error) {
	cleaned := strings.NewReplacer("+", "", " ", "", "-", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return "", fmt.Errorf("a recipient phone number is required")
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("phone number %q may only contain digits, spaces, dashes and a leading +", raw)
		}
	}
	if len(cleaned) < 7 || len(cleaned) > 15 {
		return "", fmt.Errorf("phone number %q must have 7 to 15 digits", raw)
	}
	return cleaned, nil
}

func formatSent(payload map[string]any) string {
	if id, ok := payload["message_id"].(string); ok && id != "" {
		return fmt.Sprintf("WhatsApp message sent to %v (id %s).", payload["to"], id)
	}
	return fmt.Sprintf("WhatsApp message sent to %v.", payload["to"])
}

func formatTemplateSent(payload map[string]any) string {
	return fmt.Sprintf("WhatsApp template %q sent to %v.", payload["template"], payload["to"])
}

func formatBusinessProfile(payload map[string]any) string {
	var b strings.Builder
	b.WriteString("WhatsApp business profile:")
	field := func(label, key string) {
		v, _ := payload[key].(string)
		if v == "" {
			v = "not set"
		}
		fmt.Fprintf(&b, "\n%s: %s", label, v)
	}
	field("About", "about")
	field("Description", "description")
	field("Email", "email")
	field("Address", "address")
	field("Industry", "industry")
	if sites, ok := payload["websites"].([]string); ok && len(sites) > 0 {
		fmt.Fprintf(&b, "\nWebsites: %s", strings.Join(sites, ", "))
	}
	return b.String()
}

func formatInbox(payload map[string]any) string {
	rows, _ := payload["messages"].([]map[string]any)
	if len(rows) == 0 {
		return "No WhatsApp messages in the log yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Last %d WhatsApp messages:", len(rows))
	for i, row := range rows {
		fmt.Fprintf(&b, "\n%d. %v: %v (%v)", i+1, row["from"], row["message"], row["received_at"])
	}
	return b.String()
}
