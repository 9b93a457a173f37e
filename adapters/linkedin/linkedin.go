// Package linkedin publishes posts and reads the operator's profile through
// the LinkedIn REST API.
package linkedin

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
	"unicode/utf8"

	"github.com/rs/zerolog"

	contractx "github.com/attachehq/attache/agent/contract"
	logx "github.com/attachehq/attache/pkg/logger"
)

const (
	maxResponseSizeBytes = 2 << 20

	maxPostLength     = 3000
	maxHeadlineLength = 220
	maxSummaryLength  = 2600
)

// fieldLimits names the profile fields the assistant can validate text for.
// LinkedIn's public API does not allow writing them, so validation is all we
// offer; see updateField.
var fieldLimits = map[string]int{
	"headline": maxHeadlineLength,
	"summary":  maxSummaryLength,
}

// Config is read from LINKEDIN_* variables.
type Config struct {
	AccessToken string        `split_words:"true"`
	BaseURL     string        `split_words:"true" default:"https://api.linkedin.com/v2"`
	Timeout     time.Duration `split_words:"true" default:"15s"`
}

// IsConfigured reports whether the adapter has a token to work with.
func (c Config) IsConfigured() bool {
	return strings.TrimSpace(c.AccessToken) != ""
}

// Adapter owns the linkedin-service actions.
type Adapter struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

var _ contractx.Adapter = (*Adapter)(nil)

// Option customizes the adapter.
type Option func(*Adapter)

// WithHTTPClient replaces the API client, mainly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		if client != nil {
			a.httpClient = client
		}
	}
}

func New(cfg Config, opts ...Option) (*Adapter, error) {
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("%w: linkedin adapter needs LINKEDIN_ACCESS_TOKEN", contractx.ErrInvalidConfig)
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w: linkedin base url: %v", contractx.ErrInvalidConfig, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	a := &Adapter{
		cfg:        cfg,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        logx.With("linkedin"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Service() string { return "linkedin" }

func (a *Adapter) Actions() []contractx.Action {
	return []contractx.Action{
		{
			Name:        "post_linkedin_update",
			Description: "Publish a text post on the operator's LinkedIn feed.",
			Params: []contractx.Param{
				{Name: "text", Type: contractx.TypeString, Required: true, Description: "Post text, up to 3000 characters"},
				{Name: "visibility", Type: contractx.TypeString, Required: false, Description: "PUBLIC or CONNECTIONS (default PUBLIC)"},
			},
			Format: formatPost,
		},
		{
			Name:        "update_linkedin_field",
			Description: "Validate new text for the LinkedIn headline or summary against the field's length limit.",
			Params: []contractx.Param{
				{Name: "field", Type: contractx.TypeString, Required: true, Description: "Profile field: headline or summary"},
				{Name: "value", Type: contractx.TypeString, Required: true, Description: "New text for the field"},
			},
			Format: formatFieldGuidance,
		},
		{
			Name:        "get_linkedin_profile",
			Description: "Show the operator's LinkedIn name, email and locale.",
			Format:      formatProfile,
		},
		{
			Name:        "get_linkedin_connections_count",
			Description: "Show how many LinkedIn connections the operator has.",
			Format:      formatConnections,
		},
	}
}

func (a *Adapter) Execute(ctx context.Context, action string, params contractx.ParameterSet) (contractx.Result, error) {
	switch action {
	case "post_linkedin_update":
		return a.postUpdate(ctx, params), nil
	case "update_linkedin_field":
		return a.updateField(params), nil
	case "get_linkedin_profile":
		return a.profile(ctx), nil
	case "get_linkedin_connections_count":
		return a.connectionsCount(ctx), nil
	default:
		return contractx.Result{}, fmt.Errorf("%w: linkedin adapter does not own %q", contractx.ErrActionNotFound, action)
	}
}

type userInfo struct {
	Sub    string          `json:"sub"`
	Name   string          `json:"name"`
	Email  string          `json:"email"`
	Locale json.RawMessage `json:"locale"`
}

type apiError struct {
	Message string `json:"message"`
}

type shareCommentary struct {
	Text string `json:"text"`
}

type shareContent struct {
	ShareCommentary    shareCommentary `json:"shareCommentary"`
	ShareMediaCategory string          `json:"shareMediaCategory"`
}

type ugcPost struct {
	Author          string                  `json:"author"`
	LifecycleState  string                  `json:"lifecycleState"`
	SpecificContent map[string]shareContent `json:"specificContent"`
	Visibility      map[string]string       `json:"visibility"`
}

func (a *Adapter) postUpdate(ctx context.Context, params contractx.ParameterSet) contractx.Result {
	text := params.String("text")
	if n := utf8.RuneCountInString(text); n > maxPostLength {
		return contractx.Fail(contractx.FailInvalidInput,
			"the post is %d characters long; LinkedIn allows at most %d", n, maxPostLength)
	}

	visibility := strings.ToUpper(params.StringOr("visibility", "PUBLIC"))
	if visibility != "PUBLIC" && visibility != "CONNECTIONS" {
		return contractx.Fail(contractx.FailInvalidInput,
			"visibility must be PUBLIC or CONNECTIONS, not %q", params.String("visibility"))
	}

	me, failed := a.userinfo(ctx)
	if failed != nil {
		return *failed
	}

	post := ugcPost{
		Author:         "urn:li:person:" + me.Sub,
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]shareContent{
			"com.linkedin.ugc.ShareContent": {
				ShareCommentary:    shareCommentary{Text: text},
				ShareMediaCategory: "NONE",
			},
		},
		Visibility: map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": visibility},
	}

	status, raw, header, err := a.do(ctx, http.MethodPost, "/ugcPosts", post)
	if err != nil {
		a.log.Debug().Err(err).Msg("linkedin post failed")
		return contractx.Fail(contractx.FailTransport, "could not reach the LinkedIn service")
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		a.log.Debug().Int("status", status).Str("body", string(raw)).Msg("linkedin post rejected")
		return apiFailure(status, raw)
	}

	postID := header.Get("x-restli-id")
	if postID == "" {
		var created struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &created); err == nil {
			postID = created.ID
		}
	}

	result := map[string]any{"visibility": visibility}
	if postID != "" {
		result["post_id"] = postID
	}
	return contractx.Success(result)
}

// updateField validates length only. The public API has no endpoint for
// writing profile fields, so the caller gets vetted text to paste, never a
// claim that the profile changed.
func (a *Adapter) updateField(params contractx.ParameterSet) contractx.Result {
	field := strings.ToLower(params.String("field"))
	limit, ok := fieldLimits[field]
	if !ok {
		return contractx.Fail(contractx.FailInvalidInput,
			"I can only check the headline or the summary, not %q", params.String("field"))
	}

	value := params.String("value")
	if n := utf8.RuneCountInString(value); n > limit {
		return contractx.Fail(contractx.FailInvalidInput,
			"the %s is %d characters; LinkedIn allows at most %d", field, n, limit)
	}

	return contractx.Success(map[string]any{
		"field":      field,
		"value":      value,
		"characters": utf8.RuneCountInString(value),
		"limit":      limit,
		"applied":    false,
	})
}

func (a *Adapter) profile(ctx context.Context) contractx.Result {
	me, failed := a.userinfo(ctx)
	if failed != nil {
		return *failed
	}
	return contractx.Success(map[string]any{
		"name":   me.Name,
		"email":  me.Email,
		"locale": localeString(me.Locale),
	})
}

// connectionsCount asks the connections endpoint for its total. Most tokens
// lack the scope for it; a 403 is answered with manual guidance instead of
// an auth failure.
func (a *Adapter) connectionsCount(ctx context.Context) contractx.Result {
	status, raw, _, err := a.do(ctx, http.MethodGet, "/connections?q=viewer&count=0", nil)
	if err != nil {
		a.log.Debug().Err(err).Msg("linkedin connections failed")
		return contractx.Fail(contractx.FailTransport, "could not reach the LinkedIn service")
	}
	if status == http.StatusForbidden {
		return contractx.Success(map[string]any{"available": false})
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		a.log.Debug().Int("status", status).Str("body", string(raw)).Msg("linkedin connections rejected")
		return apiFailure(status, raw)
	}

	var data struct {
		Total  *int `json:"_total"`
		Paging struct {
			Total *int `json:"total"`
		} `json:"paging"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return contractx.Fail(contractx.FailTransport, "the LinkedIn service returned an unexpected response")
	}

	total := data.Total
	if total == nil {
		total = data.Paging.Total
	}
	if total == nil {
		return contractx.Fail(contractx.FailTransport, "the LinkedIn service returned an unexpected response")
	}
	return contractx.Success(map[string]any{"available": true, "connections": *total})
}

// userinfo fetches the OIDC profile backing both the author URN and the
// profile action. A failure comes back as a Result to hand to the caller.
func (a *Adapter) userinfo(ctx context.Context) (*userInfo, *contractx.Result) {
	status, raw, _, err := a.do(ctx, http.MethodGet, "/userinfo", nil)
	if err != nil {
		a.log.Debug().Err(err).Msg("linkedin userinfo failed")
		failed := contractx.Fail(contractx.FailTransport, "could not reach the LinkedIn service")
		return nil, &failed
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		a.log.Debug().Int("status", status).Str("body", string(raw)).Msg("linkedin userinfo rejected")
		failed := apiFailure(status, raw)
		return nil, &failed
	}

	var me userInfo
	if err := json.Unmarshal(raw, &me); err != nil || strings.TrimSpace(me.Sub) == "" {
		failed := contractx.Fail(contractx.FailTransport, "the LinkedIn profile response was missing the member id")
		return nil, &failed
	}
	return &me, nil
}

func (a *Adapter) do(ctx context.Context, method, path string, payload any) (int, []byte, http.Header, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, nil, fmt.Errorf("marshal linkedin payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("build linkedin request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(a.cfg.AccessToken))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("execute linkedin request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read linkedin response: %w", err)
	}
	return resp.StatusCode, raw, resp.Header, nil
}

// apiFailure maps a LinkedIn status to the failure taxonomy. Details stay
// constant or upstream-only; the access token never appears in them.
func apiFailure(status int, raw []byte) contractx.Result {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return contractx.Fail(contractx.FailAuth, "the LinkedIn access token was rejected; it may have expired")
	case http.StatusTooManyRequests:
		return contractx.Fail(contractx.FailQuota, "the LinkedIn API rate limit was hit; try again in a moment")
	}

	var upstream apiError
	if err := json.Unmarshal(raw, &upstream); err == nil && upstream.Message != "" {
		return contractx.Fail(contractx.FailTransport, "the LinkedIn service rejected the request: %s", upstream.Message)
	}
	return contractx.Fail(contractx.FailTransport, "the LinkedIn service rejected the request")
}

func localeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}

	var parts struct {
		Language string `json:"language"`
		Country  string `json:"country"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil && parts.Language != "" {
		if parts.Country != "" {
			return parts.Language + "-" + parts.Country
		}
		return parts.Language
	}
	return ""
}

func formatPost(payload map[string]any) string {
	if id, ok := payload["post_id"].(string); ok && id != "" {
		return fmt.Sprintf("Posted to LinkedIn with %v visibility (post id %s).", payload["visibility"], id)
	}
	return fmt.Sprintf("Posted to LinkedIn with %v visibility.", payload["visibility"])
}

func formatFieldGuidance(payload map[string]any) string {
	return fmt.Sprintf(
		"Your new %v fits LinkedIn's limit (%v of %v characters). The API can't change profile fields, so paste it in yourself:\n%v",
		payload["field"], payload["characters"], payload["limit"], payload["value"])
}

func formatConnections(payload map[string]any) string {
	if available, _ := payload["available"].(bool); !available {
		return "LinkedIn doesn't share the connections count with this app; you can see it at linkedin.com/mynetwork."
	}
	return fmt.Sprintf("You have %v LinkedIn connections.", payload["connections"])
}

func formatProfile(payload map[string]any) string {
	locale, _ := payload["locale"].(string)
	if locale == "" {
		return fmt.Sprintf("LinkedIn profile: %v (%v).", payload["name"], payload["email"])
	}
	return fmt.Sprintf("LinkedIn profile: %v (%v, locale %s).", payload["name"], payload["email"], locale)
}
