package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	contractx "github.com/attachehq/attache/agent/contract"
	"github.com/attachehq/attache/store/messagelog"
)

type fakeDispatcher struct {
	reply     string
	handleErr error
	result    contractx.Result
	directErr error
	actions   []contractx.Action

	lastText   string
	lastAction string
	lastParams contractx.ParameterSet
	handles    int
	directs    int
}

func (f *fakeDispatcher) Handle(ctx context.Context, text string) (string, error) {
	f.handles++
	f.lastText = text
	return f.reply, f.handleErr
}

func (f *fakeDispatcher) HandleDirect(ctx context.Context, action string, params contractx.ParameterSet) (contractx.Result, error) {
	f.directs++
	f.lastAction = action
	f.lastParams = params
	return f.result, f.directErr
}

func (f *fakeDispatcher) Actions() []contractx.Action { return f.actions }

type fakeWriter struct {
	rows []*messagelog.Message
	err  error
}

func (f *fakeWriter) Insert(ctx context.Context, msg *messagelog.Message) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, msg)
	return nil
}

func newTestServer(t *testing.T, dispatcher Dispatcher, opts ...Option) *Server {
	t.Helper()
	s, err := New(Config{}, dispatcher, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func perform(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestNewRequiresDispatcher(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil)
	if !errors.Is(err, contractx.ErrInvalidConfig) {
		t.Fatalf("New() error = %v, want ErrInvalidConfig", err)
	}
}

func TestRootAndHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeDispatcher{})

	w := perform(t, s, http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET / status = %d, want 200", w.Code)
	}
	if body := decodeBody(t, w); body["status"] != "running" {
		t.Fatalf(`GET / body = %v, want status "running"`, body)
	}

	w = perform(t, s, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want 200", w.Code)
	}
	if body := decodeBody(t, w); body["status"] != "healthy" {
		t.Fatalf(`GET /health body = %v, want status "healthy"`, body)
	}
}

func TestChat(t *testing.T) {
	t.Parallel()

	fake := &fakeDispatcher{reply: "Email sent to john@example.com."}
	s := newTestServer(t, fake)

	w := perform(t, s, http.MethodPost, "/chat", `{"message":"send john an email"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /chat status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["response"] != "Email sent to john@example.com." || body["success"] != true {
		t.Fatalf("POST /chat body = %v, want the dispatcher reply", body)
	}
	if fake.lastText != "send john an email" {
		t.Fatalf("Handle() text = %q, want the request message", fake.lastText)
	}
}

func TestChatEmptyMessage(t *testing.T) {
	t.Parallel()

	fake := &fakeDispatcher{}
	s := newTestServer(t, fake)

	w := perform(t, s, http.MethodPost, "/chat", `{"message":"   "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("POST /chat status = %d, want 400", w.Code)
	}
	if fake.handles != 0 {
		t.Fatalf("Handle() calls = %d, want 0", fake.handles)
	}
}

func TestChatPlumbingErrorStaysGeneric(t *testing.T) {
	t.Parallel()

	fake := &fakeDispatcher{handleErr: fmt.Errorf("%w: api key expired for tenant 7", contractx.ErrResolver)}
	s := newTestServer(t, fake)

	w := perform(t, s, http.MethodPost, "/chat", `{"message":"hello"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("POST /chat status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "api key") {
		t.Fatalf("response %q leaks the internal error", w.Body.String())
	}
}

func TestDirectActionSuccess(t *testing.T) {
	t.Parallel()

	fake := &fakeDispatcher{result: contractx.Success(map[string]any{"count": 3})}
	s := newTestServer(t, fake)

	w := perform(t, s, http.MethodPost, "/actions/get_unread_count", `{"params":{}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["success"] != true {
		t.Fatalf("body = %v, want success true", body)
	}
	result, _ := body["result"].(map[string]any)
	if result["count"] != float64(3) {
		t.Fatalf("result = %v, want count 3", result)
	}
	if fake.lastAction != "get_unread_count" {
		t.Fatalf("HandleDirect action = %q, want get_unread_count", fake.lastAction)
	}
}

func TestDirectActionUnknownIs404(t *testing.T) {
	t.Parallel()

	fake := &fakeDispatcher{directErr: fmt.Errorf("%w: teleport_email", contractx.ErrActionNotFound)}
	s := newTestServer(t, fake)

	w := perform(t, s, http.MethodPost, "/actions/teleport_email", `{"params":{}}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestDirectActionFailureStaysInBody(t *testing.T) {
	t.Parallel()

	fake := &fakeDispatcher{result: contractx.Fail(contractx.FailValidation, "missing required %q", "to")}
	s := newTestServer(t, fake)

	w := perform(t, s, http.MethodPost, "/actions/send_email", `{"params":{"subject":"hi"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with failure payload", w.Code)
	}
	body := decodeBody(t, w)
	if body["success"] != false {
		t.Fatalf("body = %v, want success false", body)
	}
	failure, _ := body["failure"].(map[string]any)
	if failure["kind"] != "validation-failure" {
		t.Fatalf("failure = %v, want validation-failure kind", failure)
	}
}

func TestSendEmailEndpointMapsParams(t *testing.T) {
	t.Parallel()

	fake := &fakeDispatcher{result: contractx.Success(map[string]any{"to": "john@example.com"})}
	s := newTestServer(t, fake)

	w := perform(t, s, http.MethodPost, "/email/send",
		`{"to":"john@example.com","subject":"Hi","body":"Hello","cc":"boss@example.com"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if fake.lastAction != "send_email" {
		t.Fatalf("HandleDirect action = %q, want send_email", fake.lastAction)
	}
	if fake.lastParams["to"] != "john@example.com" || fake.lastParams["cc"] != "boss@example.com" {
		t.Fatalf("params = %v, want request fields mapped through", fake.lastParams)
	}

	perform(t, s, http.MethodPost, "/email/send", `{"to":"john@example.com","subject":"Hi","body":"Hello"}`)
	if _, ok := fake.lastParams["cc"]; ok {
		t.Fatalf("params = %v, empty cc must be omitted", fake.lastParams)
	}
}

func TestRecentEmailsQueryParams(t *testing.T) {
	t.Parallel()

	fake := &fakeDispatcher{result: contractx.Success(map[string]any{"count": 0})}
	s := newTestServer(t, fake)

	w := perform(t, s, http.MethodGet, "/email/recent?count=3&folder=sent", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if fake.lastAction != "read_emails" {
		t.Fatalf("HandleDirect action = %q, want read_emails", fake.lastAction)
	}
	if fake.lastParams["count"] != 3 || fake.lastParams["folder"] != "sent" {
		t.Fatalf("params = %v, want count 3 and folder sent", fake.lastParams)
	}

	w = perform(t, s, http.MethodGet, "/email/recent?count=many", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d for bad count, want 400", w.Code)
	}
}

func TestListActions(t *testing.T) {
	t.Parallel()

	fake := &fakeDispatcher{actions: []contractx.Action{
		{
			Name:        "send_email",
			Service:     "email",
			Description: "Send an email.",
			Params: []contractx.Param{
				{Name: "to", Type: contractx.TypeString, Required: true},
			},
		},
	}}
	s := newTestServer(t, fake)

	w := perform(t, s, http.MethodGet, "/actions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	actions, _ := body["actions"].([]any)
	if len(actions) != 1 {
		t.Fatalf("actions = %v, want one entry", body)
	}
	first, _ := actions[0].(map[string]any)
	if first["name"] != "send_email" || first["service"] != "email" {
		t.Fatalf("action entry = %v, want send_email/email", first)
	}
}

func TestWebhookVerify(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeDispatcher{}, WithWebhook(&fakeWriter{}, "verify-me"))

	w := perform(t, s, http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "12345" {
		t.Fatalf("body = %q, want the raw challenge", w.Body.String())
	}

	w = perform(t, s, http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d for bad token, want 403", w.Code)
	}
}

func TestWebhookStoresTextMessages(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	s := newTestServer(t, &fakeDispatcher{}, WithWebhook(writer, "verify-me"))

	payload := `{
		"object": "whatsapp_business_account",
		"entry": [{
			"changes": [{
				"value": {
					"messages": [
						{"from":"66812345678","id":"wamid.X1","timestamp":"1724300000","type":"text","text":{"body":"running late"}},
						{"from":"66812345678","id":"wamid.X2","timestamp":"1724300001","type":"image"}
					]
				}
			}]
		}]
	}`
	w := perform(t, s, http.MethodPost, "/webhooks/whatsapp", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(writer.rows) != 1 {
		t.Fatalf("stored rows = %d, want only the text message", len(writer.rows))
	}
	row := writer.rows[0]
	if row.MessageID != "wamid.X1" || row.From != "66812345678" || row.Body != "running late" {
		t.Fatalf("stored row = %+v, want the text message fields", row)
	}
	if row.ReceivedAt.Unix() != 1724300000 {
		t.Fatalf("ReceivedAt = %v, want the webhook timestamp", row.ReceivedAt)
	}
}

func TestWebhookRoutesAbsentWithoutStore(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeDispatcher{})

	w := perform(t, s, http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when the log is not configured", w.Code)
	}
}
