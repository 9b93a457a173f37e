package registry

import (
	"context"
	"errors"
	"testing"

	contractx "github.com/attachehq/attache/agent/contract"
)

type fakeAdapter struct {
	service string
	actions []contractx.Action
	calls   int
}

func (f *fakeAdapter) Service() string { return f.service }

func (f *fakeAdapter) Actions() []contractx.Action { return f.actions }

func (f *fakeAdapter) Execute(ctx context.Context, action string, params contractx.ParameterSet) (contractx.Result, error) {
	f.calls++
	return contractx.Success(map[string]any{"action": action}), nil
}

func sendAction() contractx.Action {
	return contractx.Action{
		Name:        "send_email",
		Description: "Send an email",
		Params: []contractx.Param{
			{Name: "to", Type: contractx.TypeString, Required: true},
		},
	}
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	t.Parallel()

	reg := New()
	owner := &fakeAdapter{service: "email"}
	if err := reg.Register(sendAction(), owner); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	entry, err := reg.Resolve("send_email")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if entry.Action.Name != "send_email" {
		t.Fatalf("Resolve() action = %q, want %q", entry.Action.Name, "send_email")
	}
	if entry.Action.Service != "email" {
		t.Fatalf("Resolve() service = %q, want %q", entry.Action.Service, "email")
	}
	if entry.Adapter != owner {
		t.Fatalf("Resolve() adapter = %v, want the registering adapter", entry.Adapter)
	}
}

func TestRegistryRegisterDuplicate(t *testing.T) {
	t.Parallel()

	reg := New()
	owner := &fakeAdapter{service: "email"}
	if err := reg.Register(sendAction(), owner); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	err := reg.Register(sendAction(), owner)
	if !errors.Is(err, contractx.ErrDuplicateAction) {
		t.Fatalf("Register() error = %v, want ErrDuplicateAction", err)
	}
}

func TestRegistryRegisterEmptyName(t *testing.T) {
	t.Parallel()

	reg := New()
	err := reg.Register(contractx.Action{Name: "   "}, &fakeAdapter{service: "email"})
	if !errors.Is(err, contractx.ErrInvalidConfig) {
		t.Fatalf("Register() error = %v, want ErrInvalidConfig", err)
	}
}

func TestRegistryResolveUnknown(t *testing.T) {
	t.Parallel()

	reg := New()
	_, err := reg.Resolve("teleport_email")
	if !errors.Is(err, contractx.ErrActionNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrActionNotFound", err)
	}
}

func TestRegistryListKeepsRegistrationOrder(t *testing.T) {
	t.Parallel()

	reg := New()
	owner := &fakeAdapter{service: "email"}
	names := []string{"send_email", "get_unread_count", "read_emails"}
	for _, name := range names {
		if err := reg.Register(contractx.Action{Name: name}, owner); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	listed := reg.List()
	if len(listed) != len(names) {
		t.Fatalf("List() returned %d actions, want %d", len(listed), len(names))
	}
	for i, name := range names {
		if listed[i].Name != name {
			t.Fatalf("List()[%d] = %q, want %q", i, listed[i].Name, name)
		}
	}
}

func TestBuildCollectsAdapterActions(t *testing.T) {
	t.Parallel()

	email := &fakeAdapter{service: "email", actions: []contractx.Action{sendAction()}}
	whatsapp := &fakeAdapter{service: "whatsapp", actions: []contractx.Action{
		{Name: "send_whatsapp_message", Params: []contractx.Param{{Name: "to", Type: contractx.TypeString, Required: true}}},
	}}

	reg, err := Build(email, whatsapp)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", reg.Len())
	}
	entry, err := reg.Resolve("send_whatsapp_message")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if entry.Adapter != whatsapp {
		t.Fatalf("Resolve() adapter = %v, want the whatsapp adapter", entry.Adapter)
	}
}

func TestBuildFailsOnCrossAdapterConflict(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{service: "email", actions: []contractx.Action{sendAction()}}
	b := &fakeAdapter{service: "email-backup", actions: []contractx.Action{sendAction()}}

	_, err := Build(a, b)
	if !errors.Is(err, contractx.ErrDuplicateAction) {
		t.Fatalf("Build() error = %v, want ErrDuplicateAction", err)
	}
}
