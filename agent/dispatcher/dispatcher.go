package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	contractx "github.com/attachehq/attache/agent/contract"
	registryx "github.com/attachehq/attache/agent/registry"
	logx "github.com/attachehq/attache/pkg/logger"
)

const fallbackReply = "I can help with email, WhatsApp and LinkedIn. What do you need?"

// Dispatcher is the single pipeline between a user request and an adapter
// call: resolve intent, validate parameters, execute once, render the
// outcome. Nothing here retries.
type Dispatcher struct {
	registry  *registryx.Registry
	resolver  contractx.Resolver
	validator *validator
	log       zerolog.Logger
}

func New(reg *registryx.Registry, res contractx.Resolver) (*Dispatcher, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: registry is nil", contractx.ErrInvalidConfig)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: resolver is nil", contractx.ErrInvalidConfig)
	}
	return &Dispatcher{
		registry:  reg,
		resolver:  res,
		validator: newValidator(),
		log:       logx.With("dispatcher"),
	}, nil
}

// Handle takes one free-text request and returns one natural-language
// reply. Adapter calls happen only after the parameters validate; every
// other path answers conversationally.
func (d *Dispatcher) Handle(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return fallbackReply, nil
	}

	start := time.Now()
	resolution, err := d.resolver.Resolve(ctx, text, d.registry.List())
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrResolver, err)
	}

	if !resolution.Matched() {
		d.log.Debug().Dur("took", time.Since(start)).Msg("no action resolved")
		if reply := strings.TrimSpace(resolution.Reply); reply != "" {
			return reply, nil
		}
		return fallbackReply, nil
	}

	entry, err := d.registry.Resolve(resolution.Action)
	if err != nil {
		d.log.Warn().Str("action", resolution.Action).Msg("model proposed unknown action")
		return fmt.Sprintf("I don't know how to do %q yet. Could you put it another way?", resolution.Action), nil
	}

	params, violations, err := d.validator.check(entry.Action, resolution.Params)
	if err != nil {
		return "", fmt.Errorf("validate %s: %w", entry.Action.Name, err)
	}
	if len(violations) > 0 {
		d.log.Debug().Str("action", entry.Action.Name).Strs("violations", violations).Msg("parameters rejected")
		return renderClarification(entry.Action, violations), nil
	}

	result, err := entry.Adapter.Execute(ctx, entry.Action.Name, params)
	if err != nil {
		return "", fmt.Errorf("execute %s: %w", entry.Action.Name, err)
	}
	result.Action = entry.Action.Name

	d.log.Info().
		Str("action", entry.Action.Name).
		Str("outcome", outcome(result)).
		Dur("took", time.Since(start)).
		Msg("request handled")

	if !result.Ok() {
		return renderFailure(result.Failure), nil
	}
	return renderSuccess(entry.Action, result), nil
}

// HandleDirect runs a named action with explicit parameters, skipping the
// resolver but never the validation. Unknown names are a caller error;
// parameter problems come back as a validation-failure Result.
func (d *Dispatcher) HandleDirect(ctx context.Context, action string, params contractx.ParameterSet) (contractx.Result, error) {
	entry, err := d.registry.Resolve(action)
	if err != nil {
		return contractx.Result{}, err
	}

	typedParams, violations, err := d.validator.check(entry.Action, params)
	if err != nil {
		return contractx.Result{}, fmt.Errorf("validate %s: %w", entry.Action.Name, err)
	}
	if len(violations) > 0 {
		res := contractx.Fail(contractx.FailValidation, "%s", strings.Join(violations, "; "))
		res.Action = entry.Action.Name
		return res, nil
	}

	result, err := entry.Adapter.Execute(ctx, entry.Action.Name, typedParams)
	if err != nil {
		return contractx.Result{}, fmt.Errorf("execute %s: %w", entry.Action.Name, err)
	}
	result.Action = entry.Action.Name

	d.log.Info().
		Str("action", entry.Action.Name).
		Str("outcome", outcome(result)).
		Msg("direct call handled")
	return result, nil
}

// Actions exposes the registered action list for surfaces that show
// capabilities.
func (d *Dispatcher) Actions() []contractx.Action {
	return d.registry.List()
}

func outcome(res contractx.Result) string {
	if res.Ok() {
		return "success"
	}
	return string(res.Failure.Kind)
}
