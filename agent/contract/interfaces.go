package contract

import "context"

// Resolver maps one free-text request onto at most one registered action.
// Finding no action is a valid outcome, not an error; errors are reserved
// for model invocation problems.
type Resolver interface {
	Resolve(ctx context.Context, text string, actions []Action) (Resolution, error)
}

// Adapter executes the actions of one external service. Execute must never
// surface a service failure as an error: auth, transport, quota and input
// problems all come back inside the Result. The error return is for plumbing
// bugs only, such as being handed an action the adapter does not own.
type Adapter interface {
	Service() string
	Actions() []Action
	Execute(ctx context.Context, action string, params ParameterSet) (Result, error)
}
