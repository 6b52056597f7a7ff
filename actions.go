package perfprobe

import (
	"context"
)

// Action is the common interface for an action that will be executed
// against a page's Session.
type Action interface {
	// Do executes the action using the provided context. The context
	// carries the Session as its cdp.Executor.
	Do(context.Context) error
}

// ActionFunc is an adapter to allow the use of ordinary func's as an Action.
type ActionFunc func(context.Context) error

// Do executes the func f using the provided context.
func (f ActionFunc) Do(ctx context.Context) error {
	return f(ctx)
}

// Tasks is a sequential list of Actions that can be used as a single Action.
type Tasks []Action

// Do executes the list of Actions sequentially, stopping at the first
// error.
func (t Tasks) Do(ctx context.Context) error {
	for _, a := range t {
		if err := a.Do(ctx); err != nil {
			return err
		}
	}
	return nil
}
