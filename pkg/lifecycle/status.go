package lifecycle

import (
	"context"

	"github.com/openlift/openlift/pkg/environment"
	"github.com/openlift/openlift/pkg/stores"
)

// Status returns the current record for an environment. It takes no
// lock: a read may observe the previous or the next record during a
// concurrent command, but never a partial one.
func (h *Handler) Status(ctx context.Context, name environment.Name) (environment.Environment, error) {
	env, err := h.d.Store.Load(ctx, name)
	if err != nil {
		return environment.Environment{}, h.loadError(name, "status", err)
	}
	return env, nil
}

// History returns an environment's recorded transitions, newest first.
func (h *Handler) History(ctx context.Context, name environment.Name, limit int) ([]*stores.TransitionEvent, error) {
	if h.d.Journal == nil {
		return nil, Errorf(ClassValidation, "no journal configured").
			WithOperation("status").
			WithEnvironment(name.String())
	}
	events, err := h.d.Journal.ListTransitions(ctx, name.String(), limit)
	if err != nil {
		return nil, NewError(ClassPersistence, err).
			WithOperation("status").
			WithEnvironment(name.String())
	}
	return events, nil
}

// List returns every stored environment, sorted by name.
func (h *Handler) List(ctx context.Context) ([]environment.Environment, error) {
	names, err := h.d.Store.List(ctx)
	if err != nil {
		return nil, NewError(ClassPersistence, err).WithOperation("list")
	}
	out := make([]environment.Environment, 0, len(names))
	for _, name := range names {
		env, err := h.d.Store.Load(ctx, name)
		if err != nil {
			return nil, h.loadError(name, "list", err)
		}
		out = append(out, env)
	}
	return out, nil
}
