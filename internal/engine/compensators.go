package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
)

// Compensator undoes one recorded action of a failed run. Compensate returns
// true on success and false when the entry needs retry or operator
// attention; side-effect idempotence is the compensator's responsibility.
type Compensator interface {
	ActionType() string
	Compensate(ctx context.Context, runID int64, payload json.RawMessage) (bool, error)
}

// CompensatorRegistry resolves action types to compensator instances.
// First registration wins; conflicts warn.
type CompensatorRegistry struct {
	log *slog.Logger
	m   sync.Map // action type -> Compensator
}

func NewCompensatorRegistry(log *slog.Logger) *CompensatorRegistry {
	if log == nil {
		log = slog.Default()
	}
	return &CompensatorRegistry{log: log}
}

func (r *CompensatorRegistry) Register(c Compensator) {
	if c == nil || c.ActionType() == "" {
		return
	}
	if prev, loaded := r.m.LoadOrStore(c.ActionType(), c); loaded && prev != c {
		r.log.Warn("compensator conflict, keeping existing binding", "action_type", c.ActionType())
	}
}

func (r *CompensatorRegistry) Get(actionType string) (Compensator, bool) {
	v, ok := r.m.Load(actionType)
	if !ok {
		return nil, false
	}
	return v.(Compensator), true
}

func (r *CompensatorRegistry) Types() []string {
	var types []string
	r.m.Range(func(k, _ any) bool {
		types = append(types, k.(string))
		return true
	})
	sort.Strings(types)
	return types
}
