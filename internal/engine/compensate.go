package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"batchplane/internal/store"
)

// compensateRun replays the run's compensation log in reverse sequence
// order, last action first. Only PENDING entries are touched; each entry
// gets exactly one outcome and a failure never aborts the remaining
// entries. The returned error carries the fetch failure or the collected
// compensator raises; missing compensators and false returns stay on the
// entry only.
func (e *Engine) compensateRun(ctx context.Context, runID int64) error {
	e.log.Info("start compensation", "run_id", runID)

	ops, err := e.store.FetchCompensationsDesc(ctx, runID)
	if err != nil {
		return fmt.Errorf("fetch compensations for run %d failed: %w", runID, err)
	}
	if len(ops) == 0 {
		e.log.Info("no compensation entries", "run_id", runID)
		return nil
	}

	var raised []string

	for _, op := range ops {
		if op.Status != store.OpStatusPending {
			continue
		}

		if op.ActionType == nil {
			e.markFailed(ctx, op.ID, "MISSING_ACTION_TYPE")
			continue
		}
		actionType := *op.ActionType

		c, ok := e.compensators.Get(actionType)
		if !ok {
			msg := "No compensator registered for actionType=" + actionType
			e.log.Warn(msg, "op_id", op.ID)
			e.markFailed(ctx, op.ID, msg)
			continue
		}

		ok, cerr := e.invokeCompensator(ctx, c, runID, op.ActionPayload)
		switch {
		case cerr != nil:
			msg := trimErr(cerr.Error())
			e.log.Error("compensation errored", "op_id", op.ID, "action_type", actionType, "error", msg)
			e.markFailed(ctx, op.ID, msg)
			raised = append(raised, msg)
		case ok:
			if err := e.store.MarkCompensationDone(ctx, op.ID); err != nil {
				e.log.Error("failed to mark compensation done", "op_id", op.ID, "error", err)
			} else {
				e.log.Info("compensation done", "op_id", op.ID, "action_type", actionType)
			}
		default:
			e.log.Warn("compensation returned false", "op_id", op.ID, "action_type", actionType)
			e.markFailed(ctx, op.ID, "COMPENSATE_RETURNED_FALSE")
		}
	}

	e.log.Info("compensation finished", "run_id", runID)
	if len(raised) > 0 {
		return errors.New(strings.Join(raised, "; "))
	}
	return nil
}

// invokeCompensator guards a single compensator call: a malformed payload or
// a panicking compensator surfaces as an error on that entry only.
func (e *Engine) invokeCompensator(ctx context.Context, c Compensator, runID int64, payload string) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("compensator panicked: %v", r)
		}
	}()

	if payload == "" {
		payload = "{}"
	}
	if !json.Valid([]byte(payload)) {
		return false, fmt.Errorf("invalid compensation payload JSON")
	}
	return c.Compensate(ctx, runID, json.RawMessage(payload))
}

func (e *Engine) markFailed(ctx context.Context, opID int64, msg string) {
	if err := e.store.MarkCompensationFailed(ctx, opID, msg); err != nil {
		e.log.Error("failed to mark compensation failed", "op_id", opID, "error", err)
	}
}
