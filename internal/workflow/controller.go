// Package workflow drives the per-deliverable approval stage changes
// and the per-process audit history.
package workflow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/MaykGomes92/teste-ar-sub000/internal/deliverable"
	"github.com/MaykGomes92/teste-ar-sub000/internal/store"
)

// StageStore is the write side of the register store plus the audit
// read procedure.
type StageStore interface {
	UpdateProcessStage(ctx context.Context, id string, stage int, actor string) error
	UpdateRiskStage(ctx context.Context, id string, stage int, actor string) error
	UpdateControlStage(ctx context.Context, id string, stage int, actor string) error
	UpdateTestStage(ctx context.Context, id string, stage int, actor string) error
	UpdateDataItemStage(ctx context.Context, id string, stage int, actor string) error
	UpdateProcessValidation(ctx context.Context, processID, field, value string, validatedBy *string, validatedAt *time.Time, actor string) error
	ProcessStatusLogs(ctx context.Context, processID string) ([]store.StatusLogEntry, error)
}

// target describes where a deliverable type's stage is persisted.
// Embedded types translate their synthetic id back to the owning process
// id and compress the stage onto the tri-state validation value.
type target struct {
	collection string
	recordID   func(deliverableID string) string
	apply      func(ctx context.Context, s StageStore, recordID string, stage int, actor string, now time.Time) error
}

func backed(collection string, write func(StageStore) func(context.Context, string, int, string) error) target {
	return target{
		collection: collection,
		recordID:   func(id string) string { return id },
		apply: func(ctx context.Context, s StageStore, recordID string, stage int, actor string, _ time.Time) error {
			return write(s)(ctx, recordID, stage, actor)
		},
	}
}

func embedded(suffix, field string) target {
	return target{
		collection: "processes",
		recordID: func(id string) string {
			return strings.TrimSuffix(id, suffix)
		},
		apply: func(ctx context.Context, s StageStore, recordID string, stage int, actor string, now time.Time) error {
			value := deliverable.ValidationFromStage(stage)
			var validatedBy *string
			var validatedAt *time.Time
			if value == deliverable.ValidationApproved {
				validatedBy = &actor
				validatedAt = &now
			}
			return s.UpdateProcessValidation(ctx, recordID, field, value, validatedBy, validatedAt, actor)
		},
	}
}

// targets maps each deliverable type onto its persistence target.
// Adding a type means adding a row here, not a branch.
var targets = map[deliverable.Type]target{
	deliverable.TypeProcess: backed("processes", func(s StageStore) func(context.Context, string, int, string) error {
		return s.UpdateProcessStage
	}),
	deliverable.TypeRisk: backed("risks", func(s StageStore) func(context.Context, string, int, string) error {
		return s.UpdateRiskStage
	}),
	deliverable.TypeControl: backed("controls", func(s StageStore) func(context.Context, string, int, string) error {
		return s.UpdateControlStage
	}),
	deliverable.TypeTest: backed("tests", func(s StageStore) func(context.Context, string, int, string) error {
		return s.UpdateTestStage
	}),
	deliverable.TypeData: backed("data_items", func(s StageStore) func(context.Context, string, int, string) error {
		return s.UpdateDataItemStage
	}),
	deliverable.TypeAccountability: embedded(deliverable.SuffixRACI, "raci"),
	deliverable.TypeNarrative:      embedded(deliverable.SuffixDescritivo, "descritivo"),
}

// Controller applies operator-driven stage changes. Transitions are
// unconstrained: any stage is reachable from any other in one action.
type Controller struct {
	store StageStore
	now   func() time.Time
}

func NewController(store StageStore) *Controller {
	return &Controller{store: store, now: time.Now}
}

// UpdateStage looks the deliverable up in the supplied normalized list
// and dispatches the write to its backing collection. A lookup miss is
// logged and ignored (the list the operator acted on is already stale);
// a write failure is returned to the caller. The controller never
// inserts audit rows itself; the store's triggers own that.
func (c *Controller) UpdateStage(ctx context.Context, deliverables []deliverable.Deliverable, deliverableID string, newStage int, actor string) (bool, error) {
	if !deliverable.ValidStage(newStage) {
		return false, fmt.Errorf("stage %d outside pipeline range", newStage)
	}

	var found *deliverable.Deliverable
	for i := range deliverables {
		if deliverables[i].ID == deliverableID {
			found = &deliverables[i]
			break
		}
	}
	if found == nil {
		log.Printf("workflow: deliverable %s not in current set, ignoring stage change", deliverableID)
		return false, nil
	}

	t, ok := targets[found.Type]
	if !ok {
		return false, fmt.Errorf("no persistence target for type %q", found.Type)
	}

	recordID := t.recordID(found.ID)
	if err := t.apply(ctx, c.store, recordID, newStage, actor, c.now()); err != nil {
		return false, fmt.Errorf("update %s %s: %w", t.collection, recordID, err)
	}
	return true, nil
}

// Logs reads the per-process change history. It degrades to an empty
// list on error; the history panel shows "no changes recorded" rather
// than an error state.
func (c *Controller) Logs(ctx context.Context, processID string) []store.StatusLogEntry {
	entries, err := c.store.ProcessStatusLogs(ctx, processID)
	if err != nil {
		log.Printf("workflow: status log read for %s failed: %v", processID, err)
		return []store.StatusLogEntry{}
	}
	if entries == nil {
		entries = []store.StatusLogEntry{}
	}
	return entries
}
