package memory

import (
	"context"
	"testing"

	"spacecore/pkg/domain"
)

func strptr(s string) *string { return &s }

func seedSpace(t *testing.T, store *Store) Space {
	t.Helper()
	var created Space
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreateSpace(Space{
			Description: "South wall",
			Status:      domain.StatusAvailable,
			Images:      []domain.ImageRef{{Src: "a.jpg", TakenAt: strptr("2025-01-01T00:00:00")}},
			CreatedBy:   "Admin",
			CreatedAt:   "2025-01-01T00:00:00",
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return created
}

func TestCreateSpaceAssignsSequentialIDs(t *testing.T) {
	store := NewStore(nil)
	first := seedSpace(t, store)
	second := seedSpace(t, store)
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first.ID, second.ID)
	}
}

func TestCreateSpaceIDReuseAfterGap(t *testing.T) {
	store := NewStore(nil)
	store.ImportState(Snapshot{Spaces: []Space{{ID: 5, Status: domain.StatusAvailable}}})
	created := seedSpace(t, store)
	if created.ID != 6 {
		t.Fatalf("expected id 6 (max+1), got %d", created.ID)
	}
}

func TestCreateSpaceRejectsCollidingID(t *testing.T) {
	store := NewStore(nil)
	seedSpace(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateSpace(Space{ID: 1})
		return err
	})
	if _, ok := err.(domain.ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAppendAndRevertRoundTrip(t *testing.T) {
	store := NewStore(nil)
	created := seedSpace(t, store)

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.AppendUpdate(created.ID, UpdateEvent{
			Author:    "X",
			Action:    domain.ActionTaken,
			CreatedAt: "2025-02-01T00:00:00",
			Status:    domain.StatusTaken,
		}, false)
		return err
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	got, ok := store.GetSpace(created.ID)
	if !ok || got.Status != domain.StatusTaken || len(got.Updates) != 1 {
		t.Fatalf("append not committed: %+v", got)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.RevertUpdate(created.ID)
		return err
	})
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	got, _ = store.GetSpace(created.ID)
	if got.Status != domain.StatusAvailable || len(got.Updates) != 0 {
		t.Fatalf("revert not committed: %+v", got)
	}
}

func TestAppendUnknownSpace(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.AppendUpdate(42, UpdateEvent{
			Author:    "X",
			Action:    domain.ActionUpdate,
			CreatedAt: "2025-02-01T00:00:00",
			Status:    domain.StatusDraft,
		}, false)
		return err
	})
	if _, ok := err.(domain.NotFoundError); !ok {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestFailedTransactionLeavesStateUntouched(t *testing.T) {
	store := NewStore(nil)
	created := seedSpace(t, store)

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.AppendUpdate(created.ID, UpdateEvent{
			Author:    "X",
			Action:    domain.ActionTaken,
			CreatedAt: "2025-02-01T00:00:00",
			Status:    domain.StatusTaken,
		}, false); err != nil {
			return err
		}
		_, err := tx.RevertUpdate(999)
		return err
	})
	if err == nil {
		t.Fatalf("expected transaction failure")
	}
	got, _ := store.GetSpace(created.ID)
	if len(got.Updates) != 0 {
		t.Fatalf("partial mutation leaked: %+v", got.Updates)
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "always-block" }

func (blockingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	res := Result{}
	for range changes {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "always-block",
			Severity: domain.SeverityBlock,
			Message:  "blocked",
		})
	}
	return res, nil
}

func TestBlockingViolationAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := NewStore(engine)

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateSpace(Space{Description: "blocked"})
		return err
	})
	if _, ok := err.(domain.RuleViolationError); !ok {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if len(store.ListSpaces()) != 0 {
		t.Fatalf("blocked transaction was committed")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := NewStore(nil)
	seedSpace(t, store)
	seedSpace(t, store)

	snapshot := store.ExportState()
	if len(snapshot.Spaces) != 2 || snapshot.Spaces[0].ID != 1 {
		t.Fatalf("unexpected snapshot: %+v", snapshot.Spaces)
	}

	restored := NewStore(nil)
	restored.ImportState(snapshot)
	if got := restored.ListSpaces(); len(got) != 2 || got[1].ID != 2 {
		t.Fatalf("restore mismatch: %+v", got)
	}
}

func TestViewIsReadOnlySnapshot(t *testing.T) {
	store := NewStore(nil)
	created := seedSpace(t, store)

	err := store.View(context.Background(), func(view TransactionView) error {
		space, ok := view.FindSpace(created.ID)
		if !ok {
			t.Fatalf("space missing from view")
		}
		space.Description = "mutated"
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	got, _ := store.GetSpace(created.ID)
	if got.Description != "South wall" {
		t.Fatalf("view mutation leaked: %q", got.Description)
	}
}
