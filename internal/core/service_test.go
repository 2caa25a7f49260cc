package core

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"spacecore/internal/projection"
	"spacecore/pkg/domain"
)

func strptr(s string) *string { return &s }

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	return NewInMemoryService(opts...)
}

func createSpace(t *testing.T, svc *Service) Space {
	t.Helper()
	created, _, err := svc.CreateSpace(context.Background(), Space{
		Description: "North wall",
		Images:      []ImageRef{{Src: "a.jpg", TakenAt: strptr("2025-01-01T00:00:00")}},
		CreatedBy:   "Admin",
		CreatedAt:   "2025-01-01T00:00:00",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return created
}

func TestCreateSpaceDefaults(t *testing.T) {
	svc := newTestService(t)
	created := createSpace(t, svc)
	if created.ID != 1 {
		t.Fatalf("expected id 1, got %d", created.ID)
	}
	if created.Status != StatusAvailable {
		t.Fatalf("expected available, got %q", created.Status)
	}

	second := createSpace(t, svc)
	if second.ID != 2 {
		t.Fatalf("expected id 2, got %d", second.ID)
	}
}

func TestMarkTakenScenario(t *testing.T) {
	// Scenario: available space, taken event by X.
	svc := newTestService(t)
	created := createSpace(t, svc)

	updated, _, err := svc.MarkTaken(context.Background(), created.ID, TakeRequest{
		Artist: "X",
		Note:   "corner piece",
		At:     "2025-02-01T00:00:00",
	})
	if err != nil {
		t.Fatalf("mark taken: %v", err)
	}
	if updated.Status != StatusTaken || updated.TakenBy != "X" {
		t.Fatalf("unexpected state: %+v", updated)
	}
	if len(updated.TakenArtists) != 1 || updated.TakenArtists[0].Name != "X" {
		t.Fatalf("expected single assignment: %+v", updated.TakenArtists)
	}
}

func TestMarkTakenTwiceAccumulatesOneAssignment(t *testing.T) {
	svc := newTestService(t)
	created := createSpace(t, svc)

	for _, note := range []string{"first", "second"} {
		if _, _, err := svc.MarkTaken(context.Background(), created.ID, TakeRequest{
			Artist: "X",
			Note:   note,
			At:     "2025-02-01T00:00:00",
		}); err != nil {
			t.Fatalf("mark taken: %v", err)
		}
	}
	got, _ := svc.GetSpace(created.ID)
	if len(got.TakenArtists) != 1 {
		t.Fatalf("expected one assignment, got %d", len(got.TakenArtists))
	}
	if notes := got.TakenArtists[0].Notes; len(notes) != 2 || notes[0] != "first" || notes[1] != "second" {
		t.Fatalf("expected both notes, got %v", notes)
	}
}

func TestPublishReplacementAndRevert(t *testing.T) {
	// Scenarios: publish a replacement representative, then revert it.
	svc := newTestService(t)
	created := createSpace(t, svc)
	if _, _, err := svc.MarkTaken(context.Background(), created.ID, TakeRequest{
		Artist: "X",
		At:     "2025-02-01T00:00:00",
	}); err != nil {
		t.Fatalf("mark taken: %v", err)
	}

	published, _, err := svc.MarkTaken(context.Background(), created.ID, TakeRequest{
		Artist:           "X",
		At:               "2025-03-01T00:00:00",
		ReplacementImage: &ImageRef{Src: "b.jpg", TakenAt: strptr("2025-03-01T00:00:00")},
		Publish:          true,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if published.Status != StatusPublished {
		t.Fatalf("expected published, got %q", published.Status)
	}
	if len(published.Images) != 2 || published.Images[0].Src != "b.jpg" || published.Images[1].Src != "a.jpg" {
		t.Fatalf("unexpected images: %+v", published.Images)
	}
	// A publish-mark still records the claim; only the status flips.
	if published.TakenBy != "X" {
		t.Fatalf("expected taken_by to survive a publish-mark, got %q", published.TakenBy)
	}
	if last := published.Updates[len(published.Updates)-1]; last.Action != ActionTaken {
		t.Fatalf("expected taken action on the publish event, got %q", last.Action)
	}

	reverted, _, err := svc.RevertUpdate(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if reverted.Status != StatusTaken {
		t.Fatalf("expected taken after revert, got %q", reverted.Status)
	}
	if len(reverted.Images) != 1 || reverted.Images[0].Src != "a.jpg" {
		t.Fatalf("representative not restored: %+v", reverted.Images)
	}
	if len(reverted.Updates) != 1 || reverted.Updates[0].Action != ActionTaken {
		t.Fatalf("expected taken event to remain: %+v", reverted.Updates)
	}
}

func TestMarkTakenPublishRecordsArtist(t *testing.T) {
	// Publishing directly, without a prior taken mark, must still create
	// the assignment and the taken_by mirror.
	svc := newTestService(t)
	created := createSpace(t, svc)

	published, _, err := svc.MarkTaken(context.Background(), created.ID, TakeRequest{
		Artist:           "X",
		At:               "2025-03-01T00:00:00",
		ReplacementImage: &ImageRef{Src: "b.jpg"},
		Publish:          true,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if published.TakenBy != "X" {
		t.Fatalf("taken_by = %q, want X", published.TakenBy)
	}
	if len(published.TakenArtists) != 1 || published.TakenArtists[0].Name != "X" {
		t.Fatalf("expected assignment for X, got %+v", published.TakenArtists)
	}
	if published.Status != StatusPublished {
		t.Fatalf("status = %q, want published", published.Status)
	}
}

func TestMarkTakenWithInstructions(t *testing.T) {
	svc := newTestService(t)
	created := createSpace(t, svc)

	updated, _, err := svc.MarkTaken(context.Background(), created.ID, TakeRequest{
		Artist:            "X",
		Note:              "back gate",
		At:                "2025-02-01T00:00:00",
		Instructions:      "use the hook entrance",
		InstructionImages: []ImageRef{{Src: "sketch.jpg"}},
	})
	if err != nil {
		t.Fatalf("mark taken: %v", err)
	}
	if updated.Status != StatusTaken {
		t.Fatalf("status = %q, want taken", updated.Status)
	}
	if len(updated.TakenArtists) != 1 {
		t.Fatalf("expected one assignment, got %+v", updated.TakenArtists)
	}
	entry := updated.TakenArtists[0]
	if len(entry.Notes) != 1 || entry.Notes[0] != "back gate" {
		t.Fatalf("notes = %v", entry.Notes)
	}
	if len(entry.Instructions) != 1 || entry.Instructions[0] != "use the hook entrance" {
		t.Fatalf("instructions = %v", entry.Instructions)
	}
	if len(entry.InstructionImages) != 1 || entry.InstructionImages[0].Src != "sketch.jpg" {
		t.Fatalf("instruction images = %+v", entry.InstructionImages)
	}
	// Instruction images never enter the space's own image list.
	if len(updated.Images) != 1 || updated.Images[0].Src != "a.jpg" {
		t.Fatalf("images = %+v", updated.Images)
	}
}

func TestMarkTakenInstructionsWithReplacement(t *testing.T) {
	svc := newTestService(t)
	created := createSpace(t, svc)

	updated, _, err := svc.MarkTaken(context.Background(), created.ID, TakeRequest{
		Artist:            "X",
		At:                "2025-02-01T00:00:00",
		ReplacementImage:  &ImageRef{Src: "b.jpg"},
		InstructionImages: []ImageRef{{Src: "sketch.jpg"}},
	})
	if err != nil {
		t.Fatalf("mark taken: %v", err)
	}
	// The replacement leads the image list; the instruction image stays out.
	if len(updated.Images) != 2 || updated.Images[0].Src != "b.jpg" || updated.Images[1].Src != "a.jpg" {
		t.Fatalf("images = %+v", updated.Images)
	}
	if len(updated.TakenArtists) != 1 || len(updated.TakenArtists[0].InstructionImages) != 1 {
		t.Fatalf("assignment = %+v", updated.TakenArtists)
	}
}

func TestRevertEmptyLog(t *testing.T) {
	svc := newTestService(t)
	created := createSpace(t, svc)

	_, _, err := svc.RevertUpdate(context.Background(), created.ID)
	if _, ok := err.(domain.EmptyLogError); !ok {
		t.Fatalf("expected EmptyLogError, got %v", err)
	}
	got, _ := svc.GetSpace(created.ID)
	if got.Status != StatusAvailable || len(got.Updates) != 0 {
		t.Fatalf("store changed by failed revert: %+v", got)
	}
}

func TestAppendUnknownSpace(t *testing.T) {
	svc := newTestService(t)
	_, _, err := svc.AppendUpdate(context.Background(), 42, UpdateEvent{
		Author: "X",
		Action: ActionUpdate,
		Status: StatusDraft,
	}, false)
	if _, ok := err.(domain.NotFoundError); !ok {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestMutationsRegenerateProjections(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(t, WithProjectionWriter(projection.NewWriter(dir, nil)))
	createSpace(t, svc)

	if _, err := os.Stat(filepath.Join(dir, projection.MinimalFileName)); err != nil {
		t.Fatalf("minimal view missing after mutation: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, projection.TimelineFileName)); err != nil {
		t.Fatalf("timeline missing after mutation: %v", err)
	}
}

type captureMetricsRecorder struct {
	mu  sync.Mutex
	ops map[string]bool // operation -> success seen
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ops == nil {
		c.ops = make(map[string]bool)
	}
	c.ops[op] = success
}

func TestServiceObservability(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	tracer := NewJSONTracer(nil)
	svc := newTestService(t, WithMetricsRecorder(metrics), WithTracer(tracer))

	createSpace(t, svc)
	if _, _, err := svc.RevertUpdate(context.Background(), 99); err == nil {
		t.Fatalf("expected revert failure")
	}

	metrics.mu.Lock()
	createOK, sawCreate := metrics.ops["create_space"]
	revertOK, sawRevert := metrics.ops["revert_update"]
	metrics.mu.Unlock()
	if !sawCreate || !createOK {
		t.Fatalf("create_space metric not recorded as success")
	}
	if !sawRevert || revertOK {
		t.Fatalf("revert_update metric not recorded as error")
	}

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(entries))
	}
	if entries[1].Status != "error" || entries[1].Error == "" {
		t.Fatalf("expected failed span with error, got %+v", entries[1])
	}
}

func TestPrometheusRecorderRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	rec.Observe(context.Background(), "create_space", true, 5*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	if !names["spacecore_service_operation_duration_seconds"] || !names["spacecore_service_operation_results_total"] {
		t.Fatalf("expected service collectors, got %v", names)
	}
}

func TestExpvarRecorderSnapshot(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	rec.Observe(context.Background(), "append_update", true, 10*time.Millisecond)
	rec.Observe(context.Background(), "append_update", false, 5*time.Millisecond)

	snap := rec.Snapshot()
	if snap.Results["append_update"]["success"] != 1 || snap.Results["append_update"]["error"] != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.DurationsMS["append_update"] <= 0 {
		t.Fatalf("expected accumulated duration, got %+v", snap.DurationsMS)
	}
}

func TestStatusConsistencyRuleBlocks(t *testing.T) {
	svc := newTestService(t)
	_, _, err := svc.CreateSpace(context.Background(), Space{
		Description: "bad status",
		Status:      StatusPublished, // empty log derives available
		CreatedBy:   "Admin",
		CreatedAt:   "2025-01-01T00:00:00",
	})
	if _, ok := err.(RuleViolationError); !ok {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if len(svc.ListSpaces()) != 0 {
		t.Fatalf("blocked create was committed")
	}
}

func TestEventOrderRuleWarns(t *testing.T) {
	svc := newTestService(t)
	created := createSpace(t, svc)

	if _, _, err := svc.AppendUpdate(context.Background(), created.ID, UpdateEvent{
		Author:    "X",
		Action:    ActionUpdate,
		Status:    StatusDraft,
		CreatedAt: "2025-05-01T00:00:00",
	}, false); err != nil {
		t.Fatalf("append: %v", err)
	}
	_, res, err := svc.AppendUpdate(context.Background(), created.ID, UpdateEvent{
		Author:    "X",
		Action:    ActionUpdate,
		Status:    StatusDraft,
		CreatedAt: "2025-04-01T00:00:00", // predates prior event
	}, false)
	if err != nil {
		t.Fatalf("out-of-order append must still commit: %v", err)
	}
	var warned bool
	for _, v := range res.Violations {
		if v.Rule == "event-order" && v.Severity == SeverityWarn {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected event-order warning, got %+v", res.Violations)
	}
}

func TestDuplicateImageRuleWarns(t *testing.T) {
	svc := newTestService(t)
	created := createSpace(t, svc)

	_, res, err := svc.AppendUpdate(context.Background(), created.ID, UpdateEvent{
		Author:    "X",
		Action:    ActionUpdate,
		Status:    StatusDraft,
		CreatedAt: "2025-05-01T00:00:00",
		Images:    []ImageRef{{Src: "a.jpg"}}, // already present on the space
	}, true)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	var warned bool
	for _, v := range res.Violations {
		if v.Rule == "duplicate-image" && v.Severity == SeverityWarn {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected duplicate-image warning, got %+v", res.Violations)
	}
}

func TestOpenPersistentStoreDrivers(t *testing.T) {
	t.Setenv("SPACECORE_STORAGE_DRIVER", "memory")
	store, err := OpenPersistentStore(DefaultRulesEngine(), nil)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if store == nil {
		t.Fatalf("nil store")
	}

	t.Setenv("SPACECORE_STORAGE_DRIVER", "jsonfile")
	t.Setenv("SPACECORE_JSON_PATH", filepath.Join(t.TempDir(), "spaces.json"))
	if _, err := OpenPersistentStore(DefaultRulesEngine(), nil); err != nil {
		t.Fatalf("open jsonfile: %v", err)
	}

	t.Setenv("SPACECORE_STORAGE_DRIVER", "bogus")
	if _, err := OpenPersistentStore(DefaultRulesEngine(), nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
