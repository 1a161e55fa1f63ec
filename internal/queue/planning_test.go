package queue

import (
	"errors"
	"testing"

	"github.com/proyeccion-moden/modengo/internal/models"
)

func planningFixture(t *testing.T) (*Planning, *models.Project, []*models.Module) {
	t.Helper()
	db := openTestDB(t)

	project := models.Project{Name: "P1"}
	if err := db.Create(&project).Error; err != nil {
		t.Fatal(err)
	}
	var modules []*models.Module
	for _, name := range []string{"M1", "M2", "M3"} {
		m := &models.Module{Name: name, ProjectID: project.ID, State: models.ModulePending}
		if err := db.Create(m).Error; err != nil {
			t.Fatal(err)
		}
		modules = append(modules, m)
	}
	return NewPlanning(db), &project, modules
}

func TestEnsureQueueIsIdempotent(t *testing.T) {
	planning, project, _ := planningFixture(t)

	first, err := planning.EnsureQueue(project.ID, nil)
	if err != nil {
		t.Fatalf("EnsureQueue failed: %v", err)
	}
	second, err := planning.EnsureQueue(project.ID, nil)
	if err != nil {
		t.Fatalf("EnsureQueue (repeat) failed: %v", err)
	}
	if first.ID != second.ID {
		t.Error("Expected one queue per project")
	}
}

func TestEnsureQueueUnknownProject(t *testing.T) {
	planning, _, _ := planningFixture(t)
	if _, err := planning.EnsureQueue(99999, nil); err == nil {
		t.Error("Expected error for unknown project")
	}
}

func TestPushRejectsDuplicateModule(t *testing.T) {
	planning, project, modules := planningFixture(t)

	pq, _ := planning.EnsureQueue(project.ID, nil)
	if _, err := planning.Push(pq.ID, modules[0].ID, 1, nil); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if _, err := planning.Push(pq.ID, modules[0].ID, 5, nil); !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("Expected ErrDuplicateEntry, got %v", err)
	}
}

func TestEntriesOrderAndNext(t *testing.T) {
	planning, project, modules := planningFixture(t)
	pq, _ := planning.EnsureQueue(project.ID, nil)

	planning.Push(pq.ID, modules[0].ID, 3, nil)
	planning.Push(pq.ID, modules[1].ID, 1, nil)
	planning.Push(pq.ID, modules[2].ID, 2, nil)

	entries, err := planning.Entries(pq.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint{modules[1].ID, modules[2].ID, modules[0].ID}
	if len(entries) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(entries))
	}
	for i, entry := range entries {
		if entry.ModuleID != want[i] {
			t.Errorf("Entry %d: expected module %d, got %d", i, want[i], entry.ModuleID)
		}
	}

	next, err := planning.Next(pq.ID)
	if err != nil {
		t.Fatal(err)
	}
	if next == nil || next.ModuleID != modules[1].ID {
		t.Error("Next must return the lowest position entry")
	}
}

func TestNextOnEmptyQueue(t *testing.T) {
	planning, project, _ := planningFixture(t)
	pq, _ := planning.EnsureQueue(project.ID, nil)

	next, err := planning.Next(pq.ID)
	if err != nil {
		t.Fatal(err)
	}
	if next != nil {
		t.Error("Expected nil for an empty backlog")
	}
}

func TestPlanningReorderIsLenient(t *testing.T) {
	planning, project, modules := planningFixture(t)
	pq, _ := planning.EnsureQueue(project.ID, nil)

	entry, _ := planning.Push(pq.ID, modules[0].ID, 1, nil)

	updated, err := planning.Reorder(pq.ID, []ReorderPair{
		{ItemID: entry.ID, Position: 4},
		{ItemID: 99999, Position: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated != 1 {
		t.Errorf("Expected 1 row updated, got %d", updated)
	}
}

func TestRemoveEntry(t *testing.T) {
	planning, project, modules := planningFixture(t)
	pq, _ := planning.EnsureQueue(project.ID, nil)

	entry, _ := planning.Push(pq.ID, modules[0].ID, 1, nil)
	if err := planning.Remove(entry.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	entries, _ := planning.Entries(pq.ID)
	if len(entries) != 0 {
		t.Errorf("Expected empty backlog, got %d entries", len(entries))
	}

	// A removed module can be queued again
	if _, err := planning.Push(pq.ID, modules[0].ID, 2, nil); err != nil {
		t.Fatalf("Re-push after remove failed: %v", err)
	}
}
