package tracker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/proyeccion-moden/modengo/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.Project{}, &models.Module{}, &models.UserAuth{}); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

func seedModule(t *testing.T, db *gorm.DB) *models.Module {
	t.Helper()
	project := models.Project{Name: "P1"}
	if err := db.Create(&project).Error; err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	module := models.Module{Name: "M1", ProjectID: project.ID, State: models.ModulePending}
	if err := db.Create(&module).Error; err != nil {
		t.Fatalf("Failed to create module: %v", err)
	}
	return &module
}

func TestDeriveState(t *testing.T) {
	cases := []struct {
		closed, inferior, superior bool
		want                       models.ModuleState
	}{
		{false, false, false, models.ModulePending},
		{false, true, false, models.ModuleInProgress},
		{false, false, true, models.ModuleInProgress},
		{false, true, true, models.ModuleCompleted},
		{true, false, false, models.ModuleClosed},
		{true, true, false, models.ModuleClosed},
		{true, true, true, models.ModuleClosed},
	}

	for _, c := range cases {
		got := models.DeriveState(c.closed, c.inferior, c.superior)
		if got != c.want {
			t.Errorf("DeriveState(%v, %v, %v) = %s, want %s",
				c.closed, c.inferior, c.superior, got, c.want)
		}
	}
}

func TestMarkPhaseDone(t *testing.T) {
	db := openTestDB(t)
	tr := New(db)
	module := seedModule(t, db)

	if err := tr.MarkPhaseDone(nil, module.ID, models.PhaseInferior); err != nil {
		t.Fatalf("MarkPhaseDone failed: %v", err)
	}

	var got models.Module
	db.First(&got, module.ID)
	if !got.InferiorDone || got.SuperiorDone {
		t.Errorf("Expected only inferior done, got inferior=%v superior=%v",
			got.InferiorDone, got.SuperiorDone)
	}
	if got.State != models.ModuleInProgress {
		t.Errorf("Expected IN_PROGRESS, got %s", got.State)
	}

	if err := tr.MarkPhaseDone(nil, module.ID, models.PhaseSuperior); err != nil {
		t.Fatalf("MarkPhaseDone failed: %v", err)
	}
	db.First(&got, module.ID)
	if got.State != models.ModuleCompleted {
		t.Errorf("Expected COMPLETED, got %s", got.State)
	}

	// Repeating a completed phase changes nothing
	if err := tr.MarkPhaseDone(nil, module.ID, models.PhaseSuperior); err != nil {
		t.Fatalf("MarkPhaseDone (repeat) failed: %v", err)
	}
	db.First(&got, module.ID)
	if got.State != models.ModuleCompleted {
		t.Errorf("Expected COMPLETED after repeat, got %s", got.State)
	}
}

func TestMarkPhaseDoneRejectsUnknownPhase(t *testing.T) {
	db := openTestDB(t)
	tr := New(db)
	module := seedModule(t, db)

	if err := tr.MarkPhaseDone(nil, module.ID, models.Phase("MIDDLE")); err == nil {
		t.Error("Expected error for unknown phase")
	}
}

func TestCloseRequiresBothPhases(t *testing.T) {
	db := openTestDB(t)
	tr := New(db)
	module := seedModule(t, db)

	supervisor := &models.UserAuth{
		ID: "00000000-0000-0000-0000-000000000001", Username: "sup",
		Email: "sup@example.com", Password: "x", Role: models.RoleSupervisor,
	}
	if err := db.Create(supervisor).Error; err != nil {
		t.Fatalf("Failed to create supervisor: %v", err)
	}

	_, err := tr.Close(module.ID, supervisor)
	if !errors.Is(err, ErrPhasesIncomplete) {
		t.Fatalf("Expected ErrPhasesIncomplete, got %v", err)
	}

	var got models.Module
	db.First(&got, module.ID)
	if got.Closed {
		t.Error("Close must not set closed while phases are incomplete")
	}

	if err := tr.MarkPhaseDone(nil, module.ID, models.PhaseInferior); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Close(module.ID, supervisor); !errors.Is(err, ErrPhasesIncomplete) {
		t.Fatalf("Expected ErrPhasesIncomplete with one phase done, got %v", err)
	}

	if err := tr.MarkPhaseDone(nil, module.ID, models.PhaseSuperior); err != nil {
		t.Fatal(err)
	}
	closed, err := tr.Close(module.ID, supervisor)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if closed.State != models.ModuleClosed {
		t.Errorf("Expected CLOSED, got %s", closed.State)
	}

	db.First(&got, module.ID)
	if !got.Closed || got.ClosedAt == nil {
		t.Error("Expected closed flag and timestamp to be set")
	}
	if got.ClosedByID == nil || *got.ClosedByID != supervisor.ID {
		t.Error("Expected closed_by to record the supervisor")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	tr := New(db)
	module := seedModule(t, db)

	if err := tr.MarkPhaseDone(nil, module.ID, models.PhaseInferior); err != nil {
		t.Fatal(err)
	}
	if err := tr.MarkPhaseDone(nil, module.ID, models.PhaseSuperior); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Close(module.ID, nil); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var first models.Module
	db.First(&first, module.ID)

	// Repeat close is a no-op, metadata unchanged
	if _, err := tr.Close(module.ID, nil); err != nil {
		t.Fatalf("Repeat close failed: %v", err)
	}

	var second models.Module
	db.First(&second, module.ID)
	if second.ClosedAt == nil || first.ClosedAt == nil || !second.ClosedAt.Equal(*first.ClosedAt) {
		t.Error("Repeat close must not touch the original closure timestamp")
	}
}

func TestClosedIsLatched(t *testing.T) {
	db := openTestDB(t)
	tr := New(db)
	module := seedModule(t, db)

	if err := tr.MarkPhaseDone(nil, module.ID, models.PhaseInferior); err != nil {
		t.Fatal(err)
	}
	if err := tr.MarkPhaseDone(nil, module.ID, models.PhaseSuperior); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Close(module.ID, nil); err != nil {
		t.Fatal(err)
	}

	// Re-marking a phase after closure keeps the module CLOSED
	if err := tr.MarkPhaseDone(nil, module.ID, models.PhaseInferior); err != nil {
		t.Fatal(err)
	}

	var got models.Module
	db.First(&got, module.ID)
	if got.State != models.ModuleClosed || !got.Closed {
		t.Errorf("Closure must survive phase-flag writes, got state=%s closed=%v",
			got.State, got.Closed)
	}
}

func TestRecomputeIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	tr := New(db)
	module := seedModule(t, db)

	for i := 0; i < 3; i++ {
		if err := tr.Recompute(module.ID); err != nil {
			t.Fatalf("Recompute failed: %v", err)
		}
	}

	var got models.Module
	db.First(&got, module.ID)
	if got.State != models.ModulePending {
		t.Errorf("Expected PENDING, got %s", got.State)
	}
}
