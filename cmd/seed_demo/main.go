package main

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/proyeccion-moden/modengo/internal/config"
	"github.com/proyeccion-moden/modengo/internal/database"
	"github.com/proyeccion-moden/modengo/internal/models"
	"github.com/proyeccion-moden/modengo/internal/utils"
)

func main() {
	fmt.Println("🌱 modengo Demo Data Seeder")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Println("🔨 Running database migrations...")
	err = db.AutoMigrate(
		&models.UserAuth{},
		&models.Project{},
		&models.Floor{},
		&models.Module{},
		&models.DrawingAsset{},
		&models.Desk{},
		&models.WorkItem{},
		&models.PlanningQueue{},
		&models.PlanningQueueEntry{},
		&models.PairingSession{},
		&models.StagedDeviceToken{},
	)
	if err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	password, err := utils.HashPassword("admin123")
	if err != nil {
		log.Fatalf("❌ Failed to hash password: %v", err)
	}
	admin := models.UserAuth{
		ID:       uuid.NewString(),
		Username: "admin",
		Email:    "admin@example.com",
		Password: password,
		Role:     models.RoleAdmin,
	}
	if err := db.Where("username = ?", admin.Username).FirstOrCreate(&admin).Error; err != nil {
		log.Fatalf("❌ Failed to seed admin: %v", err)
	}
	fmt.Println("✅ Admin user ready (admin@example.com / admin123)")

	project := models.Project{Name: "Demo Project", OwnerID: &admin.ID}
	if err := db.Where("name = ?", project.Name).FirstOrCreate(&project).Error; err != nil {
		log.Fatalf("❌ Failed to seed project: %v", err)
	}

	floor := models.Floor{Name: "Level 1", ProjectID: project.ID, Ordinal: 1}
	if err := db.Where("project_id = ? AND name = ?", project.ID, floor.Name).
		FirstOrCreate(&floor).Error; err != nil {
		log.Fatalf("❌ Failed to seed floor: %v", err)
	}

	for i := 1; i <= 3; i++ {
		module := models.Module{
			Name:      fmt.Sprintf("Module M%02d", i),
			ProjectID: project.ID,
			FloorID:   &floor.ID,
			State:     models.ModulePending,
		}
		if err := db.Where("project_id = ? AND name = ?", project.ID, module.Name).
			FirstOrCreate(&module).Error; err != nil {
			log.Fatalf("❌ Failed to seed module: %v", err)
		}

		for _, phase := range []models.Phase{models.PhaseInferior, models.PhaseSuperior} {
			drawing := models.DrawingAsset{
				URL:      fmt.Sprintf("/media/demo/m%02d-%s.png", i, phase),
				ModuleID: module.ID,
				Phase:    phase,
				Sequence: 1,
				Version:  1,
				Status:   models.DrawingPublished,
				Active:   true,
			}
			if err := db.Where("module_id = ? AND phase = ? AND sequence = ? AND version = ?",
				module.ID, phase, 1, 1).FirstOrCreate(&drawing).Error; err != nil {
				log.Fatalf("❌ Failed to seed drawing: %v", err)
			}
		}
	}
	fmt.Println("✅ Modules and drawings ready")

	for i := 1; i <= 2; i++ {
		desk := models.Desk{Name: fmt.Sprintf("Desk %d", i), OwnerID: &admin.ID}
		if err := db.Where("name = ?", desk.Name).FirstOrCreate(&desk).Error; err != nil {
			log.Fatalf("❌ Failed to seed desk: %v", err)
		}
	}
	fmt.Println("✅ Desks ready")
	fmt.Println("🌱 Demo data seeded")
}
