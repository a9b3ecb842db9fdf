package main

import (
	"context"
	"log"

	"streamworks-assistant-be/internal/bootstrap"
	"streamworks-assistant-be/internal/config"
	"streamworks-assistant-be/internal/model"
	"streamworks-assistant-be/internal/server"
	"streamworks-assistant-be/internal/tracer"
	"streamworks-assistant-be/pkg/database"

	"gorm.io/gorm"
)

func main() {
	// 0. Initialize Tracer (disabled unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database (only needed for the postgres session store)
	var gormDB *gorm.DB
	if cfg.Session.Store == "postgres" {
		var err error
		gormDB, err = database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		if err := gormDB.AutoMigrate(&model.DialogSession{}); err != nil {
			log.Panicf("Unable to migrate dialog_sessions: %v", err)
		}
	}

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)

	// 4. Start Background Services
	if container.EventBridgeService != nil {
		go func() {
			log.Println("Background: Starting Event Bridge...")
			if err := container.EventBridgeService.Run(context.Background()); err != nil {
				log.Printf("Background Bridge Error: %v", err)
			}
		}()
	}
	if container.GenerationListener != nil {
		go func() {
			log.Println("Background: Starting Generation Result Listener...")
			if err := container.GenerationListener.Start(); err != nil {
				log.Printf("Background Listener Error: %v", err)
			}
		}()
	}

	// 5. Initialize Server
	srv := server.New(cfg, container)

	// 6. Run Server
	log.Fatal(srv.Run())
}
