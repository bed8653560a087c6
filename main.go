package main

import (
	"context"

	"github.com/cppla/teamfeed/config"
	"github.com/cppla/teamfeed/models"
	"github.com/cppla/teamfeed/routes"
	"github.com/cppla/teamfeed/storage"
	"github.com/cppla/teamfeed/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer utils.Logger.Sync() //nolint:errcheck

	db := config.InitDatabase(models.All()...)

	blobs, err := storage.New(context.Background(), cfg)
	if err != nil {
		utils.Sugar.Fatalf("blob storage: %v", err)
	}

	r := routes.SetupRouter(cfg, db, blobs)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if err := utils.GraceServer(":"+cfg.AppPort, r, utils.CloseRedis, closeDB); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
