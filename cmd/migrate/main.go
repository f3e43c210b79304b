package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"reforest-portal/portal-backend/internal/config"
	"reforest-portal/portal-backend/pkg/database"
	"reforest-portal/portal-backend/pkg/migrate"
)

const usage = `usage: migrate <command> [args]

commands:
  up            apply all pending migrations
  up-to V       apply migrations up to version V
  down          roll back the latest migration
  down-to V     roll back to version V
  redo          roll back and re-apply the latest migration
  reset         roll back all migrations
  status        print migration status
  version       print the current version
  list          print the embedded migration files
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]

	if command == "list" {
		files, err := migrate.Files()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, f := range files {
			fmt.Println(f)
		}
		return
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg.Database.GetDatabaseURL(), database.PoolOptions{MaxOpenConns: 1})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Running migrations", zap.String("command", command), zap.Strings("args", args))
	if err := migrate.Run(ctx, db.DB, command, args...); err != nil {
		logger.Fatal("Migration failed", zap.Error(err))
	}
	logger.Info("Migrations finished")
}
