package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/angelmondragon/walletcore-backend/pkg/config"
	"github.com/angelmondragon/walletcore-backend/pkg/db"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
	"github.com/angelmondragon/walletcore-backend/pkg/migrate"
	"github.com/joho/godotenv"
)

func main() {
	cmd := flag.String("cmd", "up", "up|down|to|pending|create|validate")
	dir := flag.String("dir", "", "migrations directory; empty uses the set embedded in this binary")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=to")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithField(context.Background(), "cmd", *cmd)

	// create and validate work on files only.
	switch *cmd {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, *name, time.Now())
		exitOn(ctx, logg, "create migration", err)
		fmt.Println("created", path)
		return
	case "validate":
		exitOn(ctx, logg, "validate migrations", migrate.Validate(migrate.Source(*dir)))
		fmt.Println("migrations valid")
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	exitOn(ctx, logg, "load config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "env": cfg.App.Env})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn(ctx, logg, "connect database", err)
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	exitOn(ctx, logg, "sql handle", err)

	runner, err := migrate.NewRunner(sqlDB, migrate.Source(*dir))
	exitOn(ctx, logg, "goose provider", err)

	var applied []migrate.Applied
	switch *cmd {
	case "up":
		applied, err = runner.Up(ctx)
	case "down":
		applied, err = runner.Down(ctx)
	case "to":
		target, perr := strconv.ParseInt(*version, 10, 64)
		if perr != nil {
			exitOn(ctx, logg, "parse -version", perr)
		}
		applied, err = runner.To(ctx, target)
	case "pending":
		pending, perr := runner.Pending(ctx)
		exitOn(ctx, logg, "list pending", perr)
		for _, v := range pending {
			fmt.Println(v)
		}
		return
	default:
		err = fmt.Errorf("unknown -cmd %q", *cmd)
	}
	for _, a := range applied {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     a.Version,
			"direction":   a.Direction,
			"duration_ms": a.Millis,
		}), a.Path)
	}
	exitOn(ctx, logg, "migrate", err)
}

func exitOn(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, step+" failed", err)
	os.Exit(1)
}
