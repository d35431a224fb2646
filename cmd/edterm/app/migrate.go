package app

import (
	"context"
	"fmt"

	"edterm.com/edterm/internal/config"
	"edterm.com/edterm/internal/database"
)

type MigrateDirection int

const (
	MigrateUp MigrateDirection = iota
	MigrateDown
)

// RunMigrate applies or reverts the embedded schema migrations.
func RunMigrate(ctx context.Context, cfg *config.Config, dir MigrateDirection) error {
	mg, err := database.NewMigratorForConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer mg.Close()

	switch dir {
	case MigrateUp:
		return mg.Up()
	case MigrateDown:
		return mg.Down()
	default:
		return fmt.Errorf("unknown migration direction %d", dir)
	}
}
