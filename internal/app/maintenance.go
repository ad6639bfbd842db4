package app

import (
	"context"
	"fmt"
	"os"

	"token-alerts/internal/notify"
)

// Migrate applies the embedded schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	store, err := a.openPostgres(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	applied, err := store.Migrate(ctx)
	if err != nil {
		return err
	}
	for _, file := range applied {
		a.Logger.Info().Str("file", file).Msg("migration applied")
	}
	fmt.Fprintf(os.Stdout, "applied %d migrations\n", len(applied))
	return nil
}

// ClearCache drops every cached subscriber. Notifiers reload on their next refresh.
func (a *App) ClearCache(ctx context.Context) error {
	client, err := a.openRedis(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	removed, err := notify.NewSubscriberCache(client, a.Config.Redis.KeyPrefix, a.Logger).Clear(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "removed %d cached subscribers\n", removed)
	return nil
}
