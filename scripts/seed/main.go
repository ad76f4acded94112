package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-hr/internal/app"
	"github.com/odyssey-erp/odyssey-hr/internal/identitystore"
	"github.com/odyssey-erp/odyssey-hr/internal/platform/db"
	"github.com/odyssey-erp/odyssey-hr/internal/users"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Store != app.StorePostgres {
		log.Fatalf("seed requires STORE=postgres, got %q", cfg.Store)
	}
	ctx := context.Background()

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Applying schema...")
	if err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		return identitystore.Migrate(ctx, tx)
	}); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	var notifier users.Notifier
	if mail, err := app.NewMailNotifier(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "mail disabled: %v\n", err)
	} else {
		notifier = mail
	}

	components, err := app.NewComponents(cfg, app.ComponentDeps{
		Store:    identitystore.NewPostgres(pool),
		Notifier: notifier,
		Logger:   app.NewLogger(cfg),
	})
	if err != nil {
		log.Fatalf("wire components: %v", err)
	}

	fmt.Println("→ Provisioning bootstrap administrator...")
	res, err := app.BootstrapAdmin(ctx, components.Accounts, cfg)
	if err != nil && res.Result.Identity.Identifier == "" {
		log.Fatalf("bootstrap admin: %v", err)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap admin follow-up: %v\n", err)
	}
	if !res.Created {
		fmt.Printf("✓ Administrator %s already exists\n", res.Result.Identity.Identifier)
		return
	}
	fmt.Printf("✓ Administrator %s created (notice: %s)\n", res.Result.Identity.Identifier, res.Result.Delivery.Status)
	if res.Result.Delivery.Status != users.Delivered {
		fmt.Printf("  temporary credential: %s\n", res.Result.TemporaryCredential)
	}
}
