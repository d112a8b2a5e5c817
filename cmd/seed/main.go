// Command seed bootstraps the root participant with a table for every tier.
// With SEED_DEMO=true it also registers and funds a small demo downline.
package main

import (
	"context"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"matrix/internal/domain"
	"matrix/internal/participant"
	"matrix/internal/repository/sqlstore"
	"matrix/pkg/config"
	pkgerrors "matrix/pkg/errors"
	"matrix/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	log := logger.New("matrix-seed")

	cfg := config.Load()
	if strings.TrimSpace(cfg.Database.URL) == "" {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": "DATABASE_URL is required"})
	}

	ctx := context.Background()
	store, db, err := sqlstore.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	svc := participant.NewService(store, log)
	if err := svc.SeedRoot(ctx); err != nil {
		log.Fatal("Failed to seed root", map[string]interface{}{"error": err.Error()})
	}
	if err := svc.ValidateRoot(ctx); err != nil {
		log.Fatal("Root validation failed", map[string]interface{}{"error": err.Error()})
	}

	if os.Getenv("SEED_DEMO") == "true" {
		seedDemo(ctx, svc, log)
	}
	log.Info("Seed complete", nil)
}

// seedDemo registers participants 2..6, all referred by 2 except 2 itself, each
// funded for a tier-1 purchase.
func seedDemo(ctx context.Context, svc *participant.Service, log logger.Logger) {
	for id := int64(2); id <= 6; id++ {
		referrer := int64(2)
		if id == 2 {
			referrer = domain.RootParticipantID
		}
		_, err := svc.Register(ctx, &participant.RegisterRequest{ID: id, ReferrerID: referrer})
		if pkgerrors.Is(err, pkgerrors.ErrParticipantExists) {
			continue
		}
		if err != nil {
			log.Fatal("Failed to register demo participant", map[string]interface{}{"id": id, "error": err.Error()})
		}
		if _, err := svc.Deposit(ctx, id, domain.TierCost(1)); err != nil {
			log.Fatal("Failed to fund demo participant", map[string]interface{}{"id": id, "error": err.Error()})
		}
	}
}
