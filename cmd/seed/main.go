package main

import (
	"fmt"
	"log"

	"github.com/oggyb/mood-buddy/internal/auth"
	"github.com/oggyb/mood-buddy/internal/config"
	"github.com/oggyb/mood-buddy/internal/db"
)

func main() {
	// Load configuration
	cfg := config.New()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Fatalf("failed to init db: %v", err)
	}

	if err := db.SeedTestData(database, cfg.Matching.PlaceholderID, cfg.Matching.ReservedIDs); err != nil {
		log.Fatalf("failed to seed: %v", err)
	}
	log.Println("Seeding completed.")

	// development tokens so the seeded users can call the API right away
	var users []db.User
	if err := database.Where("id > ?", 100).Order("id ASC").Limit(5).Find(&users).Error; err != nil {
		log.Fatalf("failed to load seeded users: %v", err)
	}
	jm := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	for _, u := range users {
		token, _, err := jm.GenerateToken(u.ID, u.Username)
		if err != nil {
			log.Fatalf("failed to sign token for %s: %v", u.Username, err)
		}
		fmt.Printf("%s (id %d): %s\n", u.Username, u.ID, token)
	}
}
