// seed inserts a verified organizer and a handful of contacts into the dev
// backend's database file.
// Run: DB_PATH=devapi.db go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/ErlanBelekov/booking-portal/internal/infrastructure/sqlite"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	seedEmail    = "seed@test.local"
	seedPassword = "seed-password"
)

var contacts = []domain.Contact{
	{Name: "Ada Lovelace", Email: "ada@example.com", Phone: "+44 20 7946 0001"},
	{Name: "Grace Hopper", Email: "grace@example.com", Phone: "+1 202 555 0102"},
	{Name: "Alan Turing", Email: "alan@example.com"},
	{Name: "Katherine Johnson", Email: "katherine@example.com", Phone: "+1 757 555 0199"},
	{Name: "Edsger Dijkstra", Email: "edsger@example.com"},
}

func main() {
	ctx := context.Background()

	path := os.Getenv("DB_PATH")
	if path == "" || path == sqlite.MemoryPath {
		log.Fatal("DB_PATH must point at the dev backend's database file")
	}

	db, err := sqlite.Open(ctx, path)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer db.Close()

	users := sqlite.NewUserRepository(db)

	var userID string
	existing, _, err := users.FindByEmail(ctx, seedEmail)
	switch {
	case err == nil:
		userID = existing.ID
	case errors.Is(err, domain.ErrUserNotFound):
		hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		now := time.Now().UTC()
		u := &domain.User{
			ID:              uuid.NewString(),
			Email:           seedEmail,
			FirstName:       "Seed",
			LastName:        "Organizer",
			IsOrganizer:     true,
			IsEmailVerified: true,
			AccountStatus:   domain.AccountActive,
			Profile:         &domain.UserProfile{OrganizerSlug: "seed", DisplayName: "Seed Organizer"},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := users.Create(ctx, u, string(hash)); err != nil {
			log.Fatalf("create user: %v", err)
		}
		userID = u.ID
	default:
		log.Fatalf("find user: %v", err)
	}

	if err := sqlite.NewContactRepository(db).Upsert(ctx, userID, contacts); err != nil {
		log.Fatalf("upsert contacts: %v", err)
	}

	log.Printf("seeded user %s (%s / %s) with %d contacts", userID, seedEmail, seedPassword, len(contacts))
}
