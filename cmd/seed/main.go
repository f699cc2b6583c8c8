// Command seed populates a development database with a handful of users and
// threads so the API has something to show. It is destructive only in the
// sense that it adds rows; existing data is left alone.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/threadbox/threadbox/internal/auth"
	"github.com/threadbox/threadbox/internal/config"
	"github.com/threadbox/threadbox/internal/store"
)

var userSeeds = []struct {
	Name  string
	Email string
}{
	{"Alice Hart", "alice@example.com"},
	{"Ben Okafor", "ben@example.com"},
	{"Carla Mendes", "carla@example.com"},
	{"Dmitri Volkov", "dmitri@example.com"},
	{"Erin Walsh", "erin@example.com"},
}

var subjects = []string{
	"Quarterly planning notes",
	"Lunch on Thursday?",
	"Deploy checklist review",
	"Design feedback round two",
	"Oncall handover",
	"Budget questions",
	"Conference travel",
	"New hire onboarding",
	"API versioning proposal",
	"Retro action items",
}

var bodies = []string{
	"Did anyone get a chance to look at this yet?",
	"Sounds good to me, let's go ahead.",
	"I have a few concerns, can we talk tomorrow?",
	"Pushed the latest draft, comments welcome.",
	"Agreed. I'll take the first pass.",
	"Can we move this to next week?",
	"Thanks for the quick turnaround!",
	"Following up on this one more time.",
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()

	cfg := config.Load()
	ctx := context.Background()

	var db store.DataStore
	if cfg.DatabaseURL != "" {
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pgStore
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = sqliteStore
	}
	defer db.Close()

	// All seed users share the same password
	hash, err := auth.HashPassword("password")
	if err != nil {
		logger.Fatal().Err(err).Msg("hash failed")
	}

	userIDs := make([]uuid.UUID, 0, len(userSeeds))
	for _, u := range userSeeds {
		existing, err := db.GetUserByEmail(ctx, u.Email)
		if err != nil {
			logger.Fatal().Err(err).Msg("user lookup failed")
		}
		if existing != nil {
			userIDs = append(userIDs, existing.ID)
			continue
		}
		created, err := db.CreateUser(ctx, u.Name, u.Email, hash)
		if err != nil {
			logger.Fatal().Err(err).Str("email", u.Email).Msg("user creation failed")
		}
		userIDs = append(userIDs, created.ID)
		logger.Info().Str("email", u.Email).Msg("created user")
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for i, subject := range subjects {
		creator := userIDs[rng.Intn(len(userIDs))]

		// 2-4 participants including the creator
		count := 2 + rng.Intn(3)
		seen := map[uuid.UUID]bool{creator: true}
		participants := []uuid.UUID{creator}
		for len(participants) < count {
			id := userIDs[rng.Intn(len(userIDs))]
			if seen[id] {
				continue
			}
			seen[id] = true
			participants = append(participants, id)
		}

		thread, err := db.CreateThread(ctx, subject, creator, bodies[rng.Intn(len(bodies))], participants)
		if err != nil {
			logger.Fatal().Err(err).Str("subject", subject).Msg("thread creation failed")
		}

		// 2-7 replies on top of the first message
		replies := 2 + rng.Intn(6)
		for j := 0; j < replies; j++ {
			author := participants[rng.Intn(len(participants))]
			if _, err := db.AppendMessage(ctx, thread.ID, author, bodies[rng.Intn(len(bodies))]); err != nil {
				logger.Fatal().Err(err).Msg("message creation failed")
			}
		}

		logger.Info().
			Str("subject", subject).
			Int("participants", len(participants)).
			Int("messages", replies+1).
			Msgf("seeded thread %d/%d", i+1, len(subjects))
	}

	fmt.Println("seed complete: all users have password \"password\"")
}
