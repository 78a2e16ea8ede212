package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sitegauge/sitegauge/internal/auth"
	"github.com/sitegauge/sitegauge/internal/middleware"
	"github.com/sitegauge/sitegauge/internal/model"
	"github.com/sitegauge/sitegauge/internal/repository"
)

type output struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Plan      string `json:"plan"`
	Key       string `json:"key"`
	KeyPrefix string `json:"key_prefix"`
	Password  string `json:"password,omitempty"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		email       = flag.String("email", "ops@sitegauge.local", "Account email")
		password    = flag.String("password", "", "Account password (generated when empty)")
		plan        = flag.String("plan", model.PlanEnterprise, "Plan tier (free, pro, enterprise)")
		rotate      = flag.Bool("rotate", false, "Rotate the key if the account already exists")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	addr := strings.ToLower(strings.TrimSpace(*email))
	if err := middleware.ValidateEmail(addr); err != nil {
		fmt.Fprintln(os.Stderr, "invalid email:", err)
		os.Exit(1)
	}
	if !model.IsValidPlan(*plan) {
		fmt.Fprintln(os.Stderr, "invalid plan:", *plan)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	key, err := auth.GenerateAPIKey(0)
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate api key:", err)
		os.Exit(1)
	}

	out := output{
		Email:     addr,
		Plan:      *plan,
		Key:       key.Plaintext,
		KeyPrefix: key.Prefix,
	}

	existing, err := repo.GetUserByEmail(ctx, addr)
	switch {
	case err == nil:
		if !*rotate {
			fmt.Fprintf(os.Stderr, "account %s already exists; pass -rotate to replace its key\n", addr)
			os.Exit(1)
		}
		if err := repo.UpdateAPIKey(ctx, existing.ID, key.Hash, key.Prefix); err != nil {
			fmt.Fprintln(os.Stderr, "rotate api key:", err)
			os.Exit(1)
		}
		out.UserID = existing.ID
		out.Plan = existing.Plan

	case errors.Is(err, repository.ErrUserNotFound):
		secret := *password
		if secret == "" {
			secret, err = auth.RandomHex(16)
			if err != nil {
				fmt.Fprintln(os.Stderr, "generate password:", err)
				os.Exit(1)
			}
			out.Password = secret
		}
		if err := middleware.ValidatePassword(secret); err != nil {
			fmt.Fprintln(os.Stderr, "invalid password:", err)
			os.Exit(1)
		}
		hash, err := auth.HashPassword(secret)
		if err != nil {
			fmt.Fprintln(os.Stderr, "hash password:", err)
			os.Exit(1)
		}

		now := time.Now().UTC()
		user := &model.User{
			ID:           ulid.Make().String(),
			Email:        addr,
			PasswordHash: hash,
			Plan:         *plan,
			PeriodStart:  time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC),
			APIKeyHash:   key.Hash,
			APIKeyPrefix: key.Prefix,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := repo.CreateUser(ctx, user); err != nil {
			fmt.Fprintln(os.Stderr, "create user:", err)
			os.Exit(1)
		}
		out.UserID = user.ID

	default:
		fmt.Fprintln(os.Stderr, "look up account:", err)
		os.Exit(1)
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Key)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}
