package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"

	"github.com/taskboard/taskboard/internal/auth"
	"github.com/taskboard/taskboard/internal/handler/dto"
	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/repository"
	"github.com/taskboard/taskboard/internal/validate"
)

type options struct {
	databaseURL string
	username    string
	name        string
	scopes      []string
	tier        string
	keyEnv      string
	format      string
}

type output struct {
	UserID    int64    `json:"user_id"`
	Username  string   `json:"username"`
	KeyID     string   `json:"key_id"`
	Key       string   `json:"key"`
	KeyPrefix string   `json:"key_prefix"`
	Scopes    []string `json:"scopes"`
	Tier      string   `json:"rate_limit_tier"`
}

func main() {
	// .env supplies DATABASE_URL for local runs; a missing file is fine.
	_ = godotenv.Load()

	opts, err := parseFlags()
	if err != nil {
		fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := bootstrap(ctx, opts)
	if err != nil {
		fail(err)
	}

	if opts.format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}
	fmt.Println(out.Key)
}

func parseFlags() (options, error) {
	var (
		opts        options
		scopesInput string
	)
	flag.StringVar(&opts.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.StringVar(&opts.username, "username", "admin", "Username owning the API key (created if missing)")
	flag.StringVar(&opts.name, "name", "bootstrap", "API key name")
	flag.StringVar(&scopesInput, "scopes", model.ScopeAdmin, "Comma-separated scopes (read,write,admin)")
	flag.StringVar(&opts.tier, "tier", model.TierUnlimited, "Rate limit tier (free,pro,unlimited)")
	flag.StringVar(&opts.keyEnv, "env", auth.EnvLive, "Key environment marker: live or test")
	flag.StringVar(&opts.format, "format", "plain", "Output format: plain or json")
	flag.Parse()

	if opts.databaseURL == "" {
		return opts, errors.New("DATABASE_URL is required")
	}
	if _, ok := model.TierConfigs[opts.tier]; !ok {
		return opts, fmt.Errorf("invalid tier: %s", opts.tier)
	}
	opts.format = strings.ToLower(opts.format)
	if opts.format != "plain" && opts.format != "json" {
		return opts, errors.New("invalid format; use plain or json")
	}

	scopes, err := parseScopes(scopesInput)
	if err != nil {
		return opts, err
	}
	opts.scopes = scopes
	return opts, nil
}

// parseScopes splits a comma list, dropping blanks. An empty list means admin.
func parseScopes(input string) ([]string, error) {
	var scopes []string
	for _, part := range strings.Split(input, ",") {
		scope := strings.TrimSpace(part)
		if scope == "" {
			continue
		}
		if !slices.Contains(model.ValidScopes, scope) {
			return nil, fmt.Errorf("invalid scope: %s", scope)
		}
		if !slices.Contains(scopes, scope) {
			scopes = append(scopes, scope)
		}
	}
	if len(scopes) == 0 {
		return []string{model.ScopeAdmin}, nil
	}
	return scopes, nil
}

func bootstrap(ctx context.Context, opts options) (*output, error) {
	repo, err := repository.New(ctx, opts.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	defer repo.Close()

	user, err := ensureUser(ctx, repo, opts.username)
	if err != nil {
		return nil, err
	}

	generated, err := auth.GenerateAPIKey(opts.keyEnv)
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}

	key := &model.APIKey{
		ID:            ulid.Make().String(),
		UserID:        user.ID,
		KeyHash:       generated.Hash,
		KeyPrefix:     generated.Prefix,
		Scopes:        opts.scopes,
		RateLimitTier: opts.tier,
		Name:          opts.name,
		CreatedAt:     time.Now().UTC(),
	}
	if err := repo.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	return &output{
		UserID:    user.ID,
		Username:  user.Username,
		KeyID:     key.ID,
		Key:       generated.Plaintext,
		KeyPrefix: key.KeyPrefix,
		Scopes:    key.Scopes,
		Tier:      key.RateLimitTier,
	}, nil
}

// ensureUser returns the user named username, creating it when missing.
func ensureUser(ctx context.Context, repo *repository.Repository, username string) (*model.User, error) {
	existing, err := repo.GetUserByUsername(ctx, username)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := validate.Struct(dto.CreateUserRequest{Username: username}); err != nil {
		return nil, fmt.Errorf("invalid username %q: %w", username, err)
	}

	user := &model.User{Username: username}
	if err := repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
