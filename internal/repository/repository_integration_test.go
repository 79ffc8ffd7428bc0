//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/testutil"
)

// newIntegrationEnv connects to DATABASE_URL, serializes against other
// database tests and rebuilds the schema from migrations/.
func newIntegrationEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, repo
}

func createTestUser(t *testing.T, ctx context.Context, repo *Repository, prefix string) *model.User {
	t.Helper()
	user := &model.User{Username: testutil.UniqueUsername(prefix)}
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user
}
