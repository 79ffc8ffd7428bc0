package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskboard/taskboard/internal/auth"
	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/testutil/memstore"
)

var cheapParams = auth.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func cheapGenerator(env string) (*auth.GeneratedKey, error) {
	return auth.GenerateAPIKeyWithParams(env, cheapParams)
}

type recordingInvalidator struct {
	keys []string
	err  error
}

func (r *recordingInvalidator) InvalidateKey(ctx context.Context, keyID string) error {
	r.keys = append(r.keys, keyID)
	return r.err
}

type stubIssuer struct{}

func (stubIssuer) Issue(caller *model.AuthContext) (string, time.Time, error) {
	return "token-for-" + caller.Username, time.Unix(0, 0), nil
}

func newKeyEnv(t *testing.T) (*memstore.Store, *KeyService, *recordingInvalidator, *model.User) {
	t.Helper()
	store := memstore.New()
	user := store.AddUser("basic")
	inv := &recordingInvalidator{}
	svc := NewKeyService(KeyServiceConfig{
		Store:       store,
		Invalidator: inv,
		Tokens:      stubIssuer{},
		Generate:    cheapGenerator,
		KeyEnv:      auth.EnvTest,
	})
	return store, svc, inv, user
}

func TestKeyService_CreateKey_Defaults(t *testing.T) {
	t.Parallel()

	_, svc, _, user := newKeyEnv(t)

	created, err := svc.CreateKey(context.Background(), writer(user), CreateKeyInput{Name: "laptop"})
	if err != nil {
		t.Fatalf("CreateKey() error = %v", err)
	}
	if !auth.LooksLikeAPIKey(created.Plaintext) {
		t.Errorf("plaintext %q is not an API key", created.Plaintext)
	}
	if created.Key.RateLimitTier != model.TierFree {
		t.Errorf("tier = %q, want free", created.Key.RateLimitTier)
	}
	if len(created.Key.Scopes) != 2 || !created.Key.HasScope(model.ScopeWrite) {
		t.Errorf("scopes = %v, want default read/write", created.Key.Scopes)
	}
	ok, err := auth.VerifyKey(created.Plaintext, created.Key.KeyHash)
	if err != nil || !ok {
		t.Error("stored hash should verify the plaintext")
	}
}

func TestKeyService_CreateKey_Forbidden(t *testing.T) {
	t.Parallel()

	_, svc, _, user := newKeyEnv(t)
	ctx := context.Background()

	if _, err := svc.CreateKey(ctx, nil, CreateKeyInput{}); !errors.Is(err, ErrForbidden) {
		t.Errorf("anonymous CreateKey() error = %v", err)
	}

	_, err := svc.CreateKey(ctx, writer(user), CreateKeyInput{Scopes: []string{model.ScopeAdmin}})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("granting admin without admin error = %v", err)
	}

	admin := writer(user)
	admin.Scopes = []string{model.ScopeAdmin}
	if _, err := svc.CreateKey(ctx, admin, CreateKeyInput{Scopes: []string{model.ScopeAdmin}}); err != nil {
		t.Errorf("admin granting admin error = %v", err)
	}
}

func TestKeyService_ListAndRevoke(t *testing.T) {
	t.Parallel()

	store, svc, inv, user := newKeyEnv(t)
	other := store.AddUser("other")
	ctx := context.Background()

	created, err := svc.CreateKey(ctx, writer(user), CreateKeyInput{})
	if err != nil {
		t.Fatalf("CreateKey() error = %v", err)
	}

	keys, err := svc.ListKeys(ctx, writer(user))
	if err != nil || len(keys) != 1 {
		t.Fatalf("ListKeys() = %v, %v", keys, err)
	}

	if err := svc.RevokeKey(ctx, writer(other), created.Key.ID); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("revoking another user's key error = %v, want ErrKeyNotFound", err)
	}
	if err := svc.RevokeKey(ctx, writer(user), created.Key.ID); err != nil {
		t.Fatalf("RevokeKey() error = %v", err)
	}
	if len(inv.keys) != 1 || inv.keys[0] != created.Key.ID {
		t.Errorf("invalidated keys = %v", inv.keys)
	}
	if err := svc.RevokeKey(ctx, writer(user), created.Key.ID); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("double revoke error = %v, want ErrKeyNotFound", err)
	}
}

func TestKeyService_RevokeKey_InvalidationFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	_, svc, inv, user := newKeyEnv(t)
	inv.err = errors.New("redis down")
	ctx := context.Background()

	created, err := svc.CreateKey(ctx, writer(user), CreateKeyInput{})
	if err != nil {
		t.Fatalf("CreateKey() error = %v", err)
	}
	if err := svc.RevokeKey(ctx, writer(user), created.Key.ID); err != nil {
		t.Errorf("RevokeKey() error = %v", err)
	}
}

func TestKeyService_IssueToken(t *testing.T) {
	t.Parallel()

	_, svc, _, user := newKeyEnv(t)

	token, _, err := svc.IssueToken(writer(user))
	if err != nil || token != "token-for-basic" {
		t.Errorf("IssueToken() = %q, %v", token, err)
	}

	viaToken := writer(user)
	viaToken.Credential = model.CredentialJWT
	if _, _, err := svc.IssueToken(viaToken); !errors.Is(err, ErrForbidden) {
		t.Errorf("token exchange with a token error = %v", err)
	}

	if _, _, err := svc.IssueToken(nil); !errors.Is(err, ErrForbidden) {
		t.Errorf("anonymous IssueToken() error = %v", err)
	}

	disabled := NewKeyService(KeyServiceConfig{Store: memstore.New(), Generate: cheapGenerator})
	if _, _, err := disabled.IssueToken(writer(user)); !errors.Is(err, ErrTokensOff) {
		t.Errorf("IssueToken() without issuer error = %v", err)
	}
}
