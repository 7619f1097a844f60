package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GaneshKarthi2007/battery-shop/internal/domain"
	"github.com/GaneshKarthi2007/battery-shop/internal/store/memory"
)

func newTestAuth(t *testing.T) *AuthManager {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-secret")
	t.Setenv("SEED_STAFF_PASSWORD", "staff-secret")
	return NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, memory.New())
}

func TestLoginAndParseTokenRoundtrip(t *testing.T) {
	auth := newTestAuth(t)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin-secret",
	})
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, resp.Role)

	actor, err := auth.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "admin", actor.Username)
	require.Equal(t, domain.RoleAdmin, actor.Role)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	auth := newTestAuth(t)

	_, err := auth.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "nope",
	})
	require.Error(t, err)

	_, err = auth.Login(context.Background(), domain.LoginRequest{
		Username: "ghost",
		Password: "whatever",
	})
	require.Error(t, err)
}

func TestParseTokenRejectsTamperedToken(t *testing.T) {
	auth := newTestAuth(t)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{
		Username: "staff",
		Password: "staff-secret",
	})
	require.NoError(t, err)

	tampered := resp.AccessToken[:len(resp.AccessToken)-2] + "xx"
	_, err = auth.ParseToken(tampered)
	require.Error(t, err)

	// A token signed with a different secret must not verify either.
	other := NewAuthManager("another-secret-another-secret-xx", time.Hour, memory.New())
	_, err = other.ParseToken(resp.AccessToken)
	require.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-secret")
	t.Setenv("SEED_STAFF_PASSWORD", "staff-secret")
	auth := NewAuthManager("0123456789abcdef0123456789abcdef", -time.Minute, memory.New())

	// tokenTTL <= 0 falls back to the default, so sign a short-lived token by
	// using a tiny positive TTL instead.
	auth.tokenTTL = time.Nanosecond
	resp, err := auth.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin-secret",
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = auth.ParseToken(resp.AccessToken)
	require.Error(t, err)
}
