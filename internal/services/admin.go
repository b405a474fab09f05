package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"krayotmarket/internal/storage"
)

const adminKey = "admin_authenticated"

// ErrBadPassword is returned for a failed admin login.
var ErrBadPassword = errors.New("admin: wrong password")

// AdminGate guards the admin console with one shared password. A successful
// login issues a random token; the token's flag lives in the store until it
// expires or the admin logs out.
type AdminGate struct {
	hash     []byte
	store    storage.Store
	ttl      time.Duration
	security *SecurityLogger
}

// NewAdminGate takes a bcrypt hash, or hashes password when hash is empty.
func NewAdminGate(password, hash string, store storage.Store, ttl time.Duration, security *SecurityLogger) (*AdminGate, error) {
	h := []byte(hash)
	if len(h) == 0 {
		if password == "" {
			return nil, fmt.Errorf("admin password is not configured")
		}
		var err error
		h, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
	} else if _, err := bcrypt.Cost(h); err != nil {
		return nil, fmt.Errorf("admin password hash: %w", err)
	}
	return &AdminGate{hash: h, store: store, ttl: ttl, security: security}, nil
}

func adminTokenKey(token string) string {
	return adminKey + ":" + token
}

// Login checks password and returns a new session token.
func (g *AdminGate) Login(ctx context.Context, password, ip string) (string, error) {
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(password)); err != nil {
		log.Printf("AdminGate.Login - Failed login from %s", ip)
		g.security.LogSecurityEvent("ADMIN_LOGIN_FAILED", "wrong password", ip)
		return "", ErrBadPassword
	}

	token := uuid.New().String()
	if err := g.store.Set(ctx, adminTokenKey(token), []byte("1"), g.ttl); err != nil {
		return "", fmt.Errorf("store admin session: %w", err)
	}
	log.Printf("AdminGate.Login - Admin logged in from %s", ip)
	g.security.LogSecurityEvent("ADMIN_LOGIN", "admin session started", ip)
	return token, nil
}

// Authenticated reports whether token is a live admin session.
func (g *AdminGate) Authenticated(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	raw, err := g.store.Get(ctx, adminTokenKey(token))
	return err == nil && string(raw) == "1"
}

// Logout ends the session.
func (g *AdminGate) Logout(ctx context.Context, token, ip string) {
	if token == "" {
		return
	}
	if err := g.store.Delete(ctx, adminTokenKey(token)); err != nil {
		log.Printf("AdminGate.Logout - Error: %v", err)
	}
	g.security.LogSecurityEvent("ADMIN_LOGOUT", "admin session ended", ip)
}
