package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"

	"sitework/internal/domain"
	"sitework/internal/engine/auth"
	"sitework/internal/events"
	"sitework/internal/repo"
)

const apiKeyPrefix = "swk_"

// RegisterActor records an identity with its role and display name. Names feed
// the contractor columns of task lists; roles back API key principals.
func (e Engine) RegisterActor(ctx context.Context, a domain.Actor, by domain.Actor) (domain.Actor, error) {
	if err := auth.Require(by, auth.ManageKeys); err != nil {
		return domain.Actor{}, err
	}
	a.ID = strings.TrimSpace(a.ID)
	a.Name = strings.TrimSpace(a.Name)
	if a.ID == "" {
		return domain.Actor{}, domain.Invalid("id", "required")
	}
	if a.Role != "" && !auth.KnownRole(a.Role) {
		return domain.Actor{}, domain.Invalid("role", "unknown role %q", a.Role)
	}
	if err := e.Repo.UpsertActor(ctx, nil, a, e.stamp()); err != nil {
		return domain.Actor{}, domain.Unavailable("register actor", err)
	}
	stored, err := e.Repo.GetActor(ctx, a.ID)
	if err != nil {
		return domain.Actor{}, domain.Unavailable("load actor", err)
	}
	return stored, nil
}

// CreateAPIKey issues a key for an existing actor. The raw key is returned once;
// only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string, by domain.Actor) (string, domain.APIKey, error) {
	if err := auth.Require(by, auth.ManageKeys); err != nil {
		return "", domain.APIKey{}, err
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return "", domain.APIKey{}, domain.Invalid("actor_id", "required")
	}
	if _, err := e.Repo.GetActor(ctx, actorID); err != nil {
		return "", domain.APIKey{}, domain.Unavailable("load actor", err)
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, err
	}
	raw := apiKeyPrefix + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.stamp(),
	}
	err := e.withTx(ctx, "create api key", func(tx *sql.Tx) error {
		if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.APIKeyCreate, "", "api_key", key.ID, by.ID, events.EventPayload{"actor_id": actorID})
	})
	if err != nil {
		return "", domain.APIKey{}, err
	}
	return raw, key, nil
}

// RevokeAPIKey deletes a key by id.
func (e Engine) RevokeAPIKey(ctx context.Context, id string, by domain.Actor) error {
	if err := auth.Require(by, auth.ManageKeys); err != nil {
		return err
	}
	if err := e.Repo.DeleteAPIKey(ctx, id); err != nil {
		return domain.Unavailable("revoke api key", err)
	}
	return nil
}

// Authenticate resolves a raw API key to its actor.
func (e Engine) Authenticate(ctx context.Context, rawKey string) (domain.Actor, error) {
	if strings.TrimSpace(rawKey) == "" {
		return domain.Actor{}, auth.ErrUnauthenticated
	}
	a, err := e.Repo.PrincipalForAPIKey(ctx, rawKey)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Actor{}, auth.ErrUnauthenticated
	}
	if err != nil {
		return domain.Actor{}, domain.Unavailable("api key lookup", err)
	}
	return a, nil
}

// RecentEvents reads the audit log, newest first.
func (e Engine) RecentEvents(ctx context.Context, limit int, f repo.EventFilters, by domain.Actor) ([]domain.Event, error) {
	if err := auth.Require(by, auth.ViewAudit); err != nil {
		return nil, err
	}
	evs, err := e.Repo.LatestEvents(ctx, limit, f)
	if err != nil {
		return nil, domain.Unavailable("latest events", err)
	}
	if evs == nil {
		evs = []domain.Event{}
	}
	return evs, nil
}

// Notifications lists outbox rows. Anyone may read their own; admins and owners
// may read anyone's.
func (e Engine) Notifications(ctx context.Context, f repo.NotificationFilters, by domain.Actor) ([]domain.Notification, error) {
	if by.ID == "" {
		return nil, auth.ErrUnauthenticated
	}
	if !auth.Allowed(by.Role, auth.ViewAudit) {
		if f.RecipientID != "" && f.RecipientID != by.ID {
			return nil, auth.Deny(by, auth.ViewAudit, "can only read your own notifications")
		}
		f.RecipientID = by.ID
	}
	ns, err := e.Repo.ListNotifications(ctx, f)
	if err != nil {
		return nil, domain.Unavailable("list notifications", err)
	}
	return ns, nil
}
