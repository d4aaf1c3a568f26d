package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"sitework/internal/domain"
	"sitework/internal/engine"
	"sitework/internal/repo"
)

func registerActors(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "put-actor",
		Method:      http.MethodPut,
		Path:        "/actors/{actor_id}",
		Summary:     "Register an actor or update its name and role",
		Tags:        []string{"actors"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ActorID string          `path:"actor_id"`
		Body    PutActorRequest `json:"body"`
	}) (*body[domain.Actor], error) {
		by, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.RegisterActor(ctx, domain.Actor{ID: input.ActorID, Name: input.Body.Name, Role: input.Body.Role}, by)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/actors/{actor_id}/api-keys",
		Summary:       "Issue an API key for an actor",
		Tags:          []string{"actors"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorID string              `path:"actor_id"`
		Body    CreateAPIKeyRequest `json:"body"`
	}) (*body[CreateAPIKeyResponse], error) {
		by, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		raw, key, err := e.CreateAPIKey(ctx, input.ActorID, input.Body.Name, by)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(CreateAPIKeyResponse{Key: raw, APIKey: key}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{key_id}",
		Summary:       "Revoke an API key",
		Tags:          []string{"actors"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		by, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeAPIKey(ctx, input.KeyID, by); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAudit(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recent audit events, newest first",
		Tags:        []string{"audit"},
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `query:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
	}) (*body[[]domain.Event], error) {
		by, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		evs, err := e.RecentEvents(ctx, normalizeLimit(input.Limit), repo.EventFilters{
			ProjectID:  input.ProjectID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
		}, by)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(evs), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Notification outbox; callers see their own unless they administer",
		Tags:        []string{"audit"},
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		RecipientID string `query:"recipient_id"`
		Pending     bool   `query:"pending"`
		Limit       int    `query:"limit" default:"50"`
	}) (*body[[]domain.Notification], error) {
		by, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ns, err := e.Notifications(ctx, repo.NotificationFilters{
			RecipientID: input.RecipientID,
			PendingOnly: input.Pending,
			Limit:       normalizeLimit(input.Limit),
		}, by)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(ns), nil
	})
}
