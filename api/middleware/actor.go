package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/viaentrega/viaentrega-backend/api/responses"
	"github.com/viaentrega/viaentrega-backend/pkg/enums"
	pkgerrors "github.com/viaentrega/viaentrega-backend/pkg/errors"
	"github.com/viaentrega/viaentrega-backend/pkg/logger"
)

const (
	actorIDHeader   = "X-Actor-Id"
	actorRoleHeader = "X-Actor-Role"
)

type contextKey string

const (
	ctxActorID   contextKey = "actor_id"
	ctxActorRole contextKey = "actor_role"
)

// ActorContext trusts the identity headers stamped by the upstream auth
// gateway and rejects requests that arrive without them.
func ActorContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawID := r.Header.Get(actorIDHeader)
			if rawID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "actor identity missing"))
				return
			}

			actorID, err := uuid.Parse(rawID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid actor id"))
				return
			}

			role, err := enums.ParseActorType(r.Header.Get(actorRoleHeader))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid actor role"))
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, ctxActorID, actorID)
			ctx = context.WithValue(ctx, ctxActorRole, role)
			if logg != nil {
				ctx = logg.WithActorID(ctx, actorID.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ActorIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxActorID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

func ActorRoleFromContext(ctx context.Context) enums.ActorType {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxActorRole).(enums.ActorType); ok {
		return v
	}
	return ""
}

// WithActor injects the actor identity into the context. Used by tests
// that call controllers without the full middleware chain.
func WithActor(ctx context.Context, actorID uuid.UUID, role enums.ActorType) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxActorID, actorID)
	return context.WithValue(ctx, ctxActorRole, role)
}
