package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/viaentrega/viaentrega-backend/api/middleware"
	"github.com/viaentrega/viaentrega-backend/api/responses"
	"github.com/viaentrega/viaentrega-backend/api/validators"
	"github.com/viaentrega/viaentrega-backend/internal/ledger"
	"github.com/viaentrega/viaentrega-backend/pkg/db/models"
	"github.com/viaentrega/viaentrega-backend/pkg/enums"
	"github.com/viaentrega/viaentrega-backend/pkg/logger"
)

type balanceResponse struct {
	AccountID    uuid.UUID `json:"account_id"`
	BalanceCents int64     `json:"balance_cents"`
}

type ledgerEntryResponse struct {
	ID                 uuid.UUID  `json:"id"`
	AmountCents        int64      `json:"amount_cents"`
	BalanceBeforeCents int64      `json:"balance_before_cents"`
	BalanceAfterCents  int64      `json:"balance_after_cents"`
	Category           string     `json:"category"`
	CorridaID          *uuid.UUID `json:"corrida_id,omitempty"`
	Description        *string    `json:"description,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func newLedgerEntryResponses(entries []models.LedgerEntry) []ledgerEntryResponse {
	views := make([]ledgerEntryResponse, 0, len(entries))
	for _, entry := range entries {
		views = append(views, ledgerEntryResponse{
			ID:                 entry.ID,
			AmountCents:        entry.AmountCents,
			BalanceBeforeCents: entry.BalanceBeforeCents,
			BalanceAfterCents:  entry.BalanceAfterCents,
			Category:           string(entry.Category),
			CorridaID:          entry.CorridaID,
			Description:        entry.Description,
			CreatedAt:          entry.CreatedAt,
		})
	}
	return views
}

type moveFundsRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Description string `json:"description,omitempty" validate:"omitempty,max=200"`
}

// AccountBalance returns the actor's current prepaid balance.
func AccountBalance(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := middleware.ActorIDFromContext(ctx)

		balance, err := svc.Balance(ctx, actorID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, balanceResponse{AccountID: actorID, BalanceCents: balance})
	}
}

// AccountStatement lists the actor's ledger entries, newest first.
func AccountStatement(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := middleware.ActorIDFromContext(ctx)

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		entries, err := svc.Statement(ctx, actorID, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"entries": newLedgerEntryResponses(entries)})
	}
}

// AccountDeposit credits the actor's balance. The payment capture itself
// happens upstream; this endpoint records the settled amount.
func AccountDeposit(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return moveFunds(svc, logg, enums.LedgerCategoryDeposit, +1)
}

// AccountWithdraw debits the actor's balance for a payout. Fails with
// insufficient funds rather than overdrawing.
func AccountWithdraw(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return moveFunds(svc, logg, enums.LedgerCategoryWithdrawal, -1)
}

func moveFunds(svc ledger.Service, logg *logger.Logger, category enums.LedgerCategory, sign int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := middleware.ActorIDFromContext(ctx)

		var req moveFundsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entry, err := svc.Apply(ctx, ledger.ApplyInput{
			AccountID:   actorID,
			DeltaCents:  sign * req.AmountCents,
			Category:    category,
			Description: req.Description,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		views := newLedgerEntryResponses([]models.LedgerEntry{*entry})
		responses.WriteSuccessStatus(w, http.StatusCreated, views[0])
	}
}
