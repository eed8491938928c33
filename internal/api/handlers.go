/**
 * @description
 * This file contains the HTTP handlers for the raffle service. Handlers parse
 * incoming requests, call the settlement service and map its errors onto HTTP
 * statuses.
 *
 * @dependencies
 * - internal/app, internal/domain: service logic and models.
 * - github.com/go-chi/chi/v5: URL parameters.
 */

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/app"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
)

const maxBodyBytes = 1 << 20

// RaffleHandlers holds the application service that handlers will use.
type RaffleHandlers struct {
	service *app.Service
}

// NewRaffleHandlers creates a new instance of RaffleHandlers.
func NewRaffleHandlers(service *app.Service) *RaffleHandlers {
	return &RaffleHandlers{service: service}
}

type purchaseTicketRequest struct {
	Number    int       `json:"number"`
	AccountID uuid.UUID `json:"account_id"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type drawRequest struct {
	Override bool `json:"override"`
}

type sweepRequest struct {
	DryRun bool `json:"dry_run"`
	Force  bool `json:"force"`
}

type drawAbortedResponse struct {
	Error            string               `json:"error"`
	Deficit          string               `json:"deficit"`
	OrganizerBalance string               `json:"organizer_balance"`
	Revenue          string               `json:"revenue"`
	PrizeAmount      string               `json:"prize_amount"`
	Report           *domain.RefundReport `json:"report,omitempty"`
}

// CreateRaffleHandler creates a raffle organized by the caller.
func (h *RaffleHandlers) CreateRaffleHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req domain.CreateRaffleRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	raffle, err := h.service.CreateRaffle(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, "create_raffle", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, raffle)
}

// GetRaffleHandler returns a raffle with its sales figures.
func (h *RaffleHandlers) GetRaffleHandler(w http.ResponseWriter, r *http.Request) {
	raffleID, ok := h.pathUUID(w, r, "raffleID")
	if !ok {
		return
	}
	view, err := h.service.GetRaffle(r.Context(), raffleID)
	if err != nil {
		h.writeServiceError(w, "get_raffle", err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// ListRafflesHandler returns a page of raffles. Only active raffles are listed
// unless the state query parameter names another state or "all".
func (h *RaffleHandlers) ListRafflesHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := h.page(w, r)
	if !ok {
		return
	}
	state := domain.RaffleStateActive
	switch raw := strings.TrimSpace(r.URL.Query().Get("state")); raw {
	case "":
	case "all":
		state = ""
	default:
		parsed, err := domain.ParseRaffleState(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid state")
			return
		}
		state = parsed
	}

	views, err := h.service.ListRaffles(r.Context(), state, limit, offset)
	if err != nil {
		h.writeServiceError(w, "list_raffles", err)
		return
	}
	h.writeJSON(w, http.StatusOK, views)
}

// ListUserRafflesHandler returns the raffles organized by a user.
func (h *RaffleHandlers) ListUserRafflesHandler(w http.ResponseWriter, r *http.Request) {
	organizerID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	limit, offset, ok := h.page(w, r)
	if !ok {
		return
	}
	views, err := h.service.ListRafflesByOrganizer(r.Context(), organizerID, limit, offset)
	if err != nil {
		h.writeServiceError(w, "list_user_raffles", err)
		return
	}
	h.writeJSON(w, http.StatusOK, views)
}

// UpdateRaffleHandler edits a raffle organized by the caller.
func (h *RaffleHandlers) UpdateRaffleHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	raffleID, ok := h.pathUUID(w, r, "raffleID")
	if !ok {
		return
	}

	var req domain.UpdateRaffleRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := h.service.UpdateRaffle(r.Context(), userID, raffleID, req)
	if err != nil {
		h.writeServiceError(w, "update_raffle", err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// ListAvailableNumbersHandler returns the unsold numbers of a raffle.
func (h *RaffleHandlers) ListAvailableNumbersHandler(w http.ResponseWriter, r *http.Request) {
	raffleID, ok := h.pathUUID(w, r, "raffleID")
	if !ok {
		return
	}
	numbers, err := h.service.ListAvailableNumbers(r.Context(), raffleID)
	if err != nil {
		h.writeServiceError(w, "list_numbers", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"raffle_id": raffleID, "numbers": numbers})
}

// ListTicketsHandler returns the sold tickets of a raffle.
func (h *RaffleHandlers) ListTicketsHandler(w http.ResponseWriter, r *http.Request) {
	raffleID, ok := h.pathUUID(w, r, "raffleID")
	if !ok {
		return
	}
	tickets, err := h.service.ListRaffleTickets(r.Context(), raffleID)
	if err != nil {
		h.writeServiceError(w, "list_tickets", err)
		return
	}
	h.writeJSON(w, http.StatusOK, tickets)
}

// PurchaseTicketHandler buys one number for the caller.
func (h *RaffleHandlers) PurchaseTicketHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	raffleID, ok := h.pathUUID(w, r, "raffleID")
	if !ok {
		return
	}

	var body purchaseTicketRequest
	if err := decodeJSON(r, &body, false); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ticket, err := h.service.PurchaseTicket(r.Context(), userID, domain.PurchaseTicketRequest{
		RaffleID:  raffleID,
		Number:    body.Number,
		AccountID: body.AccountID,
	})
	if err != nil {
		h.writeServiceError(w, "purchase_ticket", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ticket)
}

// RefundTicketHandler returns a ticket's price to the caller and releases the number.
func (h *RaffleHandlers) RefundTicketHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	ticketID, ok := h.pathUUID(w, r, "ticketID")
	if !ok {
		return
	}

	refund, err := h.service.RefundTicket(r.Context(), userID, ticketID)
	if err != nil {
		h.writeServiceError(w, "refund_ticket", err)
		return
	}
	h.writeJSON(w, http.StatusOK, refund)
}

// CancelRaffleHandler cancels a raffle on behalf of its organizer.
func (h *RaffleHandlers) CancelRaffleHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	raffleID, ok := h.pathUUID(w, r, "raffleID")
	if !ok {
		return
	}
	var body cancelRequest
	if err := decodeJSON(r, &body, true); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	report, err := h.service.CancelRaffle(r.Context(), userID, raffleID, body.Reason)
	if err != nil {
		h.writeServiceError(w, "cancel_raffle", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// AdminCancelRaffleHandler cancels any raffle. Mounted behind RequireAdmin.
func (h *RaffleHandlers) AdminCancelRaffleHandler(w http.ResponseWriter, r *http.Request) {
	raffleID, ok := h.pathUUID(w, r, "raffleID")
	if !ok {
		return
	}
	var body cancelRequest
	if err := decodeJSON(r, &body, true); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	report, err := h.service.AdminCancelRaffle(r.Context(), raffleID, body.Reason)
	if err != nil {
		h.writeServiceError(w, "admin_cancel_raffle", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// DrawHandler executes the draw. The organizer may draw after the deadline;
// administrators may also draw early with override set.
func (h *RaffleHandlers) DrawHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	raffleID, ok := h.pathUUID(w, r, "raffleID")
	if !ok {
		return
	}
	var body drawRequest
	if err := decodeJSON(r, &body, true); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	admin := IsAdmin(r.Context())
	if body.Override && !admin {
		h.writeError(w, http.StatusForbidden, "Only administrators can draw before the deadline")
		return
	}
	if !admin {
		view, err := h.service.GetRaffle(r.Context(), raffleID)
		if err != nil {
			h.writeServiceError(w, "draw", err)
			return
		}
		if view.OrganizerID != userID {
			h.writeError(w, http.StatusForbidden, "Only the organizer can draw this raffle")
			return
		}
	}

	receipt, err := h.service.ExecuteDraw(r.Context(), raffleID, body.Override)
	if err != nil {
		h.writeServiceError(w, "draw", err)
		return
	}
	h.writeJSON(w, http.StatusOK, receipt)
}

// SweepHandler runs the expiry sweep on demand. Mounted behind RequireAdmin.
func (h *RaffleHandlers) SweepHandler(w http.ResponseWriter, r *http.Request) {
	var body sweepRequest
	if err := decodeJSON(r, &body, true); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	report, err := h.service.SweepExpiredRaffles(r.Context(), body.DryRun, body.Force)
	if err != nil {
		h.writeServiceError(w, "sweep", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// GetAccountHandler returns an account owned by the caller.
func (h *RaffleHandlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := h.ownedAccount(w, r, "get_account")
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// ListLedgerHandler returns the most recent ledger entries of an account owned by the caller.
func (h *RaffleHandlers) ListLedgerHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := parseOptionalPositiveInt(r.URL.Query().Get("limit"), 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	account, ok := h.ownedAccount(w, r, "list_ledger")
	if !ok {
		return
	}

	entries, err := h.service.ListLedgerEntries(r.Context(), account.ID, limit)
	if err != nil {
		h.writeServiceError(w, "list_ledger", err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// MyTicketsHandler returns the caller's tickets, newest first.
func (h *RaffleHandlers) MyTicketsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	h.buyerTickets(w, r, userID, userID)
}

// MyTicketStatsHandler summarizes the caller's tickets.
func (h *RaffleHandlers) MyTicketStatsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	h.buyerStats(w, r, userID, userID)
}

// UserTicketsHandler returns another user's tickets to that user or an admin.
func (h *RaffleHandlers) UserTicketsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	buyerID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	h.buyerTickets(w, r, userID, buyerID)
}

// UserTicketStatsHandler summarizes another user's tickets for that user or an admin.
func (h *RaffleHandlers) UserTicketStatsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	buyerID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	h.buyerStats(w, r, userID, buyerID)
}

func (h *RaffleHandlers) buyerTickets(w http.ResponseWriter, r *http.Request, requesterID, buyerID uuid.UUID) {
	limit, offset, ok := h.page(w, r)
	if !ok {
		return
	}
	tickets, err := h.service.ListBuyerTickets(r.Context(), requesterID, buyerID, IsAdmin(r.Context()), limit, offset)
	if err != nil {
		h.writeServiceError(w, "list_buyer_tickets", err)
		return
	}
	h.writeJSON(w, http.StatusOK, tickets)
}

func (h *RaffleHandlers) buyerStats(w http.ResponseWriter, r *http.Request, requesterID, buyerID uuid.UUID) {
	stats, err := h.service.BuyerTicketStats(r.Context(), requesterID, buyerID, IsAdmin(r.Context()))
	if err != nil {
		h.writeServiceError(w, "ticket_stats", err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *RaffleHandlers) page(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	query := r.URL.Query()
	limit, err := parseOptionalPositiveInt(query.Get("limit"), 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid limit")
		return 0, 0, false
	}
	offset, err = parseOptionalPositiveInt(query.Get("offset"), 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid offset")
		return 0, 0, false
	}
	return limit, offset, true
}

func (h *RaffleHandlers) ownedAccount(w http.ResponseWriter, r *http.Request, op string) (*domain.Account, bool) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return nil, false
	}
	accountID, ok := h.pathUUID(w, r, "accountID")
	if !ok {
		return nil, false
	}
	account, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		h.writeServiceError(w, op, err)
		return nil, false
	}
	if account.UserID != userID && !IsAdmin(r.Context()) {
		h.writeError(w, http.StatusForbidden, "Account does not belong to user")
		return nil, false
	}
	return account, true
}

func (h *RaffleHandlers) requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not identify user from token")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *RaffleHandlers) pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid "+strings.TrimSuffix(param, "ID")+" id")
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps a settlement error to its HTTP status.
func (h *RaffleHandlers) writeServiceError(w http.ResponseWriter, op string, err error) {
	var rateErr *app.RateLimitError
	if errors.As(err, &rateErr) {
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		h.writeError(w, http.StatusTooManyRequests, "Too many purchase attempts. Please try again later.")
		return
	}

	var aborted *domain.DrawAbortedError
	if errors.As(err, &aborted) {
		h.writeJSON(w, http.StatusConflict, drawAbortedResponse{
			Error:            aborted.Error(),
			Deficit:          aborted.Deficit.StringFixed(2),
			OrganizerBalance: aborted.OrganizerBalance.StringFixed(2),
			Revenue:          aborted.Revenue.StringFixed(2),
			PrizeAmount:      aborted.PrizeAmount.StringFixed(2),
			Report:           aborted.Report,
		})
		return
	}

	status, message := mapServiceError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("level=error component=api endpoint=%s outcome=failed err=%v", op, err)
	} else {
		log.Printf("level=info component=api endpoint=%s outcome=rejected status=%d err=%v", op, status, err)
	}
	h.writeError(w, status, message)
}

func mapServiceError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrRaffleNotFound),
		errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrTicketNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrAccountOwnershipMismatch),
		errors.Is(err, domain.ErrNotTicketOwner),
		errors.Is(err, domain.ErrUnauthorizedCancellation),
		errors.Is(err, domain.ErrNotRaffleOrganizer),
		errors.Is(err, domain.ErrHistoryForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, domain.ErrNumberUnavailable),
		errors.Is(err, domain.ErrRaffleNotSellable),
		errors.Is(err, domain.ErrAccountInactive),
		errors.Is(err, domain.ErrDrawNotReady),
		errors.Is(err, domain.ErrNoTicketsSold),
		errors.Is(err, domain.ErrAlreadyCancelled),
		errors.Is(err, domain.ErrRaffleSettled),
		errors.Is(err, domain.ErrTicketNotRefundable),
		errors.Is(err, domain.ErrRaffleTermsLocked),
		errors.Is(err, domain.ErrPersistenceConflict):
		return http.StatusConflict, err.Error()
	}
	return http.StatusInternalServerError, "Could not process raffle request."
}

// decodeJSON reads a JSON body into v. When optional is set an empty body is accepted.
func decodeJSON(r *http.Request, v interface{}, optional bool) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	err := decoder.Decode(v)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func parseOptionalPositiveInt(raw string, defaultValue int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, errors.New("must be >= 0")
	}
	return value, nil
}

// writeJSON is a helper for writing JSON responses.
func (h *RaffleHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *RaffleHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
