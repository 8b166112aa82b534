package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rinkdesk/backend/internal/domain"
)

// ticketView adds presentation-only fields to a ticket.
type ticketView struct {
	domain.Ticket
	Inactive bool `json:"inactive"`
}

func viewTicket(ticket domain.Ticket, now time.Time) ticketView {
	return ticketView{Ticket: ticket, Inactive: ticket.Inactive(now)}
}

func (a *API) view(ticket domain.Ticket) ticketView {
	return viewTicket(ticket, a.service.Now())
}

func (a *API) handleListTickets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	branchID := query.Get("branch_id")
	actorDefaults(r, &branchID, nil)
	limit := parsePositiveLimit(query.Get("limit"), 200, 1000)

	tickets, err := a.service.ListTickets(r.Context(), branchID, query.Get("from"), query.Get("to"), limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	now := a.service.Now()
	views := make([]ticketView, 0, len(tickets))
	for _, ticket := range tickets {
		views = append(views, viewTicket(ticket, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": views})
}

func (a *API) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req domain.TicketCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actorDefaults(r, &req.BranchID, &req.StaffID)
	// booking date and time are always stamped server-side
	req.BookingDate = nil
	req.BookingTime = ""

	ticket, err := a.service.CreateTicket(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a.view(ticket))
}

func (a *API) handleQuickTicket(w http.ResponseWriter, r *http.Request) {
	var req domain.QuickTicketRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	actorDefaults(r, &req.BranchID, &req.StaffID)

	ticket, err := a.service.QuickCreateTicket(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a.view(ticket))
}

func (a *API) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := a.service.GetTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.view(ticket))
}

func (a *API) handleGetTicketByNumber(w http.ResponseWriter, r *http.Request) {
	ticket, err := a.service.GetTicketByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.view(ticket))
}

func (a *API) handleUpdateTicket(w http.ResponseWriter, r *http.Request) {
	var req domain.TicketUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ticket, err := a.service.UpdateTicketDetails(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.view(ticket))
}

func (a *API) handleDeleteTicket(w http.ResponseWriter, r *http.Request) {
	var req domain.TicketDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.checkManagerPIN(w, r, "delete", req.ManagerPIN) {
		return
	}

	if err := a.service.DeleteTicket(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleExtraTime(w http.ResponseWriter, r *http.Request) {
	var req domain.ExtraTimeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ticket, err := a.service.AddExtraTime(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.view(ticket))
}

func (a *API) handleFullRefund(w http.ResponseWriter, r *http.Request) {
	var req domain.FullRefundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.checkManagerPIN(w, r, "refund", req.ManagerPIN) {
		return
	}

	result, err := a.service.RefundFull(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handlePartialRefund(w http.ResponseWriter, r *http.Request) {
	var req domain.PartialRefundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.PlayerNames) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("player_names is required"))
		return
	}
	if !a.checkManagerPIN(w, r, "refund", req.ManagerPIN) {
		return
	}

	result, err := a.service.RefundPartial(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handlePlayerStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.PlayerStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ticket, err := a.service.UpdatePlayerStatus(r.Context(), chi.URLParam(r, "id"), req.PlayedPlayers)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.view(ticket))
}

func (a *API) handlePrint(w http.ResponseWriter, r *http.Request) {
	ticket, err := a.service.MarkPrinted(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.view(ticket))
}

func (a *API) handleComplete(w http.ResponseWriter, r *http.Request) {
	ticket, err := a.service.CompleteTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.view(ticket))
}

func (a *API) handleCancel(w http.ResponseWriter, r *http.Request) {
	ticket, err := a.service.CancelTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.view(ticket))
}
