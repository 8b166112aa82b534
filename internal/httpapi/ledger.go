package httpapi

import (
	"net/http"

	"rinkdesk/backend/internal/domain"
)

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	branchID := query.Get("branch_id")
	actorDefaults(r, &branchID, nil)

	sales, err := a.service.ListSales(r.Context(), branchID, query.Get("from"), query.Get("to"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actorDefaults(r, &req.BranchID, &req.StaffID)

	sale, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (a *API) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	branchID := query.Get("branch_id")
	actorDefaults(r, &branchID, nil)

	expenses, err := a.service.ListExpenses(r.Context(), branchID, query.Get("from"), query.Get("to"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
}

func (a *API) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req domain.ExpenseCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actorDefaults(r, &req.BranchID, &req.StaffID)

	expense, err := a.service.CreateExpense(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}
