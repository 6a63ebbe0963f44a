package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"salesdesk/internal/domain"
	"salesdesk/internal/receipt"
	"salesdesk/internal/report"
	"salesdesk/internal/store"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := a.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		a.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token for the X-CSRF-Token header.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if err := a.service.CloseWorkspace(r.Context()); err != nil {
		a.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	refresh := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("refresh")), "true")
	snap, err := a.service.Snapshot(r.Context(), refresh)
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleCart(w http.ResponseWriter, r *http.Request) {
	var (
		view domain.CartView
		err  error
	)
	switch r.Method {
	case http.MethodGet:
		view, err = a.service.Cart(r.Context())
	case http.MethodDelete:
		view, err = a.service.ClearCart(r.Context())
	default:
		writeMethodNotAllowed(w)
		return
	}
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleCartLines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.AddLineRequest
	if err := a.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.AddLine(r.Context(), req)
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleCartLineActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}

	productID, err := parseID(strings.TrimPrefix(r.URL.Path, "/api/v1/cart/lines/"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("product id required"))
		return
	}
	view, err := a.service.RemoveLine(r.Context(), productID)
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleCartReprice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.RepriceRequest
	if err := a.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.Reprice(r.Context(), req)
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.SubmitRequest
	if err := a.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.SubmitSale(r.Context(), req)
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleReturnRequests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		status := domain.ReturnStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
		requests, err := a.service.ListReturnRequests(r.Context(), status)
		if err != nil {
			a.writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"return_requests": requests})
	case http.MethodPost:
		var req domain.SubmitRequest
		if err := a.decodeValid(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := a.service.SubmitReturn(r.Context(), req)
		if err != nil {
			a.writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleReturnRequestActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/return-requests/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || (parts[1] != "approve" && parts[1] != "reject") {
		writeError(w, http.StatusBadRequest, errors.New("invalid return request action path"))
		return
	}
	id, err := parseID(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("return request id required"))
		return
	}

	var req domain.ReviewRequest
	if err := a.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.pinLimiter.Allow("pin:review:" + clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
		return
	}

	reviewed, err := a.service.ReviewReturnRequest(r.Context(), id, parts[1] == "approve", req)
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"return_request": reviewed})
}

func (a *API) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	filter := store.ReceiptFilter{
		Kind:     domain.ReceiptKind(strings.TrimSpace(query.Get("kind"))),
		Status:   domain.ReturnStatus(strings.TrimSpace(query.Get("status"))),
		FromDate: strings.TrimSpace(query.Get("from")),
		ToDate:   strings.TrimSpace(query.Get("to")),
		Limit:    parsePositiveLimit(query.Get("limit"), 100, 500),
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown receipt kind %q", filter.Kind))
		return
	}

	receipts, err := a.service.ListReceipts(r.Context(), filter)
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": receipts})
}

// handleReceiptExport serves /api/v1/receipts/{kind}/{id}. Without a format
// the receipt is returned as JSON.
func (a *API) handleReceiptExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/receipts/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		writeError(w, http.StatusBadRequest, errors.New("invalid receipt path"))
		return
	}
	kind := domain.ReceiptKind(parts[0])
	idPart := parts[1]
	rawFormat := strings.TrimSpace(r.URL.Query().Get("format"))
	if dot := strings.LastIndex(idPart, "."); dot > 0 {
		rawFormat = idPart[dot+1:]
		idPart = idPart[:dot]
	}
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown receipt kind %q", parts[0]))
		return
	}
	id, err := parseID(idPart)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("receipt id required"))
		return
	}

	if rawFormat == "" || strings.EqualFold(rawFormat, "json") {
		found, err := a.service.Receipt(r.Context(), kind, id)
		if err != nil {
			a.writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, found)
		return
	}

	format, err := receipt.ParseFormat(rawFormat)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	art, err := a.service.ExportReceipt(r.Context(), kind, id, format)
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	w.Header().Set("Content-Type", art.ContentType)
	if format != receipt.FormatHTML {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Filename))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Body)
}

func (a *API) handlePayments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		payments, err := a.service.ListPayments(r.Context())
		if err != nil {
			a.writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
	case http.MethodPost:
		var req domain.PaymentCreateRequest
		if err := a.decodeValid(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		payment, err := a.service.RecordPayment(r.Context(), req)
		if err != nil {
			a.writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"payment": payment})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleBalances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	balances, err := a.service.Balances(r.Context())
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	if strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("format")), "csv") {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename=\"balances.csv\"")
		_, _ = w.Write([]byte(report.BalancesToCSV(balances)))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": balances})
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	rep, err := a.service.SalesReport(r.Context(), query.Get("from"), query.Get("to"))
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(query.Get("format"))) {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"sales-report-%s-%s.csv\"", rep.From, rep.To))
		_, _ = w.Write([]byte(report.SalesToCSV(rep)))
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(report.SalesToPrintableHTML(rep)))
	default:
		writeJSON(w, http.StatusOK, rep)
	}
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	date := r.URL.Query().Get("date")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), date, limit)
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
