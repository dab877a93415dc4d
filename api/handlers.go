/*
handlers.go - HTTP request handlers

PURPOSE:
  Implements the HTTP endpoints. Each handler:
  1. Parses request parameters and body
  2. Calls the payout engine or the store
  3. Converts the result to DTOs
  4. Writes the JSON response

ENDPOINT GROUPS:
  Repasse:   close, list, next-close preview, due report
  Clients:   registry CRUD
  Returns:   yield record CRUD, CSV import
  Scenarios: demo data (scenarios.go)
  Health:    GET /healthz

ERROR HANDLING:
  Engine errors go through writeEngineError (errors.go), which owns the
  status mapping. Request parsing errors use writeError directly.

SEE ALSO:
  - server.go:  Route definitions
  - dto.go:     Request/response types
  - errors.go:  Error to status mapping
  - payout/closer.go: The close operation
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/repasse-engine/calendar"
	"github.com/warp/repasse-engine/importer"
	"github.com/warp/repasse-engine/logger"
	"github.com/warp/repasse-engine/payout"
)

// maxUploadBytes bounds the in-memory part of a CSV upload.
const maxUploadBytes = 10 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  payout.Store
	Closer *payout.Closer
	Log    *logger.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over store. A nil closer gets a default one.
func NewHandler(store payout.Store, closer *payout.Closer, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	if closer == nil {
		closer = payout.NewCloser(store, log)
	}
	return &Handler{Store: store, Closer: closer, Log: log}
}

// =============================================================================
// REPASSE HANDLERS
// =============================================================================

// CloseRepasse closes the next payout period of a client.
func (h *Handler) CloseRepasse(w http.ResponseWriter, r *http.Request) {
	clientID := payout.ClientID(chi.URLParam(r, "clientId"))

	var req CloseRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Closer.Close(r.Context(), clientID, payout.CloseOptions{RollFraction: req.RollFraction})
	if err != nil {
		writeEngineError(w, h.Log, "Failed to close repasse", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPeriodDTO(result.Period))
}

// ListRepasses returns every closed period of a client, oldest first.
func (h *Handler) ListRepasses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := payout.ClientID(chi.URLParam(r, "clientId"))

	if _, err := h.Store.GetClient(ctx, clientID); err != nil {
		writeEngineError(w, h.Log, "Failed to get client", err)
		return
	}
	periods, err := h.Store.ListPeriods(ctx, clientID)
	if err != nil {
		writeEngineError(w, h.Log, "Failed to list repasses", err)
		return
	}

	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toPeriodDTO(p)
	}
	writeJSON(w, http.StatusOK, PeriodListResponse{Success: true, Repasses: dtos})
}

// NextRepasse previews the window the next close would produce.
func (h *Handler) NextRepasse(w http.ResponseWriter, r *http.Request) {
	clientID := payout.ClientID(chi.URLParam(r, "clientId"))

	next, err := h.Closer.Preview(r.Context(), clientID)
	if err != nil {
		writeEngineError(w, h.Log, "Failed to compute next repasse", err)
		return
	}
	writeJSON(w, http.StatusOK, toNextCloseDTO(next))
}

// DueRepasses lists clients whose next window ends on ?on= (default today).
func (h *Handler) DueRepasses(w http.ResponseWriter, r *http.Request) {
	on := calendar.Today()
	if raw := r.URL.Query().Get("on"); raw != "" {
		parsed, err := calendar.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid on date (use YYYY-MM-DD)", err)
			return
		}
		on = parsed
	}

	due, err := h.Closer.Due(r.Context(), on)
	if err != nil {
		writeEngineError(w, h.Log, "Failed to compute due repasses", err)
		return
	}

	dtos := make([]NextCloseDTO, len(due))
	for i, n := range due {
		dtos[i] = toNextCloseDTO(n)
	}
	writeJSON(w, http.StatusOK, DueResponse{On: on, Due: dtos})
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns all clients.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Store.ListClients(r.Context())
	if err != nil {
		writeEngineError(w, h.Log, "Failed to list clients", err)
		return
	}

	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = toClientDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetClient returns a single client.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.Store.GetClient(r.Context(), payout.ClientID(chi.URLParam(r, "clientId")))
	if err != nil {
		writeEngineError(w, h.Log, "Failed to get client", err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(client))
}

// CreateClient registers a new client. An empty id gets a generated one.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	client := clientFromRequest(payout.ClientID(req.ID), req)
	if err := payout.ValidateClient(client); err != nil {
		writeEngineError(w, h.Log, "Invalid client", err)
		return
	}

	_, err := h.Store.GetClient(ctx, client.ID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Client already exists", Code: "duplicate"})
		return
	case !errors.Is(err, payout.ErrClientNotFound):
		writeEngineError(w, h.Log, "Failed to check client", err)
		return
	}

	if err := h.Store.SaveClient(ctx, client); err != nil {
		writeEngineError(w, h.Log, "Failed to create client", err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(client))
}

// UpdateClient patches an existing client. Fields left out of the body keep
// their value; the registration date is fixed once a period was closed.
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id := payout.ClientID(chi.URLParam(r, "clientId"))

	var req UpdateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID != "" && req.ID != string(id) {
		writeError(w, http.StatusBadRequest, "Client id in body does not match the URL", nil)
		return
	}

	updated, err := h.Closer.UpdateClient(r.Context(), id, payout.ClientPatch{
		Name:             req.Name,
		Email:            req.Email,
		RegistrationDate: req.RegistrationDate,
		ContractedYield:  req.ContractedYield,
		ContributedValue: req.ContributedValue,
	})
	if err != nil {
		writeEngineError(w, h.Log, "Failed to update client", err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(updated))
}

// DeleteClient removes a client with its periods and records.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id := payout.ClientID(chi.URLParam(r, "clientId"))
	if err := h.Store.DeleteClient(r.Context(), id); err != nil {
		writeEngineError(w, h.Log, "Failed to delete client", err)
		return
	}
	h.Log.Info("client deleted", "client_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func clientFromRequest(id payout.ClientID, req ClientRequest) payout.Client {
	return payout.Client{
		ID:               id,
		Name:             req.Name,
		Email:            req.Email,
		RegistrationDate: req.RegistrationDate,
		ContractedYield:  req.ContractedYield,
		ContributedValue: req.ContributedValue,
		LastModified:     time.Now().UTC(),
	}
}

// =============================================================================
// RETURN (YIELD RECORD) HANDLERS
// =============================================================================

// ListReturns lists a client's records, optionally filtered by
// ?periodId= or ?unassigned=true.
func (h *Handler) ListReturns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := payout.ClientID(chi.URLParam(r, "clientId"))

	filter := payout.RecordFilter{PeriodID: payout.PeriodID(r.URL.Query().Get("periodId"))}
	if raw := r.URL.Query().Get("unassigned"); raw != "" {
		unassigned, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid unassigned flag", err)
			return
		}
		filter.Unassigned = unassigned
	}

	if _, err := h.Store.GetClient(ctx, clientID); err != nil {
		writeEngineError(w, h.Log, "Failed to get client", err)
		return
	}
	records, err := h.Store.ListRecords(ctx, clientID, filter)
	if err != nil {
		writeEngineError(w, h.Log, "Failed to list returns", err)
		return
	}

	dtos := make([]RecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateReturn adds an unassigned yield record.
func (h *Handler) CreateReturn(w http.ResponseWriter, r *http.Request) {
	clientID := payout.ClientID(chi.URLParam(r, "clientId"))

	var req CreateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec := payout.YieldRecord{
		ID:         payout.RecordID(uuid.NewString()),
		ClientID:   clientID,
		Date:       req.Date,
		Percentage: req.Percentage,
		Variation:  req.Variation,
		Amount:     req.Amount,
	}
	if err := payout.ValidateRecord(rec); err != nil {
		writeEngineError(w, h.Log, "Invalid return", err)
		return
	}
	if err := h.Store.CreateRecord(r.Context(), rec); err != nil {
		writeEngineError(w, h.Log, "Failed to create return", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordDTO(rec))
}

// UpdateReturn changes the values of the record on {date}.
func (h *Handler) UpdateReturn(w http.ResponseWriter, r *http.Request) {
	clientID := payout.ClientID(chi.URLParam(r, "clientId"))
	date, err := calendar.Parse(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	var req UpdateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	patch := payout.RecordPatch{Percentage: req.Percentage, Variation: req.Variation, Amount: req.Amount}
	updated, err := h.Store.UpdateRecord(r.Context(), clientID, date, patch)
	if err != nil {
		writeEngineError(w, h.Log, "Failed to update return", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(updated))
}

// DeleteReturn removes the record on {date}.
func (h *Handler) DeleteReturn(w http.ResponseWriter, r *http.Request) {
	clientID := payout.ClientID(chi.URLParam(r, "clientId"))
	date, err := calendar.Parse(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	if err := h.Store.DeleteRecord(r.Context(), clientID, date); err != nil {
		writeEngineError(w, h.Log, "Failed to delete return", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportReturns loads the spreadsheet export sent as multipart field "file".
func (h *Handler) ImportReturns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := payout.ClientID(chi.URLParam(r, "clientId"))

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart upload", err)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file field", err)
		return
	}
	defer file.Close()

	if _, err := h.Store.GetClient(ctx, clientID); err != nil {
		writeEngineError(w, h.Log, "Failed to get client", err)
		return
	}

	summary, err := importer.Import(ctx, h.Store, clientID, file)
	if err != nil {
		writeEngineError(w, h.Log, "Failed to import returns", err)
		return
	}

	h.Log.Info("returns imported",
		"client_id", clientID,
		"inserted", summary.Inserted,
		"duplicates", summary.Duplicates,
		"skipped", summary.Skipped,
	)
	writeJSON(w, http.StatusOK, summary)
}

// =============================================================================
// HEALTH
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// decodeOptional decodes a JSON body into v; an empty body leaves v untouched.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
