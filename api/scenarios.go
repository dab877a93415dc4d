/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with clients and
	yield records, ready to be closed from the dashboard or with curl.

AVAILABLE SCENARIOS:

	two-periods:   Registration 2024-01-02, records on 2024-01-10 and
	               2024-02-20. Two closes give [01-02, 02-13] and
	               [02-13, 03-26], one record each.
	boundary-day:  Records on the first and last day of the first window
	               and on the day after. The boundary record goes to the
	               first period; the second period only gets the next day.
	empty-window:  A client with no records. The close still creates the
	               period, with nothing assigned.

HOW SCENARIOS WORK:
 1. Reset the store (delete every client, cascading to periods and records)
 2. Create the scenario clients
 3. Add unassigned yield records

USAGE VIA API:

	POST /scenarios/load
	{"scenario_id": "two-periods"}

NOTE:

	Scenarios wipe the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/repasse-engine/calendar"
	"github.com/warp/repasse-engine/payout"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "two-periods",
		Name:        "Two Periods",
		Description: "One client, one record per window, closed twice",
	},
	{
		ID:          "boundary-day",
		Name:        "Boundary Day",
		Description: "A record on the shared boundary day belongs to the earlier period",
	},
	{
		ID:          "empty-window",
		Name:        "Empty Window",
		Description: "Closing a window without records still creates the period",
	},
}

type scenarioRecord struct {
	date   string
	pct    string
	amount string
}

type scenarioData struct {
	client  payout.Client
	records []scenarioRecord
}

var scenarioLoaders = map[string]func() []scenarioData{
	"two-periods":  twoPeriodsScenario,
	"boundary-day": boundaryDayScenario,
	"empty-window": emptyWindowScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeEngineError(w, h.Log, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""

	if err := h.seed(ctx, load()); err != nil {
		writeEngineError(w, h.Log, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.Log.Info("scenario loaded", "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// reset deletes every client. Periods and records go with them.
func (h *Handler) reset(ctx context.Context) error {
	clients, err := h.Store.ListClients(ctx)
	if err != nil {
		return err
	}
	for _, c := range clients {
		if err := h.Store.DeleteClient(ctx, c.ID); err != nil {
			return fmt.Errorf("delete client %s: %w", c.ID, err)
		}
	}
	return nil
}

func (h *Handler) seed(ctx context.Context, data []scenarioData) error {
	for _, d := range data {
		if err := h.Store.SaveClient(ctx, d.client); err != nil {
			return fmt.Errorf("save client %s: %w", d.client.ID, err)
		}
		for i, rec := range d.records {
			err := h.Store.CreateRecord(ctx, payout.YieldRecord{
				ID:         payout.RecordID(fmt.Sprintf("%s-r%02d", d.client.ID, i+1)),
				ClientID:   d.client.ID,
				Date:       calendar.MustParse(rec.date),
				Percentage: decimal.RequireFromString(rec.pct),
				Amount:     decimal.RequireFromString(rec.amount),
			})
			if err != nil {
				return fmt.Errorf("create record %s: %w", rec.date, err)
			}
		}
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func demoClient(id, name string, registered string, contributed int64) payout.Client {
	return payout.Client{
		ID:               payout.ClientID(id),
		Name:             name,
		Email:            id + "@example.com",
		RegistrationDate: calendar.MustParse(registered),
		ContractedYield:  decimal.NewFromInt(3),
		ContributedValue: decimal.NewFromInt(contributed),
		LastModified:     time.Now().UTC(),
	}
}

func twoPeriodsScenario() []scenarioData {
	return []scenarioData{{
		client: demoClient("cli-001", "Beatriz Santos", "2024-01-02", 2000),
		records: []scenarioRecord{
			{date: "2024-01-10", pct: "3.01", amount: "60.25"},
			{date: "2024-02-20", pct: "3.01", amount: "60.25"},
		},
	}}
}

func boundaryDayScenario() []scenarioData {
	return []scenarioData{{
		client: demoClient("cli-002", "Carlos Lima", "2024-01-02", 5000),
		records: []scenarioRecord{
			{date: "2024-01-02", pct: "1.00", amount: "50.00"},
			{date: "2024-02-13", pct: "1.50", amount: "75.00"},
			{date: "2024-02-14", pct: "0.80", amount: "40.00"},
		},
	}}
}

func emptyWindowScenario() []scenarioData {
	return []scenarioData{{
		client: demoClient("cli-003", "Daniela Rocha", "2024-03-04", 1000),
	}}
}
