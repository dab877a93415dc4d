/*
handlers_test.go - HTTP tests for the repasse API

Tests for:
- Close / list / preview / due endpoints
- Error status mapping on the wire
- Client and yield record CRUD, CSV import
- Request logging middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/repasse-engine/logger"
	"github.com/warp/repasse-engine/payout"
	"github.com/warp/repasse-engine/store/memory"
	"github.com/warp/repasse-engine/store/sqlite"
)

// =============================================================================
// HELPERS
// =============================================================================

type testServer struct {
	handler *Handler
	router  http.Handler
}

func newTestServer(t *testing.T, store payout.Store) *testServer {
	t.Helper()
	h := NewHandler(store, nil, logger.Nop())
	return &testServer{handler: h, router: NewRouter(h, RouterOptions{})}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) loadScenario(t *testing.T, id string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// REPASSE
// =============================================================================

func TestCloseRepasse_TwoConsecutivePeriods(t *testing.T) {
	// GIVEN: A client registered 2024-01-02 with records on 01-10 and 02-20
	s := newTestServer(t, memory.New())
	s.loadScenario(t, "two-periods")

	// WHEN: Closing twice
	rec := s.do(t, http.MethodPost, "/repasse/close/cli-001", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[PeriodDTO](t, rec)

	rec = s.do(t, http.MethodPost, "/repasse/close/cli-001", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	second := decode[PeriodDTO](t, rec)

	// THEN: Contiguous windows, labels numbered from 1
	assert.Equal(t, "1º Repasse", first.Label)
	assert.Equal(t, "2024-01-02", first.Start.String())
	assert.Equal(t, "2024-02-13", first.End.String())
	assert.Equal(t, "2º Repasse", second.Label)
	assert.Equal(t, "2024-02-13", second.Start.String())
	assert.Equal(t, "2024-03-26", second.End.String())

	// AND: The list endpoint returns both, oldest first
	rec = s.do(t, http.MethodGet, "/repasse/cli-001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[PeriodListResponse](t, rec)
	assert.True(t, list.Success)
	require.Len(t, list.Repasses, 2)
	assert.Equal(t, first.ID, list.Repasses[0].ID)
	assert.Equal(t, second.ID, list.Repasses[1].ID)

	// AND: Each record went to its own period
	rec = s.do(t, http.MethodGet, "/returns/cli-001?periodId="+first.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[[]RecordDTO](t, rec)
	require.Len(t, records, 1)
	assert.Equal(t, "2024-01-10", records[0].Date.String())
	require.NotNil(t, records[0].PeriodID)
	assert.Equal(t, first.ID, *records[0].PeriodID)
}

func TestCloseRepasse_BoundaryRecordGoesToEarlierPeriod(t *testing.T) {
	s := newTestServer(t, memory.New())
	s.loadScenario(t, "boundary-day")

	first := decode[PeriodDTO](t, s.do(t, http.MethodPost, "/repasse/close/cli-002", nil))
	second := decode[PeriodDTO](t, s.do(t, http.MethodPost, "/repasse/close/cli-002", nil))

	inFirst := decode[[]RecordDTO](t, s.do(t, http.MethodGet, "/returns/cli-002?periodId="+first.ID, nil))
	inSecond := decode[[]RecordDTO](t, s.do(t, http.MethodGet, "/returns/cli-002?periodId="+second.ID, nil))

	require.Len(t, inFirst, 2)
	assert.Equal(t, "2024-01-02", inFirst[0].Date.String())
	assert.Equal(t, "2024-02-13", inFirst[1].Date.String())
	require.Len(t, inSecond, 1)
	assert.Equal(t, "2024-02-14", inSecond[0].Date.String())
}

func TestCloseRepasse_EmptyWindowStillCreatesPeriod(t *testing.T) {
	s := newTestServer(t, memory.New())
	s.loadScenario(t, "empty-window")

	rec := s.do(t, http.MethodPost, "/repasse/close/cli-003", nil)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "1º Repasse", decode[PeriodDTO](t, rec).Label)
}

func TestCloseRepasse_RollFraction(t *testing.T) {
	// GIVEN: One record of 60.25 inside the first window
	s := newTestServer(t, memory.New())
	s.loadScenario(t, "two-periods")

	// WHEN: Closing with 70% roll-in
	rec := s.do(t, http.MethodPost, "/repasse/close/cli-001", `{"roll_fraction":"0.7"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: 60.25 * 0.7 = 42.175 was added to the contributed value
	client := decode[ClientDTO](t, s.do(t, http.MethodGet, "/clients/cli-001", nil))
	want := decimal.RequireFromString("2042.175")
	assert.True(t, client.ContributedValue.Equal(want), client.ContributedValue.String())
}

func TestCloseRepasse_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     any
		wantCode int
		wantKind string
	}{
		{"unknown client", "/repasse/close/ghost", nil, http.StatusNotFound, "not_found"},
		{"fraction above one", "/repasse/close/cli-001", `{"roll_fraction":"1.5"}`, http.StatusBadRequest, "invalid_fraction"},
		{"zero fraction", "/repasse/close/cli-001", `{"roll_fraction":0}`, http.StatusBadRequest, "invalid_fraction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, memory.New())
			s.loadScenario(t, "two-periods")

			rec := s.do(t, http.MethodPost, tt.path, tt.body)

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.wantKind, resp.Code)
			assert.False(t, resp.Retryable)
		})
	}
}

func TestCloseRepasse_MalformedBody(t *testing.T) {
	s := newTestServer(t, memory.New())
	s.loadScenario(t, "two-periods")

	rec := s.do(t, http.MethodPost, "/repasse/close/cli-001", `{"roll_fraction":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCloseRepasse_ConcurrentCloseIsConflict(t *testing.T) {
	// GIVEN: Another close of the same client in flight
	s := newTestServer(t, memory.New())
	s.loadScenario(t, "two-periods")
	locks := payout.NewKeyedLock()
	s.handler.Closer.Locks = locks
	release, ok := locks.TryLock("cli-001")
	require.True(t, ok)
	defer release()

	// WHEN: Closing
	rec := s.do(t, http.MethodPost, "/repasse/close/cli-001", nil)

	// THEN: 409, flagged retryable, and nothing was written
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "conflict", resp.Code)
	assert.True(t, resp.Retryable)

	list := decode[PeriodListResponse](t, s.do(t, http.MethodGet, "/repasse/cli-001", nil))
	assert.Empty(t, list.Repasses)
}

// brokenTx fails every transaction, like a database that went away mid-close.
type brokenTx struct {
	*memory.Memory
}

func (brokenTx) WithTx(context.Context, func(payout.Repositories) error) error {
	return errors.New("disk I/O error")
}

func TestCloseRepasse_PersistenceFailureIsRetryable(t *testing.T) {
	mem := memory.New()
	s := newTestServer(t, brokenTx{mem})
	s.loadScenario(t, "two-periods")

	rec := s.do(t, http.MethodPost, "/repasse/close/cli-001", nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "persistence", resp.Code)
	assert.True(t, resp.Retryable)
	assert.Contains(t, resp.Details, "disk I/O error")
}

func TestListRepasses_UnknownClient(t *testing.T) {
	s := newTestServer(t, memory.New())

	rec := s.do(t, http.MethodGet, "/repasse/ghost", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNextRepasse_PreviewDoesNotWrite(t *testing.T) {
	s := newTestServer(t, memory.New())
	s.loadScenario(t, "two-periods")

	rec := s.do(t, http.MethodGet, "/repasse/cli-001/next", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	next := decode[NextCloseDTO](t, rec)

	assert.Equal(t, 1, next.Sequence)
	assert.Equal(t, "1º Repasse", next.Label)
	assert.Equal(t, "2024-01-02", next.Start.String())
	assert.Equal(t, "2024-02-13", next.End.String())

	list := decode[PeriodListResponse](t, s.do(t, http.MethodGet, "/repasse/cli-001", nil))
	assert.Empty(t, list.Repasses)
}

func TestDueRepasses(t *testing.T) {
	s := newTestServer(t, memory.New())
	s.loadScenario(t, "two-periods")

	rec := s.do(t, http.MethodGet, "/repasse/due?on=2024-02-13", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	due := decode[DueResponse](t, rec)
	require.Len(t, due.Due, 1)
	assert.Equal(t, "cli-001", due.Due[0].ClientID)

	rec = s.do(t, http.MethodGet, "/repasse/due?on=2024-02-14", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[DueResponse](t, rec).Due)

	rec = s.do(t, http.MethodGet, "/repasse/due?on=13/02/2024", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// CLIENTS
// =============================================================================

func TestClients_CRUD(t *testing.T) {
	s := newTestServer(t, memory.New())

	// Create
	body := `{"id":"cli-9","name":"Eva","registration_date":"2024-05-06","contributed_value":"1500.50"}`
	rec := s.do(t, http.MethodPost, "/clients", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/clients", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Read
	rec = s.do(t, http.MethodGet, "/clients/cli-9", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	client := decode[ClientDTO](t, rec)
	assert.Equal(t, "2024-05-06", client.RegistrationDate.String())
	assert.True(t, client.ContributedValue.Equal(decimal.RequireFromString("1500.5")))

	// Update
	rec = s.do(t, http.MethodPut, "/clients/cli-9", `{"name":"Eva M.","registration_date":"2024-05-07","contributed_value":"10"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Eva M.", decode[ClientDTO](t, rec).Name)

	rec = s.do(t, http.MethodPut, "/clients/other", `{"name":"x","registration_date":"2024-05-07"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// List
	rec = s.do(t, http.MethodGet, "/clients", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ClientDTO](t, rec), 1)

	// Delete
	rec = s.do(t, http.MethodDelete, "/clients/cli-9", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, "/clients/cli-9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateClient_RegistrationLockedAfterClose(t *testing.T) {
	// GIVEN: cli-001 has its first period closed
	s := newTestServer(t, memory.New())
	s.loadScenario(t, "two-periods")
	rec := s.do(t, http.MethodPost, "/repasse/close/cli-001", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: Moving the registration date
	rec = s.do(t, http.MethodPut, "/clients/cli-001", `{"name":"x","registration_date":"2024-03-01"}`)

	// THEN: 409, and neither the client nor the period changed
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "registration_locked", resp.Code)
	assert.False(t, resp.Retryable)

	client := decode[ClientDTO](t, s.do(t, http.MethodGet, "/clients/cli-001", nil))
	assert.Equal(t, "2024-01-02", client.RegistrationDate.String())
	assert.NotEqual(t, "x", client.Name)
	assert.True(t, client.ContributedValue.Equal(decimal.NewFromInt(2000)), client.ContributedValue.String())

	list := decode[PeriodListResponse](t, s.do(t, http.MethodGet, "/repasse/cli-001", nil))
	require.Len(t, list.Repasses, 1)
	assert.Equal(t, "2024-01-02", list.Repasses[0].Start.String())
}

func TestUpdateClient_SameRegistrationDateAfterClose(t *testing.T) {
	s := newTestServer(t, memory.New())
	s.loadScenario(t, "two-periods")
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/repasse/close/cli-001", nil).Code)

	rec := s.do(t, http.MethodPut, "/clients/cli-001", `{"name":"Renamed","registration_date":"2024-01-02"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Renamed", decode[ClientDTO](t, rec).Name)
}

func TestUpdateClient_OmittedFieldsKeepStoredValues(t *testing.T) {
	// GIVEN: A close with 70% roll-in raised the contribution to 2042.175
	s := newTestServer(t, memory.New())
	s.loadScenario(t, "two-periods")
	rec := s.do(t, http.MethodPost, "/repasse/close/cli-001", `{"roll_fraction":"0.7"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: Renaming without sending contributed_value
	rec = s.do(t, http.MethodPut, "/clients/cli-001", `{"name":"New name"}`)

	// THEN: Only the name changed
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	client := decode[ClientDTO](t, s.do(t, http.MethodGet, "/clients/cli-001", nil))
	assert.Equal(t, "New name", client.Name)
	assert.Equal(t, "2024-01-02", client.RegistrationDate.String())
	want := decimal.RequireFromString("2042.175")
	assert.True(t, client.ContributedValue.Equal(want), client.ContributedValue.String())
}

func TestUpdateClient_RegistrationMovesBeforeFirstClose(t *testing.T) {
	s := newTestServer(t, memory.New())
	s.loadScenario(t, "two-periods")

	rec := s.do(t, http.MethodPut, "/clients/cli-001", `{"registration_date":"2024-01-03"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	next := decode[NextCloseDTO](t, s.do(t, http.MethodGet, "/repasse/cli-001/next", nil))
	assert.Equal(t, "2024-01-03", next.Start.String())
}

func TestUpdateClient_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantKind string
	}{
		{"negative contribution", `{"contributed_value":"-1"}`, http.StatusBadRequest, "invalid_input"},
		{"id mismatch", `{"id":"cli-002"}`, http.StatusBadRequest, ""},
		{"malformed body", `{"name":`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, memory.New())
			s.loadScenario(t, "two-periods")

			rec := s.do(t, http.MethodPut, "/clients/cli-001", tt.body)

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantKind, decode[ErrorResponse](t, rec).Code)
			client := decode[ClientDTO](t, s.do(t, http.MethodGet, "/clients/cli-001", nil))
			assert.True(t, client.ContributedValue.Equal(decimal.NewFromInt(2000)))
		})
	}
}

func TestUpdateClient_ConflictsWithCloseInFlight(t *testing.T) {
	// GIVEN: A close of cli-001 holds the client lock
	s := newTestServer(t, memory.New())
	s.loadScenario(t, "two-periods")
	locks := payout.NewKeyedLock()
	s.handler.Closer.Locks = locks
	release, ok := locks.TryLock("cli-001")
	require.True(t, ok)
	defer release()

	// WHEN: Editing the client
	rec := s.do(t, http.MethodPut, "/clients/cli-001", `{"contributed_value":"5"}`)

	// THEN: 409 retryable, nothing written
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "conflict", resp.Code)
	assert.True(t, resp.Retryable)
	client := decode[ClientDTO](t, s.do(t, http.MethodGet, "/clients/cli-001", nil))
	assert.True(t, client.ContributedValue.Equal(decimal.NewFromInt(2000)))
}

func TestUpdateClient_RegistrationLockedOnSQLite(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	s := newTestServer(t, store)
	s.loadScenario(t, "two-periods")
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/repasse/close/cli-001", nil).Code)

	rec := s.do(t, http.MethodPut, "/clients/cli-001", `{"registration_date":"2024-03-01"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPut, "/clients/cli-001", `{"name":"Renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	client := decode[ClientDTO](t, s.do(t, http.MethodGet, "/clients/cli-001", nil))
	assert.Equal(t, "Renamed", client.Name)
	assert.Equal(t, "2024-01-02", client.RegistrationDate.String())
	assert.True(t, client.ContributedValue.Equal(decimal.NewFromInt(2000)), client.ContributedValue.String())
}

func TestCreateClient_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing registration date", `{"id":"a","name":"A"}`, http.StatusBadRequest},
		{"malformed date", `{"id":"a","registration_date":"06/05/2024"}`, http.StatusBadRequest},
		{"negative contribution", `{"id":"a","registration_date":"2024-05-06","contributed_value":"-1"}`, http.StatusBadRequest},
		{"not json", `nope`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, memory.New())
			rec := s.do(t, http.MethodPost, "/clients", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestCreateClient_GeneratesID(t *testing.T) {
	s := newTestServer(t, memory.New())

	rec := s.do(t, http.MethodPost, "/clients", `{"name":"Ana","registration_date":"2024-05-06"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[ClientDTO](t, rec).ID)
}

// =============================================================================
// RETURNS
// =============================================================================

func TestReturns_CRUDAndFreeze(t *testing.T) {
	s := newTestServer(t, memory.New())
	s.loadScenario(t, "empty-window")

	// GIVEN: A new record
	rec := s.do(t, http.MethodPost, "/returns/cli-003", `{"date":"2024-03-05","percentage":"0.9","amount":"10"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[RecordDTO](t, rec)
	assert.Nil(t, created.PeriodID)
	assert.Contains(t, rec.Body.String(), `"period_id":null`)

	// Same date again is a duplicate
	rec = s.do(t, http.MethodPost, "/returns/cli-003", `{"date":"2024-03-05","amount":"1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate", decode[ErrorResponse](t, rec).Code)

	// WHEN: Updating the amount only
	rec = s.do(t, http.MethodPut, "/returns/cli-003/2024-03-05", `{"amount":"12.5"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[RecordDTO](t, rec)
	assert.True(t, updated.Amount.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, updated.Percentage.Equal(decimal.RequireFromString("0.9")))

	// AND: Closing the period that contains it
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/repasse/close/cli-003", nil).Code)

	// THEN: The record is frozen
	rec = s.do(t, http.MethodPut, "/returns/cli-003/2024-03-05", `{"amount":"1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "record_assigned", decode[ErrorResponse](t, rec).Code)
	rec = s.do(t, http.MethodDelete, "/returns/cli-003/2024-03-05", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: Unassigned records can still be deleted
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/returns/cli-003", `{"date":"2024-09-02","amount":"3"}`).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/returns/cli-003/2024-09-02", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/returns/cli-003/2024-09-02", nil).Code)
}

func TestReturns_BadInput(t *testing.T) {
	s := newTestServer(t, memory.New())
	s.loadScenario(t, "empty-window")

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/returns/cli-003/not-a-date", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodDelete, "/returns/cli-003/2024-13-40", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/returns/cli-003", `{"amount":"1"}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/returns/cli-003?unassigned=maybe", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/returns/ghost", `{"date":"2024-03-05"}`).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/returns/ghost", nil).Code)
}

func TestListReturns_UnassignedFilter(t *testing.T) {
	s := newTestServer(t, memory.New())
	s.loadScenario(t, "two-periods")
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/repasse/close/cli-001", nil).Code)

	all := decode[[]RecordDTO](t, s.do(t, http.MethodGet, "/returns/cli-001", nil))
	free := decode[[]RecordDTO](t, s.do(t, http.MethodGet, "/returns/cli-001?unassigned=true", nil))

	assert.Len(t, all, 2)
	require.Len(t, free, 1)
	assert.Equal(t, "2024-02-20", free[0].Date.String())
}

func TestImportReturns(t *testing.T) {
	s := newTestServer(t, memory.New())
	s.loadScenario(t, "empty-window")

	csv := "Data,Dia,Percentual,Variação,Rendimento\n" +
		"MARÇO,,,,\n" +
		"05/03/2024,terça,\"0,85%\",\"0,10%\",\"R$ 1.234,56\"\n" +
		"06/03/2024,quarta,,,\n" +
		"07/03/2024,quinta,\"1,00%\",,\"R$ 10,00\"\n"

	send := func() *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "rendimentos.csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(csv))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/returns/import/cli-003", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec
	}

	rec := send()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"inserted":2,"duplicates":0,"skipped":1}`, rec.Body.String())

	rec = send()
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"inserted":0,"duplicates":2,"skipped":1}`, rec.Body.String())

	records := decode[[]RecordDTO](t, s.do(t, http.MethodGet, "/returns/cli-003", nil))
	require.Len(t, records, 2)
	assert.True(t, records[0].Amount.Equal(decimal.RequireFromString("1234.56")))
}

func TestImportReturns_MissingFile(t *testing.T) {
	s := newTestServer(t, memory.New())

	rec := s.do(t, http.MethodPost, "/returns/import/cli-003", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// HEALTH / MIDDLEWARE
// =============================================================================

func TestHealth_WithSQLiteStore(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer store.Close()
	s := newTestServer(t, store)

	rec := s.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRequestLogger_LogsEachRequest(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}
	h := NewHandler(memory.New(), nil, log)
	router := NewRouter(h, RouterOptions{CORSOrigins: []string{"https://painel.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/repasse/ghost", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/repasse/ghost", fields["path"])
	assert.EqualValues(t, http.StatusNotFound, fields["status"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestWriteEngineError_LogLevels(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel zapcore.Level
		wantLogs  int
	}{
		{"persistence failure", fmt.Errorf("%w: disk I/O error", payout.ErrPersistence), zapcore.ErrorLevel, 1},
		{"lock conflict", fmt.Errorf("%w: client c1", payout.ErrConcurrencyConflict), zapcore.WarnLevel, 1},
		{"caller mistake", fmt.Errorf("%w: bad body", payout.ErrInvalidInput), zapcore.InfoLevel, 0},
		{"registration locked", fmt.Errorf("%w: c1", payout.ErrRegistrationLocked), zapcore.InfoLevel, 0},
		{"missing client", fmt.Errorf("%w: ghost", payout.ErrClientNotFound), zapcore.InfoLevel, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.InfoLevel)
			log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

			writeEngineError(httptest.NewRecorder(), log, "Failed", tt.err)

			require.Equal(t, tt.wantLogs, logs.Len())
			if tt.wantLogs > 0 {
				assert.Equal(t, tt.wantLevel, logs.All()[0].Level)
			}
		})
	}
}

func TestCORS_AllowsConfiguredOrigin(t *testing.T) {
	h := NewHandler(memory.New(), nil, logger.Nop())
	router := NewRouter(h, RouterOptions{CORSOrigins: []string{"https://painel.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/clients", nil)
	req.Header.Set("Origin", "https://painel.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://painel.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST"))
}
