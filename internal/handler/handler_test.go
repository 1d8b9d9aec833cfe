package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/astraea-labs/astraea/internal/ai/mock"
	"github.com/astraea-labs/astraea/internal/calc"
	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/astraea-labs/astraea/internal/lock"
	"github.com/astraea-labs/astraea/internal/middleware"
	"github.com/astraea-labs/astraea/internal/service"
	"github.com/astraea-labs/astraea/internal/store/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.EPAYMENT, http.StatusPaymentRequired},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.EUPSTREAM, http.StatusBadGateway},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{"made_up", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, ErrorCodeToHTTPStatus(tt.code), tt.code)
	}
}

func TestErrorResponse_InsufficientCreditsDetail(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := domain.InsufficientCredits("reading.create", 2, 1)

	req := httptest.NewRequest("POST", "/api/readings", nil)
	rec := httptest.NewRecorder()
	ErrorResponse(rec, req, logger, err)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Detail  map[string]any `json:"detail"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.EPAYMENT, body.Error.Code)
	assert.EqualValues(t, 2, body.Error.Detail["required_credits"])
	assert.EqualValues(t, 1, body.Error.Detail["available_credits"])
}

// newTestServer wires the full API against the memory store with the
// dev token verifier (bearer token = account id).
func newTestServer(t *testing.T) (*http.ServeMux, *domain.Account) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st := memory.New()
	for _, a := range domain.DefaultCatalog() {
		a := a
		require.NoError(t, st.UpsertAction(context.Background(), &a))
	}
	acct := &domain.Account{
		ID:            uuid.New(),
		Email:         "reader@example.com",
		Tier:          domain.TierBasic,
		Credits:       5,
		FreeTrialUsed: true,
	}
	require.NoError(t, st.CreateAccount(context.Background(), acct))

	locker := lock.NewKeyed(lock.DefaultTTL)
	artifacts := service.NewArtifactService(st, locker, calc.NewMock(), mock.New(logger), logger)
	unlocks := service.NewUnlockService(st, logger)
	accounts := service.NewAccountService(st, logger)

	mux := http.NewServeMux()
	requireAccount := middleware.RequireAccount(middleware.UUIDVerifier)
	NewArtifactHandler(artifacts, unlocks, logger).RegisterRoutes(mux, requireAccount)
	NewAccountHandler(accounts, logger).RegisterRoutes(mux, requireAccount)
	return mux, acct
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestCreateReadingEndpoint(t *testing.T) {
	mux, acct := newTestServer(t)

	payload := map[string]any{
		"action": "lifetime_reading",
		"subject": map[string]string{
			"name":       "Li Wei",
			"birth_date": "1988-06-21",
			"birth_time": "14:20",
			"timezone":   "Asia/Shanghai",
			"gender":     "male",
		},
	}

	t.Run("requires auth", func(t *testing.T) {
		rec := doJSON(t, mux, "POST", "/api/readings", "", payload)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("creates and charges", func(t *testing.T) {
		rec := doJSON(t, mux, "POST", "/api/readings", acct.ID.String(), payload)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp struct {
			ID             uuid.UUID `json:"id"`
			ChargeMode     string    `json:"charge_mode"`
			CreditsCharged int       `json:"credits_charged"`
			LockedSections []string  `json:"locked_sections"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "paid", resp.ChargeMode)
		assert.Equal(t, 2, resp.CreditsCharged)

		// Premium sections start locked.
		assert.NotEmpty(t, resp.LockedSections)

		// Unlock one and see it appear in the artifact view.
		unlockRec := doJSON(t, mux, "POST", fmt.Sprintf("/api/artifacts/%s/unlocks", resp.ID), acct.ID.String(),
			map[string]string{"section_key": "career", "method": "credit"})
		require.Equal(t, http.StatusOK, unlockRec.Code, unlockRec.Body.String())

		getRec := doJSON(t, mux, "GET", fmt.Sprintf("/api/artifacts/%s", resp.ID), acct.ID.String(), nil)
		require.Equal(t, http.StatusOK, getRec.Code)
		var view struct {
			Sections       map[string]string `json:"sections"`
			LockedSections []string          `json:"locked_sections"`
		}
		require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &view))
		assert.Contains(t, view.Sections, "career")
		assert.NotContains(t, view.LockedSections, "career")
	})

	t.Run("insufficient credits maps to 402", func(t *testing.T) {
		// Balance is now 5 - 2 - 1 = 2; drain it with another reading, then
		// a third distinct request must be rejected as payment required.
		second := map[string]any{
			"action": "lifetime_reading",
			"subject": map[string]string{
				"name":       "Li Wei",
				"birth_date": "1989-01-02",
				"birth_time": "03:00",
				"timezone":   "Asia/Shanghai",
			},
		}
		rec := doJSON(t, mux, "POST", "/api/readings", acct.ID.String(), second)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		third := map[string]any{
			"action": "lifetime_reading",
			"subject": map[string]string{
				"name":       "Li Wei",
				"birth_date": "1990-12-12",
				"birth_time": "23:15",
				"timezone":   "Asia/Shanghai",
			},
		}
		rec = doJSON(t, mux, "POST", "/api/readings", acct.ID.String(), third)
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	})
}

func TestBalanceEndpoint(t *testing.T) {
	mux, acct := newTestServer(t)

	rec := doJSON(t, mux, "GET", "/api/account/balance", acct.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Credits)
	assert.Equal(t, "basic", resp.Tier)
	assert.True(t, resp.FreeTrialUsed)
}
