package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: nope", ErrBadRequest), http.StatusBadRequest},
		{shared.Validation(shared.CodeUnbalanced, "debits differ"), http.StatusUnprocessableEntity},
		{shared.Conflict(shared.CodeInsufficientStock, "short"), http.StatusConflict},
		{shared.Forbidden(shared.CodeAccessDenied, "no"), http.StatusForbidden},
		{shared.NotFound("item"), http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.Integrity(shared.CodeLedgerChainBroken, "chain"), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, nil, shared.Integrity(shared.CodeBalanceDivergence, "item 3 running balance differs"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.NotContains(t, rec.Body.String(), "item 3")

	rec = httptest.NewRecorder()
	RespondError(rec, nil, shared.LineValidation(shared.CodeBothOrNeitherSet, 1, "debit and credit both set"))
	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, http.StatusUnprocessableEntity, problem.Status)
	require.Equal(t, "BOTH_OR_NEITHER_SET", problem.Code)
	require.Contains(t, problem.Detail, "(line 2)")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	err := DecodeJSON(r, &target)
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestParseHelpers(t *testing.T) {
	id, err := ParseID("42")
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	_, err = ParseID("0")
	require.ErrorIs(t, err, ErrBadRequest)

	from, err := ParseDate("2025-03-01", false)
	require.NoError(t, err)
	require.Equal(t, 0, from.Hour())
	to, err := ParseDate("2025-03-01", true)
	require.NoError(t, err)
	require.Equal(t, 23, to.Hour())
	require.Equal(t, 1, to.Day())

	none, err := ParseDate("", false)
	require.NoError(t, err)
	require.Nil(t, none)
	_, err = ParseDate("01/03/2025", false)
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestValidateReportsFields(t *testing.T) {
	type req struct {
		Name string `validate:"required"`
		Qty  int    `validate:"gt=0"`
	}
	err := Validate(req{})
	require.ErrorIs(t, err, ErrBadRequest)
	require.Contains(t, err.Error(), "req.Name:required")
	require.Contains(t, err.Error(), "req.Qty:gt")
	require.NoError(t, Validate(req{Name: "a", Qty: 1}))
}
