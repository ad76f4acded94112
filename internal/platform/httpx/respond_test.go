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

	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Role string `json:"role"`
	}
	cases := []struct {
		name string
		body string
		ok   bool
	}{
		{name: "single object", body: `{"role":"employee"}`, ok: true},
		{name: "trailing whitespace", body: "{\"role\":\"employee\"}\n", ok: true},
		{name: "empty", body: ""},
		{name: "trailing value", body: `{"role":"employee"}{"role":"hr_admin"}`},
		{name: "truncated", body: `{"role":`},
		{name: "oversized", body: `{"role":"` + strings.Repeat("a", maxBodyBytes) + `"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var got payload
			err := DecodeJSON(req, &got)
			if tc.ok {
				require.NoError(t, err)
				require.Equal(t, "employee", got.Role)
				return
			}
			require.ErrorIs(t, err, ErrMalformedBody)
		})
	}
}

func TestProblemWritesProblemJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	Problem(rec, http.StatusConflict, "Conflict", "grant exists")

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, ProblemContentType, rec.Header().Get("Content-Type"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var body ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, ProblemDetail{Type: "about:blank", Title: "Conflict", Status: http.StatusConflict, Detail: "grant exists"}, body)
}

func TestRespondErrorStatus(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"malformed body":   {err: fmt.Errorf("%w: empty body", ErrMalformedBody), want: http.StatusBadRequest},
		"format":           {err: shared.NewFormatError("email", "not an address"), want: http.StatusBadRequest},
		"not found":        {err: shared.ErrNotFound, want: http.StatusNotFound},
		"conflict":         {err: shared.ErrProvisioningConflict, want: http.StatusConflict},
		"forbidden":        {err: ErrForbidden, want: http.StatusForbidden},
		"audit unwritable": {err: shared.ErrAuditWriteFailed, want: http.StatusInternalServerError},
		"unknown":          {err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)
			require.Equal(t, tc.want, rec.Code)
			require.Equal(t, ProblemContentType, rec.Header().Get("Content-Type"))
		})
	}
}
