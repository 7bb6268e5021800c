package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertStatusCode checks the recorded status, echoing the body on mismatch
func AssertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equalf(t, expected, w.Code, "body: %s", w.Body.String())
}

// AssertJSONError checks status and that the {"error": ...} body carries msg
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, msg string) {
	t.Helper()
	AssertStatusCode(t, w, expectedStatus)

	var body struct {
		Error string `json:"error"`
	}
	if assert.NoErrorf(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String()) {
		assert.Contains(t, body.Error, msg)
	}
}

// NewJSONRequest builds a request whose body is body marshaled as JSON.
// A nil body yields an empty request body.
func NewJSONRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewRequestWithCookie builds a body-less request carrying a session cookie
func NewRequestWithCookie(t *testing.T, method, target, cookieName, token string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: token})
	return req
}

func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoErrorf(t, json.NewDecoder(w.Body).Decode(&out), "body: %s", w.Body.String())
	return out
}
