package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, Page[string]{Items: []string{"a"}, Total: 1, Limit: 10})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var page Page[string]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, []string{"a"}, page.Items)
	assert.Equal(t, 1, page.Total)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, "bad window")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"bad window"}`, rec.Body.String())
}

func TestWriteErrorDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorDetails(rec, http.StatusBadGateway, "sync failed", map[string]int{"failed": 2})

	assert.JSONEq(t, `{"error":"sync failed","details":{"failed":2}}`, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Days int `json:"days"`
	}

	var b body
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"days":3}`))
	require.NoError(t, DecodeJSON(req, &b))
	assert.Equal(t, 3, b.Days)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nope":1}`))
	assert.Error(t, DecodeJSON(req, &b))

	b = body{Days: 7}
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, DecodeJSON(req, &b))
	assert.Equal(t, 7, b.Days)
}
