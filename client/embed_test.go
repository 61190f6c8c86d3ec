package client

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ServesScript(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/intake.js", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
	assert.Contains(t, rec.Body.String(), `"intake.json"`)
}

func TestGetFile(t *testing.T) {
	data, err := GetFile("intake.js")
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	_, err = GetFile("missing.js")
	assert.Error(t, err)
}
