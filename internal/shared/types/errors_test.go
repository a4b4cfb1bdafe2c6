package types

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppError(t *testing.T) {
	err := NewAppError(http.StatusBadRequest, "missing field")

	assert.Equal(t, "400", err.Status)
	assert.Equal(t, "Bad Request", err.Title)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode())
	assert.Equal(t, "400 Bad Request: missing field", err.Error())
}

func TestNotFound(t *testing.T) {
	err := NotFound("01HZX")

	assert.Equal(t, http.StatusNotFound, err.StatusCode())
	assert.Equal(t, "Not Found", err.Title)
	assert.Equal(t, "Entity with id 01HZX not found", err.Detail)
}

func TestInternal(t *testing.T) {
	err := Internal(errors.New("FAIL"))

	assert.Equal(t, http.StatusInternalServerError, err.StatusCode())
	assert.Equal(t, "Internal Server Error", err.Title)
	assert.Equal(t, "FAIL", err.Detail)
}

func TestErrorResponseJSON(t *testing.T) {
	body, err := json.Marshal(NewAppError(http.StatusNotFound, "Route does not exist!").Response())
	require.NoError(t, err)

	assert.JSONEq(t, `{"errors":[{"status":"404","title":"Not Found","detail":"Route does not exist!"}]}`, string(body))

	var decoded ErrorResponse
	require.NoError(t, json.Unmarshal(body, &decoded))
	require.Len(t, decoded.Errors, 1)
	assert.Equal(t, "Route does not exist!", decoded.Errors[0].Detail)
}
