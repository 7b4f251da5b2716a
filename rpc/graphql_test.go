package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mileswatson/blockkey/core"
)

func TestGraphQLStatusQuery(t *testing.T) {
	provider := fakeStatus{status: core.Status[string]{Height: 3, Round: 1, Step: core.StepPrevote}}
	handler, err := NewGraphQLHandler[string](provider)
	require.NoError(t, err)

	body := `{"query": "{ status { height round step } }"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			Status struct {
				Height float64 `json:"height"`
				Round  float64 `json:"round"`
				Step   string  `json:"step"`
			} `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, float64(3), resp.Data.Status.Height)
	require.Equal(t, "prevote", resp.Data.Status.Step)
}
