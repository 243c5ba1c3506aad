package binder_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/twofactor/binder"
)

type codeRequest struct {
	Code string `json:"code"`
}

func newRequest(body, contentType string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return r
}

func TestJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		contentType string
		want        string
		wantErr     error
	}{
		{"valid", `{"code":"123456"}`, "application/json", "123456", nil},
		{"charset param", `{"code":"1"}`, "application/json; charset=utf-8", "1", nil},
		{"missing content type", `{"code":"1"}`, "", "", binder.ErrMissingContentType},
		{"form content type", `code=1`, "application/x-www-form-urlencoded", "", binder.ErrUnsupportedMediaType},
		{"empty body", ``, "application/json", "", binder.ErrInvalidJSON},
		{"unknown field", `{"code":"1","extra":true}`, "application/json", "", binder.ErrInvalidJSON},
		{"wrong type", `{"code":123456}`, "application/json", "", binder.ErrInvalidJSON},
		{"trailing data", `{"code":"1"}{"code":"2"}`, "application/json", "", binder.ErrInvalidJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var req codeRequest
			err := binder.JSON()(newRequest(tt.body, tt.contentType), &req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Code)
		})
	}
}

func TestJSON_BodyLimit(t *testing.T) {
	t.Parallel()
	body := `{"code":"` + strings.Repeat("1", 100) + `"}`

	var req codeRequest
	err := binder.JSON(binder.WithMaxBodySize(16))(newRequest(body, "application/json"), &req)
	assert.ErrorIs(t, err, binder.ErrBodyTooLarge)
}

func TestJSON_AllowEmptyBody(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodPost, "/", http.NoBody)

	var req codeRequest
	require.NoError(t, binder.JSON(binder.AllowEmptyBody())(r, &req))
	assert.Empty(t, req.Code)
}
