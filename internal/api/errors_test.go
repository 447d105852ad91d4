package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	apperrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"

	"factory-floor-backend/internal/auth"
	"factory-floor-backend/internal/store"
)

func conflictWith(message string) error {
	err := store.ErrConflict.Clone()
	err.Message = message
	return err
}

func TestRespondErrorEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			"validation",
			store.ErrValidation,
			http.StatusBadRequest,
			`{"error":{"code":"VALIDATION_FAILED","message":"validation failed"}}`,
		},
		{
			"invalid transition",
			store.ErrInvalidTransition,
			http.StatusBadRequest,
			`{"error":{"code":"INVALID_TRANSITION","message":"invalid transition"}}`,
		},
		{
			"conflict keeps its message",
			conflictWith("machine 5 is busy"),
			http.StatusConflict,
			`{"error":{"code":"CONFLICT","message":"machine 5 is busy"}}`,
		},
		{
			"not found",
			store.ErrNotFound,
			http.StatusNotFound,
			`{"error":{"code":"NOT_FOUND","message":"not found"}}`,
		},
		{
			"unauthorized",
			auth.ErrUnauthorized,
			http.StatusUnauthorized,
			`{"error":{"code":"UNAUTHORIZED","message":"unauthorized"}}`,
		},
		{
			"forbidden",
			auth.Forbidden("supervisors only"),
			http.StatusForbidden,
			`{"error":{"code":"FORBIDDEN","message":"supervisors only"}}`,
		},
		{
			"plain errors stay internal",
			errors.New("pq: connection refused on 10.0.3.7"),
			http.StatusInternalServerError,
			`{"error":{"code":"INTERNAL","message":"internal error"}}`,
		},
		{
			"uncoded wraps stay internal",
			apperrors.Wrap(errors.New("dial tcp: timeout"), apperrors.CategoryExternal, "query failed"),
			http.StatusInternalServerError,
			`{"error":{"code":"INTERNAL","message":"internal error"}}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/boom", func(c *gin.Context) { respondError(c, tc.err) })

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/boom", nil)
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.JSONEq(t, tc.wantBody, w.Body.String())
			// Whatever broke inside never reaches the client.
			assert.NotContains(t, w.Body.String(), "10.0.3.7")
		})
	}
}

func TestPathIDRejectsGarbage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/orders/:id", func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/orders/twelve", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":{"code":"VALIDATION_FAILED","message":"invalid id"}}`, w.Body.String())

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/orders/12", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":12}`, w.Body.String())
}

func TestBindOptionalJSONAllowsEmptyBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	type payload struct {
		Reason string `json:"reason"`
	}
	r := gin.New()
	r.POST("/pause", func(c *gin.Context) {
		var req payload
		if !bindOptionalJSON(c, &req) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"reason": req.Reason})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/pause", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"reason":""}`, w.Body.String())

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodPost, "/pause", strings.NewReader(`{"reason":"break"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"reason":"break"}`, w.Body.String())

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodPost, "/pause", strings.NewReader(`{"reason":`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
