package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apperrors "github.com/goliatone/go-errors"

	"factory-floor-backend/internal/auth"
	"factory-floor-backend/internal/store"
)

// httpStatus maps a stable error code to an HTTP status. Unknown codes
// (including storage failures) collapse to 500.
func httpStatus(code string) int {
	switch code {
	case store.CodeValidation, store.CodeInvalidTransition:
		return http.StatusBadRequest
	case store.CodeConflict:
		return http.StatusConflict
	case store.CodeNotFound:
		return http.StatusNotFound
	case auth.CodeUnauthorized:
		return http.StatusUnauthorized
	case auth.CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondError renders the uniform error envelope. Internal failures keep
// their details out of the response body.
func respondError(c *gin.Context, err error) {
	var ge *apperrors.Error
	if errors.As(err, &ge) && ge.TextCode != "" {
		status := httpStatus(ge.TextCode)
		if status == http.StatusInternalServerError {
			respondInternal(c, err)
			return
		}
		c.AbortWithStatusJSON(status, gin.H{
			"error": gin.H{"code": ge.TextCode, "message": ge.Message},
		})
		return
	}
	respondInternal(c, err)
}

func respondInternal(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{"code": "INTERNAL", "message": "internal error"},
	})
}

func respondValidation(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error": gin.H{"code": store.CodeValidation, "message": message},
	})
}

// bindJSON decodes the request body and renders a 400 on failure.
func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		respondValidation(c, err.Error())
		return false
	}
	return true
}

// bindOptionalJSON is bindJSON for endpoints whose body may be absent.
func bindOptionalJSON(c *gin.Context, out any) bool {
	err := c.ShouldBindJSON(out)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	respondValidation(c, err.Error())
	return false
}

// pathID parses a numeric path parameter and renders a 400 on failure.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		respondValidation(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
