package shared

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RespondError writes a JSON error envelope with a status derived from the
// error kind. Untagged errors are treated as internal store failures.
func RespondError(c *gin.Context, err error) {
	var e *Error
	if !errors.As(err, &e) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"kind": KindStoreError, "message": err.Error()},
		})
		return
	}

	body := gin.H{"kind": e.Kind, "message": e.Message}
	if e.Code != "" {
		body["code"] = e.Code
	}
	if !e.Conflicts.Empty() {
		body["conflicts"] = e.Conflicts
	}
	c.JSON(statusFor(e.Kind), gin.H{"error": body})
}

func statusFor(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalidState:
		return http.StatusConflict
	case KindDeadlineExceeded:
		return http.StatusGone
	case KindMergeConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
