package rest

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"auction-engine/internal/domain/shared"

	"github.com/gin-gonic/gin"
)

var (
	errUserRequired = errors.New("X-User-ID header is required")
	errInvalidUser  = errors.New("X-User-ID must be a UUID")
	errInvalidID    = errors.New("path id must be a UUID")
)

// MapErrorToHTTP maps domain and service errors to an HTTP status
func MapErrorToHTTP(err error) int {
	switch shared.Classify(err) {
	case shared.KindValidation:
		return http.StatusUnprocessableEntity
	case shared.KindPolicy:
		if errors.Is(err, shared.ErrNotBidOwner) || errors.Is(err, shared.ErrNotAuctionOwner) {
			return http.StatusForbidden
		}
		return http.StatusConflict
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindRateLimit:
		return http.StatusTooManyRequests
	case shared.KindConcurrency:
		return http.StatusConflict
	case shared.KindInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// JSONResponse sends a structured JSON response
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// JSONError sends a structured error response
func JSONError(c *gin.Context, status int, err error, message string) {
	body := gin.H{
		"status":  status,
		"message": message,
		"error":   err.Error(),
	}
	if kind := shared.Classify(err); kind != shared.KindUnknown {
		body["code"] = kind
	}
	c.JSON(status, body)
}

// abortWithServiceError writes err with the status its kind maps to. Rate
// limit errors also set Retry-After in whole seconds.
func abortWithServiceError(c *gin.Context, err error) {
	status := MapErrorToHTTP(err)
	if retry, ok := shared.RetryAfter(err); ok {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
	}
	message := http.StatusText(status)
	if status == http.StatusInternalServerError {
		JSONError(c, status, errors.New("internal server error"), message)
		return
	}
	JSONError(c, status, err, message)
}
