package response

import (
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
)

// StatusNonRetryable is answered to the at-least-once scheduler for permanent
// rejections, together with HeaderNonRetryable.
const (
	StatusNonRetryable = 489
	HeaderNonRetryable = "Upstash-NonRetryable-Error"
)

// Pagination metadata returned with paginated responses.
type Pagination struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	TotalPage   int   `json:"total_page"`
	Size        int   `json:"size"`
	HasNextPage bool  `json:"has_next_page"`
}

// pagedResponse is the envelope for paginated list responses.
type pagedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// OK sends a 200 response. Arrays/slices are wrapped in {data: [...]}.
func OK(c *gin.Context, data interface{}) {
	if data != nil {
		v := reflect.ValueOf(data)
		if v.Kind() == reflect.Slice {
			c.JSON(http.StatusOK, gin.H{"data": data})
			return
		}
	}
	c.JSON(http.StatusOK, data)
}

// Paged sends a paginated response.
func Paged(c *gin.Context, data interface{}, pagination Pagination) {
	c.JSON(http.StatusOK, pagedResponse{
		Data:       data,
		Pagination: pagination,
	})
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": 0, "code": status, "message": message})
}

// NonRetryable rejects a request permanently so the scheduler does not
// redeliver it.
func NonRetryable(c *gin.Context, message string) {
	c.Header(HeaderNonRetryable, "true")
	abort(c, StatusNonRetryable, message)
}

// NonRetryableWith is NonRetryable with extra body fields.
func NonRetryableWith(c *gin.Context, message string, extra gin.H) {
	c.Header(HeaderNonRetryable, "true")
	body := gin.H{"ok": 0, "code": StatusNonRetryable, "message": message}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(StatusNonRetryable, body)
}

// InternalErrorWith sends a 500 carrying extra body fields. The scheduler
// treats it as retryable.
func InternalErrorWith(c *gin.Context, message string, extra gin.H) {
	body := gin.H{"ok": 0, "code": http.StatusInternalServerError, "message": message}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, body)
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, message)
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context, message string) {
	abort(c, http.StatusUnauthorized, message)
}

// NotFoundMsg sends a 404 error with a custom message.
func NotFoundMsg(c *gin.Context, message string) {
	abort(c, http.StatusNotFound, message)
}

// InternalError sends a 500 error response.
func InternalError(c *gin.Context, err error) {
	abort(c, http.StatusInternalServerError, err.Error())
}

// ServiceUnavailable sends a 503 error response.
func ServiceUnavailable(c *gin.Context, message string) {
	abort(c, http.StatusServiceUnavailable, message)
}

// Conflict sends a 409 error response.
func Conflict(c *gin.Context, message string) {
	abort(c, http.StatusConflict, message)
}
