package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes carried in the failure envelope.
const (
	CodeInvalidJSON      = 10001
	CodeInvalidParam     = 10002
	CodeRouteNotFound    = 40400
	CodeNotFound         = 40401
	CodeMethodNotAllowed = 40500
	CodeInternal         = 50001
)

// OK writes the resource itself as the response body.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

// AbortFail is Fail for middleware that must stop the handler chain.
func AbortFail(c *gin.Context, httpStatus int, code int, msg string) {
	c.AbortWithStatusJSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}
