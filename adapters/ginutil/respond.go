package ginutil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Logger is used by ServerErrWithLog. Replace it at startup.
var Logger logrus.FieldLogger = logrus.StandardLogger()

func BadRequest(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": code})
}

func Unauthorized(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": code})
}

func Forbidden(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": code})
}

func NotFound(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": code})
}

func TooMany(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
}

func ServerErr(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": code})
}

// ServerErrWithLog logs err with request context before responding 500.
func ServerErrWithLog(c *gin.Context, code string, err error, msg string) {
	Logger.WithFields(logrus.Fields{
		"path":    c.FullPath(),
		"method":  c.Request.Method,
		"user_id": c.GetString(CtxUserID),
		"code":    code,
	}).WithError(err).Error(msg)
	ServerErr(c, code)
}
