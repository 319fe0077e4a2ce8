package middleware

import (
	"github.com/adelegard/TouchrServer/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorHandlerMiddleware recovers panics and turns leftover c.Errors into a 500 envelope.
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				utils.Log.WithFields(logrus.Fields{
					"panic":  err,
					"method": c.Request.Method,
					"path":   c.FullPath(),
				}).Error("panic recovered")

				if !c.Writer.Written() {
					utils.InternalServerError(c, "internal server error")
				}
				c.Abort()
			}
		}()

		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			utils.Log.WithError(err.Err).WithField("path", c.FullPath()).Error("request error")

			if !c.Writer.Written() {
				utils.InternalServerError(c, err.Error())
			}
		}
	}
}
