package middlewares

import (
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/eventreg/internal/http/handlers"
)

func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			// allows "application/json; charset=utf-8"
			mt, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
			if err != nil || mt != "application/json" {
				handlers.AbortError(c, http.StatusUnsupportedMediaType,
					"unsupported_media_type", "Content-Type must be application/json")
				return
			}
		}
		c.Next()
	}
}
