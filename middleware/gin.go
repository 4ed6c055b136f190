package middleware

import (
	"context"
	"strconv"

	goThrottle "github.com/MrEthical07/goThrottle"
	"github.com/gin-gonic/gin"
)

// GinIdentifier extracts the throttled subject from a gin request.
type GinIdentifier func(*gin.Context) string

// GinGuard is [Guard] for gin routers. The client IP comes from
// gin.Context.ClientIP, so the engine's trusted proxy settings apply.
func GinGuard(engine *goThrottle.Engine, action string, identify GinIdentifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := goThrottle.WithClientIP(c.Request.Context(), c.ClientIP())
		res := evaluate(ctx, engine, action, identify(c))
		if !res.pass {
			res.writeHeaders(c.Writer.Header())
			c.AbortWithStatusJSON(res.status, res.body)
			return
		}

		c.Header(RemainingHeader, strconv.Itoa(res.decision.RemainingAttempts))
		ctx = goThrottle.WithEngine(ctx, engine)
		ctx = context.WithValue(ctx, decisionContextKey{}, res.decision)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GinPostForm keys attempts by a normalized form field.
func GinPostForm(field string) GinIdentifier {
	return func(c *gin.Context) string {
		return normalize(c.PostForm(field))
	}
}

// GinParam keys attempts by a path parameter.
func GinParam(name string) GinIdentifier {
	return func(c *gin.Context) string {
		return normalize(c.Param(name))
	}
}
