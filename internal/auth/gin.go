package auth

import "github.com/gin-gonic/gin"

const contextKey = "auth_context"

// Set stores ac on the gin request context.
func Set(c *gin.Context, ac Context) {
	c.Set(contextKey, ac)
}

// From returns the request's auth context.
func From(c *gin.Context) (Context, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return Context{}, false
	}
	ac, ok := v.(Context)
	return ac, ok
}
