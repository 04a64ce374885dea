package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "response_meta"
	requestStartKey = "request_start"
	cacheHitKey     = "cache_hit"
)

// WithResponseMeta stamps the request start time used for the
// processing_time_ms metadata field.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(requestStartKey, time.Now())
		c.Next()
	}
}

// SetCacheHit records whether the response was served from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	if c == nil {
		return
	}
	ensureMeta(c)[cacheHitKey] = hit
}

// ExtractMeta returns the response metadata map with processing_time_ms
// stamped from the request start. A request that never went through
// WithResponseMeta reports zero elapsed time.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	meta := ensureMeta(c)
	if _, exists := meta["processing_time_ms"]; !exists {
		meta["processing_time_ms"] = elapsedMS(c)
	}
	return meta
}

func elapsedMS(c *gin.Context) int64 {
	if raw, exists := c.Get(requestStartKey); exists {
		if start, ok := raw.(time.Time); ok {
			return time.Since(start).Milliseconds()
		}
	}
	return 0
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	newMeta := make(map[string]interface{})
	c.Set(responseMetaKey, newMeta)
	return newMeta
}
