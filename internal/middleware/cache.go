package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "hostel.response_meta"
	cacheHitKey     = "cache_hit"
	processingKey   = "processing_time_ms"
)

type responseMeta struct {
	start  time.Time
	values map[string]interface{}
}

// WithResponseMeta stamps the request start so handlers can report timing and
// cache use in the envelope meta.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{start: time.Now(), values: map[string]interface{}{}})
		c.Next()
	}
}

// SetCacheHit records whether the response was served from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	metaOf(c).values[cacheHitKey] = hit
}

// ExtractMeta returns a copy of the collected values with processing_time_ms
// measured up to now.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	meta := metaOf(c)
	out := make(map[string]interface{}, len(meta.values)+1)
	for k, v := range meta.values {
		out[k] = v
	}
	out[processingKey] = time.Since(meta.start).Milliseconds()
	return out
}

// metaOf falls back to a fresh record when the middleware is not mounted.
func metaOf(c *gin.Context) *responseMeta {
	if v, ok := c.Get(responseMetaKey); ok {
		if meta, ok := v.(*responseMeta); ok {
			return meta
		}
	}
	meta := &responseMeta{start: time.Now(), values: map[string]interface{}{}}
	c.Set(responseMetaKey, meta)
	return meta
}
