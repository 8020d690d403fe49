package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/nowshin-108/capstone/internal/config"
)

// cachedResponse is what a flight lookup is stored as.
type cachedResponse struct {
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// teeWriter keeps a copy of the body while it goes out to the client.
// Once more than limit bytes have been written the copy is abandoned.
type teeWriter struct {
	http.ResponseWriter
	status   int
	kept     bytes.Buffer
	overflow bool
	limit    int
}

func (w *teeWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *teeWriter) Write(b []byte) (int, error) {
	if !w.overflow {
		if w.limit > 0 && w.kept.Len()+len(b) > w.limit {
			w.overflow = true
			w.kept.Reset()
		} else {
			w.kept.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

func (w *teeWriter) storable() bool {
	return w.status == http.StatusOK && !w.overflow
}

// responseKey hashes the concrete path and query, so /flights/A and
// /flights/B never share an entry.
func responseKey(prefix string, r *http.Request) string {
	sum := sha1.Sum([]byte(r.URL.Path + "?" + r.URL.RawQuery))
	return prefix + ":" + hex.EncodeToString(sum[:])
}

// NewRedisCache serves repeated GETs from Redis and stores fresh 200
// responses for cfg.TTL.  Other methods and a nil client pass straight
// through.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if !cfg.Enabled || rdb == nil {
			return next
		}
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet {
				return next(c)
			}
			key := responseKey(cfg.Prefix, req)

			if raw, err := rdb.Get(req.Context(), key).Bytes(); err == nil {
				var hit cachedResponse
				if json.Unmarshal(raw, &hit) == nil {
					c.Response().Header().Set("X-Cache", "HIT")
					return c.Blob(http.StatusOK, hit.ContentType, hit.Body)
				}
			}

			tw := &teeWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
			c.Response().Writer = tw
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil || !tw.storable() {
				return err
			}

			raw, err := json.Marshal(cachedResponse{
				ContentType: c.Response().Header().Get(echo.HeaderContentType),
				Body:        tw.kept.Bytes(),
			})
			if err != nil {
				return nil
			}
			// The request context may already be done once the body is out.
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := rdb.SetEx(ctx, key, raw, cfg.TTL).Err(); err != nil {
				c.Logger().Warnf("[cache] store %s: %v", key, err)
			}
			return nil
		}
	}
}
