// Package compression gzips API responses. GeoJSON exports of dense zone
// maps are mostly repeated coordinate text and shrink well.
package compression

import (
	"fmt"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// DefaultMinSize is the smallest response body worth compressing.
const DefaultMinSize = 1024

// Middleware returns a handler wrapper that gzips responses of at least
// minSize bytes for clients that accept it. Do not wrap websocket routes.
func Middleware(minSize int) (func(http.Handler) http.Handler, error) {
	wrapper, err := gzhttp.NewWrapper(gzhttp.MinSize(minSize))
	if err != nil {
		return nil, fmt.Errorf("create gzip wrapper: %w", err)
	}
	return func(next http.Handler) http.Handler {
		return wrapper(next)
	}, nil
}
