package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/Werdo/ose-platform-sub000/internal/core"
)

// maxBodyBytes bounds JSON request bodies. A full bulk-analyze request of
// 1000 ids with separators stays well under it.
const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON object into v. Malformed bodies come back
// as core.ErrInvalidRequest.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return fmt.Errorf("%w: body exceeds %d bytes", core.ErrInvalidRequest, tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", core.ErrInvalidRequest)
		default:
			return fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
		}
	}
	return nil
}

// parseIntParam parses a non-negative integer query parameter, falling back
// to defaultVal when missing or invalid.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}
