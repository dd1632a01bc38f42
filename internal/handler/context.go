package handler

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

// getUserID extracts the authenticated user's id from the context set
// by middleware.JWTAuth, which stores the JWT's "sub" claim under the
// "user_id" key as whatever JSON-number/string type the token decoder
// produced.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case string:
		id, err := strconv.ParseUint(t, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid user_id claim: %w", err)
		}
		return id, nil
	case float64:
		return uint64(t), nil
	case uint64:
		return t, nil
	default:
		return 0, fmt.Errorf("missing or invalid user_id claim")
	}
}
