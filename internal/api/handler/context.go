package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ecodeli/delivery-tracking/internal/core/domain"
)

// ctxClaims extracts the auth claims injected by the Auth middleware and
// performs a fast-fail check before any service call:
//   - role must be non-empty (presence proves the middleware ran).
//   - courier role requires a non-empty user_id; position reports and status
//     transitions are attributed to it, so a token without one is
//     structurally valid but operationally unusable — reject with 401.
func ctxClaims(c echo.Context) (role, userID string, err error) {
	role, _ = c.Get("role").(string)
	if role == "" {
		return "", "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}

	userID, _ = c.Get("user_id").(string)
	if role == domain.RoleCourier && userID == "" {
		return "", "", echo.NewHTTPError(http.StatusUnauthorized, "token missing courier identity")
	}

	return role, userID, nil
}
