package upstream

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is the decoded claim set of the held access token. Decoding is
// unverified and for display only (session expiry on the dashboard); the
// backend remains the sole authority on token validity.
type TokenInfo struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenExpiry returns the held access token's expiry claim, when present.
func (c *Client) TokenExpiry() (time.Time, bool) {
	info, ok := c.AccessTokenInfo()
	if !ok || info.ExpiresAt.IsZero() {
		return time.Time{}, false
	}
	return info.ExpiresAt, true
}

// AccessTokenInfo decodes the current access token's claims. The second
// return is false when no token is held or it does not parse as a JWT.
func (c *Client) AccessTokenInfo() (TokenInfo, bool) {
	raw := c.accessToken()
	if raw == "" {
		return TokenInfo{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return TokenInfo{}, false
	}

	var info TokenInfo
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}
	switch id := claims["user_id"].(type) {
	case string:
		info.UserID = id
	case float64:
		info.UserID = strconv.FormatInt(int64(id), 10)
	}
	return info, true
}
