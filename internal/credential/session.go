package credential

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nhle/autohub/internal/model"
)

// Claim names used by the backend. The long URIs are the ASP.NET defaults.
const (
	claimNameID     = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"
	claimRole       = "http://schemas.microsoft.com/ws/2008/06/identity/claims/role"
	claimWorkshopID = "workshopId"
)

// ParseSession decodes the session from an access token. The signature is
// not verified: the backend does that, the client only needs the claims to
// decide which groups to join and which bookings to poll.
func ParseSession(token string) (*model.Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parsing access token: %w", err)
	}

	s := &model.Session{
		UserID: firstString(claims, "sub", "nameid", claimNameID),
	}
	if s.UserID == "" {
		return nil, fmt.Errorf("access token has no subject")
	}

	switch strings.ToLower(firstString(claims, "role", claimRole)) {
	case "workshop":
		s.Role = model.RoleWorkshop
	default:
		s.Role = model.RoleCarOwner
	}

	if raw, ok := claims[claimWorkshopID]; ok {
		if id, ok := toInt(raw); ok {
			s.WorkshopID = &id
		}
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}

	return s, nil
}

// CurrentSession resolves the token through factory and decodes it. An
// unavailable or expired token yields a nil session and no error.
func CurrentSession(ctx context.Context, factory TokenFactory) *model.Session {
	token, err := factory(ctx)
	if err != nil || token == "" {
		return nil
	}
	s, err := ParseSession(token)
	if err != nil || !s.Authenticated(time.Now()) {
		return nil
	}
	return s
}

func firstString(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if v, ok := claims[k]; ok {
			switch t := v.(type) {
			case string:
				if t != "" {
					return t
				}
			case float64:
				return strconv.FormatInt(int64(t), 10)
			}
		}
	}
	return ""
}

func toInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(t)
		return n, err == nil
	}
	return 0, false
}
