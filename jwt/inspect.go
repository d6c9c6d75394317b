package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned by [Inspect] for opaque bearer strings.
var ErrNotJWT = errors.New("token is not a jwt")

// Info is what a client can learn from a bearer token without its key.
type Info struct {
	PrincipalID string
	ExpiresAt   time.Time
}

// Expired reports whether the token is past its expiry at now. Tokens
// without an exp claim never expire from the client's point of view.
func (i Info) Expired(now time.Time, leeway time.Duration) bool {
	if i.ExpiresAt.IsZero() {
		return false
	}
	return now.After(i.ExpiresAt.Add(leeway))
}

// Inspect decodes the claims of tokenStr without verifying the signature.
// The principal is taken from "uid", then "user_id", then "sub"; numeric ids
// are rendered in base 10. Bearer tokens are opaque to the client, so callers
// must treat ErrNotJWT as "unknown", not as invalid.
func Inspect(tokenStr string) (Info, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}

	info := Info{}
	for _, key := range []string{"uid", "user_id", "sub"} {
		if id := claimString(claims[key]); id != "" {
			info.PrincipalID = id
			break
		}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Info{}, err
	}
	if exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}

func claimString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	default:
		return ""
	}
}
