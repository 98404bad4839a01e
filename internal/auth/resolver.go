// Package auth resolves the current user for a request from either the
// signed auth cookie or an Api-Key header. Cookie failures degrade to
// anonymous; API-key failures are terminal for the request.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-tracker/internal/authcookie"
	"github.com/technosupport/ts-tracker/internal/tokens"
)

var (
	// ErrInvalidCredentialFormat short-circuits the request to a 403 JSON
	// error.
	ErrInvalidCredentialFormat = errors.New("invalid API credentials format")

	// ErrTooManyAttempts short-circuits to a 403 that also clears the auth
	// cookie.
	ErrTooManyAttempts = errors.New("too many bad credential attempts")
)

// APIKeyHeader carries the JWT API key.
const APIKeyHeader = "Api-Key"

const (
	lockoutThreshold = 5
	lockoutWindow    = 15 * time.Minute
)

type User struct {
	ID         int64
	TrustLevel int
}

// Result is what credential resolution produced for the request.
type Result struct {
	User *User // nil means anonymous

	// HasAuthCookie is true iff the auth cookie parsed successfully.
	HasAuthCookie bool

	// CredentialStale marks a cookie that was present but invalid or
	// expired; the tracker answers with a Discourse-Logged-Out header so
	// the client drops its session.
	CredentialStale bool
}

type Resolver struct {
	cookieSecret string
	apiKeys      *tokens.Manager
	client       *redis.Client
}

func NewResolver(cookieSecret string, apiKeys *tokens.Manager, client *redis.Client) *Resolver {
	return &Resolver{cookieSecret: cookieSecret, apiKeys: apiKeys, client: client}
}

// Resolve determines the current user. The returned error is nil except for
// the two terminal faults (ErrInvalidCredentialFormat, ErrTooManyAttempts);
// everything else degrades to an anonymous Result.
func (rs *Resolver) Resolve(ctx context.Context, r *http.Request, ip string) (*Result, error) {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return rs.resolveAPIKey(ctx, key, ip)
	}

	res := &Result{}
	c, err := r.Cookie(authcookie.Name)
	if err != nil {
		return res, nil // no cookie, anonymous
	}

	parsed, err := authcookie.Parse(c.Value, rs.cookieSecret)
	if err != nil {
		res.CredentialStale = true
		return res, nil
	}

	res.HasAuthCookie = true
	if parsed.UserID != 0 {
		res.User = &User{ID: parsed.UserID, TrustLevel: parsed.TrustLevel}
	}
	return res, nil
}

func (rs *Resolver) resolveAPIKey(ctx context.Context, key, ip string) (*Result, error) {
	if locked, err := rs.locked(ctx, ip); err == nil && locked {
		return nil, ErrTooManyAttempts
	}

	// A well-formed key is a JWT: three dot-separated segments. Anything
	// else is a format error, not just a bad signature.
	if strings.Count(key, ".") != 2 {
		if over, ferr := rs.recordFailure(ctx, ip); ferr == nil && over {
			return nil, ErrTooManyAttempts
		}
		return nil, ErrInvalidCredentialFormat
	}

	claims, err := rs.apiKeys.Validate(key)
	if err != nil {
		if over, ferr := rs.recordFailure(ctx, ip); ferr == nil && over {
			return nil, ErrTooManyAttempts
		}
		return nil, ErrInvalidCredentialFormat
	}

	return &Result{User: &User{ID: claims.UserID, TrustLevel: claims.TrustLevel}}, nil
}

func (rs *Resolver) locked(ctx context.Context, ip string) (bool, error) {
	n, err := rs.client.Get(ctx, lockoutKey(ip)).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err // redis down: fail open, no lockout
	}
	return n >= lockoutThreshold, nil
}

// recordFailure bumps the failure counter and reports whether the caller
// just crossed the lockout threshold.
func (rs *Resolver) recordFailure(ctx context.Context, ip string) (bool, error) {
	key := lockoutKey(ip)
	n, err := rs.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		rs.client.Expire(ctx, key, lockoutWindow)
	}
	return n >= lockoutThreshold, nil
}

func lockoutKey(ip string) string {
	return fmt.Sprintf("lockout:ip:%s", ip)
}
