package authcookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// TokenLength is the exact size of the opaque session token.
	TokenLength = 32

	// Name is the cookie the browser carries the credential in.
	Name = "_t"
)

var ErrInvalidCookie = errors.New("invalid auth cookie")

// now is replaced in expiry tests.
var now = time.Now

// Cookie is the decoded authentication credential. It is rebuilt from the
// request on every call and never persisted.
type Cookie struct {
	Token      string
	UserID     int64
	TrustLevel int
	IssuedAt   int64 // unix seconds
	ValidFor   int64 // seconds; 0 means no expiry
}

// Parse decodes a raw cookie value. Values no longer than TokenLength are
// legacy bare tokens from before cookies were signed and are accepted as-is.
// Longer values must be the signed form `k:v,...|hex-hmac-sha256`.
//
// Every failure mode collapses to ErrInvalidCookie; callers treat that as
// an anonymous request.
func Parse(raw, secret string) (*Cookie, error) {
	if raw == "" {
		return nil, ErrInvalidCookie
	}
	if len(raw) <= TokenLength {
		return &Cookie{Token: raw}, nil
	}

	data, sig, found := strings.Cut(raw, "|")
	if !found {
		return nil, ErrInvalidCookie
	}
	if !hmac.Equal([]byte(sign(data, secret)), []byte(sig)) {
		return nil, ErrInvalidCookie
	}

	c := &Cookie{}
	for _, pair := range strings.Split(data, ",") {
		k, v, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		switch k {
		case "token":
			c.Token = v
		case "id":
			c.UserID, _ = strconv.ParseInt(v, 10, 64)
		case "tl":
			c.TrustLevel, _ = strconv.Atoi(v)
		case "time":
			c.IssuedAt, _ = strconv.ParseInt(v, 10, 64)
		case "valid":
			c.ValidFor, _ = strconv.ParseInt(v, 10, 64)
		default:
			// Unknown keys are ignored so old servers can read cookies
			// written by newer ones.
		}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Serialize emits the signed wire form. It is the exact inverse of Parse
// for signed cookies: the five fields in fixed order, comma-joined, then
// a pipe and the hex HMAC-SHA256 of the data segment.
func (c *Cookie) Serialize(secret string) string {
	data := fmt.Sprintf("token:%s,id:%d,tl:%d,time:%d,valid:%d",
		c.Token, c.UserID, c.TrustLevel, c.IssuedAt, c.ValidFor)
	return data + "|" + sign(data, secret)
}

func (c *Cookie) validate() error {
	if c.Token == "" || len(c.Token) != TokenLength {
		return ErrInvalidCookie
	}
	if c.IssuedAt != 0 && c.ValidFor != 0 {
		if c.IssuedAt+c.ValidFor < now().Unix() {
			return ErrInvalidCookie
		}
	}
	return nil
}

// Clear returns a Set-Cookie value that wipes the credential: empty,
// already expired, host-only, HTTP-only. Sent on the lockout response.
func Clear() *http.Cookie {
	return &http.Cookie{
		Name:     Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	}
}

func sign(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
