package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"

	"github.com/openrange/balancer/api"
)

const teamPrefix = "t-"

var (
	ErrNoSession         = errors.New("no session cookie")
	ErrMalformedIdentity = errors.New("malformed identity in session cookie")
)

var codec *securecookie.SecureCookie

// Init sets up the cookie codec. Must be called before any handler runs.
func Init(secret string) {
	codec = securecookie.New([]byte(secret), nil)
}

// NewTeamCookie builds the signed identity cookie carrying "t-<team>".
func NewTeamCookie(team string) (*http.Cookie, error) {
	encoded, err := codec.Encode(api.CookieName, teamPrefix+team)
	if err != nil {
		return nil, err
	}

	return &http.Cookie{
		Name:     api.CookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   api.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	}, nil
}

func SetTeamCookie(c echo.Context, team string) error {
	cookie, err := NewTeamCookie(team)
	if err != nil {
		return err
	}
	c.SetCookie(cookie)
	return nil
}

// ClearTeamCookie overwrites the identity cookie with an already-expired one.
func ClearTeamCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     api.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   api.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

// TeamFromRequest resolves and validates the team identity from the request's
// session cookie. The admin identity is returned as-is; every other identity
// must match the team naming pattern.
func TeamFromRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie(api.CookieName)
	if err != nil {
		return "", ErrNoSession
	}

	var value string
	if err := codec.Decode(api.CookieName, cookie.Value, &value); err != nil {
		return "", ErrMalformedIdentity
	}

	team, ok := strings.CutPrefix(value, teamPrefix)
	if !ok {
		return "", ErrMalformedIdentity
	}

	if team != api.AdminTeam && !api.ValidTeamName(team) {
		return "", ErrMalformedIdentity
	}

	return team, nil
}
