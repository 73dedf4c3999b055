package authcheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// RunFlow performs login, session, me, logout and a final session call that
// must be rejected. It returns one detail line per completed step.
func RunFlow(ctx context.Context, c *Client, identity, password string) ([]string, error) {
	var details []string
	if err := c.Login(ctx, identity, password); err != nil {
		return details, fmt.Errorf("login: %w", err)
	}
	details = append(details, "login: ok user_id="+c.UserID())

	exp, err := c.Session(ctx)
	if err != nil {
		return details, fmt.Errorf("session: %w", err)
	}
	details = append(details, "session: ok expires_at="+exp.UTC().Format(time.RFC3339))

	username, err := c.Me(ctx)
	if err != nil {
		return details, fmt.Errorf("me: %w", err)
	}
	details = append(details, "me: ok username="+username)

	if err := c.Logout(ctx); err != nil {
		return details, fmt.Errorf("logout: %w", err)
	}
	details = append(details, "logout: ok")

	_, err = c.Session(ctx)
	var se *StatusError
	switch {
	case err == nil:
		return details, errors.New("session still valid after logout")
	case errors.As(err, &se) && se.Status == http.StatusUnauthorized:
		details = append(details, "post-logout session: rejected ("+se.Code+")")
		return details, nil
	default:
		return details, fmt.Errorf("post-logout session: %w", err)
	}
}
