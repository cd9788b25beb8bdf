package session

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrAuth is returned when credentials are rejected.
var ErrAuth = errors.New("authentication failed")

// Authenticator verifies a user's password.
type Authenticator interface {
	Authenticate(ctx context.Context, user, password string) error
}

// HelperAuthenticator delegates verification to an external program.
// The program receives the user name as its only argument and the password
// on stdin; exit status 0 means accepted.
type HelperAuthenticator struct {
	Path string
}

// Authenticate runs the helper.
func (h HelperAuthenticator) Authenticate(ctx context.Context, user, password string) error {
	if h.Path == "" {
		return errors.New("no authentication helper configured")
	}

	cmd := exec.CommandContext(ctx, h.Path, user)
	cmd.Stdin = strings.NewReader(password + "\n")

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w for %q", ErrAuth, user)
		}
		return fmt.Errorf("failed to run authentication helper: %w", err)
	}
	return nil
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, user, password string) error

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, user, password string) error {
	return f(ctx, user, password)
}
