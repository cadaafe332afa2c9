package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ispanel/backend/internal/mikrotik"
)

// Router runs fn inside one short-lived router session. *mikrotik.Transport
// and mikrotiktest.Router both satisfy it.
type Router interface {
	WithConnection(ctx context.Context, fn func(mikrotik.Commands) error) error
}

// routerWarning turns a router-side failure on a write path into the message
// returned next to the already-committed store change.
func routerWarning(action string, err error) string {
	if errors.Is(err, mikrotik.ErrNotConfigured) {
		return fmt.Sprintf("router is not configured, %s was saved to the database only", action)
	}
	return fmt.Sprintf("router out of sync: %s failed: %v", action, err)
}

// joinWarnings concatenates non-empty warnings.
func joinWarnings(ws ...string) string {
	out := ""
	for _, w := range ws {
		if w == "" {
			continue
		}
		if out != "" {
			out += "; "
		}
		out += w
	}
	return out
}

// disableOnRouter disables the secret and kicks any active session. Each step
// is attempted on its own so one failure does not skip the other. The result
// is a warning, empty when both steps succeeded.
func disableOnRouter(ctx context.Context, router Router, username string) string {
	var warnings []string
	err := router.WithConnection(ctx, func(cmd mikrotik.Commands) error {
		if _, err := mikrotik.SetSecretDisabled(cmd, username, true); err != nil {
			warnings = append(warnings, routerWarning("disable secret", err))
		}
		if _, err := mikrotik.RemoveActiveByName(cmd, username); err != nil {
			warnings = append(warnings, routerWarning("disconnect session", err))
		}
		return nil
	})
	if err != nil {
		warnings = append(warnings, routerWarning("disable", err))
	}
	return joinWarnings(warnings...)
}
