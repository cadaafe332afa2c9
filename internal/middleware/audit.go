package middleware

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var idRegex = regexp.MustCompile(`/(\d+)(?:/|$)`)

// AuditLogger records every successful state-changing request together with
// the admin who made it. Request bodies are never logged.
func AuditLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip non-modifying requests
		method := c.Method()
		if method == fiber.MethodGet || method == fiber.MethodHead || method == fiber.MethodOptions {
			return c.Next()
		}

		path := c.Path()
		if strings.HasPrefix(path, "/api/auth/") {
			return c.Next()
		}

		err := c.Next()

		status := c.Response().StatusCode()
		user := GetCurrentUser(c)
		if err != nil || status < 200 || status >= 400 || user == nil {
			return err
		}

		log.Info("audit",
			zap.String("admin", user.Username),
			zap.String("action", auditAction(method, path)),
			zap.String("entity", getEntityTypeFromPath(path)),
			zap.String("entity_id", extractIDFromPath(path)),
			zap.String("request_id", GetRequestID(c)),
			zap.String("ip", c.IP()),
		)
		return err
	}
}

// extractIDFromPath gets the numeric ID from URL path
func extractIDFromPath(path string) string {
	matches := idRegex.FindStringSubmatch(path)
	if len(matches) > 1 {
		return matches[1]
	}
	return ""
}

func auditAction(method, path string) string {
	for _, verb := range []string{"enable", "disable", "renew", "sync", "check"} {
		if strings.HasSuffix(path, "/"+verb) {
			return verb
		}
	}
	switch method {
	case fiber.MethodPost:
		return "create"
	case fiber.MethodPut, fiber.MethodPatch:
		return "update"
	case fiber.MethodDelete:
		return "delete"
	}
	return strings.ToLower(method)
}

// getEntityTypeFromPath maps /api/<entity>/... to an entity name.
func getEntityTypeFromPath(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/api/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return ""
	}
	switch parts[0] {
	case "users":
		return "subscriber"
	case "packages":
		return "package"
	case "settings":
		return "settings"
	case "quotas":
		return "quota"
	}
	return parts[0]
}
