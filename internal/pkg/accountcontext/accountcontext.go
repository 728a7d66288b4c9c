package accountcontext

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const localsKey = "ACCOUNT_CONTEXT"

// AccountContext identifies the tenant behind a write-path request.
// Authentication happens upstream; the gateway forwards the resolved tenant
// in the X-Account-ID header.
type AccountContext struct {
	AccountID       uint `json:"account_id"`
	IsAuthenticated bool `json:"is_authenticated"`
}

// Middleware resolves the account context for every request.
func Middleware(c *fiber.Ctx) error {
	ctx := AccountContext{}
	if raw := c.Get("X-Account-ID"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil && id > 0 {
			ctx.AccountID = uint(id)
			ctx.IsAuthenticated = true
		}
	}
	c.Locals(localsKey, ctx)
	return c.Next()
}

// Get retrieves the account context from the fiber context.
// Returns an anonymous context if none is set.
func Get(c *fiber.Ctx) AccountContext {
	if ctx := c.Locals(localsKey); ctx != nil {
		return ctx.(AccountContext)
	}
	return AccountContext{}
}

// GetAccountID returns the current account's ID, or 0 if unauthenticated.
func GetAccountID(c *fiber.Ctx) uint {
	return Get(c).AccountID
}
