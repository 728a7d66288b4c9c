package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/frameloft/FrameLoft/internal/pkg/accountcontext"
	"github.com/frameloft/FrameLoft/internal/pkg/cache"
	"github.com/frameloft/FrameLoft/internal/pkg/database"
	"github.com/frameloft/FrameLoft/internal/pkg/quota"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const usageCacheTTL = 30 * time.Second

type usageResponse struct {
	UsedBytes    int64   `json:"used_bytes"`
	LimitBytes   int64   `json:"limit_bytes"`
	UsagePercent float64 `json:"usage_percent"`
	Unlimited    bool    `json:"unlimited"`
}

// HandleAccountUsage reports the account's current storage consumption.
// Responses are cached briefly; writes invalidate the entry so the numbers
// shown right after an upload or delete are fresh.
func HandleAccountUsage(c *fiber.Ctx) error {
	ac := accountcontext.Get(c)
	if !ac.IsAuthenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "account_required"})
	}

	cacheKey := usageCacheKey(ac.AccountID)
	if cached, err := cache.Get(cacheKey); err == nil && cached != "" {
		var resp usageResponse
		if err := json.Unmarshal([]byte(cached), &resp); err == nil {
			return c.JSON(resp)
		}
	}

	svc := quota.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	account, err := svc.Account(ctx, ac.AccountID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "account_not_found"})
	}

	resp := usageResponse{
		UsedBytes:    account.StorageUsed,
		LimitBytes:   account.StorageLimit,
		UsagePercent: account.UsagePercent(),
		Unlimited:    account.HasUnlimitedStorage(),
	}

	if encoded, err := json.Marshal(resp); err == nil {
		if err := cache.Set(cacheKey, string(encoded), usageCacheTTL); err != nil {
			log.Debugf("[Account] Caching usage for account %d failed: %v", ac.AccountID, err)
		}
	}

	return c.JSON(resp)
}

func usageCacheKey(accountID uint) string {
	return fmt.Sprintf("account:usage:%d", accountID)
}

func invalidateUsageCache(accountID uint) {
	if err := cache.Delete(usageCacheKey(accountID)); err != nil {
		log.Debugf("[Account] Invalidating usage cache for account %d failed: %v", accountID, err)
	}
}
