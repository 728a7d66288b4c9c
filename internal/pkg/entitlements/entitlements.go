package entitlements

import (
	"fmt"
	"strings"
)

type Plan string

const (
	PlanFree      Plan = "free"
	PlanBasic     Plan = "basic"
	PlanPro       Plan = "pro"
	PlanUnlimited Plan = "unlimited"
)

// StorageUnlimited is the storage ceiling sentinel for plans without a limit.
const StorageUnlimited int64 = -1

// StorageLimitBytes returns the storage ceiling for a plan in bytes.
// Both the admission check and the reconciler derive limits from here so
// they agree byte-for-byte. Passing a plan that is not in the catalog is a
// programming error, not a runtime condition.
func StorageLimitBytes(plan Plan) int64 {
	switch plan {
	case PlanFree:
		return 500 * 1024 * 1024 // 500 MiB
	case PlanBasic:
		return 2_000_000_000 // 2 GB
	case PlanPro:
		return 50_000_000_000 // 50 GB
	case PlanUnlimited:
		return StorageUnlimited
	default:
		panic(fmt.Sprintf("entitlements: unknown plan %q", plan))
	}
}

// Features returns the capability flags for a given plan.
func Features(plan Plan) (heroImages, originalDownloads, customDomain bool) {
	switch plan {
	case PlanUnlimited:
		return true, true, true
	case PlanPro:
		return true, true, false
	case PlanBasic:
		return true, false, false
	default:
		return false, false, false
	}
}

// NormalizePlan maps arbitrary input to a catalog-known plan, defaulting to free.
func NormalizePlan(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanBasic):
		return PlanBasic
	case string(PlanPro):
		return PlanPro
	case string(PlanUnlimited):
		return PlanUnlimited
	default:
		return PlanFree
	}
}

// PlanFromVariant maps a billing-provider variant name to an internal plan.
// Variant names are configured on the provider side to match the catalog
// ("Basic", "Pro Yearly", ...); anything unrecognized maps to free so a
// misconfigured variant can never grant a paid ceiling.
func PlanFromVariant(variantName string) Plan {
	v := strings.ToLower(strings.TrimSpace(variantName))
	switch {
	case strings.HasPrefix(v, "unlimited"):
		return PlanUnlimited
	case strings.HasPrefix(v, "pro"):
		return PlanPro
	case strings.HasPrefix(v, "basic"):
		return PlanBasic
	default:
		return PlanFree
	}
}

func PlanRank(plan Plan) int {
	switch plan {
	case PlanUnlimited:
		return 3
	case PlanPro:
		return 2
	case PlanBasic:
		return 1
	default:
		return 0
	}
}
