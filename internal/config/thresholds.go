package config

import (
	"time"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/models"
)

// Limit is a per-category rate threshold: more than Max violations inside
// Window triggers a threat signal.
type Limit struct {
	Max    int
	Window time.Duration
}

// DefaultLimits returns the out-of-the-box per-category thresholds. These are
// starting points, not constants: every guild can override any of them, and
// the override is what the detector reads at event time.
//
// Destructive categories get the tightest windows; creation spam is noisier
// during legitimate admin work, so it gets more headroom.
func DefaultLimits() map[models.Category]Limit {
	return map[models.Category]Limit{
		models.CategoryChannelDelete:   {Max: 2, Window: 8 * time.Second},
		models.CategoryRoleDelete:      {Max: 2, Window: 8 * time.Second},
		models.CategoryChannelCreate:   {Max: 4, Window: 10 * time.Second},
		models.CategoryRoleCreate:      {Max: 4, Window: 10 * time.Second},
		models.CategoryBan:             {Max: 3, Window: 10 * time.Second},
		models.CategoryKick:            {Max: 3, Window: 10 * time.Second},
		models.CategoryWebhookCreate:   {Max: 3, Window: 10 * time.Second},
		models.CategoryPermissionGrant: {Max: 2, Window: 10 * time.Second},
		models.CategoryBotAdd:          {Max: 2, Window: 30 * time.Second},
	}
}
