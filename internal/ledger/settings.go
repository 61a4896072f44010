package ledger

import (
	"context"
	"strconv"
	"sync"
	"time"

	repo "github.com/creditmarket/ledger-backend/internal/repository"
)

// Setting keys stored in the ledger_settings table.
const (
	SettingDailyBonusAmount        = "daily_bonus_amount"
	SettingDailyBonusValidityHours = "daily_bonus_validity_hours"
	SettingDailyBonusEnabled       = "daily_bonus_enabled"
	SettingExtensionFeePercent     = "extension_fee_percent"
	SettingExtensionExtraDays      = "extension_extra_days"
	SettingExtensionEnabled        = "extension_enabled"
	SettingTransferMaxAmount       = "transfer_max_amount"
	SettingRateLimitCount          = "transfer_rate_limit_count"
	SettingRateLimitWindowSeconds  = "transfer_rate_limit_window_seconds"
	SettingDefaultValidityDays     = "default_credit_validity_days"
	SettingIdempotencyTTLHours     = "idempotency_ttl_hours"
)

var settingDefaults = map[string]string{
	SettingDailyBonusAmount:        "500",
	SettingDailyBonusValidityHours: "24",
	SettingDailyBonusEnabled:       "true",
	SettingExtensionFeePercent:     "20",
	SettingExtensionExtraDays:      "30",
	SettingExtensionEnabled:        "true",
	SettingTransferMaxAmount:       "1000000",
	SettingRateLimitCount:          "3",
	SettingRateLimitWindowSeconds:  "60",
	SettingDefaultValidityDays:     "90",
	SettingIdempotencyTTLHours:     "48",
}

// settingsTTL bounds how stale a hot-reloaded setting can be.
const settingsTTL = 2 * time.Second

// SettingsView reads ledger settings through a short-TTL cache so that
// admin updates take effect within seconds without a restart, while hot
// paths avoid one query per call.
type SettingsView struct {
	repo repo.Settings
	now  func() time.Time

	mu        sync.Mutex
	cache     map[string]string
	fetchedAt time.Time
}

func NewSettingsView(r repo.Settings) *SettingsView {
	return &SettingsView{repo: r, now: time.Now}
}

func (v *SettingsView) snapshot(ctx context.Context) map[string]string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cache != nil && v.now().Sub(v.fetchedAt) < settingsTTL {
		return v.cache
	}
	values, err := v.repo.GetAll(ctx)
	if err != nil {
		// Serve the previous snapshot on a read failure; settings are
		// advisory configuration, not ledger state.
		if v.cache != nil {
			return v.cache
		}
		values = map[string]string{}
	}
	v.cache = values
	v.fetchedAt = v.now()
	return values
}

func (v *SettingsView) get(ctx context.Context, key string) string {
	if s, ok := v.snapshot(ctx)[key]; ok {
		return s
	}
	return settingDefaults[key]
}

func (v *SettingsView) Int64(ctx context.Context, key string) int64 {
	n, err := strconv.ParseInt(v.get(ctx, key), 10, 64)
	if err != nil {
		n, _ = strconv.ParseInt(settingDefaults[key], 10, 64)
	}
	return n
}

func (v *SettingsView) Bool(ctx context.Context, key string) bool {
	b, err := strconv.ParseBool(v.get(ctx, key))
	if err != nil {
		b, _ = strconv.ParseBool(settingDefaults[key])
	}
	return b
}

// Defaults returns the built-in setting values, used to seed new stores.
func Defaults() map[string]string {
	out := make(map[string]string, len(settingDefaults))
	for k, v := range settingDefaults {
		out[k] = v
	}
	return out
}
