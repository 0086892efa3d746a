package database

import (
	"time"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/config"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/guildstate"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/logging"
)

// SyncRegistry hydrates the in-memory guild registry from persisted
// configuration. Called once at startup before the gateway connects, so
// events arriving during connect already see correct enablement and
// whitelists. Returns the number of guilds loaded.
func (d *Database) SyncRegistry(reg *guildstate.Registry) (int, error) {
	configs, err := d.ListGuildConfigs()
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, cfg := range configs {
		st := reg.Create(cfg.GuildID)
		st.SetEnabled(cfg.Enabled)
		st.SetOwnerID(cfg.OwnerID)
		st.SetLogChannelID(cfg.LogChannelID)

		overrides, err := DecodeLimits(cfg.Limits)
		if err != nil {
			logging.Warn("guild %s: bad limits column, using defaults: %v", cfg.GuildID, err)
		} else {
			for cat, row := range overrides {
				st.SetLimit(cat, config.Limit{
					Max:    row.Max,
					Window: time.Duration(row.WindowSeconds) * time.Second,
				})
			}
		}

		users, err := d.ListWhitelist(cfg.GuildID)
		if err != nil {
			return loaded, err
		}
		for _, u := range users {
			st.AddWhitelist(u)
		}

		loaded++
	}

	logging.Info("registry sync complete: %d guild(s) loaded", loaded)
	return loaded, nil
}
