package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/incident"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/models"
)

type Database struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database and prepares the
// schema. WAL keeps writers from blocking the incident-query path.
func Open(path string) (*Database, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	d := &Database{db: db}
	if err := d.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return d, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS guild_config (
		guild_id TEXT PRIMARY KEY,
		enabled INTEGER DEFAULT 0,
		owner_id TEXT DEFAULT '',
		log_channel_id TEXT DEFAULT '',
		limits TEXT DEFAULT '',
		created_at INTEGER DEFAULT 0,
		updated_at INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS whitelist (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		guild_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		added_by TEXT DEFAULT '',
		created_at INTEGER NOT NULL,
		UNIQUE(guild_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_whitelist_guild ON whitelist(guild_id);

	CREATE TABLE IF NOT EXISTS blocked_users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		guild_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		blocked_at INTEGER NOT NULL,
		UNIQUE(guild_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_blocked_users_guild ON blocked_users(guild_id);

	CREATE TABLE IF NOT EXISTS incidents (
		incident_id TEXT PRIMARY KEY,
		guild_id TEXT NOT NULL,
		attacker_id TEXT NOT NULL,
		violation_type TEXT NOT NULL,
		violation_count INTEGER NOT NULL,
		detected_at INTEGER NOT NULL,
		response_time_ms INTEGER NOT NULL,
		restore_source TEXT NOT NULL,
		items_restored INTEGER DEFAULT 0,
		items_skipped INTEGER DEFAULT 0,
		warnings TEXT DEFAULT '',
		backup_age_hours REAL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_incidents_guild ON incidents(guild_id);
	CREATE INDEX IF NOT EXISTS idx_incidents_detected ON incidents(guild_id, detected_at);
	`

	_, err := d.db.Exec(schema)
	return err
}

// GuildConfig mirrors one guild_config row. Limits holds the per-category
// threshold overrides as JSON, empty meaning engine defaults.
type GuildConfig struct {
	GuildID      string
	Enabled      bool
	OwnerID      string
	LogChannelID string
	Limits       string
	CreatedAt    int64
	UpdatedAt    int64
}

// LimitRow is the JSON shape of one per-category override.
type LimitRow struct {
	Max           int `json:"max"`
	WindowSeconds int `json:"window_seconds"`
}

// EncodeLimits serializes a category->limit table for the limits column.
func EncodeLimits(limits map[models.Category]LimitRow) (string, error) {
	named := make(map[string]LimitRow, len(limits))
	for cat, row := range limits {
		named[cat.String()] = row
	}
	data, err := json.Marshal(named)
	if err != nil {
		return "", fmt.Errorf("encode limits: %w", err)
	}
	return string(data), nil
}

// DecodeLimits parses the limits column. Empty input yields an empty map.
func DecodeLimits(raw string) (map[models.Category]LimitRow, error) {
	out := make(map[models.Category]LimitRow)
	if raw == "" {
		return out, nil
	}
	named := make(map[string]LimitRow)
	if err := json.Unmarshal([]byte(raw), &named); err != nil {
		return nil, fmt.Errorf("decode limits: %w", err)
	}
	for name, row := range named {
		if cat := models.ParseCategory(name); cat != models.CategoryNone {
			out[cat] = row
		}
	}
	return out, nil
}

// GetGuildConfig retrieves one guild's configuration row, or nil when the
// guild never enabled protection.
func (d *Database) GetGuildConfig(guildID string) (*GuildConfig, error) {
	var cfg GuildConfig
	var enabled int
	err := d.db.QueryRow(
		`SELECT guild_id, enabled, owner_id, log_channel_id, limits, created_at, updated_at
		 FROM guild_config WHERE guild_id = ?`,
		guildID,
	).Scan(&cfg.GuildID, &enabled, &cfg.OwnerID, &cfg.LogChannelID, &cfg.Limits, &cfg.CreatedAt, &cfg.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cfg.Enabled = enabled != 0
	return &cfg, nil
}

// UpsertGuildConfig creates or updates a guild's configuration row.
func (d *Database) UpsertGuildConfig(cfg *GuildConfig) error {
	now := time.Now().Unix()
	cfg.UpdatedAt = now
	if cfg.CreatedAt == 0 {
		cfg.CreatedAt = now
	}

	enabled := 0
	if cfg.Enabled {
		enabled = 1
	}

	_, err := d.db.Exec(
		`INSERT OR REPLACE INTO guild_config (guild_id, enabled, owner_id, log_channel_id, limits, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cfg.GuildID, enabled, cfg.OwnerID, cfg.LogChannelID, cfg.Limits, cfg.CreatedAt, cfg.UpdatedAt,
	)
	return err
}

// ListGuildConfigs loads every guild_config row, for the startup sync.
func (d *Database) ListGuildConfigs() ([]*GuildConfig, error) {
	rows, err := d.db.Query(
		`SELECT guild_id, enabled, owner_id, log_channel_id, limits, created_at, updated_at FROM guild_config`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*GuildConfig
	for rows.Next() {
		var cfg GuildConfig
		var enabled int
		if err := rows.Scan(&cfg.GuildID, &enabled, &cfg.OwnerID, &cfg.LogChannelID, &cfg.Limits, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
			return nil, err
		}
		cfg.Enabled = enabled != 0
		configs = append(configs, &cfg)
	}
	return configs, rows.Err()
}

// ===== Whitelist =====

func (d *Database) AddWhitelist(guildID, userID, addedBy string) error {
	_, err := d.db.Exec(
		`INSERT OR IGNORE INTO whitelist (guild_id, user_id, added_by, created_at) VALUES (?, ?, ?, ?)`,
		guildID, userID, addedBy, time.Now().Unix(),
	)
	return err
}

func (d *Database) RemoveWhitelist(guildID, userID string) error {
	_, err := d.db.Exec(
		`DELETE FROM whitelist WHERE guild_id = ? AND user_id = ?`,
		guildID, userID,
	)
	return err
}

func (d *Database) ListWhitelist(guildID string) ([]string, error) {
	rows, err := d.db.Query(
		`SELECT user_id FROM whitelist WHERE guild_id = ?`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// ===== Blocked actors =====

func (d *Database) AddBlockedUser(guildID, userID, reason string, blockedAt time.Time) error {
	_, err := d.db.Exec(
		`INSERT OR REPLACE INTO blocked_users (guild_id, user_id, reason, blocked_at) VALUES (?, ?, ?, ?)`,
		guildID, userID, reason, blockedAt.Unix(),
	)
	return err
}

func (d *Database) RemoveBlockedUser(guildID, userID string) error {
	_, err := d.db.Exec(
		`DELETE FROM blocked_users WHERE guild_id = ? AND user_id = ?`,
		guildID, userID,
	)
	return err
}

func (d *Database) IsBlockedUser(guildID, userID string) bool {
	var count int
	err := d.db.QueryRow(
		`SELECT COUNT(*) FROM blocked_users WHERE guild_id = ? AND user_id = ?`,
		guildID, userID,
	).Scan(&count)
	return err == nil && count > 0
}

// ===== Incidents =====

// InsertIncident persists one immutable incident row.
func (d *Database) InsertIncident(inc *incident.Incident) error {
	warnings, err := json.Marshal(inc.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}

	_, err = d.db.Exec(
		`INSERT INTO incidents (incident_id, guild_id, attacker_id, violation_type, violation_count,
		 detected_at, response_time_ms, restore_source, items_restored, items_skipped, warnings, backup_age_hours)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.GuildID, inc.AttackerID, inc.ViolationType.String(), inc.ViolationCount,
		inc.DetectedAt.UnixMilli(), inc.ResponseTimeMs, inc.RestoreSource,
		inc.ItemsRestored, inc.ItemsSkipped, string(warnings), inc.BackupAgeHours,
	)
	return err
}

// ListIncidents returns up to limit incidents for a guild, most recent
// first. A zero since means no lower bound.
func (d *Database) ListIncidents(guildID string, limit int, since time.Time) ([]*incident.Incident, error) {
	sinceMs := int64(0)
	if !since.IsZero() {
		sinceMs = since.UnixMilli()
	}

	rows, err := d.db.Query(
		`SELECT incident_id, guild_id, attacker_id, violation_type, violation_count,
		 detected_at, response_time_ms, restore_source, items_restored, items_skipped, warnings, backup_age_hours
		 FROM incidents WHERE guild_id = ? AND detected_at >= ?
		 ORDER BY detected_at DESC LIMIT ?`,
		guildID, sinceMs, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incidents []*incident.Incident
	for rows.Next() {
		var inc incident.Incident
		var violationType, warnings string
		var detectedAtMs int64
		if err := rows.Scan(&inc.ID, &inc.GuildID, &inc.AttackerID, &violationType, &inc.ViolationCount,
			&detectedAtMs, &inc.ResponseTimeMs, &inc.RestoreSource,
			&inc.ItemsRestored, &inc.ItemsSkipped, &warnings, &inc.BackupAgeHours); err != nil {
			return nil, err
		}
		inc.ViolationType = models.ParseCategory(violationType)
		inc.DetectedAt = time.UnixMilli(detectedAtMs)
		if warnings != "" && warnings != "null" {
			if err := json.Unmarshal([]byte(warnings), &inc.Warnings); err != nil {
				return nil, fmt.Errorf("unmarshal warnings: %w", err)
			}
		}
		incidents = append(incidents, &inc)
	}
	return incidents, rows.Err()
}
