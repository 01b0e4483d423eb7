package ops

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/errors"
)

// BackupStatusInput contains parameters for the BackupStatus operation.
type BackupStatusInput struct {
	Now time.Time // default: time.Now()
}

// BackupStatusOutput reports when leads were last exported.
type BackupStatusOutput struct {
	LastBackupAt *time.Time `json:"last_backup_at"`
	DaysSince    *int       `json:"days_since,omitempty"`
	IntervalDays int        `json:"interval_days"`
	ReminderDue  bool       `json:"reminder_due"`
	LeadCount    int        `json:"lead_count"`
}

// BackupStatus reports whether a backup reminder is due: never backed up, or
// more than backup_interval_days since the last export. An empty store never
// needs a reminder.
func BackupStatus(ctx context.Context, database *sql.DB, cfg *config.Config, input BackupStatusInput) (*BackupStatusOutput, error) {
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	count, err := db.NewLeads(database).Count(ctx)
	if err != nil {
		return nil, err
	}

	out := &BackupStatusOutput{
		IntervalDays: int(cfg.BackupInterval() / (24 * time.Hour)),
		LeadCount:    count,
	}

	raw, ok, err := db.NewSettings(database).Get(ctx, db.SettingLastBackupAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		out.ReminderDue = count > 0
		return out, nil
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	last := time.UnixMilli(ms).UTC()
	days := int(now.Sub(last) / (24 * time.Hour))
	out.LastBackupAt = &last
	out.DaysSince = &days
	out.ReminderDue = count > 0 && now.Sub(last) >= cfg.BackupInterval()
	return out, nil
}
