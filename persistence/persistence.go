// SPDX-License-Identifier: GPL-3.0-or-later
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mailkit/gmailsweep/domain"
	"github.com/mailkit/gmailsweep/log"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
)

var migrationSource = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "1_initial",
			Up: []string{
				`CREATE TABLE item_history (
					item_id TEXT PRIMARY KEY,
					originator TEXT NOT NULL,
					subject TEXT NOT NULL DEFAULT '',
					deleted_at TIMESTAMP NOT NULL,
					restore_deadline TIMESTAMP NOT NULL
				)`,
				`CREATE TABLE originator_stats (
					originator TEXT PRIMARY KEY,
					domain TEXT NOT NULL DEFAULT '',
					total_count INTEGER NOT NULL DEFAULT 0,
					unread_count INTEGER NOT NULL DEFAULT 0,
					total_size INTEGER NOT NULL DEFAULT 0,
					is_newsletter BOOLEAN NOT NULL DEFAULT 0,
					is_automated BOOLEAN NOT NULL DEFAULT 0,
					spam_score REAL NOT NULL DEFAULT 0,
					last_updated TIMESTAMP NOT NULL
				)`,
				`CREATE TABLE cleanup_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					criteria_json TEXT NOT NULL,
					action TEXT NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT 1,
					created_at TIMESTAMP NOT NULL,
					last_run TIMESTAMP,
					schedule_json TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX idx_history_originator ON item_history(originator)`,
				`CREATE INDEX idx_history_deleted_at ON item_history(deleted_at)`,
			},
			Down: []string{
				`DROP TABLE cleanup_rules`,
				`DROP TABLE originator_stats`,
				`DROP TABLE item_history`,
			},
		},
	},
}

type Persistence struct {
	db *sqlx.DB
	l  *logrus.Logger
}

func NewPersistence(datasource string) (*Persistence, error) {
	db, err := sqlx.Connect("sqlite3", datasource)
	if err != nil {
		return nil, fmt.Errorf("could not open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := log.Logger(log.LOG_PERSISTENCE)
	l.WithField("file", datasource).Info("Connected")

	_, err = db.Exec(`PRAGMA journal_mode=WAL`)
	if err != nil {
		return nil, fmt.Errorf("could not set journal mode: %w", err)
	}
	_, err = db.Exec(`PRAGMA synchronous=normal`)
	if err != nil {
		return nil, fmt.Errorf("could not set synchronous mode: %w", err)
	}

	appliedMigrations, err := migrate.Exec(db.DB, "sqlite3", migrationSource, migrate.Up)
	if err != nil {
		return nil, fmt.Errorf("could not migrate to newest version: %w", err)
	}

	l.WithField("migrations", appliedMigrations).Debug("Executed migrations")

	return &Persistence{
		db: db,
		l:  l,
	}, nil
}

func (p *Persistence) Close() error {
	err := p.db.Close()
	if err != nil {
		return fmt.Errorf("could not close db: %w", err)
	}
	p.l.Info("Disconnected")
	return nil
}

func (p *Persistence) SaveOriginatorStats(stats []*domain.OriginatorStats) error {
	tx, err := p.db.BeginTxx(context.TODO(), nil)
	if err != nil {
		return fmt.Errorf("could not start transaction: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO originator_stats
		(originator, domain, total_count, unread_count, total_size, is_newsletter, is_automated, spam_score, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return txEnd(tx, fmt.Errorf("could not prepare statement: %w", err))
	}

	now := time.Now()
	for _, s := range stats {
		_, err := stmt.Exec(
			s.Originator, s.Domain, s.TotalCount, s.UnreadCount, s.TotalSize,
			s.IsNewsletter, s.IsAutomated, s.SpamScore, now,
		)
		if err != nil {
			return txEnd(tx, fmt.Errorf("could not save originator stats: %w", err))
		}
	}

	err = txEnd(tx, nil)
	if err != nil {
		return err
	}

	p.l.WithField("originators", len(stats)).Debug("Persisted originator stats")
	return nil
}

func (p *Persistence) AllOriginatorStats() ([]*domain.SavedOriginatorStats, error) {
	dbStats := []domain.SavedOriginatorStats{}

	err := p.db.Select(
		&dbStats,
		`SELECT originator, domain, total_count, unread_count, total_size, is_newsletter, is_automated, spam_score, last_updated
		FROM originator_stats ORDER BY originator`,
	)
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}

	stats := make([]*domain.SavedOriginatorStats, len(dbStats))
	for i := range dbStats {
		stats[i] = &dbStats[i]
	}
	return stats, nil
}

func (p *Persistence) SaveDeleteHistory(records []domain.DeleteHistoryRecord) error {
	tx, err := p.db.BeginTxx(context.TODO(), nil)
	if err != nil {
		return fmt.Errorf("could not start transaction: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO item_history (item_id, originator, subject, deleted_at, restore_deadline)
		VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return txEnd(tx, fmt.Errorf("could not prepare statement: %w", err))
	}

	for _, r := range records {
		_, err := stmt.Exec(r.ItemId, r.Originator, r.Subject, r.DeletedAt, r.RestoreDeadline)
		if err != nil {
			return txEnd(tx, fmt.Errorf("could not save history record: %w", err))
		}
	}

	return txEnd(tx, nil)
}

func (p *Persistence) DeleteHistory(itemIds []string) error {
	if len(itemIds) == 0 {
		return nil
	}

	qry, args, err := sqlx.In(`DELETE FROM item_history WHERE item_id IN (?)`, itemIds)
	if err != nil {
		return fmt.Errorf("could not create query: %w", err)
	}

	result, err := p.db.Exec(qry, args...)
	if err != nil {
		return fmt.Errorf("could not delete history: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get num of affected rows: %w", err)
	}

	p.l.WithFields(logrus.Fields{"requested": len(itemIds), "removed": affected}).Debug("Removed history records")
	return nil
}

func (p *Persistence) FindHistory(itemId string) (*domain.DeleteHistoryRecord, error) {
	record := domain.DeleteHistoryRecord{}

	err := p.db.Get(
		&record,
		`SELECT item_id, originator, subject, deleted_at, restore_deadline FROM item_history WHERE item_id = ?`,
		itemId,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}

	return &record, nil
}

func (p *Persistence) ListRestorable(now time.Time) ([]*domain.DeleteHistoryRecord, error) {
	dbRecords := []domain.DeleteHistoryRecord{}

	err := p.db.Select(
		&dbRecords,
		`SELECT item_id, originator, subject, deleted_at, restore_deadline FROM item_history
		WHERE restore_deadline > ? ORDER BY deleted_at DESC`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}

	records := make([]*domain.DeleteHistoryRecord, len(dbRecords))
	for i := range dbRecords {
		records[i] = &dbRecords[i]
	}
	return records, nil
}

func (p *Persistence) ActiveRules() ([]*domain.CleanupRule, error) {
	dbRules := []struct {
		Id           int64      `db:"id"`
		Name         string     `db:"name"`
		CriteriaJson string     `db:"criteria_json"`
		Action       string     `db:"action"`
		IsActive     bool       `db:"is_active"`
		CreatedAt    time.Time  `db:"created_at"`
		LastRun      *time.Time `db:"last_run"`
		ScheduleJson string     `db:"schedule_json"`
	}{}

	err := p.db.Select(
		&dbRules,
		`SELECT id, name, criteria_json, action, is_active, created_at, last_run, schedule_json
		FROM cleanup_rules WHERE is_active = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}

	rules := []*domain.CleanupRule{}
	for _, r := range dbRules {
		rules = append(
			rules,
			&domain.CleanupRule{
				Id:           r.Id,
				Name:         r.Name,
				CriteriaJson: r.CriteriaJson,
				Action:       r.Action,
				IsActive:     r.IsActive,
				CreatedAt:    r.CreatedAt,
				LastRun:      r.LastRun,
				ScheduleJson: r.ScheduleJson,
			},
		)
	}

	p.l.WithField("rules", len(rules)).Debug("Found active rules")
	return rules, nil
}

func (p *Persistence) SaveRule(rule *domain.CleanupRule) (int64, error) {
	result, err := p.db.Exec(
		`INSERT INTO cleanup_rules (name, criteria_json, action, is_active, created_at, last_run, schedule_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rule.Name, rule.CriteriaJson, rule.Action, rule.IsActive, rule.CreatedAt, rule.LastRun, rule.ScheduleJson,
	)
	if err != nil {
		return 0, fmt.Errorf("could not save rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("could not get rule id: %w", err)
	}

	p.l.WithFields(logrus.Fields{"id": id, "name": rule.Name}).Info("Persisted rule")
	return id, nil
}

func (p *Persistence) TouchRuleLastRun(id int64, ranAt time.Time) error {
	result, err := p.db.Exec(
		`UPDATE cleanup_rules SET last_run = ? WHERE id = ?`,
		ranAt, id,
	)
	if err != nil {
		return fmt.Errorf("could not update last_run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get num of affected rows: %w", err)
	}

	if affected != 1 {
		return fmt.Errorf("unexpected number of affected rows, expected 1 got %d", affected)
	}

	return nil
}

func txEnd(tx *sqlx.Tx, err error) error {
	if err == nil {
		err = tx.Commit()
		if err != nil {
			return fmt.Errorf("could not commit tx: %w", err)
		}
	} else {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil {
			errStr := err.Error()
			return fmt.Errorf("%s, could not rollback tx: %w", errStr, rollbackErr)
		} else {
			return err
		}
	}

	return nil
}
