// internal/storage/gormstore/gormstore.go
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage/models"
)

const migrationLockID = 101

// Config describes the mirror database connection.
type Config struct {
	// DSN: a postgres:// URL or "host=..." string for Postgres, otherwise a SQLite path.
	DSN          string
	MaxIdleConns int
	MaxOpenConns int
	// LogLevel: silent, error, warn, info.
	LogLevel string
}

// Store implements storage.Store on GORM.
type Store struct {
	db       *gorm.DB
	postgres bool
	logger   *zap.Logger
}

// tokenLedgerColumns are the columns a ledger observation owns; metadata and
// pool fields are left untouched on conflict.
var tokenLedgerColumns = []string{
	"battle_status", "opponent_mint", "tier", "is_active",
	"sol_collected", "real_sol_reserves", "total_trade_volume",
	"creation_timestamp", "qualification_timestamp", "battle_start_timestamp",
	"victory_timestamp", "listing_timestamp", "ledger_synced_at", "updated_at",
}

var winnerColumns = []string{
	"name", "symbol", "loser_mint", "loser_name", "loser_symbol",
	"final_sol_collected", "final_volume_sol", "spoils_sol", "platform_fee_sol",
	"withdrawn_sol", "withdrawn_tokens", "pool_id", "raydium_url",
	"victory_timestamp", "status", "victory_signature", "finalize_signature",
	"withdraw_signature", "pool_signature", "updated_at",
}

// IsPostgresDSN reports whether dsn addresses a Postgres server.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// Open connects to the database and sizes the connection pool.
func Open(cfg Config, zapLogger *zap.Logger) (*Store, error) {
	isPostgres := IsPostgresDSN(cfg.DSN)
	var dialector gorm.Dialector
	if isPostgres {
		dialector = postgres.Open(cfg.DSN)
	} else {
		dialector = sqlite.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm"), parseLogLevel(cfg.LogLevel)),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Connection pool
	maxIdle, maxOpen := cfg.MaxIdleConns, cfg.MaxOpenConns
	if maxIdle <= 0 {
		maxIdle = 10
	}
	if maxOpen <= 0 {
		maxOpen = 100
	}
	if !isPostgres {
		// SQLite allows one writer, and :memory: lives in a single connection.
		maxIdle, maxOpen = 1, 1
	}
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Store{db: db, postgres: isPostgres, logger: zapLogger.Named("store")}, nil
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info", "debug":
		return logger.Info
	default:
		return logger.Warn
	}
}

// RunMigrations applies AutoMigrate. On Postgres an advisory lock keeps
// concurrent keepers from migrating at once.
func (s *Store) RunMigrations(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if s.postgres {
		var lockObtained bool
		if err := db.Raw("SELECT pg_try_advisory_lock(?)", migrationLockID).Scan(&lockObtained).Error; err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		if !lockObtained {
			return fmt.Errorf("another migration is in progress")
		}
		defer db.Exec("SELECT pg_advisory_unlock(?)", migrationLockID)
	}

	err := db.AutoMigrate(
		&models.Token{},
		&models.Battle{},
		&models.Winner{},
		&models.Activity{},
		&models.RunHistory{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

func statusNames(statuses []battle.Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = st.String()
	}
	return out
}

func (s *Store) ListTokensByStatus(ctx context.Context, limit int, statuses ...battle.Status) ([]*models.Token, error) {
	var tokens []*models.Token
	q := s.db.WithContext(ctx).Where("battle_status IN ?", statusNames(statuses)).Order("id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&tokens).Error
	return tokens, err
}

func (s *Store) GetToken(ctx context.Context, mint string) (*models.Token, error) {
	var token models.Token
	if err := s.db.WithContext(ctx).Where("mint = ?", mint).First(&token).Error; err != nil {
		return nil, notFound(err)
	}
	return &token, nil
}

// UpsertToken inserts the row or overwrites its ledger-observed columns.
func (s *Store) UpsertToken(ctx context.Context, token *models.Token) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mint"}},
		DoUpdates: clause.AssignmentColumns(tokenLedgerColumns),
	}).Create(token).Error
}

func (s *Store) UpdateTokenStatus(ctx context.Context, mint string, status battle.Status, fields map[string]interface{}) error {
	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["battle_status"] = status.String()
	res := s.db.WithContext(ctx).Model(&models.Token{}).Where("mint = ?", mint).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("token %s: %w", mint, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) CountTokensByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		BattleStatus string
		Count        int64
	}
	err := s.db.WithContext(ctx).Model(&models.Token{}).
		Select("battle_status, count(*) as count").
		Group("battle_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.BattleStatus] = r.Count
	}
	return out, nil
}

// ClaimPool marks a pool attempt for mint by owner. It fails with
// storage.ErrPoolClaimed while a pool is recorded or another claim younger
// than ttl exists.
func (s *Store) ClaimPool(ctx context.Context, mint, owner string, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	res := s.db.WithContext(ctx).Model(&models.Token{}).
		Where("mint = ?", mint).
		Where("(raydium_pool_id = '' OR raydium_pool_id IS NULL)").
		Where("(pool_claimed_at IS NULL OR pool_claimed_at < ?)", now.Add(-ttl)).
		Updates(map[string]interface{}{
			"pool_claim_id":   owner,
			"pool_claimed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Token{}).Where("mint = ?", mint).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("token %s: %w", mint, storage.ErrNotFound)
	}
	return fmt.Errorf("token %s: %w", mint, storage.ErrPoolClaimed)
}

// ReleasePoolClaim drops owner's claim; a claim taken over by someone else
// is left alone.
func (s *Store) ReleasePoolClaim(ctx context.Context, mint, owner string) error {
	return s.db.WithContext(ctx).Model(&models.Token{}).
		Where("mint = ? AND pool_claim_id = ?", mint, owner).
		Updates(map[string]interface{}{
			"pool_claim_id":   "",
			"pool_claimed_at": nil,
		}).Error
}

func (s *Store) RecordBattleStart(ctx context.Context, a, b, signature string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Create(&models.Battle{
		TokenAMint:     a,
		TokenBMint:     b,
		Status:         models.BattleActive,
		StartedAt:      &now,
		StartSignature: signature,
	}).Error
}

// CompleteBattle closes the active battle of the pair. A pair that was never
// recorded as started gets a completed row.
func (s *Store) CompleteBattle(ctx context.Context, winner, loser, signature string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Battle{}).
			Where("status = ?", models.BattleActive).
			Where("(token_a_mint = ? AND token_b_mint = ?) OR (token_a_mint = ? AND token_b_mint = ?)",
				winner, loser, loser, winner).
			Updates(map[string]interface{}{
				"status":        models.BattleCompleted,
				"winner_mint":   winner,
				"ended_at":      now,
				"end_signature": signature,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		var done int64
		if err := tx.Model(&models.Battle{}).
			Where("status = ? AND winner_mint = ?", models.BattleCompleted, winner).
			Where("token_a_mint = ? OR token_b_mint = ?", loser, loser).
			Count(&done).Error; err != nil {
			return err
		}
		if done > 0 {
			return nil
		}
		return tx.Create(&models.Battle{
			TokenAMint:   winner,
			TokenBMint:   loser,
			Status:       models.BattleCompleted,
			WinnerMint:   winner,
			EndedAt:      &now,
			EndSignature: signature,
		}).Error
	})
}

// UpsertWinner merges winner into any existing record of the same mint.
func (s *Store) UpsertWinner(ctx context.Context, winner *models.Winner) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev models.Winner
		err := tx.Where("mint = ?", winner.Mint).First(&prev).Error
		switch {
		case err == nil:
			winner.MergeFrom(&prev)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		winner.ID = 0
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "mint"}},
			DoUpdates: clause.AssignmentColumns(winnerColumns),
		}).Create(winner).Error
	})
}

func (s *Store) GetWinner(ctx context.Context, mint string) (*models.Winner, error) {
	var winner models.Winner
	if err := s.db.WithContext(ctx).Where("mint = ?", mint).First(&winner).Error; err != nil {
		return nil, notFound(err)
	}
	return &winner, nil
}

func (s *Store) RecentWinners(ctx context.Context, limit int) ([]*models.Winner, error) {
	var winners []*models.Winner
	err := s.db.WithContext(ctx).Order("updated_at desc").Limit(limit).Find(&winners).Error
	return winners, err
}

func (s *Store) AppendActivity(ctx context.Context, activity *models.Activity) error {
	return s.db.WithContext(ctx).Create(activity).Error
}

func (s *Store) RecentActivities(ctx context.Context, limit int) ([]*models.Activity, error) {
	var out []*models.Activity
	err := s.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&out).Error
	return out, err
}

func (s *Store) SaveRun(ctx context.Context, run *models.RunHistory) error {
	return s.db.WithContext(ctx).Create(run).Error
}

func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*models.RunHistory, error) {
	var runs []*models.RunHistory
	err := s.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&runs).Error
	return runs, err
}

var _ storage.Store = (*Store)(nil)
