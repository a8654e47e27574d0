// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage/models"
)

var (
	// ErrNotFound возвращается, когда запись отсутствует.
	ErrNotFound = errors.New("record not found")
	// ErrPoolClaimed: пул уже создан или его создаёт другой кипер.
	ErrPoolClaimed = errors.New("pool attempt already claimed")
)

// Store определяет интерфейс зеркального хранилища. Оно не является
// источником истины: любые данные отсюда перепроверяются по леджеру.
type Store interface {
	// Токены
	ListTokensByStatus(ctx context.Context, limit int, statuses ...battle.Status) ([]*models.Token, error)
	GetToken(ctx context.Context, mint string) (*models.Token, error)
	UpsertToken(ctx context.Context, token *models.Token) error
	UpdateTokenStatus(ctx context.Context, mint string, status battle.Status, fields map[string]interface{}) error
	CountTokensByStatus(ctx context.Context) (map[string]int64, error)
	// ClaimPool помечает попытку создания пула; чужая заявка старше ttl
	// считается брошенной.
	ClaimPool(ctx context.Context, mint, owner string, now time.Time, ttl time.Duration) error
	ReleasePoolClaim(ctx context.Context, mint, owner string) error

	// Битвы
	RecordBattleStart(ctx context.Context, a, b, signature string) error
	CompleteBattle(ctx context.Context, winner, loser, signature string) error

	// Победители
	UpsertWinner(ctx context.Context, winner *models.Winner) error
	GetWinner(ctx context.Context, mint string) (*models.Winner, error)
	RecentWinners(ctx context.Context, limit int) ([]*models.Winner, error)

	// Активность
	AppendActivity(ctx context.Context, activity *models.Activity) error
	RecentActivities(ctx context.Context, limit int) ([]*models.Activity, error)

	// Запуски кипера
	SaveRun(ctx context.Context, run *models.RunHistory) error
	RecentRuns(ctx context.Context, limit int) ([]*models.RunHistory, error)

	RunMigrations(ctx context.Context) error
	Close() error
}
