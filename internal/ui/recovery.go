package ui

import (
	"fmt"
	"runtime/debug"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// ProgramFactory builds a fresh model for each dashboard (re)start.
type ProgramFactory func() (tea.Model, []tea.ProgramOption)

// RecoveryHandler restarts the dashboard after a panic.
type RecoveryHandler struct {
	logger   *zap.Logger
	delay    time.Duration
	limit    int
	restarts int
	factory  ProgramFactory
}

// NewRecoveryHandler allows five restarts, two seconds apart.
func NewRecoveryHandler(logger *zap.Logger, factory ProgramFactory) *RecoveryHandler {
	return &RecoveryHandler{
		logger:  logger.Named("ui-recovery"),
		delay:   2 * time.Second,
		limit:   5,
		factory: factory,
	}
}

// RunWithRecovery blocks until the user quits. A panicking program is
// rebuilt from the factory until the restart limit is spent.
func (rh *RecoveryHandler) RunWithRecovery() error {
	for {
		err := rh.runOnce()
		if err == nil {
			return nil
		}
		if rh.restarts >= rh.limit {
			return fmt.Errorf("dashboard gave up after %d restarts: %w", rh.restarts, err)
		}
		rh.restarts++
		rh.logger.Error("💥 Dashboard crashed, restarting",
			zap.Error(err),
			zap.Int("attempt", rh.restarts),
			zap.Duration("delay", rh.delay))
		time.Sleep(rh.delay)
	}
}

func (rh *RecoveryHandler) runOnce() (err error) {
	defer func() {
		if r := recover(); r != nil {
			rh.logger.Error("dashboard panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("dashboard panic: %v", r)
		}
	}()

	model, opts := rh.factory()
	if _, err := tea.NewProgram(model, opts...).Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
