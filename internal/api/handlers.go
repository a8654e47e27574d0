// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/blockchain"
	"github.com/rovshanmuradov/bonk-keeper/internal/executor"
	"github.com/rovshanmuradov/bonk-keeper/internal/orchestrator"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage/models"
)

type mintRequest struct {
	TokenMint string `json:"tokenMint"`
}

// tokenView is the mirror status of one token.
type tokenView struct {
	Mint             string          `json:"mint"`
	Name             string          `json:"name,omitempty"`
	Symbol           string          `json:"symbol,omitempty"`
	Status           string          `json:"battleStatus"`
	OpponentMint     string          `json:"opponentMint,omitempty"`
	Tier             int             `json:"tier"`
	SolCollected     decimal.Decimal `json:"solCollected"`
	RealSolReserves  decimal.Decimal `json:"realSolReserves"`
	TotalTradeVolume decimal.Decimal `json:"totalTradeVolume"`
	SolProgress      float64         `json:"solProgress"`
	VolumeProgress   float64         `json:"volumeProgress"`
	RaydiumPoolID    string          `json:"raydiumPoolId,omitempty"`
	RaydiumURL       string          `json:"raydiumUrl,omitempty"`
	RaydiumPoolError string          `json:"raydiumPoolError,omitempty"`
	LedgerSyncedAt   *time.Time      `json:"ledgerSyncedAt,omitempty"`
	Winner           *winnerView     `json:"winner,omitempty"`
}

type winnerView struct {
	Status         string          `json:"status"`
	LoserMint      string          `json:"loserMint,omitempty"`
	SpoilsSol      decimal.Decimal `json:"spoilsSol"`
	PlatformFeeSol decimal.Decimal `json:"platformFeeSol"`
	WithdrawnSol   decimal.Decimal `json:"withdrawnSol"`
	PoolID         string          `json:"poolId,omitempty"`
}

func (s *Server) viewOf(token *models.Token) *tokenView {
	v := &tokenView{
		Mint:             token.Mint,
		Name:             token.Name,
		Symbol:           token.Symbol,
		Status:           token.BattleStatus,
		OpponentMint:     token.OpponentMint,
		Tier:             token.Tier,
		SolCollected:     token.SolCollected,
		RealSolReserves:  token.RealSolReserves,
		TotalTradeVolume: token.TotalTradeVolume,
		RaydiumPoolID:    token.RaydiumPoolID,
		RaydiumURL:       token.RaydiumURL,
		RaydiumPoolError: token.RaydiumPoolError,
		LedgerSyncedAt:   token.LedgerSyncedAt,
	}
	p := s.thresholds.Progress(&battle.BattleState{
		Tier:             battle.Tier(token.Tier),
		RealSolReserves:  models.ToLamports(token.RealSolReserves),
		TotalTradeVolume: models.ToLamports(token.TotalTradeVolume),
	})
	v.SolProgress, v.VolumeProgress = p.SolPercent, p.VolumePercent
	return v
}

func parseMint(raw string) (solana.PublicKey, error) {
	if raw == "" {
		return solana.PublicKey{}, errors.New("tokenMint is required")
	}
	pk, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, errors.New("tokenMint is not a valid public key")
	}
	return pk, nil
}

func decodeMint(w http.ResponseWriter, r *http.Request) (solana.PublicKey, error) {
	var req mintRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		return solana.PublicKey{}, errors.New("invalid JSON body")
	}
	return parseMint(req.TokenMint)
}

// passContext detaches a triggered pass from the client connection: a
// disconnect must not abandon a submission in flight.
func (s *Server) passContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.RequestTimeout)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	mint, err := parseMint(r.URL.Query().Get("mint"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := s.store.GetToken(r.Context(), mint.String())
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "token not found")
		return
	}
	if err != nil {
		s.logger.Error("status lookup failed", zap.String("mint", mint.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	view := s.viewOf(token)
	if winner, err := s.store.GetWinner(r.Context(), token.Mint); err == nil {
		view.Winner = &winnerView{
			Status:         winner.Status,
			LoserMint:      winner.LoserMint,
			SpoilsSol:      winner.SpoilsSol,
			PlatformFeeSol: winner.PlatformFeeSol,
			WithdrawnSol:   winner.WithdrawnSol,
			PoolID:         winner.PoolID,
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) autoComplete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.passContext(r)
	defer cancel()
	summary, err := s.keeper.RunBatch(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
			"summary": summary,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"checked":   summary.Checked,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"summary":   summary,
	})
}

func (s *Server) completeVictory(w http.ResponseWriter, r *http.Request) {
	mint, err := decodeMint(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := s.passContext(r)
	defer cancel()
	fr := s.keeper.CompleteVictory(ctx, mint)

	status := http.StatusOK
	switch {
	case fr.Err == nil:
	case errors.Is(fr.Err, blockchain.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(fr.Err, executor.ErrPreconditionFailed),
		errors.Is(fr.Err, executor.ErrBelowThreshold),
		errors.Is(fr.Err, executor.ErrNoPoolCreator),
		errors.Is(fr.Err, orchestrator.ErrNotActionable),
		errors.Is(fr.Err, orchestrator.ErrNoOpponent):
		status = http.StatusConflict
	default:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, fr)
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	mint, err := decodeMint(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := s.passContext(r)
	defer cancel()
	token, err := s.keeper.Reconcile(ctx, mint)
	if errors.Is(err, blockchain.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "battle state not found on ledger")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(token))
}

func (s *Server) match(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.passContext(r)
	defer cancel()
	summary, err := s.keeper.MatchPass(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) refreshPrice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.passContext(r)
	defer cancel()
	res, err := s.keeper.RefreshPrice(ctx)
	if errors.Is(err, executor.ErrPriceUpdateTooSoon) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "skipped": true, "reason": err.Error()})
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	body := map[string]interface{}{"success": true, "signature": res.Signature, "effect": res.EffectOccurred}
	if res.Oracle != nil {
		body["solPrice"] = res.Oracle.SolPriceUSD
		body["updateCount"] = res.Oracle.UpdateCount
	}
	writeJSON(w, http.StatusOK, body)
}
