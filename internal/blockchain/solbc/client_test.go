package solbc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/blockchain"
	"github.com/rovshanmuradov/bonk-keeper/internal/program"
	"github.com/rovshanmuradov/bonk-keeper/internal/wallet"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode is a scripted JSON-RPC endpoint.
type fakeNode struct {
	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]func(req rpcRequest) (result interface{}, rpcErr map[string]interface{}, status int)
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		calls:    map[string]int{},
		handlers: map[string]func(rpcRequest) (interface{}, map[string]interface{}, int){},
	}
}

func (f *fakeNode) on(method string, h func(rpcRequest) (interface{}, map[string]interface{}, int)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

func (f *fakeNode) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.calls[req.Method]++
	h := f.handlers[req.Method]
	f.mu.Unlock()

	if h == nil {
		http.Error(w, "unexpected method "+req.Method, http.StatusNotImplemented)
		return
	}
	result, rpcErr, status := h(req)
	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("slow down"))
		return
	}
	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func withContext(v interface{}) map[string]interface{} {
	return map[string]interface{}{"context": map[string]interface{}{"slot": 1}, "value": v}
}

func newTestClient(t *testing.T, node *fakeNode) *Client {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		URLs:           []string{srv.URL},
		MaxRetries:     3,
		MaxElapsed:     5 * time.Second,
		ConfirmTimeout: time.Second,
		PollInterval:   10 * time.Millisecond,
	}, NewErrorAnalyzer(zap.NewNop(), program.ErrorName), nil, zap.NewNop())
	require.NoError(t, err)
	return c
}

func blockhashHandler(rpcRequest) (interface{}, map[string]interface{}, int) {
	return withContext(map[string]interface{}{
		"blockhash":            solana.Hash{2}.String(),
		"lastValidBlockHeight": 100,
	}), nil, 0
}

func testSubmission(t *testing.T) (solana.Instruction, *wallet.Wallet) {
	t.Helper()
	w, err := wallet.NewWallet(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)
	p := &program.Program{ID: solana.NewWallet().PublicKey(), Keeper: w.PublicKey}
	ix, err := p.CheckVictoryConditions(solana.NewWallet().PublicKey())
	require.NoError(t, err)
	return ix, w
}

func TestReadAccountsChunksAndMarksMissing(t *testing.T) {
	node := newFakeNode()
	node.on("getMultipleAccounts", func(req rpcRequest) (interface{}, map[string]interface{}, int) {
		var keys []string
		_ = json.Unmarshal(req.Params[0], &keys)
		values := make([]interface{}, len(keys))
		// every even key exists
		for i := range keys {
			if i%2 == 0 {
				values[i] = map[string]interface{}{
					"lamports":   1000 + i,
					"owner":      solana.SystemProgramID.String(),
					"data":       []string{base64.StdEncoding.EncodeToString([]byte{byte(i)}), "base64"},
					"executable": false,
					"rentEpoch":  0,
				}
			}
		}
		return withContext(values), nil, 0
	})
	c := newTestClient(t, node)

	keys := make([]solana.PublicKey, 150)
	for i := range keys {
		keys[i] = solana.NewWallet().PublicKey()
	}
	accs, err := c.ReadAccounts(context.Background(), keys)
	require.NoError(t, err)
	require.Len(t, accs, 150)
	assert.Equal(t, 2, node.count("getMultipleAccounts"))

	require.NotNil(t, accs[0])
	assert.Equal(t, keys[0], accs[0].Address)
	assert.Equal(t, uint64(1000), accs[0].Lamports)
	assert.Nil(t, accs[1])
	// second chunk restarts its index at 0
	require.NotNil(t, accs[100])
	assert.Equal(t, []byte{0}, accs[100].Data)

	_, err = c.ReadAccount(context.Background(), keys[1])
	assert.ErrorIs(t, err, blockchain.ErrAccountNotFound)
}

func TestReadAccountsRetriesRateLimit(t *testing.T) {
	node := newFakeNode()
	var n int
	node.on("getMultipleAccounts", func(req rpcRequest) (interface{}, map[string]interface{}, int) {
		n++
		if n == 1 {
			return nil, nil, http.StatusTooManyRequests
		}
		return withContext([]interface{}{nil}), nil, 0
	})
	c := newTestClient(t, node)

	accs, err := c.ReadAccounts(context.Background(), []solana.PublicKey{solana.NewWallet().PublicKey()})
	require.NoError(t, err)
	assert.Equal(t, []*blockchain.Account{nil}, accs)
	assert.Equal(t, 2, node.count("getMultipleAccounts"))
}

func TestSubmitConfirmed(t *testing.T) {
	node := newFakeNode()
	node.on("getLatestBlockhash", blockhashHandler)
	node.on("sendTransaction", func(rpcRequest) (interface{}, map[string]interface{}, int) {
		return solana.Signature{9}.String(), nil, 0
	})
	node.on("getSignatureStatuses", func(rpcRequest) (interface{}, map[string]interface{}, int) {
		return withContext([]interface{}{map[string]interface{}{
			"slot":               5,
			"confirmations":      nil,
			"err":                nil,
			"confirmationStatus": "confirmed",
		}}), nil, 0
	})
	c := newTestClient(t, node)
	ix, w := testSubmission(t)

	res, err := c.Submit(context.Background(), ix, w)
	require.NoError(t, err)
	assert.Equal(t, blockchain.OutcomeConfirmed, res.Outcome)
	assert.False(t, res.Signature.IsZero())
	assert.Equal(t, 1, node.count("sendTransaction"))
}

func TestSubmitPreflightRejection(t *testing.T) {
	node := newFakeNode()
	node.on("getLatestBlockhash", blockhashHandler)
	node.on("sendTransaction", func(rpcRequest) (interface{}, map[string]interface{}, int) {
		return nil, map[string]interface{}{
			"code":    -32002,
			"message": "Transaction simulation failed: Error processing Instruction 0: custom program error: 0x177d",
			"data": map[string]interface{}{
				"err": map[string]interface{}{"InstructionError": []interface{}{0, map[string]interface{}{"Custom": 6013}}},
				"logs": []string{
					"Program 6LdnckDuYxXn4UkyyD5YB7w9j2k49AsuZCNmQ3GhR2Eq invoke [1]",
					"Program log: AnchorError thrown in programs/battle/src/lib.rs:88. Error Code: NotInBattle. Error Number: 6013. Error Message: Token is not in battle.",
				},
			},
		}, 0
	})
	c := newTestClient(t, node)
	ix, w := testSubmission(t)

	res, err := c.Submit(context.Background(), ix, w)
	require.NoError(t, err)
	assert.Equal(t, blockchain.OutcomeRejected, res.Outcome)
	require.NotNil(t, res.Reject)
	assert.Equal(t, program.CodeNotInBattle, res.Reject.Code)
	assert.Equal(t, "NotInBattle", res.Reject.Name)
	assert.Len(t, res.Logs, 2)
	// deterministic rejections are never re-sent
	assert.Equal(t, 1, node.count("sendTransaction"))
	assert.Zero(t, node.count("getSignatureStatuses"))
}

func TestSubmitAlreadyProcessed(t *testing.T) {
	node := newFakeNode()
	node.on("getLatestBlockhash", blockhashHandler)
	node.on("sendTransaction", func(rpcRequest) (interface{}, map[string]interface{}, int) {
		return nil, map[string]interface{}{
			"code":    -32002,
			"message": "Transaction simulation failed: This transaction has already been processed",
			"data":    map[string]interface{}{"err": "AlreadyProcessed", "logs": []string{}},
		}, 0
	})
	node.on("getSignatureStatuses", func(rpcRequest) (interface{}, map[string]interface{}, int) {
		return withContext([]interface{}{map[string]interface{}{
			"slot": 5, "err": nil, "confirmationStatus": "finalized",
		}}), nil, 0
	})
	c := newTestClient(t, node)
	ix, w := testSubmission(t)

	res, err := c.Submit(context.Background(), ix, w)
	require.NoError(t, err)
	assert.Equal(t, blockchain.OutcomeAlreadyProcessed, res.Outcome)
	assert.True(t, res.Outcome.Landed())
}

func TestSubmitExecutionFailureAndTimeout(t *testing.T) {
	node := newFakeNode()
	node.on("getLatestBlockhash", blockhashHandler)
	node.on("sendTransaction", func(rpcRequest) (interface{}, map[string]interface{}, int) {
		return solana.Signature{9}.String(), nil, 0
	})
	node.on("getSignatureStatuses", func(rpcRequest) (interface{}, map[string]interface{}, int) {
		return withContext([]interface{}{map[string]interface{}{
			"slot":               5,
			"err":                map[string]interface{}{"InstructionError": []interface{}{0, map[string]interface{}{"Custom": 6015}}},
			"confirmationStatus": "confirmed",
		}}), nil, 0
	})
	c := newTestClient(t, node)
	ix, w := testSubmission(t)

	res, err := c.Submit(context.Background(), ix, w)
	require.NoError(t, err)
	assert.Equal(t, blockchain.OutcomeRejected, res.Outcome)
	require.NotNil(t, res.Reject)
	assert.Equal(t, "InvalidBattleState", res.Reject.Name)

	// never confirmed
	node.on("getSignatureStatuses", func(rpcRequest) (interface{}, map[string]interface{}, int) {
		return withContext([]interface{}{nil}), nil, 0
	})
	res, err = c.Submit(context.Background(), ix, w)
	require.NoError(t, err)
	assert.Equal(t, blockchain.OutcomeTimeout, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrConfirmationTimeout)
}

func TestTokenAccountBalanceMissingAccountIsZero(t *testing.T) {
	node := newFakeNode()
	node.on("getTokenAccountBalance", func(rpcRequest) (interface{}, map[string]interface{}, int) {
		return nil, map[string]interface{}{"code": -32602, "message": "Invalid param: could not find account"}, 0
	})
	c := newTestClient(t, node)

	bal, err := c.TokenAccountBalance(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Zero(t, bal)

	node.on("getTokenAccountBalance", func(rpcRequest) (interface{}, map[string]interface{}, int) {
		return withContext(map[string]interface{}{"amount": "123456", "decimals": 6, "uiAmountString": "0.123456"}), nil, 0
	})
	bal, err = c.TokenAccountBalance(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), bal)
}
