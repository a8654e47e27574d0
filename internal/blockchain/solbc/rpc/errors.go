// internal/blockchain/solbc/rpc/errors.go
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

var (
	// ErrNoActiveClients возникает, когда нет доступных активных клиентов
	ErrNoActiveClients = errors.New("no active RPC clients available")

	// ErrRateLimit возникает при превышении лимита запросов
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrTimeout возникает при превышении времени ожидания
	ErrTimeout = errors.New("request timeout")

	// ErrInvalidResponse возникает при получении некорректного ответа
	ErrInvalidResponse = errors.New("invalid RPC response")

	// ErrConnectionFailed возникает при ошибке подключения
	ErrConnectionFailed = errors.New("connection failed")
)

// Коды ошибок JSON-RPC сервера, означающие отставший или перегруженный узел.
const (
	codeNodeUnhealthy      = -32005
	codeBlockNotAvailable  = -32004
	codeSlotSkipped        = -32007
	codeMinContextNotReach = -32016
)

// Error представляет ошибку RPC с дополнительным контекстом
type Error struct {
	Err     error
	NodeURL string
	Method  string
	Cause   error
}

// Error реализует интерфейс error
func (e *Error) Error() string {
	if e.Cause != nil && e.Cause != e.Err {
		return fmt.Sprintf("RPC error [%s] at %s: %v: %v", e.Method, e.NodeURL, e.Err, e.Cause)
	}
	return fmt.Sprintf("RPC error [%s] at %s: %v", e.Method, e.NodeURL, e.Err)
}

// Unwrap возвращает и классифицированную ошибку, и исходную причину.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// NewError создает новую ошибку RPC
func NewError(err error, nodeURL, method string) error {
	return &Error{
		Err:     err,
		NodeURL: nodeURL,
		Method:  method,
	}
}

// Classify оборачивает ошибку клиента в *Error с транспортной причиной,
// если сбой транспортный. Прикладные ошибки (симуляция,
// неверные параметры) возвращаются как есть.
func Classify(err error, nodeURL, method string) error {
	if err == nil {
		return nil
	}
	var sentinel error

	var httpErr *jsonrpc.HTTPError
	var rpcErr *jsonrpc.RPCError
	var netErr net.Error
	switch {
	case errors.As(err, &httpErr):
		switch {
		case httpErr.Code == http.StatusTooManyRequests:
			sentinel = ErrRateLimit
		case httpErr.Code == http.StatusUnauthorized || httpErr.Code == http.StatusForbidden:
			sentinel = ErrInvalidResponse
		case httpErr.Code >= 500:
			sentinel = ErrConnectionFailed
		}
	case errors.As(err, &rpcErr):
		switch rpcErr.Code {
		case http.StatusTooManyRequests:
			sentinel = ErrRateLimit
		case codeNodeUnhealthy, codeBlockNotAvailable, codeSlotSkipped, codeMinContextNotReach:
			sentinel = ErrConnectionFailed
		}
	case errors.Is(err, context.DeadlineExceeded):
		sentinel = ErrTimeout
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			sentinel = ErrTimeout
		} else {
			sentinel = ErrConnectionFailed
		}
	default:
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "429") || strings.Contains(msg, "too many requests"):
			sentinel = ErrRateLimit
		case strings.Contains(msg, "connection reset"),
			strings.Contains(msg, "connection refused"),
			strings.Contains(msg, "no such host"),
			strings.Contains(msg, "eof"):
			sentinel = ErrConnectionFailed
		case strings.Contains(msg, "timeout"):
			sentinel = ErrTimeout
		}
	}

	if sentinel == nil {
		return err
	}
	return &Error{Err: sentinel, NodeURL: nodeURL, Method: method, Cause: err}
}

// IsRetryableError определяет, можно ли повторить операцию при данной ошибке
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		switch {
		case errors.Is(rpcErr.Err, ErrTimeout),
			errors.Is(rpcErr.Err, ErrRateLimit),
			errors.Is(rpcErr.Err, ErrConnectionFailed),
			errors.Is(rpcErr.Err, ErrNoActiveClients):
			return true
		}
	}
	return false
}

// IsCriticalError определяет, нужно ли вывести узел из ротации
func IsCriticalError(err error) bool {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return errors.Is(rpcErr.Err, ErrInvalidResponse) || errors.Is(rpcErr.Err, ErrConnectionFailed)
	}
	return false
}
