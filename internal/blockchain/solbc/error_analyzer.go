package solbc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/blockchain"
)

// ErrorNamer maps a custom program error code to its variant name.
type ErrorNamer func(code int) string

// Analysis is the structured view of a failed send.
type Analysis struct {
	Type              string                  `json:"type"`
	Code              int                     `json:"code,omitempty"`
	Message           string                  `json:"message"`
	SimulationFailed  bool                    `json:"simulation_failed,omitempty"`
	AlreadyProcessed  bool                    `json:"already_processed,omitempty"`
	BlockhashNotFound bool                    `json:"blockhash_not_found,omitempty"`
	Anchor            *blockchain.AnchorError `json:"anchor_error,omitempty"`
	InstructionError  interface{}             `json:"instruction_error,omitempty"`
	Logs              []string                `json:"logs,omitempty"`
}

// ErrorAnalyzer provides methods to analyze Solana transaction errors
type ErrorAnalyzer struct {
	names  ErrorNamer
	logger *zap.Logger
}

// NewErrorAnalyzer creates a new ErrorAnalyzer instance. names may be nil.
func NewErrorAnalyzer(logger *zap.Logger, names ErrorNamer) *ErrorAnalyzer {
	return &ErrorAnalyzer{
		names:  names,
		logger: logger.Named("error-analyzer"),
	}
}

// Analyze extracts simulation details and the program error from a send error.
func (ea *ErrorAnalyzer) Analyze(err error) Analysis {
	if err == nil {
		return Analysis{Type: "none"}
	}

	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		msg := err.Error()
		return Analysis{
			Type:              "generic_error",
			Message:           msg,
			AlreadyProcessed:  isAlreadyProcessed(msg),
			BlockhashNotFound: strings.Contains(msg, "Blockhash not found"),
		}
	}

	result := Analysis{
		Type:              "rpc_error",
		Code:              rpcErr.Code,
		Message:           rpcErr.Message,
		AlreadyProcessed:  isAlreadyProcessed(rpcErr.Message),
		BlockhashNotFound: strings.Contains(rpcErr.Message, "Blockhash not found"),
	}

	// Check if this is a transaction simulation error
	if !strings.Contains(rpcErr.Message, "Transaction simulation failed") {
		return result
	}
	result.SimulationFailed = true

	dataMap, ok := rpcErr.Data.(map[string]interface{})
	if !ok {
		return result
	}
	if logs, ok := dataMap["logs"].([]interface{}); ok {
		for _, entry := range logs {
			if s, ok := entry.(string); ok {
				result.Logs = append(result.Logs, s)
			}
		}
		result.Anchor = ea.AnchorFromLogs(result.Logs)
	}
	if ixErr, ok := dataMap["err"]; ok && ixErr != nil {
		result.InstructionError = ixErr
		if s, ok := ixErr.(string); ok && s == "AlreadyProcessed" {
			result.AlreadyProcessed = true
		}
		if s, ok := ixErr.(string); ok && s == "BlockhashNotFound" {
			result.BlockhashNotFound = true
		}
		if result.Anchor == nil {
			result.Anchor = ea.AnchorFromInstructionError(ixErr)
		}
	}

	if result.Anchor != nil {
		ea.logger.Debug("Anchor error detected",
			zap.Int("code", result.Anchor.Code),
			zap.String("name", result.Anchor.Name),
			zap.String("message", result.Anchor.Msg))
	}
	return result
}

func isAlreadyProcessed(msg string) bool {
	return strings.Contains(msg, "already been processed") || strings.Contains(msg, "AlreadyProcessed")
}

// AnchorFromLogs finds the first Anchor error line in program logs.
func (ea *ErrorAnalyzer) AnchorFromLogs(logs []string) *blockchain.AnchorError {
	for _, line := range logs {
		if strings.Contains(line, "AnchorError") && strings.Contains(line, "Error Number:") {
			parsed := ea.parseAnchorErrorLog(line)
			return &parsed
		}
	}
	for _, line := range logs {
		// "Program X failed: custom program error: 0x178d"
		if idx := strings.Index(line, "custom program error: 0x"); idx >= 0 {
			hex := strings.TrimSpace(line[idx+len("custom program error: 0x"):])
			if code, err := strconv.ParseInt(hex, 16, 64); err == nil {
				return ea.anchorFromCode(int(code))
			}
		}
	}
	return nil
}

// AnchorFromInstructionError reads {"InstructionError":[idx,{"Custom":code}]}.
func (ea *ErrorAnalyzer) AnchorFromInstructionError(v interface{}) *blockchain.AnchorError {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	pair, ok := m["InstructionError"].([]interface{})
	if !ok || len(pair) != 2 {
		return nil
	}
	detail, ok := pair[1].(map[string]interface{})
	if !ok {
		return nil
	}
	code, ok := toInt(detail["Custom"])
	if !ok {
		return nil
	}
	return ea.anchorFromCode(code)
}

func (ea *ErrorAnalyzer) anchorFromCode(code int) *blockchain.AnchorError {
	name := fmt.Sprintf("Custom(%d)", code)
	if ea.names != nil {
		name = ea.names(code)
	}
	return &blockchain.AnchorError{Code: code, Name: name}
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

// parseAnchorErrorLog parses an Anchor error log string
// Example: "Program log: AnchorError occurred. Error Code: InstructionFallbackNotFound. Error Number: 101. Error Message: Fallback functions are not supported."
func (ea *ErrorAnalyzer) parseAnchorErrorLog(logStr string) blockchain.AnchorError {
	result := blockchain.AnchorError{}

	// Extract error code
	if parts := strings.SplitN(logStr, "Error Number:", 2); len(parts) > 1 {
		numParts := strings.Split(parts[1], ".")
		if n, err := strconv.Atoi(strings.TrimSpace(numParts[0])); err == nil {
			result.Code = n
		}
	}

	// Extract error name
	if parts := strings.SplitN(logStr, "Error Code:", 2); len(parts) > 1 {
		result.Name = strings.TrimSpace(strings.Split(parts[1], ".")[0])
	}

	// Extract error message
	if parts := strings.SplitN(logStr, "Error Message:", 2); len(parts) > 1 {
		result.Msg = strings.TrimSuffix(strings.TrimSpace(parts[1]), ".")
	}

	if result.Name == "" && ea.names != nil {
		result.Name = ea.names(result.Code)
	}
	return result
}

// FormatErrorAnalysis formats the error analysis for logging or display
func (ea *ErrorAnalyzer) FormatErrorAnalysis(analysis Analysis) string {
	jsonBytes, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Sprintf("Error formatting analysis: %v", err)
	}
	return string(jsonBytes)
}
