// internal/program/errors.go
package program

import "fmt"

// Custom error codes of the battle program (Anchor: 6000 + variant index).
const (
	CodeInvalidTokenName      = 6000
	CodeTradingInactive       = 6005
	CodeNotQualified          = 6010
	CodeSelfBattle            = 6011
	CodeUnfairMatch           = 6012
	CodeNotInBattle           = 6013
	CodeNoVictoryAchieved     = 6014
	CodeInvalidBattleState    = 6015
	CodeNotOpponents          = 6016
	CodeInvalidTreasury       = 6017
	CodeUnauthorized          = 6018
	CodeMathOverflow          = 6019
	CodePriceUpdateTooSoon    = 6021
	CodeNotReadyForListing    = 6023
	CodeNoLiquidityToWithdraw = 6024
)

var errorNames = []string{
	"InvalidTokenName",
	"InvalidTokenSymbol",
	"InvalidTokenUri",
	"AmountTooSmall",
	"AmountTooLarge",
	"TradingInactive",
	"InsufficientOutput",
	"ExceedsSupply",
	"InsufficientLiquidity",
	"InsufficientBalance",
	"NotQualified",
	"SelfBattle",
	"UnfairMatch",
	"NotInBattle",
	"NoVictoryAchieved",
	"InvalidBattleState",
	"NotOpponents",
	"InvalidTreasury",
	"Unauthorized",
	"MathOverflow",
	"InvalidCurveState",
	"PriceUpdateTooSoon",
	"WouldExceedGraduation",
	"NotReadyForListing",
	"NoLiquidityToWithdraw",
}

// ErrorName returns the program error variant for code, or a generic label.
func ErrorName(code int) string {
	idx := code - CodeInvalidTokenName
	if idx >= 0 && idx < len(errorNames) {
		return errorNames[idx]
	}
	return fmt.Sprintf("Custom(%d)", code)
}

// ErrorCode is the inverse of ErrorName. ok is false for unknown names.
func ErrorCode(name string) (code int, ok bool) {
	for i, n := range errorNames {
		if n == name {
			return CodeInvalidTokenName + i, true
		}
	}
	return 0, false
}

// IsStalePrecondition reports whether a rejection means the account already
// moved past the state the instruction expects, i.e. someone else advanced it.
func IsStalePrecondition(code int) bool {
	switch code {
	case CodeNotInBattle,
		CodeInvalidBattleState,
		CodeNotQualified,
		CodeNotReadyForListing,
		CodeNoLiquidityToWithdraw:
		return true
	}
	return false
}
