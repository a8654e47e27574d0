// internal/battle/schema.go
package battle

// Version identifies a known battle_state account layout.
type Version uint8

const (
	VersionUnknown Version = iota
	// VersionLegacy is the layout without tier and reserve split.
	VersionLegacy
	// VersionCurrent carries tier and virtual/real reserves.
	VersionCurrent
)

func (v Version) String() string {
	switch v {
	case VersionLegacy:
		return "v1"
	case VersionCurrent:
		return "v2"
	default:
		return "unknown"
	}
}

// Field names one fixed-offset value of the account.
type Field uint8

const (
	FieldMint Field = iota
	FieldTier
	FieldSolCollected
	FieldVirtualSolReserves
	FieldVirtualTokenReserves
	FieldRealSolReserves
	FieldRealTokenReserves
	FieldTokensSold
	FieldTotalTradeVolume
	FieldIsActive
	FieldStatus
	FieldOpponentMint
	FieldCreationTimestamp
	FieldLastTradeTimestamp
	FieldBattleStartTimestamp
	FieldVictoryTimestamp
	FieldListingTimestamp
	FieldQualificationTimestamp
	FieldBump
)

// Kind is the wire type of a field; it fixes the field width.
type Kind uint8

const (
	KindU8 Kind = iota
	KindBool
	KindU64
	KindI64
	KindPubkey
)

// Width returns the encoded size of the kind in bytes.
func (k Kind) Width() int {
	switch k {
	case KindU8, KindBool:
		return 1
	case KindU64, KindI64:
		return 8
	case KindPubkey:
		return 32
	default:
		return 0
	}
}

// FieldSpec locates one field inside the account data.
type FieldSpec struct {
	Offset int
	Kind   Kind
}

// Schema is one versioned layout. Fields absent from the map take their
// zero value; Decode documents the substitutions.
type Schema struct {
	Version Version
	// Size is the allocated account size including metadata strings.
	Size int
	// FixedSize is where the borsh metadata strings begin.
	FixedSize int
	Fields    map[Field]FieldSpec
}

// Has reports whether the layout carries f.
func (s Schema) Has(f Field) bool {
	_, ok := s.Fields[f]
	return ok
}

// Schemas lists every known layout. Adding a protocol version means adding
// an entry here.
var Schemas = []Schema{
	{
		Version:   VersionLegacy,
		Size:      401,
		FixedSize: 147,
		Fields: map[Field]FieldSpec{
			FieldMint:                   {8, KindPubkey},
			FieldSolCollected:           {40, KindU64},
			FieldTokensSold:             {48, KindU64},
			FieldTotalTradeVolume:       {56, KindU64},
			FieldIsActive:               {64, KindBool},
			FieldStatus:                 {65, KindU8},
			FieldOpponentMint:           {66, KindPubkey},
			FieldCreationTimestamp:      {98, KindI64},
			FieldLastTradeTimestamp:     {106, KindI64},
			FieldBattleStartTimestamp:   {114, KindI64},
			FieldVictoryTimestamp:       {122, KindI64},
			FieldListingTimestamp:       {130, KindI64},
			FieldQualificationTimestamp: {138, KindI64},
			FieldBump:                   {146, KindU8},
		},
	},
	{
		Version:   VersionCurrent,
		Size:      436,
		FixedSize: 164,
		Fields: map[Field]FieldSpec{
			FieldMint:                 {8, KindPubkey},
			FieldTier:                 {40, KindU8},
			FieldVirtualSolReserves:   {41, KindU64},
			FieldVirtualTokenReserves: {49, KindU64},
			FieldRealSolReserves:      {57, KindU64},
			FieldRealTokenReserves:    {65, KindU64},
			FieldTokensSold:           {73, KindU64},
			FieldTotalTradeVolume:     {81, KindU64},
			FieldIsActive:             {89, KindBool},
			FieldStatus:               {90, KindU8},
			FieldOpponentMint:         {91, KindPubkey},
			FieldCreationTimestamp:    {123, KindI64},
			FieldLastTradeTimestamp:   {131, KindI64},
			FieldBattleStartTimestamp: {139, KindI64},
			FieldVictoryTimestamp:     {147, KindI64},
			FieldListingTimestamp:     {155, KindI64},
			FieldBump:                 {163, KindU8},
		},
	},
}

// SchemaForSize returns the layout whose allocated size equals n.
func SchemaForSize(n int) (Schema, bool) {
	for _, s := range Schemas {
		if s.Size == n {
			return s, true
		}
	}
	return Schema{}, false
}

// MinFixedSize is the smallest fixed prefix across known layouts.
func MinFixedSize() int {
	min := 0
	for i, s := range Schemas {
		if i == 0 || s.FixedSize < min {
			min = s.FixedSize
		}
	}
	return min
}
