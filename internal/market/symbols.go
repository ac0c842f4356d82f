package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the sign of the last price move
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
	DirectionFlat Direction = "FLAT" // no tick applied yet
)

// SymbolPrice is the simulated last price of one symbol
type SymbolPrice struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Direction Direction       `json:"direction"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SymbolSpec describes a tracked symbol: where it starts and how many
// decimal places its price carries.
type SymbolSpec struct {
	Symbol    string
	Baseline  decimal.Decimal
	Precision int32
}

// DefaultSymbols are the symbols the feed tracks out of the box
var DefaultSymbols = []SymbolSpec{
	{Symbol: "BTCUSDT", Baseline: decimal.RequireFromString("27350.45"), Precision: 2},
	{Symbol: "ETHUSDT", Baseline: decimal.RequireFromString("1842.23"), Precision: 2},
	{Symbol: "BNBUSDT", Baseline: decimal.RequireFromString("215.67"), Precision: 2},
	{Symbol: "ADAUSDT", Baseline: decimal.RequireFromString("0.2456"), Precision: 4},
	{Symbol: "DOGEUSDT", Baseline: decimal.RequireFromString("0.06234"), Precision: 5},
}

// DefaultSymbolNames lists the default symbols in display order
func DefaultSymbolNames() []string {
	names := make([]string, len(DefaultSymbols))
	for i, s := range DefaultSymbols {
		names[i] = s.Symbol
	}
	return names
}
