package api

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rickgao/options-data/internal/model"
)

// StandardContractSize is the deliverable of an unadjusted equity option.
const StandardContractSize = 100

// ToFloat32 converts a decimal price to the snapshot's float32 columns.
func ToFloat32(d decimal.Decimal) float32 {
	return float32(d.InexactFloat64())
}

// ClampInt32 saturates n into the int32 range.
func ClampInt32(n int64) int32 {
	switch {
	case n > math.MaxInt32:
		return math.MaxInt32
	case n < math.MinInt32:
		return math.MinInt32
	default:
		return int32(n)
	}
}

// IsNonStandard reports whether a contract is adjusted or has a non-100 deliverable.
// Adjusted roots carry a digit suffix (AAPL1), while alternate roots such as
// SPXW for SPX are standard.
func (o *APIOption) IsNonStandard() bool {
	if o.ContractSize != 0 && o.ContractSize != StandardContractSize {
		return true
	}
	root := strings.TrimSpace(o.RootSymbol)
	if root == "" {
		return false
	}
	last := root[len(root)-1]
	return last >= '0' && last <= '9'
}

// ToModel converts an APIOption to model.OptionContract.
// The underlying falls back to the requested symbol when the API omits it.
func (o *APIOption) ToModel(underlying string) (model.OptionContract, error) {
	typ := model.NormalizeOptionType(o.OptionType)
	if typ == "" {
		return model.OptionContract{}, fmt.Errorf("contract %s: unknown option type %q", o.Symbol, o.OptionType)
	}

	exp, err := model.ExpirationToInt(o.ExpirationDate)
	if err != nil {
		return model.OptionContract{}, fmt.Errorf("contract %s: %w", o.Symbol, err)
	}

	if o.Underlying != "" {
		underlying = o.Underlying
	}

	var impvol float32
	if o.Greeks != nil {
		impvol = ToFloat32(o.Greeks.MidIV)
	}

	return model.OptionContract{
		Symbol:      o.Symbol,
		Underlying:  underlying,
		Type:        typ,
		Expiration:  exp,
		Strike:      o.Strike.InexactFloat64(),
		Bid:         ToFloat32(o.Bid),
		Ask:         ToFloat32(o.Ask),
		Last:        ToFloat32(o.Last),
		Volume:      ClampInt32(o.Volume),
		OpenInt:     ClampInt32(o.OpenInterest),
		ImpVol:      impvol,
		NonStandard: o.IsNonStandard(),
		LastTrade:   o.TradeDate,
	}, nil
}
