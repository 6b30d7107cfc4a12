package api

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// oneOrMany decodes a collection the API renders as an array, a bare object
// when it has a single element, or null when empty.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = nil
		return nil
	}

	if data[0] == '[' {
		var many []T
		if err := json.Unmarshal(data, &many); err != nil {
			return err
		}
		*o = many
		return nil
	}

	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*o = []T{one}
	return nil
}

// ExpirationsResponse from GET /v1/markets/options/expirations
type ExpirationsResponse struct {
	Expirations *struct {
		Date oneOrMany[string] `json:"date"`
	} `json:"expirations"`
}

// Dates returns the listed expiration dates, empty when none are listed.
func (r *ExpirationsResponse) Dates() []string {
	if r.Expirations == nil {
		return nil
	}
	return r.Expirations.Date
}

// ChainResponse from GET /v1/markets/options/chains
type ChainResponse struct {
	Options *struct {
		Option oneOrMany[APIOption] `json:"option"`
	} `json:"options"`
}

// Contracts returns the contracts in the response, empty when none are listed.
func (r *ChainResponse) Contracts() []APIOption {
	if r.Options == nil {
		return nil
	}
	return r.Options.Option
}

// APIOption represents one option contract quote from the API.
type APIOption struct {
	Symbol         string `json:"symbol"`
	Description    string `json:"description"`
	Underlying     string `json:"underlying"`
	RootSymbol     string `json:"root_symbol"`
	OptionType     string `json:"option_type"`
	ExpirationDate string `json:"expiration_date"`
	ExpirationType string `json:"expiration_type"`

	// Prices in dollars; null decodes to zero
	Strike decimal.Decimal `json:"strike"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Last   decimal.Decimal `json:"last"`

	Volume       int64 `json:"volume"`
	OpenInterest int64 `json:"open_interest"`
	ContractSize int   `json:"contract_size"`

	// Milliseconds since epoch, 0 if never traded
	TradeDate int64 `json:"trade_date"`

	Greeks *APIGreeks `json:"greeks"`
}

// APIGreeks holds the greeks block returned when greeks=true.
type APIGreeks struct {
	Delta     decimal.Decimal `json:"delta"`
	Gamma     decimal.Decimal `json:"gamma"`
	Theta     decimal.Decimal `json:"theta"`
	Vega      decimal.Decimal `json:"vega"`
	BidIV     decimal.Decimal `json:"bid_iv"`
	MidIV     decimal.Decimal `json:"mid_iv"`
	AskIV     decimal.Decimal `json:"ask_iv"`
	SmvVol    decimal.Decimal `json:"smv_vol"`
	UpdatedAt string          `json:"updated_at"`
}
