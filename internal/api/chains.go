package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rickgao/options-data/internal/model"
)

// GetExpirations returns every listed expiration date (YYYY-MM-DD) for a symbol,
// including non-standard roots.
func (c *Client) GetExpirations(ctx context.Context, symbol string) ([]string, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("includeAllRoots", "true")

	var resp ExpirationsResponse
	if err := c.get(ctx, "/v1/markets/options/expirations", query, &resp); err != nil {
		return nil, fmt.Errorf("get expirations %s: %w", symbol, err)
	}

	return resp.Dates(), nil
}

// GetChain returns the contracts of one expiration, with greeks.
func (c *Client) GetChain(ctx context.Context, symbol, expiration string) ([]APIOption, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("expiration", expiration)
	query.Set("greeks", "true")

	var resp ChainResponse
	if err := c.get(ctx, "/v1/markets/options/chains", query, &resp); err != nil {
		return nil, fmt.Errorf("get chain %s %s: %w", symbol, expiration, err)
	}

	return resp.Contracts(), nil
}

// GetOptionChain fetches the full chain of a symbol across all expirations.
// A symbol with no listed expirations yields an empty chain.
func (c *Client) GetOptionChain(ctx context.Context, symbol string) (*model.Chain, error) {
	expirations, err := c.GetExpirations(ctx, symbol)
	if err != nil {
		return nil, err
	}

	chain := &model.Chain{
		Underlying: symbol,
		FetchedAt:  c.now().UTC(),
	}

	for _, exp := range expirations {
		options, err := c.GetChain(ctx, symbol, exp)
		if err != nil {
			return nil, err
		}

		for i := range options {
			contract, err := options[i].ToModel(symbol)
			if err != nil {
				c.logger.Warn("skipping contract", "underlying", symbol, "error", err)
				continue
			}
			chain.Contracts = append(chain.Contracts, contract)
		}
	}

	c.logger.Debug("fetched option chain",
		"underlying", symbol,
		"expirations", len(expirations),
		"contracts", chain.Len(),
	)

	return chain, nil
}
