// Package api provides the brokerage market-data client used to fetch option chains.
//
// REST endpoints (Tradier):
//   - Production: https://api.tradier.com
//   - Sandbox: https://sandbox.tradier.com
//
// Endpoints used:
//   - GET /v1/markets/options/expirations?symbol=...
//   - GET /v1/markets/options/chains?symbol=...&expiration=...&greeks=true
package api
