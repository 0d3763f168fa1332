// Package subgraph is a GraphQL client for the debt-purchasing subgraph
// indexer. It mirrors on-chain state (users, debt positions, order
// executions, cancellations, token prices, asset risk parameters) through
// paginated queries, failing over across an ordered list of endpoints.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
)

// pageSize is the first/skip page size used by every fetcher.
const pageSize = 1000

// Endpoint is one indexer endpoint. The API key may be empty for public
// endpoints.
type Endpoint struct {
	URL    string
	APIKey string
}

// AllEndpointsFailed is returned by executeQuery when every configured
// endpoint failed. Last carries the final endpoint's error.
type AllEndpointsFailed struct {
	Last error
}

func (e *AllEndpointsFailed) Error() string {
	return fmt.Sprintf("subgraph: all endpoints failed: %v", e.Last)
}

func (e *AllEndpointsFailed) Unwrap() error { return e.Last }

// Client queries the subgraph over an ordered endpoint list with sticky
// round-robin failover: each query starts at the endpoint that last
// succeeded, so a known-bad primary is not hammered on every call.
type Client struct {
	endpoints  []Endpoint
	httpClient *http.Client
	logger     *slog.Logger

	mu       sync.Mutex
	lastGood int
}

// NewClient creates a subgraph client. Endpoints are tried in order,
// primary first; at least one endpoint is required.
func NewClient(endpoints []Endpoint, logger *slog.Logger) *Client {
	return &Client{
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With(slog.String("component", "subgraph")),
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchUsers returns all users, paged by first/skip.
func (c *Client) FetchUsers(ctx context.Context) ([]domain.User, error) {
	query := `
		query Users($first: Int!, $skip: Int!) {
			users(
				first: $first
				skip: $skip
				orderBy: lastUpdatedAt
				orderDirection: desc
			) {
				id
				nonce
				lastUpdatedAt
			}
		}
	`

	var users []domain.User
	err := c.fetchPaged(ctx, query, func(data json.RawMessage) (int, error) {
		var result struct {
			Users []struct {
				ID            string `json:"id"`
				Nonce         string `json:"nonce"`
				LastUpdatedAt string `json:"lastUpdatedAt"`
			} `json:"users"`
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return 0, fmt.Errorf("decode users: %w", err)
		}
		for _, u := range result.Users {
			users = append(users, domain.User{
				ID:            u.ID,
				Nonce:         parseUint(u.Nonce),
				LastUpdatedAt: parseUnixTime(u.LastUpdatedAt),
			})
		}
		return len(result.Users), nil
	})
	if err != nil {
		return nil, fmt.Errorf("subgraph: fetch users: %w", err)
	}
	return users, nil
}

// FetchDebtPositions returns all debt positions with their nested
// collateral and debt entries.
func (c *Client) FetchDebtPositions(ctx context.Context) ([]domain.DebtPosition, error) {
	query := `
		query DebtPositions($first: Int!, $skip: Int!) {
			debtPositions(
				first: $first
				skip: $skip
				orderBy: lastUpdatedAt
				orderDirection: desc
			) {
				id
				owner
				nonce
				lastUpdatedAt
				collaterals {
					token
					amount
				}
				debts {
					token
					amount
					interestRateMode
				}
			}
		}
	`

	var positions []domain.DebtPosition
	err := c.fetchPaged(ctx, query, func(data json.RawMessage) (int, error) {
		var result struct {
			DebtPositions []struct {
				ID            string `json:"id"`
				Owner         string `json:"owner"`
				Nonce         string `json:"nonce"`
				LastUpdatedAt string `json:"lastUpdatedAt"`
				Collaterals   []struct {
					Token  string `json:"token"`
					Amount string `json:"amount"`
				} `json:"collaterals"`
				Debts []struct {
					Token            string `json:"token"`
					Amount           string `json:"amount"`
					InterestRateMode string `json:"interestRateMode"`
				} `json:"debts"`
			} `json:"debtPositions"`
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return 0, fmt.Errorf("decode debt positions: %w", err)
		}
		for _, p := range result.DebtPositions {
			pos := domain.DebtPosition{
				ID:            p.ID,
				Owner:         p.Owner,
				Nonce:         parseUint(p.Nonce),
				LastUpdatedAt: parseUnixTime(p.LastUpdatedAt),
			}
			for _, col := range p.Collaterals {
				pos.Collaterals = append(pos.Collaterals, domain.CollateralEntry{
					Token:  col.Token,
					Amount: col.Amount,
				})
			}
			for _, d := range p.Debts {
				pos.Debts = append(pos.Debts, domain.DebtEntry{
					Token:            d.Token,
					Amount:           d.Amount,
					InterestRateMode: int(parseUint(d.InterestRateMode)),
				})
			}
			positions = append(positions, pos)
		}
		return len(result.DebtPositions), nil
	})
	if err != nil {
		return nil, fmt.Errorf("subgraph: fetch debt positions: %w", err)
	}
	return positions, nil
}

// FetchFullOrderExecutions returns executions of full sell orders.
func (c *Client) FetchFullOrderExecutions(ctx context.Context) ([]domain.OrderExecutionEvent, error) {
	events, err := c.fetchExecutions(ctx, "fullOrderExecutions", domain.OrderTypeFull)
	if err != nil {
		return nil, fmt.Errorf("subgraph: fetch full order executions: %w", err)
	}
	return events, nil
}

// FetchPartialOrderExecutions returns executions of partial sell orders.
func (c *Client) FetchPartialOrderExecutions(ctx context.Context) ([]domain.OrderExecutionEvent, error) {
	events, err := c.fetchExecutions(ctx, "partialOrderExecutions", domain.OrderTypePartial)
	if err != nil {
		return nil, fmt.Errorf("subgraph: fetch partial order executions: %w", err)
	}
	return events, nil
}

// fetchExecutions runs the shared execution-event query against the named
// collection. Both collections expose the same fields.
func (c *Client) fetchExecutions(ctx context.Context, collection string, typ domain.OrderType) ([]domain.OrderExecutionEvent, error) {
	query := fmt.Sprintf(`
		query Executions($first: Int!, $skip: Int!) {
			%s(
				first: $first
				skip: $skip
				orderBy: blockTimestamp
				orderDirection: desc
			) {
				titleHash
				buyer
				transactionHash
				blockNumber
				usdValue
				usdBonus
				blockTimestamp
			}
		}
	`, collection)

	var events []domain.OrderExecutionEvent
	err := c.fetchPaged(ctx, query, func(data json.RawMessage) (int, error) {
		var result map[string][]struct {
			TitleHash       string `json:"titleHash"`
			Buyer           string `json:"buyer"`
			TransactionHash string `json:"transactionHash"`
			BlockNumber     string `json:"blockNumber"`
			USDValue        string `json:"usdValue"`
			USDBonus        string `json:"usdBonus"`
			BlockTimestamp  string `json:"blockTimestamp"`
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return 0, fmt.Errorf("decode %s: %w", collection, err)
		}
		rows := result[collection]
		for _, e := range rows {
			events = append(events, domain.OrderExecutionEvent{
				TitleHash:   e.TitleHash,
				OrderType:   typ,
				Buyer:       e.Buyer,
				TxHash:      e.TransactionHash,
				BlockNumber: parseUint(e.BlockNumber),
				USDValue:    e.USDValue,
				USDBonus:    e.USDBonus,
				Timestamp:   int64(parseUint(e.BlockTimestamp)),
			})
		}
		return len(rows), nil
	})
	return events, err
}

// FetchCancelledOrders returns explicit on-chain order cancellations.
func (c *Client) FetchCancelledOrders(ctx context.Context) ([]domain.OrderCancellation, error) {
	query := `
		query CancelledOrders($first: Int!, $skip: Int!) {
			cancelledOrders(
				first: $first
				skip: $skip
				orderBy: blockTimestamp
				orderDirection: desc
			) {
				titleHash
				orderType
				blockTimestamp
			}
		}
	`

	var cancellations []domain.OrderCancellation
	err := c.fetchPaged(ctx, query, func(data json.RawMessage) (int, error) {
		var result struct {
			CancelledOrders []struct {
				TitleHash      string `json:"titleHash"`
				OrderType      string `json:"orderType"`
				BlockTimestamp string `json:"blockTimestamp"`
			} `json:"cancelledOrders"`
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return 0, fmt.Errorf("decode cancelled orders: %w", err)
		}
		for _, e := range result.CancelledOrders {
			cancellations = append(cancellations, domain.OrderCancellation{
				TitleHash: e.TitleHash,
				OrderType: domain.OrderType(strings.ToUpper(e.OrderType)),
				Timestamp: int64(parseUint(e.BlockTimestamp)),
			})
		}
		return len(result.CancelledOrders), nil
	})
	if err != nil {
		return nil, fmt.Errorf("subgraph: fetch cancelled orders: %w", err)
	}
	return cancellations, nil
}

// FetchPriceTokens returns tokens with their oracle prices.
func (c *Client) FetchPriceTokens(ctx context.Context) ([]domain.Token, error) {
	query := `
		query PriceTokens($first: Int!, $skip: Int!) {
			tokens(
				first: $first
				skip: $skip
				orderBy: lastUpdatedAt
				orderDirection: desc
			) {
				id
				symbol
				decimals
				priceUSD
				oracleSource
				lastUpdatedAt
			}
		}
	`

	var tokens []domain.Token
	err := c.fetchPaged(ctx, query, func(data json.RawMessage) (int, error) {
		var result struct {
			Tokens []struct {
				ID            string `json:"id"`
				Symbol        string `json:"symbol"`
				Decimals      int    `json:"decimals"`
				PriceUSD      string `json:"priceUSD"`
				OracleSource  string `json:"oracleSource"`
				LastUpdatedAt string `json:"lastUpdatedAt"`
			} `json:"tokens"`
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return 0, fmt.Errorf("decode tokens: %w", err)
		}
		for _, t := range result.Tokens {
			tokens = append(tokens, domain.Token{
				ID:            t.ID,
				Symbol:        t.Symbol,
				Decimals:      t.Decimals,
				PriceUSD:      t.PriceUSD,
				OracleSource:  t.OracleSource,
				LastUpdatedAt: parseUnixTime(t.LastUpdatedAt),
			})
		}
		return len(result.Tokens), nil
	})
	if err != nil {
		return nil, fmt.Errorf("subgraph: fetch price tokens: %w", err)
	}
	return tokens, nil
}

// FetchAssetConfigurations returns per-token liquidation parameters.
func (c *Client) FetchAssetConfigurations(ctx context.Context) ([]domain.AssetConfig, error) {
	query := `
		query AssetConfigurations($first: Int!, $skip: Int!) {
			assetConfigurations(
				first: $first
				skip: $skip
				orderBy: lastUpdatedAt
				orderDirection: desc
			) {
				id
				liquidationThreshold
				liquidationBonus
				reserveFactor
				active
				lastUpdatedAt
			}
		}
	`

	var configs []domain.AssetConfig
	err := c.fetchPaged(ctx, query, func(data json.RawMessage) (int, error) {
		var result struct {
			AssetConfigurations []struct {
				ID                   string `json:"id"`
				LiquidationThreshold string `json:"liquidationThreshold"`
				LiquidationBonus     string `json:"liquidationBonus"`
				ReserveFactor        string `json:"reserveFactor"`
				Active               bool   `json:"active"`
				LastUpdatedAt        string `json:"lastUpdatedAt"`
			} `json:"assetConfigurations"`
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return 0, fmt.Errorf("decode asset configurations: %w", err)
		}
		for _, a := range result.AssetConfigurations {
			configs = append(configs, domain.AssetConfig{
				Token:                a.ID,
				LiquidationThreshold: int64(parseUint(a.LiquidationThreshold)),
				LiquidationBonus:     int64(parseUint(a.LiquidationBonus)),
				ReserveFactor:        int64(parseUint(a.ReserveFactor)),
				Active:               a.Active,
				LastUpdatedAt:        parseUnixTime(a.LastUpdatedAt),
			})
		}
		return len(result.AssetConfigurations), nil
	})
	if err != nil {
		return nil, fmt.Errorf("subgraph: fetch asset configurations: %w", err)
	}
	return configs, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// fetchPaged drives a first/skip query to exhaustion. decode consumes one
// page of data and returns the number of rows it contained; paging stops on
// the first short page.
func (c *Client) fetchPaged(ctx context.Context, query string, decode func(json.RawMessage) (int, error)) error {
	for skip := 0; ; skip += pageSize {
		data, err := c.executeQuery(ctx, query, map[string]any{
			"first": pageSize,
			"skip":  skip,
		})
		if err != nil {
			return err
		}
		n, err := decode(data)
		if err != nil {
			return err
		}
		if n < pageSize {
			return nil
		}
	}
}

// executeQuery runs one GraphQL query with sticky round-robin failover.
// Each endpoint gets exactly one attempt, starting from the endpoint that
// last succeeded; the succeeding index is remembered for the next call.
func (c *Client) executeQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	start := c.lastGood
	c.mu.Unlock()

	var lastErr error
	for i := 0; i < len(c.endpoints); i++ {
		idx := (start + i) % len(c.endpoints)
		data, err := c.queryEndpoint(ctx, c.endpoints[idx], query, variables)
		if err != nil {
			lastErr = err
			c.logger.Warn("indexer endpoint failed",
				slog.Int("endpoint", idx),
				slog.String("error", err.Error()))
			continue
		}

		c.mu.Lock()
		c.lastGood = idx
		c.mu.Unlock()
		return data, nil
	}

	return nil, &AllEndpointsFailed{Last: lastErr}
}

// queryEndpoint posts the query to a single endpoint and unwraps the
// GraphQL envelope.
func (c *Client) queryEndpoint(ctx context.Context, ep Endpoint, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if key := strings.TrimSpace(ep.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}

func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

func parseUnixTime(s string) time.Time {
	return time.Unix(int64(parseUint(s)), 0).UTC()
}
