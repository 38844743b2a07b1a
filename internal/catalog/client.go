// Package catalog talks to the read-only catalog/usage API: accounts,
// categories, counterparty suggestions, exchange rates and balances. Every
// endpoint is cached through the two-tier cache, which doubles as request
// coalescing: rapid duplicate fetches inside a TTL window resolve from one
// upstream call.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"finflow/core/logger"
	"finflow/internal/cache"
	"finflow/internal/flow"
)

// TTLs carries the per-domain cache lifetimes.
type TTLs struct {
	Accounts   time.Duration
	Categories time.Duration
	Rates      time.Duration
	Balances   time.Duration
}

// Client implements the data-loading side of flow.Actors.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	accounts    *cache.Cache[[]flow.Account]
	categories  *cache.Cache[[]flow.Category]
	suggestions *cache.Cache[[]flow.Suggestion]
	rates       *cache.Cache[string]
	balances    *cache.Cache[string]
}

// New builds a catalog client. The durable store may be nil; the in-memory
// tier alone still coalesces requests for the session.
func New(baseURL, apiKey string, httpClient *http.Client, ttls TTLs, durable cache.Store) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		http:        httpClient,
		accounts:    cache.New("accounts", ttls.Accounts, cache.WithDurable[[]flow.Account](durable)),
		categories:  cache.New("categories", ttls.Categories, cache.WithDurable[[]flow.Category](durable)),
		suggestions: cache.New("suggestions", ttls.Categories, cache.WithDurable[[]flow.Suggestion](durable)),
		rates:       cache.New("rates", ttls.Rates, cache.WithDurable[string](durable)),
		balances:    cache.New("balances", ttls.Balances, cache.WithDurable[string](durable)),
	}
}

type accountUsage struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Usage    int    `json:"usage_count"`
}

type categoryUsage struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	BudgetName string `json:"budget_name"`
	Usage      int    `json:"usage_count"`
}

type nameUsage struct {
	Name  string `json:"name"`
	Usage int    `json:"usage_count"`
}

type rateResponse struct {
	Rate      string `json:"rate"`
	Converted string `json:"converted"`
}

// Accounts returns the usage-ranked account catalog for a user.
func (c *Client) Accounts(ctx context.Context, username string) ([]flow.Account, error) {
	key := cache.Key(username, "accounts")
	return c.accounts.GetOrFill(ctx, key, func(ctx context.Context) ([]flow.Account, error) {
		var raw []accountUsage
		if err := c.get(ctx, "/get_accounts_usage", url.Values{"user_name": {username}}, &raw); err != nil {
			return nil, err
		}
		accounts := make([]flow.Account, 0, len(raw))
		for _, a := range raw {
			accounts = append(accounts, flow.Account{ID: a.ID, Name: a.Name, Currency: a.Currency, Usage: a.Usage})
		}
		return sortAccounts(accounts), nil
	})
}

// Categories returns the usage-ranked category catalog scoped to a
// transaction kind.
func (c *Client) Categories(ctx context.Context, username string, kind flow.Kind) ([]flow.Category, error) {
	key := cache.Key(username, string(kind))
	return c.categories.GetOrFill(ctx, key, func(ctx context.Context) ([]flow.Category, error) {
		var raw []categoryUsage
		query := url.Values{"user_name": {username}, "type": {string(kind)}}
		if err := c.get(ctx, "/get_categories_usage", query, &raw); err != nil {
			return nil, err
		}
		categories := make([]flow.Category, 0, len(raw))
		for _, cat := range raw {
			categories = append(categories, flow.Category{ID: cat.ID, Name: cat.Name, BudgetName: cat.BudgetName, Usage: cat.Usage})
		}
		return sortCategories(categories), nil
	})
}

// Suggestions returns counterparty candidates: destinations for
// withdrawals, sources for deposits, scoped to the chosen category.
func (c *Client) Suggestions(ctx context.Context, username string, kind flow.Kind, categoryID int64) ([]flow.Suggestion, error) {
	endpoint := "/get_destination_name_usage"
	if kind == flow.KindDeposit {
		endpoint = "/get_source_name_usage"
	}
	key := cache.Key(username, string(kind), fmt.Sprintf("%d", categoryID))
	return c.suggestions.GetOrFill(ctx, key, func(ctx context.Context) ([]flow.Suggestion, error) {
		var raw []nameUsage
		query := url.Values{
			"user_name":   {username},
			"category_id": {fmt.Sprintf("%d", categoryID)},
		}
		if err := c.get(ctx, endpoint, query, &raw); err != nil {
			return nil, err
		}
		suggestions := make([]flow.Suggestion, 0, len(raw))
		for _, s := range raw {
			suggestions = append(suggestions, flow.Suggestion{Name: s.Name, Usage: s.Usage})
		}
		return sortSuggestions(suggestions), nil
	})
}

// Convert converts amount from one currency into another. The rate is the
// cached unit; the converted figure is recomputed locally so every amount
// shares one cached rate per currency pair.
func (c *Client) Convert(ctx context.Context, from, to, amount string) (string, string, error) {
	key := cache.Key(from, to)
	rate, err := c.rates.GetOrFill(ctx, key, func(ctx context.Context) (string, error) {
		var raw rateResponse
		query := url.Values{"from": {from}, "to": {to}, "amount": {"1"}}
		if err := c.get(ctx, "/exchange_rate", query, &raw); err != nil {
			return "", err
		}
		if raw.Rate == "" {
			return "", fmt.Errorf("catalog: empty rate for %s%s%s", from, cache.Delimiter, to)
		}
		return raw.Rate, nil
	})
	if err != nil {
		return "", "", err
	}

	rateDec, err := decimal.NewFromString(rate)
	if err != nil {
		return "", "", fmt.Errorf("catalog: bad rate %q: %w", rate, err)
	}
	amountDec, err := decimal.NewFromString(amount)
	if err != nil {
		return "", "", fmt.Errorf("catalog: bad amount %q: %w", amount, err)
	}
	converted := amountDec.Mul(rateDec).Round(2)
	return converted.String(), rate, nil
}

// Balance returns the user's total balance in the settlement currency.
func (c *Client) Balance(ctx context.Context, username string) (string, error) {
	key := cache.Key(username, "balance")
	return c.balances.GetOrFill(ctx, key, func(ctx context.Context) (string, error) {
		var raw struct {
			Balance string `json:"balance"`
		}
		if err := c.get(ctx, "/balance", url.Values{"user_name": {username}}, &raw); err != nil {
			return "", err
		}
		return raw.Balance, nil
	})
}

// InvalidateBalance drops the cached balance after a verified submission so
// the home screen refetches fresh data.
func (c *Client) InvalidateBalance(ctx context.Context, username string) {
	c.balances.Delete(ctx, cache.Key(username, "balance"))
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn(ctx, "catalog", "request.failed",
			slog.String("url", endpoint),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("catalog %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("catalog %s: read body: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn(ctx, "catalog", "request.http_error",
			slog.String("url", endpoint),
			slog.Int("http_code", resp.StatusCode),
		)
		return fmt.Errorf("catalog %s: status %s", endpoint, resp.Status)
	}

	if logger.ShouldSampleDebug() {
		logger.Debug(ctx, "catalog", "request.ok",
			slog.String("url", endpoint),
			slog.Duration("duration", logger.Took(start)),
		)
	}
	return json.Unmarshal(body, out)
}
