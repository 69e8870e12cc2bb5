package cryptocompare

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	clierr "github.com/gustavo/advisor-cli/internal/errors"
	"github.com/gustavo/advisor-cli/internal/httpx"
	"github.com/gustavo/advisor-cli/internal/model"
	"github.com/gustavo/advisor-cli/internal/providers"
)

const defaultAPIBase = "https://min-api.cryptocompare.com"

// Client reads spot and historical prices from the CryptoCompare min-api.
// It performs single attempts only; callers wrap lookups in the feed retry
// policy.
type Client struct {
	http    *httpx.Client
	apiBase string
	apiKey  string
}

func New(httpClient *httpx.Client, apiBase, apiKey string) *Client {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = defaultAPIBase
	}
	return &Client{
		http:    httpClient,
		apiBase: strings.TrimRight(apiBase, "/"),
		apiKey:  apiKey,
	}
}

func (c *Client) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Apikey " + c.apiKey}
}

type rawQuote struct {
	Price           float64 `json:"PRICE"`
	ChangePct24Hour float64 `json:"CHANGEPCT24HOUR"`
}

type priceMultiFullResp struct {
	Raw map[string]map[string]rawQuote `json:"RAW"`
}

// Quote returns the USD spot price and 24h change for one symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (providers.Quote, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return providers.Quote{}, clierr.New(clierr.CodeUsage, "symbol is required")
	}
	endpoint := fmt.Sprintf("%s/data/pricemultifull?fsyms=%s&tsyms=USD", c.apiBase, url.QueryEscape(sym))

	var resp priceMultiFullResp
	if _, err := c.http.GetJSON(ctx, endpoint, c.headers(), &resp); err != nil {
		return providers.Quote{}, err
	}
	quote, ok := resp.Raw[sym]["USD"]
	if !ok {
		return providers.Quote{}, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("price feed has no USD quote for %s", sym))
	}
	return providers.Quote{Price: quote.Price, Change24h: quote.ChangePct24Hour}, nil
}

type histoPoint struct {
	Time  int64   `json:"time"`
	Close float64 `json:"close"`
}

type histoDayResp struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		Data []histoPoint `json:"Data"`
	} `json:"Data"`
}

// History returns up to days of daily closing prices, oldest first.
func (c *Client) History(ctx context.Context, symbol string, days int) (model.PriceHistory, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return model.PriceHistory{}, clierr.New(clierr.CodeUsage, "symbol is required")
	}
	if days <= 0 {
		days = 30
	}
	endpoint := fmt.Sprintf("%s/data/v2/histoday?fsym=%s&tsym=USD&limit=%d", c.apiBase, url.QueryEscape(sym), days)

	var resp histoDayResp
	if _, err := c.http.GetJSON(ctx, endpoint, c.headers(), &resp); err != nil {
		return model.PriceHistory{}, err
	}
	if strings.EqualFold(resp.Response, "Error") {
		return model.PriceHistory{}, clierr.New(clierr.CodeUnavailable, "price history feed error: "+resp.Message)
	}

	history := model.PriceHistory{Symbol: sym, Interval: "1d"}
	for _, point := range resp.Data.Data {
		history.Points = append(history.Points, model.PricePoint{Timestamp: point.Time, Price: point.Close})
	}
	return history, nil
}
