package bars

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"kestrel/internal/domain"
	"kestrel/internal/market"
	"kestrel/internal/util"
)

// Fetcher pulls daily bars from a remote data source.
type Fetcher interface {
	Fetch(ctx context.Context, codes []string, start, end time.Time) ([]domain.Bar, error)
}

// AlpacaFetcher fetches daily bars through the Alpaca market-data API,
// batched and rate-limited. Codes are sent as bare symbols and mapped
// back on the way in.
type AlpacaFetcher struct {
	client    *marketdata.Client
	batchSize int
	limiter   *util.RateLimiter
}

// NewAlpacaFetcher creates a fetcher with the given credentials.
// batchSize caps symbols per request; ratePerMinute caps requests.
func NewAlpacaFetcher(apiKey, apiSecret, dataURL string, batchSize, ratePerMinute int) *AlpacaFetcher {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &AlpacaFetcher{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   dataURL,
		}),
		batchSize: batchSize,
		limiter:   util.NewRateLimiter(ratePerMinute),
	}
}

// Fetch retrieves daily bars for all codes over [start, end].
func (f *AlpacaFetcher) Fetch(ctx context.Context, codes []string, start, end time.Time) ([]domain.Bar, error) {
	symbolToCode := make(map[string]string, len(codes))
	symbols := make([]string, 0, len(codes))
	for _, code := range codes {
		symbol := market.Symbol(code)
		symbolToCode[symbol] = code
		symbols = append(symbols, symbol)
	}

	var bars []domain.Bar
	for from := 0; from < len(symbols); from += f.batchSize {
		to := from + f.batchSize
		if to > len(symbols) {
			to = len(symbols)
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		multiBars, err := f.client.GetMultiBars(symbols[from:to], marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
		})
		if err != nil {
			return nil, fmt.Errorf("GetMultiBars: %w", err)
		}
		for symbol, rows := range multiBars {
			code := symbolToCode[symbol]
			for _, b := range rows {
				bars = append(bars, domain.Bar{
					Code:      code,
					Timestamp: b.Timestamp,
					Open:      b.Open,
					High:      b.High,
					Low:       b.Low,
					Close:     b.Close,
					Volume:    int64(b.Volume),
					Amount:    b.VWAP * float64(b.Volume),
				})
			}
		}
	}
	return bars, nil
}
