package ingestion

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"trailing-lab/internal/domain"
)

// Default candle client configuration.
const (
	DefaultCandleEndpoint = "https://api.exchange.coinbase.com"
	DefaultTimeout        = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 1 * time.Second
	DefaultMaxDelay       = 10 * time.Second
	DefaultBackoffMult    = 2.0

	// maxCandlesPerRequest is the exchange limit per candles call.
	maxCandlesPerRequest = 300
)

// Candle is one OHLCV bucket. Time is the bucket start in Unix seconds.
type Candle struct {
	Time   int64
	Low    float64
	High   float64
	Open   float64
	Close  float64
	Volume float64
}

// CandleClient fetches historical candles over the public REST API.
type CandleClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	log         *zap.Logger
}

// CandleOption configures CandleClient.
type CandleOption func(*CandleClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) CandleOption {
	return func(c *CandleClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) CandleOption {
	return func(c *CandleClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) CandleOption {
	return func(c *CandleClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) CandleOption {
	return func(c *CandleClient) {
		c.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) CandleOption {
	return func(c *CandleClient) {
		c.log = l
	}
}

// NewCandleClient creates a client. An empty endpoint uses DefaultCandleEndpoint.
func NewCandleClient(endpoint string, opts ...CandleOption) *CandleClient {
	if endpoint == "" {
		endpoint = DefaultCandleEndpoint
	}
	c := &CandleClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchCandles returns candles for pair in [start, end), oldest first and
// without duplicate bucket times. The range is split into requests of at
// most maxCandlesPerRequest buckets.
func (c *CandleClient) FetchCandles(ctx context.Context, pair string, granularity time.Duration, start, end time.Time) ([]Candle, error) {
	if granularity < time.Second {
		return nil, fmt.Errorf("granularity %v below one second", granularity)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("invalid range: start %s not before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	step := granularity * maxCandlesPerRequest
	seen := make(map[int64]bool)
	var out []Candle

	for s := start; s.Before(end); s = s.Add(step) {
		e := s.Add(step)
		if e.After(end) {
			e = end
		}

		window, err := c.fetchWindow(ctx, pair, granularity, s, e)
		if err != nil {
			return out, err
		}
		for _, cd := range window {
			if seen[cd.Time] {
				continue
			}
			seen[cd.Time] = true
			out = append(out, cd)
		}
		c.log.Debug("fetched candles",
			zap.String("pair", pair),
			zap.Time("start", s),
			zap.Time("end", e),
			zap.Int("count", len(window)))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (c *CandleClient) fetchWindow(ctx context.Context, pair string, granularity time.Duration, start, end time.Time) ([]Candle, error) {
	q := url.Values{}
	q.Set("granularity", strconv.FormatInt(int64(granularity/time.Second), 10))
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	reqURL := fmt.Sprintf("%s/products/%s/candles?%s", c.endpoint, url.PathEscape(pair), q.Encode())

	var rows [][]float64
	if err := c.get(ctx, reqURL, &rows); err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(rows))
	for _, r := range rows {
		if len(r) < 6 {
			continue
		}
		candles = append(candles, Candle{
			Time:   int64(r[0]),
			Low:    r[1],
			High:   r[2],
			Open:   r[3],
			Close:  r[4],
			Volume: r[5],
		})
	}
	return candles, nil
}

// get performs a GET with retries and exponential backoff.
func (c *CandleClient) get(ctx context.Context, reqURL string, result interface{}) error {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting and server errors
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			c.log.Warn("candle request failed, retrying", zap.Int("attempt", attempt+1), zap.Error(lastErr))
			continue
		}

		if resp.StatusCode != http.StatusOK {
			// Client errors are not retried
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}

		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// CandleTicks converts candles to ticks priced at the close, timed at the
// bucket start in milliseconds.
func CandleTicks(candles []Candle) []domain.Tick {
	ticks := make([]domain.Tick, len(candles))
	for i, cd := range candles {
		ticks[i] = domain.Tick{Time: domain.Millis(cd.Time * 1000), Price: cd.Close}
	}
	return ticks
}

// WriteCandlesCSV writes candles as "time,close" rows with ISO-8601 UTC times,
// a format CSVSource reads back. The header is written when header is true.
func WriteCandlesCSV(w io.Writer, candles []Candle, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write([]string{"time", "close"}); err != nil {
			return err
		}
	}
	for _, cd := range candles {
		row := []string{
			time.Unix(cd.Time, 0).UTC().Format("2006-01-02T15:04:05.000Z"),
			strconv.FormatFloat(cd.Close, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
