package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"go.uber.org/zap"

	"shifts-etl/internal/model"
)

// APIConfig describes the paginated shifts endpoint and the retry budget for
// transient failures.
type APIConfig struct {
	BaseURL       string
	PageSize      int
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultAPIConfig returns the retry defaults used when a field is zero.
func DefaultAPIConfig(baseURL string) APIConfig {
	return APIConfig{
		BaseURL:       baseURL,
		PageSize:      100,
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

// ExtractionError is the fatal failure of the extract stage: the retry budget
// was exhausted, or a page could not be parsed at all.
type ExtractionError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// shiftsPage is one page of the shifts API.
type shiftsPage struct {
	Results []model.RawShiftRecord `json:"results"`
	Links   struct {
		Base string `json:"base"`
		Next string `json:"next"`
	} `json:"links"`
}

// FetchAll pages through the shifts API and yields raw records lazily. The
// sequence is finite and non-restartable; consuming it twice means fetching
// twice. Transient failures (transport errors, 5xx) are retried with bounded
// exponential backoff per request; a fatal failure is yielded once as an
// *ExtractionError and ends the sequence.
func FetchAll(ctx context.Context, client *http.Client, cfg APIConfig, log *zap.Logger) iter.Seq2[model.RawShiftRecord, error] {
	if client == nil {
		client = http.DefaultClient
	}
	cfg = withDefaults(cfg)

	return func(yield func(model.RawShiftRecord, error) bool) {
		url := fmt.Sprintf("%s?limit=%d", cfg.BaseURL, cfg.PageSize)
		pages := 0

		for url != "" {
			page, err := fetchPage(ctx, client, cfg, url)
			if err != nil {
				yield(nil, err)
				return
			}
			pages++
			log.Debug("fetched shifts page",
				zap.String("url", url),
				zap.Int("records", len(page.Results)))

			for _, rec := range page.Results {
				if !yield(rec, nil) {
					return
				}
			}

			if len(page.Results) == 0 || page.Links.Next == "" {
				break
			}
			url = page.Links.Base + page.Links.Next
		}

		log.Info("extraction complete", zap.Int("pages", pages))
	}
}

// fetchPage GETs one page, retrying transient failures up to the budget.
func fetchPage(ctx context.Context, client *http.Client, cfg APIConfig, url string) (*shiftsPage, error) {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, &ExtractionError{URL: url, Attempts: attempt - 1, Err: ctx.Err()}
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		page, retryable, err := doRequest(ctx, client, url)
		if err == nil {
			return page, nil
		}
		if !retryable {
			return nil, &ExtractionError{URL: url, Attempts: attempt, Err: err}
		}
		lastErr = err
	}

	return nil, &ExtractionError{URL: url, Attempts: cfg.MaxAttempts, Err: lastErr}
}

// doRequest performs a single GET. The bool reports whether the failure is
// transient: transport errors and 5xx retry, everything else is fatal.
func doRequest(ctx context.Context, client *http.Client, url string) (*shiftsPage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("server error: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	var page shiftsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, false, fmt.Errorf("decode page: %w", err)
	}
	return &page, false, nil
}

func withDefaults(cfg APIConfig) APIConfig {
	def := DefaultAPIConfig(cfg.BaseURL)
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	return cfg
}
