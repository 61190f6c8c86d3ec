package submit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gabrielmiguelok/liveintake/pkg/logging"
	"github.com/gabrielmiguelok/liveintake/pkg/retry"
	"github.com/gabrielmiguelok/liveintake/pkg/security"
)

// HTTPSubmitter posts sanitized values to an endpoint as
// application/x-www-form-urlencoded. 5xx answers and network errors are
// retried with backoff; 4xx answers are final.
type HTTPSubmitter struct {
	endpoint  string
	client    *http.Client
	retry     *retry.Config
	breaker   *retry.Breaker
	sanitizer *security.Sanitizer
	logger    logging.Logger
	now       func() time.Time
}

// HTTPOption configures an HTTPSubmitter.
type HTTPOption func(*HTTPSubmitter)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSubmitter) {
		s.client = c
	}
}

// WithRetry sets the retry policy.
func WithRetry(c *retry.Config) HTTPOption {
	return func(s *HTTPSubmitter) {
		s.retry = c
	}
}

// WithBreaker sets the circuit breaker shared by all submissions.
func WithBreaker(b *retry.Breaker) HTTPOption {
	return func(s *HTTPSubmitter) {
		s.breaker = b
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) HTTPOption {
	return func(s *HTTPSubmitter) {
		s.logger = l
	}
}

// NewHTTPSubmitter creates a submitter for endpoint.
func NewHTTPSubmitter(endpoint string, opts ...HTTPOption) (*HTTPSubmitter, error) {
	if !security.IsValidURL(endpoint) {
		return nil, fmt.Errorf("submit endpoint %q is not an http(s) URL", endpoint)
	}

	s := &HTTPSubmitter{
		endpoint:  endpoint,
		client:    &http.Client{Timeout: 15 * time.Second},
		retry:     retry.DefaultConfig(),
		breaker:   retry.NewBreaker(nil),
		sanitizer: security.Strict(),
		logger:    logging.NopLogger{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit sanitizes values and posts them. Every attempt carries the same
// Idempotency-Key header, which is also the receipt id.
func (s *HTTPSubmitter) Submit(ctx context.Context, values url.Values) (Receipt, error) {
	body := s.sanitizer.Values(values).Encode()
	id := uuid.NewString()

	cfg := *s.retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Warn("submission attempt failed",
			logging.String("submission_id", id),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Err(err),
		)
	}

	status, err := retry.RetryWithResult(ctx, &cfg, func() (int, error) {
		var status int
		err := s.breaker.Execute(func() error {
			var err error
			status, err = s.post(ctx, id, body)
			return err
		})
		return status, err
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("submit %s: %w", id, err)
	}

	s.logger.Info("submission delivered", logging.String("submission_id", id), logging.Int("status", status))
	return Receipt{ID: id, At: s.now()}, nil
}

// post sends one attempt and returns the status the endpoint answered.
func (s *HTTPSubmitter) post(ctx context.Context, id, body string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(body))
	if err != nil {
		return 0, retry.NewPermanentError(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", id)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode < 400:
		return resp.StatusCode, nil
	case resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return resp.StatusCode, retry.NewPermanentError(fmt.Errorf("%w: %s: %s",
			ErrRejected, resp.Status, security.TruncateText(strings.TrimSpace(string(snippet)), 120)))
	default:
		return resp.StatusCode, fmt.Errorf("endpoint answered %s", resp.Status)
	}
}
