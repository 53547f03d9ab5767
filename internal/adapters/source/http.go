package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/xerrors"

	"students-timetable/internal/domain"
	"students-timetable/internal/metrics"
)

const (
	defaultHTTPTimeout  = 15 * time.Second
	defaultMaxRetries   = 3
	maxRetryInterval    = 30 * time.Second
	maxPayloadSize      = 10 << 20
	defaultInitialRetry = 500 * time.Millisecond
)

// ErrSourceNotConfigured - для источника не задан адрес или путь.
var ErrSourceNotConfigured = errors.New("source is not configured")

// HTTPOption - функциональная опция для HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient задает HTTP-клиент.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		if c != nil {
			s.client = c
		}
	}
}

// WithMaxRetries задает число повторов после первой попытки.
func WithMaxRetries(n int) HTTPOption {
	return func(s *HTTPSource) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithInitialInterval задает первую паузу между попытками.
func WithInitialInterval(d time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		if d > 0 {
			s.initialInterval = d
		}
	}
}

// WithHTTPLogger устанавливает логгер.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(s *HTTPSource) {
		if l != nil {
			s.log = l
		}
	}
}

// HTTPSource загружает страницы источников по HTTP с экспоненциальными повторами.
// Ошибки транспорта и ответы 5xx повторяются, ответы 4xx считаются окончательными.
type HTTPSource struct {
	urls            map[domain.Source]string
	client          *http.Client
	maxRetries      int
	initialInterval time.Duration
	log             *slog.Logger
}

// NewHTTPSource создает новый экземпляр HTTPSource.
func NewHTTPSource(dayURL, weekURL string, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		urls: map[domain.Source]string{
			domain.SourceDay:  dayURL,
			domain.SourceWeek: weekURL,
		},
		client:          &http.Client{Timeout: defaultHTTPTimeout},
		maxRetries:      defaultMaxRetries,
		initialInterval: defaultInitialRetry,
		log:             slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch загружает страницу источника.
func (s *HTTPSource) Fetch(ctx context.Context, source domain.Source) ([]byte, error) {
	url := s.urls[source]
	if url == "" {
		return nil, xerrors.Errorf("no url for source %s: %w", source, ErrSourceNotConfigured)
	}

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = s.initialInterval
	backoffCfg.MaxInterval = maxRetryInterval

	for attempt := 0; ; attempt++ {
		data, err := s.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, permanent.Unwrap()
		}
		if attempt >= s.maxRetries || ctx.Err() != nil {
			return nil, xerrors.Errorf("fetch %s failed after %d attempts: %w", source, attempt+1, err)
		}

		metrics.GetMetrics().ExtractionRetries.WithLabelValues(string(source)).Inc()
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = maxRetryInterval
		}
		s.log.Warn("source fetch failed, retrying",
			slog.String("source", string(source)),
			slog.Int("attempt", attempt+1),
			slog.Duration("sleep", sleep),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func (s *HTTPSource) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(xerrors.Errorf("failed to build request: %w", err))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, xerrors.Errorf("unexpected status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, backoff.Permanent(xerrors.Errorf("unexpected status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize))
	if err != nil {
		return nil, xerrors.Errorf("failed to read body: %w", err)
	}
	return data, nil
}
