package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/andreasstove999/agroflow-system/internal/harvest"
)

// ErrRejected means the registry refused the update itself (400, 409, 422);
// retrying the same request cannot succeed. Auth failures are not rejections:
// they clear once the callback secrets agree again.
var ErrRejected = errors.New("registry rejected request")

type TokenSource interface {
	Token() (string, error)
}

type RegistryConfig struct {
	BaseURL string
	// Timeout bounds each attempt.
	Timeout     time.Duration
	MaxAttempts int
	// Tokens is optional; without it requests are sent unauthenticated.
	Tokens TokenSource
}

// RegistryClient reports billing outcomes to the registry status endpoint.
type RegistryClient struct {
	base        *Client
	cb          *gobreaker.CircuitBreaker
	tokens      TokenSource
	timeout     time.Duration
	maxAttempts int
	logger      *zap.Logger

	newBackOff func() backoff.BackOff
}

func NewRegistryClient(cfg RegistryConfig, logger *zap.Logger) (*RegistryClient, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	base, err := NewClient("registry", cfg.BaseURL, &http.Client{})
	if err != nil {
		return nil, err
	}

	c := &RegistryClient{
		base:        base,
		tokens:      cfg.Tokens,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "registry-status",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A rejection proves the registry is up.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return c, nil
}

type statusUpdateRequest struct {
	Estado      harvest.Status `json:"estado"`
	FacturaID   int64          `json:"factura_id"`
	FacturaUUID string         `json:"factura_uuid,omitempty"`
}

// MarkInvoiced sets the harvest to FACTURADA with the given invoice. Transient
// failures are retried with exponential backoff up to MaxAttempts; an open
// breaker or a rejection ends the attempts early.
func (c *RegistryClient) MarkInvoiced(ctx context.Context, harvestID int64, invoice harvest.InvoiceRef) error {
	body, err := json.Marshal(statusUpdateRequest{
		Estado:      harvest.StatusInvoiced,
		FacturaID:   invoice.ID,
		FacturaUUID: invoice.UUID,
	})
	if err != nil {
		return fmt.Errorf("marshal status update: %w", err)
	}
	path := "/cosechas/" + strconv.FormatInt(harvestID, 10) + "/estado"

	attempt := 0
	op := func() error {
		attempt++
		_, err := c.cb.Execute(func() (interface{}, error) {
			return nil, c.put(ctx, path, body)
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrRejected),
			errors.Is(err, gobreaker.ErrOpenState),
			errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(err)
		}
		c.logger.Warn("status callback attempt failed",
			zap.Int64("harvest_id", harvestID), zap.Int("attempt", attempt), zap.Error(err))
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxAttempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("mark harvest %d invoiced: %w", harvestID, err)
	}
	return nil
}

func (c *RegistryClient) put(ctx context.Context, path string, body []byte) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return err
		}
		headers.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.base.Do(attemptCtx, http.MethodPut, path, bytes.NewReader(body), headers)
	if err != nil {
		return fmt.Errorf("PUT %s: %w", path, err)
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusConflict,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: PUT %s: status %d: %s", ErrRejected, path, resp.StatusCode, bytes.TrimSpace(msg))
	default:
		return fmt.Errorf("PUT %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(msg))
	}
}
