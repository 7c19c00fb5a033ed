package httpclassifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/scan-triage/internal/core/domain"
	"github.com/kirillkom/scan-triage/internal/infrastructure/resilience"
)

const (
	DefaultTimeout = 20 * time.Second
	operation      = "classifier.classify"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		if c != nil {
			client.httpClient = c
		}
	}
}

// WithResilienceExecutor wraps every call in retry and circuit breaking.
func WithResilienceExecutor(executor *resilience.Executor) Option {
	return func(client *Client) {
		client.executor = executor
	}
}

// New builds a classifier client. The timeout bounds a whole call; hitting it
// counts as the classifier being unreachable.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Classify(ctx context.Context, req domain.ClassificationRequest) (domain.ClassifierResponse, error) {
	if strings.TrimSpace(req.Token) == "" {
		return domain.ClassifierResponse{}, domain.WrapError(domain.ErrInvalidInput, operation, fmt.Errorf("correlation token is required"))
	}

	var resp domain.ClassifierResponse
	call := func(callCtx context.Context) error {
		raw, err := c.getJSON(callCtx, req)
		if err != nil {
			return err
		}
		decoded, err := DecodeResponse(raw)
		if err != nil {
			return err
		}
		resp = decoded
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, classifyClassifierError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.ClassifierResponse{}, domain.WrapError(domain.ErrDependencyUnavailable, operation, err)
	}
	return resp, nil
}
