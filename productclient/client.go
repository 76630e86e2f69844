package productclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"marketplace/apperr"
	"marketplace/circuitbreaker"
	"marketplace/middleware"
	"marketplace/models"
)

var errClient = errors.New("product service rejected request")

// OwnersResponse is the body of GET /products/owners.
type OwnersResponse struct {
	Owners map[string]string `json:"owners"`
}

// Client talks to product-service over HTTP. Calls are not retried; an open
// breaker fails fast with a gateway error.
type Client struct {
	http    *resty.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func New(baseURL string, logger *zap.Logger) *Client {
	breaker := circuitbreaker.NewCircuitBreaker(5, 30*time.Second,
		circuitbreaker.WithFailurePredicate(func(err error) bool {
			return !errors.Is(err, errClient) && !errors.Is(err, context.Canceled)
		}),
	)
	return NewWithClient(resty.New().SetBaseURL(baseURL), breaker, logger)
}

func NewWithClient(client *resty.Client, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *Client {
	client.
		SetTimeout(5*time.Second).
		SetHeader("Accept", "application/json")
	return &Client{http: client, breaker: breaker, logger: logger}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req
}

func (c *Client) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	ctx, span := otel.Tracer("product-client").Start(ctx, "GetProduct")
	defer span.End()

	var product models.Product
	var status int
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := c.request(ctx).
			SetPathParam("id", productID).
			SetResult(&product).
			Get("/products/{id}")
		if err != nil {
			return err
		}
		status = resp.StatusCode()
		return checkStatus(resp)
	})
	if err != nil {
		span.RecordError(err)
		if status == http.StatusNotFound {
			return nil, apperr.NotFound(fmt.Sprintf("product %s not found", productID))
		}
		c.logger.Error("Failed to fetch product",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("product_id", productID),
			zap.Error(err),
		)
		return nil, apperr.Gateway("product service unavailable", err)
	}
	return &product, nil
}

// ProductOwners maps each known product id to its vendor id. Unknown ids are
// absent from the result.
func (c *Client) ProductOwners(ctx context.Context, productIDs []string) (map[string]string, error) {
	ctx, span := otel.Tracer("product-client").Start(ctx, "ProductOwners")
	defer span.End()

	if len(productIDs) == 0 {
		return map[string]string{}, nil
	}

	var body OwnersResponse
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := c.request(ctx).
			SetQueryParam("ids", strings.Join(productIDs, ",")).
			SetResult(&body).
			Get("/products/owners")
		if err != nil {
			return err
		}
		return checkStatus(resp)
	})
	if err != nil {
		span.RecordError(err)
		c.logger.Error("Failed to resolve product owners",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Int("product_count", len(productIDs)),
			zap.Error(err),
		)
		return nil, apperr.Gateway("product service unavailable", err)
	}
	if body.Owners == nil {
		body.Owners = map[string]string{}
	}
	return body.Owners, nil
}

func checkStatus(resp *resty.Response) error {
	switch {
	case resp.IsSuccess():
		return nil
	case resp.StatusCode() >= 400 && resp.StatusCode() < 500:
		return fmt.Errorf("%w: status %d", errClient, resp.StatusCode())
	default:
		return fmt.Errorf("product service returned status %d", resp.StatusCode())
	}
}
