package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/crm/internal/version"
)

// MaxResponseBytes - предел размера ответа для обоих транспортов.
const MaxResponseBytes = 64 << 20

// Transport выполняет один вызов операции без повторов.
type Transport interface {
	Do(ctx context.Context, req Request) (json.RawMessage, error)
}

// HTTPTransport вызывает POST /graphql.
type HTTPTransport struct {
	endpoint  string
	client    *http.Client
	userAgent string
	maxBody   int64
}

// NewHTTPTransport создаёт транспорт. endpoint - полный URL, например
// http://localhost:8000/graphql; базовый адрес дополняется путём /graphql.
func NewHTTPTransport(endpoint string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	endpoint = strings.TrimRight(endpoint, "/")
	if !strings.HasSuffix(endpoint, GraphQLPath) {
		endpoint += GraphQLPath
	}
	return &HTTPTransport{
		endpoint:  endpoint,
		client:    client,
		userAgent: version.UserAgent("crm-client"),
		maxBody:   MaxResponseBytes,
	}
}

// Do отправляет запрос и разбирает конверт ответа.
func (t *HTTPTransport) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: KindBadRequest, Message: "encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindBadRequest, Message: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", t.endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(raw)) > t.maxBody {
		return nil, &Error{Kind: KindInternal, Message: fmt.Sprintf("response exceeds %d bytes", t.maxBody), Permanent: true}
	}

	var envelope Response
	decodeErr := json.Unmarshal(raw, &envelope)

	if resp.StatusCode != http.StatusOK || len(envelope.Errors) > 0 {
		apiErr := &Error{Kind: KindFromHTTPStatus(resp.StatusCode), Message: resp.Status}
		if decodeErr == nil && len(envelope.Errors) > 0 {
			apiErr.Message = envelope.Errors[0].Message
			if envelope.Errors[0].Kind != "" {
				apiErr.Kind = envelope.Errors[0].Kind
			}
		}
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, &Error{Kind: KindInternal, Message: "decode response", Err: decodeErr, Permanent: true}
	}
	return envelope.Data, nil
}

// GRPCTransport вызывает crm.v1.CRMService/Execute.
type GRPCTransport struct {
	conn grpc.ClientConnInterface
}

// NewGRPCTransport создаёт транспорт поверх готового соединения.
func NewGRPCTransport(conn grpc.ClientConnInterface) *GRPCTransport {
	return &GRPCTransport{conn: conn}
}

// DialGRPC открывает соединение с клиентскими метриками. Приём ограничен
// MaxResponseBytes, как и у HTTP.
func DialGRPC(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(MaxResponseBytes)),
		grpc.WithUserAgent(version.UserAgent("crm-client")),
		grpc.WithChainUnaryInterceptor(promgrpc.UnaryClientInterceptor),
	)
}

// Do упаковывает запрос в Struct и распаковывает ответ обратно в JSON.
func (t *GRPCTransport) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"operation": structpb.NewStringValue(req.Operation),
	}}
	if len(bytes.TrimSpace(req.Variables)) > 0 {
		variables := &structpb.Value{}
		if err := protojson.Unmarshal(req.Variables, variables); err != nil {
			return nil, &Error{Kind: KindBadRequest, Message: "encode variables", Err: err}
		}
		in.Fields["variables"] = variables
	}

	out := &structpb.Struct{}
	if err := t.conn.Invoke(ctx, GRPCMethodExecute, in, out); err != nil {
		if st, ok := status.FromError(err); ok {
			return nil, &Error{Kind: KindFromGRPCCode(st.Code()), Message: st.Message(), Err: err}
		}
		return nil, err
	}

	data, err := protojson.Marshal(out)
	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: "decode response", Err: err, Permanent: true}
	}
	return data, nil
}

// Client - типизированный клиент CRM с повторами.
type Client struct {
	transport Transport
	retry     RetryConfig
	logger    *log.Entry
	sleep     func(context.Context, time.Duration) error
}

// ClientOption настраивает Client.
type ClientOption func(*Client)

// WithRetryConfig задаёт политику повторов.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(c *Client) { c.retry = cfg }
}

// WithClientLogger задаёт logger.
func WithClientLogger(logger *log.Entry) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient создаёт клиент поверх транспорта.
func NewClient(transport Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		retry:     DefaultRetryConfig(),
		logger:    log.WithField("component", "crm-client"),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call исполняет операцию и декодирует data в out (если out не nil).
func (c *Client) Call(ctx context.Context, operation string, variables, out any) error {
	req := Request{Operation: operation}
	if variables != nil {
		raw, err := json.Marshal(variables)
		if err != nil {
			return &Error{Kind: KindBadRequest, Message: "encode variables", Err: err}
		}
		req.Variables = raw
	}

	var data json.RawMessage
	err := withRetry(ctx, c.retry, c.logger, operation, c.sleep, func(ctx context.Context) error {
		var err error
		data, err = c.transport.Do(ctx, req)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode data: %w", operation, err)
	}
	return nil
}

// Hello вызывает health-пробу.
func (c *Client) Hello(ctx context.Context) (string, error) {
	var resp HelloResponse
	if err := c.Call(ctx, OpHello, nil, &resp); err != nil {
		return "", err
	}
	if resp.Hello == "" {
		return "", errors.New("hello: empty response")
	}
	return resp.Hello, nil
}

// Customers возвращает всех клиентов.
func (c *Client) Customers(ctx context.Context) ([]Customer, error) {
	var resp CustomersResponse
	if err := c.Call(ctx, OpCustomers, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Customers, nil
}

// Orders возвращает заказы с order_date >= since (nil - все).
func (c *Client) Orders(ctx context.Context, since *time.Time) ([]Order, error) {
	var resp OrdersResponse
	if err := c.Call(ctx, OpOrders, OrdersRequest{OrderDateGte: since}, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// UpdateLowStockProducts пополняет товары с низким остатком.
func (c *Client) UpdateLowStockProducts(ctx context.Context) (UpdateLowStockProductsResponse, error) {
	var resp UpdateLowStockProductsResponse
	err := c.Call(ctx, OpUpdateLowStockProducts, nil, &resp)
	return resp, err
}
