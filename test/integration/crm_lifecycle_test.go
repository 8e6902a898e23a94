package integration

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/crm/internal/api"
	"github.com/vladislavdragonenkov/crm/internal/app"
	"github.com/vladislavdragonenkov/crm/internal/jobs"
)

// CRMLifecycleTestSuite поднимает crm-service целиком (memory storage)
// и проходит сценарии через оба транспорта и плановые задачи.
type CRMLifecycleTestSuite struct {
	suite.Suite

	cancel   context.CancelFunc
	done     chan error
	httpURL  string
	grpcAddr string

	httpClient *api.Client
	grpcClient *api.Client
	closeGRPC  func() error
}

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func (s *CRMLifecycleTestSuite) SetupSuite() {
	log.SetLevel(log.WarnLevel)

	cfg := app.DefaultConfig()
	cfg.HTTPAddr = freeAddr(s.T())
	cfg.GRPCAddr = freeAddr(s.T())
	s.httpURL = "http://" + cfg.HTTPAddr
	s.grpcAddr = cfg.GRPCAddr

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() { s.done <- app.Run(ctx, cfg) }()

	s.Require().Eventually(func() bool {
		resp, err := http.Get(s.httpURL + "/readyz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	s.httpClient = api.NewClient(api.NewHTTPTransport(s.httpURL, nil))
	conn, err := api.DialGRPC(s.grpcAddr)
	s.Require().NoError(err)
	s.grpcClient = api.NewClient(api.NewGRPCTransport(conn))
	s.closeGRPC = conn.Close
}

func (s *CRMLifecycleTestSuite) TearDownSuite() {
	if s.closeGRPC != nil {
		_ = s.closeGRPC()
	}
	s.cancel()
	select {
	case err := <-s.done:
		s.Require().ErrorIs(err, context.Canceled)
	case <-time.After(10 * time.Second):
		s.T().Fatal("crm-service did not shut down")
	}
}

func (s *CRMLifecycleTestSuite) createProduct(client *api.Client, name, price string, stock int) api.Product {
	var resp api.CreateProductResponse
	s.Require().NoError(client.Call(context.Background(), api.OpCreateProduct, api.CreateProductRequest{
		Name: name, Price: decimal.RequireFromString(price), Stock: &stock,
	}, &resp))
	s.Require().NotNil(resp.Product, resp.Message)
	return *resp.Product
}

func (s *CRMLifecycleTestSuite) createCustomer(client *api.Client, name, email string) api.Customer {
	var resp api.CreateCustomerResponse
	s.Require().NoError(client.Call(context.Background(), api.OpCreateCustomer, api.CustomerInput{Name: name, Email: email}, &resp))
	s.Require().NotNil(resp.Customer, resp.Message)
	return *resp.Customer
}

func (s *CRMLifecycleTestSuite) TestOrderLifecycleAcrossTransports() {
	ctx := context.Background()

	laptop := s.createProduct(s.httpClient, "Lifecycle Laptop", "999.99", 3)
	phone := s.createProduct(s.grpcClient, "Lifecycle Phone", "499.99", 20)
	customer := s.createCustomer(s.grpcClient, "Lifecycle Alice", "lifecycle.alice@example.com")

	var created api.CreateOrderResponse
	s.Require().NoError(s.httpClient.Call(ctx, api.OpCreateOrder, api.CreateOrderRequest{
		CustomerID: customer.ID,
		ProductIDs: []string{laptop.ID, phone.ID},
	}, &created))
	s.Require().NotNil(created.Order, created.Message)
	s.Require().Equal("1499.98", created.Order.TotalAmount.StringFixed(2))
	s.Require().Equal(customer.Email, created.Order.Customer.Email)

	var recalculated api.RecalculateOrderTotalResponse
	s.Require().NoError(s.grpcClient.Call(ctx, api.OpRecalculateOrderTotal,
		api.RecalculateOrderTotalRequest{OrderID: created.Order.ID}, &recalculated))
	s.Require().NotNil(recalculated.Order)
	s.Require().True(created.Order.TotalAmount.Equal(recalculated.Order.TotalAmount))

	orders, err := s.grpcClient.Orders(ctx, nil)
	s.Require().NoError(err)
	found := false
	for _, o := range orders {
		if o.ID == created.Order.ID {
			found = true
			s.Require().Len(o.Products, 2)
		}
	}
	s.Require().True(found, "order must be visible through gRPC")
}

func (s *CRMLifecycleTestSuite) TestRejectionsAreData() {
	var resp api.CreateCustomerResponse
	s.Require().NoError(s.httpClient.Call(context.Background(), api.OpCreateCustomer,
		api.CustomerInput{Name: "Broken", Email: "not-an-email"}, &resp))
	s.Require().Nil(resp.Customer)
	s.Require().Equal("Invalid email format", resp.Message)

	err := s.grpcClient.Call(context.Background(), "NoSuchOperation", nil, nil)
	var apiErr *api.Error
	s.Require().ErrorAs(err, &apiErr)
	s.Require().Equal(api.KindNotFound, apiErr.Kind)
}

func (s *CRMLifecycleTestSuite) TestJobsAgainstRunningService() {
	s.createProduct(s.httpClient, "Jobs Low Stock Item", "5.00", 2)

	for _, transport := range []string{jobs.TransportHTTP, jobs.TransportGRPC} {
		s.Run(transport, func() {
			cfg := jobs.DefaultConfig()
			cfg.APITransport = transport
			cfg.APIURL = s.httpURL
			cfg.APIGRPCAddr = s.grpcAddr
			cfg.LogDir = s.T().TempDir()

			client, closeFn, err := cfg.Dial()
			s.Require().NoError(err)
			defer func() { _ = closeFn() }()

			runner := jobs.NewRunner(cfg.LogDir)
			for _, name := range jobs.Names() {
				job, err := jobs.New(name, cfg, client)
				s.Require().NoError(err)
				res, err := runner.Run(context.Background(), job)
				s.Require().NoError(err)
				s.Require().Equal("success", res.Status, fmt.Sprintf("%s: %v", name, res.Err))
			}

			raw, err := os.ReadFile(filepath.Join(cfg.LogDir, jobs.HeartbeatLogFile))
			s.Require().NoError(err)
			s.Require().True(strings.HasSuffix(strings.TrimSpace(string(raw)), "CRM is alive (hello: OK)"))

			raw, err = os.ReadFile(filepath.Join(cfg.LogDir, jobs.LowStockLogFile))
			s.Require().NoError(err)
			s.Require().Contains(string(raw), "products restocked")
		})
	}
}

func TestCRMLifecycleTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("integration suite starts real listeners")
	}
	suite.Run(t, new(CRMLifecycleTestSuite))
}
