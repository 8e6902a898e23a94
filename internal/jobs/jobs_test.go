package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/crm/internal/api"
	"github.com/vladislavdragonenkov/crm/internal/domain"
	"github.com/vladislavdragonenkov/crm/internal/metrics"
	"github.com/vladislavdragonenkov/crm/internal/service/crm"
	"github.com/vladislavdragonenkov/crm/internal/storage/memory"
)

var runAt = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

type fakeClient struct {
	hello     string
	helloErr  error
	customers []api.Customer
	orders    []api.Order
	ordersErr error
	restock   api.UpdateLowStockProductsResponse
	since     *time.Time
	panicMsg  string
}

func (f *fakeClient) Hello(context.Context) (string, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.hello, f.helloErr
}

func (f *fakeClient) Customers(context.Context) ([]api.Customer, error) { return f.customers, nil }

func (f *fakeClient) Orders(_ context.Context, since *time.Time) ([]api.Order, error) {
	f.since = since
	return f.orders, f.ordersErr
}

func (f *fakeClient) UpdateLowStockProducts(context.Context) (api.UpdateLowStockProductsResponse, error) {
	return f.restock, nil
}

type RunnerSuite struct {
	suite.Suite
	dir    string
	reg    *prometheus.Registry
	runner *Runner
}

func (s *RunnerSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.reg = prometheus.NewRegistry()
	s.runner = NewRunner(s.dir,
		WithRunnerClock(func() time.Time { return runAt }),
		WithRunnerMetrics(metrics.NewJobMetrics(s.reg)),
	)
}

func (s *RunnerSuite) readLines(file string) []string {
	raw, err := os.ReadFile(filepath.Join(s.dir, file))
	s.Require().NoError(err)
	return strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
}

func (s *RunnerSuite) run(name string, client Client) Result {
	cfg := DefaultConfig()
	job, err := New(name, cfg, client)
	s.Require().NoError(err)
	res, err := s.runner.Run(context.Background(), job)
	s.Require().NoError(err)
	return res
}

func (s *RunnerSuite) TestHeartbeatOK() {
	res := s.run(JobHeartbeat, &fakeClient{hello: crm.HelloMessage})

	s.Equal(metrics.JobResultSuccess, res.Status)
	s.Equal([]string{"10/03/2025-08:00:00 CRM is alive (hello: OK)"}, s.readLines(HeartbeatLogFile))
}

func (s *RunnerSuite) TestHeartbeatAlwaysWritesLine() {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "timeout", err: context.DeadlineExceeded, want: "CRM is alive (hello: TIMEOUT)"},
		{name: "transport", err: errors.New("connection refused"), want: "CRM is alive (hello: ERROR): connection refused"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			res := s.run(JobHeartbeat, &fakeClient{helloErr: tt.err})

			s.Equal(metrics.JobResultError, res.Status)
			lines := s.readLines(HeartbeatLogFile)
			s.Require().Len(lines, 1)
			s.True(strings.HasSuffix(lines[0], tt.want), lines[0])
		})
	}
}

func (s *RunnerSuite) TestTimeoutProducesExactlyOneLine() {
	for _, name := range []string{JobOrderReminders, JobReport} {
		s.Run(name, func() {
			s.SetupTest()
			res := s.run(name, &fakeClient{ordersErr: context.DeadlineExceeded})

			s.Equal(metrics.JobResultError, res.Status)
			job, _ := New(name, DefaultConfig(), nil)
			lines := s.readLines(job.LogFile())
			s.Require().Len(lines, 1)
			s.Contains(lines[0], "ERROR:")
			s.Contains(lines[0], "context deadline exceeded")
		})
	}
}

func (s *RunnerSuite) TestPanicIsContained() {
	res := s.run(JobHeartbeat, &fakeClient{panicMsg: "boom"})

	s.Equal(metrics.JobResultError, res.Status)
	lines := s.readLines(HeartbeatLogFile)
	s.Require().Len(lines, 1)
	s.Contains(lines[0], "panic: boom")
}

func (s *RunnerSuite) TestOrderReminders() {
	client := &fakeClient{orders: []api.Order{
		{ID: "o-1", Customer: api.Customer{Email: "alice@example.com"}},
		{ID: "o-2", Customer: api.Customer{Email: "bob@example.com"}},
	}}
	s.run(JobOrderReminders, client)

	s.Require().NotNil(client.since)
	s.Equal(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), *client.since)
	s.Equal([]string{
		"10/03/2025-08:00:00 Order ID: o-1, Customer Email: alice@example.com",
		"10/03/2025-08:00:00 Order ID: o-2, Customer Email: bob@example.com",
		"10/03/2025-08:00:00 Order reminders processed: 2 orders since 2025-03-03",
	}, s.readLines(RemindersLogFile))
}

func (s *RunnerSuite) TestLowStock() {
	s.run(JobLowStock, &fakeClient{restock: api.UpdateLowStockProductsResponse{
		UpdatedProducts: []string{"Laptop (15)"},
		Success:         crm.MsgStockUpdated,
	}})

	s.Equal([]string{
		"10/03/2025-08:00:00 Updated product: Laptop (15)",
		"10/03/2025-08:00:00 Low stock update: 1 products restocked. Stock updated successfully",
	}, s.readLines(LowStockLogFile))
}

func (s *RunnerSuite) TestLowStockMalformedResponse() {
	res := s.run(JobLowStock, &fakeClient{})
	s.Equal(metrics.JobResultError, res.Status)
	s.Len(s.readLines(LowStockLogFile), 1)
}

func (s *RunnerSuite) TestReport() {
	s.run(JobReport, &fakeClient{
		customers: make([]api.Customer, 3),
		orders: []api.Order{
			{ID: "o-1", TotalAmount: decimal.RequireFromString("1499.98")},
			{ID: "o-2", TotalAmount: decimal.RequireFromString("199.99")},
		},
	})

	s.Equal([]string{"10/03/2025-08:00:00 Report: 3 customers, 2 orders, 1699.97 total revenue"}, s.readLines(ReportLogFile))
}

func (s *RunnerSuite) TestAppendsAcrossRuns() {
	s.run(JobHeartbeat, &fakeClient{hello: "x"})
	s.run(JobHeartbeat, &fakeClient{hello: "x"})
	s.Len(s.readLines(HeartbeatLogFile), 2)
}

func (s *RunnerSuite) TestRecordsMetrics() {
	s.run(JobHeartbeat, &fakeClient{hello: "x"})
	s.run(JobHeartbeat, &fakeClient{helloErr: errors.New("down")})

	count, err := testutil.GatherAndCount(s.reg, "crm_job_runs_total")
	s.Require().NoError(err)
	s.Equal(2, count)
}

func TestRunnerSuite(t *testing.T) {
	suite.Run(t, new(RunnerSuite))
}

func TestRunner_SinkFailureIsReturned(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	runner := NewRunner(filepath.Join(blocker, "nested"))
	job, err := New(JobHeartbeat, DefaultConfig(), &fakeClient{hello: "x"})
	require.NoError(t, err)

	res, err := runner.Run(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, metrics.JobResultSuccess, res.Status)
}

func TestNew_UnknownJob(t *testing.T) {
	_, err := New("cleanup", DefaultConfig(), &fakeClient{})
	require.Error(t, err)
}

func TestOrderReminders_SinceUsesLookback(t *testing.T) {
	tests := []struct {
		days int
		want time.Time
	}{
		{days: 0, want: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{days: 7, want: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)},
		{days: 10, want: time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		job := &OrderReminders{lookbackDays: tt.days}
		assert.Equal(t, tt.want, job.Since(time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)))
	}
}

func TestJobs_AgainstLiveAPI(t *testing.T) {
	svc := crm.NewService(memory.NewStore(), crm.WithClock(func() time.Time { return runAt }))
	srv := httptest.NewServer(api.NewHTTPHandler(api.NewDispatcher(svc), nil))
	defer srv.Close()

	ctx := context.Background()
	alice, err := svc.CreateCustomer(ctx, domain.CustomerInput{Name: "Alice", Email: "alice@example.com"})
	require.NoError(t, err)
	stock := 5
	product, err := svc.CreateProduct(ctx, crm.ProductInput{Name: "Laptop", Price: decimal.RequireFromString("999.99"), Stock: &stock})
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, crm.OrderInput{CustomerID: alice.Customer.ID, ProductIDs: []string{product.Product.ID}})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.APIURL = srv.URL
	cfg.LogDir = t.TempDir()
	client, closeFn, err := cfg.Dial()
	require.NoError(t, err)
	defer func() { _ = closeFn() }()

	runner := NewRunner(cfg.LogDir, WithRunnerClock(func() time.Time { return runAt }))
	for _, name := range Names() {
		job, err := New(name, cfg, client)
		require.NoError(t, err)
		res, err := runner.Run(ctx, job)
		require.NoError(t, err)
		assert.Equal(t, metrics.JobResultSuccess, res.Status, "%s: %v", name, res.Err)
	}

	raw, err := os.ReadFile(filepath.Join(cfg.LogDir, ReportLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Report: 1 customers, 1 orders, 999.99 total revenue")

	raw, err = os.ReadFile(filepath.Join(cfg.LogDir, LowStockLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Updated product: Laptop (15)")
}

func TestPushMetrics(t *testing.T) {
	var gotPath string
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	reg := prometheus.NewRegistry()
	metrics.NewJobMetrics(reg).RecordRun(JobHeartbeat, metrics.JobResultSuccess, time.Second)

	require.NoError(t, PushMetrics(context.Background(), gw.URL, JobHeartbeat, reg))
	assert.Equal(t, "/metrics/job/crm_jobs/task/heartbeat", gotPath)

	require.NoError(t, PushMetrics(context.Background(), "", JobHeartbeat, reg))
}

func TestRunner_UnreachableClientWritesFailureLine(t *testing.T) {
	dir := t.TempDir()
	runner := NewRunner(dir, WithRunnerClock(func() time.Time { return runAt }))
	dialErr := errors.New("dial grpc ::bad: invalid target")

	for _, name := range Names() {
		job, err := New(name, DefaultConfig(), UnreachableClient(dialErr))
		require.NoError(t, err)

		res, err := runner.Run(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, metrics.JobResultError, res.Status, name)
		assert.ErrorIs(t, res.Err, dialErr)
		require.Len(t, res.Lines, 1)
		assert.Equal(t, job.FailureLine(dialErr), res.Lines[0])
	}

	raw, err := os.ReadFile(filepath.Join(dir, HeartbeatLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "CRM is alive (hello: ERROR): dial grpc ::bad: invalid target")
}
