// Command loadtest нагружает API CRM сценариями чтения и создания заказов
// и печатает сводку задержек по операциям.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/crm/internal/api"
)

const (
	transportHTTP = "http"
	transportGRPC = "grpc"

	scenarioKey = "scenario"
	outcomeOK   = "ok"
	// outcomeRejected - мутация вернула сообщение вместо сущности.
	outcomeRejected  = "rejected"
	outcomeTransport = "transport"
)

type loadMode string

const (
	modeRead              loadMode = "read"
	modeCreate            loadMode = "create"
	modeCreateRecalculate loadMode = "create-recalculate"
)

type config struct {
	transport    string
	url          string
	addr         string
	total        int
	totalSet     bool
	duration     time.Duration
	concurrency  int
	connections  int
	timeout      time.Duration
	mode         loadMode
	productCount int
	customerTag  string
	outputPath   string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type operationReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Outcomes  map[string]int64 `json:"outcomes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time                  `json:"started_at"`
	DurationSeconds   float64                    `json:"duration_seconds"`
	TotalScenarios    int64                      `json:"total_scenarios"`
	SuccessScenarios  int64                      `json:"success_scenarios"`
	FailedScenarios   int64                      `json:"failed_scenarios"`
	ErrorRate         float64                    `json:"error_rate"`
	RPS               float64                    `json:"rps"`
	ScenarioLatencyMs latencySummary             `json:"scenario_latency_ms"`
	Operations        map[string]operationReport `json:"operations"`
}

type operationStats struct {
	calls     int64
	success   int64
	failed    int64
	outcomes  map[string]int64
	latencies []float64
}

type collector struct {
	mu         sync.Mutex
	operations map[string]*operationStats
}

func newCollector() *collector {
	return &collector{operations: make(map[string]*operationStats)}
}

func (c *collector) record(operation string, latency time.Duration, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.operations[operation]
	if !ok {
		stats = &operationStats{outcomes: make(map[string]int64)}
		c.operations[operation] = stats
	}

	stats.calls++
	if outcome == outcomeOK {
		stats.success++
	} else {
		stats.failed++
	}
	stats.outcomes[outcome]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Operations:      make(map[string]operationReport, len(c.operations)),
	}

	for name, stats := range c.operations {
		outcomes := make(map[string]int64, len(stats.outcomes))
		for k, v := range stats.outcomes {
			outcomes[k] = v
		}
		op := operationReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Outcomes:  outcomes,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
		if name == scenarioKey {
			result.TotalScenarios = op.Calls
			result.SuccessScenarios = op.Success
			result.FailedScenarios = op.Failed
			result.ErrorRate = op.ErrorRate
			result.ScenarioLatencyMs = op.LatencyMs
			continue
		}
		result.Operations[name] = op
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}
	return result
}

func parseConfig(fs *flag.FlagSet, args []string) (config, error) {
	var (
		cfg       config
		modeValue string
	)

	fs.StringVar(&cfg.transport, "transport", transportHTTP, "API transport: http | grpc")
	fs.StringVar(&cfg.url, "url", "http://localhost:8000/graphql", "HTTP endpoint")
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios in count mode; with -duration only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 4, "number of gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-call timeout")
	fs.StringVar(&modeValue, "mode", string(modeRead), "load mode: read | create | create-recalculate")
	fs.IntVar(&cfg.productCount, "products", 3, "products created up front for order scenarios")
	fs.StringVar(&cfg.customerTag, "customer-tag", "load", "customer email prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.transport = strings.ToLower(strings.TrimSpace(cfg.transport))

	var errs []error
	if cfg.transport != transportHTTP && cfg.transport != transportGRPC {
		errs = append(errs, fmt.Errorf("unsupported transport: %s", cfg.transport))
	}
	if cfg.duration < 0 {
		errs = append(errs, errors.New("duration must be >= 0"))
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		errs = append(errs, errors.New("total must be > 0 when duration is not set"))
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		errs = append(errs, errors.New("total must be > 0 when explicitly set with duration"))
	}
	if cfg.concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be > 0"))
	}
	if cfg.connections <= 0 {
		errs = append(errs, errors.New("connections must be > 0"))
	}
	if cfg.timeout <= 0 {
		errs = append(errs, errors.New("timeout must be > 0"))
	}
	if cfg.mode != modeRead && cfg.productCount <= 0 {
		errs = append(errs, errors.New("products must be > 0 for order scenarios"))
	}
	if strings.TrimSpace(cfg.customerTag) == "" {
		errs = append(errs, errors.New("customer-tag is required"))
	}
	return cfg, errors.Join(errs...)
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeRead, modeCreate, modeCreateRecalculate:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

// caller - часть api.Client, нужная сценариям.
type caller interface {
	Call(ctx context.Context, operation string, variables, out any) error
}

// newClients создаёт клиентов без повторов: повтор исказил бы задержки.
func newClients(cfg config) ([]caller, func(), error) {
	opts := []api.ClientOption{api.WithRetryConfig(api.RetryConfig{MaxAttempts: 1, AttemptTimeout: cfg.timeout})}

	if cfg.transport == transportHTTP {
		transport := api.NewHTTPTransport(cfg.url, &http.Client{Transport: &http.Transport{
			MaxIdleConnsPerHost: cfg.concurrency,
		}})
		return []caller{api.NewClient(transport, opts...)}, func() {}, nil
	}

	clients := make([]caller, 0, cfg.connections)
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}
	for i := 0; i < cfg.connections; i++ {
		conn, err := api.DialGRPC(cfg.addr)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("create grpc client connection: %w", err)
		}
		closers = append(closers, conn.Close)
		clients = append(clients, api.NewClient(api.NewGRPCTransport(conn), opts...))
	}
	return clients, closeAll, nil
}

func main() {
	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	clients, closeFn, err := newClients(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer closeFn()

	result, err := run(context.Background(), cfg, clients, os.Stdout)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// run готовит товары, прогоняет сценарии и печатает отчёт.
func run(ctx context.Context, cfg config, clients []caller, out io.Writer) (report, error) {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())

	var productIDs []string
	if cfg.mode != modeRead {
		ids, err := prepareProducts(ctx, clients[0], cfg, runID)
		if err != nil {
			return report{}, err
		}
		productIDs = ids
	}

	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)

	g, gctx := errgroup.WithContext(ctx)
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		client := clients[workerID%len(clients)]
		g.Go(func() error {
			for id := range jobs {
				runScenario(gctx, client, cfg, id, runID, productIDs, col)
			}
			return nil
		})
	}
	dispatchJobs(jobs, cfg)
	_ = g.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	printReport(out, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			return result, fmt.Errorf("write report: %w", err)
		}
	}
	return result, nil
}

func prepareProducts(ctx context.Context, client caller, cfg config, runID string) ([]string, error) {
	ids := make([]string, 0, cfg.productCount)
	stock := 1_000_000
	for i := 0; i < cfg.productCount; i++ {
		var resp api.CreateProductResponse
		req := api.CreateProductRequest{
			Name:  fmt.Sprintf("%s-product-%s-%d", cfg.customerTag, runID, i),
			Price: decimal.New(int64(999+i*100), -2),
			Stock: &stock,
		}
		if err := client.Call(ctx, api.OpCreateProduct, req, &resp); err != nil {
			return nil, fmt.Errorf("prepare products: %w", err)
		}
		if resp.Product == nil {
			return nil, fmt.Errorf("prepare products: %s", resp.Message)
		}
		ids = append(ids, resp.Product.ID)
	}
	return ids, nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(ctx context.Context, client caller, cfg config, index int, runID string, productIDs []string, col *collector) {
	start := time.Now()
	outcome := outcomeOK
	defer func() { col.record(scenarioKey, time.Since(start), outcome) }()

	step := func(operation string, variables, out any, accepted func() bool) bool {
		outcome = timedCall(ctx, client, cfg.timeout, operation, variables, out, accepted, col)
		return outcome == outcomeOK
	}

	if cfg.mode == modeRead {
		var hello api.HelloResponse
		var products api.ProductsResponse
		var orders api.OrdersResponse
		_ = step(api.OpHello, nil, &hello, func() bool { return hello.Hello != "" }) &&
			step(api.OpProducts, nil, &products, nil) &&
			step(api.OpOrders, api.OrdersRequest{}, &orders, nil)
		return
	}

	var customer api.CreateCustomerResponse
	email := fmt.Sprintf("%s-%s-%d@loadtest.example", cfg.customerTag, runID, index)
	if !step(api.OpCreateCustomer, api.CustomerInput{Name: "Load " + fmt.Sprint(index), Email: email}, &customer,
		func() bool { return customer.Customer != nil }) {
		return
	}

	picked := []string{productIDs[index%len(productIDs)]}
	if len(productIDs) > 1 {
		picked = append(picked, productIDs[(index+1)%len(productIDs)])
	}
	var order api.CreateOrderResponse
	if !step(api.OpCreateOrder, api.CreateOrderRequest{CustomerID: customer.Customer.ID, ProductIDs: picked}, &order,
		func() bool { return order.Order != nil }) {
		return
	}

	if cfg.mode == modeCreateRecalculate {
		var recalculated api.RecalculateOrderTotalResponse
		step(api.OpRecalculateOrderTotal, api.RecalculateOrderTotalRequest{OrderID: order.Order.ID}, &recalculated,
			func() bool { return recalculated.Order != nil })
	}
}

// timedCall выполняет одну операцию и записывает её исход.
func timedCall(
	ctx context.Context,
	client caller,
	timeout time.Duration,
	operation string,
	variables, out any,
	accepted func() bool,
	col *collector,
) string {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome := outcomeOf(client.Call(callCtx, operation, variables, out))
	if outcome == outcomeOK && accepted != nil && !accepted() {
		outcome = outcomeRejected
	}
	col.record(operation, time.Since(start), outcome)
	return outcome
}

func outcomeOf(err error) string {
	if err == nil {
		return outcomeOK
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return string(apiErr.Kind)
	}
	if api.IsTimeout(err) {
		return string(api.KindTimeout)
	}
	return outcomeTransport
}

// writeJSONReport пишет отчёт в файл внутри текущего каталога.
func writeJSONReport(path string, result report) error {
	clean := filepath.Clean(path)
	if clean == "." || !filepath.IsLocal(clean) {
		return fmt.Errorf("output path must be a file inside current directory: %s", path)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(clean, append(data, '\n'), 0o644)
}

func printReport(out io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(out, "Load test summary")
	_, _ = fmt.Fprintf(out, "mode=%s transport=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		cfg.transport,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	_, _ = fmt.Fprintf(out, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(out, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	for _, name := range slices.Sorted(maps.Keys(result.Operations)) {
		stats := result.Operations[name]
		_, _ = fmt.Fprintf(out, "%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name, stats.Calls, stats.Success, stats.Failed, stats.ErrorRate, stats.LatencyMs.P95)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

// buildLatencySummary считает min/avg/max и перцентили по задержкам в мс.
func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := slices.Sorted(slices.Values(values))
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

// percentile интерполирует между соседними значениями отсортированной выборки.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := p / 100 * float64(len(sorted)-1)
	i := int(rank)
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (sorted[i+1]-sorted[i])*(rank-float64(i))
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
