// Команда loadtest нагружает HTTP API MyShop сценариями оформления заказа
// и после прогона сверяет остаток товара с числом проданных единиц.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const unitsPerOrder = 1

type loadMode string

const (
	modeCreate       loadMode = "create"
	modeCreateShip   loadMode = "create-ship"
	modeCreateCancel loadMode = "create-cancel"
)

// flow — фактический путь сценария; в create-ship часть заказов уходит в отмену.
type flow string

const (
	flowCheckout flow = "checkout"
	flowShip     flow = "checkout+ship"
	flowCancel   flow = "checkout+cancel"
)

// outcome — результат сценария в терминах магазина.
type outcome string

const (
	outcomeConfirmed   outcome = "confirmed"
	outcomeShipped     outcome = "shipped"
	outcomeCancelled   outcome = "cancelled"
	outcomeOutOfStock  outcome = "out_of_stock"
	outcomeDeclined    outcome = "payment_declined"
	outcomeRejected    outcome = "rejected"
	outcomeConflict    outcome = "state_conflict"
	outcomeServerError outcome = "server_error"
	outcomeTransport   outcome = "transport_error"
)

func (o outcome) succeeded() bool {
	return o == outcomeConfirmed || o == outcomeShipped || o == outcomeCancelled
}

// Имена эндпоинтов в отчёте совпадают с маршрутами gin.
const (
	endpointCreateProduct = "POST /api/products"
	endpointGetProduct    = "GET /api/products/:id"
	endpointCreateOrder   = "POST /api/orders"
	endpointShipOrder     = "POST /api/orders/:id/ship"
	endpointCancelOrder   = "POST /api/orders/:id/cancel"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	currency    string
	price       decimal.Decimal
	stock       int
	customerTag string
	outputPath  string
}

func parseConfig(args []string) (config, error) {
	var (
		cfg   config
		mode  string
		price string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "MyShop HTTP API base URL")
	fs.IntVar(&cfg.total, "total", 400, "scenarios to run; with -duration acts as an upper bound when set")
	fs.DurationVar(&cfg.duration, "duration", 0, "run for this long instead of a fixed count")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "parallel shoppers")
	fs.IntVar(&cfg.connections, "connections", 20, "keep-alive connections to the API")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&mode, "mode", string(modeCreate), "create | create-ship | create-cancel")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "percent of create-ship scenarios that cancel instead of shipping")
	fs.StringVar(&cfg.currency, "currency", "BRL", "currency of the seeded product")
	fs.StringVar(&price, "price", "25.00", "price of the seeded product")
	fs.IntVar(&cfg.stock, "stock", 100000, "initial stock of the seeded product")
	fs.StringVar(&cfg.customerTag, "customer-tag", "load", "prefix of generated customer emails")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report path")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	fs.Visit(func(f *flag.Flag) { cfg.totalSet = cfg.totalSet || f.Name == "total" })

	var err error
	if cfg.mode, err = parseMode(mode); err != nil {
		return config{}, err
	}
	if cfg.price, err = decimal.NewFromString(strings.TrimSpace(price)); err != nil {
		return config{}, fmt.Errorf("parse price: %w", err)
	}
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	cfg.currency = strings.TrimSpace(cfg.currency)
	cfg.customerTag = strings.TrimSpace(cfg.customerTag)

	switch {
	case cfg.baseURL == "":
		return config{}, errors.New("base-url is required")
	case cfg.duration < 0:
		return config{}, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return config{}, errors.New("total must be > 0 without -duration")
	case cfg.totalSet && cfg.total <= 0:
		return config{}, errors.New("total must be > 0")
	case cfg.concurrency <= 0 || cfg.connections <= 0:
		return config{}, errors.New("concurrency and connections must be > 0")
	case cfg.timeout <= 0:
		return config{}, errors.New("timeout must be > 0")
	case !cfg.price.IsPositive():
		return config{}, errors.New("price must be > 0")
	case cfg.stock <= 0:
		return config{}, errors.New("stock must be > 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return config{}, errors.New("cancel-rate must be between 0 and 100")
	case cfg.currency == "" || cfg.customerTag == "":
		return config{}, errors.New("currency and customer-tag are required")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	mode := loadMode(strings.TrimSpace(value))
	switch mode {
	case modeCreate, modeCreateShip, modeCreateCancel:
		return mode, nil
	}
	return "", fmt.Errorf("unsupported mode: %s", value)
}

// flowFor раскладывает сценарии create-ship на отгрузки и отмены детерминированно по индексу.
func (c config) flowFor(index int) flow {
	switch c.mode {
	case modeCreateCancel:
		return flowCancel
	case modeCreateShip:
		if index%100 < c.cancelRate {
			return flowCancel
		}
		return flowShip
	default:
		return flowCheckout
	}
}

func (c config) target() string {
	switch {
	case c.duration <= 0:
		return fmt.Sprintf("count:%d", c.total)
	case c.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", c.duration, c.total)
	default:
		return fmt.Sprintf("duration:%s", c.duration)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}

	result, err := run(context.Background(), cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, cfg, result)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "write report: %v\n", err)
			os.Exit(1)
		}
	}
	if !result.healthy() {
		os.Exit(1)
	}
}

// run заводит товар, прогоняет сценарии пулом покупателей и сверяет склад.
func run(ctx context.Context, cfg config) (report, error) {
	s := &shopper{
		api:   newAPIClient(cfg.baseURL, cfg.connections),
		cfg:   cfg,
		rec:   newRecorder(),
		runID: uuid.NewString()[:8],
	}

	productID, err := s.seedProduct(ctx)
	if err != nil {
		return report{}, fmt.Errorf("seed product: %w", err)
	}
	s.productID = productID

	started := time.Now()
	jobs := make(chan int, cfg.concurrency)
	var wg sync.WaitGroup
	for i := 0; i < cfg.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				s.play(ctx, index)
			}
		}()
	}
	feedJobs(ctx, jobs, cfg)
	wg.Wait()

	result := s.rec.summarize(s.runID, started, time.Since(started))
	result.Stock, err = s.checkStock(ctx)
	if err != nil {
		return result, fmt.Errorf("check stock: %w", err)
	}
	return result, nil
}

// feedJobs выдаёт индексы сценариев до исчерпания total или истечения duration и закрывает jobs.
func feedJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.duration)
		defer cancel()
	}
	bounded := cfg.duration <= 0 || cfg.totalSet

	for index := 0; !bounded || index < cfg.total; index++ {
		select {
		case <-ctx.Done():
			return
		case jobs <- index:
		}
	}
}

/* =========================
   SCENARIOS
========================= */

type shopper struct {
	api       *apiClient
	cfg       config
	rec       *recorder
	runID     string
	productID string
}

type orderReply struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Warning string `json:"warning"`
}

type productReply struct {
	ID            string `json:"id"`
	StockQuantity int    `json:"stock_quantity"`
}

func (s *shopper) call(ctx context.Context, endpoint, method, path string, body, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.timeout)
	defer cancel()

	started := time.Now()
	status, err := s.api.do(ctx, method, path, body, out)
	s.rec.call(endpoint, status, time.Since(started))
	return status, err
}

func (s *shopper) seedProduct(ctx context.Context) (string, error) {
	var product productReply
	_, err := s.call(ctx, endpointCreateProduct, http.MethodPost, "/api/products", map[string]any{
		"name":           "Load test product " + s.runID,
		"description":    "seeded by loadtest, tag " + s.cfg.customerTag,
		"price":          s.cfg.price.StringFixed(2),
		"currency":       s.cfg.currency,
		"stock_quantity": s.cfg.stock,
	}, &product)
	if err != nil {
		return "", err
	}
	if product.ID == "" {
		return "", errors.New("create product returned empty id")
	}
	return product.ID, nil
}

// play проигрывает один сценарий и записывает его результат.
func (s *shopper) play(ctx context.Context, index int) outcome {
	started := time.Now()
	f := s.cfg.flowFor(index)
	result := s.checkout(ctx, f, index)
	s.rec.scenario(f, result, time.Since(started))
	return result
}

func (s *shopper) checkout(ctx context.Context, f flow, index int) outcome {
	var order orderReply
	status, err := s.call(ctx, endpointCreateOrder, http.MethodPost, "/api/orders", map[string]any{
		"customer_email": fmt.Sprintf("%s+%s-%d@loadtest.local", s.cfg.customerTag, s.runID, index),
		"shipping_address": map[string]string{
			"street":   "Rua da Carga, 1",
			"city":     "Sao Paulo",
			"state":    "SP",
			"zip_code": "01000-000",
			"country":  "BR",
		},
		"items": []map[string]any{{"product_id": s.productID, "quantity": unitsPerOrder}},
	}, &order)
	if err != nil {
		return classifyCheckout(status)
	}
	if order.ID == "" {
		return outcomeServerError
	}
	s.rec.sold(unitsPerOrder, order.Warning != "")

	path := "/api/orders/" + order.ID
	switch f {
	case flowShip:
		status, err = s.call(ctx, endpointShipOrder, http.MethodPost, path+"/ship", nil, &order)
		if err != nil {
			return classifyFollowUp(status)
		}
		return outcomeShipped
	case flowCancel:
		order.Warning = ""
		status, err = s.call(ctx, endpointCancelOrder, http.MethodPost, path+"/cancel", nil, &order)
		if err != nil {
			return classifyFollowUp(status)
		}
		s.rec.sold(-unitsPerOrder, order.Warning != "")
		return outcomeCancelled
	default:
		return outcomeConfirmed
	}
}

// classifyCheckout переводит статус ответа POST /api/orders в результат сценария.
func classifyCheckout(status int) outcome {
	switch {
	case status == 0:
		return outcomeTransport
	case status == http.StatusConflict:
		return outcomeOutOfStock
	case status == http.StatusBadGateway:
		return outcomeDeclined
	case status >= 500:
		return outcomeServerError
	default:
		return outcomeRejected
	}
}

func classifyFollowUp(status int) outcome {
	switch {
	case status == 0:
		return outcomeTransport
	case status == http.StatusConflict:
		return outcomeConflict
	case status >= 500:
		return outcomeServerError
	default:
		return outcomeRejected
	}
}

// checkStock сравнивает остаток товара с числом единиц в неотменённых заказах.
func (s *shopper) checkStock(ctx context.Context) (stockCheck, error) {
	var product productReply
	if _, err := s.call(ctx, endpointGetProduct, http.MethodGet, "/api/products/"+s.productID, nil, &product); err != nil {
		return stockCheck{}, err
	}

	held, unknown := s.rec.holdings()
	check := stockCheck{
		ProductID: s.productID,
		Seeded:    s.cfg.stock,
		Sold:      held,
		Expected:  s.cfg.stock - held,
		Actual:    product.StockQuantity,
		Unknown:   unknown,
	}
	check.Consistent = check.Expected == check.Actual
	return check, nil
}

/* =========================
   HTTP CLIENT
========================= */

type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, connections int) *apiClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = connections
	transport.MaxIdleConnsPerHost = connections

	return &apiClient{baseURL: baseURL, http: &http.Client{Transport: transport}}
}

// statusError описывает ответ API с кодом вне 2xx.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, e.message)
}

// do выполняет запрос и возвращает HTTP-статус (0 при ошибке транспорта).
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return resp.StatusCode, &statusError{status: resp.StatusCode, message: apiErr.Error}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

/* =========================
   RECORDER
========================= */

type samples struct {
	latencies []time.Duration
	counts    map[string]int64
}

func (s *samples) add(key string, elapsed time.Duration) {
	if s.counts == nil {
		s.counts = make(map[string]int64)
	}
	s.counts[key]++
	s.latencies = append(s.latencies, elapsed)
}

// recorder собирает замеры вызовов и сценариев со всех покупателей.
type recorder struct {
	mu        sync.Mutex
	endpoints map[string]*samples
	flows     map[flow]*samples
	held      int
	warnings  int64
	unknown   int64
}

func newRecorder() *recorder {
	return &recorder{
		endpoints: make(map[string]*samples),
		flows:     make(map[flow]*samples),
	}
}

func (r *recorder) call(endpoint string, status int, elapsed time.Duration) {
	key := strconv.Itoa(status)
	if status == 0 {
		key = string(outcomeTransport)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.endpoints[endpoint] == nil {
		r.endpoints[endpoint] = &samples{}
	}
	r.endpoints[endpoint].add(key, elapsed)
}

func (r *recorder) scenario(f flow, result outcome, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flows[f] == nil {
		r.flows[f] = &samples{}
	}
	r.flows[f].add(string(result), elapsed)
	if result == outcomeTransport {
		r.unknown++
	}
}

// sold учитывает единицы, ушедшие в заказ (отрицательное значение при отмене).
func (r *recorder) sold(units int, warned bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.held += units
	if warned {
		r.warnings++
	}
}

func (r *recorder) holdings() (held int, unknown int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.held, r.unknown
}

/* =========================
   REPORT
========================= */

type latencySummary struct {
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P90  float64 `json:"p90"`
	P99  float64 `json:"p99"`
	Max  float64 `json:"max"`
}

type flowReport struct {
	Runs      int64             `json:"runs"`
	Outcomes  map[outcome]int64 `json:"outcomes"`
	LatencyMs latencySummary    `json:"latency_ms"`
}

type endpointReport struct {
	Calls     int64            `json:"calls"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type stockCheck struct {
	ProductID string `json:"product_id"`
	Seeded    int    `json:"seeded"`
	Sold      int    `json:"sold"`
	Expected  int    `json:"expected"`
	Actual    int    `json:"actual"`
	// Unknown — сценарии с ошибкой транспорта: заказ мог как создаться, так и нет.
	Unknown    int64 `json:"unknown"`
	Consistent bool  `json:"consistent"`
}

type report struct {
	RunID      string                    `json:"run_id"`
	StartedAt  time.Time                 `json:"started_at"`
	ElapsedSec float64                   `json:"elapsed_seconds"`
	Throughput float64                   `json:"scenarios_per_second"`
	Scenarios  int64                     `json:"scenarios"`
	Succeeded  int64                     `json:"succeeded"`
	Warnings   int64                     `json:"warnings"`
	Outcomes   map[outcome]int64         `json:"outcomes"`
	Flows      map[flow]flowReport       `json:"flows"`
	Endpoints  map[string]endpointReport `json:"endpoints"`
	Stock      stockCheck                `json:"stock"`
}

// healthy: все сценарии завершились ожидаемо и склад сошёлся.
func (r report) healthy() bool {
	return r.Succeeded == r.Scenarios && (r.Stock.Consistent || r.Stock.Unknown > 0)
}

func (r *recorder) summarize(runID string, started time.Time, elapsed time.Duration) report {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := report{
		RunID:      runID,
		StartedAt:  started.UTC(),
		ElapsedSec: elapsed.Seconds(),
		Warnings:   r.warnings,
		Outcomes:   make(map[outcome]int64),
		Flows:      make(map[flow]flowReport, len(r.flows)),
		Endpoints:  make(map[string]endpointReport, len(r.endpoints)),
	}

	for f, s := range r.flows {
		fr := flowReport{Outcomes: make(map[outcome]int64, len(s.counts)), LatencyMs: summarizeLatency(s.latencies)}
		for key, n := range s.counts {
			o := outcome(key)
			fr.Outcomes[o] = n
			fr.Runs += n
			result.Outcomes[o] += n
			if o.succeeded() {
				result.Succeeded += n
			}
		}
		result.Scenarios += fr.Runs
		result.Flows[f] = fr
	}
	for name, s := range r.endpoints {
		er := endpointReport{Statuses: make(map[string]int64, len(s.counts)), LatencyMs: summarizeLatency(s.latencies)}
		for key, n := range s.counts {
			er.Statuses[key] = n
			er.Calls += n
		}
		result.Endpoints[name] = er
	}
	if elapsed > 0 {
		result.Throughput = float64(result.Scenarios) / elapsed.Seconds()
	}
	return result
}

// summarizeLatency считает перцентили методом ближайшего ранга, значения в миллисекундах.
func summarizeLatency(values []time.Duration) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var total time.Duration
	for _, v := range sorted {
		total += v
	}
	rank := func(p int) float64 {
		idx := (p*len(sorted)+99)/100 - 1
		return millis(sorted[max(idx, 0)])
	}

	return latencySummary{
		Mean: millis(total / time.Duration(len(sorted))),
		P50:  rank(50),
		P90:  rank(90),
		P99:  rank(99),
		Max:  millis(sorted[len(sorted)-1]),
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func writeJSONReport(path string, result report) error {
	clean := filepath.Clean(path)
	if clean == "." || clean == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must stay inside the working directory: %s", path)
	}

	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(clean, append(raw, '\n'), 0o600)
}

func printReport(out io.Writer, cfg config, r report) {
	_, _ = fmt.Fprintf(out, "MyShop load test %s: mode=%s %s\n", r.RunID, cfg.mode, cfg.target())
	_, _ = fmt.Fprintf(out, "scenarios=%d succeeded=%d warnings=%d elapsed=%.2fs throughput=%.2f/s\n",
		r.Scenarios, r.Succeeded, r.Warnings, r.ElapsedSec, r.Throughput)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FLOW\tRUNS\tOUTCOMES\tP50ms\tP99ms")
	for _, f := range sortedKeys(r.Flows) {
		fr := r.Flows[f]
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%.2f\t%.2f\n", f, fr.Runs, formatCounts(fr.Outcomes), fr.LatencyMs.P50, fr.LatencyMs.P99)
	}
	_, _ = fmt.Fprintln(tw, "ENDPOINT\tCALLS\tSTATUSES\tP50ms\tP99ms")
	for _, name := range sortedKeys(r.Endpoints) {
		er := r.Endpoints[name]
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%.2f\t%.2f\n", name, er.Calls, formatCounts(er.Statuses), er.LatencyMs.P50, er.LatencyMs.P99)
	}
	_ = tw.Flush()

	verdict := "consistent"
	if !r.Stock.Consistent {
		verdict = "MISMATCH"
	}
	_, _ = fmt.Fprintf(out, "stock %s: seeded=%d sold=%d expected=%d actual=%d unknown=%d\n",
		verdict, r.Stock.Seeded, r.Stock.Sold, r.Stock.Expected, r.Stock.Actual, r.Stock.Unknown)
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func formatCounts[K ~string](counts map[K]int64) string {
	parts := make([]string, 0, len(counts))
	for _, k := range sortedKeys(counts) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}
