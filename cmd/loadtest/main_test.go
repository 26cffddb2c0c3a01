package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/myshop/internal/app"
	"github.com/vladislavdragonenkov/myshop/internal/metrics"
	"github.com/vladislavdragonenkov/myshop/internal/service/notification"
	"github.com/vladislavdragonenkov/myshop/internal/service/payment"
	"github.com/vladislavdragonenkov/myshop/internal/storage/memory"
	"github.com/vladislavdragonenkov/myshop/internal/transport/httpapi"
)

// fakeShop отвечает на маршруты MyShop по заданным кодам и ведёт свой остаток.
type fakeShop struct {
	mu         sync.Mutex
	calls      map[string]int
	stock      int
	orderCode  int
	cancelCode int
	warning    string
	seq        int
}

func newFakeShop(stock int) *fakeShop {
	return &fakeShop{
		calls:      make(map[string]int),
		stock:      stock,
		orderCode:  http.StatusCreated,
		cancelCode: http.StatusOK,
	}
}

func (f *fakeShop) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	reply := func(code int, body any) {
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/products":
		f.calls["product"]++
		reply(http.StatusCreated, map[string]any{"id": "prod-1", "stock_quantity": f.stock})
	case r.Method == http.MethodGet && r.URL.Path == "/api/products/prod-1":
		reply(http.StatusOK, map[string]any{"id": "prod-1", "stock_quantity": f.stock})
	case r.Method == http.MethodPost && r.URL.Path == "/api/orders":
		f.calls["create"]++
		if f.orderCode != http.StatusCreated {
			reply(f.orderCode, map[string]string{"error": "order rejected"})
			return
		}
		f.seq++
		f.stock--
		reply(http.StatusCreated, map[string]any{"id": "order-" + string(rune('a'+f.seq%26)), "status": "CONFIRMED", "warning": f.warning})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/ship"):
		f.calls["ship"]++
		reply(http.StatusOK, map[string]string{"status": "SHIPPED"})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/cancel"):
		f.calls["cancel"]++
		if f.cancelCode != http.StatusOK {
			reply(f.cancelCode, map[string]string{"error": "order is not cancellable"})
			return
		}
		f.stock++
		reply(http.StatusOK, map[string]string{"status": "CANCELLED"})
	default:
		reply(http.StatusNotFound, map[string]string{"error": "route not found"})
	}
}

func (f *fakeShop) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func mustConfig(t *testing.T, args ...string) config {
	t.Helper()
	cfg, err := parseConfig(append([]string{"-concurrency=2", "-connections=1", "-timeout=2s"}, args...))
	require.NoError(t, err)
	return cfg
}

func newTestShopper(t *testing.T, cfg config) *shopper {
	t.Helper()
	return &shopper{
		api:       newAPIClient(cfg.baseURL, cfg.connections),
		cfg:       cfg,
		rec:       newRecorder(),
		runID:     "run",
		productID: "prod-1",
	}
}

func TestParseMode(t *testing.T) {
	mode, err := parseMode(" create-ship ")
	require.NoError(t, err)
	require.Equal(t, modeCreateShip, mode)

	_, err = parseMode("create-refund")
	require.ErrorContains(t, err, "unsupported mode")
}

func TestParseConfig_Flags(t *testing.T) {
	cfg, err := parseConfig([]string{
		"-base-url=http://127.0.0.1:8080/",
		"-mode=create-ship",
		"-total=12",
		"-cancel-rate=10",
		"-currency=USD",
		"-price=19.90",
		"-stock=50",
		"-timeout=2s",
	})
	require.NoError(t, err)
	require.True(t, cfg.totalSet)
	require.Equal(t, "http://127.0.0.1:8080", cfg.baseURL)
	require.Equal(t, modeCreateShip, cfg.mode)
	require.Equal(t, 12, cfg.total)
	require.Equal(t, 50, cfg.stock)
	require.Equal(t, "19.90", cfg.price.StringFixed(2))
	require.Equal(t, 2*time.Second, cfg.timeout)
	require.Equal(t, "count:12", cfg.target())

	cfg, err = parseConfig([]string{"-duration=3s"})
	require.NoError(t, err)
	require.False(t, cfg.totalSet)
	require.Equal(t, "duration:3s", cfg.target())

	cfg, err = parseConfig([]string{"-duration=3s", "-total=9"})
	require.NoError(t, err)
	require.Equal(t, "duration:3s,max-total:9", cfg.target())
}

func TestParseConfig_Validation(t *testing.T) {
	cases := map[string]struct {
		args    []string
		wantErr string
	}{
		"bad duration":      {[]string{"-duration=soon"}, "invalid value"},
		"negative duration": {[]string{"-duration=-1s"}, "duration must be >= 0"},
		"zero total":        {[]string{"-total=0"}, "total must be > 0"},
		"zero concurrency":  {[]string{"-concurrency=0"}, "concurrency and connections"},
		"bad price":         {[]string{"-price=abc"}, "parse price"},
		"zero price":        {[]string{"-price=0"}, "price must be > 0"},
		"zero stock":        {[]string{"-stock=0"}, "stock must be > 0"},
		"cancel rate":       {[]string{"-cancel-rate=101"}, "cancel-rate must be between 0 and 100"},
		"blank currency":    {[]string{"-currency= "}, "currency and customer-tag are required"},
		"blank base url":    {[]string{"-base-url= "}, "base-url is required"},
		"unknown mode":      {[]string{"-mode=refund"}, "unsupported mode"},
		"unknown flag":      {[]string{"-addr=localhost:50051"}, "flag provided but not defined"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseConfig(tc.args)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestConfig_FlowFor(t *testing.T) {
	cfg := config{mode: modeCreateShip, cancelRate: 10}
	require.Equal(t, flowCancel, cfg.flowFor(5))
	require.Equal(t, flowShip, cfg.flowFor(15))
	require.Equal(t, flowCancel, cfg.flowFor(105))

	require.Equal(t, flowCheckout, config{mode: modeCreate, cancelRate: 100}.flowFor(0))
	require.Equal(t, flowCancel, config{mode: modeCreateCancel}.flowFor(99))
	require.Equal(t, flowShip, config{mode: modeCreateShip}.flowFor(0))
}

func TestFeedJobs(t *testing.T) {
	drain := func(jobs <-chan int) []int {
		var got []int
		for index := range jobs {
			got = append(got, index)
		}
		return got
	}

	jobs := make(chan int, 8)
	feedJobs(context.Background(), jobs, config{total: 5})
	require.Equal(t, []int{0, 1, 2, 3, 4}, drain(jobs))

	jobs = make(chan int, 8)
	feedJobs(context.Background(), jobs, config{duration: time.Second, total: 3, totalSet: true})
	require.Len(t, drain(jobs), 3)

	jobs = make(chan int)
	go feedJobs(context.Background(), jobs, config{duration: 20 * time.Millisecond})
	require.NotEmpty(t, drain(jobs))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	jobs = make(chan int)
	go feedJobs(ctx, jobs, config{total: 1000})
	require.Less(t, len(drain(jobs)), 1000)
}

func TestClassify(t *testing.T) {
	require.Equal(t, outcomeTransport, classifyCheckout(0))
	require.Equal(t, outcomeOutOfStock, classifyCheckout(http.StatusConflict))
	require.Equal(t, outcomeDeclined, classifyCheckout(http.StatusBadGateway))
	require.Equal(t, outcomeRejected, classifyCheckout(http.StatusBadRequest))
	require.Equal(t, outcomeRejected, classifyCheckout(http.StatusNotFound))
	require.Equal(t, outcomeServerError, classifyCheckout(http.StatusInternalServerError))

	require.Equal(t, outcomeConflict, classifyFollowUp(http.StatusConflict))
	require.Equal(t, outcomeRejected, classifyFollowUp(http.StatusNotFound))
	require.Equal(t, outcomeServerError, classifyFollowUp(http.StatusBadGateway))
	require.Equal(t, outcomeTransport, classifyFollowUp(0))
}

func TestSummarizeLatency_NearestRank(t *testing.T) {
	values := make([]time.Duration, 0, 10)
	for i := 10; i >= 1; i-- {
		values = append(values, time.Duration(i)*time.Millisecond)
	}

	got := summarizeLatency(values)
	require.Equal(t, latencySummary{Mean: 5.5, P50: 5, P90: 9, P99: 10, Max: 10}, got)
	require.Equal(t, time.Duration(10)*time.Millisecond, values[0], "input must stay unsorted")

	require.Equal(t, latencySummary{}, summarizeLatency(nil))
	single := summarizeLatency([]time.Duration{1500 * time.Microsecond})
	require.Equal(t, 1.5, single.P50)
	require.Equal(t, 1.5, single.P99)
}

func TestRecorder_Summarize(t *testing.T) {
	rec := newRecorder()
	rec.call(endpointCreateOrder, http.StatusCreated, 10*time.Millisecond)
	rec.call(endpointCreateOrder, http.StatusConflict, 20*time.Millisecond)
	rec.call(endpointCreateOrder, 0, 30*time.Millisecond)
	rec.call(endpointShipOrder, http.StatusOK, 5*time.Millisecond)
	rec.scenario(flowShip, outcomeShipped, 15*time.Millisecond)
	rec.scenario(flowShip, outcomeOutOfStock, 20*time.Millisecond)
	rec.scenario(flowCheckout, outcomeTransport, 30*time.Millisecond)
	rec.sold(1, true)

	r := rec.summarize("run", time.Now(), 2*time.Second)
	require.EqualValues(t, 3, r.Scenarios)
	require.EqualValues(t, 1, r.Succeeded)
	require.EqualValues(t, 1, r.Warnings)
	require.Equal(t, 1.5, r.Throughput)
	require.Equal(t, map[outcome]int64{outcomeShipped: 1, outcomeOutOfStock: 1, outcomeTransport: 1}, r.Outcomes)
	require.EqualValues(t, 2, r.Flows[flowShip].Runs)
	require.Equal(t, map[string]int64{"201": 1, "409": 1, "transport_error": 1}, r.Endpoints[endpointCreateOrder].Statuses)
	require.EqualValues(t, 1, r.Endpoints[endpointShipOrder].Calls)

	held, unknown := rec.holdings()
	require.Equal(t, 1, held)
	require.EqualValues(t, 1, unknown)
}

func TestReport_Healthy(t *testing.T) {
	require.True(t, report{Scenarios: 2, Succeeded: 2, Stock: stockCheck{Consistent: true}}.healthy())
	require.False(t, report{Scenarios: 2, Succeeded: 1, Stock: stockCheck{Consistent: true}}.healthy())
	require.False(t, report{Scenarios: 2, Succeeded: 2}.healthy())
	require.True(t, report{Scenarios: 2, Succeeded: 2, Stock: stockCheck{Unknown: 1}}.healthy())
}

func TestShopper_CheckoutOutcomes(t *testing.T) {
	shop := newFakeShop(10)
	srv := httptest.NewServer(shop)
	defer srv.Close()

	s := newTestShopper(t, mustConfig(t, "-base-url="+srv.URL))
	ctx := context.Background()

	require.Equal(t, outcomeConfirmed, s.checkout(ctx, flowCheckout, 0))
	require.Equal(t, outcomeShipped, s.checkout(ctx, flowShip, 1))
	require.Equal(t, outcomeCancelled, s.checkout(ctx, flowCancel, 2))

	shop.cancelCode = http.StatusConflict
	require.Equal(t, outcomeConflict, s.checkout(ctx, flowCancel, 3))

	shop.orderCode = http.StatusConflict
	require.Equal(t, outcomeOutOfStock, s.checkout(ctx, flowCheckout, 4))
	shop.orderCode = http.StatusBadGateway
	require.Equal(t, outcomeDeclined, s.checkout(ctx, flowShip, 5))

	require.Equal(t, 6, shop.count("create"))
	require.Equal(t, 1, shop.count("ship"))
	require.Equal(t, 2, shop.count("cancel"))

	// Подтверждённый, отгруженный и заказ с неудавшейся отменой держат товар.
	held, _ := s.rec.holdings()
	require.Equal(t, 3, held)

	check, err := s.checkStock(ctx)
	require.NoError(t, err)
	require.Equal(t, stockCheck{ProductID: "prod-1", Seeded: 10, Sold: 3, Expected: 7, Actual: 7, Consistent: true}, check)
}

func TestShopper_CountsWarnings(t *testing.T) {
	shop := newFakeShop(5)
	shop.warning = "send confirmation: smtp unavailable"
	srv := httptest.NewServer(shop)
	defer srv.Close()

	s := newTestShopper(t, mustConfig(t, "-base-url="+srv.URL))
	require.Equal(t, outcomeConfirmed, s.play(context.Background(), 0))

	r := s.rec.summarize("run", time.Now(), time.Second)
	require.EqualValues(t, 1, r.Warnings)
	require.EqualValues(t, 1, r.Flows[flowCheckout].Outcomes[outcomeConfirmed])
}

func TestRun_SeedFailure(t *testing.T) {
	srv := httptest.NewServer(newFakeShop(1))
	cfg := mustConfig(t, "-base-url="+srv.URL, "-total=2")
	srv.Close()

	_, err := run(context.Background(), cfg)
	require.ErrorContains(t, err, "seed product")
}

func TestRun_AgainstFakeShop(t *testing.T) {
	shop := newFakeShop(20)
	srv := httptest.NewServer(shop)
	defer srv.Close()

	result, err := run(context.Background(), mustConfig(t, "-base-url="+srv.URL, "-mode=create-cancel", "-total=4", "-stock=20"))
	require.NoError(t, err)
	require.True(t, result.healthy())
	require.EqualValues(t, 4, result.Flows[flowCancel].Outcomes[outcomeCancelled])
	require.Equal(t, 1, shop.count("product"))
	require.Equal(t, 4, shop.count("cancel"))
	require.Equal(t, stockCheck{ProductID: "prod-1", Seeded: 20, Expected: 20, Actual: 20, Consistent: true}, result.Stock)
}

func newShopServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	entry := logger.WithField("component", "loadtest-test")

	services, err := app.NewServices(app.DefaultConfig(), app.Dependencies{
		Products: memory.NewProductRepository(),
		Orders:   memory.NewOrderRepository(),
		Timeline: memory.NewTimelineRepository(),
		Payments: payment.NewMockGateway(),
		Notifier: notification.NewMockNotifier(),
		Metrics:  metrics.NewShopMetricsWithRegisterer(prometheus.NewRegistry()),
		Logger:   entry,
	})
	require.NoError(t, err)

	router := httpapi.NewRouter(
		httpapi.NewHandler(services.Catalog, services.Orders, entry),
		metrics.NewHTTPMetricsWithRegisterer(prometheus.NewRegistry()),
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_AgainstShopRouter(t *testing.T) {
	srv := newShopServer(t)

	// Один покупатель: заказы делят товар, и конкурентные списания упёрлись бы в версию.
	cfg := mustConfig(t,
		"-base-url="+srv.URL,
		"-mode=create-ship",
		"-cancel-rate=3",
		"-total=6",
		"-concurrency=1",
		"-stock=10",
	)

	result, err := run(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, result.healthy(), "%+v", result)
	require.EqualValues(t, 6, result.Scenarios)
	require.Equal(t, map[outcome]int64{outcomeCancelled: 3, outcomeShipped: 3}, result.Outcomes)
	require.EqualValues(t, 3, result.Endpoints[endpointCancelOrder].Statuses["200"])
	require.EqualValues(t, 3, result.Endpoints[endpointShipOrder].Statuses["200"])
	require.EqualValues(t, 6, result.Endpoints[endpointCreateOrder].Statuses["201"])
	require.Equal(t, 3, result.Stock.Sold)
	require.Equal(t, 7, result.Stock.Actual)
	require.True(t, result.Stock.Consistent)

	var buf bytes.Buffer
	printReport(&buf, cfg, result)
	out := buf.String()
	require.Contains(t, out, "mode=create-ship count:6")
	require.Contains(t, out, "checkout+cancel")
	require.Contains(t, out, "cancelled=3")
	require.Contains(t, out, endpointCreateOrder)
	require.Contains(t, out, "stock consistent: seeded=10 sold=3 expected=7 actual=7")
}

func TestRun_ReportsOutOfStockAgainstShopRouter(t *testing.T) {
	srv := newShopServer(t)
	cfg := mustConfig(t, "-base-url="+srv.URL, "-total=4", "-concurrency=1", "-stock=2")

	result, err := run(context.Background(), cfg)
	require.NoError(t, err)
	require.False(t, result.healthy())
	require.Equal(t, map[outcome]int64{outcomeConfirmed: 2, outcomeOutOfStock: 2}, result.Outcomes)
	require.EqualValues(t, 2, result.Endpoints[endpointCreateOrder].Statuses["409"])
	require.Equal(t, stockCheck{
		ProductID:  result.Stock.ProductID,
		Seeded:     2,
		Sold:       2,
		Expected:   0,
		Actual:     0,
		Consistent: true,
	}, result.Stock)
}

func TestWriteJSONReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	sample := report{
		RunID:     "abc",
		Scenarios: 2,
		Succeeded: 2,
		Outcomes:  map[outcome]int64{outcomeShipped: 2},
		Stock:     stockCheck{Seeded: 5, Sold: 2, Expected: 3, Actual: 3, Consistent: true},
	}
	require.NoError(t, writeJSONReport(path, sample))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"shipped": 2`)

	var decoded report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, sample.Outcomes, decoded.Outcomes)
	require.Equal(t, sample.Stock, decoded.Stock)

	require.ErrorContains(t, writeJSONReport("../report.json", sample), "inside the working directory")
	require.ErrorContains(t, writeJSONReport(".", sample), "must point to a file")
}
