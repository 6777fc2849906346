package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nazeru/shop-orders-go/pkg/client"
)

type benchResult struct {
	Timestamp          string         `json:"timestamp"`
	BaseURL            string         `json:"base_url"`
	ProductID          int64          `json:"product_id"`
	InitialStock       int            `json:"initial_stock"`
	FinalStock         int            `json:"final_stock"`
	QuantityPerOrder   int            `json:"quantity_per_order"`
	Orders             int            `json:"orders"`
	Concurrency        int            `json:"concurrency"`
	SuccessfulRequests int            `json:"successful_requests"`
	RejectedRequests   int            `json:"rejected_requests"`
	ErrorRequests      int            `json:"error_requests"`
	Oversold           bool           `json:"oversold"`
	DurationSeconds    float64        `json:"duration_seconds"`
	AvgLatencyMs       float64        `json:"avg_latency_ms"`
	MinLatencyMs       float64        `json:"min_latency_ms"`
	MaxLatencyMs       float64        `json:"max_latency_ms"`
	P50LatencyMs       float64        `json:"p50_latency_ms"`
	P90LatencyMs       float64        `json:"p90_latency_ms"`
	P95LatencyMs       float64        `json:"p95_latency_ms"`
	P99LatencyMs       float64        `json:"p99_latency_ms"`
	ThroughputRPS      float64        `json:"throughput_rps"`
	StatusCounts       map[string]int `json:"status_counts"`
	ErrorClasses       map[string]int `json:"error_classes"`
	FirstError         string         `json:"first_error"`
}

type metrics struct {
	mu           sync.Mutex
	success      int
	rejected     int
	errors       int
	total        time.Duration
	minLatency   time.Duration
	maxLatency   time.Duration
	latenciesMs  []float64
	statusCounts map[string]int
	errorClasses map[string]int
	firstError   string
}

func newMetrics() *metrics {
	return &metrics{
		statusCounts: make(map[string]int),
		errorClasses: make(map[string]int),
	}
}

// record counts one order attempt. Stock rejections are expected once the
// product sells out and are not errors.
func (m *metrics) record(latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, class := classify(err)
	m.statusCounts[strconv.Itoa(status)]++
	switch class {
	case "":
		m.success++
		m.total += latency
		if m.minLatency == 0 || latency < m.minLatency {
			m.minLatency = latency
		}
		if latency > m.maxLatency {
			m.maxLatency = latency
		}
		m.latenciesMs = append(m.latenciesMs, float64(latency.Milliseconds()))
		return
	case "business_rejected":
		m.rejected++
	default:
		m.errors++
	}
	m.errorClasses[class]++
	if m.firstError == "" {
		m.firstError = err.Error()
	}
}

func classify(err error) (int, string) {
	if err == nil {
		return 201, ""
	}
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return 0, "transport"
	}
	switch {
	case apiErr.Status == 400 && strings.Contains(apiErr.Message, "insufficient stock"):
		return apiErr.Status, "business_rejected"
	case apiErr.Status >= 500:
		return apiErr.Status, "http_5xx"
	default:
		return apiErr.Status, "http_4xx"
	}
}

func main() {
	baseURL := flag.String("base-url", getenv("ORDER_BASE_URL", "http://localhost:8080"), "order-service base URL")
	token := flag.String("token", getenv("API_TOKEN", ""), "bearer token")
	total := flag.Int("total", 1000, "number of orders to place")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	stock := flag.Int("stock", 500, "initial stock of the contended product")
	quantity := flag.Int("quantity", 1, "quantity per order")
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	output := flag.String("output", "", "optional output path for JSON result")
	flag.Parse()

	if *total <= 0 || *concurrency <= 0 || *quantity <= 0 || *stock < 0 {
		fmt.Fprintln(os.Stderr, "total, concurrency and quantity must be > 0, stock must be >= 0")
		os.Exit(1)
	}

	c := client.New(*baseURL, *token, *timeout)
	ctx := context.Background()

	product, err := c.CreateProduct(ctx, client.NewProduct{
		Name:        "bench-" + uuid.NewString()[:8],
		Description: "bench-runner contention target",
		Price:       "9.99",
		Stock:       *stock,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create product: %v\n", err)
		os.Exit(1)
	}

	tasks := make(chan struct{})
	var wg sync.WaitGroup
	m := newMetrics()

	start := time.Now()
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range tasks {
				began := time.Now()
				_, _, err := c.CreateOrder(ctx, uuid.NewString(), []client.OrderLine{{ProductID: product.ID, Quantity: *quantity}})
				m.record(time.Since(began), err)
			}
		}()
	}
	for i := 0; i < *total; i++ {
		tasks <- struct{}{}
	}
	close(tasks)
	wg.Wait()
	duration := time.Since(start)

	final, err := c.GetProduct(ctx, product.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read final stock: %v\n", err)
		os.Exit(1)
	}

	result := summarize(m, duration)
	result.Timestamp = time.Now().UTC().Format(time.RFC3339)
	result.BaseURL = *baseURL
	result.ProductID = product.ID
	result.InitialStock = *stock
	result.FinalStock = final.Stock
	result.QuantityPerOrder = *quantity
	result.Orders = *total
	result.Concurrency = *concurrency
	result.Oversold = oversold(*stock, final.Stock, m.success, *quantity)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
		os.Exit(1)
	}
	if *output != "" {
		if err := writeJSON(*output, result); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write output: %v\n", err)
			os.Exit(1)
		}
	}
	if result.Oversold {
		fmt.Fprintln(os.Stderr, "OVERSOLD: committed orders do not match the stock decrease")
		os.Exit(2)
	}
}

func summarize(m *metrics, duration time.Duration) benchResult {
	avg, minMs, maxMs := 0.0, 0.0, 0.0
	if m.success > 0 {
		avg = float64(m.total.Milliseconds()) / float64(m.success)
		minMs = float64(m.minLatency.Milliseconds())
		maxMs = float64(m.maxLatency.Milliseconds())
	}
	p50, p90, p95, p99 := calcPercentiles(m.latenciesMs)
	return benchResult{
		SuccessfulRequests: m.success,
		RejectedRequests:   m.rejected,
		ErrorRequests:      m.errors,
		DurationSeconds:    duration.Seconds(),
		AvgLatencyMs:       avg,
		MinLatencyMs:       minMs,
		MaxLatencyMs:       maxMs,
		P50LatencyMs:       p50,
		P90LatencyMs:       p90,
		P95LatencyMs:       p95,
		P99LatencyMs:       p99,
		ThroughputRPS:      float64(m.success) / duration.Seconds(),
		StatusCounts:       m.statusCounts,
		ErrorClasses:       m.errorClasses,
		FirstError:         m.firstError,
	}
}

// oversold reports whether the stock decrease disagrees with the number of
// committed orders, or stock went negative.
func oversold(initial, final, committed, quantity int) bool {
	return final < 0 || initial-final != committed*quantity
}

func writeJSON(path string, result benchResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func calcPercentiles(values []float64) (float64, float64, float64, float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}
	sort.Float64s(values)
	return percentile(values, 0.50), percentile(values, 0.90), percentile(values, 0.95), percentile(values, 0.99)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	return sorted[max(rank, 0)]
}
