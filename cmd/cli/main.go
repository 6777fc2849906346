package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/nazeru/shop-orders-go/pkg/client"
)

type action struct {
	Name        string
	Description string
}

var actions = []action{
	{"list", "List the first page of products"},
	{"seed", "Create a demo product"},
	{"order", "Order one unit of the selected product"},
	{"bench", "Run a 5s order benchmark on the selected product"},
}

type model struct {
	api      *client.Client
	products []client.Product
	selected int
	action   int
	status   string
	detail   string
	busy     bool
}

func initialModel(api *client.Client) model {
	return model{api: api, status: "Ready"}
}

func (m model) Init() tea.Cmd {
	return runActionCmd(m.api, "list", 0)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up":
			if m.selected > 0 {
				m.selected--
			}
		case "down":
			if m.selected < len(m.products)-1 {
				m.selected++
			}
		case "left":
			if m.action > 0 {
				m.action--
			}
		case "right":
			if m.action < len(actions)-1 {
				m.action++
			}
		case "enter":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Running..."
			var productID int64
			if m.selected < len(m.products) {
				productID = m.products[m.selected].ID
			}
			return m, runActionCmd(m.api, actions[m.action].Name, productID)
		}
	case actionResult:
		m.busy = false
		m.status = msg.status
		m.detail = msg.detail
		if msg.products != nil {
			m.products = msg.products
			if m.selected >= len(m.products) {
				m.selected = max(len(m.products)-1, 0)
			}
		}
	}
	return m, nil
}

func (m model) View() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "shop-orders CLI")
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "Products:")
	if len(m.products) == 0 {
		fmt.Fprintln(b, "   (none)")
	}
	for i, p := range m.products {
		marker := " "
		if i == m.selected {
			marker = ">"
		}
		fmt.Fprintf(b, " %s #%d %-24s %10s  stock=%d\n", marker, p.ID, p.Name, p.Price, p.Stock)
	}
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "Actions (use left/right):")
	for i, a := range actions {
		marker := " "
		if i == m.action {
			marker = "*"
		}
		fmt.Fprintf(b, " %s %s - %s\n", marker, a.Name, a.Description)
	}
	fmt.Fprintln(b, "")
	fmt.Fprintf(b, "Status: %s\n", m.status)
	if m.detail != "" {
		fmt.Fprintf(b, "Result: %s\n", m.detail)
	}
	fmt.Fprintln(b, "\nControls: up/down select product, left/right select action, enter to run, q to quit")
	return b.String()
}

type actionResult struct {
	status   string
	detail   string
	products []client.Product
}

func runActionCmd(api *client.Client, name string, productID int64) tea.Cmd {
	return func() tea.Msg {
		return runAction(api, name, productID)
	}
}

func runAction(api *client.Client, name string, productID int64) actionResult {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch name {
	case "seed":
		p, err := api.CreateProduct(ctx, client.NewProduct{
			Name:        "Demo " + uuid.NewString()[:6],
			Description: "Created from the CLI",
			Price:       "19.99",
			Stock:       100,
		})
		if err != nil {
			return actionResult{status: fmt.Sprintf("Create failed: %v", err)}
		}
		res := refresh(ctx, api)
		res.status = fmt.Sprintf("Created product #%d", p.ID)
		return res
	case "order":
		if productID == 0 {
			return actionResult{status: "Select a product first"}
		}
		o, _, err := api.CreateOrder(ctx, uuid.NewString(), []client.OrderLine{{ProductID: productID, Quantity: 1}})
		if err != nil {
			return actionResult{status: fmt.Sprintf("Order failed: %v", err)}
		}
		res := refresh(ctx, api)
		res.status = fmt.Sprintf("Order #%d %s, total %s", o.ID, o.Status, o.TotalPrice)
		return res
	case "bench":
		if productID == 0 {
			return actionResult{status: "Select a product first"}
		}
		detail := runBenchmark(api, productID)
		res := refresh(ctx, api)
		res.status = "Benchmark finished"
		res.detail = detail
		return res
	default:
		res := refresh(ctx, api)
		if res.status == "" {
			res.status = fmt.Sprintf("Loaded %d products", len(res.products))
		}
		return res
	}
}

func refresh(ctx context.Context, api *client.Client) actionResult {
	page, err := api.ListProducts(ctx, 1, 20)
	if err != nil {
		return actionResult{status: fmt.Sprintf("List failed: %v", err)}
	}
	return actionResult{products: page.Results}
}

func runBenchmark(api *client.Client, productID int64) string {
	duration := 5 * time.Second
	vus := 5
	var (
		mu       sync.Mutex
		total    time.Duration
		count    int
		rejected int
		failed   int
	)
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < vus; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				start := time.Now()
				_, _, err := api.CreateOrder(ctx, uuid.NewString(), []client.OrderLine{{ProductID: productID, Quantity: 1}})
				mu.Lock()
				switch {
				case err == nil:
					count++
					total += time.Since(start)
				case strings.Contains(err.Error(), "insufficient stock"):
					rejected++
				case ctx.Err() == nil:
					failed++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	avg := time.Duration(0)
	if count > 0 {
		avg = total / time.Duration(count)
	}
	throughput := float64(count) / duration.Seconds()
	return fmt.Sprintf("orders=%d rejected=%d errors=%d avg=%s throughput=%.2f orders/s", count, rejected, failed, avg, throughput)
}

func main() {
	runCmd := flag.String("run", "", "run one action and exit: list|seed|order|bench")
	product := flag.Int64("product", 0, "product id for order and bench")
	flag.Parse()

	api := client.New(getenv("ORDER_BASE_URL", "http://localhost:8080"), getenv("API_TOKEN", ""), 10*time.Second)

	if *runCmd != "" {
		res := runAction(api, *runCmd, *product)
		fmt.Println(res.status)
		for _, p := range res.products {
			fmt.Printf("#%d %s %s stock=%d\n", p.ID, p.Name, p.Price, p.Stock)
		}
		if res.detail != "" {
			fmt.Println(res.detail)
		}
		return
	}

	p := tea.NewProgram(initialModel(api))
	if _, err := p.Run(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
