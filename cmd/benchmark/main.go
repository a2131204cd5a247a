package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	tokensFile  string
	concurrency int
	duration    time.Duration
	workload    string
)

// Metrics
var (
	totalRequests uint64
	success201    uint64 // Completed transfers
	reject400     uint64 // Business rule rejections, mostly insufficient balance
	fail409       uint64 // Version conflicts that exhausted retries
	failOther     uint64
)

// party is one seeded user able to send money.
type party struct {
	token     string
	accountID string
}

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.StringVar(&tokensFile, "tokens", "tokens.txt", "Seeder output: one \"<user id> <token>\" per line")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
}

func main() {
	flag.Parse()
	parties, err := loadParties()
	if err != nil {
		slog.Error("Unable to prepare benchmark", "error", err)
		os.Exit(1)
	}
	if len(parties) < 2 {
		slog.Error("Need at least two seeded users", "found", len(parties))
		os.Exit(1)
	}
	slog.Info("Starting Benchmark", "workload", workload, "workers", concurrency, "duration", duration, "parties", len(parties))

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, parties)
	}

	wg.Wait()
	printResults(time.Since(start))
}

// loadParties reads tokens and resolves each user's first account.
func loadParties() ([]party, error) {
	f, err := os.Open(tokensFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	var out []party
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}
		req, _ := http.NewRequest(http.MethodGet, targetURL+"/api/v1/accounts", nil)
		req.Header.Set("Authorization", "Bearer "+fields[1])
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		var accounts []struct {
			ID string `json:"id"`
		}
		err = json.NewDecoder(resp.Body).Decode(&accounts)
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("list accounts for %s: status %d: %v", fields[0], resp.StatusCode, err)
		}
		if len(accounts) > 0 {
			out = append(out, party{token: fields[1], accountID: accounts[0].ID})
		}
	}
	return out, sc.Err()
}

func worker(wg *sync.WaitGroup, start time.Time, parties []party) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		from, to := pickParties(len(parties))

		payload := map[string]interface{}{
			"sourceAccountId":      parties[from].accountID,
			"destinationAccountId": parties[to].accountID,
			"amount":               1,
			"category":             "Benchmark",
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest(http.MethodPost, targetURL+"/api/v1/transfers", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+parties[from].token)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case http.StatusCreated:
			atomic.AddUint64(&success201, 1)
		case http.StatusBadRequest:
			atomic.AddUint64(&reject400, 1)
		case http.StatusConflict:
			atomic.AddUint64(&fail409, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pickParties(n int) (int, int) {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic goes between the first two parties
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return 0, 1
			}
			return 1, 0
		}
	}

	// Uniform Random
	a := rand.Intn(n)
	b := rand.Intn(n)
	for a == b {
		b = rand.Intn(n)
	}
	return a, b
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	r400 := atomic.LoadUint64(&reject400)
	f409 := atomic.LoadUint64(&fail409)
	fErr := atomic.LoadUint64(&failOther)

	var abortRate float64
	if total > 0 {
		abortRate = float64(f409) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":        workload,
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_tps":  float64(total) / d.Seconds(),
		"success_created": s201,
		"rejected_rule":   r400,
		"aborts_conflict": f409,
		"abort_rate_pct":  abortRate,
		"errors":          fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		slog.Error("Unable to save results", "error", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
