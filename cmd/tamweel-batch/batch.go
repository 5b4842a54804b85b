package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var numericColumns = []struct {
	column string
	field  string
}{
	{"loan_amount", "loanAmount"},
	{"duration", "duration"},
	{"profitability", "profitability"},
	{"cashflow", "cashflow"},
	{"equity_share", "equityShare"},
	{"sector_risk", "sectorRisk"},
	{"startup_age", "startupAge"},
	{"debt_ratio", "debtRatio"},
}

var classifications = []string{"low", "medium", "high"}

// request is one CSV row ready to post.
type request struct {
	Line     int
	Body     map[string]any
	Expected string
}

// assessResponse is the subset of the /assess response the tool reads.
type assessResponse struct {
	ScoreDisplay   string `json:"scoreDisplay"`
	Classification string `json:"classification"`
	Label          string `json:"label"`
	Findings       []struct {
		RuleID string `json:"ruleId"`
	} `json:"findings"`
}

// readRequests parses the CSV. Rows with unparsable numbers are rejected
// with their line number; an unknown profile or contract is left for the
// server to reject.
func readRequests(r io.Reader, defaultProfile string, limit int) ([]request, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	required := []string{"contract_type"}
	for _, c := range numericColumns {
		required = append(required, c.column)
	}
	for _, col := range required {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}
	if _, ok := colIndex["profile"]; !ok && defaultProfile == "" {
		return nil, errors.New(`missing column "profile" and no default profile given`)
	}

	var requests []request
	line := 1
	for {
		record, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		get := func(col string) string {
			if i, ok := colIndex[col]; ok && i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}

		body := make(map[string]any, 10)

		profile := get("profile")
		if profile == "" {
			profile = defaultProfile
		}
		body["profile"] = profile

		contract := get("contract_type")
		if code, err := strconv.Atoi(contract); err == nil {
			body["contractType"] = code
		} else {
			body["contractType"] = contract
		}

		for _, c := range numericColumns {
			v, err := strconv.ParseFloat(get(c.column), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: column %s: %w", line, c.column, err)
			}
			body[c.field] = v
		}

		requests = append(requests, request{
			Line:     line,
			Body:     body,
			Expected: strings.ToLower(get("expected")),
		})

		if limit > 0 && len(requests) >= limit {
			break
		}
	}

	return requests, nil
}

type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *client) checkHealth() error {
	resp, err := c.http.Get(c.baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (c *client) assess(body map[string]any) (*assessResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Post(c.baseURL+"/assess", "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, e.Error)
	}

	var result assessResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// stats tracks batch results.
type stats struct {
	mu sync.Mutex

	ByClass   map[string]int64
	Agreement map[string]map[string]int64 // expected -> predicted
	Findings  int64

	Processed int64
	Errors    int64
	LatencyMs int64
}

func newStats() *stats {
	return &stats{
		ByClass:   make(map[string]int64),
		Agreement: make(map[string]map[string]int64),
	}
}

func (s *stats) record(req request, res *assessResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ByClass[res.Classification]++
	s.Findings += int64(len(res.Findings))

	if req.Expected != "" {
		row := s.Agreement[req.Expected]
		if row == nil {
			row = make(map[string]int64)
			s.Agreement[req.Expected] = row
		}
		row[res.Classification]++
	}
}

func run(c *client, requests []request, numWorkers int, verbose bool) *stats {
	if numWorkers <= 0 {
		numWorkers = 1
	}

	st := newStats()
	work := make(chan request, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for req := range work {
				start := time.Now()
				res, err := c.assess(req.Body)
				atomic.AddInt64(&st.LatencyMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&st.Processed, 1)

				if err != nil {
					atomic.AddInt64(&st.Errors, 1)
					if verbose {
						fmt.Printf("ERROR: line %d -> %v\n", req.Line, err)
					}
					continue
				}

				st.record(req, res)

				if verbose {
					mark := " "
					if req.Expected != "" {
						mark = "✓"
						if req.Expected != res.Classification {
							mark = "✗"
						}
					}
					fmt.Printf("%s line %-5d | %-12v | score %s | %-6s %s | findings %d\n",
						mark, req.Line, req.Body["profile"], res.ScoreDisplay,
						res.Classification, res.Label, len(res.Findings))
				}
			}
		}()
	}

	for _, req := range requests {
		work <- req
	}
	close(work)

	wg.Wait()
	return st
}

func printResults(s *stats, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        BATCH RESULTS                          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DISTRIBUTION\n")
	fmt.Printf("   Total Processed:  %d\n", s.Processed)
	fmt.Printf("   Errors:           %d\n", s.Errors)
	scored := s.Processed - s.Errors
	for _, c := range classifications {
		pct := 0.0
		if scored > 0 {
			pct = 100 * float64(s.ByClass[c]) / float64(scored)
		}
		fmt.Printf("   %-7s %8d (%.2f%%)\n", c+":", s.ByClass[c], pct)
	}
	fmt.Printf("   Findings:         %d\n", s.Findings)

	if len(s.Agreement) > 0 {
		fmt.Printf("\n📈 AGREEMENT (rows: expected, columns: predicted)\n")
		fmt.Printf("   %-8s", "")
		for _, c := range classifications {
			fmt.Printf(" %8s", c)
		}
		fmt.Println()

		var agree, total int64
		expected := make([]string, 0, len(s.Agreement))
		for e := range s.Agreement {
			expected = append(expected, e)
		}
		sort.Slice(expected, func(i, j int) bool { return rank(expected[i]) < rank(expected[j]) })

		for _, e := range expected {
			fmt.Printf("   %-8s", e)
			for _, c := range classifications {
				n := s.Agreement[e][c]
				fmt.Printf(" %8d", n)
				total += n
				if e == c {
					agree += n
				}
			}
			fmt.Println()
		}
		if total > 0 {
			fmt.Printf("   Agreement:  %.4f\n", float64(agree)/float64(total))
		}
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if s.Processed > 0 {
		avgMs := float64(s.LatencyMs) / float64(s.Processed)
		rps := float64(s.Processed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f req/sec\n", rps)
	}
	fmt.Println()
}

func rank(c string) int {
	for i, k := range classifications {
		if k == c {
			return i
		}
	}
	return len(classifications)
}
