package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"lab-registration/internal/config"
	domain "lab-registration/internal/domain/registration"
	"lab-registration/internal/domain/user"
	"lab-registration/pkg/token"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// LoadTestConfig holds configuration for load testing
type LoadTestConfig struct {
	BaseURL         string
	SessionID       uuid.UUID
	NumStudents     int
	ConcurrentUsers int
	ProgramID       *uuid.UUID
}

// LoadTestResult holds the results of load testing
type LoadTestResult struct {
	TotalRequests     int
	Confirmed         int
	Waitlisted        int
	Rejected          int
	FailedReqs        int
	AvgResponseTimeMs float64
	MaxResponseTimeMs int64
	MinResponseTimeMs int64
	ThroughputRPS     float64
	ErrorsByType      map[string]int
}

type registrationEnvelope struct {
	Success bool                 `json:"success"`
	Data    *domain.Registration `json:"data"`
}

type summaryEnvelope struct {
	Data *domain.SlotSummary `json:"data"`
}

// LoadTester fires concurrent registrations at one lab session
type LoadTester struct {
	config    LoadTestConfig
	client    *http.Client
	signer    *token.Verifier
	tokens    []string
	results   LoadTestResult
	mutex     sync.Mutex
	startTime time.Time
}

func NewLoadTester(config LoadTestConfig, signer *token.Verifier) *LoadTester {
	return &LoadTester{
		config: config,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer: signer,
		results: LoadTestResult{
			ErrorsByType: make(map[string]int),
		},
	}
}

// Initialize mints one bearer token per simulated student
func (lt *LoadTester) Initialize() error {
	fmt.Println("Initializing load test data...")

	lt.tokens = make([]string, lt.config.NumStudents)
	for i := range lt.tokens {
		id := uuid.New()
		tok, err := lt.signer.Sign(&user.Principal{
			ID:        id,
			Email:     fmt.Sprintf("loadtest+%s@example.edu", id.String()[:8]),
			FullName:  fmt.Sprintf("Load Test Student %d", i+1),
			ProgramID: lt.config.ProgramID,
			Role:      user.RoleStudent,
		}, time.Hour)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}
		lt.tokens[i] = tok
	}

	fmt.Printf("Generated %d students\n", len(lt.tokens))
	return nil
}

// RunLoadTest registers every student once, ConcurrentUsers at a time
func (lt *LoadTester) RunLoadTest() {
	fmt.Printf("Starting load test with %d concurrent users...\n", lt.config.ConcurrentUsers)

	lt.startTime = time.Now()
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, lt.config.ConcurrentUsers)

	for i := range lt.tokens {
		wg.Add(1)

		go func(idx int) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			lt.register(lt.tokens[idx])
		}(i)
	}

	wg.Wait()

	lt.results.ThroughputRPS = float64(lt.results.TotalRequests) / time.Since(lt.startTime).Seconds()
}

func (lt *LoadTester) register(bearer string) {
	startTime := time.Now()

	body, err := json.Marshal(map[string]any{"lab_session_id": lt.config.SessionID})
	if err != nil {
		lt.recordError("json_marshal")
		return
	}

	req, err := http.NewRequest(http.MethodPost, lt.config.BaseURL+"/api/v1/registrations", bytes.NewReader(body))
	if err != nil {
		lt.recordError("build_request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := lt.client.Do(req)
	responseTime := time.Since(startTime)
	if err != nil {
		lt.recordError("http_request")
		return
	}
	defer resp.Body.Close()

	var envelope registrationEnvelope
	_ = json.NewDecoder(resp.Body).Decode(&envelope)

	lt.recordResponse(resp.StatusCode, envelope.Data, responseTime)
}

func (lt *LoadTester) recordResponse(statusCode int, reg *domain.Registration, responseTime time.Duration) {
	lt.mutex.Lock()
	defer lt.mutex.Unlock()

	lt.results.TotalRequests++
	responseTimeMs := responseTime.Milliseconds()

	if lt.results.MaxResponseTimeMs < responseTimeMs {
		lt.results.MaxResponseTimeMs = responseTimeMs
	}
	if lt.results.MinResponseTimeMs == 0 || lt.results.MinResponseTimeMs > responseTimeMs {
		lt.results.MinResponseTimeMs = responseTimeMs
	}

	currentCount := float64(lt.results.TotalRequests)
	lt.results.AvgResponseTimeMs = (lt.results.AvgResponseTimeMs*(currentCount-1) + float64(responseTimeMs)) / currentCount

	switch {
	case statusCode == http.StatusCreated && reg != nil && reg.Status == domain.StatusConfirmed:
		lt.results.Confirmed++
	case statusCode == http.StatusCreated && reg != nil && reg.Status == domain.StatusWaitlisted:
		lt.results.Waitlisted++
	case statusCode >= 400 && statusCode < 500:
		lt.results.Rejected++
		lt.results.ErrorsByType[fmt.Sprintf("http_%d", statusCode)]++
	default:
		lt.results.FailedReqs++
		lt.results.ErrorsByType[fmt.Sprintf("http_%d", statusCode)]++
	}
}

func (lt *LoadTester) recordError(errorType string) {
	lt.mutex.Lock()
	defer lt.mutex.Unlock()

	lt.results.TotalRequests++
	lt.results.FailedReqs++
	lt.results.ErrorsByType[errorType]++
}

// fetchSummary reads the session's slot summary after the run
func (lt *LoadTester) fetchSummary() (*domain.SlotSummary, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/v1/sessions/%s/summary", lt.config.BaseURL, lt.config.SessionID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+lt.tokens[0])

	resp, err := lt.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("summary returned HTTP %d", resp.StatusCode)
	}

	var envelope summaryEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, err
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("summary response had no data")
	}
	return envelope.Data, nil
}

// printResults displays the results and checks the capacity bound. It
// returns false when the server let more students in than the session holds.
func (lt *LoadTester) printResults(summary *domain.SlotSummary) bool {
	pct := func(n int) float64 {
		if lt.results.TotalRequests == 0 {
			return 0
		}
		return float64(n) / float64(lt.results.TotalRequests) * 100
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Printf("Test Configuration:\n")
	fmt.Printf("  - Session: %s\n", lt.config.SessionID)
	fmt.Printf("  - Students: %d\n", lt.config.NumStudents)
	fmt.Printf("  - Concurrent Users: %d\n", lt.config.ConcurrentUsers)

	fmt.Printf("\nOutcomes:\n")
	fmt.Printf("  - Total Requests: %d\n", lt.results.TotalRequests)
	fmt.Printf("  - Confirmed: %d (%.2f%%)\n", lt.results.Confirmed, pct(lt.results.Confirmed))
	fmt.Printf("  - Waitlisted: %d (%.2f%%)\n", lt.results.Waitlisted, pct(lt.results.Waitlisted))
	fmt.Printf("  - Rejected: %d (%.2f%%)\n", lt.results.Rejected, pct(lt.results.Rejected))
	fmt.Printf("  - Failed: %d (%.2f%%)\n", lt.results.FailedReqs, pct(lt.results.FailedReqs))

	fmt.Printf("\nResponse Time Metrics:\n")
	fmt.Printf("  - Average: %.2f ms\n", lt.results.AvgResponseTimeMs)
	fmt.Printf("  - Minimum: %d ms\n", lt.results.MinResponseTimeMs)
	fmt.Printf("  - Maximum: %d ms\n", lt.results.MaxResponseTimeMs)
	fmt.Printf("  - Requests per Second: %.2f\n", lt.results.ThroughputRPS)

	if len(lt.results.ErrorsByType) > 0 {
		fmt.Printf("\nError Breakdown:\n")
		for errorType, count := range lt.results.ErrorsByType {
			fmt.Printf("  - %s: %d\n", errorType, count)
		}
	}

	if summary == nil {
		return true
	}

	fmt.Printf("\nCapacity Check:\n")
	fmt.Printf("  - Total Capacity: %d\n", summary.TotalCapacity)
	fmt.Printf("  - Registered Seats: %d\n", summary.TotalRegistered)

	ok := summary.TotalRegistered <= summary.TotalCapacity && lt.results.Confirmed <= summary.TotalCapacity
	if ok {
		fmt.Printf("  - PASS: no slot was oversold\n")
	} else {
		fmt.Printf("  - FAIL: more confirmations than seats\n")
	}
	return ok
}

// loadtestCmd represents the loadtest command
var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Run a registration load test against a running server",
	Long: `Register many students concurrently for one OPEN lab session and check
that the server never confirms more students than the session has seats.
Tokens are signed with auth.jwt_secret, so the server must share it.`,
	Run: func(cmd *cobra.Command, args []string) {
		runLoadTest()
	},
}

var (
	baseURL         string
	sessionIDFlag   string
	programIDFlag   string
	numStudents     int
	concurrentUsers int
)

func init() {
	rootCmd.AddCommand(loadtestCmd)

	loadtestCmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the registration API")
	loadtestCmd.Flags().StringVar(&sessionIDFlag, "session", "", "Lab session to register for (required)")
	loadtestCmd.Flags().StringVar(&programIDFlag, "program", "", "Program ID to put on the simulated students")
	loadtestCmd.Flags().IntVar(&numStudents, "students", 200, "Number of students to simulate")
	loadtestCmd.Flags().IntVar(&concurrentUsers, "concurrent", 50, "Number of concurrent users")
	loadtestCmd.MarkFlagRequired("session")
}

func runLoadTest() {
	cfg := config.Get()

	sessionID, err := uuid.Parse(sessionIDFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --session: %v\n", err)
		os.Exit(1)
	}

	ltConfig := LoadTestConfig{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		SessionID:       sessionID,
		NumStudents:     numStudents,
		ConcurrentUsers: concurrentUsers,
	}
	if programIDFlag != "" {
		programID, err := uuid.Parse(programIDFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --program: %v\n", err)
			os.Exit(1)
		}
		ltConfig.ProgramID = &programID
	}
	if ltConfig.NumStudents < 1 || ltConfig.ConcurrentUsers < 1 {
		fmt.Fprintln(os.Stderr, "--students and --concurrent must be positive")
		os.Exit(1)
	}

	loadTester := NewLoadTester(ltConfig, token.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer))
	if err := loadTester.Initialize(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Println("Lab Registration Load Test")
	fmt.Println("==========================")

	loadTester.RunLoadTest()

	summary, err := loadTester.fetchSummary()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not read slot summary: %v\n", err)
	}

	if !loadTester.printResults(summary) {
		os.Exit(1)
	}
}
