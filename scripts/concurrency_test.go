//go:build ignore
// +build ignore

// Package main provides a manual concurrency stress test for borrow approvals.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <request_id> [request_id ...]
//
// Or use the convenience environment variables:
//
//	REQUEST_IDS=<id1>,<id2>,...  go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Logs in as the seed administrator (ADMIN_USERNAME / ADMIN_PASSWORD).
//  2. Fires one goroutine per Pending request, all approving at the same moment.
//  3. Prints how many were approved and how many were refused for lack of copies.
//
// Prerequisites:
//   - Server must be running.
//   - The requests should all point at the same book, with fewer copies than requests.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type approveResult struct {
	RequestID  string
	StatusCode int
	Body       string
	Err        error
}

func main() {
	serverAddr := getenv("SERVER_ADDR", defaultServerAddr)
	adminUser := getenv("ADMIN_USERNAME", "admin")
	adminPass := getenv("ADMIN_PASSWORD", "admin123")

	var requestIDs []string
	if v := os.Getenv("REQUEST_IDS"); v != "" {
		requestIDs = strings.Split(v, ",")
	}
	if len(os.Args) > 1 {
		requestIDs = os.Args[1:]
	}
	if len(requestIDs) == 0 {
		log.Fatal("Usage: REQUEST_IDS=<id1,id2,...> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <request_id> [request_id ...]")
	}

	token, err := login(serverAddr, adminUser, adminPass)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}

	fmt.Printf("=== Library Approval Concurrency Test ===\n")
	fmt.Printf("Server   : %s\n", serverAddr)
	fmt.Printf("Requests : %d\n\n", len(requestIDs))

	results := make([]approveResult, len(requestIDs))
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i, id := range requestIDs {
		wg.Add(1)
		go func(idx int, requestID string) {
			defer wg.Done()
			<-start
			results[idx] = approve(serverAddr, token, strings.TrimSpace(requestID))
		}(i, id)
	}

	fmt.Println("Firing all approvals simultaneously...")
	close(start)
	wg.Wait()
	fmt.Println("All approvals completed.")
	fmt.Println()

	var approved, refused, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] request=%-6s err=%v\n", r.RequestID, r.Err)
		case r.StatusCode == http.StatusOK:
			approved++
			fmt.Printf("  [LENT] request=%-6s\n", r.RequestID)
		case r.StatusCode == http.StatusConflict:
			refused++
			fmt.Printf("  [FULL] request=%-6s %s\n", r.RequestID, r.Body)
		default:
			failures++
			fmt.Printf("  [FAIL] request=%-6s status=%d %s\n", r.RequestID, r.StatusCode, r.Body)
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Approved : %d\n", approved)
	fmt.Printf("Refused  : %d\n", refused)
	fmt.Printf("Failures : %d\n", failures)
	fmt.Printf("Approved must not exceed the book's available copies before the run.\n")

	if failures > 0 {
		os.Exit(1)
	}
}

func login(serverAddr, username, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(serverAddr+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, raw)
	}
	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return parsed.Token, nil
}

func approve(serverAddr, token, requestID string) approveResult {
	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/requests/%s/approve", serverAddr, requestID), nil)
	if err != nil {
		return approveResult{RequestID: requestID, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return approveResult{RequestID: requestID, Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return approveResult{RequestID: requestID, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
