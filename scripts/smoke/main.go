package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type target struct {
	Method   string          `json:"method"`
	Path     string          `json:"path"`
	As       string          `json:"as"`
	Body     json.RawMessage `json:"body,omitempty"`
	Expect   int             `json:"expect"`
	Critical bool            `json:"critical"`
}

type targetFile struct {
	Targets []target `json:"targets"`
}

type result struct {
	Target   target
	Status   int
	Envelope bool
	Err      error
	Duration time.Duration
}

func (r result) passed() bool {
	return r.Err == nil && r.Status == r.Target.Expect && r.Envelope
}

func main() {
	var (
		base        string
		targetsPath string
		timeout     time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "smoke", "targets.json"), "Path to JSON targets file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var (
		results  []result
		breaking int
		optional int
	)
	for _, t := range targets {
		res := check(client, base, t)
		if !res.passed() {
			if t.Critical {
				breaking++
			} else {
				optional++
			}
		}
		results = append(results, res)
	}

	printReport(results)
	fmt.Printf("Critical failures: %d, Optional failures: %d\n", breaking, optional)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file targetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return file.Targets, nil
}

// tokenFor reads the bearer token for a role from SMOKE_TOKEN_<ROLE>.
func tokenFor(role string) string {
	if role == "" {
		return ""
	}
	return os.Getenv("SMOKE_TOKEN_" + strings.ToUpper(role))
}

func check(client *http.Client, base string, tgt target) result {
	res := result{Target: tgt}
	if tgt.Expect == 0 {
		res.Target.Expect = http.StatusOK
	}

	resp, dur, err := perform(client, base, tgt)
	res.Duration = dur
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()
	res.Status = resp.StatusCode

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Err = fmt.Errorf("read body: %w", err)
		return res
	}
	res.Envelope = envelopeMatches(body, resp.StatusCode)
	return res
}

func perform(client *http.Client, base string, tgt target) (*http.Response, time.Duration, error) {
	if client == nil {
		return nil, 0, errors.New("nil client")
	}
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var body io.Reader
	if len(tgt.Body) > 0 {
		body = strings.NewReader(string(tgt.Body))
	}
	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, body)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := tokenFor(tgt.As); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	return resp, time.Since(start), nil
}

// envelopeMatches reports whether body is a JSON envelope whose success flag agrees with status.
func envelopeMatches(body []byte, status int) bool {
	var env struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Success == nil {
		return false
	}
	if status >= http.StatusBadRequest {
		return !*env.Success && env.Error != ""
	}
	return *env.Success
}

func printReport(results []result) {
	fmt.Println("Smoke Report")
	fmt.Println("============")
	for _, res := range results {
		status := "OK"
		if res.Err != nil {
			status = "ERROR"
		} else if !res.passed() {
			status = "FAIL"
		}
		who := res.Target.As
		if who == "" {
			who = "anonymous"
		}
		fmt.Printf("[%s] %s %s as %s\n", status, res.Target.Method, res.Target.Path, who)
		if res.Err != nil {
			fmt.Printf("  Error: %v\n", res.Err)
			continue
		}
		fmt.Printf("  Status: %d, expected %d (%s) | Envelope: %t | Critical: %t\n",
			res.Status, res.Target.Expect, res.Duration, res.Envelope, res.Target.Critical)
	}
}
