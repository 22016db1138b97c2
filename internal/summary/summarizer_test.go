package summary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/log"
)

type fakeGenerator struct {
	text    string
	err     error
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

var testNow = time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)

func sampleProject() core.Project {
	return core.NewProject(core.ProjectInput{
		Name:      "Dhaka Expo Stall",
		StartDate: core.NewDate(2024, 5, 1),
		EndDate:   core.NewDate(2024, 5, 31),
		Budget:    core.MoneyFromUnits(1000),
		Advance:   core.MoneyFromUnits(500),
		Expense:   core.MoneyFromUnits(200),
	}, "p1", testNow)
}

func newTestSummarizer(gen TextGenerator, opts Options) *Summarizer {
	opts.Now = func() time.Time { return testNow }
	return New(gen, opts)
}

func TestSummarize_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		gen     TextGenerator
		want    string
		outcome Outcome
	}{
		{"generated text is trimmed", &fakeGenerator{text: "  Balance is healthy.\n"}, "Balance is healthy.", OutcomeGenerated},
		{"empty text", &fakeGenerator{text: "   "}, EmptyFallback, OutcomeEmpty},
		{"generator error", &fakeGenerator{err: errors.New("quota exceeded")}, UnavailableFallback, OutcomeUnavailable},
		{"no generator", nil, UnavailableFallback, OutcomeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []Outcome
			s := newTestSummarizer(tt.gen, Options{OnOutcome: func(o Outcome) { got = append(got, o) }})
			if text := s.Summarize(context.Background(), sampleProject()); text != tt.want {
				t.Errorf("Summarize() = %q, want %q", text, tt.want)
			}
			if len(got) != 1 || got[0] != tt.outcome {
				t.Errorf("outcomes = %v, want [%s]", got, tt.outcome)
			}
		})
	}
}

func TestSummarize_SingleAttemptOnFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("boom")}
	s := newTestSummarizer(gen, Options{})
	s.Summarize(context.Background(), sampleProject())
	if n := gen.calls.Load(); n != 1 {
		t.Errorf("generator called %d times, want exactly 1", n)
	}
}

func TestSummarize_Timeout(t *testing.T) {
	gen := &fakeGenerator{release: make(chan struct{})}
	s := newTestSummarizer(gen, Options{Timeout: 20 * time.Millisecond})

	start := time.Now()
	text := s.Summarize(context.Background(), sampleProject())
	if text != UnavailableFallback {
		t.Errorf("Summarize() = %q, want fallback on timeout", text)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("timeout not enforced")
	}
}

func TestSummarize_CachesSuccessOnly(t *testing.T) {
	lru := NewLRUCache(cache.NewLRUCache[string](10, time.Hour))

	failing := &fakeGenerator{err: errors.New("down")}
	newTestSummarizer(failing, Options{Cache: lru}).Summarize(context.Background(), sampleProject())

	gen := &fakeGenerator{text: "Audit complete."}
	var outcomes []Outcome
	s := newTestSummarizer(gen, Options{Cache: lru, OnOutcome: func(o Outcome) { outcomes = append(outcomes, o) }})
	for i := 0; i < 3; i++ {
		if got := s.Summarize(context.Background(), sampleProject()); got != "Audit complete." {
			t.Fatalf("Summarize() = %q", got)
		}
	}
	if n := gen.calls.Load(); n != 1 {
		t.Errorf("generator called %d times, want 1", n)
	}
	want := []Outcome{OutcomeGenerated, OutcomeCached, OutcomeCached}
	if fmt.Sprint(outcomes) != fmt.Sprint(want) {
		t.Errorf("outcomes = %v, want %v", outcomes, want)
	}

	// A changed record is a different prompt and misses the cache.
	p := sampleProject()
	p.IsSettled = true
	s.Summarize(context.Background(), p)
	if n := gen.calls.Load(); n != 2 {
		t.Errorf("generator called %d times after change, want 2", n)
	}
}

func TestSummarize_CollapsesConcurrentCalls(t *testing.T) {
	gen := &fakeGenerator{text: "shared", release: make(chan struct{}), started: make(chan struct{}, 10)}
	s := newTestSummarizer(gen, Options{})

	const callers = 5
	var wg sync.WaitGroup
	results := make([]string, callers)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = s.Summarize(context.Background(), sampleProject())
	}()
	<-gen.started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.Summarize(context.Background(), sampleProject())
		}(i)
	}
	// Give the followers time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(gen.release)
	wg.Wait()

	if n := gen.calls.Load(); n != 1 {
		t.Errorf("generator called %d times, want 1", n)
	}
	for i, r := range results {
		if r != "shared" {
			t.Errorf("caller %d got %q", i, r)
		}
	}
}

func TestSummarize_CallerCancelDoesNotAbortAttempt(t *testing.T) {
	gen := &fakeGenerator{text: "done"}
	s := newTestSummarizer(gen, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := s.Summarize(ctx, sampleProject()); got != "done" {
		t.Errorf("Summarize() = %q, want generated text", got)
	}
}

func TestBuildPrompt(t *testing.T) {
	p := sampleProject()
	p.SOPROIEmailSubmissionDate = core.NewDate(2024, 6, 3)
	prompt := BuildPrompt(p, testNow)

	for _, want := range []string{
		"As a senior financial auditor for Akij Venture Ltd",
		"Name: Dhaka Expo Stall",
		"Current Status: Ongoing",
		"Timeline: 2024-05-01 to 2024-05-31",
		"Settlement Status: Pending Settlement",
		"Total Budget: ৳1,000",
		"Advance Disbursed: ৳500",
		"Actual Expense: ৳200",
		"Closing Balance: ৳300",
		"Bill Submission: Pending",
		"SOP/ROI Submission: 2024-06-03",
		"4. Specifically comment on the settlement status",
		"Use formal British English and professional auditing terminology.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	p.IsSettled = true
	if !strings.Contains(BuildPrompt(p, testNow), "FULLY SETTLED (Balance Zeroed)") {
		t.Error("settled prompt must say FULLY SETTLED")
	}
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedisCache(client, "ledger:", time.Minute, nil)
	ctx := context.Background()
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	c.Set(ctx, "k", "summary text")
	if v, ok := c.Get(ctx, "k"); !ok || v != "summary text" {
		t.Fatalf("Get() = %q, %v", v, ok)
	}
	if !mr.Exists("ledger:summary:k") {
		t.Error("expected prefixed key in redis")
	}
	mr.FastForward(2 * time.Minute)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("entry should expire after ttl")
	}
}

func TestRedisCacheLogsWriteFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	var buf bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelDebug, Output: &buf, Component: log.ComponentCache})
	c := NewRedisCache(client, "ledger:", time.Minute, logger)
	ctx := context.Background()

	mr.SetError("READONLY replica")
	c.Set(ctx, "k", "summary text")
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("a failing redis must read as a miss")
	}

	out := buf.String()
	for _, want := range []string{"Summary cache write failed", "Summary cache read failed", "READONLY replica", "level=WARN"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestGeminiGenerator(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		if gotKey == "" {
			gotKey = r.Header.Get("X-Goog-Api-Key")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Part one. "},{"text":"Part two."}]}}]}`)
	}))
	defer srv.Close()

	gen, err := NewGeminiGenerator(context.Background(), "test-key", option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewGeminiGenerator() error = %v", err)
	}
	text, err := gen.Generate(context.Background(), DefaultModel, "hello")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "Part one. Part two." {
		t.Errorf("Generate() = %q", text)
	}
	if !strings.HasSuffix(gotPath, "models/"+DefaultModel+":generateContent") {
		t.Errorf("request path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key = %q", gotKey)
	}

	if _, err := NewGeminiGenerator(context.Background(), ""); err == nil {
		t.Error("expected error without api key")
	}
}
