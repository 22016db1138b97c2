package summary

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"ledger/internal/core"
	"ledger/internal/log"
)

// Text returned instead of a generated summary.
const (
	EmptyFallback       = "Manual verification of financial records required."
	UnavailableFallback = "AI Automated Summary Service is temporarily unavailable. Please refer to raw ledger data for audit conclusions."
)

// DefaultTimeout bounds one generation attempt.
const DefaultTimeout = 20 * time.Second

// Outcome classifies one Summarize call.
type Outcome string

const (
	OutcomeGenerated   Outcome = "generated"
	OutcomeCached      Outcome = "cached"
	OutcomeEmpty       Outcome = "empty"
	OutcomeUnavailable Outcome = "unavailable"
)

var errNoGenerator = errors.New("no text generator configured")

// Options tune a Summarizer. Zero values pick defaults.
type Options struct {
	Model     string
	Timeout   time.Duration
	Cache     Cache
	Logger    *log.Logger
	OnOutcome func(Outcome)
	Now       func() time.Time
}

// Summarizer asks the generator once per project state and always yields text.
type Summarizer struct {
	gen       TextGenerator
	model     string
	timeout   time.Duration
	cache     Cache
	logger    *log.Logger
	onOutcome func(Outcome)
	now       func() time.Time
	group     singleflight.Group
}

// New builds a Summarizer. A nil generator makes every call fall back.
func New(gen TextGenerator, opts Options) *Summarizer {
	s := &Summarizer{
		gen:       gen,
		model:     opts.Model,
		timeout:   opts.Timeout,
		cache:     opts.Cache,
		onOutcome: opts.OnOutcome,
		now:       opts.Now,
	}
	if s.model == "" {
		s.model = DefaultModel
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.logger = log.OrDefault(opts.Logger, log.ComponentSummary)
	return s
}

type result struct {
	text    string
	outcome Outcome
}

// Summarize is SummarizeAt with the summarizer's own clock.
func (s *Summarizer) Summarize(ctx context.Context, p core.Project) string {
	return s.SummarizeAt(ctx, p, s.now())
}

// SummarizeAt returns the audit summary of p with its status classified at
// now. It makes at most one generation attempt and never fails: errors
// become UnavailableFallback and empty output becomes EmptyFallback.
// Concurrent calls for the same project state share one attempt.
func (s *Summarizer) SummarizeAt(ctx context.Context, p core.Project, now time.Time) string {
	prompt := BuildPrompt(p, now)
	key := Fingerprint(s.model, prompt)

	if s.cache != nil {
		if text, ok := s.cache.Get(ctx, key); ok {
			s.observe(OutcomeCached)
			return text
		}
	}

	v, _, _ := s.group.Do(key, func() (any, error) {
		return s.generate(ctx, p, prompt, key), nil
	})
	r := v.(result)
	s.observe(r.outcome)
	return r.text
}

func (s *Summarizer) generate(ctx context.Context, p core.Project, prompt, key string) result {
	if s.gen == nil {
		s.logFailure(ctx, p, errNoGenerator)
		return result{text: UnavailableFallback, outcome: OutcomeUnavailable}
	}

	// The attempt is shared by every waiter, so one caller going away must
	// not cancel it for the rest.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.gen.Generate(callCtx, s.model, prompt)
	if err != nil {
		s.logFailure(ctx, p, err)
		return result{text: UnavailableFallback, outcome: OutcomeUnavailable}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		s.logger.WarnContext(ctx, "Summary generator returned no text",
			log.FieldProjectID, p.ID,
			log.FieldOperation, log.OpSummarize)
		return result{text: EmptyFallback, outcome: OutcomeEmpty}
	}

	s.logger.InfoContext(ctx, "Audit summary generated",
		log.FieldProjectID, p.ID,
		log.FieldOperation, log.OpSummarize,
		log.FieldDuration, time.Since(start).Milliseconds())
	if s.cache != nil {
		s.cache.Set(ctx, key, text)
	}
	return result{text: text, outcome: OutcomeGenerated}
}

func (s *Summarizer) logFailure(ctx context.Context, p core.Project, err error) {
	s.logger.ErrorContext(ctx, "Audit summary unavailable",
		log.FieldProjectID, p.ID,
		log.FieldOperation, log.OpSummarize,
		log.FieldError, err)
}

func (s *Summarizer) observe(o Outcome) {
	if s.onOutcome != nil {
		s.onOutcome(o)
	}
}
