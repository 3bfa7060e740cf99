// Package guardrail provides stateless input validation and output sanitation
// for the orchestration pipeline. Input checks gate the pipeline; output
// sanitation is a pure transform and never rejects.
package guardrail

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/procagent/procagent/pkg/errors"
	"github.com/procagent/procagent/pkg/log"
	"github.com/procagent/procagent/pkg/scripting"
)

// ReasonCode identifies a failed input check. Reason codes are internal:
// they reach structured logs, never the user-facing refusal message.
type ReasonCode string

// Reason codes for rejected input
const (
	ReasonEmpty           ReasonCode = "empty_input"
	ReasonTooLong         ReasonCode = "input_too_long"
	ReasonHarmfulContent  ReasonCode = "harmful_content"
	ReasonPromptInjection ReasonCode = "prompt_injection"
	ReasonPII             ReasonCode = "pii_detected"
	ReasonPolicyHook      ReasonCode = "policy_hook"
)

// RefusalMessage is the single fixed message returned for any rejected input,
// regardless of which checks failed.
const RefusalMessage = "I can't process that request. Please rephrase and try again."

// TruncationMarker is appended when sanitation truncates an over-long output.
const TruncationMarker = "... [truncated]"

// checkInputFuncName is the optional Lua hook consulted during validation.
const checkInputFuncName = "check_input"

var (
	harmfulPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bkill\b.*\bpeople\b`),
		regexp.MustCompile(`(?i)\bharm\b.*\bchildren\b`),
		regexp.MustCompile(`(?i)\bexploit\b.*\bvulnerability\b`),
		regexp.MustCompile(`(?i)\bhack\b.*\bsystem\b`),
	}

	injectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`),
		regexp.MustCompile(`(?i)disregard\s+(all\s+)?previous\s+instructions`),
		regexp.MustCompile(`(?i)forget\s+your\s+previous\s+instructions`),
		regexp.MustCompile(`(?i)you\s+are\s+now\s+a`),
		regexp.MustCompile(`(?i)reveal\s+the\s+system\s+prompt`),
	}

	piiPatterns = []*regexp.Regexp{
		// Email addresses
		regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		// US social security numbers
		regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	}

	markupPattern = regexp.MustCompile(`<[^>]*>`)
)

// Result holds the outcome of input validation.
type Result struct {
	// Accepted is true when every check passed
	Accepted bool

	// Reasons lists the code of every failed check. Logging only.
	Reasons []ReasonCode
}

// Err returns ErrInputRejected carrying the reason codes, or nil when the
// input was accepted.
func (r Result) Err() error {
	if r.Accepted {
		return nil
	}
	return errors.Wrap(errors.ErrInputRejected, "reasons %v", reasonStrings(r.Reasons))
}

// Config contains configuration options for the validator.
type Config struct {
	// MaxInputChars is the maximum accepted input length
	MaxInputChars int

	// MaxOutputChars is the maximum emitted output length before truncation
	MaxOutputChars int
}

// DefaultConfig returns the default validator configuration.
func DefaultConfig() Config {
	return Config{
		MaxInputChars:  5000,
		MaxOutputChars: 10000,
	}
}

// Validator performs input validation and output sanitation. It is stateless
// and safe for concurrent use.
type Validator struct {
	config Config

	// scriptEngine is the optional Lua policy-hook engine
	scriptEngine scripting.Engine
}

// Option configures a Validator.
type Option func(*Validator)

// WithScriptEngine attaches a Lua policy-hook engine. A loaded check_input
// function may reject input beyond the built-in checks; hook failures are
// logged and ignored.
func WithScriptEngine(engine scripting.Engine) Option {
	return func(v *Validator) {
		v.scriptEngine = engine
	}
}

// NewValidator creates a new Validator with the given configuration.
func NewValidator(config Config, opts ...Option) *Validator {
	if config.MaxInputChars <= 0 {
		config.MaxInputChars = DefaultConfig().MaxInputChars
	}
	if config.MaxOutputChars <= 0 {
		config.MaxOutputChars = DefaultConfig().MaxOutputChars
	}

	v := &Validator{config: config}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateInput runs every input check and returns the aggregate result.
// All checks are evaluated so that Reasons is complete; there is no
// short-circuiting.
func (v *Validator) ValidateInput(ctx context.Context, text string) Result {
	var reasons []ReasonCode

	if strings.TrimSpace(text) == "" {
		reasons = append(reasons, ReasonEmpty)
	}

	if utf8.RuneCountInString(text) > v.config.MaxInputChars {
		reasons = append(reasons, ReasonTooLong)
	}

	if matchesAny(harmfulPatterns, text) {
		reasons = append(reasons, ReasonHarmfulContent)
	}

	if matchesAny(injectionPatterns, text) {
		reasons = append(reasons, ReasonPromptInjection)
	}

	if matchesAny(piiPatterns, text) {
		reasons = append(reasons, ReasonPII)
	}

	if v.rejectedByHook(ctx, text) {
		reasons = append(reasons, ReasonPolicyHook)
	}

	result := Result{
		Accepted: len(reasons) == 0,
		Reasons:  reasons,
	}

	if !result.Accepted {
		log.WarnContext(ctx, "Input rejected by guardrails",
			"reasons", reasonStrings(reasons),
			"input_length", utf8.RuneCountInString(text))
	}

	return result
}

// SanitizeOutput strips markup from the text and truncates it to the
// configured maximum length. It is a total function: it never fails and the
// returned text never exceeds the maximum plus the truncation marker.
func (v *Validator) SanitizeOutput(ctx context.Context, text string) string {
	sanitized := text

	if strings.ContainsRune(sanitized, '<') {
		sanitized = markupPattern.ReplaceAllString(sanitized, "")
	}

	// Limits are in characters, not bytes, so truncation never splits a rune
	if runes := []rune(sanitized); len(runes) > v.config.MaxOutputChars {
		sanitized = string(runes[:v.config.MaxOutputChars]) + TruncationMarker
		log.DebugContext(ctx, "Output truncated by sanitizer",
			"original_length", len(runes),
			"max_length", v.config.MaxOutputChars)
	}

	return sanitized
}

// rejectedByHook consults the optional check_input Lua hook. The hook rejects
// by returning false; anything else, including hook errors, accepts.
func (v *Validator) rejectedByHook(ctx context.Context, text string) bool {
	if v.scriptEngine == nil {
		return false
	}

	result, err := v.scriptEngine.ExecuteFunction(ctx, checkInputFuncName, text)
	if err != nil {
		if !scripting.IsFunctionNotFound(err) {
			log.WarnContext(ctx, "Error calling guardrail hook",
				"hook", checkInputFuncName,
				"error", err)
		}
		return false
	}

	accepted, ok := result.(bool)
	return ok && !accepted
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, pattern := range patterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

func reasonStrings(reasons []ReasonCode) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = string(r)
	}
	return out
}
