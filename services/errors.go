package services

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// FailureKind classifies every error surfaced by the generation client.
type FailureKind int

const (
	KindUnknown FailureKind = iota
	KindDecode
	KindTransport
	KindAuth
	KindQuota
	KindPolicy
	KindSchema
	KindContract
)

func (k FailureKind) String() string {
	switch k {
	case KindDecode:
		return "decode_failure"
	case KindTransport:
		return "transport_failure"
	case KindAuth:
		return "auth_failure"
	case KindQuota:
		return "quota_failure"
	case KindPolicy:
		return "policy_failure"
	case KindSchema:
		return "schema_failure"
	case KindContract:
		return "contract_violation"
	default:
		return "unknown"
	}
}

// Operation names, used in logs and to scope classification rules.
const (
	OpCheckCredential   = "check_credential"
	OpExtractPackshot   = "extract_packshot"
	OpAnalyzeItem       = "analyze_item"
	OpValidatePhoto     = "validate_photo"
	OpGenerateComposite = "generate_composite"
)

var (
	ErrNoImageData       = errors.New("response contained no image data")
	ErrLengthMismatch    = errors.New("item photos and item descriptions must have the same length")
	ErrNoItems           = errors.New("at least one item is required")
	ErrUnexpectedContent = errors.New("unexpected content block type")
	ErrEmptyText         = errors.New("response text is empty")
)

// GenerationError is the descriptive failure every client operation returns.
// Message is safe to show to end users, Err keeps the underlying cause.
type GenerationError struct {
	Kind    FailureKind
	Op      string
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Is lets callers write errors.Is(err, services.KindQuota).
func (e *GenerationError) Is(target error) bool {
	kind, ok := target.(FailureKind)
	return ok && kind == e.Kind
}

// Error makes FailureKind usable as an errors.Is target.
func (k FailureKind) Error() string {
	return k.String()
}

// KindOf returns the failure kind carried by err, KindUnknown otherwise.
func KindOf(err error) FailureKind {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return KindUnknown
}

var userMessages = map[FailureKind]string{
	KindDecode:    "The image could not be read. Please upload a PNG, JPEG or WebP photo.",
	KindTransport: "Could not reach the image service. Check your network connection and try again.",
	KindAuth:      "Your API key was rejected. Please re-enter your API key in Settings.",
	KindQuota:     "Rate limit or quota exceeded. Wait a moment and try again, or check your plan and billing.",
	KindPolicy:    "The request was rejected by the content policy. Try a different photo or description.",
	KindSchema:    "The image service returned an unexpected response. Please try again.",
	KindContract:  "Each clothing photo needs exactly one description.",
	KindUnknown:   "Image generation failed. Please try again.",
}

// UserMessage returns the actionable message for a failure kind.
func UserMessage(kind FailureKind) string {
	return userMessages[kind]
}

func newError(kind FailureKind, op string, err error) *GenerationError {
	return &GenerationError{Kind: kind, Op: op, Message: UserMessage(kind), Err: err}
}

// remoteFailure is what classification rules look at.
type remoteFailure struct {
	Op         string
	StatusCode int
	Message    string
	Network    bool
}

type classificationRule struct {
	name  string
	kind  FailureKind
	match func(f remoteFailure) bool
}

var (
	authPattern    = regexp.MustCompile(`(?i)invalid[ _]api[ _]key|incorrect api key|unauthori[sz]ed|invalid authentication|api key not valid`)
	quotaPattern   = regexp.MustCompile(`(?i)rate[ _-]?limit|quota|insufficient_quota|too many requests|resource_exhausted`)
	policyPattern  = regexp.MustCompile(`(?i)safety|moderation|content[ _]policy|policy[ _]violation|rejected`)
	networkPattern = regexp.MustCompile(`(?i)failed to fetch|network|cors|connection refused|no such host|timeout`)
)

func statusRule(kind FailureKind, status int, ops ...string) classificationRule {
	return classificationRule{
		name: fmt.Sprintf("status_%d", status),
		kind: kind,
		match: func(f remoteFailure) bool {
			return f.StatusCode == status && opAllowed(f.Op, ops)
		},
	}
}

func patternRule(kind FailureKind, pattern *regexp.Regexp, ops ...string) classificationRule {
	return classificationRule{
		name: "pattern_" + kind.String(),
		kind: kind,
		match: func(f remoteFailure) bool {
			return pattern.MatchString(f.Message) && opAllowed(f.Op, ops)
		},
	}
}

func opAllowed(op string, ops []string) bool {
	if len(ops) == 0 {
		return true
	}
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

// classificationRules is evaluated top to bottom, first match wins.
// Status code rules always precede message pattern rules.
var classificationRules = []classificationRule{
	statusRule(KindAuth, http.StatusUnauthorized),
	statusRule(KindQuota, http.StatusTooManyRequests),
	statusRule(KindPolicy, http.StatusBadRequest, OpExtractPackshot),
	patternRule(KindAuth, authPattern),
	patternRule(KindQuota, quotaPattern),
	patternRule(KindPolicy, policyPattern, OpExtractPackshot),
	{
		name: "network",
		kind: KindTransport,
		match: func(f remoteFailure) bool {
			return f.Network || (f.StatusCode == 0 && networkPattern.MatchString(f.Message))
		},
	},
}

// ClassifyFailure turns a remote-call error into a GenerationError.
// Errors that are already classified pass through untouched.
func ClassifyFailure(op string, err error) *GenerationError {
	if err == nil {
		return nil
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}
	failure := inspectFailure(op, err)
	for _, rule := range classificationRules {
		if rule.match(failure) {
			return newError(rule.kind, op, err)
		}
	}
	return newError(KindUnknown, op, err)
}

// HTTPStatusError is returned by transports that speak plain HTTP.
type HTTPStatusError struct {
	StatusCode int
	Message    string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func inspectFailure(op string, err error) remoteFailure {
	f := remoteFailure{Op: op, Message: err.Error()}

	var httpErr *HTTPStatusError
	var openaiErr *openai.Error
	var genaiErr genai.APIError
	var genaiErrPtr *genai.APIError
	var netErr net.Error
	var urlErr *url.Error

	switch {
	case errors.As(err, &httpErr):
		f.StatusCode = httpErr.StatusCode
		f.Message = httpErr.Message
	case errors.As(err, &openaiErr):
		f.StatusCode = openaiErr.StatusCode
		if openaiErr.Message != "" {
			f.Message = openaiErr.Message
		}
	case errors.As(err, &genaiErrPtr):
		f.StatusCode = genaiErrPtr.Code
		f.Message = strings.TrimSpace(genaiErrPtr.Status + " " + genaiErrPtr.Message)
	case errors.As(err, &genaiErr):
		f.StatusCode = genaiErr.Code
		f.Message = strings.TrimSpace(genaiErr.Status + " " + genaiErr.Message)
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		f.Network = true
	}
	return f
}
