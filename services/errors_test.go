package services_test

import (
	"errors"
	"fmt"
	"net/url"
	"testing"

	"tryonapi/services"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		name string
		op   string
		err  error
		want services.FailureKind
	}{
		{"401 is auth", services.OpGenerateComposite, &services.HTTPStatusError{StatusCode: 401, Message: "nope"}, services.KindAuth},
		{"status beats pattern", services.OpAnalyzeItem, &services.HTTPStatusError{StatusCode: 401, Message: "quota exceeded"}, services.KindAuth},
		{"429 is quota", services.OpValidatePhoto, &services.HTTPStatusError{StatusCode: 429, Message: "slow down"}, services.KindQuota},
		{"400 on packshot is policy", services.OpExtractPackshot, &services.HTTPStatusError{StatusCode: 400, Message: "bad request"}, services.KindPolicy},
		{"400 elsewhere is unknown", services.OpGenerateComposite, &services.HTTPStatusError{StatusCode: 400, Message: "bad request"}, services.KindUnknown},
		{"400 with rate limit text", services.OpGenerateComposite, &services.HTTPStatusError{StatusCode: 400, Message: "Rate limit reached"}, services.KindQuota},
		{"auth text", services.OpCheckCredential, errors.New("Incorrect API key provided: sk-***"), services.KindAuth},
		{"quota text", services.OpAnalyzeItem, errors.New("You exceeded your current quota"), services.KindQuota},
		{"policy text on packshot", services.OpExtractPackshot, errors.New("Your request was rejected by the safety system"), services.KindPolicy},
		{"policy text elsewhere", services.OpGenerateComposite, errors.New("Your request was rejected by the safety system"), services.KindUnknown},
		{"url error", services.OpGenerateComposite, &url.Error{Op: "Post", URL: "https://api.test", Err: errors.New("dial tcp: refused")}, services.KindTransport},
		{"network text", services.OpAnalyzeItem, errors.New("Failed to fetch"), services.KindTransport},
		{"gemini exhausted", services.OpGenerateComposite, genai.APIError{Code: 429, Message: "Resource has been exhausted", Status: "RESOURCE_EXHAUSTED"}, services.KindQuota},
		{"gemini bad key", services.OpCheckCredential, genai.APIError{Code: 400, Message: "API key not valid. Please pass a valid API key.", Status: "INVALID_ARGUMENT"}, services.KindAuth},
		{"anything else", services.OpAnalyzeItem, errors.New("something odd"), services.KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			genErr := services.ClassifyFailure(tc.op, tc.err)
			assert.Equal(t, tc.want, genErr.Kind)
			assert.Equal(t, tc.op, genErr.Op)
			assert.Equal(t, services.UserMessage(tc.want), genErr.Message)
			assert.ErrorIs(t, genErr, tc.want)
		})
	}
}

func TestClassifyFailureKeepsClassifiedErrors(t *testing.T) {
	original := services.ClassifyFailure(services.OpExtractPackshot, &services.HTTPStatusError{StatusCode: 429})
	wrapped := fmt.Errorf("job failed: %w", original)

	assert.Same(t, original, services.ClassifyFailure(services.OpGenerateComposite, wrapped))
	assert.Nil(t, services.ClassifyFailure(services.OpGenerateComposite, nil))
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", services.ClassifyFailure(services.OpAnalyzeItem, &services.HTTPStatusError{StatusCode: 401}))
	assert.Equal(t, services.KindAuth, services.KindOf(err))
	assert.Equal(t, services.KindUnknown, services.KindOf(errors.New("plain")))
}

func TestEveryKindHasMessage(t *testing.T) {
	kinds := []services.FailureKind{
		services.KindUnknown, services.KindDecode, services.KindTransport, services.KindAuth,
		services.KindQuota, services.KindPolicy, services.KindSchema, services.KindContract,
	}
	seen := map[string]bool{}
	for _, kind := range kinds {
		assert.NotEmpty(t, services.UserMessage(kind), kind.String())
		assert.False(t, seen[kind.String()], kind.String())
		seen[kind.String()] = true
	}
	assert.Equal(t, "contract_violation", services.KindContract.String())
}
