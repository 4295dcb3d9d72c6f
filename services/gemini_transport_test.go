package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestGeminiUsageSplitsModalities(t *testing.T) {
	usage := geminiUsage(&genai.GenerateContentResponseUsageMetadata{
		PromptTokenCount:     1300,
		CandidatesTokenCount: 1290,
		TotalTokenCount:      2590,
		PromptTokensDetails: []*genai.ModalityTokenCount{
			{Modality: genai.MediaModalityText, TokenCount: 40},
			{Modality: genai.MediaModalityImage, TokenCount: 1260},
		},
	})
	assert.Equal(t, &Usage{TextTokens: 40, ImageTokens: 1260, OutputTokens: 1290}, usage)

	assert.Equal(t, &Usage{TextTokens: 12, OutputTokens: 3}, geminiUsage(&genai.GenerateContentResponseUsageMetadata{
		PromptTokenCount: 12, CandidatesTokenCount: 3, TotalTokenCount: 15,
	}))
	assert.Nil(t, geminiUsage(nil))
	assert.Nil(t, geminiUsage(&genai.GenerateContentResponseUsageMetadata{}))
}

func TestGetAllInlineImages(t *testing.T) {
	result := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{
			genai.NewPartFromText("here you go"),
			{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte("first")}},
			{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte("second")}},
		}},
	}}}

	images, err := GetAllInlineImages(result)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("first"), []byte("second")}, images)

	blocked := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		SafetyRatings: []*genai.SafetyRating{{Category: genai.HarmCategorySexuallyExplicit, Blocked: true}},
	}}}
	_, err = GetAllInlineImages(blocked)
	require.Error(t, err)
	assert.Equal(t, KindPolicy, ClassifyFailure(OpExtractPackshot, err).Kind)
}

func TestBlockedPromptIsPolicyOnPackshot(t *testing.T) {
	err := blockedError(&genai.GenerateContentResponse{PromptFeedback: &genai.GenerateContentResponsePromptFeedback{
		BlockReason: genai.BlockedReasonSafety,
	}})
	require.Error(t, err)
	assert.Equal(t, KindPolicy, ClassifyFailure(OpExtractPackshot, err).Kind)
	assert.Nil(t, blockedError(&genai.GenerateContentResponse{}))
}
