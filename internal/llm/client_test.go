package llm

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(reason genai.FinishReason, parts ...genai.Part) *genai.Candidate {
	return &genai.Candidate{FinishReason: reason, Content: &genai.Content{Parts: parts}}
}

func TestExtractTextFromResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		candidate(genai.FinishReasonStop, genai.Text(`{"units": `), genai.Text(`[]}`)),
	}}

	text, err := extractTextFromResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"units": []}`, text)
}

func TestExtractTextFromResponse_Blocked(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
	}{
		{
			name: "blocked prompt",
			resp: &genai.GenerateContentResponse{PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety}},
		},
		{
			name: "safety stop",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{candidate(genai.FinishReasonSafety)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := extractTextFromResponse(tt.resp)
			var blocked *BlockedError
			assert.ErrorAs(t, err, &blocked)
		})
	}
}

func TestExtractTextFromResponse_Errors(t *testing.T) {
	tests := []struct {
		name        string
		resp        *genai.GenerateContentResponse
		errorString string
	}{
		{"nil response", nil, "empty response"},
		{"no candidates", &genai.GenerateContentResponse{}, "no candidates"},
		{"no parts", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{candidate(genai.FinishReasonStop)}}, "no content"},
		{"truncated", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
			candidate(genai.FinishReasonMaxTokens, genai.Text(`{"units": [`)),
		}}, "output token limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := extractTextFromResponse(tt.resp)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorString)
		})
	}
}
