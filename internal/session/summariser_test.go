package session

import (
	"testing"
)

func TestNewLLMSummariserValidation(t *testing.T) {
	if _, err := NewLLMSummariser("openai", ""); err == nil {
		t.Error("empty model: want error, got nil")
	}
	if _, err := NewLLMSummariser("carrier-pigeon", "some-model"); err == nil {
		t.Error("unknown provider: want error, got nil")
	}
}
