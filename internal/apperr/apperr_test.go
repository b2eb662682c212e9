package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Category
	}{
		{"nil", nil, ""},
		{"transient", &TransientError{Kind: KindTimeout}, CategoryTransient},
		{"wrapped fatal", fmt.Errorf("call failed: %w", &FatalError{Capability: "x"}), CategoryFatal},
		{"protocol", &ProtocolError{Kind: KindNoJSON}, CategoryProtocol},
		{"validation", &ValidationError{Candidate: "u", Reason: "dead_link"}, CategoryValidation},
		{"completeness", &CompletenessError{Missing: []string{"video"}}, CategoryCompleteness},
		{"plain", errors.New("boom"), CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CategoryOf(tt.err))
		})
	}
}

func TestFatalError_NamesCapabilityAndRole(t *testing.T) {
	err := &FatalError{
		Capability: "generativelanguage.models.generateContent",
		Role:       "roles/aiplatform.user",
		Cause:      errors.New("403"),
	}
	assert.Contains(t, err.Error(), "generativelanguage.models.generateContent")
	assert.Contains(t, err.Error(), "roles/aiplatform.user")
	assert.False(t, IsRetryable(err))
}

func TestTransientError_EmbedsCause(t *testing.T) {
	err := &TransientError{Kind: KindRateLimited, Attempts: 3, Cause: errors.New("quota exceeded for project")}
	assert.Contains(t, err.Error(), "quota exceeded for project")
	assert.Contains(t, err.Error(), "3 attempts")
	assert.True(t, IsRetryable(err))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", Excerpt("  short ", 10))
	assert.Equal(t, "abcde…", Excerpt("abcdefghij", 5))
	assert.Equal(t, "ãéîõú…", Excerpt("ãéîõúç", 5))
}
