package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuestionPlan(t *testing.T) {
	tests := []struct {
		duration int
		count    int
	}{
		{5, 3},
		{10, 3},
		{19, 3},
		{20, 5},
		{29, 5},
		{30, 7},
		{60, 7},
	}
	for _, tt := range tests {
		count, mix := QuestionPlan(tt.duration)
		assert.Equal(t, tt.count, count, "duration %d", tt.duration)
		assert.NotEmpty(t, mix)
	}
}

func TestBuildInstructions(t *testing.T) {
	cfg := InterviewConfig{
		Industry:   "Fintech",
		Role:       &JobRole{Title: "Backend Engineer", Industry: "Fintech"},
		Duration:   20,
		Difficulty: DifficultyHard,
		ResumeText: "Seven years of Go and PostgreSQL.",
	}

	prompt := BuildInstructions(cfg)
	assert.Contains(t, prompt, "Backend Engineer (Fintech)")
	assert.Contains(t, prompt, "Target Question Count: 5")
	assert.Contains(t, prompt, "Difficulty: Hard")
	assert.Contains(t, prompt, "Seven years of Go and PostgreSQL.")
	assert.Contains(t, prompt, "save_assessment")
	assert.Contains(t, prompt, "set_avatar_behavior")
}

func TestBuildInstructionsDefaultsAndTruncation(t *testing.T) {
	cfg := InterviewConfig{
		Industry:   "Retail",
		Duration:   10,
		Difficulty: DifficultyEasy,
		ResumeText: strings.Repeat("x", 5000),
	}

	prompt := BuildInstructions(cfg)
	assert.Contains(t, prompt, "Candidate (Retail)")
	assert.Contains(t, prompt, "Target Question Count: 3")
	assert.NotContains(t, prompt, strings.Repeat("x", 2001))
}
