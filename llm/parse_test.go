package llm

import (
	"strings"
	"testing"

	"github.com/use-agent/quizflow/models"
)

func TestParseAnswers_PartialOutput(t *testing.T) {
	text := "Here are the answers.\nAnswer 2: photosynthesis\nThanks!"
	got := ParseAnswers(text, 3)

	if len(got) != 3 {
		t.Fatalf("expected 3 answers, got %d", len(got))
	}
	if got[0] != models.AnswerUnknown {
		t.Errorf("answer 1: expected unknown sentinel, got %q", got[0])
	}
	if got[1] != "photosynthesis" {
		t.Errorf("answer 2: got %q", got[1])
	}
	if got[2] != models.AnswerUnknown {
		t.Errorf("answer 3: expected unknown sentinel, got %q", got[2])
	}
}

func TestParseAnswers_RussianAndCaseInsensitive(t *testing.T) {
	text := "ОТВЕТ 1: да\nanswer 2: 42"
	got := ParseAnswers(text, 2)

	if got[0] != "да" {
		t.Errorf("answer 1: got %q", got[0])
	}
	if got[1] != "42" {
		t.Errorf("answer 2: got %q", got[1])
	}
}

func TestParseAnswers_OutOfRangeIndexIgnored(t *testing.T) {
	text := "Answer 0: nope\nAnswer 5: also nope\nAnswer 1: yes"
	got := ParseAnswers(text, 2)

	if got[0] != "yes" {
		t.Errorf("answer 1: got %q", got[0])
	}
	if got[1] != models.AnswerUnknown {
		t.Errorf("answer 2: expected unknown sentinel, got %q", got[1])
	}
}

func TestParseAnswers_LastLineWinsAndTrimming(t *testing.T) {
	text := "  Answer 1:   first try  \nAnswer 1: second try"
	got := ParseAnswers(text, 1)

	if got[0] != "second try" {
		t.Errorf("got %q", got[0])
	}
}

func TestParseAnswers_EmptyInput(t *testing.T) {
	got := ParseAnswers("", 2)
	for i, a := range got {
		if a != models.AnswerUnknown {
			t.Errorf("answer %d: expected unknown sentinel, got %q", i+1, a)
		}
	}
}

func TestBuildPrompt_NumbersAndOptions(t *testing.T) {
	questions := []models.Question{
		{Text: "What color is the sky?", Kind: models.KindSingleChoice, Options: []string{"Blue", "Green"}},
		{Text: "Name a prime number.", Kind: models.KindText},
	}
	prompt := BuildPrompt(questions)

	for _, want := range []string{
		"Question 1: What color is the sky?",
		"Pick exactly one option:",
		"- Blue",
		"- Green",
		"Question 2: Name a prime number.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
