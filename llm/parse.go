package llm

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/use-agent/quizflow/models"
)

// answerLineRe matches one answer line in the completion output, in either
// the English or Russian form the service is prompted to use.
var answerLineRe = regexp.MustCompile(`(?i)^\s*(?:answer|ответ)\s*(\d+)\s*[:.]\s*(.+?)\s*$`)

// ParseAnswers scans free-form completion output for "Answer <n>: <text>"
// lines and maps them onto a slice of n answers, 1-indexed as the prompt
// numbers them. Indices the output never mentions, or mentions out of range,
// fall back to the unknown-answer sentinel. Extra prose between answer
// lines is ignored.
func ParseAnswers(text string, n int) []string {
	answers := make([]string, n)
	for i := range answers {
		answers[i] = models.AnswerUnknown
	}

	for _, line := range strings.Split(text, "\n") {
		m := answerLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > n {
			continue
		}
		answers[idx-1] = m[2]
	}
	return answers
}
