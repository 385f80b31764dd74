package workflow

import (
	"fmt"
	"strings"

	"github.com/use-agent/quizflow/models"
)

const noTabsMessage = "No active quiz tab found. Open the quiz page in the browser and run discover again."

const restartMessage = "Session data is out of date. Start over to rebuild it."

const wrongStepMessage = "That step is not available right now. Finish the current step or start over."

// tabListMessage renders the discovered tabs as a numbered pick list.
func tabListMessage(tabs []models.Tab) string {
	var b strings.Builder
	b.WriteString("Found open quiz tabs:\n")
	for i, tab := range tabs {
		title := tab.Title
		if title == "" {
			title = tab.URL
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, title)
	}
	b.WriteString("\nSelect a tab by number to scrape it.")
	return b.String()
}

// batchMessage renders one delivery batch. Question numbering is global
// across batches so a regenerate request can name any question directly.
func batchMessage(questions []models.Question, start, size int) string {
	end := min(start+size, len(questions))
	var b strings.Builder
	for i := start; i < end; i++ {
		q := questions[i]
		fmt.Fprintf(&b, "%d. %s\n", i+1, q.Text)
		answer := q.Answer
		if answer == "" {
			answer = models.AnswerPending
		}
		fmt.Fprintf(&b, "Answer: %s\n", answer)
		if i < end-1 {
			b.WriteString("\n")
		}
	}
	b.WriteString("\nRegenerate any answer by question number.")
	return b.String()
}

// scrapeFailedMessage reports an exhausted scrape to the user.
func scrapeFailedMessage(err error) string {
	return fmt.Sprintf("Could not read the quiz page: %v. Select the tab again to retry.", err)
}

const noQuestionsMessage = "No questions found on that page. Pick another tab or run discover again."
