// Package extract pulls structured quiz questions out of rendered frame
// HTML. It is pure parsing over goquery documents: the scraper collects the
// frames, this package never touches a browser.
//
// The engine is a chain of best-effort fallbacks. The host page renders
// questions with three structurally different DOM shapes depending on quiz
// version, so every resolution step (container, question text, options)
// degrades tier by tier instead of failing hard.
package extract

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/quizflow/models"
)

// Frame is one browsing context's rendered document, collected by the
// scraper's recursive frame walk.
type Frame struct {
	URL  string
	HTML string
}

// Extract resolves questions across all frames, deduplicated by the
// composite key (problemId, questionId, text) with first occurrence winning.
// The second return is the expected question count: the maximum single-frame
// yield, a heuristic upper bound used to judge scrape completeness.
func Extract(frames []Frame) ([]models.Question, int) {
	questions := []models.Question{}
	seen := make(map[string]struct{})
	expected := 0

	for _, frame := range frames {
		frameQuestions := extractFrame(frame)
		if len(frameQuestions) > expected {
			expected = len(frameQuestions)
		}
		for _, q := range frameQuestions {
			key := q.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			questions = append(questions, q)
		}
	}

	texts := make([]string, len(questions))
	for i, q := range questions {
		texts[i] = q.Text
	}
	for _, pair := range nearDuplicatePairs(texts) {
		// Distinct keys but near-identical wording: likely the same
		// question re-rendered with fresh element ids.
		slog.Warn("near-duplicate questions survived dedup",
			"first", questions[pair[0]].Key(),
			"second", questions[pair[1]].Key(),
		)
	}

	slog.Debug("extraction finished",
		"frames", len(frames),
		"questions", len(questions),
		"expected", expected,
	)
	return questions, expected
}

// extractFrame resolves the questions of a single frame document.
func extractFrame(frame Frame) []models.Question {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(frame.HTML))
	if err != nil {
		// A frame that does not parse yields nothing; siblings still count.
		slog.Warn("frame HTML did not parse, skipping", "frame_url", frame.URL, "error", err)
		return nil
	}

	var questions []models.Question
	doc.Find(selQuestionBlock).Each(func(_ int, block *goquery.Selection) {
		for _, container := range containersForBlock(block) {
			if q, ok := questionFromContainer(block, container); ok {
				questions = append(questions, q)
			}
		}
	})
	return questions
}

// containersForBlock resolves the question containers of one block via the
// three-tier fallback: dedicated response wrappers, then generic part
// blocks, then the block itself as a single question.
func containersForBlock(block *goquery.Selection) []*goquery.Selection {
	if wraps := block.Find(selResponseWrap); wraps.Length() > 0 {
		return split(wraps)
	}
	if parts := block.Find(selGenericPart); parts.Length() > 0 {
		return split(parts)
	}
	return []*goquery.Selection{block}
}

// split breaks a multi-node selection into per-node selections.
func split(sel *goquery.Selection) []*goquery.Selection {
	out := make([]*goquery.Selection, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, s)
	})
	return out
}
