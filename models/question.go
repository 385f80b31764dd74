package models

import "fmt"

// QuestionKind classifies the answer-input shape of a question.
type QuestionKind string

const (
	KindText         QuestionKind = "text"
	KindSingleChoice QuestionKind = "single_choice"
	KindMultiChoice  QuestionKind = "multi_choice"
)

// Answer sentinels. AnswerUnknown marks a question the completion output had
// no matching line for; AnswerPending marks a whole batch whose completion
// call failed (delivery proceeds anyway).
const (
	AnswerUnknown = "Ответ неизвестен"
	AnswerPending = "Ответ ожидается"
)

// Question is one extracted quiz question. ProblemID and QuestionID may be
// empty when the page markup did not expose them; Text is always set.
// Options is empty for KindText. Answer is filled in by the completion step.
type Question struct {
	ProblemID  string       `json:"problem_id,omitempty"`
	QuestionID string       `json:"question_id,omitempty"`
	Text       string       `json:"text"`
	Kind       QuestionKind `json:"kind"`
	Options    []string     `json:"options,omitempty"`
	Answer     string       `json:"answer,omitempty"`
}

// Key returns the composite identity used for deduplication. Two extractions
// with the same key are the same logical question.
func (q Question) Key() string {
	return fmt.Sprintf("%s|%s|%s", q.ProblemID, q.QuestionID, q.Text)
}

// ScrapeOutcome is the result of one worker-pool task: the questions pulled
// from the page plus the heuristic expected count (maximum per-frame yield).
// Err is set when navigation or extraction failed; the sibling tasks are
// unaffected either way.
type ScrapeOutcome struct {
	URL       string
	Questions []Question
	Expected  int
	Err       error
}
