// Package workflow drives the per-session quiz state machine: tab discovery
// through the agent relay, scraping through the browser pool, answer
// generation through the completion service, and delivery through the chat
// notifier.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/use-agent/quizflow/cache"
	"github.com/use-agent/quizflow/chat"
	"github.com/use-agent/quizflow/config"
	"github.com/use-agent/quizflow/llm"
	"github.com/use-agent/quizflow/models"
	"github.com/use-agent/quizflow/relay"
	"github.com/use-agent/quizflow/scraper"
	"github.com/use-agent/quizflow/store"
)

// Answerer generates answers for a question batch. Satisfied by llm.Client.
type Answerer interface {
	Answer(ctx context.Context, questions []models.Question, combinedPrompt string) (string, error)
}

// Orchestrator owns the session state machine. Every collaborator is
// injected at construction; the orchestrator never creates browser or
// store resources of its own.
//
// Steps within one session run strictly in sequence; across sessions the
// orchestrator is freely concurrent and the browser pool is the only shared
// capacity-limited resource.
type Orchestrator struct {
	store    *store.Store
	relay    *relay.Relay
	pool     *scraper.Pool
	cache    *cache.Cache
	answerer Answerer
	notifier chat.Notifier
	wfCfg    config.WorkflowConfig
	chatCfg  config.ChatConfig
}

// New wires an orchestrator from its collaborators.
func New(
	st *store.Store,
	rl *relay.Relay,
	pool *scraper.Pool,
	ch *cache.Cache,
	answerer Answerer,
	notifier chat.Notifier,
	wfCfg config.WorkflowConfig,
	chatCfg config.ChatConfig,
) *Orchestrator {
	return &Orchestrator{
		store:    st,
		relay:    rl,
		pool:     pool,
		cache:    ch,
		answerer: answerer,
		notifier: notifier,
		wfCfg:    wfCfg,
		chatCfg:  chatCfg,
	}
}

// Start registers the session and moves it to tab discovery. Restarting an
// existing session wipes its tabs, questions and delivered-message record.
func (o *Orchestrator) Start(ctx context.Context, sessionID string) error {
	if err := o.store.AddKnownSession(sessionID); err != nil {
		return err
	}
	_, err := o.store.UpdateSession(sessionID, func(sess *models.Session) error {
		sess.State = models.StateTabDiscoveryPending
		sess.Tabs = nil
		sess.Questions = nil
		sess.MessageRefs = nil
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info("session started", "session_id", sessionID)
	return nil
}

// Discover asks the browser agent for its open tabs and stores the ones
// whose URL passes the allow-list. An empty result is an expected outcome,
// not an error: the session drops back to discovery and the user is told to
// open the quiz page and retry.
func (o *Orchestrator) Discover(ctx context.Context, sessionID string) error {
	known, err := o.store.IsKnownSession(sessionID)
	if err != nil {
		return err
	}
	if !known {
		o.notify(ctx, sessionID, restartMessage)
		return models.NewQuizError(models.ErrCodeSessionNotFound, "session not registered", nil)
	}

	sess, err := o.store.GetSession(sessionID)
	if errors.Is(err, store.ErrNotFound) {
		o.notify(ctx, sessionID, restartMessage)
		return models.NewQuizError(models.ErrCodeSessionNotFound, "session record missing", nil)
	}
	if err != nil {
		return err
	}
	// Discovery is only meaningful before answers exist. Re-running it from
	// tab_discovered refreshes a stale tab list, so that is allowed too.
	if err := requireState(sess.State, models.StateTabDiscoveryPending, models.StateTabDiscovered); err != nil {
		o.notify(ctx, sessionID, wrongStepMessage)
		return err
	}

	if err := o.relay.Post(ctx, sessionID, relay.CommandCollectTabs); err != nil {
		return err
	}

	push, ok, err := o.relay.AwaitTabs(ctx, sessionID)
	if err != nil {
		return err
	}

	var tabs []models.Tab
	if ok {
		tabs = o.filterTabs(push)
	}

	if len(tabs) == 0 {
		_, err := o.store.UpdateSession(sessionID, func(sess *models.Session) error {
			sess.State = models.StateTabDiscoveryPending
			return nil
		})
		if err != nil {
			return err
		}
		_ = o.store.SetStatus(sessionID, models.StatusCompleted)
		slog.Info("tab discovery empty", "session_id", sessionID)
		o.notify(ctx, sessionID, noTabsMessage)
		return nil
	}

	_, err = o.store.UpdateSession(sessionID, func(sess *models.Session) error {
		sess.Tabs = tabs
		sess.State = models.StateTabDiscovered
		return nil
	})
	if err != nil {
		return err
	}
	_ = o.store.SetStatus(sessionID, models.StatusCompleted)
	slog.Info("tabs discovered", "session_id", sessionID, "count", len(tabs))
	o.notify(ctx, sessionID, tabListMessage(tabs))
	return nil
}

// SelectTab scrapes the chosen tab, generates answers and delivers them in
// batches. A cache hit for the tab's URL skips the browser pool entirely
// and is treated the same as a fresh scrape.
func (o *Orchestrator) SelectTab(ctx context.Context, sessionID string, index int) error {
	// ── 1. Validate the selection and enter scrape_pending ──
	var tab models.Tab
	_, err := o.store.UpdateSession(sessionID, func(sess *models.Session) error {
		if index < 0 || index >= len(sess.Tabs) {
			return models.NewQuizError(models.ErrCodeTabNotFound, "tab index out of range", nil)
		}
		// scrape_pending is allowed so a failed scrape can be retried by
		// selecting again.
		if err := requireState(sess.State, models.StateTabDiscovered, models.StateScrapePending); err != nil {
			return err
		}
		tab = sess.Tabs[index]
		sess.State = models.StateScrapePending
		return nil
	})
	if err != nil {
		switch {
		case isWrongStep(err):
			o.notify(ctx, sessionID, wrongStepMessage)
		case isDataIntegrity(err):
			o.notify(ctx, sessionID, restartMessage)
		}
		return err
	}
	if err := o.store.SetStatus(sessionID, models.StatusPending); err != nil {
		return err
	}

	// ── 2. Obtain questions: cache first, browser pool on miss ──
	var (
		questions      []models.Question
		combinedPrompt string
	)
	if entry, hit := o.cache.Get(tab.URL); hit {
		slog.Info("cache hit, skipping scrape", "session_id", sessionID, "url", tab.URL)
		questions = entry.Questions
		combinedPrompt = entry.CombinedPrompt
	} else {
		outcome, err := o.scrape(ctx, tab)
		if err != nil {
			_ = o.store.SetStatus(sessionID, models.StatusFailed)
			o.notify(ctx, sessionID, scrapeFailedMessage(err))
			return err
		}
		questions = outcome.Questions
		if len(questions) > 0 {
			combinedPrompt = llm.BuildPrompt(questions)
			if err := o.cache.Put(tab.URL, questions, combinedPrompt); err != nil {
				slog.Warn("cache store failed", "url", tab.URL, "error", err)
			}
		}
	}

	if len(questions) == 0 {
		_, err := o.store.UpdateSession(sessionID, func(sess *models.Session) error {
			sess.State = models.StateTabDiscovered
			return nil
		})
		if err != nil {
			return err
		}
		_ = o.store.SetStatus(sessionID, models.StatusCompleted)
		o.notify(ctx, sessionID, noQuestionsMessage)
		return nil
	}

	// ── 3. Generate answers; a collaborator failure degrades to the
	// pending sentinel for the whole batch rather than blocking delivery ──
	answers := o.answerBatch(ctx, sessionID, questions, combinedPrompt)
	for i := range questions {
		questions[i].Answer = answers[i]
	}

	// ── 4. Deliver in batches, recording the message handle per batch ──
	refs, err := o.deliver(ctx, sessionID, questions)
	if err != nil {
		_ = o.store.SetStatus(sessionID, models.StatusFailed)
		return err
	}

	_, err = o.store.UpdateSession(sessionID, func(sess *models.Session) error {
		// Supersede the chosen tab wholesale with a snapshot carrying its
		// scraped questions.
		if index < len(sess.Tabs) {
			tab.Questions = questions
			sess.Tabs[index] = tab
		}
		sess.Questions = questions
		sess.MessageRefs = refs
		sess.State = models.StateAnswersDelivered
		return nil
	})
	if err != nil {
		return err
	}
	if err := o.store.SetStatus(sessionID, models.StatusCompleted); err != nil {
		return err
	}
	slog.Info("answers delivered", "session_id", sessionID, "questions", len(questions), "batches", len(refs))
	return nil
}

// Regenerate re-asks the completion service for one question and splices
// the new answer into both the stored sequence and the already-delivered
// batch message. questionNumber is 1-based as delivered.
func (o *Orchestrator) Regenerate(ctx context.Context, sessionID string, questionNumber int) error {
	var question models.Question
	_, err := o.store.UpdateSession(sessionID, func(sess *models.Session) error {
		if questionNumber < 1 || questionNumber > len(sess.Questions) {
			return models.NewQuizError(models.ErrCodeQuestionNotFound, "question number out of range", nil)
		}
		if err := requireState(sess.State, models.StateAnswersDelivered); err != nil {
			return err
		}
		question = sess.Questions[questionNumber-1]
		sess.State = models.StateRegeneratePending
		return nil
	})
	if err != nil {
		switch {
		case isWrongStep(err):
			o.notify(ctx, sessionID, wrongStepMessage)
		case isDataIntegrity(err):
			o.notify(ctx, sessionID, restartMessage)
		}
		return err
	}

	answer := models.AnswerPending
	text, err := o.answerer.Answer(ctx, []models.Question{question}, "")
	if err != nil {
		slog.Warn("regenerate completion failed", "session_id", sessionID, "question", questionNumber, "error", err)
	} else {
		answer = llm.ParseAnswers(text, 1)[0]
	}

	sess, err := o.store.UpdateSession(sessionID, func(sess *models.Session) error {
		if questionNumber > len(sess.Questions) {
			return models.NewQuizError(models.ErrCodeQuestionNotFound, "question sequence changed", nil)
		}
		sess.Questions[questionNumber-1].Answer = answer
		sess.State = models.StateAnswersDelivered
		return nil
	})
	if err != nil {
		return err
	}
	questions, refs := sess.Questions, sess.MessageRefs

	// Re-render only the batch that carries this question.
	batchStart := ((questionNumber - 1) / o.batchSize()) * o.batchSize()
	if ref, found := refs[batchStart]; found {
		if err := o.notifier.Edit(ctx, sessionID, ref, batchMessage(questions, batchStart, o.batchSize())); err != nil {
			return err
		}
	}
	slog.Info("answer regenerated", "session_id", sessionID, "question", questionNumber)
	return nil
}

// scrape runs one pool task for the tab and waits for it to settle.
func (o *Orchestrator) scrape(ctx context.Context, tab models.Tab) (models.ScrapeOutcome, error) {
	outcomeCh := make(chan models.ScrapeOutcome, 1)
	o.pool.Submit(scraper.Task{
		URL:     tab.URL,
		Cookies: tab.Cookies,
		Sink:    func(out models.ScrapeOutcome) { outcomeCh <- out },
	})

	select {
	case outcome := <-outcomeCh:
		return outcome, outcome.Err
	case <-ctx.Done():
		return models.ScrapeOutcome{URL: tab.URL, Err: ctx.Err()}, ctx.Err()
	}
}

// answerBatch asks the completion service for the whole batch. On failure
// every question degrades to the pending sentinel.
func (o *Orchestrator) answerBatch(ctx context.Context, sessionID string, questions []models.Question, combinedPrompt string) []string {
	text, err := o.answerer.Answer(ctx, questions, combinedPrompt)
	if err != nil {
		slog.Warn("completion failed, delivering pending sentinels", "session_id", sessionID, "error", err)
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = models.AnswerPending
		}
		return answers
	}
	return llm.ParseAnswers(text, len(questions))
}

// deliver sends the answered questions in fixed-size batches and returns
// the batch-start to message-handle mapping for later edits.
func (o *Orchestrator) deliver(ctx context.Context, sessionID string, questions []models.Question) (map[int]string, error) {
	refs := make(map[int]string)
	size := o.batchSize()
	for start := 0; start < len(questions); start += size {
		ref, err := o.notifier.Send(ctx, sessionID, batchMessage(questions, start, size))
		if err != nil {
			return nil, err
		}
		refs[start] = ref
	}
	return refs, nil
}

// filterTabs keeps only agent-pushed tabs whose URL passes the allow-list.
func (o *Orchestrator) filterTabs(push *models.TabPush) []models.Tab {
	var tabs []models.Tab
	for i, url := range push.URLs {
		if !o.urlAllowed(url) {
			continue
		}
		tab := models.Tab{URL: url}
		if i < len(push.Titles) {
			tab.Title = push.Titles[i]
		}
		if i < len(push.Cookies) {
			tab.Cookies = push.Cookies[i]
		}
		tabs = append(tabs, tab)
	}
	return tabs
}

func (o *Orchestrator) urlAllowed(url string) bool {
	for _, prefix := range o.wfCfg.AllowedURLPrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) batchSize() int {
	if o.chatCfg.BatchSize < 1 {
		return 1
	}
	return o.chatCfg.BatchSize
}

// requireState gates a trigger on the session's current position in the
// state machine. A mismatch means the trigger arrived out of order, for
// example discover after answers were already delivered.
func requireState(current models.SessionState, allowed ...models.SessionState) error {
	for _, s := range allowed {
		if current == s {
			return nil
		}
	}
	return models.NewQuizError(models.ErrCodeInvalidInput,
		fmt.Sprintf("step not available in state %q", current), nil)
}

// isWrongStep reports whether err is an out-of-order trigger rejection.
func isWrongStep(err error) bool {
	var qe *models.QuizError
	return errors.As(err, &qe) && qe.Code == models.ErrCodeInvalidInput
}

// isDataIntegrity reports whether err is a user-recoverable selection error
// rather than an infrastructure failure.
func isDataIntegrity(err error) bool {
	var qe *models.QuizError
	if !errors.As(err, &qe) {
		return false
	}
	switch qe.Code {
	case models.ErrCodeSessionNotFound, models.ErrCodeTabNotFound, models.ErrCodeQuestionNotFound:
		return true
	}
	return false
}

// notify sends an informational message, logging delivery failures instead
// of failing the workflow step over them.
func (o *Orchestrator) notify(ctx context.Context, sessionID, text string) {
	if _, err := o.notifier.Send(ctx, sessionID, text); err != nil {
		slog.Warn("chat notification failed", "session_id", sessionID, "error", err)
	}
}
