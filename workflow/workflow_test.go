package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/quizflow/cache"
	"github.com/use-agent/quizflow/config"
	"github.com/use-agent/quizflow/models"
	"github.com/use-agent/quizflow/relay"
	"github.com/use-agent/quizflow/scraper"
	"github.com/use-agent/quizflow/store"
)

// fakeAnswerer replays a scripted response per call.
type fakeAnswerer struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     [][]models.Question
}

func (f *fakeAnswerer) Answer(_ context.Context, questions []models.Question, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, questions)
	if f.err != nil {
		return "", f.err
	}
	resp := ""
	if len(f.responses) > 0 {
		resp = f.responses[0]
		f.responses = f.responses[1:]
	}
	return resp, nil
}

// fakeNotifier records sends and edits and hands out sequential refs.
type fakeNotifier struct {
	mu    sync.Mutex
	sends []string
	edits map[string]string // ref -> latest text
	next  int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{edits: map[string]string{}}
}

func (f *fakeNotifier) Send(_ context.Context, _, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, text)
	f.next++
	return fmt.Sprintf("msg-%d", f.next), nil
}

func (f *fakeNotifier) Edit(_ context.Context, _, ref, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits[ref] = text
	return nil
}

func (f *fakeNotifier) lastSend() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sends) == 0 {
		return ""
	}
	return f.sends[len(f.sends)-1]
}

type fixture struct {
	store    *store.Store
	relay    *relay.Relay
	orch     *Orchestrator
	answerer *fakeAnswerer
	notifier *fakeNotifier
	scraped  map[string][]models.Question // url -> questions the fake browser "finds"
	scrapes  *int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	rl := relay.New(st, config.RelayConfig{
		AgentWait:    500 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	})

	f := &fixture{
		store:    st,
		relay:    rl,
		answerer: &fakeAnswerer{},
		notifier: newFakeNotifier(),
		scraped:  map[string][]models.Question{},
	}

	var scrapes int32
	f.scrapes = &scrapes
	pool := scraper.NewPool(2, func(_ string, task scraper.Task) models.ScrapeOutcome {
		scrapes++
		qs, found := f.scraped[task.URL]
		if !found {
			return models.ScrapeOutcome{URL: task.URL, Err: errors.New("navigation timeout")}
		}
		return models.ScrapeOutcome{URL: task.URL, Questions: qs, Expected: len(qs)}
	})

	f.orch = New(st, rl, pool, cache.New(st), f.answerer, f.notifier,
		config.WorkflowConfig{AllowedURLPrefixes: []string{"https://www.coursera.org/learn/"}},
		config.ChatConfig{BatchSize: 5},
	)
	return f
}

func (f *fixture) pushTabs(t *testing.T, sessionID string, urls ...string) {
	t.Helper()
	titles := make([]string, len(urls))
	for i := range urls {
		titles[i] = "Tab " + urls[i]
	}
	require.NoError(t, f.relay.Push(context.Background(), &models.TabPush{
		SessionID: sessionID,
		URLs:      urls,
		Titles:    titles,
	}))
}

func fiveQuestions() []models.Question {
	qs := make([]models.Question, 5)
	for i := range qs {
		qs[i] = models.Question{
			ProblemID:  "prob-1",
			QuestionID: fmt.Sprintf("q%d", i+1),
			Text:       fmt.Sprintf("Question text %d?", i+1),
			Kind:       models.KindSingleChoice,
			Options:    []string{"Yes", "No"},
		}
	}
	qs[3].Kind = models.KindText
	qs[3].Options = nil
	qs[4].Kind = models.KindText
	qs[4].Options = nil
	return qs
}

func TestStart_RegistersAndResets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.orch.Start(ctx, "sess-1"))

	known, err := f.store.IsKnownSession("sess-1")
	require.NoError(t, err)
	assert.True(t, known)

	sess, err := f.store.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateTabDiscoveryPending, sess.State)

	// Restart wipes prior progress.
	require.NoError(t, f.store.PutSession(&models.Session{
		ID:        "sess-1",
		State:     models.StateAnswersDelivered,
		Questions: fiveQuestions(),
	}))
	require.NoError(t, f.orch.Start(ctx, "sess-1"))
	sess, err = f.store.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateTabDiscoveryPending, sess.State)
	assert.Empty(t, sess.Questions)
}

func TestDiscover_UnknownSessionRejected(t *testing.T) {
	f := newFixture(t)

	err := f.orch.Discover(context.Background(), "never-started")
	require.Error(t, err)
	var qe *models.QuizError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, models.ErrCodeSessionNotFound, qe.Code)
}

func TestDiscover_EmptyWindowReportsNoTabs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.orch.Start(ctx, "sess-1"))

	require.NoError(t, f.orch.Discover(ctx, "sess-1"))

	sess, err := f.store.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateTabDiscoveryPending, sess.State)
	assert.Contains(t, f.notifier.lastSend(), "No active quiz tab")
}

func TestDiscover_FiltersDisallowedURLs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.orch.Start(ctx, "sess-1"))

	go func() {
		// Claim the posted command the way the agent would, then push.
		time.Sleep(30 * time.Millisecond)
		f.pushTabs(t, "sess-1",
			"https://mail.example.com/inbox",
			"https://www.coursera.org/learn/go/quiz/1",
		)
	}()

	require.NoError(t, f.orch.Discover(ctx, "sess-1"))

	sess, err := f.store.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateTabDiscovered, sess.State)
	require.Len(t, sess.Tabs, 1)
	assert.Equal(t, "https://www.coursera.org/learn/go/quiz/1", sess.Tabs[0].URL)
	assert.Contains(t, f.notifier.lastSend(), "Select a tab")
}

func TestSelectTab_InvalidIndexInstructsRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.orch.Start(ctx, "sess-1"))

	err := f.orch.SelectTab(ctx, "sess-1", 3)
	require.Error(t, err)
	var qe *models.QuizError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, models.ErrCodeTabNotFound, qe.Code)
	assert.Contains(t, f.notifier.lastSend(), "Start over")
}

func seedDiscoveredSession(t *testing.T, f *fixture, sessionID, url string) {
	t.Helper()
	require.NoError(t, f.orch.Start(context.Background(), sessionID))
	require.NoError(t, f.store.PutSession(&models.Session{
		ID:    sessionID,
		State: models.StateTabDiscovered,
		Tabs:  []models.Tab{{URL: url, Title: "Quiz"}},
	}))
}

func TestSelectTab_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	url := "https://www.coursera.org/learn/go/quiz/1"
	f.scraped[url] = fiveQuestions()
	f.answerer.responses = []string{
		"Answer 1: Yes\nAnswer 2: No\nAnswer 3: Yes\nAnswer 4: pointers\nAnswer 5: goroutines",
	}
	seedDiscoveredSession(t, f, "sess-1", url)

	require.NoError(t, f.orch.SelectTab(ctx, "sess-1", 0))

	sess, err := f.store.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateAnswersDelivered, sess.State)
	require.Len(t, sess.Questions, 5)
	assert.Equal(t, "Yes", sess.Questions[0].Answer)
	assert.Equal(t, "pointers", sess.Questions[3].Answer)
	assert.Equal(t, "goroutines", sess.Questions[4].Answer)

	// The chosen tab's snapshot carries the scraped questions.
	require.Len(t, sess.Tabs, 1)
	require.Len(t, sess.Tabs[0].Questions, 5)
	assert.Equal(t, "Yes", sess.Tabs[0].Questions[0].Answer)
	assert.Equal(t, "goroutines", sess.Tabs[0].Questions[4].Answer)

	// Five questions fit one batch of five.
	require.Len(t, sess.MessageRefs, 1)
	assert.NotEmpty(t, sess.MessageRefs[0])

	status, err := f.store.GetStatus("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)

	last := f.notifier.lastSend()
	assert.Contains(t, last, "1. Question text 1?")
	assert.Contains(t, last, "Answer: goroutines")
	assert.Contains(t, last, "Regenerate")
}

func TestSelectTab_PartialAnswersGetUnknownSentinel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	url := "https://www.coursera.org/learn/go/quiz/1"
	f.scraped[url] = fiveQuestions()[:3]
	f.answerer.responses = []string{"Answer 2: foo"}
	seedDiscoveredSession(t, f, "sess-1", url)

	require.NoError(t, f.orch.SelectTab(ctx, "sess-1", 0))

	sess, err := f.store.GetSession("sess-1")
	require.NoError(t, err)
	require.Len(t, sess.Questions, 3)
	assert.Equal(t, models.AnswerUnknown, sess.Questions[0].Answer)
	assert.Equal(t, "foo", sess.Questions[1].Answer)
	assert.Equal(t, models.AnswerUnknown, sess.Questions[2].Answer)
}

func TestSelectTab_CompletionFailureDeliversPendingSentinels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	url := "https://www.coursera.org/learn/go/quiz/1"
	f.scraped[url] = fiveQuestions()[:2]
	f.answerer.err = errors.New("completion service down")
	seedDiscoveredSession(t, f, "sess-1", url)

	require.NoError(t, f.orch.SelectTab(ctx, "sess-1", 0))

	sess, err := f.store.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateAnswersDelivered, sess.State)
	for _, q := range sess.Questions {
		assert.Equal(t, models.AnswerPending, q.Answer)
	}
}

func TestSelectTab_ScrapeFailureSurfacesMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedDiscoveredSession(t, f, "sess-1", "https://www.coursera.org/learn/go/quiz/404")

	err := f.orch.SelectTab(ctx, "sess-1", 0)
	require.Error(t, err)

	status, serr := f.store.GetStatus("sess-1")
	require.NoError(t, serr)
	assert.Equal(t, models.StatusFailed, status)
	assert.Contains(t, f.notifier.lastSend(), "Could not read the quiz page")
}

func TestSelectTab_EmptyPageIsNotAnError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	url := "https://www.coursera.org/learn/go/supplement/1"
	f.scraped[url] = nil
	seedDiscoveredSession(t, f, "sess-1", url)

	require.NoError(t, f.orch.SelectTab(ctx, "sess-1", 0))

	sess, err := f.store.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateTabDiscovered, sess.State)
	assert.Contains(t, f.notifier.lastSend(), "No questions found")
}

func TestSelectTab_MultipleBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	url := "https://www.coursera.org/learn/go/quiz/long"

	qs := make([]models.Question, 7)
	for i := range qs {
		qs[i] = models.Question{QuestionID: fmt.Sprintf("q%d", i+1), Text: fmt.Sprintf("Q%d?", i+1), Kind: models.KindText}
	}
	f.scraped[url] = qs
	f.answerer.responses = []string{"Answer 7: last"}
	seedDiscoveredSession(t, f, "sess-1", url)

	require.NoError(t, f.orch.SelectTab(ctx, "sess-1", 0))

	sess, err := f.store.GetSession("sess-1")
	require.NoError(t, err)
	require.Len(t, sess.MessageRefs, 2)
	assert.NotEmpty(t, sess.MessageRefs[0])
	assert.NotEmpty(t, sess.MessageRefs[5])

	// Second batch numbers questions globally.
	assert.Contains(t, f.notifier.lastSend(), "6. Q6?")
	assert.Contains(t, f.notifier.lastSend(), "7. Q7?")
}

func TestSelectTab_CacheHitSkipsPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	url := "https://www.coursera.org/learn/go/quiz/shared"
	f.scraped[url] = fiveQuestions()[:2]
	f.answerer.responses = []string{
		"Answer 1: Yes\nAnswer 2: No",
		"Answer 1: Yes\nAnswer 2: No",
	}

	seedDiscoveredSession(t, f, "sess-1", url)
	require.NoError(t, f.orch.SelectTab(ctx, "sess-1", 0))
	assert.EqualValues(t, 1, *f.scrapes)

	// A second session for the same URL never touches the pool, even with
	// different cookies on its tab.
	require.NoError(t, f.orch.Start(ctx, "sess-2"))
	require.NoError(t, f.store.PutSession(&models.Session{
		ID:    "sess-2",
		State: models.StateTabDiscovered,
		Tabs: []models.Tab{{
			URL:     url,
			Cookies: []models.Cookie{{Name: "CAUTH", Value: "other-user"}},
		}},
	}))
	require.NoError(t, f.orch.SelectTab(ctx, "sess-2", 0))
	assert.EqualValues(t, 1, *f.scrapes)

	sess, err := f.store.GetSession("sess-2")
	require.NoError(t, err)
	assert.Equal(t, models.StateAnswersDelivered, sess.State)
	require.Len(t, sess.Questions, 2)
}

func TestRegenerate_SplicesOneAnswerAndEditsOneBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	url := "https://www.coursera.org/learn/go/quiz/1"
	f.scraped[url] = fiveQuestions()
	f.answerer.responses = []string{
		"Answer 1: a1\nAnswer 2: a2\nAnswer 3: a3\nAnswer 4: a4\nAnswer 5: a5",
		"Answer 1: better third answer",
	}
	seedDiscoveredSession(t, f, "sess-1", url)
	require.NoError(t, f.orch.SelectTab(ctx, "sess-1", 0))

	require.NoError(t, f.orch.Regenerate(ctx, "sess-1", 3))

	sess, err := f.store.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateAnswersDelivered, sess.State)
	assert.Equal(t, "better third answer", sess.Questions[2].Answer)
	assert.Equal(t, "a2", sess.Questions[1].Answer, "other answers untouched")
	assert.Equal(t, "a4", sess.Questions[3].Answer, "other answers untouched")

	// The regenerate call carried exactly the one question.
	f.answerer.mu.Lock()
	lastCall := f.answerer.calls[len(f.answerer.calls)-1]
	f.answerer.mu.Unlock()
	require.Len(t, lastCall, 1)
	assert.Equal(t, "Question text 3?", lastCall[0].Text)

	// The delivered batch message was edited in place.
	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	ref := sess.MessageRefs[0]
	require.Contains(t, f.notifier.edits, ref)
	assert.Contains(t, f.notifier.edits[ref], "better third answer")
}

func TestDiscover_RejectedAfterDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.orch.Start(ctx, "sess-1"))
	require.NoError(t, f.store.PutSession(&models.Session{
		ID:        "sess-1",
		State:     models.StateAnswersDelivered,
		Questions: fiveQuestions(),
	}))

	err := f.orch.Discover(ctx, "sess-1")
	require.Error(t, err)
	var qe *models.QuizError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, models.ErrCodeInvalidInput, qe.Code)
	assert.Contains(t, f.notifier.lastSend(), "not available")

	sess, err := f.store.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateAnswersDelivered, sess.State, "delivered answers survive a stray discover")
	require.Len(t, sess.Questions, 5)
}

func TestSelectTab_RejectedBeforeDiscovery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	url := "https://www.coursera.org/learn/go/quiz/1"
	require.NoError(t, f.orch.Start(ctx, "sess-1"))
	require.NoError(t, f.store.PutSession(&models.Session{
		ID:        "sess-1",
		State:     models.StateAnswersDelivered,
		Tabs:      []models.Tab{{URL: url, Title: "Quiz"}},
		Questions: fiveQuestions(),
	}))

	err := f.orch.SelectTab(ctx, "sess-1", 0)
	require.Error(t, err)
	var qe *models.QuizError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, models.ErrCodeInvalidInput, qe.Code)
	assert.EqualValues(t, 0, *f.scrapes, "no pool task for an out-of-order selection")

	sess, err := f.store.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateAnswersDelivered, sess.State)
}

func TestSelectTab_RetryAllowedAfterScrapeFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	url := "https://www.coursera.org/learn/go/quiz/1"
	seedDiscoveredSession(t, f, "sess-1", url)

	// First attempt fails and leaves the session mid-scrape.
	require.Error(t, f.orch.SelectTab(ctx, "sess-1", 0))
	sess, err := f.store.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateScrapePending, sess.State)

	// Selecting again from that state is a retry, not an out-of-order step.
	f.scraped[url] = fiveQuestions()[:2]
	f.answerer.responses = []string{"Answer 1: Yes\nAnswer 2: No"}
	require.NoError(t, f.orch.SelectTab(ctx, "sess-1", 0))

	sess, err = f.store.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateAnswersDelivered, sess.State)
}

func TestRegenerate_RejectedBeforeDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.orch.Start(ctx, "sess-1"))
	require.NoError(t, f.store.PutSession(&models.Session{
		ID:        "sess-1",
		State:     models.StateTabDiscovered,
		Questions: fiveQuestions(),
	}))

	err := f.orch.Regenerate(ctx, "sess-1", 2)
	require.Error(t, err)
	var qe *models.QuizError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, models.ErrCodeInvalidInput, qe.Code)

	sess, err := f.store.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateTabDiscovered, sess.State)
}

func TestRegenerate_OutOfRangeRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.orch.Start(ctx, "sess-1"))

	err := f.orch.Regenerate(ctx, "sess-1", 1)
	require.Error(t, err)
	var qe *models.QuizError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, models.ErrCodeQuestionNotFound, qe.Code)
}
