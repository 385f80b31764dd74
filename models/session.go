package models

import "time"

// SessionState is the workflow state of a chat session.
type SessionState string

const (
	StateNew                 SessionState = "new"
	StateTabDiscoveryPending SessionState = "tab_discovery_pending"
	StateTabDiscovered       SessionState = "tab_discovered"
	StateScrapePending       SessionState = "scrape_pending"
	StateAnswersDelivered    SessionState = "answers_delivered"
	StateRegeneratePending   SessionState = "regenerate_pending"
)

// ProcessingStatus tracks the outcome of the most recent asynchronous step.
type ProcessingStatus string

const (
	StatusNone      ProcessingStatus = "none"
	StatusPending   ProcessingStatus = "pending"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
)

// Cookie is a browser cookie supplied by the remote agent alongside a tab.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Tab is a snapshot of one browser tab at discovery time: its page identity
// plus the questions scraped from it. Immutable once stored; a refresh
// supersedes the whole record rather than merging into it.
type Tab struct {
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	Cookies   []Cookie   `json:"cookies,omitempty"`
	Questions []Question `json:"questions,omitempty"`
}

// Session is the whole per-session record. Mutations go through the store's
// transactional update so concurrent triggers for the same session cannot
// lose each other's writes.
type Session struct {
	ID          string         `json:"id" badgerhold:"key"`
	State       SessionState   `json:"state"`
	Tabs        []Tab          `json:"tabs,omitempty"`
	Questions   []Question     `json:"questions,omitempty"`
	MessageRefs map[int]string `json:"message_refs,omitempty"` // batch start index → outbound message handle
	UpdatedAt   time.Time      `json:"updated_at"`
}

// PendingCommand is one outstanding command addressed to the remote browser
// agent. At most one exists per session; a re-post overwrites an unclaimed one.
type PendingCommand struct {
	Command   string    `json:"command"`
	SessionID string    `json:"session_id"`
	PostedAt  time.Time `json:"posted_at"`
}

// TabPush is the data the remote agent pushes back after acting on a
// collect-tabs command. The three slices are index-aligned.
type TabPush struct {
	SessionID string     `json:"session_id"`
	URLs      []string   `json:"urls"`
	Titles    []string   `json:"titles"`
	Cookies   [][]Cookie `json:"cookies,omitempty"`
	PushedAt  time.Time  `json:"pushed_at"`
}

// CacheEntry is the last successful extraction for one page URL. Keyed by a
// hash of the URL alone; cookie identity is deliberately not part of the key,
// so sessions with different access rights share entries (known limitation).
type CacheEntry struct {
	URLHash        string     `json:"url_hash" badgerhold:"key"`
	URL            string     `json:"url"`
	Questions      []Question `json:"questions"`
	CombinedPrompt string     `json:"combined_prompt"`
	CachedAt       time.Time  `json:"cached_at"`
}
