// Package store is the persistent key-value state shared between the server
// and the remote browser agent: session records, pending agent commands,
// agent data pushes, the URL-keyed extraction cache and per-session
// processing status. It carries no business logic.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/use-agent/quizflow/models"
)

// ErrNotFound is returned when a key is absent. Absence is an expected
// outcome for most lookups and must be distinguished from store failure.
var ErrNotFound = errors.New("store: not found")

// statusRecord persists the processing status of one session.
type statusRecord struct {
	SessionID string `badgerhold:"key"`
	Status    models.ProcessingStatus
	UpdatedAt time.Time
}

// knownSession marks a session id as registered (set-membership namespace).
type knownSession struct {
	SessionID string `badgerhold:"key"`
	AddedAt   time.Time
}

// Store wraps a badgerhold database. Values are opaque structured blobs with
// no schema versioning. Session mutations go through UpdateSession so they
// are transactional.
type Store struct {
	db *badgerhold.Store
}

// Open creates the database directory if needed and opens the store.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil // badger's own logger is too chatty; slog covers us

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("store: open badger database: %w", err)
	}

	slog.Info("session store opened", "path", path)
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// --- session records ---

// GetSession returns the session record for id, or ErrNotFound.
func (s *Store) GetSession(id string) (*models.Session, error) {
	var sess models.Session
	if err := s.db.Get(id, &sess); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	return &sess, nil
}

// PutSession writes the whole session record, stamping UpdatedAt.
func (s *Store) PutSession(sess *models.Session) error {
	sess.UpdatedAt = time.Now()
	if err := s.db.Upsert(sess.ID, sess); err != nil {
		return fmt.Errorf("store: put session: %w", err)
	}
	return nil
}

// UpdateSession applies mutate to the session record inside one transaction,
// so two concurrent triggers for the same session cannot lose each other's
// writes; write conflicts are retried with a fresh read. Missing records are
// passed to mutate as a fresh Session with the id set, which lets the first
// transition create the record.
func (s *Store) UpdateSession(id string, mutate func(*models.Session) error) (*models.Session, error) {
	for {
		sess, err := s.updateSessionOnce(id, mutate)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("store: update session: %w", err)
		}
		return sess, nil
	}
}

func (s *Store) updateSessionOnce(id string, mutate func(*models.Session) error) (*models.Session, error) {
	var out *models.Session
	err := s.db.Badger().Update(func(tx *badger.Txn) error {
		var sess models.Session
		err := s.db.TxGet(tx, id, &sess)
		if errors.Is(err, badgerhold.ErrNotFound) {
			sess = models.Session{ID: id, State: models.StateNew}
		} else if err != nil {
			return err
		}
		if err := mutate(&sess); err != nil {
			return err
		}
		sess.UpdatedAt = time.Now()
		if err := s.db.TxUpsert(tx, id, &sess); err != nil {
			return err
		}
		out = &sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddKnownSession registers a session id (idempotent).
func (s *Store) AddKnownSession(id string) error {
	rec := knownSession{SessionID: id, AddedAt: time.Now()}
	if err := s.db.Upsert(id, &rec); err != nil {
		return fmt.Errorf("store: add known session: %w", err)
	}
	return nil
}

// IsKnownSession reports whether the session id has been registered.
func (s *Store) IsKnownSession(id string) (bool, error) {
	var rec knownSession
	err := s.db.Get(id, &rec)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: known session lookup: %w", err)
	}
	return true, nil
}

// --- pending agent commands ---

// PutCommand stores the pending command for its session, overwriting any
// prior unclaimed one. At most one command is outstanding per session.
func (s *Store) PutCommand(cmd *models.PendingCommand) error {
	cmd.PostedAt = time.Now()
	if err := s.db.Upsert(cmd.SessionID, cmd); err != nil {
		return fmt.Errorf("store: put command: %w", err)
	}
	return nil
}

// ClaimCommand reads and removes at most one pending command, in a single
// transaction so concurrent agent polls cannot claim the same command twice.
// When multiple sessions have one outstanding, the choice is arbitrary (no
// fairness guarantee). Returns ErrNotFound when nothing is pending.
func (s *Store) ClaimCommand() (*models.PendingCommand, error) {
	var claimed *models.PendingCommand
	err := s.db.Badger().Update(func(tx *badger.Txn) error {
		var cmds []models.PendingCommand
		if err := s.db.TxFind(tx, &cmds, (&badgerhold.Query{}).Limit(1)); err != nil {
			return err
		}
		if len(cmds) == 0 {
			return badgerhold.ErrNotFound
		}
		if err := s.db.TxDelete(tx, cmds[0].SessionID, models.PendingCommand{}); err != nil {
			return err
		}
		claimed = &cmds[0]
		return nil
	})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: claim command: %w", err)
	}
	return claimed, nil
}

// --- agent tab pushes ---

// PutTabPush stores the agent's pushed tab data for its session, replacing
// any earlier unconsumed push.
func (s *Store) PutTabPush(push *models.TabPush) error {
	push.PushedAt = time.Now()
	if err := s.db.Upsert(push.SessionID, push); err != nil {
		return fmt.Errorf("store: put tab push: %w", err)
	}
	return nil
}

// TakeTabPush reads and removes the pushed tab data for a session, so one
// push feeds exactly one discovery cycle. Returns ErrNotFound when the agent
// has not pushed yet.
func (s *Store) TakeTabPush(sessionID string) (*models.TabPush, error) {
	var taken *models.TabPush
	err := s.db.Badger().Update(func(tx *badger.Txn) error {
		var push models.TabPush
		if err := s.db.TxGet(tx, sessionID, &push); err != nil {
			return err
		}
		if err := s.db.TxDelete(tx, sessionID, models.TabPush{}); err != nil {
			return err
		}
		taken = &push
		return nil
	})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: take tab push: %w", err)
	}
	return taken, nil
}

// --- extraction cache ---

// GetCache returns the cache entry for a URL hash, or ErrNotFound.
func (s *Store) GetCache(urlHash string) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	if err := s.db.Get(urlHash, &entry); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get cache entry: %w", err)
	}
	return &entry, nil
}

// PutCache stores a cache entry. Entries never expire and are never
// invalidated on cookie change.
func (s *Store) PutCache(entry *models.CacheEntry) error {
	entry.CachedAt = time.Now()
	if err := s.db.Upsert(entry.URLHash, entry); err != nil {
		return fmt.Errorf("store: put cache entry: %w", err)
	}
	return nil
}

// --- processing status ---

// GetStatus returns the processing status for a session; StatusNone when the
// session has none recorded.
func (s *Store) GetStatus(sessionID string) (models.ProcessingStatus, error) {
	var rec statusRecord
	err := s.db.Get(sessionID, &rec)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return models.StatusNone, nil
	}
	if err != nil {
		return models.StatusNone, fmt.Errorf("store: get status: %w", err)
	}
	return rec.Status, nil
}

// SetStatus records the processing status for a session.
func (s *Store) SetStatus(sessionID string, status models.ProcessingStatus) error {
	rec := statusRecord{SessionID: sessionID, Status: status, UpdatedAt: time.Now()}
	if err := s.db.Upsert(sessionID, &rec); err != nil {
		return fmt.Errorf("store: set status: %w", err)
	}
	return nil
}
