// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeranaias/gtllm/internal/logging"
	"github.com/jeranaias/gtllm/internal/settings"
	"github.com/jeranaias/gtllm/internal/util"
)

// ErrNotFound is returned when a session id has no file on disk.
var ErrNotFound = errors.New("session not found")

// Store reads and writes session files under a single directory.
type Store struct {
	dir string
	log *zap.SugaredLogger
}

// NewStore opens the default store under the config directory.
func NewStore() (*Store, error) {
	base, err := settings.Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return NewStoreAt(filepath.Join(base, "chats")), nil
}

// NewStoreAt opens a store rooted at dir. The directory is created on the
// first save.
func NewStoreAt(dir string) *Store {
	return &Store{dir: dir, log: logging.New("history")}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// validateID checks that id is a version-4 UUID. Session ids are always
// minted with uuid.NewString, so anything else is foreign input.
// SECURITY: Rejecting non-UUID ids before building paths prevents
// traversal out of the chats directory.
func validateID(id string) error {
	u, err := uuid.Parse(id)
	if err != nil {
		return err
	}
	if u.Version() != 4 {
		return fmt.Errorf("not a version 4 UUID (version %d)", u.Version())
	}
	return nil
}

// Timestamp returns the current time as a zero-padded Unix-seconds string.
// Zero padding keeps lexicographic and numeric ordering identical.
func Timestamp() string {
	return fmt.Sprintf("%010d", time.Now().Unix())
}

// NewSession creates session metadata for a first message. The title is the
// message collapsed to single spaces and cut at a word boundary.
func NewSession(mode Mode, firstMessage string) Session {
	return Session{
		ID:        uuid.NewString(),
		Title:     util.TruncateAtWord(firstMessage, 60),
		Mode:      mode,
		Timestamp: Timestamp(),
	}
}

// NewSessionData wraps a session and history into a saveable document.
func NewSessionData(session Session, history History) *SessionData {
	now := Timestamp()
	return &SessionData{
		Session:   session,
		History:   history,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Save writes the session to disk atomically, refreshing UpdatedAt.
// SECURITY: Session files may contain sensitive conversation content;
// they are written with owner-only permissions.
func (s *Store) Save(data *SessionData) error {
	if err := validateID(data.Session.ID); err != nil {
		return fmt.Errorf("invalid session id %q: %w", data.Session.ID, err)
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create chats directory: %w", err)
	}

	data.UpdatedAt = Timestamp()
	if data.CreatedAt == "" {
		data.CreatedAt = data.UpdatedAt
	}

	contents, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	if err := util.AtomicWriteFile(s.path(data.Session.ID), contents, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Load reads one session by id.
func (s *Store) Load(id string) (*SessionData, error) {
	if err := validateID(id); err != nil {
		return nil, fmt.Errorf("invalid session id %q: %w", id, err)
	}
	return s.loadFile(s.path(id))
}

func (s *Store) loadFile(path string) (*SessionData, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var data SessionData
	if err := json.Unmarshal(contents, &data); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", filepath.Base(path), err)
	}
	return &data, nil
}

// List loads every session in the store, most recently updated first.
// Files whose stem is not a version-4 UUID, and files that fail to parse, are
// skipped with a log line rather than failing the whole listing.
func (s *Store) List() ([]*SessionData, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read chats directory: %w", err)
	}

	var sessions []*SessionData
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), ".json")
		if err := validateID(stem); err != nil {
			continue
		}
		data, err := s.loadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.log.Warnw("skipping unreadable session", "file", entry.Name(), "error", err)
			continue
		}
		sessions = append(sessions, data)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt > sessions[j].UpdatedAt
	})
	return sessions, nil
}

// Delete removes a session file. Deleting a missing session is not an
// error.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return fmt.Errorf("invalid session id %q: %w", id, err)
	}
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// FormatTimestampDisplay renders a stored timestamp as a relative time
// string for session lists. Unparseable timestamps are shown as-is.
func FormatTimestampDisplay(timestamp string) string {
	secs, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return timestamp
	}

	diff := time.Now().Unix() - secs
	switch {
	case diff < 60:
		return "Just now"
	case diff < 3600:
		return fmt.Sprintf("%d minutes ago", diff/60)
	case diff < 86400:
		return fmt.Sprintf("%d hours ago", diff/3600)
	case diff < 86400*365:
		return fmt.Sprintf("%d days ago", diff/86400)
	default:
		return fmt.Sprintf("%d years ago", diff/(86400*365))
	}
}
