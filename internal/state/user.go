// internal/state/user.go
package state

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/vigild/internal/types"
)

// SettingsDefaults seeds a user's settings file the first time it is read.
type SettingsDefaults struct {
	ModelID            string
	HeartbeatInterval  time.Duration
	MaxContextMessages int
}

// UserState is one user's on-disk bundle: messages.jsonl and notes.jsonl
// appends plus a settings.json document, all under users/<userID>/.
// Handles are created by the Arena; the arena guarantees one handle per
// user so these mutexes serialize all access to the underlying files.
type UserState struct {
	dir      string
	defaults SettingsDefaults

	msgMu      sync.Mutex
	noteMu     sync.Mutex
	settingsMu sync.Mutex
}

func newUserState(dir string, defaults SettingsDefaults) *UserState {
	return &UserState{dir: dir, defaults: defaults}
}

func (u *UserState) messagesPath() string { return filepath.Join(u.dir, "messages.jsonl") }
func (u *UserState) notesPath() string    { return filepath.Join(u.dir, "notes.jsonl") }
func (u *UserState) settingsPath() string { return filepath.Join(u.dir, "settings.json") }

// appendLine writes one JSON line, creating the user directory lazily so a
// message is never dropped for lack of prior registration.
func (u *UserState) appendLine(path string, v any) error {
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return fmt.Errorf("create user dir: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append %s: %w", filepath.Base(path), err)
	}
	return nil
}

// AppendMessage adds an entry to the conversation history with the current
// timestamp. History grows without bound; only reads are truncated.
func (u *UserState) AppendMessage(role, content string) error {
	u.msgMu.Lock()
	defer u.msgMu.Unlock()
	return u.appendLine(u.messagesPath(), &types.ConversationEntry{
		Timestamp: time.Now(),
		Role:      role,
		Content:   content,
	})
}

// RecentMessages returns up to limit most recent entries, oldest first.
// limit <= 0 returns everything.
func (u *UserState) RecentMessages(limit int) ([]types.ConversationEntry, error) {
	u.msgMu.Lock()
	defer u.msgMu.Unlock()

	var entries []types.ConversationEntry
	err := scanLines(u.messagesPath(), func(line []byte) {
		var e types.ConversationEntry
		if json.Unmarshal(line, &e) == nil {
			entries = append(entries, e)
		}
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// AppendNote adds a scratchpad note with the current timestamp.
func (u *UserState) AppendNote(text string) error {
	u.noteMu.Lock()
	defer u.noteMu.Unlock()
	return u.appendLine(u.notesPath(), &types.Note{
		Timestamp: time.Now(),
		Text:      text,
	})
}

// RecentNotes returns up to limit most recent notes, oldest first.
func (u *UserState) RecentNotes(limit int) ([]types.Note, error) {
	u.noteMu.Lock()
	defer u.noteMu.Unlock()

	var notes []types.Note
	err := scanLines(u.notesPath(), func(line []byte) {
		var n types.Note
		if json.Unmarshal(line, &n) == nil {
			notes = append(notes, n)
		}
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(notes) > limit {
		notes = notes[len(notes)-limit:]
	}
	return notes, nil
}

// Settings returns the user's settings, writing defaults on first read.
func (u *UserState) Settings() (types.UserSettings, error) {
	u.settingsMu.Lock()
	defer u.settingsMu.Unlock()
	return u.loadOrInitSettings()
}

// UpdateSettings merges only the fields present in the patch, bumps
// updated_at, persists, and returns the merged settings. The write is
// atomic so a concurrent reader never observes a partial merge.
func (u *UserState) UpdateSettings(patch types.SettingsPatch) (types.UserSettings, error) {
	u.settingsMu.Lock()
	defer u.settingsMu.Unlock()

	s, err := u.loadOrInitSettings()
	if err != nil {
		return types.UserSettings{}, err
	}
	if patch.ModelID != nil {
		s.ModelID = *patch.ModelID
	}
	if patch.HeartbeatEnabled != nil {
		s.HeartbeatEnabled = *patch.HeartbeatEnabled
	}
	if patch.HeartbeatInterval != nil {
		s.HeartbeatInterval = *patch.HeartbeatInterval
	}
	if patch.MaxContextMessages != nil {
		s.MaxContextMessages = *patch.MaxContextMessages
	}
	s.UpdatedAt = time.Now()

	if err := u.saveSettings(s); err != nil {
		return types.UserSettings{}, err
	}
	return s, nil
}

// loadOrInitSettings reads settings.json, creating it with defaults when
// missing. Caller must hold settingsMu.
func (u *UserState) loadOrInitSettings() (types.UserSettings, error) {
	data, err := os.ReadFile(u.settingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			now := time.Now()
			s := types.UserSettings{
				ModelID:            u.defaults.ModelID,
				HeartbeatEnabled:   true,
				HeartbeatInterval:  u.defaults.HeartbeatInterval,
				MaxContextMessages: u.defaults.MaxContextMessages,
				CreatedAt:          now,
				UpdatedAt:          now,
			}
			if err := u.saveSettings(s); err != nil {
				return types.UserSettings{}, err
			}
			return s, nil
		}
		return types.UserSettings{}, fmt.Errorf("read settings: %w", err)
	}

	var s types.UserSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return types.UserSettings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	return s, nil
}

func (u *UserState) saveSettings(s types.UserSettings) error {
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return fmt.Errorf("create user dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmp := u.settingsPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp settings: %w", err)
	}
	if err := os.Rename(tmp, u.settingsPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp settings: %w", err)
	}
	return nil
}

// scanLines reads a JSONL file line by line. A missing file is empty, not
// an error.
func scanLines(path string, fn func(line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		fn(line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", filepath.Base(path), err)
	}
	return nil
}
