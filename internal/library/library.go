package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	// Extension is appended to every record file name.
	Extension = ".txt"
	// BeginMarker separates the provenance header from the prompt content.
	BeginMarker = "# --- BEGIN PROMPT ---"

	headerName    = "# Prompt Name: "
	headerScore   = "# Associated Score: "
	headerContext = "# Context Inputs: "
	headerSavedAt = "# Saved At: "
)

// ContextKeys are the input fields kept as provenance when a prompt is saved after a run.
var ContextKeys = []string{"industry", "region", "transformational_journey", "program_area"}

// Entry is a saved prompt together with its provenance header.
type Entry struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name,omitempty"`
	Score       *int              `json:"score,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
	SavedAt     time.Time         `json:"saved_at"`
	Content     string            `json:"content"`
}

// Library is a directory of prompt records. Writes to different names are independent;
// concurrent writes to the same name resolve as last write wins.
type Library struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets the logger used to report swallowed I/O failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Library) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source used for Saved At stamps.
func WithClock(now func() time.Time) Option {
	return func(l *Library) {
		if now != nil {
			l.now = now
		}
	}
}

// New returns a Library rooted at dir. The directory is created on first save.
func New(dir string, opts ...Option) *Library {
	l := &Library{
		dir:    dir,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the directory backing the library.
func (l *Library) Dir() string {
	return l.dir
}

// SanitizeName keeps letters, digits, spaces, underscores and hyphens, replaces everything else
// with an underscore and trims trailing spaces.
func SanitizeName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '_' || r == '-' {
			sb.WriteRune(r)
		} else {
			sb.WriteRune('_')
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

// SuggestName builds the default save name for a best result.
func SuggestName(score, step int, now time.Time) string {
	return fmt.Sprintf("Optimized_Score%d_Step%d_%s", score, step, now.Format("20060102_150405"))
}

// Save writes a record and reports whether it succeeded. Failures are logged, never returned.
func (l *Library) Save(name, content string, score *int, context map[string]string) bool {
	if _, err := l.SaveEntry(name, content, score, context); err != nil {
		l.logger.Warn("failed to save prompt", "name", name, "error", err)
		return false
	}
	return true
}

// SaveEntry writes a record and returns the sanitized name it was stored under.
func (l *Library) SaveEntry(name, content string, score *int, context map[string]string) (string, error) {
	key := SanitizeName(strings.TrimSuffix(name, Extension))
	if strings.TrimSpace(key) == "" {
		return "", &PersistenceError{Op: "save", Name: name, Message: "name is empty after sanitizing"}
	}

	var sb strings.Builder
	sb.WriteString(headerName + singleLine(name) + "\n")
	if score != nil {
		sb.WriteString(headerScore + strconv.Itoa(*score) + "\n")
	}
	if ctx := nonEmpty(context); len(ctx) > 0 {
		data, err := json.Marshal(ctx)
		if err != nil {
			return "", &PersistenceError{Op: "save", Name: name, Message: "failed to encode context", Cause: err}
		}
		sb.WriteString(headerContext + string(data) + "\n")
	}
	sb.WriteString(headerSavedAt + l.now().Format(time.RFC3339Nano) + "\n")
	sb.WriteString(BeginMarker + "\n")
	sb.WriteString(content)

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", &PersistenceError{Op: "save", Name: name, Message: "failed to create library directory", Cause: err}
	}

	// Write then rename so readers never observe a partial record.
	tmp, err := os.CreateTemp(l.dir, ".prompt-*.tmp")
	if err != nil {
		return "", &PersistenceError{Op: "save", Name: name, Message: "failed to create temp file", Cause: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(sb.String()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", &PersistenceError{Op: "save", Name: name, Message: "failed to write record", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", &PersistenceError{Op: "save", Name: name, Message: "failed to close record", Cause: err}
	}
	if err := os.Rename(tmpPath, l.path(key)); err != nil {
		_ = os.Remove(tmpPath)
		return "", &PersistenceError{Op: "save", Name: name, Message: "failed to move record into place", Cause: err}
	}

	return key, nil
}

// Load returns the prompt content stored under name. The boolean is false when the record
// is missing or unreadable.
func (l *Library) Load(name string) (string, bool) {
	entry, err := l.LoadEntry(name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			l.logger.Warn("failed to load prompt", "name", name, "error", err)
		}
		return "", false
	}
	return entry.Content, true
}

// LoadEntry reads a record with its provenance header. Missing records return ErrNotFound.
func (l *Library) LoadEntry(name string) (*Entry, error) {
	key := SanitizeName(strings.TrimSuffix(name, Extension))
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(l.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "load", Name: name, Message: "failed to read record", Cause: err}
	}

	entry := parseRecord(string(data))
	entry.Name = key
	return entry, nil
}

// List returns record names, most recently saved first. A missing directory yields an empty list.
func (l *Library) List() []string {
	names, err := l.ListNames()
	if err != nil {
		l.logger.Warn("failed to list prompts", "dir", l.dir, "error", err)
		return []string{}
	}
	return names
}

// ListNames is List with the underlying error exposed.
func (l *Library) ListNames() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, &PersistenceError{Op: "list", Message: "failed to read library directory", Cause: err}
	}

	type record struct {
		name    string
		modTime time.Time
	}
	records := make([]record, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		records = append(records, record{name: strings.TrimSuffix(e.Name(), Extension), modTime: info.ModTime()})
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].modTime.Equal(records[j].modTime) {
			return records[i].name < records[j].name
		}
		return records[i].modTime.After(records[j].modTime)
	})

	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.name
	}
	return names, nil
}

// Entries loads every record in List order. Records that vanish or fail to read are skipped.
func (l *Library) Entries() ([]*Entry, error) {
	names, err := l.ListNames()
	if err != nil {
		return nil, err
	}

	entries := make([]*Entry, 0, len(names))
	for _, name := range names {
		entry, err := l.LoadEntry(name)
		if err != nil {
			l.logger.Warn("skipping unreadable prompt", "name", name, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (l *Library) path(key string) string {
	return filepath.Join(l.dir, key+Extension)
}

// parseRecord splits a record at the first marker line. Files without a marker are returned whole.
func parseRecord(data string) *Entry {
	entry := &Entry{}
	lines := strings.SplitAfter(data, "\n")

	markerAt := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == BeginMarker {
			markerAt = i
			break
		}
	}
	if markerAt < 0 {
		entry.Content = data
		return entry
	}

	for _, line := range lines[:markerAt] {
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, headerName):
			entry.DisplayName = strings.TrimPrefix(line, headerName)
		case strings.HasPrefix(line, headerScore):
			if v, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, headerScore))); err == nil {
				entry.Score = &v
			}
		case strings.HasPrefix(line, headerContext):
			var ctx map[string]string
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, headerContext)), &ctx); err == nil {
				entry.Context = ctx
			}
		case strings.HasPrefix(line, headerSavedAt):
			if ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(strings.TrimPrefix(line, headerSavedAt))); err == nil {
				entry.SavedAt = ts
			}
		}
	}

	entry.Content = strings.Join(lines[markerAt+1:], "")
	return entry
}

func singleLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}

func nonEmpty(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}
