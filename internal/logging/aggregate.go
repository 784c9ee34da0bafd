package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Entry is one parsed line of a holder's log file.
type Entry struct {
	Timestamp time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	Holder    string         `json:"holder,omitempty"`
	Lab       string         `json:"lab,omitempty"`
	Student   string         `json:"student,omitempty"`
	Source    string         `json:"source,omitempty"` // log file the entry came from
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Filter narrows a set of entries. Zero-valued fields match everything.
type Filter struct {
	// Level keeps entries at or above this level (DEBUG < INFO < WARN < ERROR).
	Level string

	StartTime time.Time
	EndTime   time.Time

	Holder  string
	Lab     string
	Student string

	// MessageContains is a case-insensitive substring match.
	MessageContains string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// History reads every *.log file in logDir and returns the parsed entries
// sorted by timestamp in ascending order. Lines that are not JSON objects are
// skipped. A missing directory yields no entries.
func History(logDir string) ([]Entry, error) {
	paths, err := filepath.Glob(filepath.Join(logDir, "*.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}

	var entries []Entry
	for _, path := range paths {
		fileEntries, err := readLogFile(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fileEntries...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func readLogFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	source := strings.TrimSuffix(filepath.Base(path), ".log")

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		entry, ok := parseEntry(line)
		if !ok {
			continue
		}
		entry.Source = source
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return entries, nil
}

func parseEntry(line []byte) (Entry, bool) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return Entry{}, false
	}

	var entry Entry
	if ts, ok := raw["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			entry.Timestamp = parsed
		}
	}
	entry.Level, _ = raw["level"].(string)
	entry.Message, _ = raw["msg"].(string)
	entry.Holder, _ = raw[KeyHolder].(string)
	entry.Lab, _ = raw[KeyLab].(string)
	entry.Student, _ = raw[KeyStudent].(string)

	for key, value := range raw {
		switch key {
		case "time", "level", "msg", KeyHolder, KeyLab, KeyStudent:
			continue
		}
		if entry.Attrs == nil {
			entry.Attrs = make(map[string]any)
		}
		entry.Attrs[key] = value
	}
	return entry, true
}

// FilterEntries returns the entries that match every criterion in filter.
func FilterEntries(entries []Entry, filter Filter) []Entry {
	var result []Entry
	for _, entry := range entries {
		if filter.matches(entry) {
			result = append(result, entry)
		}
	}
	return result
}

func (f Filter) matches(entry Entry) bool {
	if f.Level != "" {
		minLevel, ok := levelOrder[strings.ToUpper(f.Level)]
		if ok {
			entryLevel, known := levelOrder[strings.ToUpper(entry.Level)]
			if known && entryLevel < minLevel {
				return false
			}
		}
	}
	if !f.StartTime.IsZero() && entry.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && entry.Timestamp.After(f.EndTime) {
		return false
	}
	if f.Holder != "" && entry.Holder != f.Holder {
		return false
	}
	if f.Lab != "" && !strings.EqualFold(entry.Lab, f.Lab) {
		return false
	}
	if f.Student != "" && entry.Student != f.Student {
		return false
	}
	if f.MessageContains != "" &&
		!strings.Contains(strings.ToLower(entry.Message), strings.ToLower(f.MessageContains)) {
		return false
	}
	return true
}
