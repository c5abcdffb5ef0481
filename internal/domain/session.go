// Package domain contains core domain types for the admission chatbot.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// InitialQueryLabel is the sentinel question recorded for a turn that
// arrives before any prompt has been asked.
const InitialQueryLabel = "User Query"

// LogEntry is one question/answer turn in a session's log.
type LogEntry struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds the per-user conversational state: collected slots, the
// turn log, the derived intent, and the completion flag.
type Session struct {
	SessionID   string            `json:"sessionId"`
	UserID      string            `json:"userId"`
	Slots       map[string]string `json:"slots"`
	Log         []LogEntry        `json:"log"`
	Intent      string            `json:"intent"`
	APIResponse string            `json:"api_response,omitempty"`
	IsComplete  bool              `json:"isComplete"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// LastQuestion returns the question of the most recent log entry, or the
// initial-query sentinel when the log is empty. This is the question the
// incoming answer is answering.
func (s *Session) LastQuestion() string {
	if len(s.Log) == 0 {
		return InitialQueryLabel
	}
	return s.Log[len(s.Log)-1].Question
}

// AppendLog records an answered question at the end of the log.
func (s *Session) AppendLog(question, answer string) {
	s.Log = append(s.Log, LogEntry{
		Question:  question,
		Answer:    answer,
		Timestamp: time.Now(),
	})
}

// Transcript renders the log as numbered Q/A pairs separated by blank
// lines, the format consumed by the retrieval service:
//
//	Q1: <question>
//	A1: <answer>
//
//	Q2: ...
func (s *Session) Transcript() string {
	var b strings.Builder
	for i, entry := range s.Log {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Q%d: %s\nA%d: %s", i+1, entry.Question, i+1, entry.Answer)
	}
	return b.String()
}
