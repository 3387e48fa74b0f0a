package worker

import (
	"log/slog"
	"sort"
	"sync"
)

// Message is one state or discovery update for a topic.
type Message struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	Retain  bool   `json:"retain"`
}

// Publisher delivers messages produced by the worker.
type Publisher interface {
	Publish(msgs ...Message)
}

// RetainedStore keeps the last payload of every retained topic, the way a
// broker would for late subscribers. Non-retained messages are only logged.
// Safe for concurrent use.
type RetainedStore struct {
	mu       sync.RWMutex
	retained map[string]string
}

// NewRetainedStore returns an empty store.
func NewRetainedStore() *RetainedStore {
	return &RetainedStore{retained: make(map[string]string)}
}

func (s *RetainedStore) Publish(msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		slog.Debug("[WORKER] publish", "topic", m.Topic, "payload", m.Payload, "retain", m.Retain)
		if m.Retain {
			s.retained[m.Topic] = m.Payload
		}
	}
}

// Get returns the retained payload for topic.
func (s *RetainedStore) Get(topic string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.retained[topic]
	return p, ok
}

// Snapshot returns all retained messages sorted by topic.
func (s *RetainedStore) Snapshot() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, 0, len(s.retained))
	for topic, payload := range s.retained {
		out = append(out, Message{Topic: topic, Payload: payload, Retain: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}
