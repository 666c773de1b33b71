package repository

import (
	"context"
	"sync"

	"github.com/lvdashuaibi/ballotbot/internal/model"
)

// MemoryStore keeps ballot state in process memory. State is lost on restart.
type MemoryStore struct {
	mu         sync.RWMutex
	poll       *model.Poll
	votes      []model.VoteRecord
	voterLog   map[model.VoterLogEntry]struct{}
	selections map[model.SelectionKey]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		voterLog:   make(map[model.VoterLogEntry]struct{}),
		selections: make(map[model.SelectionKey]string),
	}
}

func (s *MemoryStore) clear() {
	s.poll = nil
	s.votes = nil
	s.voterLog = make(map[model.VoterLogEntry]struct{})
	s.selections = make(map[model.SelectionKey]string)
}

func (s *MemoryStore) ResetPoll(_ context.Context, poll model.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clear()
	p := poll
	s.poll = &p
	return nil
}

func (s *MemoryStore) ClosePoll(_ context.Context) (model.Tally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tally := model.TallyVotes(s.votes)
	s.clear()
	return tally, nil
}

func (s *MemoryStore) CurrentPoll(_ context.Context) (*model.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.poll == nil {
		return nil, nil
	}
	p := *s.poll
	return &p, nil
}

func (s *MemoryStore) HasVoted(_ context.Context, voter, item string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.voterLog[model.VoterLogEntry{Voter: voter, Item: item}]
	return ok, nil
}

func (s *MemoryStore) RecordVote(_ context.Context, vote model.VoteRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := model.VoterLogEntry{Voter: vote.Voter, Item: vote.Item}
	if _, ok := s.voterLog[entry]; ok {
		return false, nil
	}
	s.votes = append(s.votes, vote)
	s.voterLog[entry] = struct{}{}
	return true, nil
}

func (s *MemoryStore) Tally(_ context.Context) (model.Tally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return model.TallyVotes(s.votes), nil
}

func (s *MemoryStore) SaveSelection(_ context.Context, key model.SelectionKey, candidate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selections[key] = candidate
	return nil
}

func (s *MemoryStore) GetSelection(_ context.Context, key model.SelectionKey) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidate, ok := s.selections[key]
	return candidate, ok, nil
}

func (s *MemoryStore) ClearSelections(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selections = make(map[model.SelectionKey]string)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
