package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/arbiterstack/arbiter-eval/internal/utils"
)

// Record is the opaque key-value document shape the engine persists. The
// store is not expected to enforce any schema on it.
type Record = map[string]any

// DocumentStore is the persistence contract for campaigns, turns and
// evaluations. Implementations provide last-writer-wins semantics per
// record; no multi-record transactions are required.
type DocumentStore interface {
	CreateCampaign(ctx context.Context, id string, record Record) error
	GetCampaign(ctx context.Context, id string) (Record, error)
	UpdateCampaignStatus(ctx context.Context, id, status string, extra Record) error
	UpdateCampaignStats(ctx context.Context, id string, stats Record) error
	ListCampaigns(ctx context.Context, statusFilter string, limit, offset int) ([]Record, error)
	DeleteCampaign(ctx context.Context, id string) error
	SaveTurn(ctx context.Context, campaignID, turnID string, record Record) error
	GetTurns(ctx context.Context, campaignID string, limit int) ([]Record, error)
	UpdateTurnStatus(ctx context.Context, campaignID, turnID, status string, extra Record) error
	SaveEvaluation(ctx context.Context, campaignID, evalID string, record Record) error
	GetEvaluations(ctx context.Context, campaignID string) ([]Record, error)
}

// ToRecord converts a typed struct into an opaque record via JSON.
func ToRecord(v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// FromRecord decodes an opaque record back into a typed struct via JSON.
func FromRecord(rec Record, dest any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// MemoryStore is an in-process DocumentStore used by tests and local runs.
type MemoryStore struct {
	mu          sync.RWMutex
	campaigns   map[string]Record
	turns       map[string]map[string]Record
	evaluations map[string]map[string]Record
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns:   make(map[string]Record),
		turns:       make(map[string]map[string]Record),
		evaluations: make(map[string]map[string]Record),
	}
}

// CreateCampaign stores a new campaign record.
func (s *MemoryStore) CreateCampaign(_ context.Context, id string, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.campaigns[id]; exists {
		return fmt.Errorf("campaign %s already exists", id)
	}
	s.campaigns[id] = cloneRecord(record)
	return nil
}

// GetCampaign returns a campaign record or utils.ErrNotFound.
func (s *MemoryStore) GetCampaign(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.campaigns[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return cloneRecord(rec), nil
}

// UpdateCampaignStatus merges the status and extra fields into the record.
func (s *MemoryStore) UpdateCampaignStatus(_ context.Context, id, status string, extra Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.campaigns[id]
	if !ok {
		return utils.ErrNotFound
	}
	rec["Status"] = status
	for k, v := range extra {
		rec[k] = v
	}
	return nil
}

// UpdateCampaignStats replaces the stats field on the record.
func (s *MemoryStore) UpdateCampaignStats(_ context.Context, id string, stats Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.campaigns[id]
	if !ok {
		return utils.ErrNotFound
	}
	rec["Stats"] = stats
	return nil
}

// ListCampaigns returns campaign records, optionally filtered by status,
// ordered by id for determinism.
func (s *MemoryStore) ListCampaigns(_ context.Context, statusFilter string, limit, offset int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.campaigns))
	for id := range s.campaigns {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]Record, 0)
	for _, id := range ids {
		rec := s.campaigns[id]
		if statusFilter != "" {
			if status, _ := rec["Status"].(string); status != statusFilter {
				continue
			}
		}
		records = append(records, cloneRecord(rec))
	}
	if offset > len(records) {
		offset = len(records)
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

// DeleteCampaign removes a campaign and its turns and evaluations.
func (s *MemoryStore) DeleteCampaign(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[id]; !ok {
		return utils.ErrNotFound
	}
	delete(s.campaigns, id)
	delete(s.turns, id)
	delete(s.evaluations, id)
	return nil
}

// SaveTurn stores or replaces a turn record.
func (s *MemoryStore) SaveTurn(_ context.Context, campaignID, turnID string, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turns[campaignID] == nil {
		s.turns[campaignID] = make(map[string]Record)
	}
	s.turns[campaignID][turnID] = cloneRecord(record)
	return nil
}

// GetTurns returns turn records for a campaign ordered by sequence number.
func (s *MemoryStore) GetTurns(_ context.Context, campaignID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]Record, 0, len(s.turns[campaignID]))
	for _, rec := range s.turns[campaignID] {
		records = append(records, cloneRecord(rec))
	}
	sort.Slice(records, func(i, j int) bool {
		return recordSequence(records[i]) < recordSequence(records[j])
	})
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

// UpdateTurnStatus merges the status and extra fields into a turn record.
func (s *MemoryStore) UpdateTurnStatus(_ context.Context, campaignID, turnID, status string, extra Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.turns[campaignID][turnID]
	if !ok {
		return utils.ErrNotFound
	}
	rec["Status"] = status
	for k, v := range extra {
		rec[k] = v
	}
	return nil
}

// SaveEvaluation stores an evaluation record.
func (s *MemoryStore) SaveEvaluation(_ context.Context, campaignID, evalID string, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evaluations[campaignID] == nil {
		s.evaluations[campaignID] = make(map[string]Record)
	}
	s.evaluations[campaignID][evalID] = cloneRecord(record)
	return nil
}

// GetEvaluations returns all evaluation records for a campaign.
func (s *MemoryStore) GetEvaluations(_ context.Context, campaignID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]Record, 0, len(s.evaluations[campaignID]))
	for _, rec := range s.evaluations[campaignID] {
		records = append(records, cloneRecord(rec))
	}
	return records, nil
}

func cloneRecord(rec Record) Record {
	clone := make(Record, len(rec))
	for k, v := range rec {
		clone[k] = v
	}
	return clone
}

func recordSequence(rec Record) float64 {
	switch v := rec["Sequence"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
