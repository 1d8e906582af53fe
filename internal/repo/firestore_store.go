package repo

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/arbiterstack/arbiter-eval/internal/utils"
)

const (
	campaignCollection   = "campaigns"
	turnCollection       = "turns"
	evaluationCollection = "evaluations"
)

// FirestoreStore implements DocumentStore on Cloud Firestore. Turns and
// evaluations live in subcollections under their campaign document.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore constructs a store for the given project.
func NewFirestoreStore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

// Close releases the underlying client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) campaignDoc(id string) *firestore.DocumentRef {
	return s.client.Collection(campaignCollection).Doc(id)
}

// CreateCampaign stores a new campaign record, failing if one exists.
func (s *FirestoreStore) CreateCampaign(ctx context.Context, id string, record Record) error {
	if _, err := s.campaignDoc(id).Create(ctx, record); err != nil {
		return fmt.Errorf("create campaign %s: %w", id, err)
	}
	return nil
}

// GetCampaign returns a campaign record or utils.ErrNotFound.
func (s *FirestoreStore) GetCampaign(ctx context.Context, id string) (Record, error) {
	snap, err := s.campaignDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, utils.ErrNotFound
		}
		return nil, fmt.Errorf("get campaign %s: %w", id, err)
	}
	return snap.Data(), nil
}

// UpdateCampaignStatus merges the status and any extra fields.
func (s *FirestoreStore) UpdateCampaignStatus(ctx context.Context, id, status string, extra Record) error {
	merged := Record{"Status": status}
	for k, v := range extra {
		merged[k] = v
	}
	if _, err := s.campaignDoc(id).Set(ctx, merged, firestore.MergeAll); err != nil {
		return fmt.Errorf("update campaign %s status: %w", id, err)
	}
	return nil
}

// UpdateCampaignStats replaces the stats field on the campaign record.
func (s *FirestoreStore) UpdateCampaignStats(ctx context.Context, id string, stats Record) error {
	if _, err := s.campaignDoc(id).Set(ctx, Record{"Stats": stats}, firestore.MergeAll); err != nil {
		return fmt.Errorf("update campaign %s stats: %w", id, err)
	}
	return nil
}

// ListCampaigns returns campaign records, optionally filtered by status.
func (s *FirestoreStore) ListCampaigns(ctx context.Context, statusFilter string, limit, offset int) ([]Record, error) {
	query := s.client.Collection(campaignCollection).Query
	if statusFilter != "" {
		query = query.Where("Status", "==", statusFilter)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	records := make([]Record, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list campaigns: %w", err)
		}
		records = append(records, snap.Data())
	}
	return records, nil
}

// DeleteCampaign removes the campaign document. Subcollection documents are
// removed best-effort.
func (s *FirestoreStore) DeleteCampaign(ctx context.Context, id string) error {
	for _, sub := range []string{turnCollection, evaluationCollection} {
		iter := s.campaignDoc(id).Collection(sub).Documents(ctx)
		for {
			snap, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				iter.Stop()
				return fmt.Errorf("delete campaign %s %s: %w", id, sub, err)
			}
			if _, err := snap.Ref.Delete(ctx); err != nil {
				iter.Stop()
				return fmt.Errorf("delete campaign %s %s: %w", id, sub, err)
			}
		}
		iter.Stop()
	}
	if _, err := s.campaignDoc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete campaign %s: %w", id, err)
	}
	return nil
}

// SaveTurn stores or replaces a turn record under the campaign.
func (s *FirestoreStore) SaveTurn(ctx context.Context, campaignID, turnID string, record Record) error {
	doc := s.campaignDoc(campaignID).Collection(turnCollection).Doc(turnID)
	if _, err := doc.Set(ctx, record); err != nil {
		return fmt.Errorf("save turn %s: %w", turnID, err)
	}
	return nil
}

// GetTurns returns turn records ordered by sequence number.
func (s *FirestoreStore) GetTurns(ctx context.Context, campaignID string, limit int) ([]Record, error) {
	query := s.campaignDoc(campaignID).Collection(turnCollection).OrderBy("Sequence", firestore.Asc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	records := make([]Record, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("get turns for %s: %w", campaignID, err)
		}
		records = append(records, snap.Data())
	}
	return records, nil
}

// UpdateTurnStatus merges the status and extra fields into a turn record.
func (s *FirestoreStore) UpdateTurnStatus(ctx context.Context, campaignID, turnID, status string, extra Record) error {
	merged := Record{"Status": status}
	for k, v := range extra {
		merged[k] = v
	}
	doc := s.campaignDoc(campaignID).Collection(turnCollection).Doc(turnID)
	if _, err := doc.Set(ctx, merged, firestore.MergeAll); err != nil {
		return fmt.Errorf("update turn %s status: %w", turnID, err)
	}
	return nil
}

// SaveEvaluation stores an evaluation record under the campaign.
func (s *FirestoreStore) SaveEvaluation(ctx context.Context, campaignID, evalID string, record Record) error {
	doc := s.campaignDoc(campaignID).Collection(evaluationCollection).Doc(evalID)
	if _, err := doc.Set(ctx, record); err != nil {
		return fmt.Errorf("save evaluation %s: %w", evalID, err)
	}
	return nil
}

// GetEvaluations returns all evaluation records for a campaign.
func (s *FirestoreStore) GetEvaluations(ctx context.Context, campaignID string) ([]Record, error) {
	iter := s.campaignDoc(campaignID).Collection(evaluationCollection).Documents(ctx)
	defer iter.Stop()

	records := make([]Record, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("get evaluations for %s: %w", campaignID, err)
		}
		records = append(records, snap.Data())
	}
	return records, nil
}
