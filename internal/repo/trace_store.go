package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/xray"

	"github.com/arbiterstack/arbiter-eval/internal/cache"
	"github.com/arbiterstack/arbiter-eval/internal/utils"
)

// TraceStore retrieves raw trace documents by trace id.
type TraceStore interface {
	GetTrace(ctx context.Context, traceID string) (RawTrace, error)
	BatchGetTraces(ctx context.Context, traceIDs []string) ([]RawTrace, error)
}

// XRayTraceStore implements TraceStore on AWS X-Ray. Fetched documents are
// cached because a trace is immutable once emitted and correlation may
// re-read it during report building.
type XRayTraceStore struct {
	client   *xray.Client
	cache    cache.Provider
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewXRayTraceStore constructs a trace store from the ambient AWS config.
func NewXRayTraceStore(ctx context.Context, region string, provider cache.Provider, cacheTTL time.Duration, logger *slog.Logger) (*XRayTraceStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &XRayTraceStore{
		client:   xray.NewFromConfig(cfg),
		cache:    provider,
		cacheTTL: cacheTTL,
		logger:   logger,
	}, nil
}

// GetTrace returns the raw document for one trace id, or utils.ErrNotFound
// when the trace does not exist (yet).
func (s *XRayTraceStore) GetTrace(ctx context.Context, traceID string) (RawTrace, error) {
	traces, err := s.BatchGetTraces(ctx, []string{traceID})
	if err != nil {
		return RawTrace{}, err
	}
	if len(traces) == 0 {
		return RawTrace{}, utils.ErrNotFound
	}
	return traces[0], nil
}

// BatchGetTraces fetches raw documents for the given trace ids. Unknown ids
// are simply absent from the result.
func (s *XRayTraceStore) BatchGetTraces(ctx context.Context, traceIDs []string) ([]RawTrace, error) {
	if len(traceIDs) == 0 {
		return nil, nil
	}

	results := make([]RawTrace, 0, len(traceIDs))
	missing := make([]string, 0, len(traceIDs))
	for _, id := range traceIDs {
		if trace, ok := s.cached(ctx, id); ok {
			results = append(results, trace)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return results, nil
	}

	input := &xray.BatchGetTracesInput{TraceIds: missing}
	for {
		out, err := s.client.BatchGetTraces(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("batch get traces: %w", err)
		}
		for _, trace := range out.Traces {
			raw := RawTrace{}
			if trace.Id != nil {
				raw.ID = *trace.Id
			}
			for _, segment := range trace.Segments {
				if segment.Document == nil {
					continue
				}
				raw.Segments = append(raw.Segments, RawSegment{Document: *segment.Document})
			}
			s.store(ctx, raw)
			results = append(results, raw)
		}
		if out.NextToken == nil {
			break
		}
		input.NextToken = out.NextToken
	}
	return results, nil
}

func (s *XRayTraceStore) cached(ctx context.Context, traceID string) (RawTrace, bool) {
	data, err := s.cache.Get(ctx, traceCacheKey(traceID))
	if err != nil {
		return RawTrace{}, false
	}
	var trace RawTrace
	if err := json.Unmarshal(data, &trace); err != nil {
		return RawTrace{}, false
	}
	return trace, true
}

func (s *XRayTraceStore) store(ctx context.Context, trace RawTrace) {
	if trace.ID == "" {
		return
	}
	data, err := json.Marshal(trace)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, traceCacheKey(trace.ID), data, s.cacheTTL); err != nil {
		s.logger.Debug("trace cache write failed", slog.Any("error", err))
	}
}

func traceCacheKey(traceID string) string {
	return "trace:" + traceID
}
