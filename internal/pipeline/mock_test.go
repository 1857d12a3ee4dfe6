package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/bioextract/internal/extract"
	"github.com/sells-group/bioextract/internal/model"
	"github.com/sells-group/bioextract/internal/prompt"
)

// --- Resolver Mock ---

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, c model.Candidate) ([]model.SourceCandidate, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SourceCandidate), args.Error(1)
}

// --- Fetcher Mock ---

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, src model.SourceCandidate) (*model.NormalizedContent, error) {
	args := m.Called(ctx, src)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.NormalizedContent), args.Error(1)
}

// --- Invoker Mock ---

type mockInvoker struct {
	mock.Mock
}

func (m *mockInvoker) Invoke(ctx context.Context, p *prompt.Prompt) (*extract.RawResponse, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extract.RawResponse), args.Error(1)
}
