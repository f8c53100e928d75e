package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketglass/marketglass/internal/domain"
	"github.com/marketglass/marketglass/internal/platform/polymarket"
)

type fakeBookSource struct {
	mu         sync.Mutex
	books      map[string]polymarket.BookSummary
	batchErr   error
	singleGets []string
	batchGets  [][]string
}

func (f *fakeBookSource) GetBook(_ context.Context, tokenID string) (polymarket.BookSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singleGets = append(f.singleGets, tokenID)
	return f.books[tokenID], nil
}

func (f *fakeBookSource) GetBooks(_ context.Context, tokenIDs []string) ([]polymarket.BookSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchGets = append(f.batchGets, tokenIDs)
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([]polymarket.BookSummary, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		out = append(out, f.books[id])
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func summaryFor(tokenID string) polymarket.BookSummary {
	return polymarket.BookSummary{
		AssetID: tokenID,
		Bids:    []domain.RawLevel{{Price: "0.55", Size: "100"}},
		Asks:    []domain.RawLevel{{Price: "0.57", Size: "80"}},
	}
}

// staleFeed builds a feed with every given token already tracked and stale.
func staleFeed(src *fakeBookSource, handler BookUpdateHandler, tokens ...string) *BookFeed {
	f := NewBookFeed(nil, src, handler, time.Second, time.Second, discardLogger())
	for _, id := range tokens {
		f.tracked[id] = time.Time{}
	}
	return f
}

func TestPollStaleBatchesMultipleTokens(t *testing.T) {
	src := &fakeBookSource{books: map[string]polymarket.BookSummary{
		"tok-1": summaryFor("tok-1"),
		"tok-2": summaryFor("tok-2"),
	}}

	var mu sync.Mutex
	var delivered []string
	f := staleFeed(src, func(_ context.Context, tokenID string, _ domain.RawBook) {
		mu.Lock()
		delivered = append(delivered, tokenID)
		mu.Unlock()
	}, "tok-1", "tok-2")

	f.pollStale(context.Background())

	require.Len(t, src.batchGets, 1, "two stale books go out as one batch call")
	assert.Empty(t, src.singleGets)

	sort.Strings(delivered)
	assert.Equal(t, []string{"tok-1", "tok-2"}, delivered)
}

func TestPollStaleSingleTokenSkipsBatch(t *testing.T) {
	src := &fakeBookSource{books: map[string]polymarket.BookSummary{
		"tok-1": summaryFor("tok-1"),
	}}
	f := staleFeed(src, nil, "tok-1")

	f.pollStale(context.Background())

	assert.Equal(t, []string{"tok-1"}, src.singleGets)
	assert.Empty(t, src.batchGets)
}

func TestPollStaleBatchFailureFallsBackPerToken(t *testing.T) {
	src := &fakeBookSource{
		books: map[string]polymarket.BookSummary{
			"tok-1": summaryFor("tok-1"),
			"tok-2": summaryFor("tok-2"),
		},
		batchErr: errors.New("endpoint down"),
	}
	f := staleFeed(src, nil, "tok-1", "tok-2")

	f.pollStale(context.Background())

	require.Len(t, src.batchGets, 1)
	sort.Strings(src.singleGets)
	assert.Equal(t, []string{"tok-1", "tok-2"}, src.singleGets)
}

func TestPollStaleFreshBooksUntouched(t *testing.T) {
	src := &fakeBookSource{books: map[string]polymarket.BookSummary{}}
	f := NewBookFeed(nil, src, nil, time.Second, time.Hour, discardLogger())
	f.tracked["tok-1"] = time.Now()

	f.pollStale(context.Background())

	assert.Empty(t, src.singleGets)
	assert.Empty(t, src.batchGets)
}
