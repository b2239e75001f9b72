package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSearcher struct {
	healthy bool
	results []Result
	err     error
	calls   int
}

func (f *fakeSearcher) Search(context.Context, Query) ([]Result, int, error) {
	f.calls++
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.results, len(f.results), nil
}

func (f *fakeSearcher) Healthy() bool { return f.healthy }

func TestServiceSearchPrefersHealthyPrimary(t *testing.T) {
	primary := &fakeSearcher{healthy: true, results: []Result{{FileName: "lease.pdf"}}}
	fallback := &fakeSearcher{healthy: true, results: []Result{{FileName: "other.pdf"}}}
	svc := &Service{meili: primary, pgfts: fallback}

	resp := svc.Search(context.Background(), Query{DraftID: 1, Text: "lease"})
	assert.Equal(t, []Result{{FileName: "lease.pdf"}}, resp.Results)
	assert.Equal(t, 0, fallback.calls)
}

func TestServiceSearchFallsBackOnPrimaryError(t *testing.T) {
	primary := &fakeSearcher{healthy: true, err: errors.New("boom")}
	fallback := &fakeSearcher{healthy: true, results: []Result{{FileName: "ledger.xlsx"}}}
	svc := &Service{meili: primary, pgfts: fallback}

	resp := svc.Search(context.Background(), Query{DraftID: 1, Text: "ledger"})
	assert.Len(t, resp.Results, 1)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, "ledger", resp.Query)
}

func TestServiceSearchSkipsUnhealthyPrimary(t *testing.T) {
	primary := &fakeSearcher{healthy: false}
	fallback := &fakeSearcher{healthy: true}
	svc := &Service{meili: primary, pgfts: fallback}

	resp := svc.Search(context.Background(), Query{DraftID: 1, Text: "anything"})
	assert.Equal(t, 0, primary.calls)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestServiceSearchToleratesFailingFallback(t *testing.T) {
	svc := &Service{pgfts: &fakeSearcher{healthy: true, err: errors.New("db down")}}

	resp := svc.Search(context.Background(), Query{DraftID: 1, Text: "anything"})
	assert.Equal(t, []Result{}, resp.Results)
	assert.Zero(t, resp.Total)
}

func TestNewServiceWithoutBackends(t *testing.T) {
	svc := NewService(nil, nil)
	resp := svc.Search(context.Background(), Query{DraftID: 1, Text: "anything"})
	assert.Empty(t, resp.Results)
	svc.IndexChunk(ChunkRecord{ID: "chk_1"})
}

func TestOrQuery(t *testing.T) {
	assert.Equal(t, "capital | gains | property", orQuery("Capital gains on a property: capital!"))
	assert.Equal(t, "", orQuery("a & | !"))
	assert.Equal(t, "section | 1031", orQuery("section 1031 & | ' ("))
}
