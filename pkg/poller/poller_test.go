package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/docchat-cli/pkg/documents"
	"github.com/otherjamesbrown/docchat-cli/pkg/logging"
)

// fakeFetcher serves scripted statuses and records which ids were queried.
type fakeFetcher struct {
	mu      sync.Mutex
	docs    map[string]documents.Document
	errs    map[string]error
	queried map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		docs:    make(map[string]documents.Document),
		errs:    make(map[string]error),
		queried: make(map[string]int),
	}
}

func (f *fakeFetcher) set(doc documents.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
}

func (f *fakeFetcher) GetStatus(_ context.Context, id string) (documents.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried[id]++
	if err := f.errs[id]; err != nil {
		return documents.Document{}, err
	}
	return f.docs[id], nil
}

func (f *fakeFetcher) queries(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queried[id]
}

func TestPollOnce_StatusConvergence(t *testing.T) {
	coll := documents.NewCollection()
	coll.Add(documents.Document{ID: "a", Processed: false})
	require.True(t, coll.Select("a"))

	fetch := newFakeFetcher()
	fetch.set(documents.Document{ID: "a", Processed: true, ChunkCount: 7})

	p := New(coll, fetch, time.Millisecond, logging.NewNopLogger())
	remaining := p.PollOnce(context.Background())

	assert.Zero(t, remaining)

	// The selected document reference observes the update.
	sel, ok := coll.Selected()
	require.True(t, ok)
	assert.True(t, sel.Processed)
	assert.Equal(t, 7, sel.ChunkCount)
}

func TestPollOnce_ProcessedDocumentsAreNotQueried(t *testing.T) {
	coll := documents.NewCollection()
	coll.Add(documents.Document{ID: "done", Processed: true})
	coll.Add(documents.Document{ID: "pending", Processed: false})

	fetch := newFakeFetcher()
	fetch.set(documents.Document{ID: "pending", Processed: false})

	p := New(coll, fetch, time.Millisecond, logging.NewNopLogger())
	p.PollOnce(context.Background())
	p.PollOnce(context.Background())

	assert.Zero(t, fetch.queries("done"), "processed documents must not be polled")
	assert.Equal(t, 2, fetch.queries("pending"))
}

func TestPollOnce_FailureIsSkippedNotFatal(t *testing.T) {
	coll := documents.NewCollection()
	coll.Add(documents.Document{ID: "a", Processed: false})

	fetch := newFakeFetcher()
	fetch.errs["a"] = errors.New("backend down")

	p := New(coll, fetch, time.Millisecond, logging.NewNopLogger())
	assert.Equal(t, 1, p.PollOnce(context.Background()), "failed document stays pending")

	// Recovery on a later cycle still converges.
	fetch.mu.Lock()
	delete(fetch.errs, "a")
	fetch.mu.Unlock()
	fetch.set(documents.Document{ID: "a", Processed: true})

	assert.Zero(t, p.PollOnce(context.Background()))
}

func TestStart_NoOpWhenNothingUnprocessed(t *testing.T) {
	coll := documents.NewCollection()
	coll.Add(documents.Document{ID: "a", Processed: true})

	p := New(coll, newFakeFetcher(), time.Millisecond, logging.NewNopLogger())
	assert.False(t, p.Start(context.Background()), "no idle timers when nothing is pending")
}

func TestStart_LoopStopsWhenSetDrains(t *testing.T) {
	coll := documents.NewCollection()
	coll.Add(documents.Document{ID: "a", Processed: false})

	fetch := newFakeFetcher()
	fetch.set(documents.Document{ID: "a", Processed: true})

	p := New(coll, fetch, time.Millisecond, logging.NewNopLogger())
	require.True(t, p.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Wait(ctx)

	assert.NoError(t, ctx.Err(), "loop should exit on its own once the set drains")

	doc, _ := coll.Get("a")
	assert.True(t, doc.Processed)
}

func TestStart_SecondStartWhileRunningIsRejected(t *testing.T) {
	coll := documents.NewCollection()
	coll.Add(documents.Document{ID: "a", Processed: false})

	fetch := newFakeFetcher()
	fetch.set(documents.Document{ID: "a", Processed: false})

	p := New(coll, fetch, 50*time.Millisecond, logging.NewNopLogger())
	require.True(t, p.Start(context.Background()))
	defer p.Stop()

	assert.False(t, p.Start(context.Background()))
}
