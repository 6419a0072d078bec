package resolver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/puzzle-proxy/internal/extract"
	memorypublisher "github.com/JakeFAU/puzzle-proxy/internal/publisher/memory"
	"github.com/JakeFAU/puzzle-proxy/internal/puzzle"
	memorystorage "github.com/JakeFAU/puzzle-proxy/internal/storage/memory"
)

func TestResolve_FirstCandidateJSONVerbatim(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.responses["https://a.test/2024-03-05.json"] = FetchResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"id": 1, "cells": [ "A" ]}`),
	}
	res := newTestResolver(t, fetcher, []Candidate{
		{Name: "a", URLTemplate: "https://a.test/{date}.json", Kind: KindJSON},
		{Name: "b", URLTemplate: "https://b.test/{date}", Kind: KindHTML},
	})

	result, err := res.Resolve(context.Background(), mustKey(t, "2024-03-05"))
	require.NoError(t, err)
	require.Equal(t, `{"id": 1, "cells": [ "A" ]}`, string(result.Document))
	require.Equal(t, "a", result.Candidate)
	require.Equal(t, "json", result.Rule)
	require.Equal(t, []string{"https://a.test/2024-03-05.json"}, fetcher.visited())
}

func TestResolve_FallbackStopsAtFirstSuccess(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.responses["https://a.test/mini/2024/3/5"] = FetchResponse{StatusCode: http.StatusForbidden}
	fetcher.errors["https://b.test/2024-03-05"] = errors.New("connection reset")
	fetcher.responses["https://c.test/2024/03/05"] = FetchResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`<script>window.gameData = {"from":"c"};</script>`),
	}
	fetcher.responses["https://d.test/2024-03-05"] = FetchResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"from":"d"}`),
	}
	res := newTestResolver(t, fetcher, []Candidate{
		{Name: "a", URLTemplate: "https://a.test/mini/{yyyy}/{m}/{d}", Kind: KindHTML},
		{Name: "b", URLTemplate: "https://b.test/{date}", Kind: KindJSON},
		{Name: "c", URLTemplate: "https://c.test/{yyyy}/{mm}/{dd}", Kind: KindHTML},
		{Name: "d", URLTemplate: "https://d.test/{date}", Kind: KindJSON},
	})

	result, err := res.Resolve(context.Background(), mustKey(t, "2024-03-05"))
	require.NoError(t, err)
	require.Equal(t, `{"from":"c"}`, string(result.Document))
	require.Equal(t, "c", result.Candidate)
	require.Equal(t, "window-game-data", result.Rule)
	require.Equal(t, []string{
		"https://a.test/mini/2024/3/5",
		"https://b.test/2024-03-05",
		"https://c.test/2024/03/05",
	}, fetcher.visited())
	require.NotContains(t, fetcher.visited(), "https://d.test/2024-03-05")
}

func TestResolve_AllCandidatesFail(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.responses["https://a.test/2024-01-01"] = FetchResponse{StatusCode: http.StatusNotFound}
	fetcher.responses["https://b.test/2024-01-01"] = FetchResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`<html>no data</html>`),
	}
	res := newTestResolver(t, fetcher, []Candidate{
		{Name: "a", URLTemplate: "https://a.test/{date}", Kind: KindJSON},
		{Name: "b", URLTemplate: "https://b.test/{date}", Kind: KindHTML},
	})

	_, err := res.Resolve(context.Background(), mustKey(t, "2024-01-01"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotFound))
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "2024-01-01", nf.Date)
	require.Equal(t, []string{"https://a.test/2024-01-01", "https://b.test/2024-01-01"}, nf.Tried)
}

func TestResolve_InvalidJSONAdvances(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.responses["https://a.test/2024-01-01"] = FetchResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`<html>not json</html>`),
	}
	fetcher.responses["https://b.test/2024-01-01"] = FetchResponse{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {"application/json; charset=utf-8"}},
		Body:       []byte(`{"ok":true}`),
	}
	res := newTestResolver(t, fetcher, []Candidate{
		{Name: "a", URLTemplate: "https://a.test/{date}", Kind: KindJSON},
		{Name: "b", URLTemplate: "https://b.test/{date}", Kind: KindHTML},
	})

	result, err := res.Resolve(context.Background(), mustKey(t, "2024-01-01"))
	require.NoError(t, err)
	require.Equal(t, "b", result.Candidate)
	require.Equal(t, "json", result.Rule)
	require.Equal(t, `{"ok":true}`, string(result.Document))
}

func TestResolve_NextDataWithoutGameDataAdvances(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.responses["https://a.test/game/2024-01-01"] = FetchResponse{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {"text/html"}},
		Body: []byte(`<html><body><script id="__NEXT_DATA__" type="application/json">` +
			`{"props":{"pageProps":{"user":null}},"page":"/crosswords"}</script></body></html>`),
	}
	fetcher.responses["https://a.test/svc/2024-01-01.json"] = FetchResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"puzzle":"real"}`),
	}
	res := newTestResolver(t, fetcher, []Candidate{
		{Name: "game", URLTemplate: "https://a.test/game/{date}", Kind: KindHTML},
		{Name: "svc", URLTemplate: "https://a.test/svc/{date}.json", Kind: KindJSON},
	})

	result, err := res.Resolve(context.Background(), mustKey(t, "2024-01-01"))
	require.NoError(t, err)
	require.Equal(t, "svc", result.Candidate)
	require.Equal(t, `{"puzzle":"real"}`, string(result.Document))
	require.Equal(t, []string{"https://a.test/game/2024-01-01", "https://a.test/svc/2024-01-01.json"}, result.Tried)
	require.Equal(t, []string{"https://a.test/game/2024-01-01", "https://a.test/svc/2024-01-01.json"}, fetcher.visited())
}

func TestResolve_CanceledContextIsNotNotFound(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	res := newTestResolver(t, fetcher, []Candidate{
		{Name: "a", URLTemplate: "https://a.test/{date}", Kind: KindJSON},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := res.Resolve(ctx, mustKey(t, "2024-01-01"))
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, errors.Is(err, ErrNotFound))
	require.Empty(t, fetcher.visited())
}

func TestResolve_PerCandidateTimeout(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.block["https://slow.test/2024-01-01"] = true
	fetcher.responses["https://fast.test/2024-01-01"] = FetchResponse{StatusCode: http.StatusOK, Body: []byte(`{"fast":1}`)}
	res, err := New(
		[]Candidate{
			{Name: "slow", URLTemplate: "https://slow.test/{date}", Kind: KindJSON},
			{Name: "fast", URLTemplate: "https://fast.test/{date}", Kind: KindJSON},
		},
		fetcher,
		extract.New(),
		Config{Timeout: 20 * time.Millisecond},
		zap.NewNop(),
	)
	require.NoError(t, err)

	result, err := res.Resolve(context.Background(), mustKey(t, "2024-01-01"))
	require.NoError(t, err)
	require.Equal(t, "fast", result.Candidate)
}

func TestResolve_RenderedWithoutHeadlessAdvances(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.responses["https://b.test/2024-01-01"] = FetchResponse{StatusCode: http.StatusOK, Body: []byte(`{"b":1}`)}
	res := newTestResolver(t, fetcher, []Candidate{
		{Name: "a", URLTemplate: "https://a.test/{date}", Kind: KindRendered},
		{Name: "b", URLTemplate: "https://b.test/{date}", Kind: KindJSON},
	})

	result, err := res.Resolve(context.Background(), mustKey(t, "2024-01-01"))
	require.NoError(t, err)
	require.Equal(t, "b", result.Candidate)
	require.Equal(t, []string{"https://b.test/2024-01-01"}, fetcher.visited())
}

func TestResolve_HeadlessPromotion(t *testing.T) {
	t.Parallel()

	static := newFakeFetcher()
	static.responses["https://a.test/2024-01-01"] = FetchResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`<div id="root"></div>`),
	}
	headless := newFakeFetcher()
	headless.responses["https://a.test/2024-01-01"] = FetchResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`<script>window.gameData = {"rendered":true};</script>`),
	}
	res, err := New(
		[]Candidate{{Name: "a", URLTemplate: "https://a.test/{date}", Kind: KindHTML, Promote: true}},
		static,
		extract.New(),
		Config{},
		zap.NewNop(),
		WithHeadless(headless, stubDetector{promote: true}),
	)
	require.NoError(t, err)

	result, err := res.Resolve(context.Background(), mustKey(t, "2024-01-01"))
	require.NoError(t, err)
	require.True(t, result.UsedHeadless)
	require.Equal(t, `{"rendered":true}`, string(result.Document))
	require.Len(t, headless.visited(), 1)
}

func TestResolve_NoPromotionWhenDetectorDeclines(t *testing.T) {
	t.Parallel()

	static := newFakeFetcher()
	static.responses["https://a.test/2024-01-01"] = FetchResponse{StatusCode: http.StatusOK, Body: []byte(`<p>plain</p>`)}
	headless := newFakeFetcher()
	res, err := New(
		[]Candidate{{Name: "a", URLTemplate: "https://a.test/{date}", Kind: KindHTML, Promote: true}},
		static,
		extract.New(),
		Config{},
		zap.NewNop(),
		WithHeadless(headless, stubDetector{promote: false}),
	)
	require.NoError(t, err)

	_, err = res.Resolve(context.Background(), mustKey(t, "2024-01-01"))
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, headless.visited())
}

func TestResolve_DiagnosticsSinks(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.responses["https://a.test/2024-01-01"] = FetchResponse{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {"text/html"}},
		Body:       []byte(`<html>changed layout</html>`),
	}
	fetcher.responses["https://b.test/2024-01-01"] = FetchResponse{StatusCode: http.StatusOK, Body: []byte(`{"b":1}`)}

	blobs := memorystorage.NewBlobStore()
	pub := memorypublisher.New()
	rec := &fakeRecorder{}
	res, err := New(
		[]Candidate{
			{Name: "a", URLTemplate: "https://a.test/{date}", Kind: KindHTML},
			{Name: "b", URLTemplate: "https://b.test/{date}", Kind: KindJSON},
		},
		fetcher,
		extract.New(),
		Config{SnapshotPrefix: "/snapshots/", Topic: "puzzles"},
		zap.NewNop(),
		WithSnapshots(blobs),
		WithPublisher(pub),
		WithRecorder(rec),
		WithClock(fixedClock{now: time.Unix(1700000000, 0).UTC()}),
		WithIDGenerator(&seqIDs{}),
	)
	require.NoError(t, err)

	_, err = res.Resolve(context.Background(), mustKey(t, "2024-01-01"))
	require.NoError(t, err)

	attempts := rec.all()
	require.Len(t, attempts, 2)
	require.Equal(t, OutcomeExtractionError, attempts[0].Outcome)
	require.Equal(t, "id-1", attempts[0].ID)
	require.NotEmpty(t, attempts[0].BodyHash)
	require.Regexp(t, `^memory://snapshots/2024-01-01/a-[0-9a-f]{16}\.html$`, attempts[0].SnapshotURI)
	require.Equal(t, OutcomeSuccess, attempts[1].Outcome)
	require.Equal(t, "id-2", attempts[1].ID)

	uri := attempts[0].SnapshotURI
	body, ok := blobs.Object(uri[len("memory://"):])
	require.True(t, ok)
	require.Equal(t, `<html>changed layout</html>`, string(body))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "puzzles", msgs[0].Topic)
	payload, ok := msgs[0].Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "b", payload["candidate"])
	require.Equal(t, "2023-11-14T22:13:20Z", payload["timestamp"])
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, newFakeFetcher(), extract.New(), Config{}, nil)
	require.Error(t, err)
	_, err = New(DefaultCandidates(), nil, extract.New(), Config{}, nil)
	require.Error(t, err)
	_, err = New(DefaultCandidates(), newFakeFetcher(), nil, Config{}, nil)
	require.Error(t, err)

	res, err := New(DefaultCandidates(), newFakeFetcher(), extract.New(), Config{}, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultTimeout, res.cfg.Timeout)
	require.Len(t, res.Candidates(), 2)
}

func TestDefaultCandidatesURLs(t *testing.T) {
	t.Parallel()

	key := mustKey(t, "2024-03-05")
	cands := DefaultCandidates()
	require.Equal(t, "https://www.nytimes.com/crosswords/game/mini/2024/3/5", cands[0].URL(key))
	require.Equal(t, "https://www.nytimes.com/svc/crosswords/v6/puzzle/mini/2024-03-05.json", cands[1].URL(key))
	require.Contains(t, cands[0].Headers.Get("User-Agent"), "Mozilla/5.0")
	require.Empty(t, cands[0].Headers.Get("Accept-Encoding"))
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]Kind{"": KindHTML, "HTML": KindHTML, "json": KindJSON, " rendered ": KindRendered} {
		got, err := ParseKind(raw)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseKind("xml")
	require.Error(t, err)
}

func newTestResolver(t *testing.T, fetcher Fetcher, candidates []Candidate) *Resolver {
	t.Helper()
	res, err := New(candidates, fetcher, extract.New(), Config{Timeout: time.Second}, zap.NewNop())
	require.NoError(t, err)
	return res
}

func mustKey(t *testing.T, raw string) puzzle.DateKey {
	t.Helper()
	key, err := puzzle.ParseDateKey(raw)
	require.NoError(t, err)
	return key
}

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]FetchResponse
	errors    map[string]error
	block     map[string]bool
	calls     []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: map[string]FetchResponse{},
		errors:    map[string]error{},
		block:     map[string]bool{},
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.URL)
	resp, ok := f.responses[req.URL]
	err := f.errors[req.URL]
	block := f.block[req.URL]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return FetchResponse{}, ctx.Err()
	}
	if err != nil {
		return FetchResponse{}, err
	}
	if !ok {
		return FetchResponse{URL: req.URL, StatusCode: http.StatusNotFound}, nil
	}
	resp.URL = req.URL
	return resp, nil
}

func (f *fakeFetcher) visited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type stubDetector struct {
	promote bool
}

func (s stubDetector) ShouldPromote(FetchResponse) bool {
	return s.promote
}

type fakeRecorder struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (r *fakeRecorder) RecordAttempt(_ context.Context, attempt Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
	return nil
}

func (r *fakeRecorder) all() []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Attempt(nil), r.attempts...)
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "id-" + string(rune('0'+s.n)), nil
}
