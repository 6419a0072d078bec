package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/puzzle-proxy/internal/clock/system"
	"github.com/JakeFAU/puzzle-proxy/internal/hash/sha256"
	"github.com/JakeFAU/puzzle-proxy/internal/id/uuid"
	"github.com/JakeFAU/puzzle-proxy/internal/metrics"
	"github.com/JakeFAU/puzzle-proxy/internal/puzzle"
)

var tracer = otel.Tracer("github.com/JakeFAU/puzzle-proxy/internal/resolver")

// DefaultTimeout bounds each candidate fetch when Config.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// Config controls Resolver behavior.
type Config struct {
	Timeout        time.Duration
	SnapshotPrefix string
	Topic          string
}

// Resolver walks the candidate chain for a date.
type Resolver struct {
	candidates      []Candidate
	staticFetcher   Fetcher
	headlessFetcher Fetcher
	detector        HeadlessDetector
	extractor       Extractor
	snapshots       BlobStore
	publisher       Publisher
	recorder        AttemptRecorder
	hasher          Hasher
	clock           Clock
	idGen           IDGenerator
	cfg             Config
	logger          *zap.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithHeadless enables rendered candidates and promotion.
func WithHeadless(fetcher Fetcher, detector HeadlessDetector) Option {
	return func(r *Resolver) {
		r.headlessFetcher = fetcher
		r.detector = detector
	}
}

// WithSnapshots stores bodies that yielded no document.
func WithSnapshots(store BlobStore) Option {
	return func(r *Resolver) { r.snapshots = store }
}

// WithPublisher publishes an event for every successful resolution.
func WithPublisher(publisher Publisher) Option {
	return func(r *Resolver) { r.publisher = publisher }
}

// WithRecorder persists every attempt.
func WithRecorder(recorder AttemptRecorder) Option {
	return func(r *Resolver) { r.recorder = recorder }
}

// WithClock overrides the attempt clock.
func WithClock(clock Clock) Option {
	return func(r *Resolver) { r.clock = clock }
}

// WithIDGenerator overrides attempt ID generation.
func WithIDGenerator(idGen IDGenerator) Option {
	return func(r *Resolver) { r.idGen = idGen }
}

// WithHasher overrides body hashing.
func WithHasher(hasher Hasher) Option {
	return func(r *Resolver) { r.hasher = hasher }
}

// New constructs a Resolver.
func New(
	candidates []Candidate,
	static Fetcher,
	extractor Extractor,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) (*Resolver, error) {
	if len(candidates) == 0 {
		return nil, errors.New("at least one candidate is required")
	}
	if static == nil {
		return nil, errors.New("static fetcher is required")
	}
	if extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	r := &Resolver{
		candidates:    append([]Candidate(nil), candidates...),
		staticFetcher: static,
		extractor:     extractor,
		hasher:        sha256.New(),
		clock:         system.New(),
		idGen:         uuid.New(),
		cfg:           cfg,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Candidates returns a copy of the configured chain.
func (r *Resolver) Candidates() []Candidate {
	return append([]Candidate(nil), r.candidates...)
}

// Resolve tries candidates in order and returns the first document found.
// It returns a *NotFoundError when every candidate fails, and a wrapped
// context error when ctx ends first.
func (r *Resolver) Resolve(ctx context.Context, key puzzle.DateKey) (Result, error) {
	ctx, span := tracer.Start(ctx, "resolver.Resolve",
		trace.WithAttributes(attribute.String("puzzle.date", key.String())))
	defer span.End()

	tried := make([]string, 0, len(r.candidates))
	for _, candidate := range r.candidates {
		if err := ctx.Err(); err != nil {
			metrics.ObserveResolution("canceled")
			return Result{}, fmt.Errorf("resolve %s: %w", key, err)
		}
		url := candidate.URL(key)
		tried = append(tried, url)

		attemptCtx, attemptSpan := tracer.Start(ctx, "resolver.attempt", trace.WithAttributes(
			attribute.String("puzzle.candidate", candidate.Name),
			attribute.String("url.full", url),
		))
		doc, attempt := r.attempt(attemptCtx, key, candidate, url)
		attemptSpan.SetAttributes(
			attribute.String("puzzle.outcome", string(attempt.Outcome)),
			attribute.Int("http.response.status_code", attempt.StatusCode),
			attribute.Bool("puzzle.headless", attempt.UsedHeadless),
		)
		if attempt.Outcome != OutcomeSuccess {
			attemptSpan.SetStatus(codes.Error, attempt.ErrorText)
		}
		attemptSpan.End()
		r.recordAttempt(ctx, attempt)

		if attempt.Outcome == OutcomeSuccess {
			r.logger.Info("puzzle resolved",
				zap.String("date", key.String()),
				zap.String("candidate", candidate.Name),
				zap.String("url", url),
				zap.String("rule", attempt.Rule),
				zap.Bool("headless", attempt.UsedHeadless),
			)
			metrics.ObserveResolution("success")
			result := Result{
				Document:     doc,
				Candidate:    candidate.Name,
				URL:          url,
				Rule:         attempt.Rule,
				UsedHeadless: attempt.UsedHeadless,
				Tried:        tried,
			}
			r.publishResult(ctx, key, attempt)
			return result, nil
		}

		if err := ctx.Err(); err != nil {
			metrics.ObserveResolution("canceled")
			return Result{}, fmt.Errorf("resolve %s: %w", key, err)
		}
		r.logger.Warn("candidate failed",
			zap.String("date", key.String()),
			zap.String("candidate", candidate.Name),
			zap.String("url", url),
			zap.Int("status", attempt.StatusCode),
			zap.String("outcome", string(attempt.Outcome)),
			zap.String("error", attempt.ErrorText),
		)
	}
	metrics.ObserveResolution("not_found")
	span.SetStatus(codes.Error, "no candidate produced a document")
	return Result{}, &NotFoundError{Date: key.String(), Tried: tried}
}

func (r *Resolver) attempt(
	ctx context.Context,
	key puzzle.DateKey,
	candidate Candidate,
	url string,
) (puzzle.Document, Attempt) {
	attempt := Attempt{
		Date:        key.String(),
		Candidate:   candidate.Name,
		URL:         url,
		AttemptedAt: r.clock.Now(),
	}
	start := time.Now()

	resp, err := r.fetch(ctx, candidate, url)
	if err != nil {
		attempt.Outcome = OutcomeTransportError
		attempt.ErrorText = err.Error()
		attempt.Duration = time.Since(start)
		metrics.ObserveAttempt(candidate.Name, url, string(attempt.Outcome), 0, attempt.Duration)
		return nil, attempt
	}
	attempt.StatusCode = resp.StatusCode
	attempt.UsedHeadless = resp.UsedHeadless
	attempt.BodyHash = r.hashBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		attempt.Outcome = OutcomeUpstreamStatus
		attempt.ErrorText = fmt.Sprintf("upstream returned status %d", resp.StatusCode)
		attempt.Duration = time.Since(start)
		metrics.ObserveAttempt(candidate.Name, url, string(attempt.Outcome), len(resp.Body), attempt.Duration)
		return nil, attempt
	}

	doc, rule, err := r.document(candidate, resp)
	if err != nil && candidate.Promote && candidate.Kind == KindHTML {
		if promoted, ok := r.maybePromote(ctx, candidate, url, resp); ok {
			resp = promoted
			attempt.UsedHeadless = true
			attempt.StatusCode = promoted.StatusCode
			attempt.BodyHash = r.hashBody(promoted.Body)
			doc, rule, err = r.document(candidate, promoted)
		}
	}
	if err != nil {
		attempt.Outcome = OutcomeExtractionError
		attempt.ErrorText = err.Error()
		attempt.SnapshotURI = r.snapshot(ctx, key, candidate, attempt.BodyHash, resp)
		attempt.Duration = time.Since(start)
		metrics.ObserveAttempt(candidate.Name, url, string(attempt.Outcome), len(resp.Body), attempt.Duration)
		return nil, attempt
	}

	attempt.Outcome = OutcomeSuccess
	attempt.Rule = rule
	attempt.Duration = time.Since(start)
	metrics.ObserveAttempt(candidate.Name, url, string(attempt.Outcome), len(resp.Body), attempt.Duration)
	return doc, attempt
}

func (r *Resolver) fetch(ctx context.Context, candidate Candidate, url string) (FetchResponse, error) {
	fetcher := r.staticFetcher
	if candidate.Kind == KindRendered {
		if r.headlessFetcher == nil {
			return FetchResponse{}, errors.New("headless fetcher not configured")
		}
		fetcher = r.headlessFetcher
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	resp, err := fetcher.Fetch(fetchCtx, FetchRequest{
		URL:     url,
		Headers: candidate.Headers.Clone(),
	})
	if err != nil {
		return FetchResponse{}, fmt.Errorf("fetch %s: %w", candidate.Name, err)
	}
	return resp, nil
}

// document turns a response body into a Document according to the
// candidate kind. Markup candidates that answer with a JSON content type are
// parsed directly.
func (r *Resolver) document(candidate Candidate, resp FetchResponse) (puzzle.Document, string, error) {
	if candidate.Kind == KindJSON || isJSONContent(resp) {
		doc, err := puzzle.ParseDocument(resp.Body)
		if err != nil {
			return nil, "", fmt.Errorf("parse json body: %w", err)
		}
		return doc, "json", nil
	}
	doc, rule, err := r.extractor.Extract(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("extract document: %w", err)
	}
	return doc, rule, nil
}

func (r *Resolver) maybePromote(
	ctx context.Context,
	candidate Candidate,
	url string,
	resp FetchResponse,
) (FetchResponse, bool) {
	if r.headlessFetcher == nil || r.detector == nil || !r.detector.ShouldPromote(resp) {
		return resp, false
	}

	headlessCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	promoted, err := r.headlessFetcher.Fetch(headlessCtx, FetchRequest{
		URL:     url,
		Headers: candidate.Headers.Clone(),
	})
	if err != nil {
		r.logger.Warn("headless promotion failed",
			zap.String("candidate", candidate.Name),
			zap.String("url", url),
			zap.Error(err),
		)
		metrics.ObservePromotion(candidate.Name, false)
		return resp, false
	}
	metrics.ObservePromotion(candidate.Name, true)
	promoted.UsedHeadless = true
	return promoted, true
}

func (r *Resolver) hashBody(body []byte) string {
	if r.hasher == nil || len(body) == 0 {
		return ""
	}
	digest, err := r.hasher.Hash(body)
	if err != nil {
		r.logger.Warn("hash body failed", zap.Error(err))
		return ""
	}
	return digest
}

func (r *Resolver) snapshotPath(key puzzle.DateKey, candidate Candidate, digest string) string {
	name := fmt.Sprintf("%s/%s-%s.html", key.String(), candidate.Name, sha256.Short(digest))
	prefix := strings.Trim(r.cfg.SnapshotPrefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func (r *Resolver) snapshot(
	ctx context.Context,
	key puzzle.DateKey,
	candidate Candidate,
	digest string,
	resp FetchResponse,
) string {
	if r.snapshots == nil || len(resp.Body) == 0 {
		return ""
	}
	contentType := resp.Headers.Get("Content-Type")
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}
	uri, err := r.snapshots.PutObject(ctx, r.snapshotPath(key, candidate, digest), contentType, bytes.NewReader(resp.Body))
	if err != nil {
		r.logger.Warn("snapshot write failed",
			zap.String("candidate", candidate.Name),
			zap.String("date", key.String()),
			zap.Error(err),
		)
		return ""
	}
	r.logger.Info("extraction miss snapshotted",
		zap.String("candidate", candidate.Name),
		zap.String("date", key.String()),
		zap.String("uri", uri),
	)
	return uri
}

func (r *Resolver) recordAttempt(ctx context.Context, attempt Attempt) {
	if r.recorder == nil {
		return
	}
	if r.idGen != nil {
		id, err := r.idGen.NewID()
		if err != nil {
			r.logger.Warn("attempt id generation failed", zap.Error(err))
			return
		}
		attempt.ID = id
	}
	if err := r.recorder.RecordAttempt(ctx, attempt); err != nil {
		r.logger.Warn("record attempt failed",
			zap.String("candidate", attempt.Candidate),
			zap.String("date", attempt.Date),
			zap.Error(err),
		)
	}
}

func (r *Resolver) publishResult(ctx context.Context, key puzzle.DateKey, attempt Attempt) {
	if r.cfg.Topic == "" || r.publisher == nil {
		return
	}
	payload := map[string]any{
		"date":      key.String(),
		"candidate": attempt.Candidate,
		"url":       attempt.URL,
		"rule":      attempt.Rule,
		"hash":      attempt.BodyHash,
		"status":    attempt.StatusCode,
		"headless":  attempt.UsedHeadless,
		"timestamp": r.clock.Now().Format(time.RFC3339),
	}
	id, err := r.publisher.Publish(ctx, r.cfg.Topic, payload)
	if err != nil {
		r.logger.Warn("publish resolution failed", zap.String("date", key.String()), zap.Error(err))
		return
	}
	r.logger.Debug("resolution published", zap.String("date", key.String()), zap.String("message_id", id))
}

func isJSONContent(resp FetchResponse) bool {
	raw := resp.Headers.Get("Content-Type")
	if raw == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
