// Package trainer coordinates the taste profile, swipe history and deck,
// persists snapshots and schedules remote taste analysis.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/tastetrainer/internal/analysis"
	"github.com/thebtf/tastetrainer/internal/candidates"
	"github.com/thebtf/tastetrainer/internal/deck"
	"github.com/thebtf/tastetrainer/internal/history"
	"github.com/thebtf/tastetrainer/internal/metrics"
	"github.com/thebtf/tastetrainer/internal/privacy"
	"github.com/thebtf/tastetrainer/internal/scoring"
	"github.com/thebtf/tastetrainer/internal/snapshot"
	"github.com/thebtf/tastetrainer/pkg/models"
)

const persistTimeout = 10 * time.Second

var (
	// ErrNotEnoughSwipes is returned by RefreshAnalysis below the minimum swipe count.
	ErrNotEnoughSwipes = errors.New("not enough swipes for analysis")
	// ErrAnalysisInFlight is returned while an analysis call is outstanding.
	ErrAnalysisInFlight = errors.New("analysis already in progress")
	// ErrDeckEmpty is returned by SubmitSwipe when there is no card to decide on.
	ErrDeckEmpty = errors.New("deck is empty")
)

// Status is the trainer's coarse state.
type Status string

const (
	StatusBootstrapping Status = "bootstrapping"
	StatusReady         Status = "ready"
	StatusAnalyzing     Status = "analyzing"
)

// Option configures a Trainer.
type Option func(*Trainer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Trainer) { t.now = now }
}

// Trainer owns the profile, history and deck.
//
// Mutating operations are serialized by opMu. Reads take mu only, so they
// never wait on a candidate fetch; fetches run with opMu held and mu released.
// Analysis runs in its own goroutine and is applied only if the epoch has not
// changed since it started.
type Trainer struct {
	cfg        Config
	scoringCfg scoring.Config
	source     deck.Source
	analyzer   analysis.Analyzer
	autoRun    bool
	repo       *snapshot.Repository
	logger     zerolog.Logger
	now        func() time.Time

	opMu   sync.Mutex
	saveMu sync.Mutex

	mu           sync.RWMutex
	bootstrapped bool
	profile      *scoring.Profile
	history      *history.History
	deck         *deck.Manager
	latest       *models.TasteAnalysisResult
	analysisErr  string
	analyzing    bool
	epoch        uint64

	subsMu  sync.Mutex
	subs    map[int]func(Event)
	nextSub int

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a trainer. A nil analyzer disables analysis.
func New(cfg Config, scoringCfg scoring.Config, source deck.Source, analyzer analysis.Analyzer, repo *snapshot.Repository, opts ...Option) *Trainer {
	if analyzer == nil {
		analyzer = analysis.Disabled{}
	}
	_, disabled := analyzer.(analysis.Disabled)
	ctx, cancel := context.WithCancel(context.Background())
	t := &Trainer{
		cfg:        cfg,
		scoringCfg: scoringCfg,
		source:     source,
		analyzer:   analyzer,
		autoRun:    !disabled,
		repo:       repo,
		logger:     log.With().Str("component", "trainer").Logger(),
		now:        time.Now,
		profile:    scoring.NewProfile(),
		history:    history.New(cfg.MaxHistory),
		deck:       deck.NewManager(cfg.DeckConfig()),
		subs:       make(map[int]func(Event)),
		baseCtx:    ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Bootstrap restores the persisted snapshot, or starts empty, and tops the
// deck up to the initial size. A fetch error leaves the trainer usable with
// the error shown in the deck status; it is returned for logging.
func (t *Trainer) Bootstrap(ctx context.Context) error {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	if t.isBootstrapped() {
		return nil
	}

	snap := t.repo.Load(ctx)

	t.mu.Lock()
	if snap != nil {
		t.profile = snap.Profile
		t.history = history.FromEvents(snap.History, t.cfg.MaxHistory)
		t.deck.Restore(snap.Deck)
		t.latest = snap.LatestAnalysis
	}
	t.mu.Unlock()

	// Avoidance always includes history, so a restored empty deck is
	// regenerated without repeating dishes already decided on.
	_, err := t.refill(ctx, t.cfg.InitialDeckSize)

	t.mu.Lock()
	t.bootstrapped = true
	restored := snap != nil
	deckSize, swipes := t.deck.Len(), t.profile.TotalSwipes
	t.mu.Unlock()

	t.persist(ctx)

	t.logger.Info().
		Bool("restored", restored).
		Int("deck", deckSize).
		Int("total_swipes", swipes).
		Msg("Trainer bootstrapped")
	t.emit(EventBootstrapped, "", "")
	return err
}

func (t *Trainer) isBootstrapped() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bootstrapped
}

// SwipeOutcome describes what a swipe did.
type SwipeOutcome struct {
	Event             models.SwipeEvent `json:"event"`
	Refilled          int               `json:"refilled"`
	AnalysisTriggered bool              `json:"analysis_triggered"`
}

// SubmitSwipe applies action to the current card. With an empty deck it
// attempts a refill instead and returns ErrDeckEmpty.
func (t *Trainer) SubmitSwipe(ctx context.Context, action models.SwipeAction) (SwipeOutcome, error) {
	if !action.IsValid() {
		return SwipeOutcome{}, fmt.Errorf("invalid swipe action %q", action)
	}

	t.opMu.Lock()
	defer t.opMu.Unlock()

	t.mu.Lock()
	dish, ok := t.deck.PopFront()
	if !ok {
		t.mu.Unlock()
		added, err := t.refill(ctx, t.cfg.InitialDeckSize)
		if err != nil {
			t.logger.Warn().Err(err).Msg("Refill of empty deck failed")
		}
		if added > 0 {
			t.persist(ctx)
		}
		return SwipeOutcome{}, ErrDeckEmpty
	}
	event := models.NewSwipeEvent(dish, action, t.now().UTC())
	t.profile.Apply(event)
	t.history.Record(event)
	needsRefill := t.deck.NeedsRefill()
	total := t.profile.TotalSwipes
	t.mu.Unlock()

	metrics.SwipesTotal.WithLabelValues(string(action)).Inc()
	t.emit(EventSwiped, dish.Name, string(action))

	out := SwipeOutcome{Event: event}
	if needsRefill {
		added, err := t.refill(ctx, t.cfg.RefillDeckSize)
		if err != nil {
			t.logger.Warn().Err(err).Msg("Deck refill failed")
		}
		out.Refilled = added
	}

	t.persist(ctx)

	// A disabled analyzer is only reached through RefreshAnalysis.
	if t.autoRun && t.cfg.ShouldAutoAnalyze(total) {
		if err := t.startAnalysis(); err == nil {
			out.AnalysisTriggered = true
		}
	}
	return out, nil
}

// UndoLastSwipe reverts the most recent swipe and puts its dish back at the
// front of the deck. Returns history.ErrEmpty when there is nothing to undo.
func (t *Trainer) UndoLastSwipe(ctx context.Context) (models.SwipeEvent, error) {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	t.mu.Lock()
	event, err := t.history.UndoLast()
	if err != nil {
		t.mu.Unlock()
		return models.SwipeEvent{}, err
	}
	t.profile.Revert(event)
	t.deck.PushFront(event.Dish)
	t.mu.Unlock()

	metrics.UndoTotal.Inc()
	t.persist(ctx)
	t.emit(EventUndone, event.Dish.Name, string(event.Action))
	return event, nil
}

// ResetAll discards the profile, history and analysis, fetches a fresh deck
// and replaces the stored snapshot. Any in-flight analysis is discarded.
func (t *Trainer) ResetAll(ctx context.Context) error {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	t.mu.Lock()
	t.epoch++
	t.profile = scoring.NewProfile()
	t.history.Clear()
	t.latest = nil
	t.analysisErr = ""
	t.analyzing = false
	t.deck.Replace(nil)
	t.mu.Unlock()

	_, fetchErr := t.refill(ctx, t.cfg.InitialDeckSize)

	if err := t.repo.Clear(ctx); err != nil {
		t.logger.Warn().Err(err).Msg("Failed to clear stored snapshot")
	}
	t.persist(ctx)

	metrics.ResetTotal.Inc()
	t.logger.Info().Msg("Trainer reset")
	t.emit(EventReset, "", "")
	return fetchErr
}

// RefreshAnalysis starts an analysis immediately, ignoring the interval.
func (t *Trainer) RefreshAnalysis(context.Context) error {
	t.mu.RLock()
	enough := t.profile.TotalSwipes >= t.cfg.MinSwipesForAnalysis
	t.mu.RUnlock()
	if !enough {
		return ErrNotEnoughSwipes
	}
	return t.startAnalysis()
}

// Wait blocks until in-flight analysis calls have finished.
func (t *Trainer) Wait() {
	t.wg.Wait()
}

// Close cancels in-flight analysis calls and waits for them.
func (t *Trainer) Close() {
	t.cancel()
	t.wg.Wait()
}

// refill tops the deck up to target through the deck manager. mu is
// released for the duration of the fetch; the caller must hold opMu.
func (t *Trainer) refill(ctx context.Context, target int) (int, error) {
	t.mu.Lock()
	res, err := t.deck.RefillIfNeeded(ctx, func(ctx context.Context, count int, avoid map[string]struct{}) ([]models.DishCandidate, error) {
		hints := t.hintsLocked()
		t.mu.Unlock()
		defer t.mu.Lock()

		fetchCtx, cancel := context.WithTimeout(ctx, t.cfg.FetchTimeout)
		defer cancel()
		return t.fetch(fetchCtx, count, avoid, hints)
	}, target, t.history.Names())
	size := t.deck.Len()
	t.mu.Unlock()

	if res.Requested == 0 {
		return 0, nil
	}

	metrics.RecordRefill(res.Added, err)
	metrics.DeckSize.Set(float64(size))

	switch {
	case err != nil:
		return 0, fmt.Errorf("refill deck: %w", err)
	case res.Exhausted:
		t.emit(EventDeckExhausted, "", deck.StatusExhausted)
	default:
		t.logger.Debug().Int("requested", res.Requested).Int("added", res.Added).Int("deck", size).Msg("Deck refilled")
		t.emit(EventDeckRefilled, "", "")
	}
	return res.Added, nil
}

func (t *Trainer) fetch(ctx context.Context, count int, avoid map[string]struct{}, hints candidates.Hints) ([]models.DishCandidate, error) {
	if hs, ok := t.source.(candidates.HintedSource); ok {
		return hs.FetchWithHints(ctx, count, avoid, hints)
	}
	return t.source.Fetch(ctx, count, avoid)
}

func (t *Trainer) hintsLocked() candidates.Hints {
	return candidates.Hints{
		FeatureScores: t.profile.FeatureScores(),
		TopPositive:   models.FeatureScores(t.profile.Insights(t.scoringCfg, true, t.cfg.InsightLimit)),
		TopNegative:   models.FeatureScores(t.profile.Insights(t.scoringCfg, false, t.cfg.InsightLimit)),
		RecentLikes:   t.history.RecentLikes(t.cfg.RecentLikes),
	}
}

// persist writes the current state. Failures are logged and counted only.
// saveMu keeps writes in the order their snapshots were taken.
func (t *Trainer) persist(ctx context.Context) {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	t.mu.RLock()
	snap := &snapshot.Snapshot{
		Profile: t.profile.Clone(),
		Deck:    t.deck.Cards(),
		History: t.history.Events(),
		SavedAt: t.now().UTC(),
	}
	if t.latest != nil {
		latest := *t.latest
		snap.LatestAnalysis = &latest
	}
	t.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	err := t.repo.Save(ctx, snap)
	metrics.RecordSave(err)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Failed to persist snapshot")
	}
}

// startAnalysis launches a single-flight analysis call.
func (t *Trainer) startAnalysis() error {
	t.mu.Lock()
	if t.analyzing {
		t.mu.Unlock()
		return ErrAnalysisInFlight
	}
	t.analyzing = true
	t.analysisErr = ""
	epoch := t.epoch
	req := analysis.Request{
		TotalSwipes:  t.profile.TotalSwipes,
		TopPositive:  models.FeatureScores(t.profile.Insights(t.scoringCfg, true, t.cfg.InsightLimit)),
		TopNegative:  models.FeatureScores(t.profile.Insights(t.scoringCfg, false, t.cfg.InsightLimit)),
		RecentEvents: analysis.RecentEventsFrom(t.history.Recent(t.cfg.RecentEvents), t.cfg.RecentEvents),
	}
	t.mu.Unlock()

	t.logger.Info().Int("total_swipes", req.TotalSwipes).Uint64("epoch", epoch).Msg("Analysis started")
	t.emit(EventAnalysisStarted, "", "")

	t.wg.Add(1)
	go t.runAnalysis(epoch, req)
	return nil
}

func (t *Trainer) runAnalysis(epoch uint64, req analysis.Request) {
	defer t.wg.Done()

	ctx, cancel := context.WithTimeout(t.baseCtx, t.cfg.AnalysisTimeout)
	defer cancel()

	start := time.Now()
	res, err := t.analyzer.Analyze(ctx, req)
	elapsed := time.Since(start)

	t.mu.Lock()
	if epoch != t.epoch {
		t.mu.Unlock()
		metrics.RecordAnalysis(elapsed, "stale")
		t.logger.Info().Uint64("epoch", epoch).Msg("Discarding analysis from before reset")
		return
	}
	t.analyzing = false
	var errMsg string
	if err != nil {
		errMsg = privacy.RedactSecrets(err.Error())
		t.analysisErr = "Analysis failed: " + errMsg
	} else {
		if res.CreatedAt.IsZero() {
			res.CreatedAt = t.now().UTC()
		}
		t.latest = &res
		t.analysisErr = ""
	}
	t.mu.Unlock()

	if err != nil {
		metrics.RecordAnalysis(elapsed, "failure")
		t.logger.Warn().Str("error", errMsg).Dur("elapsed", elapsed).Msg("Analysis failed")
		t.emit(EventAnalysisFailed, "", errMsg)
		return
	}

	metrics.RecordAnalysis(elapsed, "success")
	t.logger.Info().Str("source", res.Source).Dur("elapsed", elapsed).Msg("Analysis completed")
	t.persist(t.baseCtx)
	t.emit(EventAnalysisCompleted, "", res.Summary)
}
