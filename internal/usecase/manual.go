package usecase

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/naka-gawa/prdash/internal/domain"
	"github.com/naka-gawa/prdash/internal/gateway"
)

var (
	// ErrNothingToSubmit is returned when every close-actor entry is blank.
	ErrNothingToSubmit = errors.New("no close actors entered")
	// ErrNoLookup is returned when GitHub lookups are requested without a GitHub token.
	ErrNoLookup = errors.New("GitHub lookups need a GitHub token")
)

// ManualUpdater backs the manual close-actor dialog. Records live from
// Open until Close.
type ManualUpdater struct {
	api         gateway.DashboardAPI
	lookup      gateway.ActorLookup
	logger      *log.Logger
	reloadDelay time.Duration

	mu       sync.Mutex
	ctx      context.Context
	records  []domain.MissingPrRecord
	reload   *time.Timer
	onReload func([]domain.MissingPrRecord, error)
}

// NewManualUpdater creates a new ManualUpdater. lookup may be nil.
func NewManualUpdater(api gateway.DashboardAPI, lookup gateway.ActorLookup, reloadDelay time.Duration, logger *log.Logger) *ManualUpdater {
	return &ManualUpdater{
		api:         api,
		lookup:      lookup,
		logger:      logger,
		reloadDelay: reloadDelay,
	}
}

// OnReload registers fn to receive the missing list after a delayed reload.
func (m *ManualUpdater) OnReload(fn func([]domain.MissingPrRecord, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReload = fn
}

// Open fetches the PRs that still lack a close actor.
func (m *ManualUpdater) Open(ctx context.Context) ([]domain.MissingPrRecord, error) {
	records, err := m.api.FetchMissingPRs(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.ctx = ctx
	m.records = records
	m.mu.Unlock()
	return records, nil
}

// Records returns the records fetched by the last Open.
func (m *ManualUpdater) Records() []domain.MissingPrRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.MissingPrRecord(nil), m.records...)
}

// Close discards the records and any pending reload.
func (m *ManualUpdater) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reload != nil {
		m.reload.Stop()
		m.reload = nil
	}
	m.records = nil
}

// Submit validates actors (index-aligned with records, the list the entries
// were made against) and sends them as one batch. A single invalid entry
// blocks the whole batch. On success the missing list is reloaded after the
// configured delay.
func (m *ManualUpdater) Submit(ctx context.Context, records []domain.MissingPrRecord, actors []string) (*domain.UpdateResults, error) {
	updates, err := domain.BuildUpdates(records, actors)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, ErrNothingToSubmit
	}

	m.logger.Printf("Submitting %d manual close-actor updates...\n", len(updates))
	results, err := m.api.SubmitManualUpdates(ctx, updates)
	if err != nil {
		return nil, err
	}
	m.logger.Printf("Manual update done: %d updated, %d failed.\n", results.Updated, results.Failed)
	m.scheduleReload()
	return results, nil
}

func (m *ManualUpdater) scheduleReload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reload != nil {
		m.reload.Stop()
	}
	ctx := m.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	m.reload = time.AfterFunc(m.reloadDelay, func() {
		records, err := m.Open(ctx)
		m.mu.Lock()
		fn := m.onReload
		m.mu.Unlock()
		if err != nil {
			m.logger.Printf("Reloading missing PRs failed: %v\n", err)
		}
		if fn != nil {
			fn(records, err)
		}
	})
}

// Suggest looks up who closed rec on GitHub.
func (m *ManualUpdater) Suggest(ctx context.Context, rec domain.MissingPrRecord) (string, error) {
	if m.lookup == nil {
		return "", ErrNoLookup
	}
	return m.lookup.SuggestCloseActor(ctx, rec.Repository, rec.PRNumber)
}

// Verify returns the entered logins that do not exist on GitHub. Blank
// entries and the unknown sentinel are not checked.
func (m *ManualUpdater) Verify(ctx context.Context, actors []string) ([]string, error) {
	if m.lookup == nil {
		return nil, ErrNoLookup
	}
	var unknown []string
	seen := make(map[string]bool)
	for _, raw := range actors {
		login := strings.TrimSpace(raw)
		if login == "" || login == domain.UnknownCloseActor || seen[login] {
			continue
		}
		seen[login] = true
		ok, err := m.lookup.UserExists(ctx, login)
		if err != nil {
			return nil, err
		}
		if !ok {
			unknown = append(unknown, login)
		}
	}
	return unknown, nil
}
