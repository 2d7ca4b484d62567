package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/agonlabs/arena-system/brackets"
	"github.com/agonlabs/arena-system/events"
	"github.com/agonlabs/arena-system/models"
	"github.com/agonlabs/arena-system/repositories"
	"github.com/agonlabs/arena-system/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testHub() *brackets.Hub {
	return brackets.NewHub(testLogger())
}

func testBus() *events.Bus {
	return events.NewBus(testLogger())
}

// fakeMatchRepo stores matches in memory and can be told to fail creates.
type fakeMatchRepo struct {
	mu      sync.Mutex
	matches map[string]*models.Match
	failOn  error
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{matches: make(map[string]*models.Match)}
}

func (r *fakeMatchRepo) Create(_ context.Context, _ repositories.SQLExecutor, match *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != nil {
		return r.failOn
	}
	clone := *match
	r.matches[match.ID] = &clone
	return nil
}

func (r *fakeMatchRepo) GetByID(_ context.Context, id string) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	clone := *m
	return &clone, nil
}

func (r *fakeMatchRepo) ListByTournamentRound(_ context.Context, tournamentID string, round int) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Match
	for _, m := range r.matches {
		if m.TournamentID != nil && *m.TournamentID == tournamentID && m.Round != nil && *m.Round == round {
			clone := *m
			out = append(out, &clone)
		}
	}
	sortBySlot(out)
	return out, nil
}

func (r *fakeMatchRepo) ListByTournament(_ context.Context, tournamentID string) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Match
	for _, m := range r.matches {
		if m.TournamentID != nil && *m.TournamentID == tournamentID {
			clone := *m
			out = append(out, &clone)
		}
	}
	sortBySlot(out)
	return out, nil
}

func (r *fakeMatchRepo) UpdateSpectatorCount(_ context.Context, id string, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.SpectatorCount = count
	return nil
}

// setResult marks a stored match terminal, as the arena engine would.
func (r *fakeMatchRepo) setResult(id string, status models.MatchStatus, winner, cancelledBy *string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.matches[id]
	m.Status = status
	m.WinnerAgentID = winner
	m.CancelledByID = cancelledBy
}

func (r *fakeMatchRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matches)
}

func sortBySlot(matches []*models.Match) {
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0; j-- {
			a, b := matches[j-1], matches[j]
			if slotOf(a) <= slotOf(b) {
				break
			}
			matches[j-1], matches[j] = b, a
		}
	}
}

func slotOf(m *models.Match) int {
	if m.Slot == nil {
		return 0
	}
	return *m.Slot
}

type fakeTournamentRepo struct {
	mu          sync.Mutex
	tournaments map[string]*models.Tournament
}

func newFakeTournamentRepo() *fakeTournamentRepo {
	return &fakeTournamentRepo{tournaments: make(map[string]*models.Tournament)}
}

func (r *fakeTournamentRepo) Create(_ context.Context, _ repositories.SQLExecutor, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *t
	clone.Entries = nil
	clone.Matches = nil
	r.tournaments[t.ID] = &clone
	return nil
}

func (r *fakeTournamentRepo) GetByID(_ context.Context, id string) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *fakeTournamentRepo) List(_ context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Tournament
	for _, t := range r.tournaments {
		if filter.Arena != nil && t.Arena != *filter.Arena {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (r *fakeTournamentRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id string, from, to models.TournamentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.Status != from {
		return repositories.ErrStaleStatus
	}
	t.Status = to
	return nil
}

func (r *fakeTournamentRepo) UpdateCurrentRound(_ context.Context, _ repositories.SQLExecutor, id string, round int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.CurrentRound = round
	return nil
}

func (r *fakeTournamentRepo) UpdateWinner(_ context.Context, _ repositories.SQLExecutor, id string, winnerAgentID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.WinnerAgentID = winnerAgentID
	return nil
}

func (r *fakeTournamentRepo) UpdateLogoKey(_ context.Context, id string, logoKey *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.LogoKey = logoKey
	return nil
}

type fakeEntryRepo struct {
	mu      sync.Mutex
	entries []models.TournamentEntry
}

func newFakeEntryRepo() *fakeEntryRepo {
	return &fakeEntryRepo{}
}

func (r *fakeEntryRepo) Create(_ context.Context, _ repositories.SQLExecutor, entry *models.TournamentEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeEntryRepo) ListByTournament(_ context.Context, tournamentID string) ([]models.TournamentEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TournamentEntry
	for _, e := range r.entries {
		if e.TournamentID == tournamentID {
			out = append(out, e)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Seed > out[j].Seed; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out, nil
}

func (r *fakeEntryRepo) GetByTournamentAndAgent(_ context.Context, tournamentID, agentID string) (*models.TournamentEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.TournamentID == tournamentID && e.AgentID == agentID {
			clone := e
			return &clone, nil
		}
	}
	return nil, repositories.ErrEntryNotFound
}

func (r *fakeEntryRepo) CountByTournament(_ context.Context, tournamentID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.TournamentID == tournamentID {
			n++
		}
	}
	return n, nil
}

func (r *fakeEntryRepo) SetEliminatedRound(_ context.Context, _ repositories.SQLExecutor, tournamentID, agentID string, round int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		e := &r.entries[i]
		if e.TournamentID == tournamentID && e.AgentID == agentID && e.EliminatedRound == nil {
			rd := round
			e.EliminatedRound = &rd
			return nil
		}
	}
	return nil
}

type fakeUploader struct {
	uploads map[string]string
	failure error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{uploads: make(map[string]string)}
}

func (u *fakeUploader) Upload(_ context.Context, key, contentType string, _ io.Reader) (*storage.UploadResult, error) {
	if u.failure != nil {
		return nil, u.failure
	}
	u.uploads[key] = contentType
	return &storage.UploadResult{
		Key:      key,
		Location: u.GetPublicURL(key),
		ETag:     "etag-" + key,
	}, nil
}

func (u *fakeUploader) Delete(_ context.Context, key string) error {
	delete(u.uploads, key)
	return nil
}

func (u *fakeUploader) GetPublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

var errStorageDown = errors.New("storage unavailable")
