package github

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/samber/mo"

	"openfeedback/internal/platform/models"
	"openfeedback/internal/platform/repositories"
)

// memStore is an in-memory InstallationStore with the same conditional
// link semantics as the SQL repository.
type memStore struct {
	mu    sync.Mutex
	rows  map[int64]*models.GitHubInstallation
	err   error
	links int
}

func newMemStore() *memStore {
	return &memStore{rows: map[int64]*models.GitHubInstallation{}}
}

func (m *memStore) GetByInstallationID(_ context.Context, id int64) (mo.Option[*models.GitHubInstallation], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return mo.None[*models.GitHubInstallation](), m.err
	}
	row, ok := m.rows[id]
	if !ok {
		return mo.None[*models.GitHubInstallation](), nil
	}
	cp := *row
	return mo.Some(&cp), nil
}

func (m *memStore) Upsert(_ context.Context, inst *models.GitHubInstallation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if row, ok := m.rows[inst.InstallationID]; ok {
		if inst.AccountLogin != "" {
			row.AccountLogin = inst.AccountLogin
		}
		if inst.AccountType != "" {
			row.AccountType = inst.AccountType
		}
		return nil
	}
	cp := *inst
	cp.TeamID = nil
	m.rows[inst.InstallationID] = &cp
	return nil
}

func (m *memStore) LinkTeam(_ context.Context, id int64, teamID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || (row.TeamID != nil && *row.TeamID != teamID) {
		return false, nil
	}
	m.links++
	row.TeamID = &teamID
	return true, nil
}

func (m *memStore) UnlinkTeam(_ context.Context, id int64, teamID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.TeamID == nil || *row.TeamID != teamID {
		return false, nil
	}
	row.TeamID = nil
	return true, nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memStore) ListByTeam(_ context.Context, teamID string) ([]*models.GitHubInstallation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.GitHubInstallation
	for _, row := range m.rows {
		if row.TeamID != nil && *row.TeamID == teamID {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstallationID < out[j].InstallationID })
	return out, nil
}

func (m *memStore) teamOf(id int64) *string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		return row.TeamID
	}
	return nil
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (a *recordingAuditor) Log(entry models.AuditLog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func (a *recordingAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type stubAccounts struct {
	account Account
	err     error
	calls   int
}

func (s *stubAccounts) InstallationAccount(context.Context, int64) (Account, error) {
	s.calls++
	return s.account, s.err
}

var errStore = errors.New("store unavailable")
