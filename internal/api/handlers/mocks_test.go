package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"broadcaster/internal/models"
)

// ErrMockDatabase имитирует ошибку БД в тестах
var ErrMockDatabase = errors.New("mock database error")

// ============ Mock SnapshotHistoryStore ============

type mockSnapshotStore struct {
	history []json.RawMessage
	err     error

	lastAccountID string
	lastLimit     int
}

func (m *mockSnapshotStore) GetSnapshotHistory(accountID string, limit int) ([]json.RawMessage, error) {
	m.lastAccountID = accountID
	m.lastLimit = limit
	return m.history, m.err
}

// ============ Mock TradeHistoryStore ============

type mockHistoryStore struct {
	recent []*models.TradePosition
	trades []*models.TradePosition
	err    error

	lastEpoch   int
	lastAccount int
}

func (m *mockHistoryStore) GetRecent(limit int) ([]*models.TradePosition, error) {
	return m.recent, m.err
}

func (m *mockHistoryStore) GetAccountTrades(epochNumber, accountIndex int) ([]*models.TradePosition, error) {
	m.lastEpoch = epochNumber
	m.lastAccount = accountIndex
	return m.trades, m.err
}

// ============ Mock Refresher ============

type mockRefresher struct {
	calls int
	err   error
}

func (m *mockRefresher) FullRefresh(ctx context.Context) error {
	m.calls++
	return m.err
}

// ============ Mock StatsStore ============

type mockStatsStore struct {
	epochs     []models.EpochSummary
	epochStats *models.EpochStats
	period     *models.PeriodStats
	archive    *models.ArchiveStats
	err        error

	lastPeriod string
}

func (m *mockStatsStore) GetEpochs() ([]models.EpochSummary, error) {
	return m.epochs, m.err
}

func (m *mockStatsStore) GetEpochStats(epochNumber int) (*models.EpochStats, error) {
	return m.epochStats, m.err
}

func (m *mockStatsStore) GetPeriodStats(period string) (*models.PeriodStats, error) {
	m.lastPeriod = period
	if m.err != nil {
		return nil, m.err
	}
	return m.period, nil
}

func (m *mockStatsStore) GetArchiveStats() (*models.ArchiveStats, error) {
	return m.archive, m.err
}

// ============ Mock AlertTester ============

type mockAlertTester struct {
	results map[string]bool
	status  map[string]bool
}

func (m *mockAlertTester) TestAllChannels(ctx context.Context) map[string]bool {
	return m.results
}

func (m *mockAlertTester) ConfigStatus() map[string]bool {
	return m.status
}

// ============ Mock HubStats ============

type mockHubStats struct {
	clients int
	dropped int64
}

func (m *mockHubStats) ClientCount() int       { return m.clients }
func (m *mockHubStats) DroppedMessages() int64 { return m.dropped }
