package repository

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestStatsRepositoryGetEpochs(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewStatsRepository(db)

	rows := sqlmock.NewRows([]string{"epoch_number", "epoch_start", "position_count", "account_count"}).
		AddRow(6, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), 42, 3).
		AddRow(5, time.Date(2025, 5, 26, 0, 0, 0, 0, time.UTC), 17, 2)

	mock.ExpectQuery(`SELECT epoch_number, epoch_start`).WillReturnRows(rows)

	epochs, err := repo.GetEpochs()
	if err != nil {
		t.Fatalf("GetEpochs failed: %v", err)
	}
	if len(epochs) != 2 {
		t.Fatalf("expected 2 epochs, got %d", len(epochs))
	}
	if epochs[0].EpochNumber != 6 || epochs[0].PositionCount != 42 {
		t.Errorf("unexpected epoch: %+v", epochs[0])
	}
	// EpochEnd дорисовывается из номера эпохи
	if !epochs[0].EpochEnd.After(epochs[0].EpochStart) {
		t.Errorf("EpochEnd %v must be after EpochStart %v", epochs[0].EpochEnd, epochs[0].EpochStart)
	}
}

func TestStatsRepositoryGetEpochStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewStatsRepository(db)

	totals := sqlmock.NewRows([]string{
		"total_positions", "total_accounts", "total_markets",
		"total_volume", "total_fees", "total_pnl", "total_trade_pnl", "total_funding_fees",
	}).AddRow(10, 2, 3, 125000.0, 12.5, 340.0, 360.0, -20.0)

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\) as total_positions`).
		WithArgs(6).
		WillReturnRows(totals)

	accounts := sqlmock.NewRows([]string{
		"account_index", "account_id", "account_name",
		"positions", "markets_traded", "volume", "fees", "pnl",
		"trade_pnl", "funding_fees", "maker_volume", "taker_volume",
	}).
		AddRow(1, "acc-1", "main", 6, 2, 80000.0, 8.0, 200.0, 210.0, -10.0, 50000.0, 30000.0).
		AddRow(2, "acc-2", "second", 4, 1, 45000.0, 4.5, 140.0, 150.0, -10.0, 0.0, 45000.0)

	mock.ExpectQuery(`SELECT\s+account_index`).
		WithArgs(6).
		WillReturnRows(accounts)

	stats, err := repo.GetEpochStats(6)
	if err != nil {
		t.Fatalf("GetEpochStats failed: %v", err)
	}
	if stats.TotalPositions != 10 || stats.TotalVolume != 125000.0 {
		t.Errorf("unexpected totals: %+v", stats)
	}
	if len(stats.Accounts) != 2 {
		t.Fatalf("expected 2 account rows, got %d", len(stats.Accounts))
	}
	if stats.Accounts[0].AccountIndex != 1 || stats.Accounts[0].MakerVolume != 50000.0 {
		t.Errorf("unexpected account stats: %+v", stats.Accounts[0])
	}
}

func TestStatsRepositoryGetPeriodStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewStatsRepository(db)

	rows := sqlmock.NewRows([]string{"positions", "volume", "fees", "pnl", "trade_pnl", "funding_fees"}).
		AddRow(5, 60000.0, 6.0, 100.0, 105.0, -5.0)

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\) as positions`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	stats, err := repo.GetPeriodStats("24h")
	if err != nil {
		t.Fatalf("GetPeriodStats failed: %v", err)
	}
	if stats.Period != "24h" || stats.Positions != 5 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestStatsRepositoryGetPeriodStatsUnknownPeriod(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewStatsRepository(db)

	if _, err := repo.GetPeriodStats("1y"); err == nil {
		t.Error("expected error for unknown period")
	}
}

func TestStatsRepositoryGetArchiveStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewStatsRepository(db)

	earliest := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	latest := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"total_records", "total_accounts", "total_epochs", "earliest", "latest", "last_fetch",
	}).AddRow(100, 3, 5, earliest, latest, latest)

	mock.ExpectQuery(`SELECT COUNT\(\*\) as total_records`).WillReturnRows(rows)

	stats, err := repo.GetArchiveStats()
	if err != nil {
		t.Fatalf("GetArchiveStats failed: %v", err)
	}
	if stats.TotalRecords != 100 || stats.Earliest == nil || !stats.Earliest.Equal(earliest) {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestStatsRepositoryGetArchiveStatsEmptyTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewStatsRepository(db)

	rows := sqlmock.NewRows([]string{
		"total_records", "total_accounts", "total_epochs", "earliest", "latest", "last_fetch",
	}).AddRow(0, 0, 0, nil, nil, nil)

	mock.ExpectQuery(`SELECT COUNT\(\*\) as total_records`).WillReturnRows(rows)

	stats, err := repo.GetArchiveStats()
	if err != nil {
		t.Fatalf("GetArchiveStats on empty table failed: %v", err)
	}
	if stats.Earliest != nil || stats.Latest != nil {
		t.Errorf("empty table must yield nil timestamps: %+v", stats)
	}
}
