package repository

import (
	"database/sql"
	"fmt"
	"time"

	"broadcaster/internal/models"
	"broadcaster/pkg/utils"
)

// StatsRepository - агрегаты по таблице trade_positions.
//
// Эпоха - торговая неделя биржи (понедельник-воскресенье),
// нумерация и границы считаются в pkg/utils.
type StatsRepository struct {
	db *sql.DB
}

// NewStatsRepository создает новый экземпляр репозитория
func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// GetEpochs возвращает список эпох, по которым есть сделки,
// новые сверху
func (r *StatsRepository) GetEpochs() ([]models.EpochSummary, error) {
	query := `
		SELECT epoch_number, epoch_start,
		       COUNT(*) as position_count,
		       COUNT(DISTINCT account_index) as account_count
		FROM trade_positions
		GROUP BY epoch_number, epoch_start
		ORDER BY epoch_number DESC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var epochs []models.EpochSummary
	for rows.Next() {
		var e models.EpochSummary
		if err := rows.Scan(&e.EpochNumber, &e.EpochStart, &e.PositionCount, &e.AccountCount); err != nil {
			return nil, err
		}
		_, e.EpochEnd = utils.EpochDates(e.EpochNumber)
		epochs = append(epochs, e)
	}
	return epochs, rows.Err()
}

// GetEpochStats возвращает агрегаты эпохи: суммарные и по аккаунтам.
//
// maker/taker объёмы различаются по open_fees: нулевая комиссия
// открытия означает maker исполнение.
func (r *StatsRepository) GetEpochStats(epochNumber int) (*models.EpochStats, error) {
	stats := &models.EpochStats{EpochNumber: epochNumber}

	totalQuery := `
		SELECT
			COUNT(*) as total_positions,
			COUNT(DISTINCT account_index) as total_accounts,
			COUNT(DISTINCT market) as total_markets,
			COALESCE(SUM(ABS(size * open_price)), 0) as total_volume,
			COALESCE(SUM(ABS(open_fees) + ABS(close_fees)), 0) as total_fees,
			COALESCE(SUM(realised_pnl), 0) as total_pnl,
			COALESCE(SUM(trade_pnl), 0) as total_trade_pnl,
			COALESCE(SUM(funding_fees), 0) as total_funding_fees
		FROM trade_positions
		WHERE epoch_number = $1`

	err := r.db.QueryRow(totalQuery, epochNumber).Scan(
		&stats.TotalPositions,
		&stats.TotalAccounts,
		&stats.TotalMarkets,
		&stats.TotalVolume,
		&stats.TotalFees,
		&stats.TotalPnl,
		&stats.TotalTradePnl,
		&stats.TotalFundingFees,
	)
	if err != nil {
		return nil, err
	}

	accountQuery := `
		SELECT
			account_index,
			account_id,
			account_name,
			COUNT(*) as positions,
			COUNT(DISTINCT market) as markets_traded,
			COALESCE(SUM(ABS(size * open_price)), 0) as volume,
			COALESCE(SUM(ABS(open_fees) + ABS(close_fees)), 0) as fees,
			COALESCE(SUM(realised_pnl), 0) as pnl,
			COALESCE(SUM(trade_pnl), 0) as trade_pnl,
			COALESCE(SUM(funding_fees), 0) as funding_fees,
			COALESCE(SUM(CASE WHEN open_fees = 0 THEN ABS(size * open_price) ELSE 0 END), 0) as maker_volume,
			COALESCE(SUM(CASE WHEN open_fees != 0 THEN ABS(size * open_price) ELSE 0 END), 0) as taker_volume
		FROM trade_positions
		WHERE epoch_number = $1
		GROUP BY account_index, account_id, account_name
		ORDER BY account_index`

	rows, err := r.db.Query(accountQuery, epochNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var acc models.AccountEpochStats
		err := rows.Scan(
			&acc.AccountIndex,
			&acc.AccountID,
			&acc.AccountName,
			&acc.Positions,
			&acc.MarketsCount,
			&acc.Volume,
			&acc.Fees,
			&acc.Pnl,
			&acc.TradePnl,
			&acc.FundingFees,
			&acc.MakerVolume,
			&acc.TakerVolume,
		)
		if err != nil {
			return nil, err
		}
		stats.Accounts = append(stats.Accounts, acc)
	}
	return stats, rows.Err()
}

// GetPeriodStats возвращает агрегаты скользящего окна.
// period: "24h", "7d" или "30d".
func (r *StatsRepository) GetPeriodStats(period string) (*models.PeriodStats, error) {
	var since time.Duration
	switch period {
	case "24h":
		since = 24 * time.Hour
	case "7d":
		since = 7 * 24 * time.Hour
	case "30d":
		since = 30 * 24 * time.Hour
	default:
		return nil, fmt.Errorf("unknown period %q", period)
	}

	query := `
		SELECT
			COUNT(*) as positions,
			COALESCE(SUM(ABS(size * open_price)), 0) as volume,
			COALESCE(SUM(ABS(open_fees) + ABS(close_fees)), 0) as fees,
			COALESCE(SUM(realised_pnl), 0) as pnl,
			COALESCE(SUM(trade_pnl), 0) as trade_pnl,
			COALESCE(SUM(funding_fees), 0) as funding_fees
		FROM trade_positions
		WHERE created_at >= $1`

	stats := &models.PeriodStats{Period: period}
	err := r.db.QueryRow(query, time.Now().UTC().Add(-since)).Scan(
		&stats.Positions,
		&stats.Volume,
		&stats.Fees,
		&stats.Pnl,
		&stats.TradePnl,
		&stats.FundingFees,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// GetArchiveStats возвращает общее состояние архива истории
func (r *StatsRepository) GetArchiveStats() (*models.ArchiveStats, error) {
	query := `
		SELECT COUNT(*) as total_records,
		       COUNT(DISTINCT account_index) as total_accounts,
		       COUNT(DISTINCT epoch_number) as total_epochs,
		       MIN(created_at) as earliest,
		       MAX(created_at) as latest,
		       MAX(fetched_at) as last_fetch
		FROM trade_positions`

	stats := &models.ArchiveStats{}
	err := r.db.QueryRow(query).Scan(
		&stats.TotalRecords,
		&stats.TotalAccounts,
		&stats.TotalEpochs,
		&stats.Earliest,
		&stats.Latest,
		&stats.LastFetch,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
