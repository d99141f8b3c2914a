// Package repository - слой доступа к PostgreSQL.
package repository

import (
	"database/sql"
	"errors"

	"broadcaster/internal/models"
)

// Ошибки репозиториев
var (
	ErrNotFound = errors.New("record not found")
)

// HistoryRepository - работа с таблицами trade_positions и trade_fills.
//
// Записи ключуются id биржи. Upsert уточняет числовые поля, не
// теряя уже накопленных данных:
// - exit_price: новое ненулевое значение замещает старое, нулевое
//   (позиция ещё без цены закрытия на момент первого fetch) не
//   затирает заполненное
// - max_position_size: берётся максимум из старого и нового
// - account_id/account_index: НЕ обновляются - привязка сделки к
//   аккаунту не может мигрировать
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository создает новый экземпляр репозитория
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// UpsertPosition сохраняет закрытую позицию идемпотентно по id биржи
func (r *HistoryRepository) UpsertPosition(pos *models.TradePosition) error {
	query := `
		INSERT INTO trade_positions (
			id, account_id, account_index, account_name,
			market, side, size, max_position_size, leverage,
			open_price, exit_price, realised_pnl, trade_pnl, funding_fees,
			open_fees, close_fees, created_time, created_at,
			epoch_start, epoch_number, fetched_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20, NOW())
		ON CONFLICT (id) DO UPDATE SET
			exit_price        = COALESCE(NULLIF(EXCLUDED.exit_price, 0), trade_positions.exit_price),
			max_position_size = GREATEST(EXCLUDED.max_position_size, trade_positions.max_position_size),
			realised_pnl      = EXCLUDED.realised_pnl,
			trade_pnl         = EXCLUDED.trade_pnl,
			funding_fees      = EXCLUDED.funding_fees,
			open_fees         = EXCLUDED.open_fees,
			close_fees        = EXCLUDED.close_fees,
			fetched_at        = NOW()`

	_, err := r.db.Exec(
		query,
		pos.ID,
		pos.AccountID,
		pos.AccountIndex,
		pos.AccountName,
		pos.Market,
		pos.Side,
		pos.Size,
		pos.MaxPositionSize,
		pos.Leverage,
		pos.OpenPrice,
		pos.ExitPrice,
		pos.RealisedPnl,
		pos.TradePnl,
		pos.FundingFees,
		pos.OpenFees,
		pos.CloseFees,
		pos.CreatedTime,
		pos.CreatedAt,
		pos.EpochStart,
		pos.EpochNumber,
	)
	return err
}

// UpsertFill сохраняет исполнение ордера идемпотентно по id биржи
func (r *HistoryRepository) UpsertFill(fill *models.TradeFill) error {
	query := `
		INSERT INTO trade_fills (
			id, account_id, account_index, market, side,
			price, qty, fee, is_maker, created_time, created_at, fetched_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, NOW())
		ON CONFLICT (id) DO UPDATE SET
			fee        = EXCLUDED.fee,
			is_maker   = EXCLUDED.is_maker,
			fetched_at = NOW()`

	_, err := r.db.Exec(
		query,
		fill.ID,
		fill.AccountID,
		fill.AccountIndex,
		fill.Market,
		fill.Side,
		fill.Price,
		fill.Qty,
		fill.Fee,
		fill.IsMaker,
		fill.CreatedTime,
		fill.CreatedAt,
	)
	return err
}

// ClearAll очищает таблицы истории перед полной перезагрузкой
func (r *HistoryRepository) ClearAll() error {
	if _, err := r.db.Exec(`TRUNCATE TABLE trade_positions`); err != nil {
		return err
	}
	_, err := r.db.Exec(`TRUNCATE TABLE trade_fills`)
	return err
}

// GetAccountTrades возвращает сделки аккаунта за эпоху,
// новые сверху
func (r *HistoryRepository) GetAccountTrades(epochNumber, accountIndex int) ([]*models.TradePosition, error) {
	query := `
		SELECT id, account_id, account_index, account_name,
		       market, side, size, max_position_size, leverage,
		       open_price, exit_price, realised_pnl, trade_pnl, funding_fees,
		       open_fees, close_fees, created_time, created_at,
		       epoch_start, epoch_number
		FROM trade_positions
		WHERE epoch_number = $1 AND account_index = $2
		ORDER BY created_at DESC`

	rows, err := r.db.Query(query, epochNumber, accountIndex)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetRecent возвращает последние сделки всех аккаунтов
func (r *HistoryRepository) GetRecent(limit int) ([]*models.TradePosition, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	query := `
		SELECT id, account_id, account_index, account_name,
		       market, side, size, max_position_size, leverage,
		       open_price, exit_price, realised_pnl, trade_pnl, funding_fees,
		       open_fees, close_fees, created_time, created_at,
		       epoch_start, epoch_number
		FROM trade_positions
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

func scanPositions(rows *sql.Rows) ([]*models.TradePosition, error) {
	var positions []*models.TradePosition
	for rows.Next() {
		pos := &models.TradePosition{}
		err := rows.Scan(
			&pos.ID,
			&pos.AccountID,
			&pos.AccountIndex,
			&pos.AccountName,
			&pos.Market,
			&pos.Side,
			&pos.Size,
			&pos.MaxPositionSize,
			&pos.Leverage,
			&pos.OpenPrice,
			&pos.ExitPrice,
			&pos.RealisedPnl,
			&pos.TradePnl,
			&pos.FundingFees,
			&pos.OpenFees,
			&pos.CloseFees,
			&pos.CreatedTime,
			&pos.CreatedAt,
			&pos.EpochStart,
			&pos.EpochNumber,
		)
		if err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}
