package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"broadcaster/internal/exchange"
	"broadcaster/internal/models"
)

// StreamRepository - персистентность данных быстрого опроса.
//
// Реализует poller.Store: снимки баланса пишутся append-only
// (история equity), positions и orders держатся по одной строке
// на аккаунт (последнее состояние), сделки уходят в общий
// HistoryRepository upsert'ом по id биржи.
//
// Payload хранится как jsonb без разбора - схема биржи может
// меняться, а история снимков нужна как есть.
type StreamRepository struct {
	db       *sql.DB
	history  *HistoryRepository
	accounts map[string]models.AccountIdentity
}

// NewStreamRepository создает новый экземпляр репозитория
func NewStreamRepository(db *sql.DB, history *HistoryRepository, accounts []models.AccountIdentity) *StreamRepository {
	byID := make(map[string]models.AccountIdentity, len(accounts))
	for _, acc := range accounts {
		byID[acc.ID] = acc
	}
	return &StreamRepository{
		db:       db,
		history:  history,
		accounts: byID,
	}
}

// SaveSnapshot пишет снимок баланса аккаунта (append-only)
func (r *StreamRepository) SaveSnapshot(accountID string, balance json.RawMessage) error {
	query := `
		INSERT INTO account_snapshots (account_id, balance, created_at)
		VALUES ($1, $2, NOW())`

	_, err := r.db.Exec(query, accountID, []byte(balance))
	return err
}

// SavePositions заменяет текущие позиции аккаунта
func (r *StreamRepository) SavePositions(accountID string, positions json.RawMessage) error {
	query := `
		INSERT INTO positions (account_id, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			payload    = EXCLUDED.payload,
			updated_at = NOW()`

	_, err := r.db.Exec(query, accountID, []byte(positions))
	return err
}

// SaveOrders заменяет текущие активные ордера аккаунта
func (r *StreamRepository) SaveOrders(accountID string, orders json.RawMessage) error {
	query := `
		INSERT INTO orders (account_id, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			payload    = EXCLUDED.payload,
			updated_at = NOW()`

	_, err := r.db.Exec(query, accountID, []byte(orders))
	return err
}

// SaveTrade сохраняет одну закрытую позицию идемпотентно.
// Дедупликация живёт в БД (upsert по id биржи), а не в памяти -
// перезапуск процесса не теряет историю дедупа.
func (r *StreamRepository) SaveTrade(accountID string, trade json.RawMessage) error {
	account, ok := r.accounts[accountID]
	if !ok {
		return fmt.Errorf("unknown account %q", accountID)
	}

	pos, ok := exchange.ParseTradePosition(account, trade)
	if !ok {
		// позиция без id не идентифицируема, пропускаем молча
		return nil
	}

	return r.history.UpsertPosition(&pos)
}

// GetSnapshotHistory возвращает историю снимков баланса аккаунта
func (r *StreamRepository) GetSnapshotHistory(accountID string, limit int) ([]json.RawMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT balance
		FROM account_snapshots
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []json.RawMessage
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, json.RawMessage(raw))
	}
	return snapshots, rows.Err()
}
