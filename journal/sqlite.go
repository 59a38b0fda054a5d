package journal

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(id, symbol, side, lot_size, entry_price, exit_price, open_time, close_time, commission, swap, realized_profit, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Symbol, t.Side, t.LotSize, t.EntryPrice, t.ExitPrice,
		t.OpenTime, t.CloseTime, t.Commission, t.Swap, t.RealizedProfit, t.Reason,
	)
	return err
}

func (j *SQLiteJournal) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, balance, equity, open_positions, unrealized_pl)
		VALUES (?, ?, ?, ?, ?)`,
		e.Time, e.Balance, e.Equity, e.OpenPositions, e.UnrealizedPL,
	)
	return err
}

// TradesClosedSince returns trade records with a close time at or after the
// cutoff, oldest first. Used to rebuild daily realized P/L on restart.
func (j *SQLiteJournal) TradesClosedSince(cutoff time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT id, symbol, side, lot_size, entry_price, exit_price,
		       open_time, close_time, commission, swap, realized_profit, reason
		FROM trades
		WHERE close_time >= ?
		ORDER BY close_time ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		err := rows.Scan(&t.ID, &t.Symbol, &t.Side, &t.LotSize, &t.EntryPrice,
			&t.ExitPrice, &t.OpenTime, &t.CloseTime, &t.Commission, &t.Swap,
			&t.RealizedProfit, &t.Reason)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
