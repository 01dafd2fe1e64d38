package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertSnapshotSQL = `INSERT INTO arbitrage_snapshots (
        name,
        icon_url,
        buff_price,
        cgm_price,
        skinport_price,
        steam_price,
        sell_num,
        buy_num,
        liquidity,
        best_roi,
        best_market,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    ON CONFLICT (name) DO UPDATE
    SET
        icon_url       = EXCLUDED.icon_url,
        buff_price     = EXCLUDED.buff_price,
        cgm_price      = EXCLUDED.cgm_price,
        skinport_price = EXCLUDED.skinport_price,
        steam_price    = EXCLUDED.steam_price,
        sell_num       = EXCLUDED.sell_num,
        buy_num        = EXCLUDED.buy_num,
        liquidity      = EXCLUDED.liquidity,
        best_roi       = EXCLUDED.best_roi,
        best_market    = EXCLUDED.best_market,
        updated_at     = EXCLUDED.updated_at;`

	insertObservationSQL = `INSERT INTO price_history (
        name, source, price_usd, observed_at
    ) VALUES ($1,$2,$3,$4);`

	snapshotColumns = `name, icon_url, buff_price, cgm_price, skinport_price,
        steam_price, sell_num, buy_num, liquidity, best_roi, best_market, updated_at`

	getSnapshotSQL = `SELECT ` + snapshotColumns + `
    FROM arbitrage_snapshots
    WHERE name = $1;`

	listRecentSnapshotsSQL = `SELECT ` + snapshotColumns + `
    FROM arbitrage_snapshots
    ORDER BY best_roi DESC, name
    LIMIT $1;`

	listObservationsBetweenSQL = `SELECT name, source, price_usd, observed_at
    FROM price_history
    WHERE name = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	listActiveAlertsSQL = `SELECT
        a.id, a.item_name, a.condition, a.threshold, a.active, a.triggered_at,
        u.id, u.tg_id, u.usd_rub, u.notify_tg
    FROM alerts a
    JOIN users u ON a.user_id = u.id
    WHERE a.active;`

	markAlertTriggeredSQL = `UPDATE alerts SET triggered_at = $2 WHERE id = $1;`

	listUnlockablePositionsSQL = `SELECT
        p.id, p.item_name, p.quantity, p.buy_price_usd, p.buy_market,
        p.sell_market, p.bought_at, p.unlock_at, p.status,
        u.id, u.tg_id, u.usd_rub, u.notify_tg
    FROM portfolio p
    JOIN users u ON p.user_id = u.id
    WHERE p.status = 'locked'
      AND p.unlock_at IS NOT NULL
      AND p.unlock_at <= $1;`

	markPositionReadySQL = `UPDATE portfolio
    SET status = 'ready'
    WHERE id = $1 AND status = 'locked';`

	credentialUserColumns = `u.id, u.tg_id, u.usd_rub, u.notify_tg,
        u.buff_session, u.buff_updated_at`

	listCredentialUsersSQL = `SELECT ` + credentialUserColumns + `
    FROM users u
    WHERE u.buff_session IS NOT NULL;`

	freshestCredentialUserSQL = `SELECT ` + credentialUserColumns + `
    FROM users u
    WHERE u.buff_session IS NOT NULL
    ORDER BY u.buff_updated_at DESC NULLS LAST
    LIMIT 1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SnapshotReader exposes the read-only snapshot surface. Evaluation loops
// receive only this interface; the collector is the sole writer.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, name string) (*Snapshot, error)
	ListRecentSnapshots(ctx context.Context, limit int) ([]Snapshot, error)
}

// ObservationReader exposes range scans over the price time series.
type ObservationReader interface {
	ListObservationsBetween(ctx context.Context, name string, from, to time.Time) ([]Observation, error)
}

// CycleWriter persists one collector cycle atomically.
type CycleWriter interface {
	PersistCycle(ctx context.Context, snapshots []Snapshot, observations []Observation) error
}

// AlertStore defines the alert evaluator's data access.
type AlertStore interface {
	ListActiveAlerts(ctx context.Context) ([]Alert, error)
	MarkAlertTriggered(ctx context.Context, id int64, at time.Time) error
}

// PortfolioStore defines the unlock evaluator's data access.
type PortfolioStore interface {
	ListUnlockablePositions(ctx context.Context, now time.Time) ([]Position, error)
	MarkPositionReady(ctx context.Context, id int64) (bool, error)
}

// CredentialStore defines read access to user session credentials.
type CredentialStore interface {
	ListCredentialUsers(ctx context.Context) ([]CredentialUser, error)
	FreshestCredentialUser(ctx context.Context) (*CredentialUser, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates data access for all four loops.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

// PersistCycle writes one cycle's snapshots and observations in a single
// transaction so readers never see a partially committed cycle.
func (s *Store) PersistCycle(ctx context.Context, snapshots []Snapshot, observations []Observation) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cycle tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, snap := range snapshots {
		if _, err := tx.Exec(ctx, upsertSnapshotSQL,
			snap.Name,
			nullableString(snap.IconURL),
			nullableDecimal(snap.BuffPrice),
			nullableDecimal(snap.CGMPrice),
			nullableDecimal(snap.SkinportPrice),
			nullableDecimal(snap.SteamPrice),
			snap.SellNum,
			snap.BuyNum,
			snap.Liquidity,
			snap.BestROI.String(),
			nullableString(snap.BestMarket),
			snap.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert snapshot %q: %w", snap.Name, err)
		}
	}

	batch := &pgx.Batch{}
	for _, obs := range observations {
		batch.Queue(insertObservationSQL, obs.Name, obs.Source, obs.PriceUSD.String(), obs.ObservedAt)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert observations: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cycle tx: %w", err)
	}
	return nil
}

// GetSnapshot loads one snapshot by item name, nil when absent.
func (s *Store) GetSnapshot(ctx context.Context, name string) (*Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, getSnapshotSQL, name)
	if queryErr != nil {
		return nil, fmt.Errorf("get snapshot: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	snap, scanErr := scanSnapshot(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &snap, rows.Err()
}

// ListRecentSnapshots lists snapshots ordered by best ROI descending.
func (s *Store) ListRecentSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSnapshotsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	defer rows.Close()

	snapshots := make([]Snapshot, 0, limit)
	for rows.Next() {
		snap, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// ListObservationsBetween lists one item's observations within a window.
func (s *Store) ListObservationsBetween(ctx context.Context, name string, from, to time.Time) ([]Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsBetweenSQL, name, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations: %w", queryErr)
	}
	defer rows.Close()

	observations := make([]Observation, 0)
	for rows.Next() {
		var obs Observation
		var priceStr string
		if err := rows.Scan(&obs.Name, &obs.Source, &priceStr, &obs.ObservedAt); err != nil {
			return nil, err
		}
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse observation price: %w", convErr)
		}
		obs.PriceUSD = price
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

// ListActiveAlerts lists active alerts joined to their owner.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveAlertsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]Alert, 0)
	for rows.Next() {
		var alert Alert
		var threshold sql.NullString
		var triggered sql.NullTime
		var usdRUBStr string
		if err := rows.Scan(
			&alert.ID,
			&alert.ItemName,
			&alert.Condition,
			&threshold,
			&alert.Active,
			&triggered,
			&alert.User.UserID,
			&alert.User.ChatID,
			&usdRUBStr,
			&alert.User.NotifyOptIn,
		); err != nil {
			return nil, err
		}

		if threshold.Valid {
			value, convErr := decimal.NewFromString(threshold.String)
			if convErr != nil {
				return nil, fmt.Errorf("parse alert threshold: %w", convErr)
			}
			alert.Threshold = &value
		}
		if triggered.Valid {
			at := triggered.Time
			alert.TriggeredAt = &at
		}

		usdRUB, convErr := decimal.NewFromString(usdRUBStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse usd_rub: %w", convErr)
		}
		alert.User.USDRUB = usdRUB

		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// MarkAlertTriggered stamps the alert's trigger time.
func (s *Store) MarkAlertTriggered(ctx context.Context, id int64, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, markAlertTriggeredSQL, id, at); execErr != nil {
		return fmt.Errorf("mark alert triggered: %w", execErr)
	}
	return nil
}

// ListUnlockablePositions lists locked positions whose unlock time passed.
func (s *Store) ListUnlockablePositions(ctx context.Context, now time.Time) ([]Position, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listUnlockablePositionsSQL, now)
	if queryErr != nil {
		return nil, fmt.Errorf("list unlockable positions: %w", queryErr)
	}
	defer rows.Close()

	positions := make([]Position, 0)
	for rows.Next() {
		var pos Position
		var buyPriceStr, usdRUBStr string
		var unlockAt sql.NullTime
		if err := rows.Scan(
			&pos.ID,
			&pos.ItemName,
			&pos.Quantity,
			&buyPriceStr,
			&pos.BuyMarket,
			&pos.SellMarket,
			&pos.BoughtAt,
			&unlockAt,
			&pos.Status,
			&pos.User.UserID,
			&pos.User.ChatID,
			&usdRUBStr,
			&pos.User.NotifyOptIn,
		); err != nil {
			return nil, err
		}

		buyPrice, convErr := decimal.NewFromString(buyPriceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse buy price: %w", convErr)
		}
		pos.BuyPriceUSD = buyPrice

		usdRUB, convErr := decimal.NewFromString(usdRUBStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse usd_rub: %w", convErr)
		}
		pos.User.USDRUB = usdRUB

		if unlockAt.Valid {
			at := unlockAt.Time
			pos.UnlockAt = &at
		}

		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// MarkPositionReady transitions a position out of locked. The condition in
// the statement is the idempotence guarantee: a row already transitioned
// matches nothing and reports false.
func (s *Store) MarkPositionReady(ctx context.Context, id int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	cmdTag, execErr := pool.Exec(ctx, markPositionReadySQL, id)
	if execErr != nil {
		return false, fmt.Errorf("mark position ready: %w", execErr)
	}
	return cmdTag.RowsAffected() > 0, nil
}

// ListCredentialUsers lists all users holding a Buff session.
func (s *Store) ListCredentialUsers(ctx context.Context) ([]CredentialUser, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listCredentialUsersSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list credential users: %w", queryErr)
	}
	defer rows.Close()

	users := make([]CredentialUser, 0)
	for rows.Next() {
		user, scanErr := scanCredentialUser(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// FreshestCredentialUser picks the most recently refreshed session, nil when
// no user holds one.
func (s *Store) FreshestCredentialUser(ctx context.Context) (*CredentialUser, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, freshestCredentialUserSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("freshest credential user: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	user, scanErr := scanCredentialUser(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &user, rows.Err()
}

func scanCredentialUser(rows pgx.Rows) (CredentialUser, error) {
	var user CredentialUser
	var usdRUBStr string
	var updatedAt sql.NullTime
	if err := rows.Scan(
		&user.User.UserID,
		&user.User.ChatID,
		&usdRUBStr,
		&user.User.NotifyOptIn,
		&user.Session,
		&updatedAt,
	); err != nil {
		return CredentialUser{}, err
	}

	usdRUB, err := decimal.NewFromString(usdRUBStr)
	if err != nil {
		return CredentialUser{}, fmt.Errorf("parse usd_rub: %w", err)
	}
	user.User.USDRUB = usdRUB

	if updatedAt.Valid {
		user.UpdatedAt = updatedAt.Time
	}
	return user, nil
}

func scanSnapshot(rows pgx.Rows) (Snapshot, error) {
	var (
		snap       Snapshot
		iconURL    sql.NullString
		buffPrice  sql.NullString
		cgmPrice   sql.NullString
		spPrice    sql.NullString
		steamPrice sql.NullString
		bestROIStr string
		bestMarket sql.NullString
	)

	if err := rows.Scan(
		&snap.Name,
		&iconURL,
		&buffPrice,
		&cgmPrice,
		&spPrice,
		&steamPrice,
		&snap.SellNum,
		&snap.BuyNum,
		&snap.Liquidity,
		&bestROIStr,
		&bestMarket,
		&snap.UpdatedAt,
	); err != nil {
		return Snapshot{}, err
	}

	bestROI, err := decimal.NewFromString(bestROIStr)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse best roi: %w", err)
	}
	snap.BestROI = bestROI

	if iconURL.Valid {
		value := iconURL.String
		snap.IconURL = &value
	}
	if bestMarket.Valid {
		value := bestMarket.String
		snap.BestMarket = &value
	}

	for _, column := range []struct {
		raw    sql.NullString
		target **decimal.Decimal
	}{
		{buffPrice, &snap.BuffPrice},
		{cgmPrice, &snap.CGMPrice},
		{spPrice, &snap.SkinportPrice},
		{steamPrice, &snap.SteamPrice},
	} {
		if !column.raw.Valid {
			continue
		}
		value, convErr := decimal.NewFromString(column.raw.String)
		if convErr != nil {
			return Snapshot{}, fmt.Errorf("parse snapshot price: %w", convErr)
		}
		*column.target = &value
	}

	return snap, nil
}

func nullableString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableDecimal(v *decimal.Decimal) interface{} {
	if v == nil {
		return nil
	}
	return v.String()
}
