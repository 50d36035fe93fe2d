package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nyxsignal/oracle/internal/storage"
	"github.com/nyxsignal/oracle/pkg/models"
	"github.com/nyxsignal/oracle/pkg/optional"
	"github.com/nyxsignal/oracle/pkg/utils/logger"
)

// PostgresStore implements storage.Store over the pgx connection pool,
// following the raw-SQL style of the teacher's token_operations.go.
type PostgresStore struct {
	conn   *Connection
	logger *logger.Logger
}

var _ storage.Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an established Connection as a Store.
func NewPostgresStore(conn *Connection, log *logger.Logger) *PostgresStore {
	return &PostgresStore{conn: conn, logger: log}
}

func (s *PostgresStore) UpsertToken(ctx context.Context, addr string, patch storage.TokenPatch) (string, error) {
	name, _ := patch.Name.Get()
	symbol, _ := patch.Symbol.Get()
	narrative, _ := patch.Narrative.Get()
	creator, _ := patch.Creator.Get()

	_, err := s.conn.Exec(ctx, `
		INSERT INTO tokens (address, name, symbol, narrative, creator_address, is_bonding_curve, first_seen)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (address) DO UPDATE SET
			name            = COALESCE(NULLIF($2, ''), tokens.name),
			symbol          = COALESCE(NULLIF($3, ''), tokens.symbol),
			narrative       = COALESCE(NULLIF($4, ''), tokens.narrative),
			creator_address = COALESCE(NULLIF($5, ''), tokens.creator_address)
	`, addr, name, symbol, narrative, creator, models.IsBondingCurveAddress(addr))
	if err != nil {
		return "", fmt.Errorf("upsert token %s: %w", addr, err)
	}
	return addr, nil
}

func (s *PostgresStore) InsertMetric(ctx context.Context, m models.TokenMetric) error {
	holders, holdersKnown := m.Holders.Get()
	top10, top10Known := m.Top10Ratio.Get()
	insider, insiderKnown := m.InsiderProbability.Get()
	creatorRisk, creatorRiskKnown := m.CreatorRisk.Get()

	_, err := s.conn.Exec(ctx, `
		INSERT INTO token_metrics (
			token_address, observed_at, price, marketcap, liquidity, liquidity_is_virtual,
			holders, holders_known, volume_5m, volume_1h, buys_5m, sells_5m,
			top10_ratio, top10_known, smart_wallet_activity, instability_index,
			delta_instability, insider_probability, insider_known, creator_risk, creator_risk_known,
			bonding_complete, has_twitter
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23
		)
	`,
		m.TokenAddress, m.ObservedAt, m.Price, m.MarketCap, m.Liquidity, m.LiquidityIsVirtual,
		holders, holdersKnown, m.Volume5m, m.Volume1h, m.Buys5m, m.Sells5m,
		top10, top10Known, m.SmartWalletActivity, m.InstabilityIndex,
		m.DeltaInstability, insider, insiderKnown, creatorRisk, creatorRiskKnown,
		m.BondingComplete, m.HasTwitter,
	)
	if err != nil {
		return fmt.Errorf("insert metric %s: %w", m.TokenAddress, err)
	}
	return nil
}

func (s *PostgresStore) RecentMetrics(ctx context.Context, tokenAddr string, windowMinutes int) ([]models.TokenMetric, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT token_address, observed_at, price, marketcap, liquidity, liquidity_is_virtual,
		       holders, holders_known, volume_5m, volume_1h, buys_5m, sells_5m,
		       top10_ratio, top10_known, smart_wallet_activity, instability_index,
		       delta_instability, insider_probability, insider_known, creator_risk, creator_risk_known,
		       bonding_complete, has_twitter
		FROM token_metrics
		WHERE token_address = $1 AND observed_at >= NOW() - ($2 || ' minutes')::interval
		ORDER BY observed_at DESC
	`, tokenAddr, windowMinutes)
	if err != nil {
		return nil, fmt.Errorf("recent metrics %s: %w", tokenAddr, err)
	}
	defer rows.Close()
	return scanMetrics(rows)
}

func scanMetrics(rows pgx.Rows) ([]models.TokenMetric, error) {
	var out []models.TokenMetric
	for rows.Next() {
		var m models.TokenMetric
		var holders int
		var holdersKnown bool
		var top10 float64
		var top10Known bool
		var insider float64
		var insiderKnown bool
		var creatorRisk float64
		var creatorRiskKnown bool

		if err := rows.Scan(
			&m.TokenAddress, &m.ObservedAt, &m.Price, &m.MarketCap, &m.Liquidity, &m.LiquidityIsVirtual,
			&holders, &holdersKnown, &m.Volume5m, &m.Volume1h, &m.Buys5m, &m.Sells5m,
			&top10, &top10Known, &m.SmartWalletActivity, &m.InstabilityIndex,
			&m.DeltaInstability, &insider, &insiderKnown, &creatorRisk, &creatorRiskKnown,
			&m.BondingComplete, &m.HasTwitter,
		); err != nil {
			return nil, fmt.Errorf("scan metric row: %w", err)
		}
		if holdersKnown {
			m.Holders = optional.Known(holders)
		}
		if top10Known {
			m.Top10Ratio = optional.Known(top10)
		}
		if insiderKnown {
			m.InsiderProbability = optional.Known(insider)
		}
		if creatorRiskKnown {
			m.CreatorRisk = optional.Known(creatorRisk)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TokensObservedSince(ctx context.Context, windowMinutes int) ([]string, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT token_address
		FROM token_metrics
		WHERE observed_at >= NOW() - ($1 || ' minutes')::interval
	`, windowMinutes)
	if err != nil {
		return nil, fmt.Errorf("tokens observed since: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan token address: %w", err)
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

func (s *PostgresStore) LatestInstabilityAll(ctx context.Context, windowMinutes int) ([]storage.InstabilityRow, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT ON (token_address)
		       token_address, instability_index, price, marketcap, liquidity,
		       holders, holders_known, top10_ratio, top10_known, observed_at
		FROM token_metrics
		WHERE observed_at >= NOW() - ($1 || ' minutes')::interval
		ORDER BY token_address, observed_at DESC
	`, windowMinutes)
	if err != nil {
		return nil, fmt.Errorf("latest instability all: %w", err)
	}
	defer rows.Close()

	var out []storage.InstabilityRow
	for rows.Next() {
		var r storage.InstabilityRow
		var holders int
		var holdersKnown bool
		var top10 float64
		var top10Known bool
		if err := rows.Scan(&r.TokenAddress, &r.Instability, &r.Price, &r.MarketCap, &r.Liquidity,
			&holders, &holdersKnown, &top10, &top10Known, &r.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan instability row: %w", err)
		}
		if holdersKnown {
			r.Holders = optional.Known(holders)
		}
		if top10Known {
			r.Top10 = optional.Known(top10)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertSignal(ctx context.Context, sig models.Signal) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO signals (
			id, token_address, observed_at, instability_index, entry_price, liquidity, marketcap,
			bayesian_confidence, kelly_size, insider_probability, creator_risk, stop_loss, take_profit_1, ai_summary
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		sig.ID, sig.TokenAddress, sig.ObservedAt, sig.InstabilityIndex, sig.EntryPrice, sig.Liquidity, sig.MarketCap,
		sig.BayesianConfidence, sig.KellySize, sig.InsiderProbability, sig.CreatorRisk, sig.StopLoss, sig.TakeProfit1, sig.AISummary,
	)
	if err != nil {
		return fmt.Errorf("insert signal %s: %w", sig.TokenAddress, err)
	}
	return nil
}

func (s *PostgresStore) HasRecentSignal(ctx context.Context, tokenAddr string, minutes int) (bool, error) {
	var exists bool
	err := s.conn.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM signals
			WHERE token_address = $1 AND observed_at >= NOW() - ($2 || ' minutes')::interval
		)
	`, tokenAddr, minutes).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has recent signal %s: %w", tokenAddr, err)
	}
	return exists, nil
}

func (s *PostgresStore) UpsertWallet(ctx context.Context, addr string, patch storage.WalletPatch) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO wallet_profiles (address, avg_roi, total_trades, win_rate, cluster, last_active_at, verified)
		VALUES ($1, $2, $3, $4, $5, NOW(), true)
		ON CONFLICT (address) DO UPDATE SET
			avg_roi = $2, total_trades = $3, win_rate = $4, cluster = $5, last_active_at = NOW(), verified = true
	`, addr, patch.AvgROI, patch.TotalTrades, patch.WinRate, string(patch.Cluster))
	if err != nil {
		return fmt.Errorf("upsert wallet %s: %w", addr, err)
	}
	return nil
}

func (s *PostgresStore) GetWallets(ctx context.Context, addrs []string) ([]models.WalletProfile, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT address, avg_roi, total_trades, win_rate, cluster, last_active_at, verified
		FROM wallet_profiles WHERE address = ANY($1)
	`, addrs)
	if err != nil {
		return nil, fmt.Errorf("get wallets: %w", err)
	}
	defer rows.Close()

	var out []models.WalletProfile
	for rows.Next() {
		var w models.WalletProfile
		var cluster string
		if err := rows.Scan(&w.Address, &w.AvgROI, &w.TotalTrades, &w.WinRate, &cluster, &w.LastActiveAt, &w.Verified); err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		w.Cluster = models.WalletCluster(cluster)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertCreatorStats(ctx context.Context, addr string, patch storage.CreatorPatch) error {
	rugRatio, _ := patch.RugRatio.Get()
	lifespan, _ := patch.AvgLifespanHours.Get()

	_, err := s.conn.Exec(ctx, `
		INSERT INTO creator_profiles (address, rug_ratio, avg_lifespan_hours, total_launched, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (address) DO UPDATE SET
			rug_ratio          = CASE WHEN $5 THEN $2 ELSE creator_profiles.rug_ratio END,
			avg_lifespan_hours = CASE WHEN $6 THEN $3 ELSE creator_profiles.avg_lifespan_hours END,
			total_launched     = creator_profiles.total_launched + $4,
			updated_at         = NOW()
	`, addr, rugRatio, lifespan, patch.TotalTokensDelta, patch.RugRatio.IsKnown(), patch.AvgLifespanHours.IsKnown())
	if err != nil {
		return fmt.Errorf("upsert creator stats %s: %w", addr, err)
	}
	return nil
}

func (s *PostgresStore) GetCreatorProfile(ctx context.Context, addr string) (models.CreatorProfile, bool, error) {
	var c models.CreatorProfile
	err := s.conn.QueryRow(ctx, `
		SELECT address, rug_ratio, avg_lifespan_hours, total_launched, updated_at
		FROM creator_profiles WHERE address = $1
	`, addr).Scan(&c.Address, &c.RugRatio, &c.AvgLifespanHrs, &c.TotalLaunched, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return models.CreatorProfile{}, false, nil
	}
	if err != nil {
		return models.CreatorProfile{}, false, fmt.Errorf("get creator profile %s: %w", addr, err)
	}
	return c, true, nil
}

func (s *PostgresStore) RecentSignals(ctx context.Context, windowMinutes int) ([]models.Signal, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, token_address, observed_at, instability_index, entry_price, liquidity, marketcap,
		       bayesian_confidence, kelly_size, insider_probability, creator_risk, stop_loss, take_profit_1, ai_summary
		FROM signals
		WHERE observed_at >= NOW() - ($1 || ' minutes')::interval
		ORDER BY observed_at DESC
	`, windowMinutes)
	if err != nil {
		return nil, fmt.Errorf("recent signals: %w", err)
	}
	defer rows.Close()

	var out []models.Signal
	for rows.Next() {
		var sig models.Signal
		if err := rows.Scan(&sig.ID, &sig.TokenAddress, &sig.ObservedAt, &sig.InstabilityIndex, &sig.EntryPrice,
			&sig.Liquidity, &sig.MarketCap, &sig.BayesianConfidence, &sig.KellySize, &sig.InsiderProbability,
			&sig.CreatorRisk, &sig.StopLoss, &sig.TakeProfit1, &sig.AISummary); err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func (s *PostgresStore) LogRegime(ctx context.Context, r models.RegimeObservation) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO market_regimes (bucket, label, batch_total_volume_5m) VALUES ($1, $2, $3)
	`, r.Bucket, string(r.Label), r.BatchTotalVol5m)
	if err != nil {
		return fmt.Errorf("log regime: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentRegimes(ctx context.Context, n int) ([]models.RegimeObservation, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT bucket, label, batch_total_volume_5m FROM market_regimes ORDER BY bucket DESC LIMIT $1
	`, n)
	if err != nil {
		return nil, fmt.Errorf("recent regimes: %w", err)
	}
	defer rows.Close()

	var out []models.RegimeObservation
	for rows.Next() {
		var r models.RegimeObservation
		var label string
		if err := rows.Scan(&r.Bucket, &label, &r.BatchTotalVol5m); err != nil {
			return nil, fmt.Errorf("scan regime row: %w", err)
		}
		r.Label = models.MarketRegime(label)
		out = append(out, r)
	}
	return out, rows.Err()
}
