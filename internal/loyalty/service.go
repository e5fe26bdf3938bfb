package loyalty

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/docledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetClient(ctx context.Context, companyID, clientID int64) (Client, error)
	ListMovements(ctx context.Context, companyID, clientID int64, limit int) ([]Movement, error)
	CompaniesWithDuePoints(ctx context.Context, now time.Time) ([]int64, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertClient(ctx context.Context, client Client) (int64, error)
	LockClient(ctx context.Context, companyID, clientID int64) (Client, error)
	LockClients(ctx context.Context, companyID int64, clientIDs []int64) (map[int64]Client, error)
	DueClientIDs(ctx context.Context, companyID int64, now time.Time) ([]int64, error)
	DueGains(ctx context.Context, companyID int64, now time.Time) ([]Movement, error)
	OpenGains(ctx context.Context, companyID, clientID int64) ([]Movement, error)
	InsertMovement(ctx context.Context, mv Movement) (int64, error)
	SetRemaining(ctx context.Context, companyID int64, remaining map[int64]int64) error
	UpdateBalance(ctx context.Context, companyID, clientID, balance int64) error
	SumPoints(ctx context.Context, companyID, clientID int64) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service maintains loyalty balances.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// CreateClient registers a loyalty client with an empty balance.
func (s *Service) CreateClient(ctx context.Context, companyID int64, name string) (Client, error) {
	name = strings.TrimSpace(name)
	if companyID == 0 || name == "" {
		return Client{}, fmt.Errorf("%w: company and name required", shared.ErrValidation)
	}
	client := Client{CompanyID: companyID, Name: name, UpdatedAt: s.now().UTC()}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertClient(ctx, client)
		if err != nil {
			return err
		}
		client.ID = id
		return nil
	})
	if err != nil {
		return Client{}, err
	}
	return client, nil
}

// GetClient loads a client.
func (s *Service) GetClient(ctx context.Context, companyID, clientID int64) (Client, error) {
	return s.repo.GetClient(ctx, companyID, clientID)
}

// ListMovements returns a client's ledger, newest first.
func (s *Service) ListMovements(ctx context.Context, companyID, clientID int64, limit int) ([]Movement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListMovements(ctx, companyID, clientID, limit)
}

// GrantPoints appends a GAIN and raises the client's balance. A nil expiresAt
// grants points that never expire; otherwise the expiry must be in the future.
func (s *Service) GrantPoints(ctx context.Context, companyID, clientID, points int64, expiresAt *time.Time, description string) (Movement, Client, error) {
	if points <= 0 {
		return Movement{}, Client{}, fmt.Errorf("%w: points must be greater than zero", shared.ErrInvalidAmount)
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return Movement{}, Client{}, fmt.Errorf("%w: expires_at must be in the future", shared.ErrValidation)
	}
	mv := Movement{
		CompanyID:   companyID,
		ClientID:    clientID,
		Type:        MovementGain,
		Points:      points,
		Remaining:   points,
		ExpiresAt:   expiresAt,
		Description: strings.TrimSpace(description),
	}
	return s.append(ctx, mv, nil)
}

// RedeemPoints spends points, consuming open gains soonest-expiring first.
func (s *Service) RedeemPoints(ctx context.Context, companyID, clientID, points int64, description string) (Movement, Client, error) {
	if points <= 0 {
		return Movement{}, Client{}, fmt.Errorf("%w: points must be greater than zero", shared.ErrInvalidAmount)
	}
	mv := Movement{
		CompanyID:   companyID,
		ClientID:    clientID,
		Type:        MovementRedemption,
		Points:      -points,
		Description: strings.TrimSpace(description),
	}
	return s.append(ctx, mv, shared.ErrInsufficientPoints)
}

// AdjustPoints records a signed manual correction. Negative adjustments
// consume open gains like a redemption and may not exceed the balance.
func (s *Service) AdjustPoints(ctx context.Context, companyID, clientID, points int64, description string) (Movement, Client, error) {
	if points == 0 {
		return Movement{}, Client{}, fmt.Errorf("%w: adjustment must be non zero", shared.ErrInvalidAmount)
	}
	if strings.TrimSpace(description) == "" {
		return Movement{}, Client{}, fmt.Errorf("%w: adjustment requires a description", shared.ErrValidation)
	}
	mv := Movement{
		CompanyID:   companyID,
		ClientID:    clientID,
		Type:        MovementAdjustment,
		Points:      points,
		Description: strings.TrimSpace(description),
	}
	return s.append(ctx, mv, shared.ErrInsufficientPoints)
}

func (s *Service) append(ctx context.Context, mv Movement, shortfall error) (Movement, Client, error) {
	if mv.CompanyID == 0 || mv.ClientID == 0 {
		return Movement{}, Client{}, fmt.Errorf("%w: company and client required", shared.ErrValidation)
	}
	var client Client
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockClient(ctx, mv.CompanyID, mv.ClientID)
		if err != nil {
			return err
		}
		balance := current.PointsBalance + mv.Points
		if balance < 0 {
			return fmt.Errorf("%w: balance %d, requested %d", shortfall, current.PointsBalance, -mv.Points)
		}
		if mv.Points < 0 {
			gains, err := tx.OpenGains(ctx, mv.CompanyID, mv.ClientID)
			if err != nil {
				return err
			}
			if err := tx.SetRemaining(ctx, mv.CompanyID, PlanConsumption(gains, -mv.Points)); err != nil {
				return err
			}
		}
		mv.CreatedAt = s.now().UTC()
		id, err := tx.InsertMovement(ctx, mv)
		if err != nil {
			return fmt.Errorf("insert loyalty movement: %w", err)
		}
		mv.ID = id
		if err := tx.UpdateBalance(ctx, mv.CompanyID, mv.ClientID, balance); err != nil {
			return err
		}
		current.PointsBalance = balance
		client = current
		return nil
	})
	if err != nil {
		return Movement{}, Client{}, err
	}
	s.record(ctx, mv.CompanyID, "loyalty:"+strings.ToLower(string(mv.Type)), mv.ClientID, map[string]any{
		"movement_id": mv.ID,
		"points":      mv.Points,
		"balance":     client.PointsBalance,
	})
	return mv, client, nil
}

// ExpireDuePoints expires every due GAIN of the company in one transaction.
// Each client loses at most its current balance and gets a single EXPIRATION
// entry; every processed gain is closed so a second run changes nothing.
func (s *Service) ExpireDuePoints(ctx context.Context, companyID int64, now time.Time) (SweepResult, error) {
	if companyID == 0 {
		return SweepResult{}, fmt.Errorf("%w: company required", shared.ErrValidation)
	}
	result := SweepResult{CompanyID: companyID}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		clientIDs, err := tx.DueClientIDs(ctx, companyID, now)
		if err != nil {
			return err
		}
		if len(clientIDs) == 0 {
			return nil
		}
		// clients before gains, the order every other write path uses
		clients, err := tx.LockClients(ctx, companyID, clientIDs)
		if err != nil {
			return err
		}
		gains, err := tx.DueGains(ctx, companyID, now)
		if err != nil {
			return err
		}
		balances := make(map[int64]int64, len(clients))
		for id, c := range clients {
			balances[id] = c.PointsBalance
		}
		closed := make(map[int64]int64)
		for _, exp := range PlanExpiration(gains, balances, now) {
			for _, id := range exp.GainIDs {
				closed[id] = 0
			}
			if exp.Points == 0 {
				continue
			}
			if _, ok := clients[exp.ClientID]; !ok {
				return fmt.Errorf("loyalty client %d: %w", exp.ClientID, shared.ErrNotFound)
			}
			mv := Movement{
				CompanyID:   companyID,
				ClientID:    exp.ClientID,
				Type:        MovementExpiration,
				Points:      -exp.Points,
				Description: fmt.Sprintf("expiration of %d points", exp.Points),
				CreatedAt:   now,
			}
			if _, err := tx.InsertMovement(ctx, mv); err != nil {
				return fmt.Errorf("insert expiration: %w", err)
			}
			if err := tx.UpdateBalance(ctx, companyID, exp.ClientID, balances[exp.ClientID]-exp.Points); err != nil {
				return err
			}
			result.ClientsExpired++
			result.PointsExpired += exp.Points
		}
		result.GainsClosed = len(closed)
		return tx.SetRemaining(ctx, companyID, closed)
	})
	if err != nil {
		return SweepResult{CompanyID: companyID}, err
	}
	s.logger.Info("loyalty points expired",
		slog.Int64("company_id", companyID),
		slog.Int("clients", result.ClientsExpired),
		slog.Int64("points", result.PointsExpired),
		slog.Int("gains_closed", result.GainsClosed))
	if result.ClientsExpired > 0 {
		s.record(ctx, companyID, "loyalty:expire", 0, map[string]any{
			"clients": result.ClientsExpired,
			"points":  result.PointsExpired,
		})
	}
	return result, nil
}

// CompaniesWithDuePoints lists tenants that have gains due at now.
func (s *Service) CompaniesWithDuePoints(ctx context.Context, now time.Time) ([]int64, error) {
	return s.repo.CompaniesWithDuePoints(ctx, now)
}

// RecomputeBalance resets the cached balance to the ledger sum. It is a repair
// tool; regular operations keep the cache current on their own.
func (s *Service) RecomputeBalance(ctx context.Context, companyID, clientID int64) (Recount, error) {
	var out Recount
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		client, err := tx.LockClient(ctx, companyID, clientID)
		if err != nil {
			return err
		}
		sum, err := tx.SumPoints(ctx, companyID, clientID)
		if err != nil {
			return err
		}
		out = Recount{ClientID: clientID, Cached: client.PointsBalance, Ledger: sum}
		if sum == client.PointsBalance {
			return nil
		}
		if sum < 0 {
			return fmt.Errorf("loyalty ledger of client %d sums to %d", clientID, sum)
		}
		return tx.UpdateBalance(ctx, companyID, clientID, sum)
	})
	if err != nil {
		return Recount{}, err
	}
	if out.Cached != out.Ledger {
		s.logger.Warn("loyalty balance repaired",
			slog.Int64("company_id", companyID),
			slog.Int64("client_id", clientID),
			slog.Int64("cached", out.Cached),
			slog.Int64("ledger", out.Ledger))
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, companyID int64, action string, clientID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entity, entityID := "loyalty_client", strconv.FormatInt(clientID, 10)
	if clientID == 0 {
		entity, entityID = "loyalty_sweep", strconv.FormatInt(companyID, 10)
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Meta:      meta,
	})
	if err != nil {
		s.logger.Warn("audit loyalty", slog.String("action", action), slog.Any("error", err))
	}
}
