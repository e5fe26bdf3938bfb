package loyalty

import "time"

// MovementType enumerates loyalty ledger entries.
type MovementType string

const (
	MovementGain       MovementType = "GAIN"
	MovementRedemption MovementType = "REDEMPTION"
	MovementExpiration MovementType = "EXPIRATION"
	MovementAdjustment MovementType = "ADJUSTMENT"
)

// Client holds a cached points balance, kept equal to the sum of its movements.
type Client struct {
	ID            int64
	CompanyID     int64
	Name          string
	PointsBalance int64
	UpdatedAt     time.Time
}

// Movement is an append-only loyalty ledger entry. Points is signed.
// Remaining applies to GAIN entries only: the part of the grant that is still
// held and will expire at ExpiresAt.
type Movement struct {
	ID          int64
	CompanyID   int64
	ClientID    int64
	Type        MovementType
	Points      int64
	ExpiresAt   *time.Time
	Remaining   int64
	Description string
	CreatedAt   time.Time
}

// Due reports whether a GAIN has unexpired remaining points due at now.
func (m Movement) Due(now time.Time) bool {
	return m.Type == MovementGain && m.Remaining > 0 && m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// Expiration is the planned EXPIRATION for one client.
type Expiration struct {
	ClientID int64
	// Pending is the sum of Remaining over the client's due gains.
	Pending int64
	// Points actually expired: min(Pending, balance).
	Points int64
	// GainIDs lists the due gains closed by this sweep.
	GainIDs []int64
}

// SweepResult summarises one ExpireDuePoints run.
type SweepResult struct {
	CompanyID      int64
	ClientsExpired int
	PointsExpired  int64
	GainsClosed    int
}

// Recount is the outcome of RecomputeBalance.
type Recount struct {
	ClientID int64
	Cached   int64
	Ledger   int64
}
