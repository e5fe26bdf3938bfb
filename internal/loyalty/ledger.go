package loyalty

import (
	"sort"
	"time"
)

// PlanExpiration groups due gains per client and caps each client's expiry at
// the balance they hold. Clients whose capped amount is zero get no movement
// but their gains are still closed. balances must contain every client that
// appears in gains.
func PlanExpiration(gains []Movement, balances map[int64]int64, now time.Time) []Expiration {
	byClient := make(map[int64]*Expiration)
	for _, g := range gains {
		if !g.Due(now) {
			continue
		}
		exp, ok := byClient[g.ClientID]
		if !ok {
			exp = &Expiration{ClientID: g.ClientID}
			byClient[g.ClientID] = exp
		}
		exp.Pending += g.Remaining
		exp.GainIDs = append(exp.GainIDs, g.ID)
	}
	out := make([]Expiration, 0, len(byClient))
	for clientID, exp := range byClient {
		exp.Points = min(exp.Pending, max(balances[clientID], 0))
		out = append(out, *exp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// PlanConsumption takes points from open gains, soonest expiry first, and
// returns the new Remaining per touched gain. Gains without an expiry are used
// last. Consumption stops once the open gains are exhausted.
func PlanConsumption(gains []Movement, points int64) map[int64]int64 {
	open := make([]Movement, 0, len(gains))
	for _, g := range gains {
		if g.Type == MovementGain && g.Remaining > 0 {
			open = append(open, g)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		a, b := open[i].ExpiresAt, open[j].ExpiresAt
		switch {
		case a == nil && b == nil:
			return open[i].ID < open[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return open[i].ID < open[j].ID
		}
		return a.Before(*b)
	})
	updates := make(map[int64]int64)
	for _, g := range open {
		if points <= 0 {
			break
		}
		take := min(g.Remaining, points)
		updates[g.ID] = g.Remaining - take
		points -= take
	}
	return updates
}

// Sum returns the signed total of a movement history.
func Sum(movements []Movement) int64 {
	var total int64
	for _, m := range movements {
		total += m.Points
	}
	return total
}
