package modifier

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

// Modifier is a ServiceModifier with its condition decoded once at load time.
type Modifier struct {
	ID               string
	ServiceID        string
	Name             string
	Condition        Condition
	DurationModifier int
	PriceModifier    decimal.Decimal
	AutoApply        bool
	IsActive         bool
	// DecodeErr is set when the stored condition_value was malformed.
	DecodeErr error
}

// Load decodes every row. Malformed conditions do not fail the load: the modifier keeps
// DecodeErr and a condition that never matches.
func Load(rows []model.ServiceModifier) []Modifier {
	out := make([]Modifier, 0, len(rows))
	for _, r := range rows {
		m := Modifier{
			ID:               r.ID,
			ServiceID:        r.ServiceID,
			Name:             r.Name,
			DurationModifier: r.DurationModifier,
			PriceModifier:    r.PriceModifier,
			AutoApply:        r.AutoApply,
			IsActive:         r.IsActive,
		}
		cond, err := DecodeCondition(r.ConditionType, r.ConditionValue)
		if err != nil {
			cond = invalidCondition{typ: r.ConditionType}
			m.DecodeErr = err
		}
		m.Condition = cond
		out = append(out, m)
	}
	return out
}

type Applied struct {
	ModifierID string
	Duration   int
	Price      decimal.Decimal
}

type Result struct {
	BaseDuration      int
	BasePrice         decimal.Decimal
	EffectiveDuration int
	EffectivePrice    decimal.Decimal
	Applied           []Applied
	// Manual lists active manual modifiers that were not applied, for staff selection.
	Manual []Modifier
}

// Evaluate applies every active auto-apply modifier whose condition matches, plus any
// active modifier named in manualIDs. Deltas are summed; duration is clamped to at
// least 1 minute and price to at least zero. Applied is sorted by modifier id so the
// result does not depend on input order.
func Evaluate(baseDuration int, basePrice decimal.Decimal, mods []Modifier, ctx Context, manualIDs ...string) Result {
	selected := make(map[string]bool, len(manualIDs))
	for _, id := range manualIDs {
		selected[id] = true
	}

	res := Result{BaseDuration: baseDuration, BasePrice: basePrice}
	durationSum := 0
	priceSum := decimal.Zero
	for _, m := range mods {
		if !m.IsActive {
			continue
		}
		apply := selected[m.ID] || (m.AutoApply && m.Condition != nil && m.Condition.Matches(ctx))
		if !apply {
			if m.Condition != nil && m.Condition.Type() == model.ConditionManual && m.DecodeErr == nil {
				res.Manual = append(res.Manual, m)
			}
			continue
		}
		durationSum += m.DurationModifier
		priceSum = priceSum.Add(m.PriceModifier)
		res.Applied = append(res.Applied, Applied{ModifierID: m.ID, Duration: m.DurationModifier, Price: m.PriceModifier})
	}

	sort.Slice(res.Applied, func(i, j int) bool { return res.Applied[i].ModifierID < res.Applied[j].ModifierID })
	sort.Slice(res.Manual, func(i, j int) bool { return res.Manual[i].ID < res.Manual[j].ID })

	res.EffectiveDuration = baseDuration + durationSum
	if res.EffectiveDuration < 1 {
		res.EffectiveDuration = 1
	}
	res.EffectivePrice = basePrice.Add(priceSum)
	if res.EffectivePrice.IsNegative() {
		res.EffectivePrice = decimal.Zero
	}
	return res
}
