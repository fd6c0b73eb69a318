package modifier

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

func row(id string, typ model.ConditionType, value string, dur int, price string, auto bool) model.ServiceModifier {
	return model.ServiceModifier{
		ID:               id,
		ServiceID:        "svc",
		ConditionType:    typ,
		ConditionValue:   json.RawMessage(value),
		DurationModifier: dur,
		PriceModifier:    decimal.RequireFromString(price),
		AutoApply:        auto,
		IsActive:         true,
	}
}

func age(v int) *int { return &v }

func TestDecodeCondition(t *testing.T) {
	c, err := DecodeCondition(model.ConditionCustomerTag, json.RawMessage(`{"tag":"vip","value":"gold"}`))
	require.NoError(t, err)
	assert.Equal(t, TagCondition{Tag: "vip", Value: "gold"}, c)

	c, err = DecodeCondition(model.ConditionAgeRange, json.RawMessage(`{"min_age":65}`))
	require.NoError(t, err)
	ar := c.(AgeRangeCondition)
	require.NotNil(t, ar.Min)
	assert.Nil(t, ar.Max)

	c, err = DecodeCondition(model.ConditionFirstVisit, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ConditionFirstVisit, c.Type())

	bad := []struct {
		typ model.ConditionType
		raw string
	}{
		{model.ConditionCustomerTag, `{"value":"x"}`},
		{model.ConditionCustomerTag, `"vip"`},
		{model.ConditionCustomerTag, ``},
		{model.ConditionAgeRange, `{"min_age":30,"max_age":20}`},
		{model.ConditionAgeRange, `{"min":3}`},
		{model.ConditionType("weather"), `{}`},
	}
	for _, b := range bad {
		_, err := DecodeCondition(b.typ, json.RawMessage(b.raw))
		assert.True(t, errors.Is(err, ErrInvalidCondition), "%s %s: %v", b.typ, b.raw, err)
	}
}

func TestConditionMatching(t *testing.T) {
	tag := TagCondition{Tag: "vip"}
	assert.True(t, tag.Matches(Context{CustomerTags: map[string]string{"vip": ""}}))
	assert.False(t, tag.Matches(Context{}))

	gold := TagCondition{Tag: "vip", Value: "gold"}
	assert.True(t, gold.Matches(Context{CustomerTags: map[string]string{"vip": "gold"}}))
	assert.False(t, gold.Matches(Context{CustomerTags: map[string]string{"vip": "silver"}}))

	senior := AgeRangeCondition{Min: age(65)}
	assert.True(t, senior.Matches(Context{CustomerAge: age(65)}))
	assert.False(t, senior.Matches(Context{CustomerAge: age(64)}))
	assert.False(t, senior.Matches(Context{}), "unknown age never matches")

	child := AgeRangeCondition{Max: age(12)}
	assert.True(t, child.Matches(Context{CustomerAge: age(0)}))

	assert.True(t, FirstVisitCondition{}.Matches(Context{IsFirstVisit: true}))
	assert.False(t, ManualCondition{}.Matches(Context{IsFirstVisit: true}))
}

func TestEvaluateSumsMatchingModifiers(t *testing.T) {
	mods := Load([]model.ServiceModifier{
		row("m1", model.ConditionFirstVisit, `{}`, 20, "5.00", true),
		row("m2", model.ConditionCustomerTag, `{"tag":"long-hair"}`, 10, "7.50", true),
	})
	ctx := Context{IsFirstVisit: true, CustomerTags: map[string]string{"long-hair": ""}}

	res := Evaluate(30, decimal.RequireFromString("40"), mods, ctx)
	assert.Equal(t, 60, res.EffectiveDuration)
	assert.True(t, res.EffectivePrice.Equal(decimal.RequireFromString("52.50")), res.EffectivePrice.String())
	require.Len(t, res.Applied, 2)
	assert.Equal(t, "m1", res.Applied[0].ModifierID)
}

func TestEvaluateSkipsInactiveAndNonAuto(t *testing.T) {
	inactive := row("m1", model.ConditionFirstVisit, `{}`, 20, "5", true)
	inactive.IsActive = false
	mods := Load([]model.ServiceModifier{
		inactive,
		row("m2", model.ConditionFirstVisit, `{}`, 15, "5", false),
	})
	res := Evaluate(30, decimal.NewFromInt(40), mods, Context{IsFirstVisit: true})
	assert.Equal(t, 30, res.EffectiveDuration)
	assert.Empty(t, res.Applied)
}

func TestEvaluateIsOrderIndependent(t *testing.T) {
	rows := []model.ServiceModifier{
		row("a", model.ConditionFirstVisit, `{}`, 25, "10", true),
		row("b", model.ConditionFirstVisit, `{}`, -40, "-3.25", true),
		row("c", model.ConditionAgeRange, `{"max_age":12}`, -10, "-20", true),
	}
	ctx := Context{IsFirstVisit: true, CustomerAge: age(8)}
	base := decimal.RequireFromString("30")

	forward := Evaluate(45, base, Load(rows), ctx)
	reversed := Evaluate(45, base, Load([]model.ServiceModifier{rows[2], rows[1], rows[0]}), ctx)
	swapped := Evaluate(45, base, Load([]model.ServiceModifier{rows[1], rows[0], rows[2]}), ctx)

	for _, other := range []Result{reversed, swapped} {
		assert.Equal(t, forward.EffectiveDuration, other.EffectiveDuration)
		assert.True(t, forward.EffectivePrice.Equal(other.EffectivePrice))
		assert.Equal(t, forward.Applied, other.Applied)
	}
}

func TestEvaluateClamps(t *testing.T) {
	mods := Load([]model.ServiceModifier{
		row("m1", model.ConditionFirstVisit, `{}`, -90, "-100", true),
	})
	res := Evaluate(30, decimal.NewFromInt(25), mods, Context{IsFirstVisit: true})
	assert.Equal(t, 1, res.EffectiveDuration)
	assert.True(t, res.EffectivePrice.IsZero())
}

func TestEvaluateFailsClosedOnMalformedCondition(t *testing.T) {
	mods := Load([]model.ServiceModifier{
		row("bad", model.ConditionCustomerTag, `{"tag":42}`, 30, "10", true),
		row("ok", model.ConditionFirstVisit, `{}`, 5, "1", true),
	})
	require.Error(t, mods[0].DecodeErr)
	assert.True(t, errors.Is(mods[0].DecodeErr, ErrInvalidCondition))

	res := Evaluate(30, decimal.NewFromInt(10), mods, Context{IsFirstVisit: true, CustomerTags: map[string]string{"42": ""}})
	assert.Equal(t, 35, res.EffectiveDuration)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, "ok", res.Applied[0].ModifierID)
}

func TestEvaluateManualModifiers(t *testing.T) {
	mods := Load([]model.ServiceModifier{
		row("manual-1", model.ConditionManual, `{}`, 15, "12", true),
		row("manual-2", model.ConditionManual, `{}`, 10, "8", false),
	})

	res := Evaluate(30, decimal.NewFromInt(20), mods, Context{})
	assert.Equal(t, 30, res.EffectiveDuration)
	require.Len(t, res.Manual, 2)

	res = Evaluate(30, decimal.NewFromInt(20), mods, Context{}, "manual-2")
	assert.Equal(t, 40, res.EffectiveDuration)
	assert.True(t, res.EffectivePrice.Equal(decimal.NewFromInt(28)))
	require.Len(t, res.Manual, 1)
	assert.Equal(t, "manual-1", res.Manual[0].ID)
}
