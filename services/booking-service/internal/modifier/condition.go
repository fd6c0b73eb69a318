package modifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

var ErrInvalidCondition = errors.New("invalid modifier condition")

// Condition is the decoded condition_value of a modifier, one case per condition type.
type Condition interface {
	Matches(c Context) bool
	Type() model.ConditionType
}

// Context describes the customer a booking is evaluated for.
type Context struct {
	// CustomerTags maps tag name to an optional value ("" when the tag carries none).
	CustomerTags map[string]string
	CustomerAge  *int
	IsFirstVisit bool
}

type TagCondition struct {
	Tag   string
	Value string // optional
}

func (c TagCondition) Type() model.ConditionType { return model.ConditionCustomerTag }

func (c TagCondition) Matches(ctx Context) bool {
	v, ok := ctx.CustomerTags[c.Tag]
	if !ok {
		return false
	}
	return c.Value == "" || c.Value == v
}

// AgeRangeCondition bounds are inclusive; a nil bound is open on that side.
type AgeRangeCondition struct {
	Min *int
	Max *int
}

func (c AgeRangeCondition) Type() model.ConditionType { return model.ConditionAgeRange }

func (c AgeRangeCondition) Matches(ctx Context) bool {
	if ctx.CustomerAge == nil {
		return false
	}
	age := *ctx.CustomerAge
	if c.Min != nil && age < *c.Min {
		return false
	}
	if c.Max != nil && age > *c.Max {
		return false
	}
	return true
}

type FirstVisitCondition struct{}

func (FirstVisitCondition) Type() model.ConditionType { return model.ConditionFirstVisit }

func (FirstVisitCondition) Matches(ctx Context) bool { return ctx.IsFirstVisit }

// ManualCondition never auto-matches; staff apply it explicitly.
type ManualCondition struct{}

func (ManualCondition) Type() model.ConditionType { return model.ConditionManual }

func (ManualCondition) Matches(Context) bool { return false }

// invalidCondition stands in for a malformed condition_value and never matches.
type invalidCondition struct {
	typ model.ConditionType
}

func (c invalidCondition) Type() model.ConditionType { return c.typ }

func (invalidCondition) Matches(Context) bool { return false }

type tagPayload struct {
	Tag   string  `json:"tag"`
	Value *string `json:"value"`
}

type agePayload struct {
	MinAge *int `json:"min_age"`
	MaxAge *int `json:"max_age"`
}

// DecodeCondition parses raw for the given condition type. Errors wrap ErrInvalidCondition.
func DecodeCondition(typ model.ConditionType, raw json.RawMessage) (Condition, error) {
	switch typ {
	case model.ConditionCustomerTag:
		var p tagPayload
		if err := decodeStrict(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: customer_tag: %v", ErrInvalidCondition, err)
		}
		tag := strings.TrimSpace(p.Tag)
		if tag == "" {
			return nil, fmt.Errorf("%w: customer_tag: tag is required", ErrInvalidCondition)
		}
		c := TagCondition{Tag: tag}
		if p.Value != nil {
			c.Value = *p.Value
		}
		return c, nil
	case model.ConditionAgeRange:
		var p agePayload
		if err := decodeStrict(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: age_range: %v", ErrInvalidCondition, err)
		}
		if p.MinAge != nil && *p.MinAge < 0 || p.MaxAge != nil && *p.MaxAge < 0 {
			return nil, fmt.Errorf("%w: age_range: negative bound", ErrInvalidCondition)
		}
		if p.MinAge != nil && p.MaxAge != nil && *p.MinAge > *p.MaxAge {
			return nil, fmt.Errorf("%w: age_range: min_age %d > max_age %d", ErrInvalidCondition, *p.MinAge, *p.MaxAge)
		}
		return AgeRangeCondition{Min: p.MinAge, Max: p.MaxAge}, nil
	case model.ConditionFirstVisit:
		return FirstVisitCondition{}, nil
	case model.ConditionManual:
		return ManualCondition{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown condition type %q", ErrInvalidCondition, typ)
	}
}

func decodeStrict(raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errors.New("condition_value is required")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
