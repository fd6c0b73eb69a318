package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type Shop struct {
	ID       string
	Name     string
	Timezone string
	IsActive bool
}

type Service struct {
	ID              string
	ShopID          string
	Name            string
	DurationMinutes int
	Price           decimal.Decimal
	IsActive        bool
}

type ConditionType string

const (
	ConditionCustomerTag ConditionType = "customer_tag"
	ConditionAgeRange    ConditionType = "age_range"
	ConditionFirstVisit  ConditionType = "first_visit"
	ConditionManual      ConditionType = "manual"
)

// ServiceModifier is the stored row; ConditionValue is decoded by the modifier package.
type ServiceModifier struct {
	ID               string
	ServiceID        string
	Name             string
	ConditionType    ConditionType
	ConditionValue   json.RawMessage
	DurationModifier int
	PriceModifier    decimal.Decimal
	AutoApply        bool
	IsActive         bool
}
