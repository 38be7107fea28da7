package model

import "time"

// PlanType はプレミアムプランの種別。
type PlanType string

const (
	PlanMonthly PlanType = "monthly"
	PlanYearly  PlanType = "yearly"
)

// CustomerStatusActive は有効な課金顧客を表すステータス。
const CustomerStatusActive = "active"

// Customer はユーザーと決済プロバイダー上の顧客の対応を表す。
type Customer struct {
	ID          string
	UserID      string
	CustomerID  string
	Email       string
	PlanType    PlanType
	Status      string
	Permissions []string
	CreatedAt   time.Time
}

// Membership はIdPのチームへの所属を表す。
type Membership struct {
	ID     string
	TeamID string
	UserID string
	Roles  []string
}
