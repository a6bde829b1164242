package entity

import "time"

// CreditAccount 用户生成额度账户
type CreditAccount struct {
	UserID    string    `json:"user_id" gorm:"type:varchar(64);primaryKey"`
	Plan      string    `json:"plan" gorm:"type:varchar(32);not null;default:free"`
	Remaining int       `json:"remaining" gorm:"not null;default:0"`
	Unlimited bool      `json:"unlimited" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 表名
func (CreditAccount) TableName() string {
	return "credit_accounts"
}

// CanSpend 是否还能消耗 n 个额度
func (a *CreditAccount) CanSpend(n int) bool {
	return a.Unlimited || a.Remaining >= n
}
