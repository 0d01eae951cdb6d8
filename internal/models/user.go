package models

import (
	"time"

	"github.com/google/uuid"
)

// User — участник платформы: клиент, исполнитель или администратор.
// Тариф и скидки определяют ставку комиссии при расчёте платежей.
type User struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	Email               string    `db:"email" json:"email"`
	PasswordHash        string    `db:"password_hash" json:"-"`
	Name                string    `db:"name" json:"name"`
	Role                string    `db:"role" json:"role"`
	Tier                string    `db:"tier" json:"tier"`
	HasFamilyPlan       bool      `db:"has_family_plan" json:"has_family_plan"`
	HasReferralDiscount bool      `db:"has_referral_discount" json:"has_referral_discount"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// IsAdmin сообщает, может ли пользователь выполнять админ-действия
// над платежами и спорами.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
