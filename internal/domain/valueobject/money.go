package valueobject

import (
	"fmt"

	"github.com/ignatzorin/workdeal-backend/internal/pkg/apperror"
)

// DefaultCurrency используется, когда вызывающий не указал валюту.
const DefaultCurrency = "KZT"

type Money struct {
	Amount   float64
	Currency string
}

func NewMoney(amount float64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, apperror.New(apperror.ErrCodeValidation, "сумма не может быть отрицательной")
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: amount, Currency: currency}, nil
}

func (m Money) String() string {
	return fmt.Sprintf("%.2f %s", m.Amount, m.Currency)
}

// Allocation — доля одного исполнителя в бюджете задания.
type Allocation struct {
	Amount     float64
	Percentage float64
}

// NewAllocation считает процент доли от общего бюджета.
func NewAllocation(amount, jobPrice float64) (Allocation, error) {
	if amount < 0 {
		return Allocation{}, apperror.New(apperror.ErrCodeValidation, "доля не может быть отрицательной")
	}
	if jobPrice <= 0 {
		return Allocation{}, apperror.New(apperror.ErrCodeValidation, "бюджет задания должен быть положительным")
	}
	return Allocation{
		Amount:     amount,
		Percentage: amount / jobPrice * 100,
	}, nil
}
