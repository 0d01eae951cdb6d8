package service

import (
	"github.com/ignatzorin/workdeal-backend/internal/models"
)

// CommissionConfig задаёт ставки комиссии платформы и минимальный порог.
// Значения приходят из конфигурации, а не зашиты по месту вызова.
type CommissionConfig struct {
	DefaultRate  float64
	ProRate      float64
	SuperProRate float64
	ReferralRate float64
	Minimum      float64
}

// DefaultCommissionConfig возвращает стандартные ставки:
// семейный план 0%, super-pro 2%, pro 3%, реферальная скидка 3%, базовая 8%;
// минимальная комиссия 1000.
func DefaultCommissionConfig() CommissionConfig {
	return CommissionConfig{
		DefaultRate:  0.08,
		ProRate:      0.03,
		SuperProRate: 0.02,
		ReferralRate: 0.03,
		Minimum:      1000,
	}
}

// CommissionRate возвращает ставку комиссии для плательщика.
// Приоритет: семейный план, тариф, реферальная скидка, базовая ставка.
func CommissionRate(tier string, hasFamilyPlan, hasReferralDiscount bool, cfg CommissionConfig) float64 {
	switch {
	case hasFamilyPlan:
		return 0
	case tier == models.TierSuperPro:
		return cfg.SuperProRate
	case tier == models.TierPro:
		return cfg.ProRate
	case hasReferralDiscount:
		return cfg.ReferralRate
	default:
		return cfg.DefaultRate
	}
}

// CalculateCommission считает комиссию платформы на дельту суммы.
// Вызывающий всегда передаёт только дельту, которая фактически тарифицируется
// (новая цена минус уже оплаченный максимум), чтобы не брать комиссию с уже
// оплаченной части повторно. К положительной комиссии применяется
// минимальный порог; нулевая ставка порогом не поднимается.
func CalculateCommission(amountDelta float64, tier string, hasFamilyPlan, hasReferralDiscount bool, cfg CommissionConfig) float64 {
	if amountDelta <= 0 {
		return 0
	}

	rate := CommissionRate(tier, hasFamilyPlan, hasReferralDiscount, cfg)
	if rate == 0 {
		return 0
	}

	commission := amountDelta * rate
	if commission < cfg.Minimum {
		commission = cfg.Minimum
	}
	return commission
}
