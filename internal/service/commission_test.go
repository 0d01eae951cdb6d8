package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/workdeal-backend/internal/models"
)

func TestCalculateCommission(t *testing.T) {
	cfg := DefaultCommissionConfig()

	tests := []struct {
		name                string
		amount              float64
		tier                string
		hasFamilyPlan       bool
		hasReferralDiscount bool
		want                float64
	}{
		{
			name:   "базовая ставка 8%",
			amount: 100000,
			tier:   models.TierFree,
			want:   8000,
		},
		{
			name:          "семейный план: ноль без минимального порога",
			amount:        100000,
			tier:          models.TierFree,
			hasFamilyPlan: true,
			want:          0,
		},
		{
			name:   "super_pro 2%",
			amount: 100000,
			tier:   models.TierSuperPro,
			want:   2000,
		},
		{
			name:   "pro 3%",
			amount: 100000,
			tier:   models.TierPro,
			want:   3000,
		},
		{
			name:                "реферальная скидка 3%",
			amount:              100000,
			tier:                models.TierFree,
			hasReferralDiscount: true,
			want:                3000,
		},
		{
			name:   "минимальный порог поднимает мелкую комиссию",
			amount: 10000,
			tier:   models.TierFree,
			want:   1000,
		},
		{
			name:   "нулевая дельта не тарифицируется",
			amount: 0,
			tier:   models.TierFree,
			want:   0,
		},
		{
			name:   "отрицательная дельта не тарифицируется",
			amount: -5000,
			tier:   models.TierFree,
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateCommission(tt.amount, tt.tier, tt.hasFamilyPlan, tt.hasReferralDiscount, cfg)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommissionRate_FamilyPlanBeatsTier(t *testing.T) {
	cfg := DefaultCommissionConfig()

	// Семейный план приоритетнее любого тарифа и скидки.
	rate := CommissionRate(models.TierSuperPro, true, true, cfg)
	assert.Equal(t, float64(0), rate)
}

func TestCommissionRate_TierBeatsReferral(t *testing.T) {
	cfg := DefaultCommissionConfig()

	rate := CommissionRate(models.TierPro, false, true, cfg)
	assert.Equal(t, cfg.ProRate, rate)
}
