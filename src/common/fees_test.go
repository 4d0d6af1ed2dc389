package common

import (
	"testing"

	"cbs/src/models"
	"cbs/src/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeFeesDefaults(t *testing.T) {
	fees := ComputeFees(10000, DefaultCommissionSettings())
	assert.Equal(t, int64(1000), fees.PlatformCutCents)
	assert.Equal(t, int64(0), fees.AthleteSurchargeCents)
}

func TestComputeFeesRounding(t *testing.T) {
	settings := CommissionSettings{PlatformFeePct: 10, AthleteFeePct: 3, AthleteFlatCents: 150}
	// 3% of 9999 is 299.97, rounded to 300.
	fees := ComputeFees(9999, settings)
	assert.Equal(t, int64(1000), fees.PlatformCutCents)
	assert.Equal(t, int64(450), fees.AthleteSurchargeCents)
}

func TestComputeFeesZeroPrice(t *testing.T) {
	settings := CommissionSettings{PlatformFeePct: 10, AthleteFeePct: 5, AthleteFlatCents: 200}
	fees := ComputeFees(0, settings)
	assert.Equal(t, int64(0), fees.PlatformCutCents)
	assert.Equal(t, int64(200), fees.AthleteSurchargeCents)
}

func TestClampCommissionSettings(t *testing.T) {
	clamped := ClampCommissionSettings(CommissionSettings{
		PlatformFeePct:   95,
		AthleteFeePct:    -3,
		AthleteFlatCents: 99999,
	})
	assert.Equal(t, MaxFeePct, clamped.PlatformFeePct)
	assert.Equal(t, float64(0), clamped.AthleteFeePct)
	assert.Equal(t, int64(MaxAthleteFlatCents), clamped.AthleteFlatCents)
}

func TestCurrentCommissionSettingsMissingRow(t *testing.T) {
	newTestDB(t)
	settings := CurrentCommissionSettings()
	assert.Equal(t, DefaultCommissionSettings(), settings)
}

func TestCurrentCommissionSettingsMalformedRow(t *testing.T) {
	d := newTestDB(t)
	setting := models.Setting{
		SettingKey:   "commission",
		Group:        "payments",
		SettingValue: types.JSONB{"platform_fee_pct": "not-a-number"},
	}
	require.NoError(t, d.Create(&setting).Error)
	settings := CurrentCommissionSettings()
	assert.Equal(t, DefaultCommissionSettings(), settings)
}

func TestSaveAndReadCommissionSettings(t *testing.T) {
	newTestDB(t)
	saved, err := SaveCommissionSettings(CommissionSettings{
		PlatformFeePct:   15,
		AthleteFeePct:    2.5,
		AthleteFlatCents: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(15), saved.PlatformFeePct)

	settings := CurrentCommissionSettings()
	assert.Equal(t, float64(15), settings.PlatformFeePct)
	assert.Equal(t, 2.5, settings.AthleteFeePct)
	assert.Equal(t, int64(100), settings.AthleteFlatCents)
}

func TestSaveCommissionSettingsClampsBeforePersisting(t *testing.T) {
	newTestDB(t)
	saved, err := SaveCommissionSettings(CommissionSettings{
		PlatformFeePct:   80,
		AthleteFeePct:    40,
		AthleteFlatCents: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, MaxFeePct, saved.PlatformFeePct)
	assert.Equal(t, MaxFeePct, saved.AthleteFeePct)
	assert.Equal(t, int64(MaxAthleteFlatCents), saved.AthleteFlatCents)

	settings := CurrentCommissionSettings()
	assert.Equal(t, MaxFeePct, settings.PlatformFeePct)
}
