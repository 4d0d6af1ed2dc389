package common

import (
	"encoding/json"
	"log"
	"math"

	"cbs/src/db"
	"cbs/src/models"
	"cbs/src/types"
)

const (
	DefaultPlatformFeePct   = 10.0
	DefaultAthleteFeePct    = 0.0
	DefaultAthleteFlatCents = 0

	MaxFeePct           = 30.0
	MaxAthleteFlatCents = 2000

	commissionSettingKey   = "commission"
	commissionSettingGroup = "payments"
)

type CommissionSettings struct {
	PlatformFeePct   float64 `json:"platform_fee_pct"`
	AthleteFeePct    float64 `json:"athlete_fee_pct"`
	AthleteFlatCents int64   `json:"athlete_flat_cents"`
}

type Fees struct {
	PlatformCutCents      int64 `json:"platform_cut_cents"`
	AthleteSurchargeCents int64 `json:"athlete_surcharge_cents"`
}

func DefaultCommissionSettings() CommissionSettings {
	return CommissionSettings{
		PlatformFeePct:   DefaultPlatformFeePct,
		AthleteFeePct:    DefaultAthleteFeePct,
		AthleteFlatCents: DefaultAthleteFlatCents,
	}
}

// CurrentCommissionSettings reads the admin-managed settings row. Any failure
// falls back to the defaults so checkout and acceptance are never blocked on
// a missing or unreadable row.
func CurrentCommissionSettings() CommissionSettings {
	d := db.GetDb()
	var setting models.Setting
	if err := d.
		Model(&models.Setting{}).
		Where(&models.Setting{SettingKey: commissionSettingKey, Group: commissionSettingGroup}).
		First(&setting).
		Error; err != nil {
		return DefaultCommissionSettings()
	}
	raw, err := json.Marshal(setting.SettingValue)
	if err != nil {
		log.Printf("Error reading commission settings: %s\n", err.Error())
		return DefaultCommissionSettings()
	}
	settings := DefaultCommissionSettings()
	if err := json.Unmarshal(raw, &settings); err != nil {
		log.Printf("Error decoding commission settings: %s\n", err.Error())
		return DefaultCommissionSettings()
	}
	return settings
}

// SaveCommissionSettings clamps and persists the admin's values. Clamping
// happens here, at mutation time; reads trust what is stored.
func SaveCommissionSettings(s CommissionSettings) (CommissionSettings, error) {
	s = ClampCommissionSettings(s)
	d := db.GetDb()
	value := map[string]any{
		"platform_fee_pct":   s.PlatformFeePct,
		"athlete_fee_pct":    s.AthleteFeePct,
		"athlete_flat_cents": s.AthleteFlatCents,
	}
	var setting models.Setting
	err := d.
		Where(&models.Setting{SettingKey: commissionSettingKey, Group: commissionSettingGroup}).
		Assign(map[string]any{"setting_value": types.JSONB(value)}).
		FirstOrCreate(&setting).
		Error
	return s, err
}

func ClampCommissionSettings(s CommissionSettings) CommissionSettings {
	s.PlatformFeePct = clampFloat(s.PlatformFeePct, 0, MaxFeePct)
	s.AthleteFeePct = clampFloat(s.AthleteFeePct, 0, MaxFeePct)
	if s.AthleteFlatCents < 0 {
		s.AthleteFlatCents = 0
	}
	if s.AthleteFlatCents > MaxAthleteFlatCents {
		s.AthleteFlatCents = MaxAthleteFlatCents
	}
	return s
}

// ComputeFees is a pure function over the passed settings: the platform cut
// comes out of the coach's share, the surcharge is added on top of the price
// for the athlete.
func ComputeFees(basePriceCents int64, s CommissionSettings) Fees {
	platformCut := int64(math.Round(float64(basePriceCents) * s.PlatformFeePct / 100))
	surcharge := int64(math.Round(float64(basePriceCents)*s.AthleteFeePct/100)) + s.AthleteFlatCents
	return Fees{
		PlatformCutCents:      platformCut,
		AthleteSurchargeCents: surcharge,
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
