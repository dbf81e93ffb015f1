package storage

import (
	"time"

	"gorm.io/datatypes"
)

// SettingsSnapshot is one saved version of the tariff settings. The latest
// snapshot is the current schedule.
type SettingsSnapshot struct {
	ID        uint           `json:"id" gorm:"primaryKey;column:id"`
	Payload   datatypes.JSON `json:"payload" gorm:"column:payload"`
	Source    string         `json:"source" gorm:"column:source"`
	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at;index"`
}

// Meter is a directory entry. PreviousIndexes holds the readings that prefill
// the next bill's previous-index fields, keyed by form field name.
type Meter struct {
	ID              string         `json:"id" gorm:"primaryKey;column:id"`
	Building        string         `json:"building" gorm:"column:building"`
	Label           string         `json:"label" gorm:"column:label"`
	Regime          string         `json:"regime" gorm:"column:regime"`
	PreviousIndexes datatypes.JSON `json:"previous_indexes,omitempty" gorm:"column:previous_indexes"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"column:updated_at"`
}

// PowerTier holds the subscribed power parameters of a medium-voltage meter.
type PowerTier struct {
	MeterID   string    `json:"meter_id" gorm:"primaryKey;column:meter_id"`
	PPH       float64   `json:"pph" gorm:"column:pph"`
	PPE       float64   `json:"ppe" gorm:"column:ppe"`
	PJ        float64   `json:"pj" gorm:"column:pj"`
	PS        float64   `json:"ps" gorm:"column:ps"`
	PI        float64   `json:"pi" gorm:"column:pi"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// Bill is a priced bill. Input keeps the engine input as submitted so the
// amount can be recomputed later.
type Bill struct {
	ID                    string         `json:"id" gorm:"primaryKey;column:id"`
	MeterID               string         `json:"meter_id" gorm:"column:meter_id;index"`
	Regime                string         `json:"regime" gorm:"column:regime"`
	Period                string         `json:"period" gorm:"column:period"`
	Input                 datatypes.JSON `json:"input" gorm:"column:input"`
	ConsumptionKWh        float64        `json:"consumption_kwh" gorm:"column:consumption_kwh"`
	AmountDue             float64        `json:"amount_due" gorm:"column:amount_due"`
	ConsumptionOverridden bool           `json:"consumption_overridden" gorm:"column:consumption_overridden"`
	AmountOverridden      bool           `json:"amount_overridden" gorm:"column:amount_overridden"`
	Rollover              bool           `json:"rollover" gorm:"column:rollover"`
	CreatedAt             time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt             time.Time      `json:"updated_at" gorm:"column:updated_at"`
}

// ScheduledJob records the last run of a background job.
type ScheduledJob struct {
	Name           string    `json:"name" gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `json:"last_run_at" gorm:"column:last_run_at"`
	LastDurationMs int64     `json:"last_duration_ms" gorm:"column:last_duration_ms"`
	LastSuccess    int       `json:"last_success" gorm:"column:last_success"`
	LastError      string    `json:"last_error" gorm:"column:last_error"`
}
