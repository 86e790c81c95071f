package models

// Denomination mirrors the note catalog reported by the machines, kept
// server-side so reports render without a device round trip.
type Denomination struct {
	BaseModel
	Currency       string  `gorm:"size:20;not null;index:idx_denom_key,unique" json:"currency"`
	DenominationID int     `gorm:"not null;index:idx_denom_key,unique" json:"denomination_id"`
	Description    string  `gorm:"size:100" json:"description"`
	Value          float64 `gorm:"not null" json:"value"`
	Active         bool    `gorm:"default:true" json:"active"`
}
