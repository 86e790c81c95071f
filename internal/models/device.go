package models

// Device statuses.
const (
	DeviceStatusActive   = "active"
	DeviceStatusInactive = "inactive"
)

// Device is a registered cash deposit machine.
type Device struct {
	BaseModel
	Code     string `gorm:"uniqueIndex;size:20;not null" json:"code"`
	Name     string `gorm:"size:100" json:"name"`
	APIURL   string `gorm:"size:255;not null" json:"api_url"` // base URL of the firmware HTTP interface
	Location string `gorm:"size:255" json:"location"`
	Status   string `gorm:"size:20;default:'active';index" json:"status"`
}

// IsActive reports whether the machine accepts deposits.
func (d *Device) IsActive() bool {
	return d.Status == DeviceStatusActive
}
