package models

// Concept prefixes. The concepts table is a small catalog keyed by
// (prefix, sequence); each prefix groups one kind of entry.
const (
	ConceptPrefixCurrency     = 2 // accepted deposit currencies
	ConceptPrefixBankEndpoint = 5 // bank notification endpoint descriptors
)

// Concept is a catalog entry (currency, bank endpoint descriptor, ...).
type Concept struct {
	BaseModel
	Prefix       int    `gorm:"not null;index:idx_concept_key,unique" json:"prefix"`
	Sequence     int    `gorm:"not null;index:idx_concept_key,unique" json:"sequence"`
	Description  string `gorm:"size:255" json:"description"`
	Abbreviation string `gorm:"size:20" json:"abbreviation"` // for currencies: BOB, USD
	Mark         string `gorm:"size:50" json:"mark"`         // free-form qualifier, endpoint path for bank entries
}

// IsReserve reports whether the entry is the reserve slot of its prefix.
// Deposits against the reserve currency are audited against the bank API.
func (c *Concept) IsReserve() bool {
	return c.Sequence == 1
}
