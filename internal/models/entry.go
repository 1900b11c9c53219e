package models

import (
	"errors"
	"time"
)

// Configuration entry domains.
const (
	DomainContracts = "contracts"
	DomainPricing   = "pricing"
)

// Entry data keys.
const (
	DataAPIKey             = "api_key"
	DataZipCode            = "zip_code"
	DataSupplier           = "supplier"
	DataDistributionRegion = "distribution_region"
)

// Entry is one configured integration instance.
type Entry struct {
	ID        string            `json:"id"`
	Domain    string            `json:"domain"`
	Title     string            `json:"title"`
	Data      map[string]string `json:"data"`
	Options   EntryOptions      `json:"options"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// EntryOptions holds the active contract filter and the designated current contract.
type EntryOptions struct {
	ContractFilter
	SelectedContractID string `json:"selected_contract_id,omitempty"`
}

// Validate checks the entry's data against its domain.
func (e *Entry) Validate() error {
	if e.ID == "" {
		return errors.New("entry ID must not be empty")
	}
	switch e.Domain {
	case DomainContracts:
		if e.Data[DataAPIKey] == "" {
			return errors.New("contracts entry requires an api_key")
		}
	case DomainPricing:
		if e.Data[DataSupplier] == "" {
			return errors.New("pricing entry requires a supplier")
		}
		if e.Data[DataDistributionRegion] == "" {
			return errors.New("pricing entry requires a distribution_region")
		}
	default:
		return errors.New("unknown entry domain: " + e.Domain)
	}
	if e.CreatedAt.After(e.UpdatedAt) {
		return errors.New("created at must be <= updated at")
	}
	return nil
}
