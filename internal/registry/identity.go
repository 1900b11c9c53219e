// Package registry derives stable contract identities and keeps the
// persisted entry -> identity -> contract registry.
package registry

import (
	"fmt"
	"strings"

	"github.com/rewired-gh/tariffwatch/internal/models"
)

// IdentityPrefix starts every contract identity.
const IdentityPrefix = "sec"

var identityReplacer = strings.NewReplacer(
	" ", "",
	"(", "",
	")", "",
	"€", "",
	"/", "",
	"&", "",
	"+", "",
	"@", "a",
)

// DeriveIdentity returns the stable identity of a catalog row. It depends
// only on the six filter fields and the catalog id, so the same contract
// maps to the same identity across fetches and filter changes.
func DeriveIdentity(c models.DiscoveredContract) string {
	raw := fmt.Sprintf("%s_%s_%s_%s_%s_%s_%s_%d",
		IdentityPrefix,
		c.Supplier,
		c.Product,
		c.PriceComponent,
		c.EnergyType,
		c.Segment,
		c.PricingMode,
		c.ID,
	)
	return identityReplacer.Replace(strings.ToLower(raw))
}
