package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/tariffwatch/internal/catalog"
	"github.com/rewired-gh/tariffwatch/internal/models"
)

var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Manage configuration entries",
}

var entryAddContractsCmd = &cobra.Command{
	Use:   "add-contracts",
	Short: "Add a contract tracking entry",
	Long: `Adds an entry that tracks contracts of the Smart Energy Control API.
The API key is checked against the API before the entry is stored.

Example:
  tariffwatch entry add-contracts --api-key KEY --zip 2060`,
	RunE: runEntryAddContracts,
}

var entryAddPricingCmd = &cobra.Command{
	Use:   "add-pricing",
	Short: "Add a supplier pricing entry",
	Long: `Adds an entry that publishes tariffs of every supplier in the supplier
catalog, for the given current supplier and distribution region.

Example:
  tariffwatch entry add-pricing --supplier engie_dynamic --region "Fluvius (Limburg)"`,
	RunE: runEntryAddPricing,
}

var entryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configuration entries",
	RunE:  runEntryList,
}

var entryRemoveCmd = &cobra.Command{
	Use:   "remove ENTRY_ID",
	Short: "Remove a configuration entry and its registered contracts",
	Args:  cobra.ExactArgs(1),
	RunE:  runEntryRemove,
}

var (
	contractsTitle string
	pricingTitle   string
	entryAPIKey    string
	entryZipCode   string
	entrySupplier  string
	entryRegion    string
)

func init() {
	rootCmd.AddCommand(entryCmd)
	entryCmd.AddCommand(entryAddContractsCmd, entryAddPricingCmd, entryListCmd, entryRemoveCmd)

	entryAddContractsCmd.Flags().StringVar(&contractsTitle, "title", "sec", "Entry title")
	entryAddContractsCmd.Flags().StringVar(&entryAPIKey, "api-key", "", "Smart Energy Control API key")
	entryAddContractsCmd.Flags().StringVar(&entryZipCode, "zip", "", "Postal code used for live prices")
	_ = entryAddContractsCmd.MarkFlagRequired("api-key")

	entryAddPricingCmd.Flags().StringVar(&pricingTitle, "title", "pricing", "Entry title")
	entryAddPricingCmd.Flags().StringVar(&entrySupplier, "supplier", "", "Current supplier (supplier catalog key)")
	entryAddPricingCmd.Flags().StringVar(&entryRegion, "region", "", "Distribution region")
	_ = entryAddPricingCmd.MarkFlagRequired("supplier")
	_ = entryAddPricingCmd.MarkFlagRequired("region")
}

func runEntryAddContracts(cmd *cobra.Command, args []string) error {
	res, err := openResources()
	if err != nil {
		return err
	}
	defer res.Close()
	ctx := cmd.Context()

	client := apiClient(res.cfg, entryAPIKey)
	defer client.Close()
	ok, err := client.Validate(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("the API key was rejected")
	}

	entry := &models.Entry{
		Domain: models.DomainContracts,
		Title:  contractsTitle,
		Data:   map[string]string{models.DataAPIKey: entryAPIKey, models.DataZipCode: entryZipCode},
	}
	if err := res.store.AddEntry(ctx, entry); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), entry.ID)
	return nil
}

func runEntryAddPricing(cmd *cobra.Command, args []string) error {
	res, err := openResources()
	if err != nil {
		return err
	}
	defer res.Close()

	existing, err := res.store.ListEntries(cmd.Context(), models.DomainPricing)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("pricing entry %s already exists; remove it first", existing[0].ID)
	}

	suppliers, err := catalog.LoadSuppliers(res.cfg.Pricing.SuppliersPath)
	if err != nil {
		return err
	}
	if _, ok := suppliers[entrySupplier]; !ok {
		return fmt.Errorf("unknown supplier %q, choose one of %v", entrySupplier, suppliers.Names())
	}
	costs, err := catalog.LoadDistributionCosts(res.cfg.Pricing.DistributionCostsPath)
	if err != nil {
		return err
	}
	if _, ok := catalog.FindRegion(costs, entryRegion); !ok {
		return fmt.Errorf("unknown distribution region %q", entryRegion)
	}

	entry := &models.Entry{
		Domain: models.DomainPricing,
		Title:  pricingTitle,
		Data: map[string]string{
			models.DataSupplier:           entrySupplier,
			models.DataDistributionRegion: entryRegion,
		},
	}
	if err := res.store.AddEntry(cmd.Context(), entry); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), entry.ID)
	return nil
}

func runEntryList(cmd *cobra.Command, args []string) error {
	res, err := openResources()
	if err != nil {
		return err
	}
	defer res.Close()

	entries, err := res.store.ListEntries(cmd.Context(), "")
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDOMAIN\tTITLE\tDETAIL\tCURRENT")
	for _, e := range entries {
		detail := e.Data[models.DataSupplier] + " / " + e.Data[models.DataDistributionRegion]
		if e.Domain == models.DomainContracts {
			detail = fmt.Sprintf("%d contracts", len(res.book.Entries(e.ID)))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Domain, e.Title, detail, e.Options.SelectedContractID)
	}
	return w.Flush()
}

func runEntryRemove(cmd *cobra.Command, args []string) error {
	res, err := openResources()
	if err != nil {
		return err
	}
	defer res.Close()

	if err := res.store.RemoveEntry(cmd.Context(), args[0]); err != nil {
		return err
	}
	return res.book.DropEntry(args[0])
}

// contractsEntry loads a contracts entry by id.
func contractsEntry(ctx context.Context, res *resources, id string) (*models.Entry, error) {
	entry, err := res.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Domain != models.DomainContracts {
		return nil, fmt.Errorf("entry %s is a %s entry", id, entry.Domain)
	}
	return entry, nil
}
