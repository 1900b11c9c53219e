package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/tariffwatch/internal/tracker"
	"github.com/rewired-gh/tariffwatch/internal/wizard"
)

var contractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "Inspect and manage registered contracts",
	Long: `Lists the contracts registered for a contracts entry and changes its
current contract. A running service picks up changes on its next start.`,
}

var contractsListCmd = &cobra.Command{
	Use:   "list ENTRY_ID",
	Short: "List the registered contracts of an entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runContractsList,
}

var contractsSetCurrentCmd = &cobra.Command{
	Use:   "set-current ENTRY_ID IDENTITY",
	Short: "Designate the current contract of an entry",
	Args:  cobra.ExactArgs(2),
	RunE:  runContractsSetCurrent,
}

var contractsRemoveCmd = &cobra.Command{
	Use:   "remove ENTRY_ID IDENTITY",
	Short: "Remove a registered contract",
	Long: `Removes a contract from the registry. When it is the current contract the
designation is cleared as well.`,
	Args: cobra.ExactArgs(2),
	RunE: runContractsRemove,
}

func init() {
	rootCmd.AddCommand(contractsCmd)
	contractsCmd.AddCommand(contractsListCmd, contractsSetCurrentCmd, contractsRemoveCmd)
}

func runContractsList(cmd *cobra.Command, args []string) error {
	res, err := openResources()
	if err != nil {
		return err
	}
	defer res.Close()

	entry, err := contractsEntry(cmd.Context(), res, args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tIDENTITY\tSUPPLIER\tPRODUCT\tTYPE\tAFNAME\tINJECTIE")
	for _, k := range wizard.CurrentChoices(res.book, entry.ID) {
		mark := ""
		if k.Identity == entry.Options.SelectedContractID {
			mark = "*"
		}
		pair := k.Contract.PricePair()
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.5f\t%.5f\n", mark, k.Identity,
			k.Contract.Supplier, k.Contract.Product, k.Contract.ContractType, pair.Buy, pair.Sell)
	}
	return w.Flush()
}

func entryTracker(cmd *cobra.Command, res *resources, entryID string) (*tracker.Tracker, error) {
	entry, err := contractsEntry(cmd.Context(), res, entryID)
	if err != nil {
		return nil, err
	}
	tr := tracker.New(entry.ID, res.store, tracker.NewBroadcaster())
	if err := tr.Restore(cmd.Context()); err != nil {
		return nil, err
	}
	return tr, nil
}

func runContractsSetCurrent(cmd *cobra.Command, args []string) error {
	res, err := openResources()
	if err != nil {
		return err
	}
	defer res.Close()

	tr, err := entryTracker(cmd, res, args[0])
	if err != nil {
		return err
	}
	return wizard.SetCurrent(cmd.Context(), res.book, tr, args[1])
}

func runContractsRemove(cmd *cobra.Command, args []string) error {
	res, err := openResources()
	if err != nil {
		return err
	}
	defer res.Close()

	tr, err := entryTracker(cmd, res, args[0])
	if err != nil {
		return err
	}
	existed, err := res.book.Remove(args[0], args[1])
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("contract %s is not registered for %s", args[1], args[0])
	}
	cleared, err := tr.ClearIf(cmd.Context(), args[1])
	if err != nil {
		return err
	}
	if cleared {
		fmt.Fprintln(cmd.OutOrStdout(), "Current contract cleared")
	}
	return nil
}
