package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/tariffwatch/internal/models"
	"github.com/rewired-gh/tariffwatch/internal/wizard"
)

var wizardCmd = &cobra.Command{
	Use:   "wizard ENTRY_ID",
	Short: "Select the contract filter of a contracts entry",
	Long: `Narrows the contract catalog step by step. Each step is answered with a
flag; the first unanswered step prints its choices and stops. Once every
step is answered the filter is stored and picked up on the next start.

Example:
  tariffwatch wizard ENTRY_ID --energy Elektriciteit --mode Dynamisch --segment Woning
  tariffwatch wizard ENTRY_ID --energy Elektriciteit --mode Dynamisch --segment Woning \
    --supplier Engie --product Dynamic --component Energie`,
	Args: cobra.ExactArgs(1),
	RunE: runWizard,
}

var (
	wizardEnergy    string
	wizardMode      string
	wizardSegment   string
	wizardSupplier  string
	wizardProduct   string
	wizardComponent string
)

func init() {
	rootCmd.AddCommand(wizardCmd)

	wizardCmd.Flags().StringVar(&wizardEnergy, "energy", "", "Energy type")
	wizardCmd.Flags().StringVar(&wizardMode, "mode", "", "Pricing mode")
	wizardCmd.Flags().StringVar(&wizardSegment, "segment", "", "Customer segment")
	wizardCmd.Flags().StringVar(&wizardSupplier, "supplier", "", "Supplier")
	wizardCmd.Flags().StringVar(&wizardProduct, "product", "", "Product")
	wizardCmd.Flags().StringVar(&wizardComponent, "component", "", "Price component")
}

func printChoices(w io.Writer, step wizard.Step, field string, choices []string) {
	fmt.Fprintf(w, "%s: choose --%s from:\n", step, field)
	if len(choices) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, c := range choices {
		fmt.Fprintf(w, "  %s\n", c)
	}
}

func runWizard(cmd *cobra.Command, args []string) error {
	res, err := openResources()
	if err != nil {
		return err
	}
	defer res.Close()
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	entry, err := contractsEntry(ctx, res, args[0])
	if err != nil {
		return err
	}
	client := apiClient(res.cfg, entry.Data[models.DataAPIKey])
	defer client.Close()

	if wizardEnergy == "" || wizardMode == "" || wizardSegment == "" {
		printChoices(out, wizard.StepSelection, "energy", wizard.EnergyTypes)
		printChoices(out, wizard.StepSelection, "mode", wizard.PricingModes)
		printChoices(out, wizard.StepSelection, "segment", wizard.Segments)
		return nil
	}

	flow, err := wizard.NewFlow(ctx, client)
	if err != nil {
		return err
	}
	if err := flow.Select(wizardEnergy, wizardMode, wizardSegment); err != nil {
		return err
	}

	answers := []struct {
		field  string
		value  string
		answer func(string) error
	}{
		{"supplier", wizardSupplier, flow.ChooseSupplier},
		{"product", wizardProduct, flow.ChooseProduct},
		{"component", wizardComponent, flow.ChoosePriceComponent},
	}
	for _, a := range answers {
		if a.value == "" {
			printChoices(out, flow.Step(), a.field, flow.Choices())
			return nil
		}
		if err := a.answer(a.value); err != nil {
			return fmt.Errorf("%w (choices: %s)", err, strings.Join(flow.Choices(), ", "))
		}
	}

	if err := flow.Apply(ctx, res.store, entry.ID); err != nil {
		return err
	}
	filter, _ := flow.Filter()
	fmt.Fprintf(out, "Stored filter %s / %s / %s / %s / %s / %s for %s\n",
		filter.EnergyType, filter.PricingMode, filter.Segment,
		filter.Supplier, filter.Product, filter.PriceComponent, entry.ID)
	return nil
}
