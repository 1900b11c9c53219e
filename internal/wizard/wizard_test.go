package wizard

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/tariffwatch/internal/models"
	"github.com/rewired-gh/tariffwatch/internal/registry"
	"github.com/rewired-gh/tariffwatch/internal/secapi"
	"github.com/rewired-gh/tariffwatch/internal/tracker"
)

func row(id int, energy, mode, segment, supplier, product, component string) models.DiscoveredContract {
	return models.DiscoveredContract{
		ContractFilter: models.ContractFilter{
			EnergyType:     energy,
			PricingMode:    mode,
			Segment:        segment,
			Supplier:       supplier,
			Product:        product,
			PriceComponent: component,
		},
		ID:           id,
		ContractType: "Elektriciteit",
	}
}

func testRows() []models.DiscoveredContract {
	return []models.DiscoveredContract{
		row(1, "Elektriciteit", "Dynamisch", "Woning", "Engie", "Dynamic", "Energie"),
		row(2, "Elektriciteit", "Dynamisch", "Woning", "Engie", "Dynamic", "Netkosten"),
		row(3, "Elektriciteit", "Dynamisch", "Woning", "Bolt", "Flex", "Energie"),
		row(4, "Elektriciteit", "Vast", "Woning", "Luminus", "Comfy", "Energie"),
		row(5, "Gas", "Dynamisch", "Woning", "Engie", "Dynamic Gas", "Energie"),
		row(6, "Elektriciteit", "Dynamisch", "Onderneming", "Engie", "Pro", "Energie"),
		row(7, "Elektriciteit", "Dynamisch", "Woning", "Engie", "Dynamic", "Energie"),
	}
}

func TestFilterSteps(t *testing.T) {
	rows := testRows()

	assert.Equal(t, []string{"Bolt", "Engie"}, Suppliers(rows, "Elektriciteit", "Dynamisch", "Woning"))
	assert.Equal(t, []string{"Luminus"}, Suppliers(rows, "Elektriciteit", "Vast", "Woning"))
	assert.Empty(t, Suppliers(rows, "Gas", "Vast", "Onderneming"))

	assert.Equal(t, []string{"Dynamic"}, Products(rows, "Elektriciteit", "Dynamisch", "Woning", "Engie"))
	assert.Equal(t, []string{"Energie", "Netkosten"},
		PriceComponents(rows, "Elektriciteit", "Dynamisch", "Woning", "Engie", "Dynamic"))
}

type fakeSource struct {
	cat secapi.Catalog
	err error
}

func (f *fakeSource) FetchCatalog(_ context.Context, _ models.ContractFilter, _ secapi.FetchOptions) (secapi.Catalog, error) {
	return f.cat, f.err
}

type memOptions map[string]models.EntryOptions

func (m memOptions) GetOptions(_ context.Context, entryID string) (models.EntryOptions, error) {
	return m[entryID], nil
}

func (m memOptions) UpdateOptions(_ context.Context, entryID string, opts models.EntryOptions) error {
	m[entryID] = opts
	return nil
}

func TestFlow_Complete(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{cat: secapi.Catalog{"k1": {Name: "all", Contracts: testRows()}}}

	f, err := NewFlow(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, StepSelection, f.Step())
	assert.Equal(t, EnergyTypes, f.Choices())

	require.NoError(t, f.Select("Elektriciteit", "Dynamisch", "Woning"))
	assert.Equal(t, []string{"Bolt", "Engie"}, f.Choices())
	require.NoError(t, f.ChooseSupplier("Engie"))
	require.NoError(t, f.ChooseProduct("Dynamic"))
	require.NoError(t, f.ChoosePriceComponent("Energie"))
	assert.Equal(t, StepDone, f.Step())

	filter, ok := f.Filter()
	require.True(t, ok)
	assert.Equal(t, models.ContractFilter{
		EnergyType: "Elektriciteit", PricingMode: "Dynamisch", Segment: "Woning",
		Supplier: "Engie", Product: "Dynamic", PriceComponent: "Energie",
	}, filter)

	store := memOptions{"entry": {SelectedContractID: "sec_keep"}}
	require.NoError(t, f.Apply(ctx, store, "entry"))
	assert.Equal(t, filter, store["entry"].ContractFilter)
	assert.Equal(t, "sec_keep", store["entry"].SelectedContractID)
}

func TestFlow_Rejections(t *testing.T) {
	f := NewFlowFromRows(testRows())

	assert.ErrorIs(t, f.ChooseSupplier("Engie"), ErrOutOfOrder)
	assert.ErrorIs(t, f.Select("Water", "Dynamisch", "Woning"), ErrInvalidChoice)
	require.NoError(t, f.Select("Elektriciteit", "Vast", "Woning"))
	assert.ErrorIs(t, f.ChooseSupplier("Engie"), ErrInvalidChoice)

	_, ok := f.Filter()
	assert.False(t, ok)
	assert.Error(t, f.Apply(context.Background(), memOptions{}, "entry"))
}

func TestNewFlow_FetchError(t *testing.T) {
	_, err := NewFlow(context.Background(), &fakeSource{err: errors.New("down")})
	assert.ErrorContains(t, err, "down")
}

func TestSetCurrent(t *testing.T) {
	ctx := context.Background()
	book, err := registry.Open(registry.NewFileStore(filepath.Join(t.TempDir(), "registry.json")))
	require.NoError(t, err)
	rows := testRows()[:2]
	_, err = book.Discover("entry", rows)
	require.NoError(t, err)

	store := memOptions{}
	tr := tracker.New("entry", store, tracker.NewBroadcaster())

	choices := CurrentChoices(book, "entry")
	require.Len(t, choices, 2)

	assert.ErrorIs(t, SetCurrent(ctx, book, tr, "sec_unknown_1"), ErrInvalidChoice)
	require.NoError(t, SetCurrent(ctx, book, tr, choices[1].Identity))
	current, ok := tr.Current()
	require.True(t, ok)
	assert.Equal(t, choices[1].Identity, current)
	assert.Equal(t, choices[1].Identity, store["entry"].SelectedContractID)
}
