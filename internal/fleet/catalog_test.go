package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupByBodyType(t *testing.T) {
	cars := []Car{
		{ID: 1, BodyType: "wagon", Pricing: validPricing()},
		{ID: 2, BodyType: "sedan"},
		{ID: 3, BodyType: "amphibious"},
		{ID: 4, BodyType: "sedan"},
		{ID: 5, BodyType: "suv"},
	}

	groups := GroupByBodyType(cars)
	require.Len(t, groups, 4)

	var order []string
	for _, g := range groups {
		order = append(order, g.BodyType)
	}
	assert.Equal(t, []string{"sedan", "suv", "wagon", "amphibious"}, order)

	require.Len(t, groups[0].Cars, 2)
	assert.Equal(t, int64(2), groups[0].Cars[0].ID)
	assert.Equal(t, int64(4), groups[0].Cars[1].ID)
	assert.Equal(t, "40", groups[2].Cars[0].PriceFrom.String())
}

func TestGroupByBodyType_Empty(t *testing.T) {
	assert.Empty(t, GroupByBodyType(nil))
}
