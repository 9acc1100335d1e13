package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSalesCSV(t *testing.T) {
	csv := `business_id,product_id,quantity,event_date
b1,p1,10,2026-08-20
b1,p2,2.5,2026-08-21
`
	events, err := parseSalesCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "b1", events[0].BusinessID)
	assert.Equal(t, "p1", events[0].ProductID)
	assert.Equal(t, 10.0, events[0].Quantity)
	assert.Equal(t, 20, events[0].EventDate.Day())
	assert.Equal(t, 2.5, events[1].Quantity)
}

func TestParseSalesCSV_NoHeader(t *testing.T) {
	events, err := parseSalesCSV(strings.NewReader("b1,p1,4,2026-08-01\n"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 4.0, events[0].Quantity)
}

func TestParseSalesCSV_BadQuantity(t *testing.T) {
	_, err := parseSalesCSV(strings.NewReader("b1,p1,lots,2026-08-01\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse quantity")
}

func TestParseSalesCSV_BadDate(t *testing.T) {
	_, err := parseSalesCSV(strings.NewReader("b1,p1,4,08/01/2026\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse event_date")
}

func TestParseProductsCSV(t *testing.T) {
	csv := `id,business_id,name,waste_sensitive,max_stock_amount
p1,b1,Tomatoes,false,20
p2,b1,Basil,true,
`
	products, err := parseProductsCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "Tomatoes", products[0].Name)
	assert.False(t, products[0].WasteSensitive)
	require.NotNil(t, products[0].MaxStockAmount)
	assert.Equal(t, 20.0, *products[0].MaxStockAmount)

	assert.True(t, products[1].WasteSensitive)
	assert.Nil(t, products[1].MaxStockAmount)
}

func TestParseProductsCSV_BadWasteSensitive(t *testing.T) {
	_, err := parseProductsCSV(strings.NewReader("p1,b1,Tomatoes,maybe,20\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse waste_sensitive")
}

func TestParseProductsCSV_WrongFieldCount(t *testing.T) {
	_, err := parseProductsCSV(strings.NewReader("p1,b1,Tomatoes\n"))
	assert.Error(t, err)
}
