package llm

import "strings"

// priceEntry is USD per 1M tokens, input and output priced separately.
type priceEntry struct {
	InputPerM  float64
	OutputPerM float64
}

// pricingTable is a static snapshot; spec requires cost be "computed from a
// static price table", not a live pricing API. Update alongside Provider
// model defaults when a provider ships a new model.
var pricingTable = map[string]priceEntry{
	"claude-3-7-sonnet-latest": {InputPerM: 3.00, OutputPerM: 15.00},
	"claude-3-5-haiku-latest":  {InputPerM: 0.80, OutputPerM: 4.00},
	"gpt-4o":                   {InputPerM: 2.50, OutputPerM: 10.00},
	"gpt-4o-mini":              {InputPerM: 0.15, OutputPerM: 0.60},
	"gemini-1.5-flash":         {InputPerM: 0.075, OutputPerM: 0.30},
	"gemini-1.5-pro":           {InputPerM: 1.25, OutputPerM: 5.00},
}

// defaultPrice is used for an unrecognized model so cost accounting degrades
// to a conservative estimate rather than silently reporting zero.
var defaultPrice = priceEntry{InputPerM: 3.00, OutputPerM: 15.00}

// EstimateCost returns the USD cost of a call given its reported token usage.
func EstimateCost(model string, tokenInput, tokenOutput int) float64 {
	price, ok := pricingTable[model]
	if !ok {
		price = lookupPrefix(model)
	}
	return float64(tokenInput)/1_000_000*price.InputPerM + float64(tokenOutput)/1_000_000*price.OutputPerM
}

// lookupPrefix falls back to a family-prefix match (e.g. a dated model
// snapshot like "claude-3-7-sonnet-20250219") before giving up to defaultPrice.
func lookupPrefix(model string) priceEntry {
	for name, price := range pricingTable {
		if strings.HasPrefix(model, strings.TrimSuffix(name, "-latest")) {
			return price
		}
	}
	return defaultPrice
}
