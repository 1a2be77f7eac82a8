package llm

// ModelPrice is the per-million-token price of one model, in USD.
type ModelPrice struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// PriceTable maps model ids to prices. Unknown models cost zero; the
// caller still gets token counts for its own accounting.
type PriceTable map[string]ModelPrice

// DefaultPriceTable covers the model classes the pipeline uses.
func DefaultPriceTable() PriceTable {
	return PriceTable{
		"claude-3-5-haiku-latest":  {InputPerMTok: 0.80, OutputPerMTok: 4.00},
		"claude-sonnet-4-20250514": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
		"claude-opus-4-20250514":   {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	}
}

// Cost computes the USD cost of one call.
func (t PriceTable) Cost(model string, tokensIn, tokensOut int) float64 {
	p, ok := t[model]
	if !ok {
		return 0
	}
	return float64(tokensIn)/1e6*p.InputPerMTok + float64(tokensOut)/1e6*p.OutputPerMTok
}
