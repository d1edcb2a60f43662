package symbol

import "encoding/json"

// jsonInfo is the JSON projection of Info; used for tooling that wants
// a human-readable dump of the registry rather than the binary wire form.
type jsonInfo struct {
	ID         uint32      `json:"id"`
	Exchange   string      `json:"exchange"`
	Symbol     string      `json:"symbol"`
	Type       string      `json:"type"`
	Strike     *int64      `json:"strike,omitempty"`
	ExpiryNs   *int64      `json:"expiry_ns,omitempty"`
	OptionType *OptionType `json:"option_type,omitempty"`
}

// MarshalJSON renders the registry's symbols as a JSON array, sorted
// by ID for stable output.
func (r *Registry) MarshalJSON() ([]byte, error) {
	infos := r.All()
	out := make([]jsonInfo, len(infos))
	for i, info := range infos {
		out[i] = jsonInfo{
			ID:         info.ID,
			Exchange:   info.Exchange,
			Symbol:     info.Symbol,
			Type:       info.Type.String(),
			Strike:     info.Strike,
			ExpiryNs:   info.ExpiryNs,
			OptionType: info.OptionType,
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ID < out[j-1].ID; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return json.Marshal(out)
}
