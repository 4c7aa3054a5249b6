package model

// Update is the unit of delivery from the pipeline to the subscription hub:
// one per accepted tick. Alerts carries whatever fired on that tick, usually
// nothing. UpdatedFields names the StockSnapshot fields that changed since
// the previous update for the symbol, so screener subscribers can apply
// deltas instead of resnapshotting.
type Update struct {
	Symbol        string        `json:"symbol"`
	Snapshot      StockSnapshot `json:"snapshot"`
	Alerts        []Alert       `json:"alerts,omitempty"`
	UpdatedFields []string      `json:"updatedFields"`
}
