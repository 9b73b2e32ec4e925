package models

// TriggerKind tags an injected control with the extraction rule that
// produces its command.
type TriggerKind string

const (
	TriggerOrderColumn TriggerKind = "order-column"
	TriggerSkuColumn   TriggerKind = "sku-column"
	TriggerPanelSku    TriggerKind = "panel-sku"
	TriggerOrderHeader TriggerKind = "order-header"
	TriggerSkuHeader   TriggerKind = "sku-header"
	TriggerBatchHeader TriggerKind = "batch-header"
	TriggerScanOrder   TriggerKind = "scan-order"
	TriggerScanItem    TriggerKind = "scan-item"
)

// AllTriggerKinds lists every kind the extractor knows how to read.
var AllTriggerKinds = []TriggerKind{
	TriggerOrderColumn,
	TriggerSkuColumn,
	TriggerPanelSku,
	TriggerOrderHeader,
	TriggerSkuHeader,
	TriggerBatchHeader,
	TriggerScanOrder,
	TriggerScanItem,
}

// Valid reports whether k is a known trigger kind.
func (k TriggerKind) Valid() bool {
	for _, known := range AllTriggerKinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsScan reports whether k belongs to the scan page, whose controls emit
// device commands rather than locate commands.
func (k TriggerKind) IsScan() bool {
	return k == TriggerScanOrder || k == TriggerScanItem
}
