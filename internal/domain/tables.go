package domain

// Persisted slot keys
const (
	SlotProducts    = "productList"
	SlotSoldRecords = "soldProductList"
	SlotProductSeq  = "productIdSeq"
)

var Slots = []string{
	SlotProducts,
	SlotSoldRecords,
	SlotProductSeq,
}
