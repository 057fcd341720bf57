package receipt

import "encoding/json"

// Receipt represents one purchase extracted from a receipt image. Field names
// match the keys the extraction model is prompted to produce and the keys
// records are stored under.
type Receipt struct {
	ReceiptID       string `json:"ReceiptID"`
	PurchaseStore   string `json:"PurchaseStore"`
	PurchaseDate    string `json:"PurchaseDate"`
	PurchaseAddress string `json:"PurchaseAddress"`
	TotalAmount     Amount `json:"TotalAmount"`
}

// Item represents one line item belonging to exactly one receipt.
type Item struct {
	ItemID    string `json:"ItemID"`
	ReceiptID string `json:"ReceiptID"`
	ItemName  string `json:"ItemName"`
	ItemPrice Amount `json:"ItemPrice"`
}

// Amount holds a price exactly as the model produced it. Models return amounts
// as JSON numbers or as strings depending on the receipt, so both are accepted
// and neither is validated numerically.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	*a = Amount(data)
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

func (a Amount) String() string {
	return string(a)
}

// userPaths holds the per-user collection paths. They are computed from the
// sender ID for every event and passed explicitly; nothing path-related is
// process-global.
type userPaths struct {
	Receipts string
	Items    string
	Root     string
}

const pathPrefix = "receipt_helper"

func pathsFor(userID string) userPaths {
	root := pathPrefix + "/" + userID
	return userPaths{
		Receipts: root + "/Receipts",
		Items:    root + "/Items",
		Root:     root,
	}
}
