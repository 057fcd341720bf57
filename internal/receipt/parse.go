package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ParseError reports that the model's response could not be decoded into a
// receipt. It never escapes the orchestrator; the user gets a fallback reply.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing receipt payload: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ExtractPayload strips the model's wrapping from a raw response by removing
// exactly the first and last line of the trimmed input. The model is prompted
// to fence its JSON, so the wrapping is one line before and one line after the
// payload. Inputs with fewer than two lines yield an empty string.
func ExtractPayload(raw string) string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) < 2 {
		return ""
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}

// extractionDoc is the shape the model is prompted to produce. Receipt is kept
// raw because models sometimes return a list of receipts instead of an object.
type extractionDoc struct {
	Receipt json.RawMessage `json:"Receipt"`
	Items   []Item          `json:"Items"`
}

// ParseReceipt extracts the payload from a raw model response and decodes it
// into a receipt and its items, applying the defaulting rules once at this
// boundary. The receipt may be nil when the payload carried none; malformed
// payloads return a *ParseError.
func ParseReceipt(raw string) (*Receipt, []Item, error) {
	payload := ExtractPayload(raw)

	var doc extractionDoc
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, nil, &ParseError{Err: err}
	}

	rec, err := decodeReceipt(doc.Receipt)
	if err != nil {
		return nil, nil, &ParseError{Err: err}
	}

	items := doc.Items
	if items == nil {
		items = []Item{}
	}
	if rec != nil {
		normalize(rec, items)
	}
	return rec, items, nil
}

// decodeReceipt accepts either a receipt object or a list of receipts. When
// the model returns several receipts for one image only the first is kept;
// the rest are logged and dropped.
func decodeReceipt(raw json.RawMessage) (*Receipt, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	if raw[0] == '[' {
		var list []Receipt
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, nil
		}
		if len(list) > 1 {
			slog.Warn("Extraction returned multiple receipts, keeping the first",
				"dropped", len(list)-1,
			)
		}
		return &list[0], nil
	}

	var rec Receipt
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

var nonDigits = regexp.MustCompile(`\D`)

// normalize fills missing fields with their defined defaults. Downstream code
// relies on these fields being present and never re-checks them.
func normalize(rec *Receipt, items []Item) {
	if rec.PurchaseStore == "" {
		rec.PurchaseStore = "N/A"
	}
	if rec.PurchaseAddress == "" {
		rec.PurchaseAddress = "N/A"
	}
	if rec.ReceiptID == "" {
		rec.ReceiptID = nonDigits.ReplaceAllString(rec.PurchaseDate, "")
		if rec.ReceiptID == "" {
			rec.ReceiptID = uuid.NewString()
		}
	}
	for i := range items {
		items[i].ReceiptID = rec.ReceiptID
		if items[i].ItemID == "" {
			items[i].ItemID = fmt.Sprintf("%s%d", rec.ReceiptID, i+1)
		}
	}
}
