package scanning

import "context"

// Scanner analyzes a receipt image with a vision-capable model and returns the
// model's raw text response. Extraction and parsing of that response happen in
// the receipt package.
type Scanner interface {
	ScanReceipt(ctx context.Context, image []byte) (string, error)
	// Close closes the scanner and releases resources
	Close() error
}

// Completer produces a plain text completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// receiptScanPrompt is the shared prompt used by all LLM providers to turn a
// receipt image into the JSON document the parser expects.
const receiptScanPrompt = `This is a receipt, and you are a secretary.
Please organize the details from the receipt into JSON format for me.
I only need the JSON representation of the receipt data. Eventually,
I will need to input it into a database with the following structure:

 Receipt(ReceiptID, PurchaseStore, PurchaseDate, PurchaseAddress, TotalAmount) and
 Items(ItemID, ReceiptID, ItemName, ItemPrice).

Data format as follow:
- ReceiptID, using PurchaseDate, but Represent the year, month, day, hour, and minute without any separators.
- ItemID, using ReceiptID and sequel number in that receipt.
Otherwise, if any information is unclear, fill in with 'N/A'.`

// TranslatePrompt asks for a zh-TW localization of an extracted receipt JSON
// document. Callers append it to the raw extraction response.
const TranslatePrompt = `This is a JSON representation of a receipt.
Please translate the non-Chinese characters into Chinese for me.
Using format as follow:
    non-Chinese(Chinese)
All the Chinese will use in zh_tw.
Please response with the translated JSON.`
