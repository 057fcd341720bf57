package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/line/line-bot-sdk-go/v8/linebot"

	"github.com/kkdai/linebot-receipt-gemini/internal/scanning"
)

const (
	// clearCommand is the exact text that wipes the sender's receipt history.
	clearCommand = "!清空"

	clearedReply    = "對話歷史紀錄已經清空！"
	duplicateNotice = "這個收據已經存在資料庫中。"

	chatPromptFormat = "Here is my entire receipt list during my travel: %s; " +
		"please answer my question based on this information. %s. Reply in zh_tw."
)

// Service orchestrates the receipt pipeline: it owns the conversational path,
// the image extraction path, deduplication and persistence, and produces the
// reply messages for the webhook server to send.
type Service struct {
	store     RecordStore
	scanner   scanning.Scanner
	completer scanning.Completer
	archive   Archive
	translate bool
}

// NewService creates a Service with the zh-TW translation pass enabled and no
// image archive.
func NewService(store RecordStore, scanner scanning.Scanner, completer scanning.Completer) *Service {
	return &Service{
		store:     store,
		scanner:   scanner,
		completer: completer,
		translate: true,
	}
}

// NewServiceWithOptions creates a Service with an optional image archive and
// explicit control over the translation pass.
func NewServiceWithOptions(store RecordStore, scanner scanning.Scanner, completer scanning.Completer, archive Archive, translate bool) *Service {
	return &Service{
		store:     store,
		scanner:   scanner,
		completer: completer,
		archive:   archive,
		translate: translate,
	}
}

// HandleText serves the conversational path. The clear command deletes the
// sender's umbrella collection; any other text is answered by the completion
// model with the sender's stored receipt history as context.
func (s *Service) HandleText(ctx context.Context, userID, text string) ([]linebot.SendingMessage, error) {
	paths := pathsFor(userID)

	if text == clearCommand {
		if err := s.store.DeleteAll(ctx, paths.Root); err != nil {
			// Treated as "operation did not happen"; the user is told the
			// history is gone either way rather than shown an internal error.
			slog.Error("Failed to clear receipt history", "user", userID, "error", err)
		}
		return []linebot.SendingMessage{linebot.NewTextMessage(clearedReply)}, nil
	}

	history, err := s.store.GetAll(ctx, paths.Root)
	if err != nil {
		slog.Error("Failed to load receipt history", "user", userID, "error", err)
		history = map[string]json.RawMessage{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("encoding receipt history: %w", err)
	}

	prompt := fmt.Sprintf(chatPromptFormat, historyJSON, text)
	answer, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("completing chat prompt: %w", err)
	}

	return []linebot.SendingMessage{linebot.NewTextMessage(answer)}, nil
}

// HandleImage serves the extraction path: vision completion, extract+parse,
// translation pass, duplicate check, store write, and two summary cards
// (original and localized). Store failures are logged and treated as no-ops;
// the reply is still produced.
func (s *Service) HandleImage(ctx context.Context, userID string, image []byte) ([]linebot.SendingMessage, error) {
	paths := pathsFor(userID)

	raw, err := s.scanner.ScanReceipt(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}
	slog.Debug("Receipt extraction response", "user", userID, "raw", raw)

	rec, items, err := ParseReceipt(raw)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &ParseError{Err: errors.New("extraction payload carried no receipt")}
	}

	localizedRec, localizedItems := s.localize(ctx, raw, rec, items)

	exists := s.receiptExists(ctx, paths, localizedRec.ReceiptID)
	if exists {
		return []linebot.SendingMessage{
			linebot.NewTextMessage(duplicateNotice),
			NewReceiptFlexMessage(rec, items),
			NewReceiptFlexMessage(localizedRec, localizedItems),
		}, nil
	}

	s.addReceipt(ctx, paths, localizedRec, localizedItems)
	s.archiveImage(userID, localizedRec.ReceiptID, image)

	return []linebot.SendingMessage{
		NewReceiptFlexMessage(rec, items),
		NewReceiptFlexMessage(localizedRec, localizedItems),
	}, nil
}

// localize runs the zh-TW translation pass over the raw extraction response.
// A failed translation degrades to the original record.
func (s *Service) localize(ctx context.Context, raw string, rec *Receipt, items []Item) (*Receipt, []Item) {
	if !s.translate {
		return rec, items
	}

	translated, err := s.completer.Complete(ctx, raw+"\n --- "+scanning.TranslatePrompt)
	if err != nil {
		slog.Warn("Translation pass failed, keeping original record", "error", err)
		return rec, items
	}

	localizedRec, localizedItems, err := ParseReceipt(translated)
	if err != nil || localizedRec == nil {
		slog.Warn("Translated payload unparsable, keeping original record", "error", err)
		return rec, items
	}
	return localizedRec, localizedItems
}

// receiptExists is the duplicate check: a point lookup on the receipt key in
// the sender's namespace. Store failures are logged and read as "not present"
// so a flaky store degrades to best-effort dedup instead of losing receipts.
func (s *Service) receiptExists(ctx context.Context, paths userPaths, receiptID string) bool {
	_, err := s.store.Get(ctx, paths.Receipts, receiptID)
	if err == nil {
		return true
	}
	if !errors.Is(err, ErrNotFound) {
		slog.Error("Duplicate check failed, assuming new receipt", "receipt_id", receiptID, "error", err)
	}
	return false
}

// addReceipt writes the receipt and then its items. The writes are not
// transactional; a failure in between leaves an orphaned receipt, which is
// logged and accepted.
func (s *Service) addReceipt(ctx context.Context, paths userPaths, rec *Receipt, items []Item) {
	if err := s.store.Put(ctx, paths.Receipts, rec.ReceiptID, rec); err != nil {
		slog.Error("Failed to store receipt", "receipt_id", rec.ReceiptID, "error", err)
		return
	}
	for _, item := range items {
		if err := s.store.Put(ctx, paths.Items, item.ItemID, item); err != nil {
			slog.Error("Failed to store item", "item_id", item.ItemID, "error", err)
		}
	}
	slog.Info("Stored receipt", "receipt_id", rec.ReceiptID, "items", len(items))
}

func (s *Service) archiveImage(userID, receiptID string, image []byte) {
	if s.archive == nil {
		return
	}
	filename := fmt.Sprintf("%s_%s.jpg", userID, receiptID)
	if _, err := s.archive.Save(filename, image); err != nil {
		slog.Warn("Failed to archive receipt image", "filename", filename, "error", err)
	}
}
