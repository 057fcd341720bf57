package receipt

import (
	"github.com/line/line-bot-sdk-go/v8/linebot"
)

const (
	colorHeader = "#1DB446"
	colorItem   = "#555555"
	colorPrice  = "#111111"
	colorMuted  = "#aaaaaa"
)

// NewReceiptFlexMessage renders a receipt and its items as a Flex summary
// card. It is a pure function of its inputs: header label, store name in
// large bold, wrapped muted address, a row per item with the price right
// aligned, and the receipt identifier in the footer row.
func NewReceiptFlexMessage(rec *Receipt, items []Item) *linebot.FlexMessage {
	contents := []linebot.FlexComponent{
		&linebot.TextComponent{
			Type:   linebot.FlexComponentTypeText,
			Text:   "RECEIPT",
			Weight: linebot.FlexTextWeightTypeBold,
			Color:  colorHeader,
			Size:   linebot.FlexTextSizeTypeSm,
		},
		&linebot.TextComponent{
			Type:   linebot.FlexComponentTypeText,
			Text:   orNone(rec.PurchaseStore),
			Weight: linebot.FlexTextWeightTypeBold,
			Size:   linebot.FlexTextSizeTypeXxl,
			Margin: linebot.FlexComponentMarginTypeMd,
		},
		&linebot.TextComponent{
			Type:  linebot.FlexComponentTypeText,
			Text:  orNone(rec.PurchaseAddress),
			Size:  linebot.FlexTextSizeTypeXs,
			Color: colorMuted,
			Wrap:  true,
		},
		&linebot.SeparatorComponent{
			Type:   linebot.FlexComponentTypeSeparator,
			Margin: linebot.FlexComponentMarginTypeXxl,
		},
		&linebot.BoxComponent{
			Type:     linebot.FlexComponentTypeBox,
			Layout:   linebot.FlexBoxLayoutTypeVertical,
			Margin:   linebot.FlexComponentMarginTypeXxl,
			Spacing:  linebot.FlexComponentSpacingTypeSm,
			Contents: itemRows(items),
		},
		&linebot.SeparatorComponent{
			Type:   linebot.FlexComponentTypeSeparator,
			Margin: linebot.FlexComponentMarginTypeXxl,
		},
		&linebot.BoxComponent{
			Type:   linebot.FlexComponentTypeBox,
			Layout: linebot.FlexBoxLayoutTypeHorizontal,
			Margin: linebot.FlexComponentMarginTypeMd,
			Contents: []linebot.FlexComponent{
				&linebot.TextComponent{
					Type:  linebot.FlexComponentTypeText,
					Text:  "RECEIPT ID",
					Size:  linebot.FlexTextSizeTypeXs,
					Color: colorMuted,
					Flex:  linebot.IntPtr(0),
				},
				&linebot.TextComponent{
					Type:  linebot.FlexComponentTypeText,
					Text:  orNone(rec.ReceiptID),
					Size:  linebot.FlexTextSizeTypeXs,
					Color: colorMuted,
					Align: linebot.FlexComponentAlignTypeEnd,
				},
			},
		},
	}

	bubble := &linebot.BubbleContainer{
		Type: linebot.FlexContainerTypeBubble,
		Body: &linebot.BoxComponent{
			Type:     linebot.FlexComponentTypeBox,
			Layout:   linebot.FlexBoxLayoutTypeVertical,
			Contents: contents,
		},
		Styles: &linebot.BubbleStyle{
			Footer: &linebot.BlockStyle{
				Separator: true,
			},
		},
	}

	return linebot.NewFlexMessage("Receipt Data", bubble)
}

func itemRows(items []Item) []linebot.FlexComponent {
	rows := make([]linebot.FlexComponent, 0, len(items))
	for _, item := range items {
		rows = append(rows, &linebot.BoxComponent{
			Type:   linebot.FlexComponentTypeBox,
			Layout: linebot.FlexBoxLayoutTypeHorizontal,
			Contents: []linebot.FlexComponent{
				&linebot.TextComponent{
					Type:  linebot.FlexComponentTypeText,
					Text:  orNone(item.ItemName),
					Size:  linebot.FlexTextSizeTypeSm,
					Color: colorItem,
					Flex:  linebot.IntPtr(0),
				},
				&linebot.TextComponent{
					Type:  linebot.FlexComponentTypeText,
					Text:  "$" + orNone(item.ItemPrice.String()),
					Size:  linebot.FlexTextSizeTypeSm,
					Color: colorPrice,
					Align: linebot.FlexComponentAlignTypeEnd,
				},
			},
		})
	}
	return rows
}

// orNone substitutes the literal "None" for empty fields; LINE rejects empty
// text components.
func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
