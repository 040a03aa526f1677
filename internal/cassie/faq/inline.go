package faq

import "strings"

// InlineAnswer is the rule-based backup used when the knowledge base has no
// confident match but the message still tripped a FAQ trigger. It always
// returns an answer; the final branch is a generic nudge for an order id.
func InlineAnswer(question string) string {
	t := strings.ToLower(question)

	switch {
	case strings.Contains(t, "return") || strings.Contains(t, "exchange"):
		return "Returns: 30 days if unused and in original packaging. " +
			"Exchanges are subject to stock availability. Start from Orders > Return/Exchange."
	case strings.Contains(t, "refund"):
		return "Refunds: issued to your original payment method within 5-7 business days " +
			"after we receive and inspect the item."

	case strings.Contains(t, "delivery") || strings.Contains(t, "shipping"):
		return "Shipping: we dispatch in 24-48 hours; delivery is usually 2-5 business days " +
			"depending on your location. You'll get a tracking link by email/SMS."
	case strings.Contains(t, "track"):
		return "Tracking: use the tracking link in your email/SMS. If you don't have it, " +
			"share your Order ID (starts with ORDL) and we'll fetch it for you."

	case strings.Contains(t, "cancel"):
		return "Cancellation: allowed until the order is packed/shipped. If it's already shipped, " +
			"please refuse delivery or create a return after it arrives."
	case strings.Contains(t, "address"):
		return "Address change: possible before dispatch. Share your Order ID (ORDL...) and the new address; " +
			"we'll try to update if the shipment hasn't left."

	case strings.Contains(t, "cod") || strings.Contains(t, "cash on delivery"):
		return "Cash on Delivery: available on eligible pin codes and order totals under the COD limit."
	case strings.Contains(t, "payment") || strings.Contains(t, "paid") ||
		strings.Contains(t, "failed") || strings.Contains(t, "debited") || strings.Contains(t, "charged"):
		return "Payment issues: if your payment was debited but the order isn't visible, " +
			"it'll auto-refund in 5-7 business days. Share your Order ID or transaction reference for checks."
	case strings.Contains(t, "invoice") || strings.Contains(t, "gst") || strings.Contains(t, "bill"):
		return "Invoice: you can download it from the Orders page after the item ships. " +
			"For GST invoice, ensure GST details are added before placing the order."

	case strings.Contains(t, "warranty"):
		return "Warranty: covered as per brand policy. Keep your invoice; brand service centers may ask for it."
	case strings.Contains(t, "size") || strings.Contains(t, "fit"):
		return "Sizing: refer to the Size Chart on the product page. If it doesn't fit, " +
			"you can request an exchange or return within 30 days."

	case strings.Contains(t, "missing") || strings.Contains(t, "not received") || strings.Contains(t, "partial"):
		return "Missing items: sometimes multi-item orders arrive in separate boxes. " +
			"If something is still missing after the expected date, raise a ticket with your ORDL order ID."
	case strings.Contains(t, "damaged") || strings.Contains(t, "broken"):
		return "Damaged item: sorry about that! Please share photos and your ORDL order ID; " +
			"we'll create a replacement/return right away."

	default:
		return "Thanks! I've noted this. For order-specific help, please share your Order ID " +
			"(starts with ORDL), e.g., ORDL12345."
	}
}
