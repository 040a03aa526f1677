// Package policy defines the canonical issue-code vocabulary and the
// order-lifecycle rules that decide whether an issue may be acted on at the
// order's current stage.
//
// Both entry points are pure functions: Normalize maps free-text labels onto
// the closed vocabulary, and IsAllowed answers eligibility for every
// (code, status) pair without ever returning an error.
package policy

import (
	"regexp"
	"strings"
)

// IssueCode is a canonical, closed-vocabulary label for a ticket's subject.
type IssueCode string

// Canonical issue codes. Normalize maps free-text synonyms onto these; the
// eligibility tables below are keyed by them.
const (
	PaymentIssues    IssueCode = "PAYMENT_ISSUES"
	RefundTimelines  IssueCode = "REFUND_TIMELINES"
	ReturnPolicy     IssueCode = "RETURN_POLICY"
	OrderTracking    IssueCode = "ORDER_TRACKING"
	DeliveryShipping IssueCode = "DELIVERY_SHIPPING"
	Cancellation     IssueCode = "CANCELLATION"
	AddressChange    IssueCode = "ADDRESS_CHANGE"
	CashOnDelivery   IssueCode = "CASH_ON_DELIVERY"
	InvoiceGST       IssueCode = "INVOICE_GST"
	Warranty         IssueCode = "WARRANTY"
	SizeFit          IssueCode = "SIZE_FIT"
	MissingItem      IssueCode = "MISSING_ITEM"
	DamagedInTransit IssueCode = "DAMAGED_IN_TRANSIT"
	DefectiveItem    IssueCode = "DEFECTIVE_ITEM"
	WrongItem        IssueCode = "WRONG_ITEM"
	HumanAssistance  IssueCode = "HUMAN_ASSISTANCE"
	Other            IssueCode = "OTHER"
)

// OrderStatus is an order's lifecycle stage as reported by the order store.
type OrderStatus string

// Order lifecycle stages, in rough chronological order.
const (
	StatusOrderPlaced    OrderStatus = "ORDER_PLACED"
	StatusPaymentPending OrderStatus = "PAYMENT_PENDING"
	StatusConfirmed      OrderStatus = "CONFIRMED"
	StatusPacking        OrderStatus = "PACKING"
	StatusShipped        OrderStatus = "SHIPPED"
	StatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	StatusDelivered      OrderStatus = "DELIVERED"
	StatusCancelled      OrderStatus = "CANCELLED"
)

// aliases maps lowercased free-text labels (FAQ questions, classifier labels,
// intake payload values) onto canonical codes.
var aliases = map[string]IssueCode{
	"payment issues": PaymentIssues,
	"payment issue":  PaymentIssues,
	"payment failed": PaymentIssues,

	"refund":           RefundTimelines,
	"refunds":          RefundTimelines,
	"refund timelines": RefundTimelines,

	"return":        ReturnPolicy,
	"returns":       ReturnPolicy,
	"return policy": ReturnPolicy,
	"exchange":      ReturnPolicy,

	"tracking":       OrderTracking,
	"order tracking": OrderTracking,

	"delivery":                 DeliveryShipping,
	"shipping":                 DeliveryShipping,
	"delivery time & shipping": DeliveryShipping,

	"cancel":       Cancellation,
	"cancellation": Cancellation,

	"address change": AddressChange,

	"cod":              CashOnDelivery,
	"cash on delivery": CashOnDelivery,

	"invoice":       InvoiceGST,
	"gst":           InvoiceGST,
	"invoice / gst": InvoiceGST,

	"warranty": Warranty,

	"size":       SizeFit,
	"fit":        SizeFit,
	"sizing":     SizeFit,
	"size & fit": SizeFit,

	"missing item":               MissingItem,
	"missing_item":               MissingItem,
	"missing / partial delivery": MissingItem,

	"damaged in transit": DamagedInTransit,
	"damaged_in_transit": DamagedInTransit,

	"defect":         DefectiveItem,
	"defective":      DefectiveItem,
	"defective item": DefectiveItem,
	"defective_item": DefectiveItem,

	"wrong item": WrongItem,
	"wrong_item": WrongItem,
	"wrong":      WrongItem,
	"incorrect":  WrongItem,
	"mismatch":   WrongItem,

	"human":            HumanAssistance,
	"human assistance": HumanAssistance,
	"human_assistance": HumanAssistance,
	"agent":            HumanAssistance,

	"other": Other,
}

// canonicalRe matches labels that already look like a closed-vocabulary code
// (all caps with underscores). Such labels pass through Normalize unchanged
// so upstream systems can hand over codes directly.
var canonicalRe = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Normalize maps a free-text issue label onto the canonical vocabulary.
//
// Lookup order: the lowercased, trimmed label is checked against the synonym
// table; failing that, a label already shaped like a canonical code passes
// through unchanged; everything else collapses to Other. Normalize is
// idempotent: applying it to its own output returns the same code.
func Normalize(label string) IssueCode {
	trimmed := strings.TrimSpace(label)
	if code, ok := aliases[strings.ToLower(trimmed)]; ok {
		return code
	}
	if canonicalRe.MatchString(trimmed) {
		return IssueCode(trimmed)
	}
	return Other
}

// alwaysAllowed are informational codes a customer may raise at any stage of
// the order lifecycle (or with no order at all).
var alwaysAllowed = map[IssueCode]struct{}{
	PaymentIssues:    {},
	RefundTimelines:  {},
	ReturnPolicy:     {},
	OrderTracking:    {},
	DeliveryShipping: {},
	CashOnDelivery:   {},
	InvoiceGST:       {},
	HumanAssistance:  {},
	Warranty:         {},
	SizeFit:          {},
	Other:            {},
}

// allowedByStatus restricts the remaining codes to the lifecycle stages in
// which the request can still be honoured. Codes absent from both this table
// and alwaysAllowed default to permitted.
var allowedByStatus = map[IssueCode]map[OrderStatus]struct{}{
	// Only actionable before the parcel leaves the warehouse.
	AddressChange: {
		StatusOrderPlaced:    {},
		StatusPaymentPending: {},
		StatusConfirmed:      {},
		StatusPacking:        {},
	},
	Cancellation: {
		StatusOrderPlaced:    {},
		StatusPaymentPending: {},
		StatusConfirmed:      {},
		StatusPacking:        {},
	},

	// Only verifiable once the customer has the item in hand.
	DefectiveItem: {
		StatusDelivered: {},
	},
	WrongItem: {
		StatusDelivered: {},
	},

	// Meaningful once the parcel is moving or arrived.
	MissingItem: {
		StatusShipped:        {},
		StatusOutForDelivery: {},
		StatusDelivered:      {},
	},
	DamagedInTransit: {
		StatusShipped:        {},
		StatusOutForDelivery: {},
		StatusDelivered:      {},
	},
}

// IsAllowed reports whether an issue of the given code may be raised against
// an order in the given lifecycle stage.
//
// A cancelled order vetoes every code. Codes in the always-allowed set pass
// regardless of status. Codes with a stage restriction require the status to
// be in their allowed set. Everything else, including unknown or empty
// statuses on unrestricted codes, is permitted.
func IsAllowed(code IssueCode, status OrderStatus) bool {
	if status == StatusCancelled {
		return false
	}
	if _, ok := alwaysAllowed[code]; ok {
		return true
	}
	if allowed, ok := allowedByStatus[code]; ok {
		_, in := allowed[status]
		return in
	}
	return true
}

// StageHint describes, for a restricted code, the stages at which the request
// would have been accepted. Used to build the explanation shown to customers
// when a ticket is refused.
func StageHint(code IssueCode) string {
	switch code {
	case AddressChange, Cancellation:
		return "only possible before the order is shipped"
	case DefectiveItem, WrongItem:
		return "only possible after the order is delivered"
	case MissingItem, DamagedInTransit:
		return "only possible once the order has shipped"
	default:
		return ""
	}
}
