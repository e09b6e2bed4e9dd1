package tools

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/dusk-indust/ordercopilot/internal/llm"
)

// ShippingETA estimates delivery for a US zipcode. Zipcodes starting with
// 0-3 ship in 2 business days, everything else in 5.
func ShippingETA(zipcode string) (ok bool, message string) {
	z := strings.TrimSpace(zipcode)
	if z == "" || strings.IndexFunc(z, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
		return false, "Invalid zipcode."
	}
	days := 5
	if strings.ContainsRune("0123", rune(z[0])) {
		days = 2
	}
	return true, fmt.Sprintf("Estimated delivery: %d business days.", days)
}

// NewShippingETATool wraps ShippingETA.
func NewShippingETATool() Tool {
	return Tool{
		Name:        "shipping_eta",
		Description: "Return shipping ETA for a US zipcode. Output: {ok, message}.",
		Params:      []llm.Param{{Name: "zipcode", Description: "US zipcode, digits only.", Required: true}},
		Call: func(_ context.Context, args Args) (any, error) {
			ok, msg := ShippingETA(args.String("zipcode"))
			return map[string]any{"ok": ok, "message": msg}, nil
		},
	}
}

// Catalog maps lower-cased product names to their catalog line.
var Catalog = map[string]string{
	"iphone 15 pro":   "iPhone 15 Pro, $999, Low Stock (8), 128GB, Titanium",
	"dell xps 15":     `Dell XPS 15, $1,299, In Stock (45), 15.6", 16GB, 512GB SSD`,
	"sony wh-1000xm5": "Sony WH-1000XM5, $399, In Stock (67), ANC, 30h battery",
}

// ProductInfo looks a product up in Catalog.
func ProductInfo(name string) string {
	if line, ok := Catalog[strings.ToLower(strings.TrimSpace(name))]; ok {
		return "Product: " + line
	}
	return "Not found"
}

// NewProductInfoTool wraps ProductInfo.
func NewProductInfoTool() Tool {
	return Tool{
		Name:        "get_product_info",
		Description: "Look up price, stock and specs for a product in the vendor catalog.",
		Params:      []llm.Param{{Name: "product_name", Description: "Product name, e.g. \"Dell XPS 15\".", Required: true}},
		Call: func(_ context.Context, args Args) (any, error) {
			return ProductInfo(args.String("product_name")), nil
		},
	}
}

// Compliance verdicts returned by CheckCountryVAT.
const (
	VATCompliant    = "COMPLIANT: VAT format OK."
	VATNonCompliant = "NON_COMPLIANT: Please verify VAT format & issuer."
)

// CheckCountryVAT is a toy VAT rule: Belgian IDs of at least 8 characters pass.
func CheckCountryVAT(country, vatID string) string {
	if strings.EqualFold(country, "belgium") && len(strings.TrimSpace(vatID)) >= 8 {
		return VATCompliant
	}
	return VATNonCompliant
}

// NewCheckCountryVATTool wraps CheckCountryVAT.
func NewCheckCountryVATTool() Tool {
	return Tool{
		Name:        "check_country_vat",
		Description: "Check whether a vendor VAT ID is valid for its country.",
		Params: []llm.Param{
			{Name: "country", Description: "Country name.", Required: true},
			{Name: "vat_id", Description: "VAT identifier.", Required: true},
		},
		Call: func(_ context.Context, args Args) (any, error) {
			return CheckCountryVAT(args.String("country"), args.String("vat_id")), nil
		},
	}
}
