package persistence

import "strings"

// Sort field whitelists per table, used to validate user-supplied ordering
// and keep raw input out of the ORDER BY clause
var (
	RequisitionSortFields = map[string]string{
		"created_at":         "created_at",
		"updated_at":         "updated_at",
		"requisition_number": "requisition_number",
		"total_amount":       "total_amount",
		"status":             "status",
		"submitted_at":       "submitted_at",
	}

	InvoiceSortFields = map[string]string{
		"created_at":     "created_at",
		"invoice_number": "invoice_number",
		"total_amount":   "total_amount",
		"status":         "status",
		"invoice_date":   "invoice_date",
	}
)

// ValidateSortField maps a requested sort field through the whitelist,
// returning the fallback when the field is unknown
func ValidateSortField(field string, whitelist map[string]string, fallback string) string {
	if column, ok := whitelist[strings.ToLower(strings.TrimSpace(field))]; ok {
		return column
	}
	return fallback
}

// ValidateSortOrder normalizes a sort direction to ASC or DESC
func ValidateSortOrder(dir string) string {
	if strings.EqualFold(strings.TrimSpace(dir), "asc") {
		return "ASC"
	}
	return "DESC"
}
