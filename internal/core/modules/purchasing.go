package modules

import "github.com/JonMunkholm/sheetimport/internal/core"

func init() {
	registerPurchasingVendors()
	registerPurchasingOrders()
}

func registerPurchasingVendors() {
	core.Register(core.ModuleImportSchema{
		ModuleKey: "purchasing_vendors",
		Label:     "Vendors",
		Fields: []core.FieldInfo{
			{Key: "vendor_code", Name: "Vendor Code", Type: core.FieldString, Required: true, MaxLength: core.IntPtr(20), Unique: true, Example: "V-1001"},
			{Key: "name", Name: "Name", Type: core.FieldString, Required: true, MaxLength: core.IntPtr(160), Example: "Acme Industrial Supply"},
			{Key: "contact_email", Name: "Contact Email", Type: core.FieldEmail, Required: true, Example: "sales@acme.example"},
			{Key: "phone", Name: "Phone", Type: core.FieldString, MaxLength: core.IntPtr(32), Example: "+1 555 0100"},
			{Key: "payment_terms", Name: "Payment Terms", Type: core.FieldEnum, EnumValues: []string{"net15", "net30", "net60", "prepaid"}, Example: "net30"},
			{Key: "active", Name: "Active", Type: core.FieldBoolean, Example: "true"},
		},
	})
}

func registerPurchasingOrders() {
	core.Register(core.ModuleImportSchema{
		ModuleKey: "purchasing_orders",
		Label:     "Purchase Orders",
		Fields: []core.FieldInfo{
			{Key: "po_number", Name: "PO Number", Type: core.FieldString, Required: true, MaxLength: core.IntPtr(32), Unique: true, Example: "PO-88120"},
			{Key: "vendor_code", Name: "Vendor Code", Type: core.FieldString, Required: true, MaxLength: core.IntPtr(20), Example: "V-1001"},
			{Key: "order_date", Name: "Order Date", Type: core.FieldDate, Required: true, Example: "2024-03-18"},
			{Key: "currency", Name: "Currency", Type: core.FieldEnum, Required: true, EnumValues: []string{"USD", "EUR", "GBP"}, Example: "USD"},
			{Key: "total_amount", Name: "Total Amount", Type: core.FieldNumber, Required: true, Example: "4820.50"},
			{Key: "requester_email", Name: "Requester Email", Type: core.FieldEmail, Example: "buyer@example.com"},
			{Key: "expected_delivery", Name: "Expected Delivery", Type: core.FieldDate, Example: "2024-04-02"},
		},
	})
}
