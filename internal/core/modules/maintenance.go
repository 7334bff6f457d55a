package modules

import "github.com/JonMunkholm/sheetimport/internal/core"

func init() {
	registerMaintenanceAssets()
	registerMaintenanceWorkOrders()
}

func registerMaintenanceAssets() {
	core.Register(core.ModuleImportSchema{
		ModuleKey: "maintenance_assets",
		Label:     "Assets",
		Fields: []core.FieldInfo{
			{Key: "asset_tag", Name: "Asset Tag", Type: core.FieldString, Required: true, MaxLength: core.IntPtr(32), Unique: true, Example: "AST-00042"},
			{Key: "name", Name: "Name", Type: core.FieldString, Required: true, MaxLength: core.IntPtr(120), Example: "Air Compressor 3"},
			{Key: "category", Name: "Category", Type: core.FieldEnum, Required: true, EnumValues: []string{"vehicle", "machinery", "it_equipment", "facility", "tool"}, Example: "machinery"},
			{Key: "serial_number", Name: "Serial Number", Type: core.FieldString, MaxLength: core.IntPtr(64), Example: "SN-99812"},
			{Key: "location", Name: "Location", Type: core.FieldString, MaxLength: core.IntPtr(120), Example: "Plant 2 / Bay C"},
			{Key: "purchase_date", Name: "Purchase Date", Type: core.FieldDate, Example: "2023-05-14"},
			{Key: "purchase_cost", Name: "Purchase Cost", Type: core.FieldNumber, Example: "12500.00"},
			{Key: "under_warranty", Name: "Under Warranty", Type: core.FieldBoolean, Example: "yes"},
			{Key: "custodian_email", Name: "Custodian Email", Type: core.FieldEmail, Example: "ops@example.com"},
		},
	})
}

func registerMaintenanceWorkOrders() {
	core.Register(core.ModuleImportSchema{
		ModuleKey: "maintenance_work_orders",
		Label:     "Work Orders",
		Fields: []core.FieldInfo{
			{Key: "reference", Name: "Reference", Type: core.FieldString, Required: true, MaxLength: core.IntPtr(32), Unique: true, Example: "WO-2024-0012"},
			{Key: "asset_tag", Name: "Asset Tag", Type: core.FieldString, Required: true, MaxLength: core.IntPtr(32), Example: "AST-00042"},
			{Key: "title", Name: "Title", Type: core.FieldString, Required: true, MaxLength: core.IntPtr(200), Example: "Replace intake filter"},
			{Key: "priority", Name: "Priority", Type: core.FieldEnum, Required: true, EnumValues: []string{"low", "medium", "high", "critical"}, Example: "medium"},
			{Key: "due_date", Name: "Due Date", Type: core.FieldDate, Example: "2024-07-01"},
			{Key: "estimated_hours", Name: "Estimated Hours", Type: core.FieldNumber, Example: "2.5"},
			{Key: "assignee_email", Name: "Assignee Email", Type: core.FieldEmail, Example: "tech@example.com"},
			{Key: "notes", Name: "Notes", Type: core.FieldString, MaxLength: core.IntPtr(2000)},
		},
	})
}
