package modules

import "github.com/JonMunkholm/sheetimport/internal/core"

func init() {
	registerInventoryItems()
}

func registerInventoryItems() {
	core.Register(core.ModuleImportSchema{
		ModuleKey: "inventory_items",
		Label:     "Items",
		Fields: []core.FieldInfo{
			{Key: "sku", Name: "SKU", Type: core.FieldString, Required: true, MaxLength: core.IntPtr(40), Unique: true, Example: "FLT-2040"},
			{Key: "description", Name: "Description", Type: core.FieldString, Required: true, MaxLength: core.IntPtr(255), Example: "Intake filter, 20x40"},
			{Key: "unit", Name: "Unit", Type: core.FieldEnum, Required: true, EnumValues: []string{"each", "box", "kg", "litre", "metre"}, Example: "each"},
			{Key: "quantity_on_hand", Name: "Quantity On Hand", Type: core.FieldNumber, Example: "12"},
			{Key: "reorder_point", Name: "Reorder Point", Type: core.FieldNumber, Example: "4"},
			{Key: "unit_cost", Name: "Unit Cost", Type: core.FieldNumber, Example: "18.75"},
			{Key: "stocked", Name: "Stocked", Type: core.FieldBoolean, Example: "yes"},
			{Key: "last_counted", Name: "Last Counted", Type: core.FieldDate, Example: "2024-02-29"},
		},
	})
}
