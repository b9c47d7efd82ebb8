// Package decision derives the UI-facing view of a permission set: the
// visible navigation tree, named action flags and the canonical landing
// path. It decides nothing itself; everything follows from the resolved
// permission slugs.
package decision

// NavigationNode is one entry of the static navigation tree. Permission
// is the slug required to see the node; empty means visibility follows
// from the children.
type NavigationNode struct {
	Key        string           `json:"key"`
	Label      string           `json:"label"`
	Path       string           `json:"path,omitempty"`
	Permission string           `json:"permission,omitempty"`
	Children   []NavigationNode `json:"children,omitempty"`
}

// ActionBinding ties a semantic action of an entity to the permission
// that enables it.
type ActionBinding struct {
	Action     string
	Permission string
}

// DefaultNavigation returns the back-office navigation tree. Every leaf
// carries a permission so a user without any permission resolves to an
// empty tree.
func DefaultNavigation() []NavigationNode {
	return []NavigationNode{
		{Key: "dashboard", Label: "Dashboard", Children: []NavigationNode{
			{Key: "dashboard.home", Label: "Overview", Path: "/dashboard", Permission: "reports.operations.view"},
		}},
		{Key: "billing", Label: "Billing", Children: []NavigationNode{
			{Key: "billing.invoices", Label: "Invoices", Path: "/billing/invoices", Permission: "billing.invoices.view"},
			{Key: "billing.payments", Label: "Payments", Path: "/billing/payments", Permission: "billing.payments.view"},
		}},
		{Key: "sales", Label: "Sales", Children: []NavigationNode{
			{Key: "sales.quotations", Label: "Quotations", Path: "/sales/quotations", Permission: "sales.quotations.view"},
			{Key: "sales.orders", Label: "Orders", Path: "/sales/orders", Permission: "sales.orders.view"},
		}},
		{Key: "inventory", Label: "Inventory", Children: []NavigationNode{
			{Key: "inventory.items", Label: "Items", Path: "/inventory/items", Permission: "inventory.items.view"},
			{Key: "inventory.movements", Label: "Movements", Path: "/inventory/movements", Permission: "inventory.movements.view"},
		}},
		{Key: "procurement", Label: "Procurement", Children: []NavigationNode{
			{Key: "procurement.orders", Label: "Purchase Orders", Path: "/procurement/orders", Permission: "procurement.orders.view"},
		}},
		{Key: "reports", Label: "Reports", Children: []NavigationNode{
			{Key: "reports.finance", Label: "Finance", Path: "/reports/finance", Permission: "reports.finance.view"},
			{Key: "reports.operations", Label: "Operations", Path: "/reports/operations", Permission: "reports.operations.view"},
		}},
		{Key: "admin", Label: "Administration", Children: []NavigationNode{
			{Key: "admin.users", Label: "Users", Path: "/admin/users", Permission: "users.view"},
			{Key: "admin.roles", Label: "Roles", Path: "/admin/roles", Permission: "roles.view"},
			{Key: "admin.audit", Label: "Audit Timeline", Path: "/admin/audit", Permission: "audit.timeline.view"},
			{Key: "admin.settings", Label: "Company Settings", Path: "/admin/settings", Permission: "settings.company.view"},
		}},
	}
}

// DefaultActions returns the entity → action bindings resolved into
// GS_<ENTITY>_<ACTION> flags.
func DefaultActions() map[string][]ActionBinding {
	return map[string][]ActionBinding{
		"invoice": {
			{Action: "view", Permission: "billing.invoices.view"},
			{Action: "create", Permission: "billing.invoices.create"},
			{Action: "approve", Permission: "billing.invoices.approve"},
		},
		"payment": {
			{Action: "view", Permission: "billing.payments.view"},
			{Action: "create", Permission: "billing.payments.create"},
		},
		"order": {
			{Action: "view", Permission: "sales.orders.view"},
			{Action: "edit", Permission: "sales.orders.edit"},
			{Action: "approve", Permission: "sales.orders.approve"},
		},
		"item": {
			{Action: "view", Permission: "inventory.items.view"},
			{Action: "edit", Permission: "inventory.items.edit"},
		},
		"user": {
			{Action: "view", Permission: "users.view"},
			{Action: "edit", Permission: "users.edit"},
		},
		"role": {
			{Action: "view", Permission: "roles.view"},
			{Action: "edit", Permission: "roles.edit"},
			{Action: "approve", Permission: "roles.approve"},
			{Action: "assign", Permission: "roles.assign"},
		},
	}
}
