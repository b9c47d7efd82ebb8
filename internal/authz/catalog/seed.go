package catalog

func system(slug string) Permission { return Permission{Slug: slug, Scope: ScopeSystem} }
func tenant(slug string) Permission { return Permission{Slug: slug, Scope: ScopeTenant} }

// Default returns the built-in permission table shipped with Meridian.
// It mirrors the seed migration and must stay in sync with it.
func Default() *Catalog {
	c, err := New([]Permission{
		// Platform administration (SYSTEM scope).
		system("platform.tenants.view"),
		system("platform.tenants.manage"),
		system("platform.roles.view"),
		system("platform.roles.edit"),
		system("platform.roles.approve"),
		system("platform.users.view"),
		system("platform.users.edit"),
		system("platform.settings.view"),
		system("platform.settings.edit"),
		system("platform.audit.view"),

		// Tenant back office.
		tenant("users.view"),
		tenant("users.edit"),
		tenant("roles.view"),
		tenant("roles.edit"),
		tenant("roles.approve"),
		tenant("roles.assign"),
		tenant("permissions.view"),

		tenant("billing.invoices.view"),
		tenant("billing.invoices.create"),
		tenant("billing.invoices.approve"),
		tenant("billing.payments.view"),
		tenant("billing.payments.create"),

		tenant("inventory.items.view"),
		tenant("inventory.items.edit"),
		tenant("inventory.movements.view"),
		tenant("inventory.movements.post"),

		tenant("sales.quotations.view"),
		tenant("sales.quotations.edit"),
		tenant("sales.orders.view"),
		tenant("sales.orders.edit"),
		tenant("sales.orders.approve"),

		tenant("procurement.orders.view"),
		tenant("procurement.orders.edit"),
		tenant("procurement.orders.approve"),

		tenant("reports.finance.view"),
		tenant("reports.finance.export"),
		tenant("reports.operations.view"),

		tenant("settings.company.view"),
		tenant("settings.company.edit"),
		tenant("audit.timeline.view"),
	})
	if err != nil {
		panic(err)
	}
	return c
}
