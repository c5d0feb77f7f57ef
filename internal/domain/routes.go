package domain

// Portal navigation targets.
const (
	LoginPath        = "/auth/login"
	RegisterPath     = "/auth/register"
	VerifyEmailPath  = "/auth/verify-email"
	DashboardPath    = "/dashboard"
	IntegrationsPath = "/integrations"
)

// RedirectParam carries the originally requested path through the login page.
const RedirectParam = "redirect"
