package apiclient

// Backend endpoints consumed by the portal.
const (
	LoginEndpoint    = "/api/v1/users/login/"
	RegisterEndpoint = "/api/v1/users/register/"
	LogoutEndpoint   = "/api/v1/users/logout/"
	RefreshEndpoint  = "/api/v1/users/refresh/"
	ProfileEndpoint  = "/api/v1/users/profile/"

	VerifyEmailEndpoint = "/api/v1/users/verify-email/"

	IntegrationsEndpoint  = "/api/v1/integrations/"
	OAuthInitiateEndpoint = "/api/v1/integrations/oauth/initiate/"
	OAuthCallbackEndpoint = "/api/v1/integrations/oauth/callback/"

	ContactsImportEndpoint = "/api/v1/contacts/import/"
	ContactsExportEndpoint = "/api/v1/contacts/export/"
)
