package constants

const (
	AppStorefront   = "storefront"
	AppApi          = "storefront-api"
	AppMigrate      = "storefront-migrate"
	AppRelay        = "storefront-relay"
	AppNotification = "storefront-notification"
)

const (
	AudienceUser = "storefront-user"
	IssuerUser   = "storefront-user-service"
)

const (
	CookieAccessToken = "accessToken"
	HeaderStripeSig   = "Stripe-Signature"
)
