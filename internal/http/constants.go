package http

const (
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	HeaderRequestID     = "X-Request-Id"
	HeaderValueJson     = "application/json"
)

const (
	StatusFailed  = "failed"
	StatusSuccess = "success"
)
