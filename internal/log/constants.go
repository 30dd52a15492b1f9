package log

const (
	KeyAppName            = "app"
	KeyAuthToken          = "authToken"
	KeyCacheKey           = "cacheKey"
	KeyCart               = "cart"
	KeyCartID             = "cartId"
	KeyCartItems          = "cartItems"
	KeyCategory           = "category"
	KeyConfig             = "config"
	KeyDbURL              = "dbUrl"
	KeyEmail              = "email"
	KeyEventID            = "eventId"
	KeyEventType          = "eventType"
	KeyLineItems          = "lineItems"
	KeyOrder              = "order"
	KeyOrderID            = "orderId"
	KeyOrderStatus        = "orderStatus"
	KeyOutboxCount        = "outboxCount"
	KeyPaymentID          = "paymentId"
	KeyProcess            = "process"
	KeyProductID          = "productId"
	KeyProductIDs         = "productIds"
	KeyQuantity           = "quantity"
	KeyRequest            = "request"
	KeyRequestBody        = "requestBody"
	KeyRequestHeader      = "requestHeader"
	KeyRequestHost        = "host"
	KeyRequestID          = "requestId"
	KeyRequestIp          = "requesterIP"
	KeyRequestMethod      = "requestMethod"
	KeyRequestURI         = "requestURI"
	KeyRequestURL         = "requestURL"
	KeyRole               = "role"
	KeySessionID          = "sessionId"
	KeySpanID             = "spanId"
	KeyTag                = "tag"
	KeyTopic              = "topic"
	KeyTotalAmount        = "totalAmount"
	KeyTraceID            = "traceId"
	KeyUserID             = "userId"
	KeyWebhookPayloadSize = "webhookPayloadSize"
)
