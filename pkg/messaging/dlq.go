package messaging

// DLQ record headers added when an adapter dead-letters a message. Shared
// across every adapter that has an app-level DLQ path (memory, redis,
// kafka, nats) so the records are uniform regardless of origin backend.
const (
	HeaderOriginalQueue   = "x-original-queue"
	HeaderDeathReason     = "x-death-reason"
	HeaderDeathTime       = "x-death-time"
	HeaderDeliveryAttempts = "x-delivery-attempts"
)

// DeathReasonMaxRetries is the canned reason recorded when a message is
// dead-lettered purely for reaching the delivery-attempt budget, with no
// specific handler error available.
const DeathReasonMaxRetries = "max retries exceeded"
