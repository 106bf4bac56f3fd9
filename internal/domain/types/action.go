package types

const (
	ActionRabbitMQConnected       = "rabbitmq_connected"
	ActionRabbitConnectionClosed  = "rabbitmq_connection_closed"
	ActionRabbitConnectionClosing = "rabbitmq_connection_closing"
	ActionRabbitReconnected       = "rabbitmq_reconnection_success"

	ActionOutboxWriteFailed   = "outbox_write_failed"
	ActionOutboxWriteDropped  = "outbox_write_dropped"
	ActionOutboxOverflow      = "outbox_overflow"
	ActionRequestSweepExpired = "request_sweep_expired"
)
