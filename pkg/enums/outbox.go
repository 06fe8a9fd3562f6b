package enums

// OutboxEventType names a domain event emitted through the outbox.
type OutboxEventType string

const (
	EventCorridaCreated         OutboxEventType = "corrida.created"
	EventCorridaAccepted        OutboxEventType = "corrida.accepted"
	EventCorridaPickupStarted   OutboxEventType = "corrida.pickup_started"
	EventCorridaPickupConfirmed OutboxEventType = "corrida.pickup_confirmed"
	EventCorridaStopDelivered   OutboxEventType = "corrida.stop_delivered"
	EventCorridaFinalized       OutboxEventType = "corrida.finalized"
	EventCorridaCancelled       OutboxEventType = "corrida.cancelled"
	EventExternalOrderSynced    OutboxEventType = "extorder.synced"
	EventExternalOrderImported  OutboxEventType = "extorder.imported"
)

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateCorrida       OutboxAggregateType = "corrida"
	AggregateExternalOrder OutboxAggregateType = "external_order"
)
