package rabbitmq

// RecoveryCodeRoutingKey ключ маршрутизации заданий на отправку кода.
const RecoveryCodeRoutingKey = "recovery_code"

// QueueConfig очередь и ключ, которым она привязана к обменнику уведомлений.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// Topology описывает объявляемые обменники и очереди.
type Topology struct {
	EventsExchange        string
	NotificationsExchange string
	Queues                []QueueConfig
}

// GetNotificationQueues возвращает очереди воркера уведомлений.
func GetNotificationQueues(recoveryQueue string) []QueueConfig {
	return []QueueConfig{
		{QueueName: recoveryQueue, RoutingKey: RecoveryCodeRoutingKey},
	}
}
