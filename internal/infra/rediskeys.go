package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "zeus"
)

// Каналы Pub/Sub (сигналы и события)
const (
	// RedisChanPolicyUpdate — широковещательный сигнал "перечитай политику".
	// Все инстансы оркестратора, получив его, атомарно подменяют снапшот.
	RedisChanPolicyUpdate = RedisNamespace + ":policy-update"

	// RedisChanEvents — межинстансный fanout событий шины подписок.
	// Локальные подписчики каждого инстанса получают чужие publish'и отсюда.
	RedisChanEvents = RedisNamespace + ":events"
)
