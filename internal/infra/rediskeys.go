package infra

import "fmt"

const (
	// RedisNamespace — базовый префикс для изоляции данных шлюза в Redis
	RedisNamespace = "toolgate"
)

// Ключи для Sets (состояние)
const (
	RedisKeyBlockedAgents   = RedisNamespace + ":agents:blocked_set"
	RedisKeyLockWarmBlocked = RedisNamespace + ":lock:warmup:blocked"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanBlocklist — сигналы kill-switch вида "agent_id:on|off".
	RedisChanBlocklist = RedisNamespace + ":agents:blocklist-signal"

	// RedisChanPolicyUpdate — консоль просит шлюзы перечитать правила.
	RedisChanPolicyUpdate = RedisNamespace + ":policy-update"

	// RedisChanRegistryUpdate — консоль просит шлюзы перечитать каталог capability.
	RedisChanRegistryUpdate = RedisNamespace + ":registry-update"
)

// RateLimitKey — ключ фиксированного окна для распределенного лимита.
func RateLimitKey(agentID string, window int64) string {
	return fmt.Sprintf("%s:rl:%s:%d", RedisNamespace, agentID, window)
}
