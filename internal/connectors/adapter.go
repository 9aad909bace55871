package connectors

import "context"

// Adapter — контракт бэкенд-адаптера. Реализации живут за пределами ядра
// шлюза; ядро знает только этот интерфейс.
//
// Требования к реализациям:
//   - уважать ctx: при истечении дедлайна или отмене вернуть ctx.Err()
//     как можно быстрее, не оставляя вызов подвешенным;
//   - не паниковать: любой сбой — это error, который Resilience-слой
//     классифицирует до выхода наружу;
//   - при троттлинге бэкенда возвращать *ThrottleError с Retry-After.
type Adapter interface {
	Execute(ctx context.Context, capName string, args []byte) ([]byte, error)
}
