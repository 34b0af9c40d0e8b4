package webhook

import "log/slog"

// HandlerFunc 单个事件类型的处理函数
type HandlerFunc func(ev *InboundEvent) error

// Dispatcher 按事件类型路由到注册的处理器。
// 未注册的类型直接确认成功，避免网关对无关事件无限重试。
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

func (d *Dispatcher) Register(eventType string, handler HandlerFunc) {
	d.handlers[eventType] = handler
}

func (d *Dispatcher) Dispatch(ev *InboundEvent) error {
	handler, exists := d.handlers[ev.Type]
	if !exists {
		slog.Info("[Dispatcher] Ignoring unhandled event type", "event_type", ev.Type)
		return nil
	}
	return handler(ev)
}

// RegisteredTypes 已注册的事件类型
func (d *Dispatcher) RegisteredTypes() []string {
	types := make([]string, 0, len(d.handlers))
	for eventType := range d.handlers {
		types = append(types, eventType)
	}
	return types
}
