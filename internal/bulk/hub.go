package bulk

import (
	"context"
	"sync"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

const subscriberBuffer = 64

// Publisher доставляет события массовых запусков подписчикам.
type Publisher interface {
	Publish(ctx context.Context, ev models.BulkEvent) error
}

// Hub - локальная шина событий с подпиской по магазину.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan models.BulkEvent]struct{}
	log  *logger.Logger
}

// NewHub создает локальную шину.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		subs: make(map[string]map[chan models.BulkEvent]struct{}),
		log:  log.With("component", "BulkHub"),
	}
}

// Subscribe подписывает на события магазина. Вызывающий обязан вызвать отписку.
func (h *Hub) Subscribe(shop string) (<-chan models.BulkEvent, func()) {
	ch := make(chan models.BulkEvent, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subs[shop]
	if !ok {
		set = make(map[chan models.BulkEvent]struct{})
		h.subs[shop] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[shop]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, shop)
				}
			}
			close(ch)
		})
	}
}

// Publish рассылает событие подписчикам магазина. Медленный подписчик теряет событие, а не тормозит запуск.
func (h *Hub) Publish(_ context.Context, ev models.BulkEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.Shop] {
		select {
		case ch <- ev:
		default:
			h.log.Warn("Событие отброшено, буфер подписчика заполнен", "shop", ev.Shop, "run_id", ev.RunID)
		}
	}
	return nil
}

// Subscribers возвращает число подписчиков магазина.
func (h *Hub) Subscribers(shop string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[shop])
}
