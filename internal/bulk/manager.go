package bulk

import (
	"context"
	"sync"

	"github.com/gofrs/flock"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/services"
	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

// Manager хранит по одному исполнителю на магазин.
type Manager struct {
	engine services.ImageOptimizer
	pub    Publisher
	log    *logger.Logger

	mu      sync.Mutex
	runners map[string]*Runner
	lockDir string
	locks   map[string]*flock.Flock
	active  map[string]int
}

// NewManager создает менеджер исполнителей.
func NewManager(engine services.ImageOptimizer, pub Publisher, log *logger.Logger) *Manager {
	return &Manager{
		engine:  engine,
		pub:     pub,
		log:     log,
		runners: make(map[string]*Runner),
		locks:   make(map[string]*flock.Flock),
		active:  make(map[string]int),
	}
}

// WithLockDir включает межпроцессную блокировку магазина на время его запусков.
// Файлы блокировок те же, что берет CLI.
func (m *Manager) WithLockDir(dir string) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockDir = dir
	return m
}

// Runner возвращает исполнителя магазина, создавая его при первом обращении.
func (m *Manager) Runner(shop string) *Runner {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runnerLocked(shop)
}

func (m *Manager) runnerLocked(shop string) *Runner {
	r, ok := m.runners[shop]
	if !ok {
		r = NewRunner(shop, m.engine, m.pub, m.log)
		m.runners[shop] = r
	}
	return r
}

// Start начинает запуск для магазина creds.Shop. Если задан каталог блокировок,
// блокировка магазина держится, пока не завершатся все его запуски, включая вытесненные.
func (m *Manager) Start(
	ctx context.Context,
	creds *models.ShopCredentials,
	mode models.BulkMode,
	items []models.Candidate,
) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runner := m.runnerLocked(creds.Shop)
	if m.lockDir == "" {
		return runner.Start(ctx, creds, mode, items)
	}

	_, held := m.locks[creds.Shop]
	if !held {
		lock, err := TryLockShop(m.lockDir, creds.Shop)
		if err != nil {
			return nil, err
		}
		m.locks[creds.Shop] = lock
	}

	run, err := runner.Start(ctx, creds, mode, items)
	if err != nil {
		if !held {
			m.unlockLocked(creds.Shop)
		}
		return nil, err
	}
	m.active[creds.Shop]++
	go m.releaseAfter(creds.Shop, run)
	return run, nil
}

// releaseAfter снимает блокировку магазина после его последнего запуска.
func (m *Manager) releaseAfter(shop string, run *Run) {
	<-run.Done()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[shop]--
	if m.active[shop] <= 0 {
		delete(m.active, shop)
		m.unlockLocked(shop)
	}
}

func (m *Manager) unlockLocked(shop string) {
	lock, ok := m.locks[shop]
	if !ok {
		return
	}
	delete(m.locks, shop)
	if err := lock.Unlock(); err != nil {
		m.log.Warn("Не удалось снять блокировку магазина", "shop", shop, "error", err)
	}
}

// StopAll просит остановиться все активные запуски. Используется при завершении сервиса.
func (m *Manager) StopAll() {
	m.mu.Lock()
	runners := make([]*Runner, 0, len(m.runners))
	for _, r := range m.runners {
		runners = append(runners, r)
	}
	m.mu.Unlock()

	for _, r := range runners {
		if r.Stop() {
			if run := r.Current(); run != nil {
				<-run.Done()
			}
		}
	}
}
