// Package bulk выполняет массовые запуски оптимизации и восстановления:
// строго по одному элементу, с остановкой между элементами и отчетом о прогрессе.
package bulk

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/services"
	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

// Ошибки исполнителя.
var (
	ErrInvalidMode = errors.New("неизвестный режим массового запуска")
	ErrEmptyBatch  = errors.New("пустой список изображений")
)

// RunContext передается каждому шагу запуска: токен и признак отмены.
type RunContext struct {
	Token     uint64
	cancelled func() bool
}

// Cancelled сообщает, запрошена ли остановка или запуск вытеснен новым.
func (rc RunContext) Cancelled() bool {
	return rc.cancelled != nil && rc.cancelled()
}

// Run - один массовый запуск.
type Run struct {
	ID    string
	Token uint64
	Mode  models.BulkMode
	Total int

	stop    atomic.Bool
	events  chan models.BulkEvent
	done    chan struct{}
	summary models.BulkSummary
}

// Events возвращает поток событий запуска. Канал закрывается после итоговой сводки.
func (r *Run) Events() <-chan models.BulkEvent {
	return r.events
}

// Wait блокируется до завершения запуска и возвращает сводку.
func (r *Run) Wait() models.BulkSummary {
	<-r.done
	return r.summary
}

// Done закрывается по завершении запуска.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Runner выполняет массовые запуски одного магазина. Одновременно активен только последний запуск.
type Runner struct {
	shop   string
	engine services.ImageOptimizer
	pub    Publisher
	log    *logger.Logger

	mu        sync.Mutex
	token     uint64
	state     models.BulkState
	current   *Run
	processed int
	failed    int
	view      []models.Candidate
}

// NewRunner создает исполнителя для магазина. pub может быть nil.
func NewRunner(shop string, engine services.ImageOptimizer, pub Publisher, log *logger.Logger) *Runner {
	return &Runner{
		shop:   shop,
		engine: engine,
		pub:    pub,
		log:    log.With("component", "BulkRunner", "shop", shop),
		state:  models.BulkIdle,
		view:   make([]models.Candidate, 0),
	}
}

// Start запускает обработку items в фоне. Запуск, начатый ранее, вытесняется:
// он завершится на границе элемента и больше не меняет состояние исполнителя.
// ctx определяет время жизни запуска, а не запроса, который его начал. Отмена ctx
// действует как Stop: текущий элемент доводится до конца, следующий не начинается.
func (r *Runner) Start(
	ctx context.Context,
	creds *models.ShopCredentials,
	mode models.BulkMode,
	items []models.Candidate,
) (*Run, error) {
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	batch := make([]models.Candidate, len(items))
	copy(batch, items)

	r.mu.Lock()
	r.token++
	run := &Run{
		ID:     uuid.NewString(),
		Token:  r.token,
		Mode:   mode,
		Total:  len(batch),
		events: make(chan models.BulkEvent, len(batch)+1),
		done:   make(chan struct{}),
	}
	if prev := r.current; prev != nil {
		r.log.Info("Новый запуск вытесняет предыдущий", "prev_run_id", prev.ID, "run_id", run.ID)
	}
	r.current = run
	r.state = models.BulkRunning
	r.processed, r.failed = 0, 0
	r.view = batch
	r.mu.Unlock()

	rc := RunContext{
		Token: run.Token,
		cancelled: func() bool {
			return run.stop.Load() || !r.isCurrent(run.Token)
		},
	}

	r.log.Info("Массовый запуск начат", "run_id", run.ID, "token", run.Token, "mode", mode, "total", run.Total)
	go r.execute(ctx, rc, run, creds, batch)
	return run, nil
}

// Stop просит текущий запуск остановиться после элемента, который обрабатывается сейчас.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil || r.state != models.BulkRunning {
		return false
	}
	r.current.stop.Store(true)
	r.state = models.BulkStopping
	r.log.Info("Запрошена остановка", "run_id", r.current.ID)
	return true
}

// Status возвращает снимок состояния. Items - неизменяемая копия текущего представления.
func (r *Runner) Status() models.BulkStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := models.BulkStatus{
		State:     r.state,
		Token:     r.token,
		Processed: r.processed,
		Errors:    r.failed,
		Total:     len(r.view),
		Items:     r.view,
	}
	if r.current != nil {
		st.RunID = r.current.ID
		st.Mode = r.current.Mode
	}
	return st
}

// Current возвращает активный запуск или nil.
func (r *Runner) Current() *Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == models.BulkIdle {
		return nil
	}
	return r.current
}

func (r *Runner) isCurrent(token uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token == token
}

func (r *Runner) execute(
	ctx context.Context,
	rc RunContext,
	run *Run,
	creds *models.ShopCredentials,
	batch []models.Candidate,
) {
	log := r.log.With("run_id", run.ID, "token", run.Token)
	// Сетевые вызовы элемента не прерываются отменой ctx
	work := context.WithoutCancel(ctx)
	handled := make(map[string]struct{}, len(batch))
	processed, failed := 0, 0

	for i, item := range batch {
		if rc.Cancelled() || ctx.Err() != nil {
			break
		}
		if _, dup := handled[item.ID]; dup {
			log.Debug("Повторный элемент пропущен", "asset_id", item.ID)
			continue
		}
		handled[item.ID] = struct{}{}

		updated, err := r.apply(work, creds, run.Mode, item)
		result := &models.BulkItemResult{AssetID: item.ID}
		if err != nil {
			failed++
			result.Error = err.Error()
			log.Warn("Элемент не обработан", "asset_id", item.ID, "error", err)
		} else {
			processed++
			handled[updated.ID] = struct{}{}
			result.Candidate = &updated
		}

		r.record(rc, i, result, processed, failed)
		r.emit(ctx, run, models.BulkEvent{
			Kind:      models.BulkEventProgress,
			Done:      processed + failed,
			Processed: processed,
			Errors:    failed,
			Item:      result,
		})
	}

	r.finish(ctx, log, rc, run, processed, failed)
}

// apply выполняет операцию над элементом и возвращает его обновленное представление.
func (r *Runner) apply(
	ctx context.Context,
	creds *models.ShopCredentials,
	mode models.BulkMode,
	item models.Candidate,
) (models.Candidate, error) {
	switch mode {
	case models.BulkOptimize:
		res, err := r.engine.Commit(ctx, creds, item)
		if err != nil {
			return item, err
		}
		return WithCommit(item, res), nil
	default:
		res, err := r.engine.Restore(ctx, creds, item)
		if err != nil {
			return item, err
		}
		return WithRestore(item, res), nil
	}
}

// record обновляет счетчики и представление, если запуск все еще текущий.
// Представление заменяется новой копией: снимки, выданные ранее, не меняются.
func (r *Runner) record(rc RunContext, index int, result *models.BulkItemResult, processed, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.token != rc.Token {
		return
	}
	r.processed, r.failed = processed, failed
	if result.Candidate == nil || index >= len(r.view) {
		return
	}
	next := make([]models.Candidate, len(r.view))
	copy(next, r.view)
	next[index] = *result.Candidate
	r.view = next
}

func (r *Runner) finish(ctx context.Context, log *logger.Logger, rc RunContext, run *Run, processed, failed int) {
	superseded := !r.isCurrent(rc.Token)
	run.summary = models.BulkSummary{
		RunID:      run.ID,
		Token:      run.Token,
		Processed:  processed,
		Errors:     failed,
		Total:      run.Total,
		Stopped:    run.stop.Load() || ctx.Err() != nil,
		Superseded: superseded,
	}

	r.mu.Lock()
	if r.token == rc.Token {
		r.state = models.BulkCompleted
	}
	r.mu.Unlock()

	r.emit(ctx, run, models.BulkEvent{
		Kind:      models.BulkEventSummary,
		Done:      processed + failed,
		Processed: processed,
		Errors:    failed,
		Stopped:   run.summary.Stopped,
	})
	log.Info("Массовый запуск завершен",
		"processed", processed, "errors", failed, "total", run.Total,
		"stopped", run.summary.Stopped, "superseded", superseded)

	r.mu.Lock()
	if r.token == rc.Token {
		r.state = models.BulkIdle
	}
	r.mu.Unlock()

	close(run.events)
	close(run.done)
}

// emit отправляет событие в поток запуска и, пока запуск текущий, издателю.
// Вытесненный запуск пишет только в собственный поток.
func (r *Runner) emit(ctx context.Context, run *Run, ev models.BulkEvent) {
	ev.RunID = run.ID
	ev.Token = run.Token
	ev.Shop = r.shop
	ev.Mode = run.Mode
	ev.Total = run.Total

	select {
	case run.events <- ev:
	default:
		r.log.Warn("Поток событий запуска переполнен", "run_id", run.ID)
	}

	if r.pub == nil || !r.isCurrent(run.Token) {
		return
	}
	if err := r.pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		r.log.Warn("Не удалось опубликовать событие", "run_id", run.ID, "error", err)
	}
}

// WithCommit возвращает новое представление элемента после оптимизации.
func WithCommit(c models.Candidate, res *models.CommitResult) models.Candidate {
	c.ID = res.NewAssetID
	c.Optimized = true
	c.OriginalKB = res.BeforeKB
	c.OptimizedKB = res.AfterKB
	c.SavedKB = res.BeforeKB - res.AfterKB
	c.Percent = res.Percent
	c.OptimizedURL = res.OptimizedURL
	if res.OptimizedURL != "" {
		c.URL = res.OptimizedURL
	}
	return c
}

// WithRestore возвращает новое представление элемента после восстановления.
func WithRestore(c models.Candidate, res *models.RestoreResult) models.Candidate {
	c = c.ApplyRecord(nil)
	if res.AssetID != "" {
		c.ID = res.AssetID
	}
	if res.URL != "" {
		c.URL = res.URL
	}
	return c
}
