package services_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/repository"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/shopify"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/transcode"
	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

// --- Mocks ---

// memAssetRepository - хранилище записей в памяти с возможностью подставить ошибки.
type memAssetRepository struct {
	mu         sync.Mutex
	records    map[string]models.AssetRecord
	findAllErr error
	deleteErr  error
	deleteMany [][]string
}

func newMemAssetRepository(records ...models.AssetRecord) *memAssetRepository {
	r := &memAssetRepository{records: make(map[string]models.AssetRecord)}
	for _, rec := range records {
		r.records[rec.AssetID] = rec
	}
	return r
}

func (r *memAssetRepository) FindAll(_ context.Context, filter repository.AssetFilter) ([]models.AssetRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findAllErr != nil {
		return nil, r.findAllErr
	}
	out := make([]models.AssetRecord, 0, len(r.records))
	for _, rec := range r.records {
		if filter.Shop != "" && rec.Shop != filter.Shop {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

func (r *memAssetRepository) FindByKey(_ context.Context, assetID string) (*models.AssetRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[assetID]
	if !ok {
		return nil, repository.ErrAssetNotFound
	}
	return &rec, nil
}

func (r *memAssetRepository) Upsert(_ context.Context, record *models.AssetRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := *record
	rec.UpdatedAt = time.Now()
	r.records[rec.AssetID] = rec
	return nil
}

func (r *memAssetRepository) DeleteByKey(_ context.Context, assetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.records, assetID)
	return nil
}

func (r *memAssetRepository) DeleteMany(_ context.Context, assetIDs []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteMany = append(r.deleteMany, assetIDs)
	if r.deleteErr != nil {
		return 0, r.deleteErr
	}
	var n int64
	for _, id := range assetIDs {
		if _, ok := r.records[id]; ok {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

func (r *memAssetRepository) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.records))
	for k := range r.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *memAssetRepository) get(id string) (models.AssetRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	return rec, ok
}

// MockMutationClient is a mock for shopify.MutationClient.
type MockMutationClient struct {
	mock.Mock
}

func (m *MockMutationClient) ReplaceImage(
	ctx context.Context,
	creds *models.ShopCredentials,
	ownerID, assetID string,
	upload shopify.ImageUpload,
) (*shopify.MutationResult, error) {
	args := m.Called(ctx, creds, ownerID, assetID, upload)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return ret.(*shopify.MutationResult), args.Error(1)
}

func (m *MockMutationClient) SetImageSource(
	ctx context.Context,
	creds *models.ShopCredentials,
	ownerID, assetID, srcURL string,
) (*shopify.MutationResult, error) {
	args := m.Called(ctx, creds, ownerID, assetID, srcURL)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return ret.(*shopify.MutationResult), args.Error(1)
}

// fakeTranscoder возвращает результат заданного размера.
type fakeTranscoder struct {
	size   int
	format string
	err    error
	calls  int
	hint   int
}

func (f *fakeTranscoder) Transcode(_ []byte, widthHint int) (*transcode.Output, error) {
	f.calls++
	f.hint = widthHint
	if f.err != nil {
		return nil, f.err
	}
	format := f.format
	if format == "" {
		format = transcode.FormatWebP
	}
	return &transcode.Output{Data: make([]byte, f.size), Format: format, ContentType: "image/" + format}, nil
}

// fakeBackup - архив оригиналов в памяти.
type fakeBackup struct {
	mu         sync.Mutex
	objects    map[string][]byte
	archiveErr error
	presignErr error
}

func newFakeBackup() *fakeBackup {
	return &fakeBackup{objects: make(map[string][]byte)}
}

func (b *fakeBackup) Archive(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.archiveErr != nil {
		return b.archiveErr
	}
	b.objects[key] = data
	return nil
}

func (b *fakeBackup) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if b.presignErr != nil {
		return "", b.presignErr
	}
	return "https://backup.example.com/" + key + "?sig=1", nil
}

func (b *fakeBackup) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *fakeBackup) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

// fakeCatalog отдает страницы по курсору: "" - первая, далее "p2", "p3"...
type fakeCatalog struct {
	pages   []*shopify.CatalogPage
	failAt  int // номер страницы (с 1), на которой вернуть ошибку; 0 - без ошибок
	fetched int
}

var errCatalogDown = errors.New("catalog unavailable")

func (f *fakeCatalog) FetchPage(
	_ context.Context,
	_ *models.ShopCredentials,
	_ string,
	_ int,
) (*shopify.CatalogPage, error) {
	f.fetched++
	if f.failAt == f.fetched {
		return nil, errCatalogDown
	}
	if f.fetched > len(f.pages) {
		return &shopify.CatalogPage{}, nil
	}
	return f.pages[f.fetched-1], nil
}

func page(hasNext bool, containers ...shopify.Container) *shopify.CatalogPage {
	return &shopify.CatalogPage{Containers: containers, HasNext: hasNext, Cursor: "next"}
}

func product(id string, imageIDs ...string) shopify.Container {
	c := shopify.Container{ID: id, Title: "Товар " + id}
	for _, imgID := range imageIDs {
		c.Images = append(c.Images, shopify.Image{
			ID: imgID, URL: "https://cdn.example.com/" + imgID + ".jpg", Width: 1200, Height: 800,
		})
	}
	return c
}
