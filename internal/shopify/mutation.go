package shopify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

// ImageUpload - новые байты изображения для замены.
type ImageUpload struct {
	Data     []byte
	Filename string
	AltText  string
}

// MutationResult - изображение после мутации. ID, как правило, новый.
type MutationResult struct {
	AssetID string
	URL     string
}

// MutationClient изменяет изображения товаров.
type MutationClient interface {
	ReplaceImage(ctx context.Context, creds *models.ShopCredentials, ownerID, assetID string, upload ImageUpload) (*MutationResult, error)
	SetImageSource(ctx context.Context, creds *models.ShopCredentials, ownerID, assetID, srcURL string) (*MutationResult, error)
}

type imagePayload struct {
	ID         string `json:"id,omitempty"`
	Attachment string `json:"attachment,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Src        string `json:"src,omitempty"`
	Alt        string `json:"alt,omitempty"`
}

type imageEnvelope struct {
	Image imagePayload `json:"image"`
}

type imageResponse struct {
	Image struct {
		ID  int64  `json:"id"`
		Src string `json:"src"`
	} `json:"image"`
}

// ErrEmptyMutationResult - API ответил успехом, но не вернул изображение.
var ErrEmptyMutationResult = errors.New("API магазина не вернул изображение")

// ReplaceImage заменяет байты изображения и возвращает новый идентификатор и адрес.
func (c *Client) ReplaceImage(
	ctx context.Context,
	creds *models.ShopCredentials,
	ownerID, assetID string,
	upload ImageUpload,
) (*MutationResult, error) {
	payload := imageEnvelope{Image: imagePayload{
		ID:         assetID,
		Attachment: base64.StdEncoding.EncodeToString(upload.Data),
		Filename:   upload.Filename,
		Alt:        upload.AltText,
	}}
	return c.putImage(ctx, creds, ownerID, assetID, payload)
}

// SetImageSource указывает изображению новый исходный адрес без перекодирования.
func (c *Client) SetImageSource(
	ctx context.Context,
	creds *models.ShopCredentials,
	ownerID, assetID, srcURL string,
) (*MutationResult, error) {
	payload := imageEnvelope{Image: imagePayload{ID: assetID, Src: srcURL}}
	return c.putImage(ctx, creds, ownerID, assetID, payload)
}

func (c *Client) putImage(
	ctx context.Context,
	creds *models.ShopCredentials,
	ownerID, assetID string,
	payload imageEnvelope,
) (*MutationResult, error) {
	path := fmt.Sprintf("products/%s/images/%s.json", ownerID, assetID)

	var resp imageResponse
	if err := c.doJSON(ctx, creds, http.MethodPut, path, payload, &resp); err != nil {
		return nil, err
	}
	if resp.Image.ID == 0 {
		return nil, ErrEmptyMutationResult
	}

	result := &MutationResult{AssetID: strconv.FormatInt(resp.Image.ID, 10), URL: resp.Image.Src}
	c.log.Info("Изображение обновлено",
		"shop", creds.Shop, "owner_id", ownerID, "old_id", assetID, "new_id", result.AssetID)
	return result, nil
}
