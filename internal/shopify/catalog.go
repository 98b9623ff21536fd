package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

// MaxPageSize - ограничение Admin API на размер страницы.
const MaxPageSize = 250

const productImagesQuery = `query ProductImages($first: Int!, $after: String) {
  products(first: $first, after: $after) {
    pageInfo { hasNextPage endCursor }
    edges {
      node {
        id
        title
        images(first: 250) {
          edges { node { id url width height altText } }
        }
      }
    }
  }
}`

// Image - изображение каталога.
type Image struct {
	ID      string
	URL     string
	Width   int
	Height  int
	AltText string
}

// Container - товар с вложенными изображениями.
type Container struct {
	ID     string
	Title  string
	Images []Image
}

// CatalogPage - одна страница каталога.
type CatalogPage struct {
	Containers []Container
	HasNext    bool
	Cursor     string
}

// CatalogClient постранично читает каталог магазина.
type CatalogClient interface {
	FetchPage(ctx context.Context, creds *models.ShopCredentials, cursor string, pageSize int) (*CatalogPage, error)
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type productsResponse struct {
	Data struct {
		Products struct {
			PageInfo struct {
				HasNextPage bool    `json:"hasNextPage"`
				EndCursor   *string `json:"endCursor"`
			} `json:"pageInfo"`
			Edges []struct {
				Node struct {
					ID     string `json:"id"`
					Title  string `json:"title"`
					Images struct {
						Edges []struct {
							Node struct {
								ID      string  `json:"id"`
								URL     string  `json:"url"`
								Width   int     `json:"width"`
								Height  int     `json:"height"`
								AltText *string `json:"altText"`
							} `json:"node"`
						} `json:"edges"`
					} `json:"images"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"products"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// ErrGraphQL - API принял запрос, но вернул ошибки GraphQL.
var ErrGraphQL = errors.New("ошибка GraphQL")

// FetchPage загружает страницу товаров начиная с курсора (пустой курсор - первая страница).
func (c *Client) FetchPage(
	ctx context.Context,
	creds *models.ShopCredentials,
	cursor string,
	pageSize int,
) (*CatalogPage, error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	vars := map[string]any{"first": pageSize}
	if cursor != "" {
		vars["after"] = cursor
	}

	var resp productsResponse
	err := c.doJSON(ctx, creds, http.MethodPost, "graphql.json",
		graphQLRequest{Query: productImagesQuery, Variables: vars}, &resp)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки страницы каталога: %w", err)
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("%w: %s", ErrGraphQL, strings.Join(msgs, "; "))
	}

	products := resp.Data.Products
	page := &CatalogPage{
		Containers: make([]Container, 0, len(products.Edges)),
		HasNext:    products.PageInfo.HasNextPage,
	}
	if products.PageInfo.EndCursor != nil {
		page.Cursor = *products.PageInfo.EndCursor
	}
	// Без курсора продолжать нельзя, иначе получим ту же страницу снова.
	if page.Cursor == "" {
		page.HasNext = false
	}

	for _, edge := range products.Edges {
		container := Container{
			ID:     NumericID(edge.Node.ID),
			Title:  edge.Node.Title,
			Images: make([]Image, 0, len(edge.Node.Images.Edges)),
		}
		for _, imgEdge := range edge.Node.Images.Edges {
			img := imgEdge.Node
			alt := ""
			if img.AltText != nil {
				alt = *img.AltText
			}
			container.Images = append(container.Images, Image{
				ID:      NumericID(img.ID),
				URL:     img.URL,
				Width:   img.Width,
				Height:  img.Height,
				AltText: alt,
			})
		}
		page.Containers = append(page.Containers, container)
	}
	return page, nil
}
