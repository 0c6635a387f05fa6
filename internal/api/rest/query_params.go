package rest

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/myeurocoins/coin-catalog/internal/domain"
)

// CoinListQueryParams holds query parameters for coin listing endpoints
type CoinListQueryParams struct {
	// Filters
	CoinType string `form:"type"`
	Country  string `form:"country"`
	Year     int    `form:"year"`
	Series   string `form:"series"`
	Value    string `form:"value"`
	Search   string `form:"search"`

	// Group-scoped ownership filters
	OwnedBy string `form:"owned_by"`
	Status  string `form:"status"`

	// Pagination
	Page     int `form:"page,default=1"`
	PageSize int `form:"page_size,default=50"`
}

// ParseCoinListQuery binds and validates the coin listing query
func ParseCoinListQuery(c *gin.Context) (*CoinListQueryParams, error) {
	var params CoinListQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}
	if params.CoinType != "" && !domain.IsValidCoinType(domain.CoinType(params.CoinType)) {
		return nil, fmt.Errorf("unknown coin type %q", params.CoinType)
	}
	switch params.Status {
	case "", string(domain.OwnershipStatusOwned), string(domain.OwnershipStatusMissing):
	default:
		return nil, fmt.Errorf("unknown ownership status %q", params.Status)
	}
	if params.Value != "" {
		if _, err := decimal.NewFromString(params.Value); err != nil {
			return nil, fmt.Errorf("invalid value %q", params.Value)
		}
	}
	return &params, nil
}

// Filter converts the query parameters to a domain filter
func (p *CoinListQueryParams) Filter() domain.CoinFilter {
	filter := domain.CoinFilter{
		CoinType:        domain.CoinType(p.CoinType),
		Country:         p.Country,
		Year:            p.Year,
		Series:          p.Series,
		OwnedBy:         p.OwnedBy,
		OwnershipStatus: domain.OwnershipStatus(p.Status),
		Search:          p.Search,
	}
	if p.Value != "" {
		if v, err := decimal.NewFromString(p.Value); err == nil {
			filter.Value = &v
		}
	}
	return filter
}

// HistoryQueryParams holds query parameters for the admin history browser
type HistoryQueryParams struct {
	Name     string `form:"name"`
	Month    string `form:"month"` // "2006-01"
	Search   string `form:"search"`
	Page     int    `form:"page,default=1"`
	PageSize int    `form:"page_size,default=100"`
}
