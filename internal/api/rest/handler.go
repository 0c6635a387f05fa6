package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/myeurocoins/coin-catalog/internal/api/middleware"
	"github.com/myeurocoins/coin-catalog/internal/cache"
	"github.com/myeurocoins/coin-catalog/internal/catalog"
	"github.com/myeurocoins/coin-catalog/internal/domain"
	"github.com/myeurocoins/coin-catalog/internal/groups"
	"github.com/myeurocoins/coin-catalog/internal/importer"
	"github.com/myeurocoins/coin-catalog/internal/ledger"
	"github.com/myeurocoins/coin-catalog/internal/logger"
	"github.com/myeurocoins/coin-catalog/internal/store"
	"github.com/myeurocoins/coin-catalog/internal/view"
)

// Handler defines the interface for REST API handlers
type Handler interface {
	// GetCoins lists catalog coins with filters and pagination
	// GET /api/v1/coins?type=<RE|CC>&country=<c>&year=<y>&series=<s>&value=<v>&search=<q>&page=<p>&page_size=<n>
	GetCoins(c *gin.Context)

	// GetCoin retrieves a single coin by catalog id
	// GET /api/v1/coins/:id
	GetCoin(c *gin.Context)

	// GetFilterOptions lists the distinct filterable values
	// GET /api/v1/coins/filters
	GetFilterOptions(c *gin.Context)

	// GetStats returns catalog-wide counts
	// GET /api/v1/stats
	GetStats(c *gin.Context)

	// ListGroups lists active groups
	// GET /api/v1/groups
	ListGroups(c *gin.Context)

	// GetGroup returns the group context: members plus collection stats
	// GET /api/v1/groups/:group_key
	GetGroup(c *gin.Context)

	// GetGroupMembers lists active members of a group
	// GET /api/v1/groups/:group_key/members
	GetGroupMembers(c *gin.Context)

	// GetGroupCoins returns one page of coins annotated with group ownership
	// GET /api/v1/groups/:group_key/coins?owned_by=<member>&status=<owned|missing>&...
	GetGroupCoins(c *gin.Context)

	// GetGroupCoinOwners lists the group members currently holding a coin
	// GET /api/v1/groups/:group_key/coins/:id/owners
	GetGroupCoinOwners(c *gin.Context)

	// CreateGroup registers a new group
	// POST /api/v1/groups
	CreateGroup(c *gin.Context)

	// RenameGroup changes a group's display name
	// PATCH /api/v1/groups/:group_key
	RenameGroup(c *gin.Context)

	// DeleteGroup soft-deletes a group and its memberships
	// DELETE /api/v1/groups/:group_key
	DeleteGroup(c *gin.Context)

	// AddGroupMember enrolls an owner name into a group
	// POST /api/v1/groups/:group_key/members
	AddGroupMember(c *gin.Context)

	// UpdateGroupMember updates a member's alias
	// PATCH /api/v1/groups/:group_key/members/:name
	UpdateGroupMember(c *gin.Context)

	// RemoveGroupMember soft-deletes a membership
	// DELETE /api/v1/groups/:group_key/members/:name
	RemoveGroupMember(c *gin.Context)

	// AddOwnership records a coin acquisition
	// POST /api/v1/ownership
	AddOwnership(c *gin.Context)

	// RemoveOwnership records a coin release
	// DELETE /api/v1/ownership
	RemoveOwnership(c *gin.Context)

	// GetOwnedCoins lists an owner's current holdings, optionally scoped to
	// a group's membership
	// GET /api/v1/owners/:name/coins?group=<group_key>
	GetOwnedCoins(c *gin.Context)

	// GetOwnershipHistory returns the raw event trail for one owner and coin
	// GET /api/v1/owners/:name/coins/:id/history
	GetOwnershipHistory(c *gin.Context)

	// ClassifyCatalogUpload previews a catalog CSV against the live catalog
	// POST /api/v1/admin/catalog/classify
	ClassifyCatalogUpload(c *gin.Context)

	// ImportCatalog commits selected rows of a catalog CSV
	// POST /api/v1/admin/catalog/import
	ImportCatalog(c *gin.Context)

	// ExportCatalog streams the whole catalog as CSV
	// GET /api/v1/admin/catalog/export
	ExportCatalog(c *gin.Context)

	// ResetCatalog deletes every catalog row
	// POST /api/v1/admin/catalog/reset
	ResetCatalog(c *gin.Context)

	// ClassifyHistoryUpload previews a history CSV against the ledger
	// POST /api/v1/admin/history/classify
	ClassifyHistoryUpload(c *gin.Context)

	// ImportHistory commits the new rows of a history CSV
	// POST /api/v1/admin/history/import
	ImportHistory(c *gin.Context)

	// ExportHistory streams the raw ledger as CSV
	// GET /api/v1/admin/history/export
	ExportHistory(c *gin.Context)

	// GetHistory pages through raw ledger rows
	// GET /api/v1/admin/history?name=<n>&month=<2006-01>&search=<q>&page=<p>
	GetHistory(c *gin.Context)

	// GetHistoryNames lists distinct owner names in the ledger
	// GET /api/v1/admin/history/names
	GetHistoryNames(c *gin.Context)

	// ResetHistory deletes every ledger row
	// POST /api/v1/admin/history/reset
	ResetHistory(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	debug    bool
	catalog  *catalog.Service
	ledger   *ledger.Service
	groups   *groups.Directory
	composer *view.Composer
	importer *importer.Service
	store    store.Store
	cache    *cache.Service
}

// NewHandler creates a new REST API handler
func NewHandler(
	debug bool,
	catalogSvc *catalog.Service,
	ledgerSvc *ledger.Service,
	directory *groups.Directory,
	composer *view.Composer,
	importerSvc *importer.Service,
	st store.Store,
	cacheSvc *cache.Service,
) Handler {
	return &handler{
		debug:    debug,
		catalog:  catalogSvc,
		ledger:   ledgerSvc,
		groups:   directory,
		composer: composer,
		importer: importerSvc,
		store:    st,
		cache:    cacheSvc,
	}
}

// GetCoins lists catalog coins with filters and pagination
func (h *handler) GetCoins(c *gin.Context) {
	params, err := ParseCoinListQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	page, err := h.catalog.Coins(c.Request.Context(), params.Filter(), params.Page, params.PageSize)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetCoin retrieves a single coin by catalog id
func (h *handler) GetCoin(c *gin.Context) {
	coinID := c.Param("id")
	if coinID == "" {
		respondBadRequest(c, "Coin id is required")
		return
	}

	coin, err := h.catalog.CoinByID(c.Request.Context(), coinID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, coin)
}

// GetFilterOptions lists the distinct filterable values
func (h *handler) GetFilterOptions(c *gin.Context) {
	options, err := h.catalog.FilterOptions(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, options)
}

// GetStats returns catalog-wide counts
func (h *handler) GetStats(c *gin.Context) {
	stats, err := h.catalog.Stats(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListGroups lists active groups
func (h *handler) ListGroups(c *gin.Context) {
	list, err := h.groups.List(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": list})
}

// GetGroup returns the group context: members plus collection stats
func (h *handler) GetGroup(c *gin.Context) {
	view, err := h.composer.GroupContext(c.Request.Context(), c.Param("group_key"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetGroupMembers lists active members of a group
func (h *handler) GetGroupMembers(c *gin.Context) {
	members, err := h.groups.Members(c.Request.Context(), c.Param("group_key"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// GetGroupCoins returns one page of coins annotated with group ownership
func (h *handler) GetGroupCoins(c *gin.Context) {
	params, err := ParseCoinListQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	coins, meta, err := h.composer.GroupCoins(c.Request.Context(),
		c.Param("group_key"), params.Filter(), params.Page, params.PageSize)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coins": coins, "page": meta})
}

// GetGroupCoinOwners lists the group members currently holding a coin
func (h *handler) GetGroupCoinOwners(c *gin.Context) {
	owners, err := h.composer.CoinOwners(c.Request.Context(), c.Param("group_key"), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owners": owners})
}

type groupRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateGroup registers a new group
func (h *handler) CreateGroup(c *gin.Context) {
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	group, err := h.groups.Create(c.Request.Context(), req.Name)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

// RenameGroup changes a group's display name
func (h *handler) RenameGroup(c *gin.Context) {
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	group, err := h.groups.Rename(c.Request.Context(), c.Param("group_key"), req.Name)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

// DeleteGroup soft-deletes a group and its memberships
func (h *handler) DeleteGroup(c *gin.Context) {
	if err := h.groups.Delete(c.Request.Context(), c.Param("group_key")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type memberRequest struct {
	Name  string `json:"name" binding:"required"`
	Alias string `json:"alias"`
}

// AddGroupMember enrolls an owner name into a group
func (h *handler) AddGroupMember(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	member, err := h.groups.AddMember(c.Request.Context(), c.Param("group_key"), req.Name, req.Alias)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

type aliasRequest struct {
	Alias string `json:"alias"`
}

// UpdateGroupMember updates a member's alias
func (h *handler) UpdateGroupMember(c *gin.Context) {
	var req aliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	err := h.groups.SetMemberAlias(c.Request.Context(), c.Param("group_key"), c.Param("name"), req.Alias)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveGroupMember soft-deletes a membership
func (h *handler) RemoveGroupMember(c *gin.Context) {
	err := h.groups.RemoveMember(c.Request.Context(), c.Param("group_key"), c.Param("name"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type ownershipRequest struct {
	Name   string `json:"name" binding:"required"`
	CoinID string `json:"coin_id" binding:"required"`
	Date   string `json:"date" binding:"required"` // "2006-01-02"
}

func (r ownershipRequest) toDomain(subject string) (domain.OwnershipRequest, error) {
	date, err := time.Parse("2006-01-02", r.Date)
	if err != nil {
		return domain.OwnershipRequest{}, err
	}
	return domain.OwnershipRequest{
		Name:      r.Name,
		CoinID:    r.CoinID,
		Date:      date,
		CreatedBy: subject,
	}, nil
}

// AddOwnership records a coin acquisition
func (h *handler) AddOwnership(c *gin.Context) {
	var req ownershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	request, err := req.toDomain(middleware.AuthSubject(c))
	if err != nil {
		respondValidationError(c, "date must be formatted as 2006-01-02")
		return
	}

	eventID, err := h.ledger.Add(c.Request.Context(), request)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	logger.InfoCtx(c.Request.Context(), "ownership recorded",
		zap.String("event_id", eventID),
		zap.String("name", request.Name),
		zap.String("coin_id", request.CoinID),
	)
	c.JSON(http.StatusCreated, gin.H{"id": eventID})
}

// RemoveOwnership records a coin release
func (h *handler) RemoveOwnership(c *gin.Context) {
	var req ownershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	request, err := req.toDomain(middleware.AuthSubject(c))
	if err != nil {
		respondValidationError(c, "date must be formatted as 2006-01-02")
		return
	}

	eventID, err := h.ledger.Remove(c.Request.Context(), request)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": eventID})
}

// GetOwnedCoins lists an owner's current holdings
func (h *handler) GetOwnedCoins(c *gin.Context) {
	var groupID string
	if groupKey := c.Query("group"); groupKey != "" {
		group, err := h.groups.Get(c.Request.Context(), groupKey)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		groupID = group.ID
	}

	owned, err := h.ledger.OwnedCoins(c.Request.Context(), c.Param("name"), groupID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coins": owned})
}

// GetOwnershipHistory returns the raw event trail for one owner and coin
func (h *handler) GetOwnershipHistory(c *gin.Context) {
	trail, err := h.ledger.History(c.Request.Context(), c.Param("name"), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": trail})
}

// ClassifyCatalogUpload previews a catalog CSV against the live catalog
func (h *handler) ClassifyCatalogUpload(c *gin.Context) {
	rows, ok := h.parseCatalogUpload(c)
	if !ok {
		return
	}

	verdicts, err := h.importer.ClassifyCoins(c.Request.Context(), rows)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": verdicts})
}

// ImportCatalog commits selected rows of a catalog CSV. An optional "ids"
// form field (comma separated) restricts the commit to those coin ids;
// without it every uploaded row is attempted.
func (h *handler) ImportCatalog(c *gin.Context) {
	rows, ok := h.parseCatalogUpload(c)
	if !ok {
		return
	}

	if ids := c.PostForm("ids"); ids != "" {
		selected := make(map[string]struct{})
		for _, id := range strings.Split(ids, ",") {
			selected[strings.TrimSpace(id)] = struct{}{}
		}
		filtered := rows[:0]
		for _, row := range rows {
			if _, ok := selected[row.CoinID]; ok {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	result, err := h.importer.ImportCoins(c.Request.Context(), rows)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	logger.InfoCtx(c.Request.Context(), "catalog import finished",
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", len(result.Skipped)),
	)
	c.JSON(http.StatusOK, result)
}

// ExportCatalog streams the whole catalog as CSV
func (h *handler) ExportCatalog(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="catalog.csv"`)
	if err := h.importer.ExportCoins(c.Request.Context(), c.Writer); err != nil {
		respondInternalError(c, err, "Failed to export catalog")
	}
}

// ResetCatalog deletes every catalog row
func (h *handler) ResetCatalog(c *gin.Context) {
	if err := h.store.ResetCatalog(c.Request.Context()); err != nil {
		respondServiceError(c, err)
		return
	}
	h.cache.Clear()
	logger.WarnCtx(c.Request.Context(), "catalog reset")
	c.Status(http.StatusNoContent)
}

// ClassifyHistoryUpload previews a history CSV against the ledger
func (h *handler) ClassifyHistoryUpload(c *gin.Context) {
	entries, ok := h.parseHistoryUpload(c)
	if !ok {
		return
	}

	rows, err := h.importer.ClassifyHistory(c.Request.Context(), entries)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

// ImportHistory commits the new rows of a history CSV
func (h *handler) ImportHistory(c *gin.Context) {
	entries, ok := h.parseHistoryUpload(c)
	if !ok {
		return
	}

	result, err := h.importer.ImportHistory(c.Request.Context(), entries)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	logger.InfoCtx(c.Request.Context(), "history import finished",
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", len(result.Skipped)),
	)
	c.JSON(http.StatusOK, result)
}

// ExportHistory streams the raw ledger as CSV
func (h *handler) ExportHistory(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="history.csv"`)
	if err := h.importer.ExportHistory(c.Request.Context(), c.Writer); err != nil {
		respondInternalError(c, err, "Failed to export history")
	}
}

// GetHistory pages through raw ledger rows
func (h *handler) GetHistory(c *gin.Context) {
	var params HistoryQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	page, err := h.catalog.HistoryEvents(c.Request.Context(), store.HistoryPageFilter{
		Name:   params.Name,
		Month:  params.Month,
		Search: params.Search,
	}, params.Page, params.PageSize)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetHistoryNames lists distinct owner names in the ledger
func (h *handler) GetHistoryNames(c *gin.Context) {
	names, err := h.catalog.HistoryNames(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"names": names})
}

// ResetHistory deletes every ledger row
func (h *handler) ResetHistory(c *gin.Context) {
	if err := h.store.ResetHistory(c.Request.Context()); err != nil {
		respondServiceError(c, err)
		return
	}
	h.cache.Clear()
	logger.WarnCtx(c.Request.Context(), "history reset")
	c.Status(http.StatusNoContent)
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "coin-catalog-api",
	})
}

func (h *handler) parseCatalogUpload(c *gin.Context) ([]importer.CoinRow, bool) {
	file, err := c.FormFile("file")
	if err != nil {
		respondBadRequest(c, "CSV file is required", err.Error())
		return nil, false
	}
	f, err := file.Open()
	if err != nil {
		respondInternalError(c, err, "Failed to open upload")
		return nil, false
	}
	defer f.Close()

	rows, err := h.importer.ParseCoinCSV(f)
	if err != nil {
		respondServiceError(c, err)
		return nil, false
	}
	return rows, true
}

func (h *handler) parseHistoryUpload(c *gin.Context) ([]domain.HistoryEntry, bool) {
	file, err := c.FormFile("file")
	if err != nil {
		respondBadRequest(c, "CSV file is required", err.Error())
		return nil, false
	}
	f, err := file.Open()
	if err != nil {
		respondInternalError(c, err, "Failed to open upload")
		return nil, false
	}
	defer f.Close()

	entries, err := h.importer.ParseHistoryCSV(f)
	if err != nil {
		respondServiceError(c, err)
		return nil, false
	}
	return entries, true
}
