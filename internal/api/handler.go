// Package api exposes the engine operations over HTTP. The surface is
// deliberately thin: bind, call the engine, translate the result into the
// response envelope. All business rules live in the engine.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/heraerp/hera-engine/internal/engine"
	"github.com/heraerp/hera-engine/internal/models"
	"github.com/heraerp/hera-engine/internal/store"
	"github.com/heraerp/hera-engine/internal/tenant"
	"github.com/rs/zerolog/log"
)

// Handler serves the HTTP operation surface over one engine.
type Handler struct {
	engine *engine.Engine
}

// NewHandler creates a handler over the given engine.
func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{engine: eng}
}

// RegisterRoutes mounts the operation surface on the router.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/organizations", h.OrganizationCreate)

		v1.POST("/entities/upsert", h.EntityUpsert)
		v1.GET("/entities", h.EntityRead)

		v1.POST("/dynamic/set", h.DynamicSet)

		v1.POST("/relationships/upsert", h.RelationshipUpsert)
		v1.POST("/relationships/deactivate", h.RelationshipDeactivate)

		v1.POST("/transactions/emit", h.TransactionEmit)
		v1.POST("/transactions/reverse", h.TransactionReverse)
		v1.GET("/transactions", h.TransactionList)
	}
}

type envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *envelopeError `json:"error,omitempty"`
	// Code carries informational codes on successful responses, such as
	// DUPLICATE_SUPPRESSED.
	Code string `json:"code,omitempty"`
}

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respond(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func respondErr(c *gin.Context, err error) {
	code := engine.CodeOf(err)

	var engineErr *engine.Error
	message := err.Error()
	if errors.As(err, &engineErr) {
		message = engineErr.Message
	}

	status := statusFor(code)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}

	c.JSON(status, envelope{
		Success: false,
		Error:   &envelopeError{Code: code, Message: message},
	})
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, envelope{
		Success: false,
		Error:   &envelopeError{Code: engine.CodeInvalidRequest, Message: "invalid request body: " + err.Error()},
	})
}

func statusFor(code string) int {
	switch code {
	case engine.CodeMissingTenantContext,
		engine.CodeMissingActor,
		engine.CodeInvalidSmartCode,
		engine.CodeInvalidRequest,
		engine.CodeTypeMismatch:
		return http.StatusBadRequest
	case engine.CodeCrossTenantViolation:
		return http.StatusForbidden
	case engine.CodeNotFound, engine.CodeEndpointNotFound:
		return http.StatusNotFound
	case engine.CodeUnbalancedLedger:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) OrganizationCreate(c *gin.Context) {
	var req organizationCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	actorID, err := uuid.Parse(req.ActorUserID)
	if err != nil || actorID == uuid.Nil {
		respondErr(c, engine.NewError(engine.CodeMissingActor, "actor user id is required"))
		return
	}

	org, err := h.engine.OrganizationCreate(c.Request.Context(), actorID, engine.OrganizationCreateParams{
		OrganizationName: req.OrganizationName,
		OrganizationCode: req.OrganizationCode,
		Settings:         req.Settings,
	})
	if err != nil {
		respondErr(c, err)
		return
	}

	respond(c, org)
}

func (h *Handler) EntityUpsert(c *gin.Context) {
	var req entityUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	tc, err := tenantFrom(req.requestContext)
	if err != nil {
		respondErr(c, err)
		return
	}

	entity, err := h.engine.EntityUpsert(c.Request.Context(), tc, req.toParams())
	if err != nil {
		respondErr(c, err)
		return
	}

	respond(c, entity)
}

func (h *Handler) EntityRead(c *gin.Context) {
	tc, err := tenantFromQuery(c)
	if err != nil {
		respondErr(c, err)
		return
	}

	params := engine.EntityReadParams{
		Filter: store.EntityFilter{
			EntityType: c.Query("entity_type"),
			EntityCode: c.Query("entity_code"),
			SmartCode:  c.Query("smart_code"),
			Status:     c.Query("status"),
			TextSearch: c.Query("q"),
		},
		IncludeDynamic:       c.Query("include_dynamic") == "true",
		IncludeRelationships: c.Query("include_relationships") == "true",
		Limit:                queryInt(c, "limit"),
		Offset:               queryInt(c, "offset"),
	}
	if raw := c.Query("entity_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondErr(c, engine.NewError(engine.CodeNotFound, "invalid entity id"))
			return
		}
		params.Filter.EntityID = &id
	}

	entities, err := h.engine.EntityRead(c.Request.Context(), tc, params)
	if err != nil {
		respondErr(c, err)
		return
	}

	if entities == nil {
		entities = []*models.Entity{}
	}
	respond(c, entities)
}

func (h *Handler) DynamicSet(c *gin.Context) {
	var req dynamicSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	tc, err := tenantFrom(req.requestContext)
	if err != nil {
		respondErr(c, err)
		return
	}

	fields, err := h.engine.DynamicSet(c.Request.Context(), tc, engine.DynamicSetParams{
		EntityID: req.EntityID,
		Fields:   toFieldSpecs(req.Fields),
	})
	if err != nil {
		respondErr(c, err)
		return
	}

	respond(c, fields)
}

func (h *Handler) RelationshipUpsert(c *gin.Context) {
	var req relationshipUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	tc, err := tenantFrom(req.requestContext)
	if err != nil {
		respondErr(c, err)
		return
	}

	rel, err := h.engine.RelationshipUpsert(c.Request.Context(), tc, engine.RelationshipUpsertParams{
		FromEntityID:     req.FromEntityID,
		ToEntityID:       req.ToEntityID,
		RelationshipType: req.RelationshipType,
		RelationshipData: req.RelationshipData,
		SmartCode:        req.SmartCode,
		IsActive:         req.IsActive,
		EffectiveDate:    req.EffectiveDate,
	})
	if err != nil {
		respondErr(c, err)
		return
	}

	respond(c, rel)
}

func (h *Handler) RelationshipDeactivate(c *gin.Context) {
	var req relationshipDeactivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	tc, err := tenantFrom(req.requestContext)
	if err != nil {
		respondErr(c, err)
		return
	}

	rel, err := h.engine.RelationshipDeactivate(c.Request.Context(), tc, req.RelationshipID)
	if err != nil {
		respondErr(c, err)
		return
	}

	respond(c, rel)
}

func (h *Handler) TransactionEmit(c *gin.Context) {
	var req transactionEmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	tc, err := tenantFrom(req.requestContext)
	if err != nil {
		respondErr(c, err)
		return
	}

	result, err := h.engine.TransactionEmit(c.Request.Context(), tc, req.toParams())
	if err != nil {
		respondErr(c, err)
		return
	}

	resp := envelope{Success: true, Data: result.Transaction}
	if result.Suppressed {
		resp.Code = engine.CodeDuplicateSuppressed
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) TransactionReverse(c *gin.Context) {
	var req transactionReverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	tc, err := tenantFrom(req.requestContext)
	if err != nil {
		respondErr(c, err)
		return
	}

	reversal, err := h.engine.TransactionReverse(c.Request.Context(), tc, req.TransactionID, req.Reason)
	if err != nil {
		respondErr(c, err)
		return
	}

	respond(c, reversal)
}

func (h *Handler) TransactionList(c *gin.Context) {
	tc, err := tenantFromQuery(c)
	if err != nil {
		respondErr(c, err)
		return
	}

	filter := store.TransactionFilter{
		TransactionType: c.Query("transaction_type"),
		TransactionCode: c.Query("transaction_code"),
		Status:          c.Query("status"),
		SmartCode:       c.Query("smart_code"),
	}
	if raw := c.Query("entity_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondErr(c, engine.NewError(engine.CodeNotFound, "invalid entity id"))
			return
		}
		filter.EntityID = &id
	}

	txns, err := h.engine.TransactionList(c.Request.Context(), tc, filter, queryInt(c, "limit"), queryInt(c, "offset"))
	if err != nil {
		respondErr(c, err)
		return
	}

	if txns == nil {
		txns = []*models.Transaction{}
	}
	respond(c, txns)
}

func tenantFrom(rc requestContext) (tenant.Context, error) {
	tc, err := tenant.New(rc.OrganizationID, rc.ActorUserID)
	if err != nil {
		if errors.Is(err, tenant.ErrMissingActor) {
			return tenant.Context{}, engine.WrapError(engine.CodeMissingActor, err, "actor user id is required")
		}
		return tenant.Context{}, engine.WrapError(engine.CodeMissingTenantContext, err, "organization id is required")
	}
	return tc, nil
}

func tenantFromQuery(c *gin.Context) (tenant.Context, error) {
	return tenantFrom(requestContext{
		OrganizationID: c.Query("organization_id"),
		ActorUserID:    c.Query("actor_user_id"),
	})
}

func queryInt(c *gin.Context, name string) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
