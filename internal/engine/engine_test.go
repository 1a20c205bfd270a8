package engine

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/heraerp/hera-engine/internal/models"
	"github.com/heraerp/hera-engine/internal/store"
	"github.com/heraerp/hera-engine/internal/store/memory"
	"github.com/heraerp/hera-engine/internal/tenant"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, tenant.Context) {
	t.Helper()
	eng := New(memory.NewStores())
	tc := tenant.Context{
		OrganizationID: uuid.Must(uuid.NewV7()),
		ActorUserID:    uuid.Must(uuid.NewV7()),
	}
	return eng, tc
}

func TestEntityUpsert(t *testing.T) {
	t.Run("create new entity", func(t *testing.T) {
		eng, tc := newTestEngine(t)
		ctx := context.Background()

		entity, err := eng.EntityUpsert(ctx, tc, EntityUpsertParams{
			EntityType: "customer",
			EntityName: "Mario's Pizza",
			EntityCode: "CUST-001",
			SmartCode:  "HERA.REST.CRM.CUSTOMER.ENTITY.v1",
		})
		require.NoError(t, err)
		require.NotEqual(t, uuid.Nil, entity.ID)
		require.Equal(t, tc.OrganizationID, entity.OrganizationID)
		require.Equal(t, models.EntityStatusActive, entity.Status)
		require.Equal(t, tc.ActorUserID, entity.CreatedBy)
		require.Equal(t, tc.ActorUserID, entity.UpdatedBy)
		require.False(t, entity.CreatedAt.IsZero())
	})

	t.Run("repeated upsert converges on natural key", func(t *testing.T) {
		eng, tc := newTestEngine(t)
		ctx := context.Background()

		first, err := eng.EntityUpsert(ctx, tc, EntityUpsertParams{
			EntityType: "customer",
			EntityName: "Mario's Pizza",
			EntityCode: "CUST-001",
			SmartCode:  "HERA.REST.CRM.CUSTOMER.ENTITY.v1",
		})
		require.NoError(t, err)

		second, err := eng.EntityUpsert(ctx, tc, EntityUpsertParams{
			EntityType: "customer",
			EntityName: "Mario's Pizzeria",
			EntityCode: "CUST-001",
			SmartCode:  "HERA.REST.CRM.CUSTOMER.ENTITY.v1",
		})
		require.NoError(t, err)
		require.Equal(t, first.ID, second.ID)
		require.Equal(t, "Mario's Pizzeria", second.EntityName)
	})

	t.Run("update by id", func(t *testing.T) {
		eng, tc := newTestEngine(t)
		ctx := context.Background()

		created, err := eng.EntityUpsert(ctx, tc, EntityUpsertParams{
			EntityType: "product",
			EntityName: "Margherita",
			EntityCode: "SKU-001",
			SmartCode:  "HERA.REST.INV.PRODUCT.ENTITY.v1",
		})
		require.NoError(t, err)

		updated, err := eng.EntityUpsert(ctx, tc, EntityUpsertParams{
			EntityID:   &created.ID,
			EntityType: "product",
			EntityName: "Margherita Pizza",
			SmartCode:  "HERA.REST.INV.PRODUCT.ENTITY.v1",
		})
		require.NoError(t, err)
		require.Equal(t, created.ID, updated.ID)
		require.Equal(t, "Margherita Pizza", updated.EntityName)
		require.Equal(t, "SKU-001", updated.EntityCode)
	})

	t.Run("update by unknown id returns NOT_FOUND", func(t *testing.T) {
		eng, tc := newTestEngine(t)
		ctx := context.Background()

		missing := uuid.Must(uuid.NewV7())
		_, err := eng.EntityUpsert(ctx, tc, EntityUpsertParams{
			EntityID:   &missing,
			EntityType: "product",
			EntityName: "Nothing",
			SmartCode:  "HERA.REST.INV.PRODUCT.ENTITY.v1",
		})
		require.Error(t, err)
		require.Equal(t, CodeNotFound, CodeOf(err))
	})

	t.Run("invalid smart code is rejected", func(t *testing.T) {
		eng, tc := newTestEngine(t)
		ctx := context.Background()

		_, err := eng.EntityUpsert(ctx, tc, EntityUpsertParams{
			EntityType: "customer",
			EntityName: "Bad",
			SmartCode:  "HERA.SALE",
		})
		require.Error(t, err)
		require.Equal(t, CodeInvalidSmartCode, CodeOf(err))
	})

	t.Run("missing tenant context is rejected", func(t *testing.T) {
		eng, _ := newTestEngine(t)
		ctx := context.Background()

		_, err := eng.EntityUpsert(ctx, tenant.Context{}, EntityUpsertParams{
			EntityType: "customer",
			EntityName: "Nobody",
			SmartCode:  "HERA.REST.CRM.CUSTOMER.ENTITY.v1",
		})
		require.Error(t, err)
		require.Equal(t, CodeMissingTenantContext, CodeOf(err))
	})

	t.Run("missing actor is rejected", func(t *testing.T) {
		eng, tc := newTestEngine(t)
		ctx := context.Background()

		tc.ActorUserID = uuid.Nil
		_, err := eng.EntityUpsert(ctx, tc, EntityUpsertParams{
			EntityType: "customer",
			EntityName: "Nobody",
			SmartCode:  "HERA.REST.CRM.CUSTOMER.ENTITY.v1",
		})
		require.Error(t, err)
		require.Equal(t, CodeMissingActor, CodeOf(err))
	})

	t.Run("bundle with bad field leaves nothing behind", func(t *testing.T) {
		eng, tc := newTestEngine(t)
		ctx := context.Background()

		_, err := eng.EntityUpsert(ctx, tc, EntityUpsertParams{
			EntityType: "customer",
			EntityName: "Half Written",
			EntityCode: "CUST-042",
			SmartCode:  "HERA.REST.CRM.CUSTOMER.ENTITY.v1",
			DynamicFields: map[string]FieldSpec{
				"credit_limit": {
					Type:      models.FieldTypeNumber,
					Value:     "not a number",
					SmartCode: "HERA.REST.CRM.CUSTOMER.FIELD.v1",
				},
			},
		})
		require.Error(t, err)
		require.Equal(t, CodeTypeMismatch, CodeOf(err))

		entities, err := eng.EntityRead(ctx, tc, EntityReadParams{
			Filter: store.EntityFilter{EntityCode: "CUST-042"},
		})
		require.NoError(t, err)
		require.Empty(t, entities)
	})

	t.Run("bundle writes entity, fields and relationships together", func(t *testing.T) {
		eng, tc := newTestEngine(t)
		ctx := context.Background()

		status, err := eng.EntityUpsert(ctx, tc, EntityUpsertParams{
			EntityType: "workflow_status",
			EntityName: "Active",
			EntityCode: "STATUS-ACTIVE",
			SmartCode:  "HERA.REST.WF.STATUS.ENTITY.v1",
		})
		require.NoError(t, err)

		entity, err := eng.EntityUpsert(ctx, tc, EntityUpsertParams{
			EntityType: "customer",
			EntityName: "Mario's Pizza",
			EntityCode: "CUST-001",
			SmartCode:  "HERA.REST.CRM.CUSTOMER.ENTITY.v1",
			DynamicFields: map[string]FieldSpec{
				"phone": {
					Type:      models.FieldTypeText,
					Value:     "+61 2 5550 1234",
					SmartCode: "HERA.REST.CRM.CUSTOMER.FIELD.v1",
				},
			},
			Relationships: []RelationshipSpec{
				{
					ToEntityID:       status.ID,
					RelationshipType: "has_status",
					SmartCode:        "HERA.REST.WF.STATUS.REL.v1",
				},
			},
			IncludeDynamic:       true,
			IncludeRelationships: true,
		})
		require.NoError(t, err)
		require.Len(t, entity.DynamicFields, 1)
		require.Equal(t, "phone", entity.DynamicFields[0].FieldName)
		require.Len(t, entity.Relationships, 1)
		require.Equal(t, entity.ID, entity.Relationships[0].FromEntityID)
		require.Equal(t, status.ID, entity.Relationships[0].ToEntityID)
	})
}

func TestEntityRead(t *testing.T) {
	t.Run("empty filter match yields empty page", func(t *testing.T) {
		eng, tc := newTestEngine(t)
		ctx := context.Background()

		entities, err := eng.EntityRead(ctx, tc, EntityReadParams{
			Filter: store.EntityFilter{EntityType: "ghost"},
		})
		require.NoError(t, err)
		require.Empty(t, entities)
	})

	t.Run("filters by type and text search", func(t *testing.T) {
		eng, tc := newTestEngine(t)
		ctx := context.Background()

		for _, name := range []string{"Mario's Pizza", "Luigi's Pasta"} {
			_, err := eng.EntityUpsert(ctx, tc, EntityUpsertParams{
				EntityType: "customer",
				EntityName: name,
				EntityCode: "CUST-" + name[:5],
				SmartCode:  "HERA.REST.CRM.CUSTOMER.ENTITY.v1",
			})
			require.NoError(t, err)
		}

		entities, err := eng.EntityRead(ctx, tc, EntityReadParams{
			Filter: store.EntityFilter{EntityType: "customer", TextSearch: "pizza"},
		})
		require.NoError(t, err)
		require.Len(t, entities, 1)
		require.Equal(t, "Mario's Pizza", entities[0].EntityName)
	})

	t.Run("does not leak other organizations", func(t *testing.T) {
		stores := memory.NewStores()
		eng := New(stores)
		ctx := context.Background()

		tcA := tenant.Context{OrganizationID: uuid.Must(uuid.NewV7()), ActorUserID: uuid.Must(uuid.NewV7())}
		tcB := tenant.Context{OrganizationID: uuid.Must(uuid.NewV7()), ActorUserID: uuid.Must(uuid.NewV7())}

		_, err := eng.EntityUpsert(ctx, tcA, EntityUpsertParams{
			EntityType: "customer",
			EntityName: "Org A Customer",
			EntityCode: "CUST-A",
			SmartCode:  "HERA.REST.CRM.CUSTOMER.ENTITY.v1",
		})
		require.NoError(t, err)

		entities, err := eng.EntityRead(ctx, tcB, EntityReadParams{})
		require.NoError(t, err)
		require.Empty(t, entities)
	})
}

func TestDynamicSet(t *testing.T) {
	t.Run("writes typed fields and replaces prior values", func(t *testing.T) {
		eng, tc := newTestEngine(t)
		ctx := context.Background()

		entity, err := eng.EntityUpsert(ctx, tc, EntityUpsertParams{
			EntityType: "customer",
			EntityName: "Mario's Pizza",
			EntityCode: "CUST-001",
			SmartCode:  "HERA.REST.CRM.CUSTOMER.ENTITY.v1",
		})
		require.NoError(t, err)

		fields, err := eng.DynamicSet(ctx, tc, DynamicSetParams{
			EntityID: entity.ID,
			Fields: map[string]FieldSpec{
				"credit_limit": {
					Type:      models.FieldTypeNumber,
					Value:     5000.50,
					SmartCode: "HERA.REST.CRM.CUSTOMER.FIELD.v1",
				},
			},
		})
		require.NoError(t, err)
		require.Len(t, fields, 1)
		require.Equal(t, "5000.5", fields[0].ValueNumber.String())

		fields, err = eng.DynamicSet(ctx, tc, DynamicSetParams{
			EntityID: entity.ID,
			Fields: map[string]FieldSpec{
				"credit_limit": {
					Type:      models.FieldTypeNumber,
					Value:     7500,
					SmartCode: "HERA.REST.CRM.CUSTOMER.FIELD.v1",
				},
			},
		})
		require.NoError(t, err)
		require.Len(t, fields, 1)
		require.Equal(t, "7500", fields[0].ValueNumber.String())
	})

	t.Run("type mismatch writes nothing", func(t *testing.T) {
		eng, tc := newTestEngine(t)
		ctx := context.Background()

		entity, err := eng.EntityUpsert(ctx, tc, EntityUpsertParams{
			EntityType: "customer",
			EntityName: "Mario's Pizza",
			EntityCode: "CUST-001",
			SmartCode:  "HERA.REST.CRM.CUSTOMER.ENTITY.v1",
		})
		require.NoError(t, err)

		_, err = eng.DynamicSet(ctx, tc, DynamicSetParams{
			EntityID: entity.ID,
			Fields: map[string]FieldSpec{
				"phone": {
					Type:      models.FieldTypeText,
					Value:     "+61 2 5550 1234",
					SmartCode: "HERA.REST.CRM.CUSTOMER.FIELD.v1",
				},
				"vip": {
					Type:      models.FieldTypeBoolean,
					Value:     "yes",
					SmartCode: "HERA.REST.CRM.CUSTOMER.FIELD.v1",
				},
			},
		})
		require.Error(t, err)
		require.Equal(t, CodeTypeMismatch, CodeOf(err))

		fields, err := eng.DynamicSet(ctx, tc, DynamicSetParams{EntityID: entity.ID})
		require.NoError(t, err)
		require.Empty(t, fields)
	})

	t.Run("unknown entity returns NOT_FOUND", func(t *testing.T) {
		eng, tc := newTestEngine(t)
		ctx := context.Background()

		_, err := eng.DynamicSet(ctx, tc, DynamicSetParams{
			EntityID: uuid.Must(uuid.NewV7()),
			Fields: map[string]FieldSpec{
				"phone": {
					Type:      models.FieldTypeText,
					Value:     "+61 2 5550 1234",
					SmartCode: "HERA.REST.CRM.CUSTOMER.FIELD.v1",
				},
			},
		})
		require.Error(t, err)
		require.Equal(t, CodeNotFound, CodeOf(err))
	})

	t.Run("unknown entity with no fields returns NOT_FOUND", func(t *testing.T) {
		eng, tc := newTestEngine(t)
		ctx := context.Background()

		_, err := eng.DynamicSet(ctx, tc, DynamicSetParams{
			EntityID: uuid.Must(uuid.NewV7()),
		})
		require.Error(t, err)
		require.Equal(t, CodeNotFound, CodeOf(err))
	})
}

func TestRelationshipUpsert(t *testing.T) {
	t.Run("links two entities", func(t *testing.T) {
		eng, tc := newTestEngine(t)
		ctx := context.Background()

		from := mustUpsertEntity(t, eng, tc, "customer", "CUST-001")
		to := mustUpsertEntity(t, eng, tc, "workflow_status", "STATUS-ACTIVE")

		rel, err := eng.RelationshipUpsert(ctx, tc, RelationshipUpsertParams{
			FromEntityID:     from.ID,
			ToEntityID:       to.ID,
			RelationshipType: "has_status",
			SmartCode:        "HERA.REST.WF.STATUS.REL.v1",
		})
		require.NoError(t, err)
		require.True(t, rel.IsActive)
		require.False(t, rel.EffectiveDate.IsZero())
		require.Equal(t, tc.ActorUserID, rel.CreatedBy)
	})

	t.Run("missing endpoint returns ENDPOINT_NOT_FOUND", func(t *testing.T) {
		eng, tc := newTestEngine(t)
		ctx := context.Background()

		from := mustUpsertEntity(t, eng, tc, "customer", "CUST-001")

		_, err := eng.RelationshipUpsert(ctx, tc, RelationshipUpsertParams{
			FromEntityID:     from.ID,
			ToEntityID:       uuid.Must(uuid.NewV7()),
			RelationshipType: "has_status",
			SmartCode:        "HERA.REST.WF.STATUS.REL.v1",
		})
		require.Error(t, err)
		require.Equal(t, CodeEndpointNotFound, CodeOf(err))
	})

	t.Run("cross-tenant endpoint returns CROSS_TENANT_VIOLATION", func(t *testing.T) {
		stores := memory.NewStores()
		eng := New(stores)
		ctx := context.Background()

		tcA := tenant.Context{OrganizationID: uuid.Must(uuid.NewV7()), ActorUserID: uuid.Must(uuid.NewV7())}
		tcB := tenant.Context{OrganizationID: uuid.Must(uuid.NewV7()), ActorUserID: uuid.Must(uuid.NewV7())}

		from := mustUpsertEntity(t, eng, tcA, "customer", "CUST-001")
		foreign := mustUpsertEntity(t, eng, tcB, "customer", "CUST-002")

		_, err := eng.RelationshipUpsert(ctx, tcA, RelationshipUpsertParams{
			FromEntityID:     from.ID,
			ToEntityID:       foreign.ID,
			RelationshipType: "parent_of",
			SmartCode:        "HERA.REST.CRM.HIERARCHY.REL.v1",
		})
		require.Error(t, err)
		require.Equal(t, CodeCrossTenantViolation, CodeOf(err))
	})
}

func TestRelationshipDeactivate(t *testing.T) {
	t.Run("preserves the row with expiration set", func(t *testing.T) {
		eng, tc := newTestEngine(t)
		ctx := context.Background()

		from := mustUpsertEntity(t, eng, tc, "customer", "CUST-001")
		to := mustUpsertEntity(t, eng, tc, "workflow_status", "STATUS-ACTIVE")

		rel, err := eng.RelationshipUpsert(ctx, tc, RelationshipUpsertParams{
			FromEntityID:     from.ID,
			ToEntityID:       to.ID,
			RelationshipType: "has_status",
			SmartCode:        "HERA.REST.WF.STATUS.REL.v1",
		})
		require.NoError(t, err)

		deactivated, err := eng.RelationshipDeactivate(ctx, tc, rel.ID)
		require.NoError(t, err)
		require.False(t, deactivated.IsActive)
		require.NotNil(t, deactivated.ExpirationDate)
	})

	t.Run("unknown relationship returns NOT_FOUND", func(t *testing.T) {
		eng, tc := newTestEngine(t)
		ctx := context.Background()

		_, err := eng.RelationshipDeactivate(ctx, tc, uuid.Must(uuid.NewV7()))
		require.Error(t, err)
		require.Equal(t, CodeNotFound, CodeOf(err))
	})
}

func mustUpsertEntity(t *testing.T, eng *Engine, tc tenant.Context, entityType, code string) *models.Entity {
	t.Helper()
	entity, err := eng.EntityUpsert(context.Background(), tc, EntityUpsertParams{
		EntityType: entityType,
		EntityName: code,
		EntityCode: code,
		SmartCode:  "HERA.REST.CRM.CUSTOMER.ENTITY.v1",
	})
	require.NoError(t, err)
	return entity
}
