package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/heraerp/hera-engine/internal/models"
	"github.com/heraerp/hera-engine/internal/store"
	"github.com/stretchr/testify/require"
)

func testEntity(orgID uuid.UUID, entityType, code string) *models.Entity {
	now := time.Now()
	actor := uuid.Must(uuid.NewV7())
	return &models.Entity{
		OrganizationID: orgID,
		EntityType:     entityType,
		EntityName:     code,
		EntityCode:     code,
		SmartCode:      "HERA.REST.CRM.CUSTOMER.ENTITY.v1",
		Status:         models.EntityStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
		CreatedBy:      actor,
		UpdatedBy:      actor,
	}
}

func TestEntityStore_Upsert(t *testing.T) {
	t.Run("insert assigns an id", func(t *testing.T) {
		stores := NewStores()
		ctx := context.Background()
		orgID := uuid.Must(uuid.NewV7())

		entity, err := stores.Entities.Upsert(ctx, &store.EntityUpsert{
			Entity: testEntity(orgID, "customer", "CUST-001"),
		})
		require.NoError(t, err)
		require.NotEqual(t, uuid.Nil, entity.ID)
	})

	t.Run("natural key converges to one row", func(t *testing.T) {
		stores := NewStores()
		ctx := context.Background()
		orgID := uuid.Must(uuid.NewV7())

		first, err := stores.Entities.Upsert(ctx, &store.EntityUpsert{
			Entity: testEntity(orgID, "customer", "CUST-001"),
		})
		require.NoError(t, err)

		update := testEntity(orgID, "customer", "CUST-001")
		update.EntityName = "Renamed"
		second, err := stores.Entities.Upsert(ctx, &store.EntityUpsert{Entity: update})
		require.NoError(t, err)
		require.Equal(t, first.ID, second.ID)
		require.Equal(t, "Renamed", second.EntityName)
	})

	t.Run("update by unknown id returns not found", func(t *testing.T) {
		stores := NewStores()
		ctx := context.Background()
		orgID := uuid.Must(uuid.NewV7())

		entity := testEntity(orgID, "customer", "CUST-001")
		entity.ID = uuid.Must(uuid.NewV7())
		_, err := stores.Entities.Upsert(ctx, &store.EntityUpsert{Entity: entity})
		require.ErrorIs(t, err, store.ErrEntityNotFound)
	})

	t.Run("cross-tenant update by id is rejected", func(t *testing.T) {
		stores := NewStores()
		ctx := context.Background()
		orgA := uuid.Must(uuid.NewV7())
		orgB := uuid.Must(uuid.NewV7())

		created, err := stores.Entities.Upsert(ctx, &store.EntityUpsert{
			Entity: testEntity(orgA, "customer", "CUST-001"),
		})
		require.NoError(t, err)

		foreign := testEntity(orgB, "customer", "CUST-001")
		foreign.ID = created.ID
		_, err = stores.Entities.Upsert(ctx, &store.EntityUpsert{Entity: foreign})
		require.ErrorIs(t, err, store.ErrEntityNotFound)
	})

	t.Run("bundle with missing endpoint writes nothing", func(t *testing.T) {
		stores := NewStores()
		ctx := context.Background()
		orgID := uuid.Must(uuid.NewV7())

		_, err := stores.Entities.Upsert(ctx, &store.EntityUpsert{
			Entity: testEntity(orgID, "customer", "CUST-001"),
			Relationships: []*models.Relationship{
				{
					OrganizationID:   orgID,
					ToEntityID:       uuid.Must(uuid.NewV7()),
					RelationshipType: "has_status",
					SmartCode:        "HERA.REST.WF.STATUS.REL.v1",
					IsActive:         true,
				},
			},
		})
		require.ErrorIs(t, err, store.ErrEndpointNotFound)

		entities, err := stores.Entities.List(ctx, orgID, store.EntityFilter{}, 10, 0)
		require.NoError(t, err)
		require.Empty(t, entities)
	})
}

func TestEntityStore_List(t *testing.T) {
	t.Run("deleted entities are hidden by default", func(t *testing.T) {
		stores := NewStores()
		ctx := context.Background()
		orgID := uuid.Must(uuid.NewV7())

		live, err := stores.Entities.Upsert(ctx, &store.EntityUpsert{
			Entity: testEntity(orgID, "customer", "CUST-001"),
		})
		require.NoError(t, err)

		gone := testEntity(orgID, "customer", "CUST-002")
		gone.Status = models.EntityStatusDeleted
		_, err = stores.Entities.Upsert(ctx, &store.EntityUpsert{Entity: gone})
		require.NoError(t, err)

		entities, err := stores.Entities.List(ctx, orgID, store.EntityFilter{}, 10, 0)
		require.NoError(t, err)
		require.Len(t, entities, 1)
		require.Equal(t, live.ID, entities[0].ID)

		deleted, err := stores.Entities.List(ctx, orgID, store.EntityFilter{Status: models.EntityStatusDeleted}, 10, 0)
		require.NoError(t, err)
		require.Len(t, deleted, 1)
	})

	t.Run("pagination", func(t *testing.T) {
		stores := NewStores()
		ctx := context.Background()
		orgID := uuid.Must(uuid.NewV7())

		for i := 0; i < 5; i++ {
			entity := testEntity(orgID, "customer", "CUST-00"+string(rune('1'+i)))
			entity.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
			_, err := stores.Entities.Upsert(ctx, &store.EntityUpsert{Entity: entity})
			require.NoError(t, err)
		}

		page, err := stores.Entities.List(ctx, orgID, store.EntityFilter{}, 2, 0)
		require.NoError(t, err)
		require.Len(t, page, 2)

		page, err = stores.Entities.List(ctx, orgID, store.EntityFilter{}, 2, 4)
		require.NoError(t, err)
		require.Len(t, page, 1)

		page, err = stores.Entities.List(ctx, orgID, store.EntityFilter{}, 2, 10)
		require.NoError(t, err)
		require.Empty(t, page)
	})
}

func TestEntityStore_SetDynamicFields(t *testing.T) {
	t.Run("replaces prior value keeping identity", func(t *testing.T) {
		stores := NewStores()
		ctx := context.Background()
		orgID := uuid.Must(uuid.NewV7())

		entity, err := stores.Entities.Upsert(ctx, &store.EntityUpsert{
			Entity: testEntity(orgID, "customer", "CUST-001"),
		})
		require.NoError(t, err)

		text := "first"
		field := &models.DynamicField{
			OrganizationID: orgID,
			EntityID:       entity.ID,
			FieldName:      "note",
			FieldType:      models.FieldTypeText,
			SmartCode:      "HERA.REST.CRM.CUSTOMER.FIELD.v1",
			ValueText:      &text,
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		}
		require.NoError(t, stores.Entities.SetDynamicFields(ctx, []*models.DynamicField{field}))

		fields, err := stores.Entities.GetDynamicFields(ctx, orgID, entity.ID)
		require.NoError(t, err)
		require.Len(t, fields, 1)
		firstID := fields[0].ID

		replacement := "second"
		field2 := &models.DynamicField{
			OrganizationID: orgID,
			EntityID:       entity.ID,
			FieldName:      "note",
			FieldType:      models.FieldTypeText,
			SmartCode:      "HERA.REST.CRM.CUSTOMER.FIELD.v1",
			ValueText:      &replacement,
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		}
		require.NoError(t, stores.Entities.SetDynamicFields(ctx, []*models.DynamicField{field2}))

		fields, err = stores.Entities.GetDynamicFields(ctx, orgID, entity.ID)
		require.NoError(t, err)
		require.Len(t, fields, 1)
		require.Equal(t, firstID, fields[0].ID)
		require.Equal(t, "second", *fields[0].ValueText)
	})

	t.Run("unknown entity rejects the whole batch", func(t *testing.T) {
		stores := NewStores()
		ctx := context.Background()
		orgID := uuid.Must(uuid.NewV7())

		entity, err := stores.Entities.Upsert(ctx, &store.EntityUpsert{
			Entity: testEntity(orgID, "customer", "CUST-001"),
		})
		require.NoError(t, err)

		text := "value"
		good := &models.DynamicField{
			OrganizationID: orgID,
			EntityID:       entity.ID,
			FieldName:      "good",
			FieldType:      models.FieldTypeText,
			ValueText:      &text,
		}
		bad := &models.DynamicField{
			OrganizationID: orgID,
			EntityID:       uuid.Must(uuid.NewV7()),
			FieldName:      "bad",
			FieldType:      models.FieldTypeText,
			ValueText:      &text,
		}

		err = stores.Entities.SetDynamicFields(ctx, []*models.DynamicField{good, bad})
		require.ErrorIs(t, err, store.ErrEntityNotFound)

		fields, err := stores.Entities.GetDynamicFields(ctx, orgID, entity.ID)
		require.NoError(t, err)
		require.Empty(t, fields)
	})
}
