//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/heraerp/hera-engine/internal/models"
	"github.com/heraerp/hera-engine/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T, ctx context.Context) (store.Stores, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := NewPool(ctx, &PoolConfig{
		ConnString:  connString,
		AutoMigrate: true,
	})
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return NewStores(pool), cleanup
}

func seedOrganization(t *testing.T, ctx context.Context, stores store.Stores) *models.Organization {
	t.Helper()
	now := time.Now()
	actor := uuid.Must(uuid.NewV7())
	org := &models.Organization{
		ID:               uuid.Must(uuid.NewV7()),
		OrganizationName: "Test Org " + uuid.Must(uuid.NewV7()).String()[:8],
		OrganizationCode: "ORG-" + uuid.Must(uuid.NewV7()).String()[:8],
		Status:           "active",
		CreatedAt:        now,
		UpdatedAt:        now,
		CreatedBy:        actor,
		UpdatedBy:        actor,
	}
	require.NoError(t, stores.Organizations.Create(ctx, org))
	return org
}

func seedTestEntity(t *testing.T, ctx context.Context, stores store.Stores, orgID uuid.UUID, code string) *models.Entity {
	t.Helper()
	now := time.Now()
	actor := uuid.Must(uuid.NewV7())
	entity, err := stores.Entities.Upsert(ctx, &store.EntityUpsert{
		Entity: &models.Entity{
			OrganizationID: orgID,
			EntityType:     "customer",
			EntityName:     code,
			EntityCode:     code,
			SmartCode:      "HERA.REST.CRM.CUSTOMER.ENTITY.v1",
			Status:         models.EntityStatusActive,
			CreatedAt:      now,
			UpdatedAt:      now,
			CreatedBy:      actor,
			UpdatedBy:      actor,
		},
	})
	require.NoError(t, err)
	return entity
}

func TestIntegration_EntityLifecycle(t *testing.T) {
	ctx := context.Background()
	stores, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	org := seedOrganization(t, ctx, stores)

	t.Run("upsert converges on natural key", func(t *testing.T) {
		first := seedTestEntity(t, ctx, stores, org.ID, "CUST-001")
		second := seedTestEntity(t, ctx, stores, org.ID, "CUST-001")
		require.Equal(t, first.ID, second.ID)
	})

	t.Run("get scoped to organization", func(t *testing.T) {
		entity := seedTestEntity(t, ctx, stores, org.ID, "CUST-002")

		fetched, err := stores.Entities.Get(ctx, org.ID, entity.ID)
		require.NoError(t, err)
		require.Equal(t, entity.ID, fetched.ID)

		_, err = stores.Entities.Get(ctx, uuid.Must(uuid.NewV7()), entity.ID)
		require.ErrorIs(t, err, store.ErrEntityNotFound)
	})

	t.Run("dynamic fields replace prior values", func(t *testing.T) {
		entity := seedTestEntity(t, ctx, stores, org.ID, "CUST-003")
		now := time.Now()
		actor := uuid.Must(uuid.NewV7())

		limit := decimal.RequireFromString("5000.50")
		field := &models.DynamicField{
			OrganizationID: org.ID,
			EntityID:       entity.ID,
			FieldName:      "credit_limit",
			FieldType:      models.FieldTypeNumber,
			SmartCode:      "HERA.REST.CRM.CUSTOMER.FIELD.v1",
			ValueNumber:    &limit,
			CreatedAt:      now,
			UpdatedAt:      now,
			CreatedBy:      actor,
			UpdatedBy:      actor,
		}
		require.NoError(t, stores.Entities.SetDynamicFields(ctx, []*models.DynamicField{field}))

		raised := decimal.RequireFromString("7500")
		field.ValueNumber = &raised
		require.NoError(t, stores.Entities.SetDynamicFields(ctx, []*models.DynamicField{field}))

		fields, err := stores.Entities.GetDynamicFields(ctx, org.ID, entity.ID)
		require.NoError(t, err)
		require.Len(t, fields, 1)
		require.True(t, fields[0].ValueNumber.Equal(raised))
	})

	t.Run("update without status keeps archived status", func(t *testing.T) {
		entity := seedTestEntity(t, ctx, stores, org.ID, "CUST-ARCHIVED")
		now := time.Now()
		actor := uuid.Must(uuid.NewV7())

		archived, err := stores.Entities.Upsert(ctx, &store.EntityUpsert{
			Entity: &models.Entity{
				ID:             entity.ID,
				OrganizationID: org.ID,
				EntityType:     "customer",
				EntityName:     entity.EntityName,
				SmartCode:      entity.SmartCode,
				Status:         models.EntityStatusArchived,
				UpdatedAt:      now,
				UpdatedBy:      actor,
			},
		})
		require.NoError(t, err)
		require.Equal(t, models.EntityStatusArchived, archived.Status)

		renamed, err := stores.Entities.Upsert(ctx, &store.EntityUpsert{
			Entity: &models.Entity{
				ID:             entity.ID,
				OrganizationID: org.ID,
				EntityType:     "customer",
				EntityName:     "Renamed Customer",
				SmartCode:      entity.SmartCode,
				UpdatedAt:      now,
				UpdatedBy:      actor,
			},
		})
		require.NoError(t, err)
		require.Equal(t, "Renamed Customer", renamed.EntityName)
		require.Equal(t, models.EntityStatusArchived, renamed.Status)
	})

	t.Run("text search", func(t *testing.T) {
		now := time.Now()
		actor := uuid.Must(uuid.NewV7())
		_, err := stores.Entities.Upsert(ctx, &store.EntityUpsert{
			Entity: &models.Entity{
				OrganizationID: org.ID,
				EntityType:     "customer",
				EntityName:     "Mario's Pizza Palace",
				EntityCode:     "CUST-PIZZA",
				SmartCode:      "HERA.REST.CRM.CUSTOMER.ENTITY.v1",
				Status:         models.EntityStatusActive,
				CreatedAt:      now,
				UpdatedAt:      now,
				CreatedBy:      actor,
				UpdatedBy:      actor,
			},
		})
		require.NoError(t, err)

		entities, err := stores.Entities.List(ctx, org.ID, store.EntityFilter{TextSearch: "pizza"}, 10, 0)
		require.NoError(t, err)
		require.Len(t, entities, 1)
	})
}

func TestIntegration_Relationships(t *testing.T) {
	ctx := context.Background()
	stores, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	org := seedOrganization(t, ctx, stores)
	other := seedOrganization(t, ctx, stores)

	from := seedTestEntity(t, ctx, stores, org.ID, "CUST-001")
	to := seedTestEntity(t, ctx, stores, org.ID, "CUST-002")
	foreign := seedTestEntity(t, ctx, stores, other.ID, "CUST-003")

	now := time.Now()
	actor := uuid.Must(uuid.NewV7())
	edge := func(toID uuid.UUID) *models.Relationship {
		return &models.Relationship{
			OrganizationID:   org.ID,
			FromEntityID:     from.ID,
			ToEntityID:       toID,
			RelationshipType: "parent_of",
			SmartCode:        "HERA.REST.CRM.HIERARCHY.REL.v1",
			IsActive:         true,
			EffectiveDate:    now,
			CreatedAt:        now,
			UpdatedAt:        now,
			CreatedBy:        actor,
			UpdatedBy:        actor,
		}
	}

	t.Run("upsert and deactivate", func(t *testing.T) {
		rel, err := stores.Relationships.Upsert(ctx, edge(to.ID))
		require.NoError(t, err)

		deactivated, err := stores.Relationships.Deactivate(ctx, org.ID, rel.ID, actor, time.Now())
		require.NoError(t, err)
		require.False(t, deactivated.IsActive)
		require.NotNil(t, deactivated.ExpirationDate)
	})

	t.Run("missing endpoint", func(t *testing.T) {
		_, err := stores.Relationships.Upsert(ctx, edge(uuid.Must(uuid.NewV7())))
		require.ErrorIs(t, err, store.ErrEndpointNotFound)
	})

	t.Run("cross-tenant endpoint", func(t *testing.T) {
		_, err := stores.Relationships.Upsert(ctx, edge(foreign.ID))
		require.ErrorIs(t, err, store.ErrWrongOrganization)
	})
}

func TestIntegration_Transactions(t *testing.T) {
	ctx := context.Background()
	stores, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	org := seedOrganization(t, ctx, stores)
	actor := uuid.Must(uuid.NewV7())

	newTxn := func(code, idemKey string) *models.Transaction {
		now := time.Now()
		return &models.Transaction{
			OrganizationID:  org.ID,
			TransactionType: "sale",
			TransactionCode: code,
			TransactionDate: now,
			TotalAmount:     decimal.RequireFromString("472.50"),
			Currency:        "USD",
			Status:          models.TransactionStatusPosted,
			SmartCode:       "HERA.REST.FIN.TXN.SALE.v1",
			IdempotencyKey:  idemKey,
			CreatedAt:       now,
			UpdatedAt:       now,
			CreatedBy:       actor,
			UpdatedBy:       actor,
			Lines: []*models.TransactionLine{
				{
					LineNumber: 1,
					LineType:   "item",
					Quantity:   decimal.NewFromInt(3),
					UnitAmount: decimal.NewFromInt(150),
					LineAmount: decimal.NewFromInt(450),
					SmartCode:  "HERA.REST.FIN.TXN.SALE.ITEM.v1",
					CreatedAt:  now,
					UpdatedAt:  now,
					CreatedBy:  actor,
					UpdatedBy:  actor,
				},
				{
					LineNumber: 2,
					LineType:   "tax",
					LineAmount: decimal.RequireFromString("22.50"),
					SmartCode:  "HERA.REST.FIN.TXN.SALE.TAX.v1",
					CreatedAt:  now,
					UpdatedAt:  now,
					CreatedBy:  actor,
					UpdatedBy:  actor,
				},
			},
		}
	}

	t.Run("emit persists header and lines atomically", func(t *testing.T) {
		emitted, err := stores.Transactions.Emit(ctx, newTxn("TXN-001", ""))
		require.NoError(t, err)

		fetched, err := stores.Transactions.Get(ctx, org.ID, emitted.ID)
		require.NoError(t, err)
		require.Len(t, fetched.Lines, 2)
		require.Equal(t, 1, fetched.Lines[0].LineNumber)
		require.True(t, fetched.TotalAmount.Equal(decimal.RequireFromString("472.50")))
	})

	t.Run("duplicate transaction code", func(t *testing.T) {
		_, err := stores.Transactions.Emit(ctx, newTxn("TXN-DUP", ""))
		require.NoError(t, err)

		_, err = stores.Transactions.Emit(ctx, newTxn("TXN-DUP", ""))
		require.ErrorIs(t, err, store.ErrDuplicateTransactionCode)
	})

	t.Run("idempotency key round trip", func(t *testing.T) {
		emitted, err := stores.Transactions.Emit(ctx, newTxn("TXN-IDEM", "order-1"))
		require.NoError(t, err)

		found, err := stores.Transactions.GetByIdempotencyKey(ctx, org.ID, "order-1")
		require.NoError(t, err)
		require.NotNil(t, found)
		require.Equal(t, emitted.ID, found.ID)
		require.Len(t, found.Lines, 2)

		missing, err := stores.Transactions.GetByIdempotencyKey(ctx, org.ID, "order-unknown")
		require.NoError(t, err)
		require.Nil(t, missing)

		_, err = stores.Transactions.Emit(ctx, newTxn("TXN-IDEM-2", "order-1"))
		require.ErrorIs(t, err, store.ErrDuplicateIdempotencyKey)
	})

	t.Run("list filters", func(t *testing.T) {
		txns, err := stores.Transactions.List(ctx, org.ID, store.TransactionFilter{TransactionCode: "TXN-001"}, 10, 0)
		require.NoError(t, err)
		require.Len(t, txns, 1)
		require.Empty(t, txns[0].Lines)

		none, err := stores.Transactions.List(ctx, org.ID, store.TransactionFilter{TransactionType: "refund"}, 10, 0)
		require.NoError(t, err)
		require.Empty(t, none)
	})
}
