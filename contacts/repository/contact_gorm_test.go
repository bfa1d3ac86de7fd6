package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/AzielCF/az-engage/contacts/domain"
	"github.com/AzielCF/az-engage/core/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsert_UniquePerTenantPhone(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewContactGormRepository(db)
	dbtest.Migrate(t, repo)
	ctx := context.Background()

	a, err := repo.Upsert(ctx, "t1", "5511988887777@s.whatsapp.net", "")
	require.NoError(t, err)
	assert.Equal(t, "+5511988887777", a.Phone)

	b, err := repo.Upsert(ctx, "t1", "+55 11 98888-7777", "Maria")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "Maria", b.Name)

	c, err := repo.Upsert(ctx, "t1", "+5511988887777", "Other")
	require.NoError(t, err)
	assert.Equal(t, "Maria", c.Name)

	other, err := repo.Upsert(ctx, "t2", "+5511988887777", "")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, other.ID)

	var count int64
	require.NoError(t, db.Table("contacts").Where("tenant = ?", "t1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpsert_ConcurrentCallsConverge(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewContactGormRepository(db)
	dbtest.Migrate(t, repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := repo.Upsert(ctx, "t1", "+5511900000001", "")
			if err == nil {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestUpsert_RejectsInvalidPhone(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewContactGormRepository(db)
	dbtest.Migrate(t, repo)

	_, err := repo.Upsert(context.Background(), "t1", "123", "")
	assert.ErrorIs(t, err, domain.ErrInvalidPhone)

	_, err = repo.Upsert(context.Background(), "t1", "abc@lid", "")
	assert.ErrorIs(t, err, domain.ErrInvalidPhone)
}

func TestMetadata_Referrer(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewContactGormRepository(db)
	dbtest.Migrate(t, repo)
	ctx := context.Background()

	c, err := repo.Upsert(ctx, "t1", "+5511988887777", "Ana")
	require.NoError(t, err)
	require.NoError(t, repo.UpdateMetadata(ctx, "t1", c.ID, map[string]any{"referrer_name": "Carlos Souza"}))

	got, err := repo.GetByID(ctx, "t1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Carlos Souza", got.Referrer())
}
