package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/AzielCF/az-engage/core/database"
	"github.com/AzielCF/az-engage/core/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID   int `gorm:"primaryKey"`
	Name string
}

func TestTransaction_RollsBackThroughContext(t *testing.T) {
	db := dbtest.Open(t)
	require.NoError(t, db.AutoMigrate(&row{}))
	ctx := context.Background()

	boom := errors.New("boom")
	err := database.Transaction(ctx, db, func(ctx context.Context) error {
		require.NoError(t, database.Conn(ctx, db).Create(&row{ID: 1, Name: "a"}).Error)
		// nested calls join the outer transaction
		return database.Transaction(ctx, db, func(ctx context.Context) error {
			require.NoError(t, database.Conn(ctx, db).Create(&row{ID: 2, Name: "b"}).Error)
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	var n int64
	require.NoError(t, db.Model(&row{}).Count(&n).Error)
	assert.Zero(t, n)

	require.NoError(t, database.Transaction(ctx, db, func(ctx context.Context) error {
		return database.Conn(ctx, db).Create(&row{ID: 3}).Error
	}))
	require.NoError(t, db.Model(&row{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestIsDuplicate(t *testing.T) {
	assert.True(t, database.IsDuplicate(errors.New("UNIQUE constraint failed: contacts.phone")))
	assert.True(t, database.IsDuplicate(errors.New(`ERROR: duplicate key value violates unique constraint "x"`)))
	assert.False(t, database.IsDuplicate(errors.New("other")))
	assert.False(t, database.IsDuplicate(nil))
}
