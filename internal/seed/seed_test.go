package seed

import (
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:seed_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	stmts := []string{
		`CREATE TABLE restaurants (id BIGINT PRIMARY KEY, slug TEXT NOT NULL UNIQUE, name TEXT NOT NULL, created_at DATETIME NOT NULL)`,
		`CREATE TABLE products (id BIGINT PRIMARY KEY, restaurant_id BIGINT NOT NULL, name TEXT NOT NULL, category TEXT NOT NULL,
			price NUMERIC NOT NULL, extras TEXT NOT NULL, excludes TEXT NOT NULL, active BOOLEAN NOT NULL, created_at DATETIME NOT NULL)`,
	}
	for _, stmt := range stmts {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func TestEnsureDemoRestaurantIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	slugValue, err := EnsureDemoRestaurant(db, node)
	require.NoError(t, err)
	assert.Equal(t, "lungo-trattoria", slugValue)

	_, err = EnsureDemoRestaurant(db, node)
	require.NoError(t, err)

	var restaurants, products int64
	require.NoError(t, db.Raw(`SELECT COUNT(1) FROM restaurants`).Scan(&restaurants).Error)
	require.NoError(t, db.Raw(`SELECT COUNT(1) FROM products`).Scan(&products).Error)
	assert.Equal(t, int64(1), restaurants)
	assert.Equal(t, int64(len(demoMenu)), products)
}
