// Package storetest opens throwaway SQLite stores carrying the production schema.
package storetest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tabledesk/internal/migration"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var seq atomic.Int64

// Open returns an isolated in-memory store with migrations applied.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:storetest_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// A shared-cache memory database lives as long as one connection does.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.ApplyUp(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	return node
}

// Fixture holds ids created by Seed.
type Fixture struct {
	RestaurantID snowflake.ID
	Slug         string
	Products     map[string]snowflake.ID
}

// Seed inserts one restaurant and the given products (name -> base price).
// Every product offers the "Bacon" extra at 1.50 and the "Onion" removal at 0.
func Seed(t testing.TB, conn *gorm.DB, node *snowflake.Node, slug string, products map[string]string) Fixture {
	t.Helper()

	now := time.Now().UTC()
	restaurantID := node.Generate()
	if err := conn.Exec(`INSERT INTO restaurants (id, slug, name, created_at) VALUES (?, ?, ?, ?)`,
		restaurantID, slug, slug, now).Error; err != nil {
		t.Fatalf("seed restaurant: %v", err)
	}

	fx := Fixture{RestaurantID: restaurantID, Slug: slug, Products: map[string]snowflake.ID{}}
	for name, price := range products {
		id := node.Generate()
		if err := conn.Exec(`INSERT INTO products (id, restaurant_id, name, category, price, extras, excludes, active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, restaurantID, name, "mains", decimal.RequireFromString(price),
			`[{"label":"Bacon","price":"1.50"}]`, `[{"label":"Onion","price":"0"}]`, true, now,
		).Error; err != nil {
			t.Fatalf("seed product: %v", err)
		}
		fx.Products[name] = id
	}
	return fx
}
