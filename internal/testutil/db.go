package testutil

import (
	"testing"

	"storefront/internal/domain/model"
	"storefront/internal/infra/db"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// インメモリSQLiteのDB（テストごとに新しい）。
// :memory: は接続ごとに別DBになるので接続は1本に絞る。
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return gdb
}

// 商品を1件作る
func SeedProduct(t *testing.T, gdb *gorm.DB, name string, priceCents int64, stock int64, active bool) model.Product {
	t.Helper()

	p := model.Product{
		Name:       name,
		PriceCents: priceCents,
		Stock:      stock,
		IsActive:   active,
	}
	if err := gdb.Create(&p).Error; err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return p
}

// ユーザーを1件作る
func SeedUser(t *testing.T, gdb *gorm.DB, email string, role model.Role) model.User {
	t.Helper()

	u := model.User{
		Email:        email,
		PasswordHash: "x",
		Role:         role,
		IsActive:     true,
	}
	if err := gdb.Create(&u).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return u
}

// 現在の在庫
func Stock(t *testing.T, gdb *gorm.DB, productID int64) int64 {
	t.Helper()

	var p model.Product
	if err := gdb.Unscoped().First(&p, productID).Error; err != nil {
		t.Fatalf("failed to load product: %v", err)
	}
	return p.Stock
}

// テーブルの行数
func Count(t *testing.T, gdb *gorm.DB, m interface{}) int64 {
	t.Helper()

	var n int64
	if err := gdb.Model(m).Count(&n).Error; err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	return n
}
