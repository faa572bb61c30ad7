package repositories_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storefront/internal/models"
	"storefront/internal/repositories"
)

// newTestDB opens a private in-memory SQLite database with the schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.CartItem{},
		&models.Coupon{},
		&models.Order{},
		&models.OrderLine{},
	))
	return db
}

func paidOrder(owner, ref string) *models.Order {
	return &models.Order{
		OwnerUserID: owner,
		Lines: []models.OrderLine{
			{ProductRef: "p1", Quantity: 2, UnitPrice: 10000},
			{ProductRef: "p2", Quantity: 1, UnitPrice: 2500},
		},
		Subtotal:           22500,
		Discount:           2250,
		TotalAmount:        20250,
		CouponCode:         "GIFTAAAAAA",
		PaymentMethod:      models.PaymentMethodCard,
		PaymentStatus:      models.PaymentStatusPaid,
		ExternalPaymentRef: ref,
	}
}

func TestGORMOrderRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewGORMOrderRepository(newTestDB(t))

	order := paidOrder("user-1", "plink_1")
	require.NoError(t, repo.Create(ctx, order))
	assert.NotEmpty(t, order.ID)

	found, err := repo.FindByExternalRef(ctx, "plink_1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
	assert.Len(t, found.Lines, 2)
	assert.Equal(t, int64(20250), found.TotalAmount)

	byID, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "plink_1", byID.ExternalPaymentRef)

	_, err = repo.FindByExternalRef(ctx, "plink_missing")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestGORMOrderRepository_DuplicateExternalRef(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := repositories.NewGORMOrderRepository(db)

	require.NoError(t, repo.Create(ctx, paidOrder("user-1", "plink_dup")))

	err := repo.Create(ctx, paidOrder("user-1", "plink_dup"))
	assert.ErrorIs(t, err, repositories.ErrDuplicateExternalRef)

	var orders, lines int64
	require.NoError(t, db.Model(&models.Order{}).Where("external_payment_ref = ?", "plink_dup").Count(&orders).Error)
	require.NoError(t, db.Model(&models.OrderLine{}).Count(&lines).Error)
	assert.Equal(t, int64(1), orders)
	assert.Equal(t, int64(2), lines, "lines of the rejected order must be rolled back")
}

func TestGORMOrderRepository_TransitionStatus(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewGORMOrderRepository(newTestDB(t))

	order := paidOrder("user-1", "wallet_1")
	order.PaymentMethod = models.PaymentMethodWallet
	order.PaymentStatus = models.PaymentStatusPending
	require.NoError(t, repo.Create(ctx, order))

	pending := []models.PaymentStatus{models.PaymentStatusPending}
	pendingOrCancelled := []models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusCancelled}

	changed, err := repo.TransitionStatus(ctx, "wallet_1", pending, models.PaymentStatusCancelled)
	require.NoError(t, err)
	assert.True(t, changed)

	// A late completion revives a cancelled order exactly once.
	changed, err = repo.TransitionStatus(ctx, "wallet_1", pendingOrCancelled, models.PaymentStatusPaid)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = repo.TransitionStatus(ctx, "wallet_1", pendingOrCancelled, models.PaymentStatusPaid)
	require.NoError(t, err)
	assert.False(t, changed)

	// Paid is terminal.
	changed, err = repo.TransitionStatus(ctx, "wallet_1", []models.PaymentStatus{models.PaymentStatusPaid}, models.PaymentStatusCancelled)
	require.NoError(t, err)
	assert.False(t, changed)

	found, err := repo.FindByExternalRef(ctx, "wallet_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, found.PaymentStatus)

	changed, err = repo.TransitionStatus(ctx, "wallet_unknown", pending, models.PaymentStatusPaid)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestGORMOrderRepository_ListByOwner(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewGORMOrderRepository(newTestDB(t))

	require.NoError(t, repo.Create(ctx, paidOrder("user-1", "cod_a")))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, repo.Create(ctx, paidOrder("user-1", "cod_b")))
	require.NoError(t, repo.Create(ctx, paidOrder("user-2", "cod_c")))

	orders, err := repo.ListByOwner(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "cod_b", orders[0].ExternalPaymentRef)
	assert.Len(t, orders[0].Lines, 2)
}

func TestGORMCouponRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewGORMCouponRepository(newTestDB(t))
	now := time.Now()

	coupon := &models.Coupon{
		OwnerUserID:        "user-1",
		Code:               "GIFTAAAAAA",
		DiscountPercentage: 10,
		IsActive:           true,
		ExpirationDate:     now.Add(24 * time.Hour),
	}
	require.NoError(t, repo.Replace(ctx, coupon))

	found, err := repo.FindActive(ctx, "user-1", "GIFTAAAAAA", now)
	require.NoError(t, err)
	assert.Equal(t, 10, found.DiscountPercentage)

	_, err = repo.FindActive(ctx, "user-2", "GIFTAAAAAA", now)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	_, err = repo.FindActive(ctx, "user-1", "GIFTAAAAAA", now.Add(48*time.Hour))
	assert.ErrorIs(t, err, repositories.ErrNotFound, "expired coupons are not active")

	changed, err := repo.Deactivate(ctx, "user-1", "GIFTAAAAAA")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = repo.Deactivate(ctx, "user-1", "GIFTAAAAAA")
	require.NoError(t, err)
	assert.False(t, changed, "deactivation is idempotent")

	_, err = repo.ActiveForOwner(ctx, "user-1", now)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestGORMCouponRepository_AtMostOneActive(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := repositories.NewGORMCouponRepository(db)
	exp := time.Now().Add(time.Hour)

	require.NoError(t, repo.Replace(ctx, &models.Coupon{OwnerUserID: "user-1", Code: "GIFTAAAAAA", DiscountPercentage: 10, IsActive: true, ExpirationDate: exp}))
	require.NoError(t, repo.Replace(ctx, &models.Coupon{OwnerUserID: "user-1", Code: "GIFTBBBBBB", DiscountPercentage: 10, IsActive: true, ExpirationDate: exp}))

	var count int64
	require.NoError(t, db.Model(&models.Coupon{}).Where("owner_user_id = ?", "user-1").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	active, err := repo.ActiveForOwner(ctx, "user-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "GIFTBBBBBB", active.Code)

	// The partial unique index rejects a second active coupon written
	// around the ledger.
	err = db.Create(&models.Coupon{OwnerUserID: "user-1", Code: "GIFTCCCCCC", DiscountPercentage: 5, IsActive: true, ExpirationDate: exp}).Error
	assert.Error(t, err)
}

func TestGORMCartRepository_GetLines(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	products := repositories.NewGORMProductRepository(db)
	carts := repositories.NewGORMCartRepository(db)

	require.NoError(t, products.Create(ctx, &models.Product{ID: "p1", Name: "Laptop", Price: 10000, Stock: 3}))
	require.NoError(t, products.Create(ctx, &models.Product{ID: "p2", Name: "Mouse", Price: 2500, Stock: 3}))
	require.NoError(t, db.Create(&[]models.CartItem{
		{OwnerUserID: "user-1", ProductID: "p1", Quantity: 2},
		{OwnerUserID: "user-1", ProductID: "p2", Quantity: 1},
		{OwnerUserID: "user-1", ProductID: "gone", Quantity: 1},
		{OwnerUserID: "user-2", ProductID: "p1", Quantity: 5},
	}).Error)

	lines, err := carts.GetLines(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []models.CartLine{
		{ProductRef: "p1", UnitPrice: 10000, Quantity: 2},
		{ProductRef: "p2", UnitPrice: 2500, Quantity: 1},
	}, lines)

	empty, err := carts.GetLines(ctx, "user-3")
	require.NoError(t, err)
	assert.Empty(t, empty)

	got, err := products.GetByIDs(ctx, []string{"p2", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Mouse", got[0].Name)
}

func TestMockOrderRepository_MatchesGORMSemantics(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMockOrderRepository()

	require.NoError(t, repo.Create(ctx, paidOrder("user-1", "ref-1")))
	assert.ErrorIs(t, repo.Create(ctx, paidOrder("user-1", "ref-1")), repositories.ErrDuplicateExternalRef)

	changed, err := repo.TransitionStatus(ctx, "ref-1", []models.PaymentStatus{models.PaymentStatusPaid}, models.PaymentStatusCancelled)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = repo.FindByExternalRef(ctx, "ref-2")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
