package test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/elberthomay/storefront/internal/domain"
)

type PostgresSetup struct {
	ConnStr string
	cleanup func()
}

func (p *PostgresSetup) Cleanup() {
	p.cleanup()
}

func SetupPostgres(ctx context.Context, t *testing.T) *PostgresSetup {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("storefront"),
		postgres.WithPassword("storefront"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get connection string: %v", err)
	}

	if err := runMigrations(connStr); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to run migrations: %v", err)
	}

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}

	return &PostgresSetup{ConnStr: connStr, cleanup: cleanup}
}

func runMigrations(connStr string) error {
	migrationsPath := getMigrationsPath()

	m, err := migrate.New(migrationsPath, connStr)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func getMigrationsPath() string {
	_, filename, _, _ := runtime.Caller(0)
	testDir := filepath.Dir(filename)
	projectRoot := filepath.Dir(testDir)
	migrationsDir := filepath.Join(projectRoot, "migrations")
	return "file://" + migrationsDir
}

func SetupKafka(ctx context.Context, t *testing.T) ([]string, func()) {
	t.Helper()

	container, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.8.0",
		kafka.WithClusterID("test-cluster"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}

	brokers, err := container.Brokers(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get kafka brokers: %v", err)
	}

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers, cleanup
}

func OpenDB(connStr string) (*sql.DB, error) {
	return sql.Open("postgres", connStr)
}

// Fixtures inserts test rows directly, bypassing the API surface that is out
// of scope here (signup, address book, shop management).
type Fixtures struct {
	DB *sql.DB
}

// CreateUser inserts a user with a selected address and an active session,
// returning the user id and the session token.
func (f *Fixtures) CreateUser(t *testing.T, privilege int) (userID, token string) {
	t.Helper()

	userID = uuid.New().String()
	token = uuid.New().String()

	_, err := f.DB.Exec(`
		INSERT INTO users (id, email, name, privilege)
		VALUES ($1, $2, $3, $4)
	`, userID, userID+"@example.com", "user-"+userID[:8], privilege)
	if err != nil {
		t.Fatalf("failed to insert user: %v", err)
	}

	_, err = f.DB.Exec(`
		INSERT INTO sessions (token, user_id) VALUES ($1, $2)
	`, token, userID)
	if err != nil {
		t.Fatalf("failed to insert session: %v", err)
	}

	_, err = f.DB.Exec(`
		INSERT INTO addresses (id, user_id, recipient, phone_number, province, city, selected)
		VALUES ($1, $2, 'Recipient', '0800000000', 'Province', 'City', TRUE)
	`, uuid.New().String(), userID)
	if err != nil {
		t.Fatalf("failed to insert address: %v", err)
	}

	return userID, token
}

func (f *Fixtures) CreateShop(t *testing.T, userID, name string) string {
	t.Helper()

	shopID := uuid.New().String()
	_, err := f.DB.Exec(`
		INSERT INTO shops (id, user_id, name) VALUES ($1, $2, $3)
	`, shopID, userID, name)
	if err != nil {
		t.Fatalf("failed to insert shop: %v", err)
	}

	return shopID
}

func (f *Fixtures) CreateItem(t *testing.T, shopID, name string, price int64, quantity int) string {
	t.Helper()

	itemID := uuid.New().String()
	_, err := f.DB.Exec(`
		INSERT INTO items (id, shop_id, name, price, quantity)
		VALUES ($1, $2, $3, $4, $5)
	`, itemID, shopID, name, price, quantity)
	if err != nil {
		t.Fatalf("failed to insert item: %v", err)
	}

	_, err = f.DB.Exec(`
		INSERT INTO item_images (item_id, image_name, image_order)
		VALUES ($1, $2, 0)
	`, itemID, name+".webp")
	if err != nil {
		t.Fatalf("failed to insert item image: %v", err)
	}

	return itemID
}

func (f *Fixtures) AddCartLine(t *testing.T, userID, itemID string, quantity int, selected bool) {
	t.Helper()

	_, err := f.DB.Exec(`
		INSERT INTO cart_lines (user_id, item_id, quantity, selected)
		VALUES ($1, $2, $3, $4)
	`, userID, itemID, quantity, selected)
	if err != nil {
		t.Fatalf("failed to insert cart line: %v", err)
	}
}

func (f *Fixtures) ItemQuantity(t *testing.T, itemID string) int {
	t.Helper()

	var quantity int
	if err := f.DB.QueryRow(`SELECT quantity FROM items WHERE id = $1`, itemID).Scan(&quantity); err != nil {
		t.Fatalf("failed to read item quantity: %v", err)
	}
	return quantity
}

func (f *Fixtures) CartSize(t *testing.T, userID string) int {
	t.Helper()

	var count int
	if err := f.DB.QueryRow(`SELECT COUNT(*) FROM cart_lines WHERE user_id = $1`, userID).Scan(&count); err != nil {
		t.Fatalf("failed to count cart lines: %v", err)
	}
	return count
}

func (f *Fixtures) OrderStatus(t *testing.T, orderID string) domain.OrderStatus {
	t.Helper()

	var status domain.OrderStatus
	if err := f.DB.QueryRow(`SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status); err != nil {
		t.Fatalf("failed to read order status: %v", err)
	}
	return status
}

func (f *Fixtures) OrderCount(t *testing.T, userID string) int {
	t.Helper()

	var count int
	if err := f.DB.QueryRow(`SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&count); err != nil {
		t.Fatalf("failed to count orders: %v", err)
	}
	return count
}
