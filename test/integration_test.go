//go:build integration

package test

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elberthomay/storefront/internal/auth"
	"github.com/elberthomay/storefront/internal/cart"
	"github.com/elberthomay/storefront/internal/domain"
	"github.com/elberthomay/storefront/internal/inventory"
	"github.com/elberthomay/storefront/internal/messaging"
	"github.com/elberthomay/storefront/internal/orders"
	"github.com/elberthomay/storefront/internal/worker"
)

func newAPI(db *sql.DB, publisher orders.TimeoutPublisher) http.Handler {
	logger := slog.Default()
	timeouts := orders.TimeoutConfig{
		Awaiting:   time.Hour,
		Confirmed:  time.Hour,
		Delivering: time.Hour,
	}

	sessionRepo := auth.NewSessionRepository(db)
	itemRepo := inventory.NewItemRepository(db)
	cartRepo := cart.NewCartRepository(db)
	orderRepo := orders.NewOrderRepository(db)

	placement := orders.NewPlacementService(db, cartRepo, itemRepo, orderRepo, publisher, timeouts, nil, logger)
	lifecycle := orders.NewLifecycleService(orderRepo, publisher, timeouts, logger)
	query := orders.NewQueryService(orderRepo)

	mw := auth.NewMiddleware(sessionRepo, logger)
	itemHandler := inventory.NewHandler(itemRepo, logger)
	cartHandler := cart.NewHandler(cartRepo, logger)
	orderHandler := orders.NewHandler(placement, lifecycle, query, orderRepo, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/item/{id}", itemHandler.HandleGet)
	mux.HandleFunc("POST /api/item", mw.Require(itemHandler.HandleCreate))
	mux.HandleFunc("PATCH /api/item/{id}", mw.Require(itemHandler.HandleUpdate))
	mux.HandleFunc("DELETE /api/item/{id}", mw.Require(itemHandler.HandleDelete))
	mux.HandleFunc("GET /api/cart", mw.Require(cartHandler.HandleList))
	mux.HandleFunc("POST /api/cart", mw.Require(cartHandler.HandleAdd))
	mux.HandleFunc("PATCH /api/cart/{itemId}", mw.Require(cartHandler.HandleUpdate))
	mux.HandleFunc("DELETE /api/cart/{itemId}", mw.Require(cartHandler.HandleDelete))
	mux.HandleFunc("POST /api/order/{$}", mw.Require(orderHandler.HandlePlace))
	mux.HandleFunc("GET /api/order", mw.Require(orderHandler.HandleListMine))
	mux.HandleFunc("GET /api/order/shop/{shopId}", mw.Require(orderHandler.HandleListShop))
	mux.HandleFunc("GET /api/order/{orderId}", mw.Require(orderHandler.HandleGet))
	mux.HandleFunc("POST /api/order/{orderId}/confirm", mw.Require(orderHandler.HandleConfirm))
	mux.HandleFunc("POST /api/order/{orderId}/cancel", mw.Require(orderHandler.HandleCancel))
	mux.HandleFunc("POST /api/order/{orderId}/deliver", mw.Require(orderHandler.HandleDeliver))
	return mux
}

func doRequest(handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

type placeResponse struct {
	Status string `json:"status"`
	Orders []struct {
		ID       string `json:"id"`
		ShopID   string `json:"shop_id"`
		ShopName string `json:"shop_name"`
		Status   string `json:"status"`
		Total    int64  `json:"total"`
		Items    []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Price    int64  `json:"price"`
			Quantity int    `json:"quantity"`
			Image    string `json:"image"`
		} `json:"items"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"orders"`
}

func placeOrder(t *testing.T, api http.Handler, token string) (*httptest.ResponseRecorder, *placeResponse) {
	t.Helper()
	rec := doRequest(api, http.MethodPost, "/api/order/", token, "")
	if rec.Code != http.StatusOK {
		return rec, nil
	}
	var resp placeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode place response: %v", err)
	}
	return rec, &resp
}

func TestPlaceOrderScenario(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	f := &Fixtures{DB: db}
	api := newAPI(db, nil)

	sellerID, _ := f.CreateUser(t, domain.PrivilegeUser)
	shopID := f.CreateShop(t, sellerID, "scenario-shop")
	itemID := f.CreateItem(t, shopID, "ceramic mug", 1500, 5)

	buyerID, buyerToken := f.CreateUser(t, domain.PrivilegeUser)
	f.AddCartLine(t, buyerID, itemID, 4, true)

	rec, resp := placeOrder(t, api, buyerToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if resp.Status != "created" {
		t.Fatalf("expected status marker 'created', got %q", resp.Status)
	}
	if len(resp.Orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(resp.Orders))
	}

	order := resp.Orders[0]
	if order.Status != string(domain.OrderStatusAwaiting) {
		t.Fatalf("expected awaiting order, got %s", order.Status)
	}
	if order.ShopName != "scenario-shop" {
		t.Fatalf("expected shop name in response, got %q", order.ShopName)
	}
	if order.Total != 6000 {
		t.Fatalf("expected total 6000, got %d", order.Total)
	}
	if len(order.Items) != 1 || order.Items[0].Quantity != 4 || order.Items[0].Image != "ceramic mug.webp" {
		t.Fatalf("unexpected order items: %+v", order.Items)
	}

	if got := f.ItemQuantity(t, itemID); got != 1 {
		t.Fatalf("expected item quantity 1 after placement, got %d", got)
	}
	if got := f.CartSize(t, buyerID); got != 0 {
		t.Fatalf("expected cart cleared after placement, got %d lines", got)
	}

	// The cart is now empty; placing again is a valid no-op.
	rec, _ = placeOrder(t, api, buyerToken)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d on empty cart, got %d", http.StatusNoContent, rec.Code)
	}
	if got := f.OrderCount(t, buyerID); got != 1 {
		t.Fatalf("expected no new orders from empty placement, got %d", got)
	}

	// An unselected line must not be ordered either.
	f.AddCartLine(t, buyerID, itemID, 1, false)
	rec, _ = placeOrder(t, api, buyerToken)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d with only unselected lines, got %d", http.StatusNoContent, rec.Code)
	}
	if got := f.CartSize(t, buyerID); got != 1 {
		t.Fatalf("unselected line must survive placement, cart has %d lines", got)
	}
}

func TestPlaceOrderInsufficientStockIsAtomic(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	f := &Fixtures{DB: db}
	api := newAPI(db, nil)

	sellerID, _ := f.CreateUser(t, domain.PrivilegeUser)
	shopID := f.CreateShop(t, sellerID, "atomic-shop")
	plenty := f.CreateItem(t, shopID, "abundant", 100, 50)
	scarce := f.CreateItem(t, shopID, "scarce", 100, 2)

	buyerID, buyerToken := f.CreateUser(t, domain.PrivilegeUser)
	f.AddCartLine(t, buyerID, plenty, 3, true)
	f.AddCartLine(t, buyerID, scarce, 5, true)

	rec := doRequest(api, http.MethodPost, "/api/order/", buyerToken, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d: %s", http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	}

	var body struct {
		Items []domain.InsufficientItem `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].Name != "scarce" || body.Items[0].Requested != 5 {
		t.Fatalf("expected the scarce item enumerated, got %+v", body.Items)
	}

	// No partial order, no decrement, cart untouched.
	if got := f.OrderCount(t, buyerID); got != 0 {
		t.Fatalf("expected zero orders, got %d", got)
	}
	if got := f.ItemQuantity(t, plenty); got != 50 {
		t.Fatalf("abundant item quantity changed to %d", got)
	}
	if got := f.ItemQuantity(t, scarce); got != 2 {
		t.Fatalf("scarce item quantity changed to %d", got)
	}
	if got := f.CartSize(t, buyerID); got != 2 {
		t.Fatalf("expected cart unchanged, got %d lines", got)
	}
}

func TestPlaceOrderGroupsByShopAndSnapshots(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	f := &Fixtures{DB: db}
	api := newAPI(db, nil)

	sellerA, _ := f.CreateUser(t, domain.PrivilegeUser)
	shopA := f.CreateShop(t, sellerA, "shop-a")
	itemA := f.CreateItem(t, shopA, "poster", 2000, 10)

	sellerB, _ := f.CreateUser(t, domain.PrivilegeUser)
	shopB := f.CreateShop(t, sellerB, "shop-b")
	itemB := f.CreateItem(t, shopB, "frame", 5000, 10)

	buyerID, buyerToken := f.CreateUser(t, domain.PrivilegeUser)
	f.AddCartLine(t, buyerID, itemA, 1, true)
	f.AddCartLine(t, buyerID, itemB, 2, true)

	rec, resp := placeOrder(t, api, buyerToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if len(resp.Orders) != 2 {
		t.Fatalf("expected one order per shop, got %d", len(resp.Orders))
	}

	totals := map[string]int64{}
	for _, order := range resp.Orders {
		if len(order.Items) != 1 {
			t.Fatalf("expected each order to hold only its shop's items, got %d", len(order.Items))
		}
		totals[order.ShopID] = order.Total
	}
	if totals[shopA] != 2000 || totals[shopB] != 10000 {
		t.Fatalf("unexpected per-shop totals: %v", totals)
	}

	// Edit and delete the source item; the snapshot must not move.
	var orderID string
	for _, order := range resp.Orders {
		if order.ShopID == shopA {
			orderID = order.ID
		}
	}

	if _, err := db.Exec(`UPDATE items SET name = 'renamed', price = 9999, version = version + 1 WHERE id = $1`, itemA); err != nil {
		t.Fatalf("failed to edit item: %v", err)
	}
	if _, err := db.Exec(`DELETE FROM items WHERE id = $1`, itemB); err != nil {
		t.Fatalf("failed to delete item: %v", err)
	}

	rec = doRequest(api, http.MethodGet, "/api/order/"+orderID, buyerToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var detail struct {
		Items []struct {
			Name  string `json:"name"`
			Price int64  `json:"price"`
		} `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&detail); err != nil {
		t.Fatalf("failed to decode order detail: %v", err)
	}
	if len(detail.Items) != 1 || detail.Items[0].Name != "poster" || detail.Items[0].Price != 2000 {
		t.Fatalf("order item snapshot drifted: %+v", detail.Items)
	}

	var snapshotCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM order_items`).Scan(&snapshotCount); err != nil {
		t.Fatalf("failed to count order items: %v", err)
	}
	if snapshotCount != 2 {
		t.Fatalf("deleting an item must not cascade into order history, %d snapshots left", snapshotCount)
	}
}

func TestPlaceOrderConcurrentPlacements(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	f := &Fixtures{DB: db}
	api := newAPI(db, nil)

	const buyers = 5
	const stock = 10

	sellerID, _ := f.CreateUser(t, domain.PrivilegeUser)
	shopID := f.CreateShop(t, sellerID, "contested-shop")

	itemIDs := make([]string, buyers)
	for i := range itemIDs {
		itemIDs[i] = f.CreateItem(t, shopID, "limited", 100, stock)
	}

	buyerIDs := make([]string, buyers)
	tokens := make([]string, buyers)
	for i := range tokens {
		buyerIDs[i], tokens[i] = f.CreateUser(t, domain.PrivilegeUser)
		for _, itemID := range itemIDs {
			// Each buyer wants all but two units of every item: at most
			// one of them can succeed.
			f.AddCartLine(t, buyerIDs[i], itemID, stock-2, true)
		}
	}

	start := make(chan struct{})
	results := make([]int, buyers)
	var wg sync.WaitGroup

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			rec := doRequest(api, http.MethodPost, "/api/order/", tokens[i], "")
			results[i] = rec.Code
		}(i)
	}
	close(start)
	wg.Wait()

	var wins, losses int
	winner := -1
	for i, code := range results {
		switch code {
		case http.StatusOK:
			wins++
			winner = i
		case http.StatusConflict, http.StatusUnprocessableEntity:
			// Conflict when the version check lost mid-flight, 422 when
			// the loser read the already-decremented stock.
			losses++
		default:
			t.Fatalf("unexpected status %d from buyer %d", code, i)
		}
	}

	if wins != 1 || losses != buyers-1 {
		t.Fatalf("expected exactly one winning placement, got %d wins / %d losses (%v)", wins, losses, results)
	}

	// Conservation: only the winner's decrements happened.
	for _, itemID := range itemIDs {
		if got := f.ItemQuantity(t, itemID); got != 2 {
			t.Fatalf("expected final quantity 2, got %d", got)
		}
	}

	for i := range buyerIDs {
		wantLines := buyers
		if i == winner {
			wantLines = 0
		}
		if got := f.CartSize(t, buyerIDs[i]); got != wantLines {
			t.Fatalf("buyer %d cart has %d lines, want %d", i, got, wantLines)
		}
	}

	if got := f.OrderCount(t, buyerIDs[winner]); got != 1 {
		t.Fatalf("winner should hold exactly 1 order, got %d", got)
	}
}

func TestConditionalDecrementStaleVersion(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	f := &Fixtures{DB: db}
	repo := inventory.NewItemRepository(db)

	sellerID, _ := f.CreateUser(t, domain.PrivilegeUser)
	shopID := f.CreateShop(t, sellerID, "version-shop")
	itemID := f.CreateItem(t, shopID, "versioned", 100, 10)

	item, err := repo.GetByID(ctx, itemID)
	if err != nil {
		t.Fatalf("failed to load item: %v", err)
	}

	// A concurrent edit bumps the version after our read.
	if _, err := db.Exec(`UPDATE items SET version = version + 1 WHERE id = $1`, itemID); err != nil {
		t.Fatalf("failed to bump version: %v", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	applied, err := repo.DecrementQuantity(ctx, tx, itemID, 3, item.Version)
	if err != nil {
		t.Fatalf("conditional decrement failed: %v", err)
	}
	if applied {
		t.Fatal("decrement with a stale version must affect zero rows")
	}

	fresh, err := repo.GetByID(ctx, itemID)
	if err != nil {
		t.Fatalf("failed to reload item: %v", err)
	}
	applied, err = repo.DecrementQuantity(ctx, tx, itemID, 3, fresh.Version)
	if err != nil {
		t.Fatalf("conditional decrement failed: %v", err)
	}
	if !applied {
		t.Fatal("decrement with the current version must succeed")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	if got := f.ItemQuantity(t, itemID); got != 7 {
		t.Fatalf("expected quantity 7, got %d", got)
	}
}

func TestOrderLifecycleTransitions(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	f := &Fixtures{DB: db}
	api := newAPI(db, nil)

	sellerID, sellerToken := f.CreateUser(t, domain.PrivilegeUser)
	shopID := f.CreateShop(t, sellerID, "lifecycle-shop")
	itemID := f.CreateItem(t, shopID, "widget", 100, 100)

	_, adminToken := f.CreateUser(t, domain.PrivilegeAdmin)
	_, strangerToken := f.CreateUser(t, domain.PrivilegeUser)

	newOrder := func(t *testing.T) (string, string) {
		buyerID, buyerToken := f.CreateUser(t, domain.PrivilegeUser)
		f.AddCartLine(t, buyerID, itemID, 1, true)
		rec, resp := placeOrder(t, api, buyerToken)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed to place order: %d %s", rec.Code, rec.Body.String())
		}
		return resp.Orders[0].ID, buyerToken
	}

	transition := func(orderID, token, action string) *httptest.ResponseRecorder {
		return doRequest(api, http.MethodPost, "/api/order/"+orderID+"/"+action, token, "")
	}

	t.Run("confirm then double confirm", func(t *testing.T) {
		orderID, _ := newOrder(t)

		if rec := transition(orderID, sellerToken, "confirm"); rec.Code != http.StatusOK {
			t.Fatalf("seller confirm: expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if got := f.OrderStatus(t, orderID); got != domain.OrderStatusConfirmed {
			t.Fatalf("expected confirmed, got %s", got)
		}
		if rec := transition(orderID, sellerToken, "confirm"); rec.Code != http.StatusConflict {
			t.Fatalf("double confirm: expected 409, got %d", rec.Code)
		}
	})

	t.Run("buyer cannot confirm or deliver", func(t *testing.T) {
		orderID, buyerToken := newOrder(t)

		if rec := transition(orderID, buyerToken, "confirm"); rec.Code != http.StatusForbidden {
			t.Fatalf("buyer confirm: expected 403, got %d", rec.Code)
		}
		if rec := transition(orderID, buyerToken, "deliver"); rec.Code != http.StatusForbidden {
			t.Fatalf("buyer deliver: expected 403, got %d", rec.Code)
		}
	})

	t.Run("buyer cancel only while awaiting", func(t *testing.T) {
		orderID, buyerToken := newOrder(t)

		if rec := transition(orderID, buyerToken, "cancel"); rec.Code != http.StatusOK {
			t.Fatalf("buyer cancel awaiting: expected 200, got %d", rec.Code)
		}
		if got := f.OrderStatus(t, orderID); got != domain.OrderStatusCancelled {
			t.Fatalf("expected cancelled, got %s", got)
		}

		orderID, buyerToken = newOrder(t)
		if rec := transition(orderID, adminToken, "confirm"); rec.Code != http.StatusOK {
			t.Fatalf("admin confirm: expected 200, got %d", rec.Code)
		}
		if rec := transition(orderID, buyerToken, "cancel"); rec.Code != http.StatusForbidden {
			t.Fatalf("buyer cancel confirmed: expected 403, got %d", rec.Code)
		}
		if rec := transition(orderID, sellerToken, "cancel"); rec.Code != http.StatusOK {
			t.Fatalf("seller cancel confirmed: expected 200, got %d", rec.Code)
		}
	})

	t.Run("deliver only from confirmed", func(t *testing.T) {
		orderID, _ := newOrder(t)

		if rec := transition(orderID, sellerToken, "deliver"); rec.Code != http.StatusConflict {
			t.Fatalf("deliver awaiting: expected 409, got %d", rec.Code)
		}
		if rec := transition(orderID, sellerToken, "confirm"); rec.Code != http.StatusOK {
			t.Fatalf("confirm: expected 200, got %d", rec.Code)
		}
		if rec := transition(orderID, sellerToken, "deliver"); rec.Code != http.StatusOK {
			t.Fatalf("deliver confirmed: expected 200, got %d", rec.Code)
		}
		if got := f.OrderStatus(t, orderID); got != domain.OrderStatusDelivering {
			t.Fatalf("expected delivering, got %s", got)
		}

		// Delivering is out of reach for every manual action.
		for _, action := range []string{"confirm", "cancel", "deliver"} {
			if rec := transition(orderID, sellerToken, action); rec.Code != http.StatusConflict {
				t.Fatalf("%s on delivering: expected 409, got %d", action, rec.Code)
			}
		}
	})

	t.Run("stranger always forbidden", func(t *testing.T) {
		orderID, _ := newOrder(t)

		for _, action := range []string{"confirm", "cancel", "deliver"} {
			if rec := transition(orderID, strangerToken, action); rec.Code != http.StatusForbidden {
				t.Fatalf("stranger %s: expected 403, got %d", action, rec.Code)
			}
		}
	})

	t.Run("unknown order and bad id", func(t *testing.T) {
		if rec := transition("2af7a7f8-6ddb-4f7b-8b6c-2f0b7c3c9f00", sellerToken, "confirm"); rec.Code != http.StatusNotFound {
			t.Fatalf("unknown order: expected 404, got %d", rec.Code)
		}
		if rec := transition("not-a-uuid", sellerToken, "confirm"); rec.Code != http.StatusBadRequest {
			t.Fatalf("bad order id: expected 400, got %d", rec.Code)
		}
	})
}

func TestOrderQueryFilters(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	f := &Fixtures{DB: db}
	api := newAPI(db, nil)

	sellerID, sellerToken := f.CreateUser(t, domain.PrivilegeUser)
	shopID := f.CreateShop(t, sellerID, "query-shop")
	teapot := f.CreateItem(t, shopID, "teapot", 3000, 100)
	saucer := f.CreateItem(t, shopID, "saucer", 500, 100)

	buyerID, buyerToken := f.CreateUser(t, domain.PrivilegeUser)

	f.AddCartLine(t, buyerID, teapot, 1, true)
	rec, first := placeOrder(t, api, buyerToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed to place first order: %d", rec.Code)
	}

	f.AddCartLine(t, buyerID, saucer, 2, true)
	rec, second := placeOrder(t, api, buyerToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed to place second order: %d", rec.Code)
	}

	if rec := doRequest(api, http.MethodPost, "/api/order/"+second.Orders[0].ID+"/confirm", sellerToken, ""); rec.Code != http.StatusOK {
		t.Fatalf("failed to confirm second order: %d", rec.Code)
	}

	list := func(t *testing.T, path, token string) []json.RawMessage {
		t.Helper()
		rec := doRequest(api, http.MethodGet, path, token, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("list %s: expected 200, got %d: %s", path, rec.Code, rec.Body.String())
		}
		var items []json.RawMessage
		if err := json.NewDecoder(rec.Body).Decode(&items); err != nil {
			t.Fatalf("failed to decode list: %v", err)
		}
		return items
	}

	if got := list(t, "/api/order", buyerToken); len(got) != 2 {
		t.Fatalf("buyer list: expected 2 orders, got %d", len(got))
	}

	if got := list(t, "/api/order?status=confirmed", buyerToken); len(got) != 1 {
		t.Fatalf("status filter: expected 1 order, got %d", len(got))
	}

	// The item-name filter excludes whole orders without a matching line.
	if got := list(t, "/api/order?itemName=teapot", buyerToken); len(got) != 1 {
		t.Fatalf("itemName filter: expected 1 order, got %d", len(got))
	}
	if got := list(t, "/api/order?itemName=cup", buyerToken); len(got) != 0 {
		t.Fatalf("itemName filter: expected no orders, got %d", len(got))
	}

	if got := list(t, "/api/order?limit=1", buyerToken); len(got) != 1 {
		t.Fatalf("limit: expected 1 order, got %d", len(got))
	}
	if got := list(t, "/api/order?limit=1&page=3", buyerToken); len(got) != 0 {
		t.Fatalf("page past end: expected 0 orders, got %d", len(got))
	}

	var oldestFirst []struct {
		ID string `json:"id"`
	}
	rec = doRequest(api, http.MethodGet, "/api/order?orderBy=oldest", buyerToken, "")
	if err := json.NewDecoder(rec.Body).Decode(&oldestFirst); err != nil {
		t.Fatalf("failed to decode ordered list: %v", err)
	}
	if len(oldestFirst) != 2 || oldestFirst[0].ID != first.Orders[0].ID {
		t.Fatalf("orderBy=oldest: expected %s first, got %+v", first.Orders[0].ID, oldestFirst)
	}

	// Shop listing: owner and staff only.
	if got := list(t, "/api/order/shop/"+shopID, sellerToken); len(got) != 2 {
		t.Fatalf("shop list: expected 2 orders, got %d", len(got))
	}
	if rec := doRequest(api, http.MethodGet, "/api/order/shop/"+shopID, buyerToken, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("shop list as buyer: expected 403, got %d", rec.Code)
	}

	if rec := doRequest(api, http.MethodGet, "/api/order?limit=500", buyerToken, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("limit out of range: expected 400, got %d", rec.Code)
	}
}

func TestTimeoutWorkerRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	brokers, cleanupKafka := SetupKafka(ctx, t)
	defer cleanupKafka()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	f := &Fixtures{DB: db}
	api := newAPI(db, nil)

	sellerID, sellerToken := f.CreateUser(t, domain.PrivilegeUser)
	shopID := f.CreateShop(t, sellerID, "timeout-shop")
	itemID := f.CreateItem(t, shopID, "gizmo", 100, 100)

	newOrder := func(t *testing.T) string {
		buyerID, buyerToken := f.CreateUser(t, domain.PrivilegeUser)
		f.AddCartLine(t, buyerID, itemID, 1, true)
		rec, resp := placeOrder(t, api, buyerToken)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed to place order: %d", rec.Code)
		}
		return resp.Orders[0].ID
	}

	staleOrder := newOrder(t)
	confirmedOrder := newOrder(t)
	if rec := doRequest(api, http.MethodPost, "/api/order/"+confirmedOrder+"/confirm", sellerToken, ""); rec.Code != http.StatusOK {
		t.Fatalf("failed to confirm order: %d", rec.Code)
	}

	producer := messaging.NewProducer(brokers, "order.timeouts")
	defer func() { _ = producer.Close() }()

	deadline := time.Now().UTC().Add(-time.Minute)
	for _, orderID := range []string{staleOrder, confirmedOrder} {
		event := domain.StatusTimeoutEvent{
			OrderID:        orderID,
			ExpectedStatus: domain.OrderStatusAwaiting,
			TargetStatus:   domain.OrderStatusCancelled,
			Deadline:       deadline,
		}
		if err := producer.Publish(ctx, orderID, event); err != nil {
			t.Fatalf("failed to publish timeout event: %v", err)
		}
	}

	consumer := messaging.NewConsumer(brokers, "order.timeouts", "timeout-test")
	defer func() { _ = consumer.Close() }()

	orderRepo := orders.NewOrderRepository(db)
	handler := worker.NewTimeoutHandler(orderRepo, slog.Default())

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	go func() {
		_ = consumer.Consume(consumerCtx, handler.Handle)
	}()

	waitFor := func(t *testing.T, orderID string, want domain.OrderStatus) {
		t.Helper()
		deadline := time.Now().Add(60 * time.Second)
		for time.Now().Before(deadline) {
			if f.OrderStatus(t, orderID) == want {
				return
			}
			time.Sleep(500 * time.Millisecond)
		}
		t.Fatalf("order %s never reached %s (currently %s)", orderID, want, f.OrderStatus(t, orderID))
	}

	// The overdue awaiting order is auto-cancelled.
	waitFor(t, staleOrder, domain.OrderStatusCancelled)

	// The confirmed order no longer matches the event's expected status;
	// the stale job must leave it alone.
	time.Sleep(2 * time.Second)
	if got := f.OrderStatus(t, confirmedOrder); got != domain.OrderStatusConfirmed {
		t.Fatalf("stale timeout clobbered a manual transition: %s", got)
	}
}
