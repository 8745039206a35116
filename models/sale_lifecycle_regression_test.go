package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"bitbucket.org/mmdatafocus/retailpos_backend/models"
	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// End-to-end lifecycle regression: reservations, checkout, refund,
// cancellation, transfer fulfillment and the expiry sweep against real
// MySQL and Redis containers.
func TestSaleLifecycleRegression(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "retailpos_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	if err := models.MigrateTable(); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}

	ctx = utils.SetUserIdInContext(ctx, "test-user")
	ctx = utils.SetUserNameInContext(ctx, "Test")

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:  "Test Biz",
		Email: "owner@test.local",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	ctx = utils.SetBusinessIdInContext(ctx, biz.ID)

	storefront, err := models.CreateStorefront(ctx, &models.NewStorefront{Name: "Downtown"})
	if err != nil {
		t.Fatalf("CreateStorefront: %v", err)
	}
	laptop, err := models.CreateProduct(ctx, &models.NewProduct{Name: "Laptop", Sku: "LAP-001"})
	if err != nil {
		t.Fatalf("CreateProduct laptop: %v", err)
	}
	mouse, err := models.CreateProduct(ctx, &models.NewProduct{Name: "Mouse", Sku: "MSE-001"})
	if err != nil {
		t.Fatalf("CreateProduct mouse: %v", err)
	}

	mouseBatch, err := models.CreateStockProduct(ctx, &models.NewStockProduct{
		ProductId: mouse.ID,
		Quantity:  dec(t, "130"),
		UnitCost:  dec(t, "10"),
	})
	if err != nil {
		t.Fatalf("CreateStockProduct mouse: %v", err)
	}
	laptopBatch, err := models.CreateStockProduct(ctx, &models.NewStockProduct{
		ProductId: laptop.ID,
		Quantity:  dec(t, "20"),
		UnitCost:  dec(t, "400"),
	})
	if err != nil {
		t.Fatalf("CreateStockProduct laptop: %v", err)
	}

	// Stock the storefront: 50 mice, 10 laptops.
	if _, err := models.FulfillManualTransfer(ctx, storefront.ID, mouseBatch.ID, dec(t, "50")); err != nil {
		t.Fatalf("manual transfer mice: %v", err)
	}
	if _, err := models.FulfillManualTransfer(ctx, storefront.ID, laptopBatch.ID, dec(t, "10")); err != nil {
		t.Fatalf("manual transfer laptops: %v", err)
	}

	t.Run("reserve then checkout decrements storefront ledger", func(t *testing.T) {
		sale, err := models.CreateSale(ctx, &models.NewSale{
			StorefrontId: storefront.ID,
			Items: []models.NewSaleItem{
				{ProductId: mouse.ID, Quantity: dec(t, "2"), UnitPrice: dec(t, "25")},
			},
		})
		if err != nil {
			t.Fatalf("CreateSale: %v", err)
		}

		// The draft's hold must already bite availability.
		available, err := models.AvailableStorefrontStock(ctx, storefront.ID, mouse.ID)
		if err != nil {
			t.Fatalf("AvailableStorefrontStock: %v", err)
		}
		if !available.Equal(dec(t, "48")) {
			t.Fatalf("available with hold: got %s, want 48", available)
		}

		done, err := models.CompleteSale(ctx, sale.ID, &models.CheckoutInput{
			PaidAmount:    dec(t, "50"),
			PaymentMethod: models.PaymentMethodCash,
		})
		if err != nil {
			t.Fatalf("CompleteSale: %v", err)
		}
		if done.Status != models.SaleStatusCompleted {
			t.Fatalf("status: got %s, want Completed", done.Status)
		}
		if done.ReceiptNumber == nil || *done.ReceiptNumber == "" {
			t.Fatal("receipt number not assigned")
		}

		inv, err := models.GetStorefrontInventory(ctx, storefront.ID, mouse.ID)
		if err != nil {
			t.Fatalf("GetStorefrontInventory: %v", err)
		}
		if !inv.Quantity.Equal(dec(t, "48")) {
			t.Fatalf("storefront quantity: got %s, want 48", inv.Quantity)
		}

		holds, err := models.ListReservationsForSale(ctx, sale.ID)
		if err != nil {
			t.Fatalf("ListReservationsForSale: %v", err)
		}
		for _, h := range holds {
			if h.Status != models.ReservationStatusCommitted {
				t.Fatalf("reservation %s: got %s, want Committed", h.ID, h.Status)
			}
		}
	})

	t.Run("partial refund then cancel refunds exactly the remainder", func(t *testing.T) {
		sale, err := models.CreateSale(ctx, &models.NewSale{
			StorefrontId: storefront.ID,
			Items: []models.NewSaleItem{
				{ProductId: laptop.ID, Quantity: dec(t, "2"), UnitPrice: dec(t, "600")},
				{ProductId: mouse.ID, Quantity: dec(t, "5"), UnitPrice: dec(t, "25")},
			},
		})
		if err != nil {
			t.Fatalf("CreateSale: %v", err)
		}
		if !sale.Total.Equal(dec(t, "1325")) {
			t.Fatalf("total: got %s, want 1325", sale.Total)
		}
		if _, err := models.CompleteSale(ctx, sale.ID, &models.CheckoutInput{
			PaidAmount:    dec(t, "1325"),
			PaymentMethod: models.PaymentMethodCard,
		}); err != nil {
			t.Fatalf("CompleteSale: %v", err)
		}

		full, err := models.GetSale(ctx, sale.ID)
		if err != nil {
			t.Fatalf("GetSale: %v", err)
		}
		var laptopItem *models.SaleItem
		for i := range full.Items {
			if full.Items[i].ProductId == laptop.ID {
				laptopItem = &full.Items[i]
			}
		}
		if laptopItem == nil {
			t.Fatal("laptop line not found")
		}

		refund, err := models.ProcessRefund(ctx, sale.ID, &models.NewRefund{
			Restock: true,
			Items:   []models.NewRefundItem{{SaleItemId: laptopItem.ID, Quantity: dec(t, "1")}},
		})
		if err != nil {
			t.Fatalf("ProcessRefund: %v", err)
		}
		if !refund.Amount.Equal(dec(t, "600")) {
			t.Fatalf("refund amount: got %s, want 600", refund.Amount)
		}
		mid, err := models.GetSale(ctx, sale.ID)
		if err != nil {
			t.Fatalf("GetSale after refund: %v", err)
		}
		if mid.Status != models.SaleStatusPartial {
			t.Fatalf("status after partial refund: got %s, want Partial", mid.Status)
		}
		if !mid.RefundedAmount.Equal(dec(t, "600")) {
			t.Fatalf("refunded amount after partial refund: got %s, want 600", mid.RefundedAmount)
		}

		cancelled, err := models.CancelSale(ctx, sale.ID, true)
		if err != nil {
			t.Fatalf("CancelSale: %v", err)
		}
		if cancelled.Status != models.SaleStatusCancelled {
			t.Fatalf("status after cancel: got %s, want Cancelled", cancelled.Status)
		}

		refunds, err := models.ListRefundsForSale(ctx, sale.ID)
		if err != nil {
			t.Fatalf("ListRefundsForSale: %v", err)
		}
		if len(refunds) != 2 {
			t.Fatalf("refund records: got %d, want 2", len(refunds))
		}
		totalRefunded := decimal.Zero
		for _, r := range refunds {
			totalRefunded = totalRefunded.Add(r.Amount)
		}
		if !totalRefunded.Equal(dec(t, "1325")) {
			t.Fatalf("total refunded: got %s, want 1325", totalRefunded)
		}
		settledSale, err := models.GetSale(ctx, sale.ID)
		if err != nil {
			t.Fatalf("GetSale after cancel: %v", err)
		}
		if !settledSale.RefundedAmount.Equal(dec(t, "1325")) {
			t.Fatalf("refunded amount after cancel: got %s, want 1325", settledSale.RefundedAmount)
		}
		if !settledSale.DueAmount().IsZero() {
			t.Fatalf("due after cancel: got %s, want 0", settledSale.DueAmount())
		}

		// Cancelling again is rejected and creates no third refund.
		var repeatTransition *models.InvalidStateTransitionError
		if _, err := models.CancelSale(ctx, sale.ID, true); !errors.As(err, &repeatTransition) {
			t.Fatalf("repeat CancelSale: got %v, want InvalidStateTransitionError", err)
		}
		refunds, err = models.ListRefundsForSale(ctx, sale.ID)
		if err != nil {
			t.Fatalf("ListRefundsForSale: %v", err)
		}
		if len(refunds) != 2 {
			t.Fatalf("refund records after repeat cancel: got %d, want 2", len(refunds))
		}
	})

	t.Run("over-refund is rejected", func(t *testing.T) {
		sale, err := models.CreateSale(ctx, &models.NewSale{
			StorefrontId: storefront.ID,
			Items: []models.NewSaleItem{
				{ProductId: mouse.ID, Quantity: dec(t, "2"), UnitPrice: dec(t, "25")},
			},
		})
		if err != nil {
			t.Fatalf("CreateSale: %v", err)
		}
		done, err := models.CompleteSale(ctx, sale.ID, &models.CheckoutInput{PaidAmount: dec(t, "50")})
		if err != nil {
			t.Fatalf("CompleteSale: %v", err)
		}
		_, err = models.ProcessRefund(ctx, sale.ID, &models.NewRefund{
			Items: []models.NewRefundItem{{SaleItemId: done.Items[0].ID, Quantity: dec(t, "3")}},
		})
		var overRefund *models.OverRefundError
		if !errors.As(err, &overRefund) {
			t.Fatalf("expected OverRefundError, got %v", err)
		}
	})

	t.Run("transfer beyond availability fails then smaller one succeeds", func(t *testing.T) {
		batch, err := models.CreateStockProduct(ctx, &models.NewStockProduct{
			ProductId: mouse.ID,
			Quantity:  dec(t, "80"),
			UnitCost:  dec(t, "10"),
		})
		if err != nil {
			t.Fatalf("CreateStockProduct: %v", err)
		}

		tooBig, err := models.CreateTransferRequest(ctx, &models.NewTransferRequest{
			StorefrontId: storefront.ID,
			Items: []models.NewTransferRequestItem{
				{ProductId: mouse.ID, StockProductId: batch.ID, Quantity: dec(t, "90")},
			},
		})
		if err != nil {
			t.Fatalf("CreateTransferRequest: %v", err)
		}
		if _, err := models.AssignTransferRequest(ctx, tooBig.ID, "picker-1"); err != nil {
			t.Fatalf("AssignTransferRequest: %v", err)
		}
		_, err = models.FulfillTransferRequest(ctx, tooBig.ID)
		var insufficient *models.InsufficientStockError
		if !errors.As(err, &insufficient) {
			t.Fatalf("expected InsufficientStockError, got %v", err)
		}
		if _, err := models.CancelTransferRequest(ctx, tooBig.ID); err != nil {
			t.Fatalf("CancelTransferRequest: %v", err)
		}

		before, err := models.GetStorefrontInventory(ctx, storefront.ID, mouse.ID)
		if err != nil {
			t.Fatalf("GetStorefrontInventory: %v", err)
		}

		ok, err := models.CreateTransferRequest(ctx, &models.NewTransferRequest{
			StorefrontId: storefront.ID,
			Items: []models.NewTransferRequestItem{
				{ProductId: mouse.ID, StockProductId: batch.ID, Quantity: dec(t, "40")},
			},
		})
		if err != nil {
			t.Fatalf("CreateTransferRequest retry: %v", err)
		}
		if _, err := models.AssignTransferRequest(ctx, ok.ID, "picker-1"); err != nil {
			t.Fatalf("AssignTransferRequest retry: %v", err)
		}
		if _, err := models.FulfillTransferRequest(ctx, ok.ID); err != nil {
			t.Fatalf("FulfillTransferRequest retry: %v", err)
		}

		after, err := models.GetStorefrontInventory(ctx, storefront.ID, mouse.ID)
		if err != nil {
			t.Fatalf("GetStorefrontInventory after: %v", err)
		}
		if !after.Quantity.Sub(before.Quantity).Equal(dec(t, "40")) {
			t.Fatalf("storefront delta: got %s, want 40", after.Quantity.Sub(before.Quantity))
		}
	})

	t.Run("expiry sweep flips only expired active holds", func(t *testing.T) {
		cart, err := models.CreateSale(ctx, &models.NewSale{StorefrontId: storefront.ID})
		if err != nil {
			t.Fatalf("CreateSale: %v", err)
		}
		shortLived, err := models.CreateReservation(ctx, &models.NewStockReservation{
			SaleId:       cart.ID,
			ProductId:    mouse.ID,
			StorefrontId: storefront.ID,
			Quantity:     dec(t, "1"),
			TTL:          50 * time.Millisecond,
		})
		if err != nil {
			t.Fatalf("CreateReservation short: %v", err)
		}
		longLived, err := models.CreateReservation(ctx, &models.NewStockReservation{
			SaleId:       cart.ID,
			ProductId:    mouse.ID,
			StorefrontId: storefront.ID,
			Quantity:     dec(t, "1"),
			TTL:          time.Hour,
		})
		if err != nil {
			t.Fatalf("CreateReservation long: %v", err)
		}

		time.Sleep(100 * time.Millisecond)
		count, err := models.ReleaseExpiredReservations(ctx, false)
		if err != nil {
			t.Fatalf("ReleaseExpiredReservations: %v", err)
		}
		if count != 1 {
			t.Fatalf("released count: got %d, want 1", count)
		}

		holds, err := models.ListReservationsForSale(ctx, cart.ID)
		if err != nil {
			t.Fatalf("ListReservationsForSale: %v", err)
		}
		for _, h := range holds {
			switch h.ID {
			case shortLived.ID:
				if h.Status != models.ReservationStatusReleased {
					t.Fatalf("expired hold: got %s, want Released", h.Status)
				}
			case longLived.ID:
				if h.Status != models.ReservationStatusActive {
					t.Fatalf("unexpired hold: got %s, want Active", h.Status)
				}
			}
		}
	})

	t.Run("warehouse sale decrements the batch", func(t *testing.T) {
		customer, err := models.CreateCustomer(ctx, &models.NewCustomer{Name: "Wholesale Co"})
		if err != nil {
			t.Fatalf("CreateCustomer: %v", err)
		}
		sale, err := models.CreateSale(ctx, &models.NewSale{
			CustomerId: customer.ID,
			Items: []models.NewSaleItem{
				{ProductId: laptop.ID, StockProductId: laptopBatch.ID, Quantity: dec(t, "3"), UnitPrice: dec(t, "550")},
			},
		})
		if err != nil {
			t.Fatalf("CreateSale warehouse: %v", err)
		}
		done, err := models.CompleteSale(ctx, sale.ID, &models.CheckoutInput{
			PaidAmount:    dec(t, "1000"),
			PaymentMethod: models.PaymentMethodCredit,
		})
		if err != nil {
			t.Fatalf("CompleteSale warehouse: %v", err)
		}
		if done.Status != models.SaleStatusPartial {
			t.Fatalf("status: got %s, want Partial", done.Status)
		}

		batch, err := models.GetStockProduct(ctx, laptopBatch.ID)
		if err != nil {
			t.Fatalf("GetStockProduct: %v", err)
		}
		// 20 intake, 3 sold; the 10 transferred out stay on the recorded
		// quantity and only affect derived availability.
		if !batch.Quantity.Equal(dec(t, "17")) {
			t.Fatalf("batch quantity: got %s, want 17", batch.Quantity)
		}

		balanceOwner, err := models.GetCustomer(ctx, customer.ID)
		if err != nil {
			t.Fatalf("GetCustomer: %v", err)
		}
		if !balanceOwner.CreditBalance.Equal(dec(t, "650")) {
			t.Fatalf("credit balance: got %s, want 650", balanceOwner.CreditBalance)
		}

		if _, err := models.RecordPayment(ctx, sale.ID, dec(t, "650")); err != nil {
			t.Fatalf("RecordPayment: %v", err)
		}
		settled, err := models.GetSale(ctx, sale.ID)
		if err != nil {
			t.Fatalf("GetSale settled: %v", err)
		}
		if settled.Status != models.SaleStatusCompleted {
			t.Fatalf("settled status: got %s, want Completed", settled.Status)
		}
	})

	t.Run("warehouse holds cap batch availability", func(t *testing.T) {
		keyboard, err := models.CreateProduct(ctx, &models.NewProduct{Name: "Keyboard", Sku: "KBD-001"})
		if err != nil {
			t.Fatalf("CreateProduct keyboard: %v", err)
		}
		batch, err := models.CreateStockProduct(ctx, &models.NewStockProduct{
			ProductId: keyboard.ID,
			Quantity:  dec(t, "10"),
			UnitCost:  dec(t, "30"),
		})
		if err != nil {
			t.Fatalf("CreateStockProduct keyboard: %v", err)
		}
		cart, err := models.CreateSale(ctx, &models.NewSale{})
		if err != nil {
			t.Fatalf("CreateSale: %v", err)
		}

		hold, err := models.CreateReservation(ctx, &models.NewStockReservation{
			SaleId:         cart.ID,
			ProductId:      keyboard.ID,
			StockProductId: batch.ID,
			Quantity:       dec(t, "5"),
		})
		if err != nil {
			t.Fatalf("CreateReservation 5 of 10: %v", err)
		}

		_, err = models.CreateReservation(ctx, &models.NewStockReservation{
			SaleId:         cart.ID,
			ProductId:      keyboard.ID,
			StockProductId: batch.ID,
			Quantity:       dec(t, "6"),
		})
		var insufficient *models.InsufficientStockError
		if !errors.As(err, &insufficient) {
			t.Fatalf("expected InsufficientStockError, got %v", err)
		}
		if !insufficient.Available.Equal(dec(t, "5")) {
			t.Fatalf("available: got %s, want 5", insufficient.Available)
		}
		if !insufficient.Requested.Equal(dec(t, "6")) {
			t.Fatalf("requested: got %s, want 6", insufficient.Requested)
		}

		// Releasing the hold restores the full batch availability.
		if _, err := models.ReleaseReservation(ctx, hold.ID); err != nil {
			t.Fatalf("ReleaseReservation: %v", err)
		}
		available, err := models.AvailableWarehouseStock(ctx, batch.ID)
		if err != nil {
			t.Fatalf("AvailableWarehouseStock: %v", err)
		}
		if !available.Equal(dec(t, "10")) {
			t.Fatalf("available after release: got %s, want 10", available)
		}
	})

	t.Run("transfer lines on one batch draw down together", func(t *testing.T) {
		monitor, err := models.CreateProduct(ctx, &models.NewProduct{Name: "Monitor", Sku: "MON-001"})
		if err != nil {
			t.Fatalf("CreateProduct monitor: %v", err)
		}
		batch, err := models.CreateStockProduct(ctx, &models.NewStockProduct{
			ProductId: monitor.ID,
			Quantity:  dec(t, "80"),
			UnitCost:  dec(t, "120"),
		})
		if err != nil {
			t.Fatalf("CreateStockProduct monitor: %v", err)
		}

		// Each line fits the batch alone; together they oversell it.
		request, err := models.CreateTransferRequest(ctx, &models.NewTransferRequest{
			StorefrontId: storefront.ID,
			Items: []models.NewTransferRequestItem{
				{ProductId: monitor.ID, StockProductId: batch.ID, Quantity: dec(t, "50")},
				{ProductId: monitor.ID, StockProductId: batch.ID, Quantity: dec(t, "50")},
			},
		})
		if err != nil {
			t.Fatalf("CreateTransferRequest: %v", err)
		}
		if _, err := models.AssignTransferRequest(ctx, request.ID, "picker-2"); err != nil {
			t.Fatalf("AssignTransferRequest: %v", err)
		}
		_, err = models.FulfillTransferRequest(ctx, request.ID)
		var insufficient *models.InsufficientStockError
		if !errors.As(err, &insufficient) {
			t.Fatalf("expected InsufficientStockError, got %v", err)
		}
		if !insufficient.Available.Equal(dec(t, "30")) {
			t.Fatalf("available: got %s, want 30", insufficient.Available)
		}
		if !insufficient.Requested.Equal(dec(t, "50")) {
			t.Fatalf("requested: got %s, want 50", insufficient.Requested)
		}

		// The failed fulfillment must leave the storefront untouched:
		// the rollback discards even the lazily created ledger row.
		if inv, err := models.GetStorefrontInventory(ctx, storefront.ID, monitor.ID); err == nil {
			if !inv.Quantity.IsZero() {
				t.Fatalf("storefront quantity after failed transfer: got %s, want 0", inv.Quantity)
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Fatalf("GetStorefrontInventory: %v", err)
		}
	})

	t.Run("reconciliation reports zero drift on a balanced book", func(t *testing.T) {
		reports, err := models.RunReconciliationChecks(ctx)
		if err != nil {
			t.Fatalf("RunReconciliationChecks: %v", err)
		}
		if len(reports) == 0 {
			t.Fatal("expected at least one report")
		}
	})
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("retailpos-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("retailpos-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=retailpos_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
