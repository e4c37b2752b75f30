package main

import (
	"context"
	"fmt"

	"github.com/teakspice/shopdb/internal/client"
	"github.com/teakspice/shopdb/internal/config"
	"github.com/teakspice/shopdb/internal/constants"
	"github.com/teakspice/shopdb/internal/logger"
	"github.com/teakspice/shopdb/internal/models"
	"github.com/teakspice/shopdb/internal/provider"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type seedProduct struct {
	Name        string
	Description string
	Price       string
	Stock       int
}

type seedLine struct {
	Product  string
	Quantity int
}

func main() {
	cfg := config.Load()
	cfg.Database.Migrate = true
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	defer logger.Sync()
	stdLog := logger.StdLogger()

	ctx := context.Background()
	container, err := provider.NewContainer(ctx, cfg)
	if err != nil {
		stdLog.Fatalf("Failed to initialize client: %v", err)
	}
	defer container.Close()

	if err := container.Client.Tx(ctx, seed); err != nil {
		stdLog.Fatalf("Seed failed: %v", err)
	}
	stdLog.Printf("Seed completed")
}

func seed(ctx context.Context, tx *client.Client) error {
	// 分类
	for _, name := range []string{"Electronics", "Lifestyle", "Accessories"} {
		existing, err := tx.Category.FindFirst(ctx, client.FindFirstArgs{Where: client.Where{"categoryName": name}})
		if err != nil {
			return err
		}
		if existing != nil {
			logger.Infow("seed_category_exists", "name", name)
			continue
		}
		if _, err := tx.Category.Create(ctx, client.CreateArgs[models.Category]{Data: models.Category{CategoryName: name}}); err != nil {
			return fmt.Errorf("create category %s: %w", name, err)
		}
		logger.Infow("seed_category_created", "name", name)
	}

	// 商品
	products := []seedProduct{
		{Name: "Noise Cancelling Headphones", Description: "Over-ear wireless headphones", Price: "4999.00", Stock: 25},
		{Name: "Mechanical Keyboard", Description: "Hot-swappable 75% keyboard", Price: "3499.00", Stock: 40},
		{Name: "Ceramic Mug", Description: "350ml stoneware mug", Price: "299.00", Stock: 120},
		{Name: "USB-C Cable", Description: "1m braided cable", Price: "199.00", Stock: 300},
	}
	productIDs := map[string]uint{}
	prices := map[string]models.Money{}
	for _, p := range products {
		price := models.MustMoney(p.Price)
		row, err := tx.Products.Upsert(ctx, client.UpsertArgs[models.Product]{
			Where: client.Where{"productName": p.Name},
			Create: models.Product{
				ProductName:        p.Name,
				ProductDescription: p.Description,
				ProductPrice:       price,
				ProductStock:       p.Stock,
			},
			Update: client.Data{"productDescription": p.Description},
		})
		if err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Name, err)
		}
		productIDs[p.Name] = row.ProductID
		prices[p.Name] = row.ProductPrice
	}

	// 用户
	users := []models.User{
		{UserName: "asha", UserEmail: "asha@example.com", UserPhone: strPtr("+91-90000-00001"), UserAddress: strPtr("12 MG Road, Bengaluru")},
		{UserName: "rohan", UserEmail: "rohan@example.com", UserPhone: strPtr("+91-90000-00002")},
	}
	userIDs := make([]uint, 0, len(users))
	for _, u := range users {
		row, err := tx.Users.Upsert(ctx, client.UpsertArgs[models.User]{
			Where:  client.Where{"userEmail": u.UserEmail},
			Create: u,
			Update: client.Data{"userName": u.UserName},
		})
		if err != nil {
			return fmt.Errorf("upsert user %s: %w", u.UserEmail, err)
		}
		userIDs = append(userIDs, row.UserID)
	}

	// 订单、明细与支付（已有订单的用户跳过）
	orders := map[int][]seedLine{
		0: {{Product: "Noise Cancelling Headphones", Quantity: 1}, {Product: "USB-C Cable", Quantity: 2}},
		1: {{Product: "Ceramic Mug", Quantity: 4}},
	}
	modes := constants.PaymentModes
	for idx, lines := range orders {
		userID := userIDs[idx]
		n, err := tx.Orders.Count(ctx, client.CountArgs{Where: client.Where{"userId": userID}})
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Infow("seed_orders_exist", "user_id", userID)
			continue
		}
		if err := seedOrder(ctx, tx, userID, lines, productIDs, prices, modes[idx%len(modes)]); err != nil {
			return err
		}
	}

	// 评价与购物车
	reviewer := userIDs[0]
	headphones := productIDs["Noise Cancelling Headphones"]
	n, err := tx.Reviews.Count(ctx, client.CountArgs{Where: client.Where{"userId": reviewer, "productId": headphones}})
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := tx.Reviews.Create(ctx, client.CreateArgs[models.Review]{Data: models.Review{
			UserID:    reviewer,
			ProductID: headphones,
			Review:    "Great battery life and comfortable for long calls.",
		}}); err != nil {
			return fmt.Errorf("create review: %w", err)
		}
	}

	cartOwner := userIDs[1]
	if _, err := tx.Cart.CreateMany(ctx, client.CreateManyArgs[models.Cart]{
		Data: []models.Cart{
			{UserID: &cartOwner, ProductID: productIDs["Mechanical Keyboard"], Quantity: 1},
			{SessionID: strPtr("guest-" + uuid.NewString()), ProductID: productIDs["Ceramic Mug"], Quantity: 2},
		},
		SkipDuplicates: true,
	}); err != nil {
		return fmt.Errorf("create cart items: %w", err)
	}
	return nil
}

func seedOrder(ctx context.Context, tx *client.Client, userID uint, lines []seedLine, productIDs map[string]uint, prices map[string]models.Money, mode string) error {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(prices[line.Product].Decimal.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	amount := models.NewMoneyFromDecimal(total)

	order, err := tx.Orders.Create(ctx, client.CreateArgs[models.Order]{Data: models.Order{UserID: userID, OrderAmount: amount}})
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	details := make([]models.OrderDetail, 0, len(lines))
	for _, line := range lines {
		details = append(details, models.OrderDetail{
			OrderID:      order.OrderID,
			ProductID:    productIDs[line.Product],
			Quantity:     line.Quantity,
			ProductPrice: prices[line.Product],
		})
		if _, err := tx.Products.Update(ctx, client.UpdateArgs{
			Where: client.Where{"productId": productIDs[line.Product]},
			Data:  client.Data{"productStock": map[string]interface{}{"decrement": line.Quantity}},
		}); err != nil {
			return fmt.Errorf("reserve stock: %w", err)
		}
	}
	if _, err := tx.OrderDetails.CreateMany(ctx, client.CreateManyArgs[models.OrderDetail]{Data: details}); err != nil {
		return fmt.Errorf("create order details: %w", err)
	}
	if _, err := tx.Payments.Create(ctx, client.CreateArgs[models.Payment]{Data: models.Payment{
		UserID:            userID,
		OrderID:           order.OrderID,
		RazorpayOrderID:   "order_" + uuid.NewString()[:14],
		RazorpayPaymentID: strPtr("pay_" + uuid.NewString()[:14]),
		PaymentMode:       mode,
		PaymentStatus:     constants.PaymentStatusCaptured,
		PaymentAmount:     amount,
	}}); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	logger.Infow("seed_order_created", "order_id", order.OrderID, "user_id", userID, "amount", amount.String())
	return nil
}

func strPtr(s string) *string {
	return &s
}
