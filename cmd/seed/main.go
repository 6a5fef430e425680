package main

import (
	"context"
	"flag"
	"log"
	"time"

	"pharmacy-api/config"
	"pharmacy-api/internal/models"
	"pharmacy-api/internal/store"
	"pharmacy-api/internal/util"

	"go.uber.org/zap"
)

func price(v float64) *float64 { return &v }

var sampleProducts = []models.Product{
	{
		Name:                   "Azithromycin 500mg",
		Category:               "Medicine",
		SubCategory:            "Antibiotics",
		Price:                  120,
		OriginalPrice:          price(150),
		Description:            "Antibiotic tablet.",
		Brand:                  "Cipla",
		Image:                  "https://www.biofieldpharma.com/wp-content/uploads/2023/06/BIOFIELD-OZISET-500-TAB-1-scaled.jpg",
		IsPrescriptionRequired: true,
		CountInStock:           50,
	},
	{
		Name:                   "Pantoprazole 40mg",
		Category:               "Medicine",
		SubCategory:            "Gastro",
		Price:                  95,
		OriginalPrice:          price(120),
		Description:            "Acidity relief tablet.",
		Brand:                  "Sun Pharma",
		Image:                  "https://i.pinimg.com/736x/d6/aa/c7/d6aac737fa7418b8bc98b19dcf65f35c.jpg",
		IsPrescriptionRequired: true,
		CountInStock:           80,
	},
	{
		Name:          "Pampers Active Baby (L)",
		Category:      "Baby Care",
		SubCategory:   "Baby Diapers",
		Price:         899,
		OriginalPrice: price(1100),
		Description:   "Soft diapers for babies.",
		Brand:         "Pampers",
		Image:         "https://i.pinimg.com/1200x/d8/4f/b9/d84fb95d885267bab9584d04e440baf3.jpg",
		CountInStock:  20,
	},
	{
		Name:          "Limcee Vitamin C",
		Category:      "Vitamins",
		SubCategory:   "Vitamin C",
		Price:         25,
		OriginalPrice: price(30),
		Description:   "Chewable Vitamin C tablets.",
		Brand:         "Abbott",
		Image:         "https://i.pinimg.com/1200x/70/f2/f1/70f2f154fa30b67c2bf645be1dc77cf0.jpg",
		CountInStock:  200,
	},
	{
		Name:          "Rossmax Pulse Oximeter",
		Category:      "Medical Devices",
		SubCategory:   "Oximeters",
		Price:         1299,
		OriginalPrice: price(1599),
		Description:   "Digital oxygen monitor.",
		Brand:         "Rossmax",
		Image:         "https://i.pinimg.com/1200x/f3/9d/94/f39d94a7639c46ad00b8bae1f7d77c09.jpg",
		CountInStock:  22,
	},
}

func main() {
	destroy := flag.Bool("d", false, "delete all products without importing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer st.Close(context.Background())

	if *destroy {
		deleted, err := st.DeleteAllProducts(ctx)
		if err != nil {
			logger.Fatal("Failed to delete products", zap.Error(err))
		}
		logger.Info("Data destroyed", zap.Int64("deleted", deleted))
		return
	}

	inserted, err := st.ReplaceProducts(ctx, sampleProducts)
	if err != nil {
		logger.Fatal("Failed to import products", zap.Error(err))
	}
	logger.Info("Data imported", zap.Int("products", len(inserted)), zap.String("store", cfg.Store.Driver))
}
