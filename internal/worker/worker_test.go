package worker

import (
	"context"
	"testing"

	"pharmacy-api/internal/models"
	"pharmacy-api/internal/store"
	"pharmacy-api/internal/util"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestStockAlertWorkerHandleOrderCreated(t *testing.T) {
	st := store.NewMemoryStore()
	products, err := st.ReplaceProducts(context.Background(), []models.Product{
		{Name: "Insulin Pen", Category: "Diabetes", CountInStock: 2},
		{Name: "Cough Syrup", Category: "Medicines", CountInStock: 40},
	})
	require.NoError(t, err)

	w := NewStockAlertWorker(nil, st, 5)
	before := counterValue(t, util.LowStockAlertsTotal)

	err = w.HandleOrderCreated(context.Background(), &models.OrderCreatedEvent{
		OrderID: primitive.NewObjectID().Hex(),
		Items: []models.OrderItemData{
			{ProductID: products[0].ID.Hex(), Quantity: 1},
			{ProductID: products[1].ID.Hex(), Quantity: 1},
			{ProductID: primitive.NewObjectID().Hex(), Quantity: 1},
			{ProductID: "garbage", Quantity: 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, before+1, counterValue(t, util.LowStockAlertsTotal))
}
