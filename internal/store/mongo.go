package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"pharmacy-api/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

const (
	productsCollection = "products"
	ordersCollection   = "orders"
)

// MongoStore keeps the catalog and orders in MongoDB. Multi-document
// transactions need a replica set; with transactions disabled,
// WithTransaction runs its callback directly.
type MongoStore struct {
	client       *mongo.Client
	products     *mongo.Collection
	orders       *mongo.Collection
	transactions bool
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, uri, database string, transactions bool) (*MongoStore, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetMonitor(otelmongo.NewMonitor())

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:       client,
		products:     db.Collection(productsCollection),
		orders:       db.Collection(ordersCollection),
		transactions: transactions,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.products.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "category", Value: 1}, {Key: "subCategory", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create product index: %w", err)
	}
	_, err = s.orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create order index: %w", err)
	}
	return nil
}

func (s *MongoStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}

func (s *MongoStore) SupportsTransactions() bool { return s.transactions }

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// productFilterDoc translates a catalog filter into a MongoDB query. The
// keyword is matched literally and case-insensitively.
func productFilterDoc(f ProductFilter) bson.M {
	query := bson.M{}
	if f.Keyword != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Keyword), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"name": re},
			bson.M{"brand": re},
			bson.M{"category": re},
		}
	}
	if f.Category != "" {
		query["category"] = f.Category
	}
	if f.SubCategory != "" {
		query["subCategory"] = f.SubCategory
	}
	return query
}

func (s *MongoStore) FindProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	cursor, err := s.products.Find(ctx, productFilterDoc(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer cursor.Close(ctx)

	products := []models.Product{}
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return products, nil
}

func (s *MongoStore) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	var product models.Product
	err = s.products.FindOne(ctx, bson.M{"_id": oid}).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve product: %w", err)
	}
	return &product, nil
}

func (s *MongoStore) ProductCategories(ctx context.Context) ([]string, error) {
	values, err := s.products.Distinct(ctx, "category", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	categories := make([]string, 0, len(values))
	for _, v := range values {
		if c, ok := v.(string); ok {
			categories = append(categories, c)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

func (s *MongoStore) ReplaceProducts(ctx context.Context, products []models.Product) ([]models.Product, error) {
	prepared := prepareProducts(products)

	if _, err := s.products.DeleteMany(ctx, bson.M{}); err != nil {
		return nil, fmt.Errorf("failed to clear products: %w", err)
	}
	if len(prepared) == 0 {
		return prepared, nil
	}

	docs := make([]interface{}, len(prepared))
	for i := range prepared {
		docs[i] = prepared[i]
	}
	if _, err := s.products.InsertMany(ctx, docs); err != nil {
		return nil, fmt.Errorf("failed to insert products: %w", err)
	}
	return prepared, nil
}

func (s *MongoStore) DeleteAllProducts(ctx context.Context) (int64, error) {
	res, err := s.products.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error) {
	filter := bson.M{
		"_id":          id,
		"countInStock": bson.M{"$gte": qty},
	}
	update := bson.M{
		"$inc": bson.M{"countInStock": -qty},
		"$set": bson.M{"updatedAt": now()},
	}

	result, err := s.products.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}
	return result.MatchedCount == 1, nil
}

func (s *MongoStore) IncrementStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	_, err := s.products.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"countInStock": qty},
			"$set": bson.M{"updatedAt": now()},
		})
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}
	return nil
}

func (s *MongoStore) CreateOrder(ctx context.Context, order *models.Order) error {
	prepareOrder(order)
	if _, err := s.orders.InsertOne(ctx, order); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (s *MongoStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.orders.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := []models.Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

func (s *MongoStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	var order models.Order
	err = s.orders.FindOne(ctx, bson.M{"_id": oid}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve order: %w", err)
	}
	return &order, nil
}

func (s *MongoStore) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) (*models.Order, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	at = at.UTC().Truncate(time.Millisecond)
	set := bson.M{"status": status, "updatedAt": at}
	if status == models.OrderStatusDelivered {
		set["isDelivered"] = true
	}
	update := bson.M{"$set": set}

	// deliveredAt records the first delivery only.
	filter := bson.M{"_id": oid}
	if status == models.OrderStatusDelivered {
		update = bson.M{"$set": set, "$min": bson.M{"deliveredAt": at}}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var order models.Order
	err = s.orders.FindOneAndUpdate(ctx, filter, update, opts).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}
	return &order, nil
}
