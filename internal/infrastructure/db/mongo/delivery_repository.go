package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ecodeli/delivery-tracking/internal/core/domain"
	"github.com/ecodeli/delivery-tracking/internal/core/ports"
)

const deliveriesCollection = "deliveries"

// DeliveryRepository implements ports.DeliveryRepository using MongoDB.
type DeliveryRepository struct {
	db *mongo.Database
}

// NewDeliveryRepository creates a new DeliveryRepository.
func NewDeliveryRepository(db *mongo.Database) ports.DeliveryRepository {
	return &DeliveryRepository{db: db}
}

func (r *DeliveryRepository) Create(ctx context.Context, d *domain.Delivery) error {
	_, err := r.db.Collection(deliveriesCollection).InsertOne(ctx, d)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrDuplicateDelivery
	}
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (r *DeliveryRepository) FindByID(ctx context.Context, id string) (*domain.Delivery, error) {
	var d domain.Delivery
	err := r.db.Collection(deliveriesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrDeliveryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find delivery: %w", err)
	}
	return &d, nil
}

// UpdateStatus atomically sets the delivery status and appends a history entry.
func (r *DeliveryRepository) UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus, ts time.Time, actor string) error {
	historyEntry := bson.M{
		"status":    string(status),
		"timestamp": ts.UTC(),
	}
	if actor != "" {
		historyEntry["actor"] = actor
	}

	update := bson.M{
		"$set": bson.M{
			"status":            string(status),
			"status_updated_at": ts.UTC(),
		},
		"$push": bson.M{"status_history": historyEntry},
	}

	res, err := r.db.Collection(deliveriesCollection).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrDeliveryNotFound
	}
	return nil
}
