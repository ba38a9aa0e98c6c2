package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ecodeli/delivery-tracking/internal/core/domain"
	"github.com/ecodeli/delivery-tracking/internal/core/ports"
)

const (
	positionsCollection = "position_reports"
	// retentionWindow bounds how far back Recent reaches; older reports stay
	// in the collection for offline analysis but are not replayed.
	retentionWindow = 24 * time.Hour
)

// PositionRepository implements ports.PositionRepository using MongoDB.
type PositionRepository struct {
	db *mongo.Database
}

// NewPositionRepository creates a new PositionRepository.
func NewPositionRepository(db *mongo.Database) ports.PositionRepository {
	return &PositionRepository{db: db}
}

func (r *PositionRepository) Append(ctx context.Context, report *domain.PositionReport) error {
	_, err := r.db.Collection(positionsCollection).InsertOne(ctx, report)
	if err != nil {
		return fmt.Errorf("insert position report: %w", err)
	}
	return nil
}

// Recent returns up to limit reports from the retention window, oldest first.
func (r *PositionRepository) Recent(ctx context.Context, deliveryID string, limit int) ([]domain.PositionReport, error) {
	filter := bson.M{
		"delivery_id": deliveryID,
		"captured_at": bson.M{"$gte": time.Now().UTC().Add(-retentionWindow)},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "captured_at", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := r.db.Collection(positionsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find position reports: %w", err)
	}
	defer cur.Close(ctx)

	var reports []domain.PositionReport
	if err := cur.All(ctx, &reports); err != nil {
		return nil, fmt.Errorf("decode position reports: %w", err)
	}

	// Query is newest-first to apply the limit; callers want capture order.
	for i, j := 0, len(reports)-1; i < j; i, j = i+1, j-1 {
		reports[i], reports[j] = reports[j], reports[i]
	}
	return reports, nil
}
