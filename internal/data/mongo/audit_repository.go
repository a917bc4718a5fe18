package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shiplane/wallet-ledger/internal/domain/audit"
)

const (
	// AuditCollectionName is the name of the audit events collection in MongoDB
	AuditCollectionName = "audit_events"
)

// AuditRepository implements the audit.Repository interface for MongoDB
type AuditRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewAuditRepository creates a new MongoDB audit repository
func NewAuditRepository(logger *slog.Logger, db *mongo.Database) audit.Repository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a new audit event. Audit events are append-only and never
// updated or deleted.
func (r *AuditRepository) Create(ctx context.Context, event *audit.Event) error {
	collection := r.db.Collection(AuditCollectionName)

	result, err := collection.InsertOne(ctx, event)
	if err != nil {
		r.logger.Error("Failed to create audit event",
			"action", string(event.Action),
			"tenant_id", event.TenantID.String(),
			"error", err)
		return fmt.Errorf("failed to create audit event: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		event.ID = oid.Hex()
	}

	return nil
}

// GetByTenantID retrieves paginated audit events for a tenant.
// Results are sorted by creation time in descending order (newest first).
func (r *AuditRepository) GetByTenantID(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*audit.Event, error) {
	return r.find(ctx, bson.M{"tenant_id": tenantID}, limit, offset)
}

// GetByActorID retrieves paginated audit events recorded for an actor
func (r *AuditRepository) GetByActorID(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*audit.Event, error) {
	return r.find(ctx, bson.M{"actor_id": actorID}, limit, offset)
}

func (r *AuditRepository) find(ctx context.Context, filter bson.M, limit, offset int) ([]*audit.Event, error) {
	collection := r.db.Collection(AuditCollectionName)

	opts := options.Find().
		SetSort(bson.M{"created_at": -1}). // Sort by created_at in descending order
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get audit events", "filter", fmt.Sprintf("%v", filter), "error", err)
		return nil, fmt.Errorf("failed to get audit events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*audit.Event
	if err := cursor.All(ctx, &events); err != nil {
		r.logger.Error("Failed to decode audit events", "error", err)
		return nil, fmt.Errorf("failed to decode audit events: %w", err)
	}

	return events, nil
}
