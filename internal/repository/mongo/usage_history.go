package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"newsreel/discoveryservice/internal/domain"
)

type usageDoc struct {
	ID            string `bson:"_id"`
	Identity      string `bson:"identity"`
	SequenceIndex int    `bson:"sequenceIndex"`
	RunID         string `bson:"runId,omitempty"`
	UsedAt        int64  `bson:"usedAt"`
}

// UsageRepository records clip placements so the anti-repeat window can
// be rebuilt after a restart.
type UsageRepository struct {
	collection *mongo.Collection
}

func NewUsageRepository(client *mongo.Client, dbName string) *UsageRepository {
	return &UsageRepository{collection: client.Database(dbName).Collection("usage_history")}
}

func (r *UsageRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "usedAt", Value: -1}}},
		{Keys: bson.D{{Key: "identity", Value: 1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func usageDocID(identity string, sequenceIndex int) string {
	return fmt.Sprintf("%s:%d", identity, sequenceIndex)
}

func (r *UsageRepository) Record(ctx context.Context, entry domain.UsageEntry) error {
	usedAt := entry.UsedAt
	if usedAt.IsZero() {
		usedAt = time.Now()
	}
	update := bson.M{
		"$set": bson.M{
			"identity":      entry.Identity,
			"sequenceIndex": entry.SequenceIndex,
			"runId":         entry.RunID,
			"usedAt":        usedAt.Unix(),
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": usageDocID(entry.Identity, entry.SequenceIndex)},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

// ListRecent returns the latest placements newest-first, for seeding
// the window on startup.
func (r *UsageRepository) ListRecent(ctx context.Context, limit int) ([]domain.UsageEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "usedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []usageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	entries := make([]domain.UsageEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, domain.UsageEntry{
			Identity:      doc.Identity,
			SequenceIndex: doc.SequenceIndex,
			RunID:         doc.RunID,
			UsedAt:        timeFromUnix(doc.UsedAt),
		})
	}
	return entries, nil
}
