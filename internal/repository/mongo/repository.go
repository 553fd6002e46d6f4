package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"newsreel/discoveryservice/internal/domain"
)

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

type assetDoc struct {
	ID            string `bson:"_id"` // run id: one acquisition per run
	Identity      string `bson:"identity"`
	Title         string `bson:"title"`
	AssetURL      string `bson:"assetUrl"`
	Attribution   string `bson:"attribution,omitempty"`
	Catalog       string `bson:"catalog,omitempty"`
	SequenceIndex int    `bson:"sequenceIndex"`
	CandidateRank int    `bson:"candidateRank"`
	RepeatUsed    bool   `bson:"repeatUsed,omitempty"`
	AcquiredAt    int64  `bson:"acquiredAt"`
}

// AssetRepository is the acquired-asset library.
type AssetRepository struct {
	collection *mongo.Collection
}

func NewAssetRepository(client *mongo.Client, dbName string) *AssetRepository {
	return &AssetRepository{collection: client.Database(dbName).Collection("assets")}
}

func (r *AssetRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "acquiredAt", Value: -1}}},
		{Keys: bson.D{{Key: "identity", Value: 1}}},
		{Keys: bson.D{{Key: "catalog", Value: 1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *AssetRepository) Save(ctx context.Context, record domain.AssetRecord) error {
	doc := toAssetDoc(record)
	_, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}
	}
	return err
}

func (r *AssetRepository) Get(ctx context.Context, runID string) (domain.AssetRecord, error) {
	var doc assetDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": runID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.AssetRecord{}, domain.ErrNotFound
		}
		return domain.AssetRecord{}, err
	}
	return fromAssetDoc(doc), nil
}

// List returns the library newest-first.
func (r *AssetRepository) List(ctx context.Context, limit, offset int) ([]domain.AssetRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "acquiredAt", Value: -1}}).
		SetLimit(int64(limit))
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []assetDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return fromAssetDocs(docs), nil
}

func (r *AssetRepository) Delete(ctx context.Context, runID string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": runID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func toAssetDoc(record domain.AssetRecord) assetDoc {
	return assetDoc{
		ID:            record.RunID,
		Identity:      record.Asset.Identity,
		Title:         record.Asset.Title,
		AssetURL:      record.Asset.AssetURL,
		Attribution:   record.Asset.Attribution,
		Catalog:       record.Asset.Catalog,
		SequenceIndex: record.SequenceIndex,
		CandidateRank: record.CandidateRank,
		RepeatUsed:    record.RepeatUsed,
		AcquiredAt:    record.Asset.AcquiredAt.Unix(),
	}
}

func fromAssetDoc(doc assetDoc) domain.AssetRecord {
	return domain.AssetRecord{
		RunID:         doc.ID,
		SequenceIndex: doc.SequenceIndex,
		CandidateRank: doc.CandidateRank,
		RepeatUsed:    doc.RepeatUsed,
		Asset: domain.AcquiredAsset{
			Identity:    doc.Identity,
			Title:       doc.Title,
			AssetURL:    doc.AssetURL,
			Attribution: doc.Attribution,
			Catalog:     doc.Catalog,
			AcquiredAt:  timeFromUnix(doc.AcquiredAt),
		},
	}
}

func fromAssetDocs(docs []assetDoc) []domain.AssetRecord {
	records := make([]domain.AssetRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, fromAssetDoc(doc))
	}
	return records
}

func timeFromUnix(value int64) time.Time {
	return time.Unix(value, 0).UTC()
}
