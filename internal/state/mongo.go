package state

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/sql2bq/pkg/database"
	"github.com/BartekS5/sql2bq/pkg/logger"
	"github.com/BartekS5/sql2bq/pkg/models"
)

var _ Store = (*MongoStore)(nil)

const (
	defaultMongoDatabase = "sql2bq"
	stateCollection      = "run_state"
)

// MongoStore keeps one document per destination table, keyed by _id.
type MongoStore struct {
	Client *mongo.Client
	coll   *mongo.Collection
}

type stateDoc struct {
	ID          string    `bson:"_id"`
	LastSuccess time.Time `bson:"last_success"`
	LastRunID   string    `bson:"last_run_id"`
	Rows        int64     `bson:"rows"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

// OpenMongo connects to the URI; the database comes from its path.
func OpenMongo(ctx context.Context, uri string) (*MongoStore, error) {
	client, err := database.ConnectMongo(ctx, uri)
	if err != nil {
		return nil, err
	}
	dbName := database.MongoDatabaseName(uri, defaultMongoDatabase)
	return NewMongoStore(client, dbName), nil
}

func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	return &MongoStore{
		Client: client,
		coll:   client.Database(dbName).Collection(stateCollection),
	}
}

func (m *MongoStore) Load(ctx context.Context) (models.RunState, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cursor, err := m.coll.Find(ctx, bson.M{})
	if err != nil {
		return models.RunState{}, fmt.Errorf("query run state: %w", err)
	}
	defer cursor.Close(ctx)

	st := models.NewRunState()
	for cursor.Next(ctx) {
		var doc stateDoc
		if err := cursor.Decode(&doc); err != nil {
			return models.RunState{}, fmt.Errorf("decode run state document %v: %w", cursor.Current.Lookup("_id"), err)
		}
		st.Tables[doc.ID] = models.TableState{
			LastSuccess: doc.LastSuccess.UTC(),
			LastRunID:   doc.LastRunID,
			Rows:        doc.Rows,
		}
	}
	if err := cursor.Err(); err != nil {
		return models.RunState{}, fmt.Errorf("iterate run state: %w", err)
	}
	return st, nil
}

func (m *MongoStore) Save(ctx context.Context, st models.RunState) error {
	if len(st.Tables) == 0 {
		return nil
	}
	now := time.Now().UTC()
	writes := make([]mongo.WriteModel, 0, len(st.Tables))
	for name, ts := range st.Tables {
		doc := stateDoc{
			ID:          name,
			LastSuccess: ts.LastSuccess.UTC(),
			LastRunID:   ts.LastRunID,
			Rows:        ts.Rows,
			UpdatedAt:   now,
		}
		model := mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": name}).
			SetReplacement(doc).
			SetUpsert(true)
		writes = append(writes, model)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	res, err := m.coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("save run state: %w", err)
	}
	logger.Debugf("Mongo run state: matched %d, modified %d, upserted %d", res.MatchedCount, res.ModifiedCount, res.UpsertedCount)
	return nil
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Client.Disconnect(ctx)
}
