package storage

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSecretStore keeps secret slots in one collection keyed by _id. Meant
// for a user-synced backend; the documents hold ciphertext only.
type MongoSecretStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewMongoSecretStore(ctx context.Context, uri, dbName, collName string) (*MongoSecretStore, error) {
	if uri == "" {
		return nil, errors.New("storage: mongo uri is empty")
	}
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return &MongoSecretStore{
		client: cli,
		coll:   cli.Database(dbName).Collection(collName),
	}, nil
}

func (m *MongoSecretStore) Get(ctx context.Context, key string) ([]byte, error) {
	var doc struct {
		Data []byte `bson:"data"`
	}
	err := m.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	return doc.Data, err
}

func (m *MongoSecretStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := m.coll.UpdateByID(
		ctx,
		key,
		bson.M{
			"$set": bson.M{
				"data":      data,
				"updatedAt": time.Now(),
			},
			"$setOnInsert": bson.M{
				"createdAt": time.Now(),
			},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *MongoSecretStore) Delete(ctx context.Context, key string) error {
	_, err := m.coll.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

func (m *MongoSecretStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
