// Package mongo implements store.KV on a MongoDB collection, one document per
// namespace/key pair. Values are kept as JSON text.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nextlevelbuilder/relaychat/internal/store"
)

const collectionName = "kv_entries"

type entry struct {
	ID        string    `bson:"_id"`
	Namespace string    `bson:"namespace"`
	Key       string    `bson:"key"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type KV struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Open connects to uri and uses database db.
func Open(ctx context.Context, uri, db string) (*KV, error) {
	if db == "" {
		db = "relaychat"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &KV{client: client, coll: client.Database(db).Collection(collectionName)}, nil
}

func docID(namespace, key string) string { return namespace + "/" + key }

func (s *KV) Get(ctx context.Context, namespace, key string) (json.RawMessage, error) {
	var e entry
	err := s.coll.FindOne(ctx, bson.M{"_id": docID(namespace, key)}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(e.Value), nil
}

func (s *KV) Set(ctx context.Context, namespace, key string, value json.RawMessage) error {
	id := docID(namespace, key)
	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": id},
		entry{ID: id, Namespace: namespace, Key: key, Value: string(value), UpdatedAt: time.Now().UTC()},
		options.Replace().SetUpsert(true),
	)
	return err
}

func (s *KV) Delete(ctx context.Context, namespace, key string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": docID(namespace, key)})
	return err
}

func (s *KV) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
