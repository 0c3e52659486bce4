package repo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/runrelay/runrelay/pkg/errors"
	"github.com/runrelay/runrelay/pkg/logger"
	"github.com/runrelay/runrelay/pkg/mongotools"
)

func newMongo[T any](
	ctx context.Context,
	cfg MongoConfig,
	src DataSource,
	log logger.Logger,
) (*mongoRepo[T], error) {
	opts := options.Client().
		ApplyURI(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetMinPoolSize(cfg.Pool.MinSize).
		SetMaxPoolSize(cfg.Pool.MaxSize)

	if cfg.Auth.Username != "" {
		opts = opts.SetAuth(options.Credential{
			Username: cfg.Auth.Username,
			Password: cfg.Auth.Password,
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.WrapFail(err, "connect to mongo db")
	}

	return &mongoRepo[T]{
		coll: client.Database(cfg.Database).Collection(string(src)),
		log:  log.With("mongo_repo"),
	}, nil
}

type mongoRepo[T any] struct {
	coll *mongo.Collection
	log  logger.Logger
}

func (m *mongoRepo[T]) Txn(ctx context.Context, do func() error) (bool, error) {
	session, err := m.coll.Database().Client().StartSession()
	if err != nil {
		return false, errors.WrapFail(err, "start mongo session")
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(mongo.SessionContext) (any, error) {
		return nil, do()
	})
	return err == nil, errors.WrapFail(err, "run mongo txn")
}

func (m *mongoRepo[T]) Insert(ctx context.Context, data T) (string, error) {
	result, err := m.coll.InsertOne(ctx, data)
	if err != nil {
		return "", errors.WrapFail(err, "insert data")
	}

	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", errors.Fail("make id from inserted oid")
	}
	return oid.Hex(), nil
}

func (m *mongoRepo[T]) Select(ctx context.Context, filters ...Filter) ([]T, error) {
	f := collect(filters)

	query, err := m.query(f)
	if err != nil {
		return nil, err
	}

	cur, err := m.coll.Find(ctx, query)
	if err != nil {
		return nil, errors.WrapFail(err, "find documents")
	}

	var check func(T) bool
	if f.fn != nil {
		check = func(t T) bool { return f.fn(t) }
	}

	selected, err := mongotools.FilterFunc(ctx, cur, check)
	return selected, errors.WrapFail(err, "filter documents")
}

func (m *mongoRepo[T]) Update(ctx context.Context, update func(*T), filters ...Filter) (int, error) {
	f := collect(filters)

	query, err := m.query(f)
	if err != nil {
		return 0, err
	}

	cur, err := m.coll.Find(ctx, query)
	if err != nil {
		return 0, errors.WrapFail(err, "find documents to update")
	}
	defer cur.Close(ctx)

	updated := 0
	for cur.Next(ctx) {
		var item T
		if err := cur.Decode(&item); err != nil {
			return updated, errors.WrapFail(err, "decode document")
		}
		if f.fn != nil && !f.fn(item) {
			continue
		}

		oid := cur.Current.Lookup("_id").ObjectID()
		update(&item)

		_, err := m.coll.ReplaceOne(ctx, bson.M{"_id": oid}, item)
		if err != nil {
			return updated, errors.WrapFail(err, "replace document")
		}
		updated++
	}
	return updated, errors.WrapFail(cur.Err(), "iterate documents")
}

func (m *mongoRepo[T]) Delete(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, errors.WrapFail(err, "parse object id")
	}

	result, err := m.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, errors.WrapFail(err, "delete document")
	}
	return result.DeletedCount == 1, nil
}

func (m *mongoRepo[T]) Close(ctx context.Context) error {
	err := m.coll.Database().Client().Disconnect(ctx)
	return errors.WrapFail(err, "close mongo db connection")
}

func (m *mongoRepo[T]) query(f filter) (bson.M, error) {
	query := mongotools.All()
	for name, value := range f.fields {
		query[name] = value
	}

	if f.id != nil {
		oid, err := primitive.ObjectIDFromHex(*f.id)
		if err != nil {
			return nil, errors.WrapFail(err, "parse object id")
		}
		query["_id"] = oid
	}
	return query, nil
}
