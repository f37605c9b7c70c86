package annotate

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dropstage/dropstage/pkg/cache"
	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/scene"
)

// ============================================================================
// MONGO WRITER
// ============================================================================

// Collection names within the dataset database.
const (
	CollectionAnnotations = "annotations"
	CollectionMetadata    = "metadata"
)

// DefaultMongoTimeout bounds each insert when the caller's context carries
// no deadline of its own.
const DefaultMongoTimeout = 10 * time.Second

// MongoWriter persists annotation and metadata records into MongoDB
// collections. Records reuse the bson tags on the shared record types.
type MongoWriter struct {
	annotations *mongo.Collection
	metadata    *mongo.Collection
}

// NewMongoWriter connects to the given URI and targets the named database.
func NewMongoWriter(ctx context.Context, uri, database string) (*MongoWriter, error) {
	if uri == "" || database == "" {
		return nil, errors.New(errors.ErrCodeConfiguration, "mongo uri and database are required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "failed to connect to mongodb")
	}
	db := client.Database(database)
	return &MongoWriter{
		annotations: db.Collection(CollectionAnnotations),
		metadata:    db.Collection(CollectionMetadata),
	}, nil
}

// NewMongoWriterFromDatabase wraps an existing database handle. Useful for
// tests and callers that manage the client lifecycle themselves.
func NewMongoWriterFromDatabase(db *mongo.Database) *MongoWriter {
	return &MongoWriter{
		annotations: db.Collection(CollectionAnnotations),
		metadata:    db.Collection(CollectionMetadata),
	}
}

// WriteAnnotations inserts the per-frame annotation record.
func (w *MongoWriter) WriteAnnotations(ctx context.Context, s *scene.Scene, opts Options) error {
	if err := w.insert(ctx, w.annotations, Build(s, opts)); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "failed to insert annotation record")
	}
	return nil
}

// WriteMetadata inserts the per-frame metadata record.
func (w *MongoWriter) WriteMetadata(ctx context.Context, s *scene.Scene, opts Options) error {
	if err := w.insert(ctx, w.metadata, BuildMetadata(s, opts)); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "failed to insert metadata record")
	}
	return nil
}

// insert writes one record, retrying transient network failures. Timeouts
// on individual attempts leave the caller's deadline intact.
func (w *MongoWriter) insert(ctx context.Context, coll *mongo.Collection, record any) error {
	return cache.RetryWithBackoff(ctx, func() error {
		attemptCtx, cancel := withTimeout(ctx)
		defer cancel()
		_, err := coll.InsertOne(attemptCtx, record)
		if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
			return cache.Retryable(err)
		}
		return err
	})
}

// Close disconnects the underlying client.
func (w *MongoWriter) Close(ctx context.Context) error {
	client := w.annotations.Database().Client()
	if err := client.Disconnect(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "failed to disconnect from mongodb")
	}
	return nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultMongoTimeout)
}

// Ensure MongoWriter implements Writer.
var _ Writer = (*MongoWriter)(nil)
