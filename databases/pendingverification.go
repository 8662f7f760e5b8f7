package databases

// go generate: mockery --name PendingVerificationDatabase

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/laundry-api/identity"
	"github.com/linesmerrill/laundry-api/models"
)

const pendingVerificationName = "pendingVerifications"

// consumeRetries bounds how often Consume re-reads an entry that was replaced
// between its match attempt and its classification read
const consumeRetries = 3

// PendingVerificationDatabase is a mongo backed identity.PendingVerificationStore
type PendingVerificationDatabase interface {
	identity.PendingVerificationStore
	EnsureIndexes(ctx context.Context) error
}

type pendingVerificationDatabase struct {
	db          DatabaseHelper
	now         identity.Clock
	maxAttempts int
}

// NewPendingVerificationDatabase initializes a new instance of pendingVerification database with the provided db connection
func NewPendingVerificationDatabase(db DatabaseHelper, clock identity.Clock, maxAttempts int) PendingVerificationDatabase {
	if clock == nil {
		clock = time.Now
	}
	if maxAttempts <= 0 {
		maxAttempts = identity.DefaultMaxAttempts
	}
	return &pendingVerificationDatabase{
		db:          db,
		now:         clock,
		maxAttempts: maxAttempts,
	}
}

func (c *pendingVerificationDatabase) collection() CollectionHelper {
	return c.db.Collection(pendingVerificationName)
}

// EnsureIndexes makes email unique and lets mongo drop documents once they
// expire. Reads never rely on the TTL monitor, which runs about once a minute.
func (c *pendingVerificationDatabase) EnsureIndexes(ctx context.Context) error {
	_, err := c.collection().CreateIndexes(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("expires_at_ttl"),
		},
	})
	return err
}

func (c *pendingVerificationDatabase) Put(ctx context.Context, email, code string, ttl time.Duration) (models.PendingVerification, error) {
	now := c.now()
	entry := models.PendingVerification{
		Email:     email,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	filter := bson.M{"email": email}
	update := bson.M{"$set": entry}
	opts := options.Update().SetUpsert(true)

	_, err := c.collection().UpdateOne(ctx, filter, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		// a concurrent upsert inserted first, the retry updates its document
		_, err = c.collection().UpdateOne(ctx, filter, update, opts)
	}
	if err != nil {
		return models.PendingVerification{}, err
	}
	return entry, nil
}

func (c *pendingVerificationDatabase) Get(ctx context.Context, email string) (*models.PendingVerification, error) {
	entry := &models.PendingVerification{}
	filter := bson.M{"email": email, "expiresAt": bson.M{"$gt": c.now()}}
	err := c.collection().FindOne(ctx, filter).Decode(entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, identity.ErrNoPendingRequest
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (c *pendingVerificationDatabase) Remove(ctx context.Context, email string) error {
	_, err := c.collection().DeleteOne(ctx, bson.M{"email": email})
	return err
}

func (c *pendingVerificationDatabase) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := c.collection().DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": now}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

// Consume deletes the entry in a single FindOneAndDelete when email, code and
// expiry all match, so concurrent confirmations cannot both win. Only a failed
// match pays for the extra reads that decide which error to return.
func (c *pendingVerificationDatabase) Consume(ctx context.Context, email, code string) (*models.PendingVerification, error) {
	for i := 0; i < consumeRetries; i++ {
		now := c.now()

		entry := &models.PendingVerification{}
		err := c.collection().FindOneAndDelete(ctx, bson.M{
			"email":     email,
			"code":      code,
			"expiresAt": bson.M{"$gt": now},
		}).Decode(entry)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}

		current := &models.PendingVerification{}
		err = c.collection().FindOne(ctx, bson.M{"email": email}).Decode(current)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, identity.ErrNoPendingRequest
		}
		if err != nil {
			return nil, err
		}

		if current.Expired(now) {
			if _, err := c.collection().DeleteOne(ctx, bson.M{"email": email, "code": current.Code}); err != nil {
				return nil, err
			}
			return nil, identity.ErrCodeExpired
		}
		if identity.CodesEqual(current.Code, code) {
			// replaced by a fresh Put with the same code since the first query
			continue
		}
		return c.recordMismatch(ctx, current)
	}
	return nil, identity.ErrCodeMismatch
}

func (c *pendingVerificationDatabase) recordMismatch(ctx context.Context, current *models.PendingVerification) (*models.PendingVerification, error) {
	updated := &models.PendingVerification{}
	err := c.collection().FindOneAndUpdate(ctx,
		bson.M{"email": current.Email, "code": current.Code},
		bson.M{"$inc": bson.M{"attempts": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// consumed or replaced concurrently, the presented code still did not match
		return nil, identity.ErrCodeMismatch
	}
	if err != nil {
		return nil, err
	}

	if updated.Attempts >= c.maxAttempts {
		if _, err := c.collection().DeleteOne(ctx, bson.M{"email": current.Email, "code": current.Code}); err != nil {
			return nil, err
		}
		return nil, identity.ErrTooManyAttempts
	}
	return nil, identity.ErrCodeMismatch
}
