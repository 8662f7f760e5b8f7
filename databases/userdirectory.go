package databases

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/laundry-api/identity"
	"github.com/linesmerrill/laundry-api/models"
)

// UserDirectory is the mongo backed account store used by the identity flows.
// It satisfies both identity.UserDirectory and identity.CredentialResetStore.
type UserDirectory struct {
	DB UserDatabase
	// Cost is the bcrypt cost, bcrypt.DefaultCost when zero
	Cost int
	// Clock stamps updatedAt, time.Now when nil
	Clock identity.Clock
}

// NewUserDirectory wraps a UserDatabase
func NewUserDirectory(db UserDatabase) *UserDirectory {
	return &UserDirectory{DB: db}
}

func (d *UserDirectory) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

func (d *UserDirectory) hash(password string) (string, error) {
	cost := d.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// FindByEmail expects an already normalized email
func (d *UserDirectory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := d.DB.FindOne(ctx, bson.M{"user.email": email})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, identity.ErrAccountNotFound
	}
	return user, err
}

// FindByID looks a user up by the hex form of its object id
func (d *UserDirectory) FindByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, identity.ErrAccountNotFound
	}
	user, err := d.DB.FindOne(ctx, bson.M{"_id": oid})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, identity.ErrAccountNotFound
	}
	return user, err
}

// Create hashes password and inserts the account. The unique index on
// user.email turns a concurrent duplicate into identity.ErrDuplicateEmail.
func (d *UserDirectory) Create(ctx context.Context, details models.UserDetails, password string) (*models.User, error) {
	hashed, err := d.hash(password)
	if err != nil {
		return nil, err
	}
	details.Password = hashed

	user := models.User{ID: primitive.NewObjectID(), Details: details}
	if _, err := d.DB.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, identity.ErrDuplicateEmail
		}
		return nil, err
	}
	return &user, nil
}

// UpdateCredential stores a new password hash and drops any outstanding reset token
func (d *UserDirectory) UpdateCredential(ctx context.Context, id string, newPassword string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return identity.ErrAccountNotFound
	}
	hashed, err := d.hash(newPassword)
	if err != nil {
		return err
	}

	res, err := d.DB.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{
			"user.password":  hashed,
			"user.updatedAt": d.now(),
		},
		"$unset": bson.M{
			"user.resetPasswordToken":   "",
			"user.resetPasswordExpires": "",
		},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return identity.ErrAccountNotFound
	}
	return nil
}

// VerifyPassword compares candidate against the stored bcrypt hash
func (d *UserDirectory) VerifyPassword(user *models.User, candidate string) bool {
	if user == nil || user.Details.Password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.Details.Password), []byte(candidate)) == nil
}

// IssueReset overwrites the account's reset token hash and expiry
func (d *UserDirectory) IssueReset(ctx context.Context, id string, tokenHash string, expiresAt time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return identity.ErrAccountNotFound
	}
	res, err := d.DB.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{
			"user.resetPasswordToken":   tokenHash,
			"user.resetPasswordExpires": expiresAt,
			"user.updatedAt":            d.now(),
		},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return identity.ErrAccountNotFound
	}
	return nil
}

// RedeemReset matches the token and its expiry in the update filter so that
// only one of several concurrent redemptions can change the password.
func (d *UserDirectory) RedeemReset(ctx context.Context, tokenHash string, newPassword string, now time.Time) (*models.User, error) {
	if tokenHash == "" {
		return nil, identity.ErrInvalidOrExpiredToken
	}
	hashed, err := d.hash(newPassword)
	if err != nil {
		return nil, err
	}

	filter := bson.M{
		"user.resetPasswordToken":   tokenHash,
		"user.resetPasswordExpires": bson.M{"$gt": now},
	}
	update := bson.M{
		"$set": bson.M{
			"user.password":  hashed,
			"user.updatedAt": now,
		},
		"$unset": bson.M{
			"user.resetPasswordToken":   "",
			"user.resetPasswordExpires": "",
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	user, err := d.DB.FindOneAndUpdate(ctx, filter, update, opts)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, identity.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
