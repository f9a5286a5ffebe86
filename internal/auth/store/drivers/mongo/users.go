package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/miniokta/internal/auth/domain"
	"github.com/aussiebroadwan/miniokta/internal/auth/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type usersRepo struct {
	coll *mongo.Collection
}

func (r *usersRepo) findOne(ctx context.Context, filter bson.D) (domain.User, error) {
	var doc userDoc
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, store.ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return doc.toDomain(), nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}

	_, err := r.coll.InsertOne(ctx, toDoc(u))
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *usersRepo) UpdateMFASecret(ctx context.Context, userID string, secret string, pendingSince time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: userID},
			{Key: "mfa_enabled", Value: false},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "mfa_secret", Value: secret},
			{Key: "mfa_pending_since", Value: pendingSince.UTC()},
			{Key: "mfa_last_step", Value: int64(0)},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
	)
	return matchedOrNotFound(res, err)
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID string, secret string, at time.Time) error {
	if secret == "" {
		return store.ErrNotFound
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: userID},
			{Key: "mfa_enabled", Value: false},
			{Key: "mfa_secret", Value: secret},
		},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "mfa_enabled", Value: true},
				{Key: "mfa_enabled_at", Value: at.UTC()},
				{Key: "mfa_last_step", Value: int64(0)},
				{Key: "updated_at", Value: time.Now().UTC()},
			}},
			{Key: "$unset", Value: bson.D{{Key: "mfa_pending_since", Value: ""}}},
		},
	)
	return matchedOrNotFound(res, err)
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: userID}},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "mfa_enabled", Value: false},
				{Key: "mfa_last_step", Value: int64(0)},
				{Key: "updated_at", Value: time.Now().UTC()},
			}},
			{Key: "$unset", Value: bson.D{
				{Key: "mfa_secret", Value: ""},
				{Key: "mfa_enabled_at", Value: ""},
				{Key: "mfa_pending_since", Value: ""},
			}},
		},
	)
	return matchedOrNotFound(res, err)
}

func (r *usersRepo) AdvanceMFAStep(ctx context.Context, userID string, step int64) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: userID},
			{Key: "mfa_enabled", Value: true},
			{Key: "mfa_last_step", Value: bson.D{{Key: "$lt", Value: step}}},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "mfa_last_step", Value: step},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *usersRepo) ClearStaleEnrollments(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.D{
			{Key: "mfa_enabled", Value: false},
			{Key: "mfa_pending_since", Value: bson.D{{Key: "$lt", Value: before.UTC()}}},
		},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now().UTC()}}},
			{Key: "$unset", Value: bson.D{
				{Key: "mfa_secret", Value: ""},
				{Key: "mfa_pending_since", Value: ""},
			}},
		},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func matchedOrNotFound(res *mongo.UpdateResult, err error) error {
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
