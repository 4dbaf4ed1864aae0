package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/velomarket/listing-engine/internal/app/config"
	"github.com/velomarket/listing-engine/internal/domain/entity"
	"github.com/velomarket/listing-engine/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const balanceCollectionName = "balances"

// balanceDoc is the persistence shape of entity.Balance. Pool values are
// stored as decimal strings so no precision is lost in BSON.
type balanceDoc struct {
	UserID    string    `bson:"_id"`
	Wallet    string    `bson:"wallet"`
	Bonus     string    `bson:"bonus"`
	UpdatedAt time.Time `bson:"updated_at"`
	Version   int       `bson:"version"`
}

func toBalanceDoc(b *entity.Balance) balanceDoc {
	return balanceDoc{
		UserID:    b.UserID,
		Wallet:    b.Wallet.String(),
		Bonus:     b.Bonus.String(),
		UpdatedAt: b.UpdatedAt,
		Version:   b.Version,
	}
}

func (d balanceDoc) toEntity() (*entity.Balance, error) {
	wallet, err := decimal.NewFromString(d.Wallet)
	if err != nil {
		return nil, fmt.Errorf("corrupt wallet value %q for user %s: %w", d.Wallet, d.UserID, err)
	}
	bonus, err := decimal.NewFromString(d.Bonus)
	if err != nil {
		return nil, fmt.Errorf("corrupt bonus value %q for user %s: %w", d.Bonus, d.UserID, err)
	}
	return &entity.Balance{
		UserID:    d.UserID,
		Wallet:    wallet,
		Bonus:     bonus,
		UpdatedAt: d.UpdatedAt,
		Version:   d.Version,
	}, nil
}

type balanceRepository struct {
	collection *mongo.Collection
}

func NewBalanceRepository(client *mongo.Client, cfg config.MongoDBConfig) repository.BalanceRepository {
	return &balanceRepository{
		collection: client.Database(cfg.Database).Collection(balanceCollectionName),
	}
}

func (r *balanceRepository) GetByUserID(ctx context.Context, userID string) (*entity.Balance, error) {
	var doc balanceDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get balance for user %s: %w", userID, err)
	}
	return doc.toEntity()
}

// Save upserts the balance document with an optimistic version filter. A
// fresh ledger (version 1, never persisted) inserts; anything newer must
// match the stored version.
func (r *balanceRepository) Save(ctx context.Context, balance *entity.Balance) error {
	doc := toBalanceDoc(balance)
	doc.Version = balance.Version + 1

	filter := bson.M{
		"_id":     balance.UserID,
		"version": balance.Version,
	}

	res, err := r.collection.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(balance.Version == 1))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrOptimisticLock
		}
		return fmt.Errorf("failed to save balance for user %s: %w", balance.UserID, err)
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return repository.ErrOptimisticLock
	}

	balance.Version = doc.Version
	return nil
}
