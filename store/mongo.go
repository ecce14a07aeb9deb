package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"payment-gateway/models"
)

const paymentsCollection = "payments"

// Mongo stores one document per payment, keyed by the record id.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type paymentDocument struct {
	ID                string               `bson:"_id"`
	Reference         string               `bson:"reference"`
	Amount            primitive.Decimal128 `bson:"amount"`
	Currency          string               `bson:"currency"`
	Email             string               `bson:"email"`
	Status            string               `bson:"status"`
	Provider          string               `bson:"provider"`
	ProviderReference *string              `bson:"provider_reference"`
	AuthorizationURL  *string              `bson:"authorization_url"`
	Metadata          map[string]any       `bson:"metadata,omitempty"`
	Error             *string              `bson:"error,omitempty"`
	PaidAt            *time.Time           `bson:"paid_at,omitempty"`
	VerifiedAt        *time.Time           `bson:"verified_at,omitempty"`
	CreatedAt         time.Time            `bson:"created_at"`
	UpdatedAt         time.Time            `bson:"updated_at"`
}

// NewMongo connects to uri and ensures the collection's indexes.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	coll := client.Database(database).Collection(paymentsCollection)
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "reference", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return &Mongo{client: client, coll: coll}, nil
}

func (m *Mongo) Create(ctx context.Context, rec *models.PaymentRecord) error {
	doc, err := toDocument(rec)
	if err != nil {
		return err
	}
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (m *Mongo) FindByID(ctx context.Context, id string) (*models.PaymentRecord, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *Mongo) FindByReference(ctx context.Context, reference string) (*models.PaymentRecord, error) {
	return m.findOne(ctx, bson.M{"reference": reference})
}

func (m *Mongo) findOne(ctx context.Context, filter bson.M) (*models.PaymentRecord, error) {
	var doc paymentDocument
	if err := m.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc.record()
}

func (m *Mongo) Update(ctx context.Context, id string, u Update) (*models.PaymentRecord, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if u.Status != nil {
		set["status"] = string(*u.Status)
	}
	if u.ProviderReference != nil {
		set["provider_reference"] = *u.ProviderReference
	}
	if u.AuthorizationURL != nil {
		set["authorization_url"] = *u.AuthorizationURL
	}
	if u.Error != nil {
		set["error"] = *u.Error
	}
	if u.PaidAt != nil {
		set["paid_at"] = u.PaidAt.UTC()
	}
	if u.VerifiedAt != nil {
		set["verified_at"] = u.VerifiedAt.UTC()
	}

	filter := bson.M{"_id": id}
	if len(u.ExpectNot) > 0 {
		nin := make([]string, len(u.ExpectNot))
		for i, s := range u.ExpectNot {
			nin[i] = string(s)
		}
		filter["status"] = bson.M{"$nin": nin}
	}

	var doc paymentDocument
	err := m.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, cerr := m.coll.CountDocuments(ctx, bson.M{"_id": id})
		if cerr != nil {
			return nil, cerr
		}
		if n == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrStatusConflict
	}
	if err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}
	return doc.record()
}

func (m *Mongo) List(ctx context.Context, filter models.ListFilter, limit, skip int) ([]*models.PaymentRecord, int64, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	if filter.Email != "" {
		query["email"] = filter.Email
	}

	total, err := m.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))
	cursor, err := m.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.PaymentRecord
	for cursor.Next(ctx) {
		var doc paymentDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, err
		}
		rec, err := doc.record()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, cursor.Err()
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func toDocument(rec *models.PaymentRecord) (*paymentDocument, error) {
	amount, err := primitive.ParseDecimal128(rec.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("encode amount: %w", err)
	}
	return &paymentDocument{
		ID:                rec.ID,
		Reference:         rec.Reference,
		Amount:            amount,
		Currency:          string(rec.Currency),
		Email:             rec.Email,
		Status:            string(rec.Status),
		Provider:          rec.Provider,
		ProviderReference: rec.ProviderReference,
		AuthorizationURL:  rec.AuthorizationURL,
		Metadata:          rec.Metadata,
		Error:             rec.Error,
		PaidAt:            rec.PaidAt,
		VerifiedAt:        rec.VerifiedAt,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}, nil
}

func (d *paymentDocument) record() (*models.PaymentRecord, error) {
	amount, err := decimal.NewFromString(d.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("decode amount: %w", err)
	}
	return &models.PaymentRecord{
		ID:                d.ID,
		Reference:         d.Reference,
		Amount:            amount,
		Currency:          models.Currency(d.Currency),
		Email:             d.Email,
		Status:            models.Status(d.Status),
		Provider:          d.Provider,
		ProviderReference: d.ProviderReference,
		AuthorizationURL:  d.AuthorizationURL,
		Metadata:          d.Metadata,
		Error:             d.Error,
		PaidAt:            d.PaidAt,
		VerifiedAt:        d.VerifiedAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}, nil
}

var _ PaymentStore = (*Mongo)(nil)
