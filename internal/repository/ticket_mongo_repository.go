package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
)

const ticketsCollection = "tickets"

type ticketDocument struct {
	TicketNumber   string     `bson:"ticket_number"`
	CreatedAt      time.Time  `bson:"created_at"`
	Details        bson.D     `bson:"details"`
	Verified       bool       `bson:"verified"`
	AttendanceTime *time.Time `bson:"attendance_time"`
	Artifact       string     `bson:"artifact"`
}

// ticketCollection is the subset of *mongo.Collection the repository uses.
type ticketCollection interface {
	InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error)
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOneAndUpdate(ctx context.Context, filter, update any, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
}

type mongoTicketRepository struct {
	coll ticketCollection
	now  func() time.Time
}

// NewMongoTicketRepository builds the document-store ticket repository.
// EnsureTicketIndexes must have run against db first.
func NewMongoTicketRepository(db *mongo.Database) TicketRepository {
	return &mongoTicketRepository{coll: db.Collection(ticketsCollection), now: time.Now}
}

// EnsureTicketIndexes creates the unique ticket_number index and the
// creation-order index used for pagination.
func EnsureTicketIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(ticketsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ticket_number", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("ticket_number_unique"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}, {Key: "ticket_number", Value: 1}},
			Options: options.Index().SetName("created_at_order"),
		},
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(attendanceCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "ticket_number", Value: 1}, {Key: "verified_at", Value: 1}},
		Options: options.Index().SetName("ticket_verified_at"),
	})
	return err
}

func (r *mongoTicketRepository) Insert(ctx context.Context, ticket *domain.Ticket) error {
	doc := ticketDocument{
		TicketNumber: ticket.TicketNumber,
		CreatedAt:    r.now().UTC().Truncate(time.Millisecond),
		Details:      detailsToBSON(ticket.Details),
		Artifact:     ticket.Artifact,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateTicket
		}
		return err
	}
	ticket.CreatedAt = doc.CreatedAt
	ticket.Verified = false
	ticket.AttendanceTime = nil
	return nil
}

func (r *mongoTicketRepository) Exists(ctx context.Context, ticketNumber string) (bool, error) {
	count, err := r.coll.CountDocuments(ctx, bson.D{{Key: "ticket_number", Value: ticketNumber}}, options.Count().SetLimit(1))
	return count > 0, err
}

func (r *mongoTicketRepository) FindByNumber(ctx context.Context, ticketNumber string) (*domain.Ticket, error) {
	var doc ticketDocument
	err := r.coll.FindOne(ctx, bson.D{{Key: "ticket_number", Value: ticketNumber}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

// MarkVerified computes the merged details client side and applies them
// with a compare-and-set on verified=false, so only one caller can win.
func (r *mongoTicketRepository) MarkVerified(ctx context.Context, ticketNumber string, merge domain.Details, at time.Time) (*domain.Ticket, bool, error) {
	ticket, err := r.FindByNumber(ctx, ticketNumber)
	if err != nil {
		return nil, false, err
	}
	if ticket.Verified {
		return ticket, false, nil
	}

	at = at.UTC().Truncate(time.Millisecond)
	merged := ticket.Details.Merge(merge)
	filter := bson.D{
		{Key: "ticket_number", Value: ticketNumber},
		{Key: "verified", Value: false},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "verified", Value: true},
		{Key: "attendance_time", Value: at},
		{Key: "details", Value: detailsToBSON(merged)},
	}}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, false, err
	}
	if res.ModifiedCount == 0 {
		current, err := r.FindByNumber(ctx, ticketNumber)
		if err != nil {
			return nil, false, err
		}
		return current, false, nil
	}

	ticket.Details = merged
	ticket.Verified = true
	ticket.AttendanceTime = &at
	return ticket, true, nil
}

func (r *mongoTicketRepository) ReplaceDetails(ctx context.Context, ticketNumber string, details domain.Details, at time.Time) (*domain.Ticket, bool, error) {
	at = at.UTC().Truncate(time.Millisecond)
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "details", Value: bson.D{{Key: "$literal", Value: detailsToBSON(details)}}},
			{Key: "verified", Value: true},
			{Key: "attendance_time", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$attendance_time", at}}}},
		}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var prev ticketDocument
	err := r.coll.FindOneAndUpdate(ctx, bson.D{{Key: "ticket_number", Value: ticketNumber}}, update, opts).Decode(&prev)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, err
	}

	ticket := prev.toDomain()
	transitioned := !ticket.Verified
	if ticket.AttendanceTime == nil {
		ticket.AttendanceTime = &at
	}
	ticket.Verified = true
	ticket.Details = details.Clone()
	return ticket, transitioned, nil
}

func (r *mongoTicketRepository) List(ctx context.Context, offset, limit int) ([]domain.Ticket, int64, error) {
	offset, limit = normalizePage(offset, limit)

	total, err := r.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "ticket_number", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	result := []domain.Ticket{}
	for cursor.Next(ctx) {
		var doc ticketDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, err
		}
		result = append(result, *doc.toDomain())
	}
	return result, total, cursor.Err()
}

func (d ticketDocument) toDomain() *domain.Ticket {
	return &domain.Ticket{
		TicketNumber:   d.TicketNumber,
		CreatedAt:      d.CreatedAt,
		Details:        detailsFromBSON(d.Details),
		Verified:       d.Verified,
		AttendanceTime: d.AttendanceTime,
		Artifact:       d.Artifact,
	}
}

func detailsToBSON(d domain.Details) bson.D {
	out := bson.D{}
	d.Range(func(key string, value any) bool {
		out = append(out, bson.E{Key: key, Value: bsonValue(value)})
		return true
	})
	return out
}

func bsonValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func detailsFromBSON(doc bson.D) domain.Details {
	var d domain.Details
	for _, e := range doc {
		switch v := e.Value.(type) {
		case int32:
			d.Set(e.Key, json.Number(strconv.FormatInt(int64(v), 10)))
		case int64:
			d.Set(e.Key, json.Number(strconv.FormatInt(v, 10)))
		case float64:
			d.Set(e.Key, json.Number(strconv.FormatFloat(v, 'f', -1, 64)))
		default:
			d.Set(e.Key, v)
		}
	}
	return d
}
