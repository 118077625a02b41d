package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
)

const attendanceCollection = "attendance_log"

type attendanceDocument struct {
	ID           string    `bson:"_id"`
	TicketNumber string    `bson:"ticket_number"`
	VerifiedAt   time.Time `bson:"verified_at"`
	Details      bson.D    `bson:"details"`
	Source       string    `bson:"source"`
}

type mongoAttendanceRepository struct {
	coll *mongo.Collection
}

// NewMongoAttendanceRepository builds the document-store attendance log.
func NewMongoAttendanceRepository(db *mongo.Database) AttendanceRepository {
	return &mongoAttendanceRepository{coll: db.Collection(attendanceCollection)}
}

func (r *mongoAttendanceRepository) Append(ctx context.Context, record *domain.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	_, err := r.coll.InsertOne(ctx, attendanceDocument{
		ID:           record.ID,
		TicketNumber: record.TicketNumber,
		VerifiedAt:   record.VerifiedAt.UTC(),
		Details:      detailsToBSON(record.Details),
		Source:       string(record.Source),
	})
	return err
}

func (r *mongoAttendanceRepository) ListByTicket(ctx context.Context, ticketNumber string) ([]domain.AttendanceRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "verified_at", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.D{{Key: "ticket_number", Value: ticketNumber}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	result := []domain.AttendanceRecord{}
	for cursor.Next(ctx) {
		var doc attendanceDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, domain.AttendanceRecord{
			ID:           doc.ID,
			TicketNumber: doc.TicketNumber,
			VerifiedAt:   doc.VerifiedAt,
			Details:      detailsFromBSON(doc.Details),
			Source:       domain.AttendanceSource(doc.Source),
		})
	}
	return result, cursor.Err()
}
