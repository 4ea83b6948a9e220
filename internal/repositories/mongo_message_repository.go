package repositories

import (
	"context"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"community-chat/internal/models"
)

// mongoMessage is the single message document shape for both room kinds;
// chatType tells which collection the chat field points into.
type mongoMessage struct {
	ID          string               `bson:"_id"`
	Sender      string               `bson:"sender"`
	ChatType    string               `bson:"chatType"`
	Chat        string               `bson:"chat"`
	Content     string               `bson:"content"`
	Attachments []models.Attachment  `bson:"attachments"`
	ReadBy      []models.ReadReceipt `bson:"readBy"`
	IsDeleted   bool                 `bson:"isDeleted"`
	CreatedAt   time.Time            `bson:"createdAt"`
}

func toMongoMessage(m models.Message) mongoMessage {
	return mongoMessage{
		ID:          m.ID,
		Sender:      m.SenderID,
		ChatType:    string(m.RoomKind),
		Chat:        m.RoomID,
		Content:     m.Content,
		Attachments: m.Attachments,
		ReadBy:      m.ReadBy,
		IsDeleted:   m.Deleted,
		CreatedAt:   m.CreatedAt,
	}
}

func (d mongoMessage) toMessage() models.Message {
	return models.Message{
		ID:          d.ID,
		SenderID:    d.Sender,
		RoomID:      d.Chat,
		RoomKind:    models.RoomKind(d.ChatType),
		Content:     d.Content,
		Attachments: d.Attachments,
		ReadBy:      d.ReadBy,
		Deleted:     d.IsDeleted,
		CreatedAt:   d.CreatedAt,
	}
}

// MongoMessageRepo is a MongoDB implementation of MessageRepository.
type MongoMessageRepo struct {
	messages *mongo.Collection
}

// NewMongoMessageRepo constructs a MongoMessageRepo.
func NewMongoMessageRepo(db *mongo.Database) *MongoMessageRepo {
	return &MongoMessageRepo{messages: db.Collection(CollectionMessages)}
}

func (r *MongoMessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if _, err := r.messages.InsertOne(ctx, toMongoMessage(msg)); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (r *MongoMessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var doc mongoMessage
	if err := r.messages.FindOne(ctx, bson.M{"_id": messageID}).Decode(&doc); err != nil {
		return models.Message{}, mongoNotFound(err, ErrMessageNotFound)
	}
	return doc.toMessage(), nil
}

// AppendReadReceipt pushes the receipt only when the reader is not yet in readBy,
// so concurrent marks from the same reader produce a single entry.
func (r *MongoMessageRepo) AppendReadReceipt(ctx context.Context, messageID string, receipt models.ReadReceipt) (bool, error) {
	filter := bson.M{"_id": messageID, "readBy.user": bson.M{"$ne": receipt.UserID}}
	res, err := r.messages.UpdateOne(ctx, filter, bson.M{"$push": bson.M{"readBy": receipt}})
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	count, err := r.messages.CountDocuments(ctx, bson.M{"_id": messageID})
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, ErrMessageNotFound
	}
	return false, nil
}

func (r *MongoMessageRepo) ListMessages(ctx context.Context, ref models.RoomRef, limit int) ([]models.Message, error) {
	filter := bson.M{"chat": ref.ID, "chatType": string(ref.Kind), "isDeleted": false}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))

	cur, err := r.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []mongoMessage
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	slices.Reverse(docs)

	msgs := make([]models.Message, 0, len(docs))
	for _, d := range docs {
		msgs = append(msgs, d.toMessage())
	}
	return msgs, nil
}

func (r *MongoMessageRepo) SoftDelete(ctx context.Context, messageID string, senderID string) error {
	res, err := r.messages.UpdateOne(ctx, bson.M{"_id": messageID, "sender": senderID}, bson.M{"$set": bson.M{"isDeleted": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrMessageNotFound
	}
	return nil
}
