package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"community-chat/internal/models"
)

// Collection names shared by the mongo repositories and index setup.
const (
	CollectionDirectChats = "direct_chats"
	CollectionGroups      = "groups"
	CollectionMessages    = "messages"
	CollectionUsers       = "users"
)

type mongoDirectChat struct {
	ID           string    `bson:"_id"`
	Participants []string  `bson:"participants"`
	PairKey      string    `bson:"pairKey"`
	LastMessage  string    `bson:"lastMessage,omitempty"`
	CreatedAt    time.Time `bson:"createdAt"`
}

type mongoGroupMember struct {
	User string `bson:"user"`
	Role string `bson:"role"`
}

type mongoGroup struct {
	ID        string             `bson:"_id"`
	Name      string             `bson:"name"`
	CreatedBy string             `bson:"createdBy"`
	Members   []mongoGroupMember `bson:"members"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d mongoDirectChat) toRoom() models.Room {
	return models.Room{
		ID:            d.ID,
		Kind:          models.RoomKindDirect,
		Participants:  d.Participants,
		LastMessageID: d.LastMessage,
		CreatedAt:     d.CreatedAt,
	}
}

func (g mongoGroup) toRoom() models.Room {
	return models.Room{
		ID:        g.ID,
		Kind:      models.RoomKindGroup,
		Name:      g.Name,
		CreatedBy: g.CreatedBy,
		Members: lo.Map(g.Members, func(m mongoGroupMember, _ int) models.Member {
			return models.Member{UserID: m.User, Role: models.MemberRole(m.Role)}
		}),
		CreatedAt: g.CreatedAt,
	}
}

// MongoRoomRepo stores direct chats and groups in separate collections; the
// room kind selects which one a lookup resolves against.
type MongoRoomRepo struct {
	directs *mongo.Collection
	groups  *mongo.Collection
}

// NewMongoRoomRepo constructs a MongoRoomRepo.
func NewMongoRoomRepo(db *mongo.Database) *MongoRoomRepo {
	return &MongoRoomRepo{
		directs: db.Collection(CollectionDirectChats),
		groups:  db.Collection(CollectionGroups),
	}
}

// FindRoom resolves the room document of the referenced kind.
func (r *MongoRoomRepo) FindRoom(ctx context.Context, ref models.RoomRef) (models.Room, error) {
	switch ref.Kind {
	case models.RoomKindDirect:
		var doc mongoDirectChat
		if err := r.directs.FindOne(ctx, bson.M{"_id": ref.ID}).Decode(&doc); err != nil {
			return models.Room{}, mongoNotFound(err, ErrRoomNotFound)
		}
		return doc.toRoom(), nil
	case models.RoomKindGroup:
		var doc mongoGroup
		if err := r.groups.FindOne(ctx, bson.M{"_id": ref.ID}).Decode(&doc); err != nil {
			return models.Room{}, mongoNotFound(err, ErrRoomNotFound)
		}
		return doc.toRoom(), nil
	default:
		return models.Room{}, models.ErrInvalidRoomKind
	}
}

// UpdateLastMessage points a direct chat at its newest message.
func (r *MongoRoomRepo) UpdateLastMessage(ctx context.Context, roomID string, messageID string) error {
	res, err := r.directs.UpdateOne(ctx, bson.M{"_id": roomID}, bson.M{"$set": bson.M{"lastMessage": messageID}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// CreateOrGetDirectRoom upserts the direct chat keyed by the ordered pair.
func (r *MongoRoomRepo) CreateOrGetDirectRoom(ctx context.Context, userID string, otherID string) (models.Room, error) {
	pair, err := directPair(userID, otherID)
	if err != nil {
		return models.Room{}, err
	}
	key := pair[0] + "|" + pair[1]

	update := bson.M{"$setOnInsert": bson.M{
		"_id":          uuid.NewString(),
		"participants": pair[:],
		"pairKey":      key,
		"createdAt":    time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc mongoDirectChat
	if err := r.directs.FindOneAndUpdate(ctx, bson.M{"pairKey": key}, update, opts).Decode(&doc); err != nil {
		return models.Room{}, fmt.Errorf("upsert direct chat: %w", err)
	}
	return doc.toRoom(), nil
}

// CreateGroup inserts a group with the creator as admin.
func (r *MongoRoomRepo) CreateGroup(ctx context.Context, name string, creatorID string, memberIDs []string) (models.Room, error) {
	doc := mongoGroup{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedBy: creatorID,
		Members: lo.Map(groupMembers(creatorID, memberIDs), func(m models.Member, _ int) mongoGroupMember {
			return mongoGroupMember{User: m.UserID, Role: string(m.Role)}
		}),
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.groups.InsertOne(ctx, doc); err != nil {
		return models.Room{}, err
	}
	return doc.toRoom(), nil
}

// ListRoomsForUser merges the user's direct chats and groups, newest first.
func (r *MongoRoomRepo) ListRoomsForUser(ctx context.Context, userID string) ([]models.Room, error) {
	var directs []mongoDirectChat
	cur, err := r.directs.Find(ctx, bson.M{"participants": userID})
	if err != nil {
		return nil, err
	}
	if err := cur.All(ctx, &directs); err != nil {
		return nil, err
	}

	var groups []mongoGroup
	cur, err = r.groups.Find(ctx, bson.M{"members.user": userID})
	if err != nil {
		return nil, err
	}
	if err := cur.All(ctx, &groups); err != nil {
		return nil, err
	}

	rooms := make([]models.Room, 0, len(directs)+len(groups))
	for _, d := range directs {
		rooms = append(rooms, d.toRoom())
	}
	for _, g := range groups {
		rooms = append(rooms, g.toRoom())
	}
	sort.SliceStable(rooms, func(i, j int) bool { return rooms[i].CreatedAt.After(rooms[j].CreatedAt) })
	return rooms, nil
}

func mongoNotFound(err error, notFound error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return notFound
	}
	return err
}
