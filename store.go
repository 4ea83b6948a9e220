package main

import (
	"context"
	"log/slog"

	"go.mongodb.org/mongo-driver/mongo/readpref"

	"community-chat/internal/config"
	"community-chat/internal/db"
	grpcserver "community-chat/internal/grpc"
	"community-chat/internal/identity"
	"community-chat/internal/models"
	"community-chat/internal/repositories"
)

// store bundles the repositories of the configured driver.
type store struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	memory   *repositories.MemoryStore
	probe    grpcserver.Probe
	close    func(context.Context) error
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		mem := repositories.NewMemoryStore()
		log.Warn("using in-memory store; data is lost on restart")
		return store{
			rooms:    mem,
			messages: mem,
			users:    mem,
			memory:   mem,
			probe:    func(context.Context) error { return nil },
			close:    func(context.Context) error { return nil },
		}, nil

	case config.StoreMongo:
		client, database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
		if err != nil {
			return store{}, err
		}
		return store{
			rooms:    repositories.NewMongoRoomRepo(database),
			messages: repositories.NewMongoMessageRepo(database),
			users:    repositories.NewMongoUserRepo(database),
			probe:    func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) },
			close:    client.Disconnect,
		}, nil

	default:
		database, err := db.Connect(ctx, cfg.DBDSN, log)
		if err != nil {
			return store{}, err
		}
		return store{
			rooms:    repositories.NewRoomRepo(database),
			messages: repositories.NewMessageRepo(database),
			users:    repositories.NewUserRepo(database),
			probe:    database.PingContext,
			close:    func(context.Context) error { return database.Close() },
		}, nil
	}
}

// directoryRecorder fills the in-memory user directory from authenticated
// principals, since that store has no other source of display names.
type directoryRecorder struct {
	identity.Authenticator
	users *repositories.MemoryStore
}

func (d directoryRecorder) Authenticate(ctx context.Context, token string) (models.Principal, error) {
	principal, err := d.Authenticator.Authenticate(ctx, token)
	if err == nil {
		d.users.PutUser(principal.UserID, principal.Name)
	}
	return principal, err
}
