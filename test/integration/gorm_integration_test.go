package integration

import (
	"context"
	"log"
	"os"
	"testing"

	"shopmate-be/internal/entity"
	"shopmate-be/internal/repository/specification"
	"shopmate-be/internal/repository/unitofwork"
	"shopmate-be/pkg/database"
	"shopmate-be/pkg/store"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormConnection(t *testing.T) {
	// Load .env from root
	err := godotenv.Load("../../.env")
	if err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	gormDB, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}

	// Verify Wiring
	uowFactory := unitofwork.NewRepositoryFactory(gormDB)
	uow := uowFactory.NewUnitOfWork(context.Background())

	assert.NotNil(t, uow.ChatSessionRepository())
	assert.NotNil(t, uow.ChatTurnRepository())

	// Basic Ping
	sqlDB, _ := gormDB.DB()
	err = sqlDB.Ping()
	assert.NoError(t, err)

	t.Run("Check Chat Session Repository", func(t *testing.T) {
		count, err := uow.ChatSessionRepository().Count(context.Background())
		assert.NoError(t, err)
		t.Logf("Chat session count: %d", count)
	})

	t.Run("Transcript Round Trip", func(t *testing.T) {
		ctx := context.Background()
		sessionKey := "it-" + uuid.New().String()

		session := &entity.ChatSession{
			UserId:     "integration-user",
			SessionKey: sessionKey,
			Domain:     store.DomainFoodAndBeverage,
		}
		require.NoError(t, uow.ChatSessionRepository().Create(ctx, session))
		require.NotEqual(t, uuid.Nil, session.Id)

		turn := &entity.ChatTurn{
			ChatSessionId: session.Id,
			UserText:      "I want chips",
			BotSummary:    "What's your budget?",
			State:         "NEW_QUERY",
			ContentType:   store.TurnCasual,
			DataSource:    store.DataSourceNone,
		}
		require.NoError(t, uow.ChatTurnRepository().Create(ctx, turn))

		found, err := uow.ChatSessionRepository().FindOne(ctx, specification.BySessionKey{
			UserId:     "integration-user",
			SessionKey: sessionKey,
		})
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, store.DomainFoodAndBeverage, found.Domain)

		turns, err := uow.ChatTurnRepository().FindAll(ctx,
			specification.ByChatSessionID{ChatSessionID: session.Id},
			specification.OrderBy{Field: "created_at", Desc: false},
		)
		require.NoError(t, err)
		require.Len(t, turns, 1)
		assert.Equal(t, "I want chips", turns[0].UserText)

		// Cleanup
		assert.NoError(t, uow.ChatTurnRepository().Delete(ctx, turns[0].Id))
		assert.NoError(t, uow.ChatSessionRepository().Delete(ctx, session.Id))
	})
}
