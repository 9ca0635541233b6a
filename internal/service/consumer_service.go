package service

import (
	"context"
	"encoding/json"
	"log"

	"shopmate-be/internal/dto"
	"shopmate-be/internal/entity"
	"shopmate-be/internal/repository/specification"
	"shopmate-be/internal/repository/unitofwork"
	"shopmate-be/pkg/store"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	pubSub     *gochannel.GoChannel
	topicName  string
	uowFactory unitofwork.RepositoryFactory
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
) IConsumerService {
	return &consumerService{
		pubSub:     pubSub,
		topicName:  topicName,
		uowFactory: uowFactory,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

// processMessage appends one turn to the durable transcript, creating the
// session row on first contact.
func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PublishTurnMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("[ERROR] Failed to unmarshal turn message: %v", err)
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	sessionRepo := uow.ChatSessionRepository()

	session, err := sessionRepo.FindOne(ctx, specification.BySessionKey{
		UserId:     payload.UserId,
		SessionKey: payload.SessionKey,
	})
	if err != nil {
		log.Printf("[ERROR] Failed to look up chat session %s: %v", payload.SessionKey, err)
		msg.Nack()
		return
	}

	if session == nil {
		domain := payload.Domain
		if domain == "" {
			domain = store.DomainUnknown
		}
		session = &entity.ChatSession{
			UserId:     payload.UserId,
			SessionKey: payload.SessionKey,
			Domain:     domain,
		}
		if err := sessionRepo.Create(ctx, session); err != nil {
			log.Printf("[ERROR] Failed to create chat session %s: %v", payload.SessionKey, err)
			msg.Nack()
			return
		}
	}

	turn := &entity.ChatTurn{
		ChatSessionId: session.Id,
		UserText:      payload.UserText,
		BotSummary:    payload.BotSummary,
		State:         payload.State,
		ContentType:   payload.ContentType,
		DataSource:    payload.DataSource,
		ProductIds:    payload.ProductIds,
		CreatedAt:     payload.OccurredAt,
	}
	if err := uow.ChatTurnRepository().Create(ctx, turn); err != nil {
		log.Printf("[ERROR] Failed to persist chat turn for session %s: %v", payload.SessionKey, err)
		msg.Nack()
		return
	}

	msg.Ack()
}
