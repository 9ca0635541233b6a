package service

import (
	"context"
	"fmt"
	"time"

	"shopmate-be/internal/dto"
	"shopmate-be/internal/pkg/logger"
	"shopmate-be/internal/repository/specification"
	"shopmate-be/internal/repository/unitofwork"
	"shopmate-be/pkg/convo/orchestrator"
	"shopmate-be/pkg/events"
	pktNats "shopmate-be/pkg/nats"
	"shopmate-be/pkg/store"

	"github.com/gofiber/fiber/v2"
)

type IChatService interface {
	SendChat(ctx context.Context, userId string, req *dto.SendChatRequest) (*dto.SendChatResponse, error)
	GetSessionState(ctx context.Context, userId, sessionId string) (*dto.GetSessionStateResponse, error)
	GetTranscript(ctx context.Context, userId, sessionId string, limit, offset int) ([]dto.TranscriptTurnDTO, error)
	ResetSession(ctx context.Context, userId, sessionId string) error
}

type chatService struct {
	orch             *orchestrator.Orchestrator
	sessions         store.SessionStore
	publisherService IPublisherService
	natsPub          *pktNats.Publisher
	uowFactory       unitofwork.RepositoryFactory
	sysLogger        logger.ILogger
}

func NewChatService(
	orch *orchestrator.Orchestrator,
	sessions store.SessionStore,
	publisherService IPublisherService,
	natsPub *pktNats.Publisher,
	uowFactory unitofwork.RepositoryFactory,
	sysLogger logger.ILogger,
) IChatService {
	return &chatService{
		orch:             orch,
		sessions:         sessions,
		publisherService: publisherService,
		natsPub:          natsPub,
		uowFactory:       uowFactory,
		sysLogger:        sysLogger,
	}
}

func (s *chatService) SendChat(ctx context.Context, userId string, req *dto.SendChatRequest) (*dto.SendChatResponse, error) {
	result, err := s.orch.HandleTurn(ctx, userId, req.SessionId, req.Message)
	if err != nil {
		s.sysLogger.Error("chat", "turn failed", map[string]interface{}{
			"user_id":    userId,
			"session_id": req.SessionId,
			"error":      err.Error(),
		})
		return nil, fmt.Errorf("handle turn: %w", err)
	}

	s.sysLogger.Info("chat", "turn completed", map[string]interface{}{
		"user_id":     userId,
		"session_id":  req.SessionId,
		"state":       result.State,
		"data_source": result.DataSource,
		"products":    len(result.Products),
		"saved":       result.Saved,
	})

	// Transcript and external notifications ride the bus; a bus failure
	// never fails the turn the user already got an answer for.
	if result.Saved {
		s.emitTurnEvent(ctx, userId, req.SessionId, req.Message, result)
	}

	res := &dto.SendChatResponse{
		SessionId:    req.SessionId,
		State:        result.State,
		Reply:        result.Reply,
		QuickReplies: result.QuickReplies,
		ProductIds:   result.ProductIDs,
		DataSource:   result.DataSource,
		AwaitingSlot: string(result.AwaitingSlot),
	}
	for _, p := range result.Products {
		res.Products = append(res.Products, dto.ProductDTOFromSnapshot(p))
	}
	return res, nil
}

func (s *chatService) emitTurnEvent(ctx context.Context, userId, sessionId, userText string, result *orchestrator.TurnResult) {
	contentType := store.TurnCasual
	if len(result.Products) > 0 {
		contentType = store.TurnProduct
	}
	msg := dto.PublishTurnMessage{
		UserId:      userId,
		SessionKey:  sessionId,
		Domain:      result.Domain,
		State:       result.State,
		UserText:    userText,
		BotSummary:  result.Reply,
		ContentType: contentType,
		DataSource:  result.DataSource,
		ProductIds:  result.ProductIDs,
		OccurredAt:  time.Now(),
	}

	if err := s.publisherService.Publish(ctx, msg); err != nil {
		s.sysLogger.Warn("chat", "failed to publish turn event", map[string]interface{}{"error": err.Error()})
	}

	if s.natsPub != nil {
		event := events.BaseEvent{
			Type: "CHAT_TURN_COMPLETED",
			Data: map[string]interface{}{
				"user_id":     userId,
				"session_key": sessionId,
				"domain":      result.Domain,
				"state":       result.State,
				"data_source": result.DataSource,
				"product_ids": result.ProductIDs,
			},
			OccurredAt: msg.OccurredAt,
		}
		if err := s.natsPub.Publish(ctx, event); err != nil {
			s.sysLogger.Warn("chat", "failed to publish NATS turn event", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (s *chatService) GetSessionState(ctx context.Context, userId, sessionId string) (*dto.GetSessionStateResponse, error) {
	sess, found, err := s.sessions.Get(ctx, userId, sessionId)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !found {
		return nil, fiber.NewError(fiber.StatusNotFound, "session not found")
	}

	res := &dto.GetSessionStateResponse{
		SessionId: sessionId,
		Domain:    sess.Domain,
		Category:  sess.Slots.CategoryPath,
		Slots:     slotsToMap(&sess.Slots),
	}

	if a := sess.Assessment; a != nil {
		assessment := &dto.AssessmentDTO{
			OriginalQuery:   a.OriginalQuery,
			Phase:           a.Phase,
			CurrentlyAsking: string(a.CurrentlyAsking),
		}
		for _, key := range a.PriorityOrder {
			if !a.Fulfilled[key] {
				assessment.Remaining = append(assessment.Remaining, string(key))
			}
		}
		res.Assessment = assessment
	}

	for _, turn := range sess.History {
		res.History = append(res.History, dto.TurnHistoryDTO{
			UserText:    turn.UserText,
			BotSummary:  turn.BotSummary,
			ContentType: turn.ContentType,
			DataSource:  turn.DataSource,
			CreatedAt:   turn.Timestamp,
		})
	}
	return res, nil
}

func (s *chatService) GetTranscript(ctx context.Context, userId, sessionId string, limit, offset int) ([]dto.TranscriptTurnDTO, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := uow.ChatSessionRepository().FindOne(ctx, specification.BySessionKey{
		UserId:     userId,
		SessionKey: sessionId,
	})
	if err != nil {
		return nil, fmt.Errorf("find chat session: %w", err)
	}
	if session == nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "session not found")
	}

	turns, err := uow.ChatTurnRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: session.Id},
		specification.OrderBy{Field: "created_at", Desc: false},
		specification.Pagination{Limit: limit, Offset: offset},
	)
	if err != nil {
		return nil, fmt.Errorf("find chat turns: %w", err)
	}

	out := make([]dto.TranscriptTurnDTO, 0, len(turns))
	for _, turn := range turns {
		out = append(out, dto.TranscriptTurnDTO{
			Id:          turn.Id,
			UserText:    turn.UserText,
			BotSummary:  turn.BotSummary,
			State:       turn.State,
			ContentType: turn.ContentType,
			DataSource:  turn.DataSource,
			ProductIds:  turn.ProductIds,
			CreatedAt:   turn.CreatedAt,
		})
	}
	return out, nil
}

func (s *chatService) ResetSession(ctx context.Context, userId, sessionId string) error {
	if err := s.sessions.Delete(ctx, userId, sessionId); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func slotsToMap(slots *store.Slots) map[string]any {
	out := make(map[string]any)
	if b := slots.Budget; b != nil {
		out[string(store.SlotBudget)] = map[string]any{
			"min_minor":  b.Min,
			"max_minor":  b.Max,
			"provenance": string(b.Provenance),
		}
	}
	if d := slots.Dietary; d != nil {
		out[string(store.SlotDietary)] = map[string]any{
			"values":     d.Values,
			"provenance": string(d.Provenance),
		}
	}
	if p := slots.Preferences; p != nil {
		out[string(store.SlotPreferences)] = map[string]any{
			"values":     p.Values,
			"provenance": string(p.Provenance),
		}
	}
	if b := slots.Brand; b != nil {
		out[string(store.SlotBrand)] = map[string]any{
			"value":      b.Value,
			"provenance": string(b.Provenance),
		}
	}
	return out
}
