package service

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"codeassist-be/internal/dto"
	"codeassist-be/internal/repository/specification"
	"codeassist-be/internal/repository/unitofwork"
	internalWS "codeassist-be/internal/websocket"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// autoTitleMaxRunes bounds titles derived from the first user message.
const autoTitleMaxRunes = 48

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService handles GENERATION_COMPLETED off the in-process bus:
// gives freshly used sessions a title derived from their first message
// and pokes the owner's websocket clients.
type consumerService struct {
	pubSub     *gochannel.GoChannel
	topicName  string
	uowFactory unitofwork.RepositoryFactory
	hub        *internalWS.Hub
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	hub *internalWS.Hub,
) IConsumerService {
	return &consumerService{
		pubSub:     pubSub,
		topicName:  topicName,
		uowFactory: uowFactory,
		hub:        hub,
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

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.GenerationCompletedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("[ERROR] Failed to unmarshal message: %v", err)
		msg.Ack() // malformed, retrying won't help
		return
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)

	sess, err := uow.ChatSessionRepository().FindOne(ctx, specification.ByID{ID: payload.SessionId})
	if err != nil {
		log.Printf("[ERROR] Failed to get session %s: %v", payload.SessionId, err)
		msg.Nack()
		return
	}
	if sess == nil {
		msg.Ack() // session deleted in the meantime
		return
	}

	renamed := false
	if strings.HasPrefix(sess.Title, "Session ") && payload.FirstMessage != "" {
		sess.Title = deriveTitle(payload.FirstMessage)
		sess.UpdatedAt = time.Now()

		if err := uow.Begin(ctx); err != nil {
			log.Printf("[ERROR] Failed to begin transaction: %v", err)
			msg.Nack()
			return
		}
		defer uow.Rollback()

		if err := uow.ChatSessionRepository().Update(ctx, sess); err != nil {
			log.Printf("[ERROR] Failed to rename session %s: %v", sess.Id, err)
			msg.Nack()
			return
		}
		if err := uow.Commit(); err != nil {
			log.Printf("[ERROR] Failed to commit transaction: %v", err)
			msg.Nack()
			return
		}
		renamed = true
	}

	if cs.hub != nil {
		cs.hub.Send(payload.UserId, internalWS.Notice{
			Kind:      internalWS.NoticeGenerationDone,
			SessionId: payload.SessionId,
			Data: map[string]interface{}{
				"message_id":    payload.MessageId.String(),
				"finish_reason": payload.FinishReason,
			},
			At: time.Now(),
		})
		if renamed {
			cs.hub.Send(payload.UserId, internalWS.Notice{
				Kind:      internalWS.NoticeSessionRenamed,
				SessionId: payload.SessionId,
				Data:      map[string]interface{}{"title": sess.Title},
				At:        time.Now(),
			})
		}
	}

	msg.Ack()
}

// deriveTitle collapses the first user message into a short one-line
// session title.
func deriveTitle(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(title) > autoTitleMaxRunes {
		runes := []rune(title)
		title = strings.TrimSpace(string(runes[:autoTitleMaxRunes])) + "..."
	}
	return title
}
