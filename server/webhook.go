package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/attachehq/attache/store/messagelog"
)

type webhookEvent struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
}

// handleWebhookVerify answers Meta's subscription handshake.
func (s *Server) handleWebhookVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && s.verifyToken != "" && token == s.verifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	c.String(http.StatusForbidden, "verification failed")
}

// handleWebhookEvent stores inbound text messages. Always 200: Meta retries
// non-2xx responses and a bad notification is not worth a retry storm.
func (s *Server) handleWebhookEvent(c *gin.Context) {
	var event webhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		s.log.Debug().Err(err).Msg("webhook payload unreadable")
		c.Status(http.StatusOK)
		return
	}

	stored := 0
	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" {
					continue
				}
				row := &messagelog.Message{
					MessageID:  msg.ID,
					From:       msg.From,
					Body:       msg.Text.Body,
					ReceivedAt: webhookTime(msg.Timestamp),
				}
				if row.MessageID == "" {
					row.MessageID = uuid.NewString()
				}
				if err := s.inbox.Insert(c.Request.Context(), row); err != nil {
					s.log.Error().Err(err).Msg("store webhook message")
					continue
				}
				stored++
			}
		}
	}
	if stored > 0 {
		s.log.Info().Int("messages", stored).Msg("webhook messages stored")
	}
	c.Status(http.StatusOK)
}

func webhookTime(ts string) time.Time {
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || sec <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}
