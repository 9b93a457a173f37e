package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	contractx "github.com/attachehq/attache/agent/contract"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
	Success  bool   `json:"success"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

type failurePayload struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

type actionResponse struct {
	Success bool            `json:"success"`
	Result  map[string]any  `json:"result,omitempty"`
	Failure *failurePayload `json:"failure,omitempty"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": serviceName,
		"version": version,
		"status":  "running",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	reply, err := s.dispatcher.Handle(c.Request.Context(), req.Message)
	if err != nil {
		s.log.Error().Err(err).Msg("chat request failed")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "something went wrong handling the request"})
		return
	}
	c.JSON(http.StatusOK, chatResponse{Response: reply, Success: true})
}

type actionInfo struct {
	Name        string      `json:"name"`
	Service     string      `json:"service"`
	Description string      `json:"description"`
	Params      []paramInfo `json:"params,omitempty"`
}

type paramInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleListActions(c *gin.Context) {
	actions := s.dispatcher.Actions()
	out := make([]actionInfo, 0, len(actions))
	for _, a := range actions {
		info := actionInfo{Name: a.Name, Service: a.Service, Description: a.Description}
		for _, p := range a.Params {
			info.Params = append(info.Params, paramInfo{
				Name:        p.Name,
				Type:        string(p.Type),
				Required:    p.Required,
				Description: p.Description,
			})
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"actions": out})
}

type directRequest struct {
	Params map[string]any `json:"params"`
}

func (s *Server) handleDirectAction(c *gin.Context) {
	var req directRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	s.runDirect(c, c.Param("name"), contractx.ParameterSet(req.Params))
}

type sendEmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	CC      string `json:"cc"`
}

func (s *Server) handleSendEmail(c *gin.Context) {
	var req sendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	params := contractx.ParameterSet{
		"to":      req.To,
		"subject": req.Subject,
		"body":    req.Body,
	}
	if strings.TrimSpace(req.CC) != "" {
		params["cc"] = req.CC
	}
	s.runDirect(c, "send_email", params)
}

func (s *Server) handleUnreadCount(c *gin.Context) {
	s.runDirect(c, "get_unread_count", nil)
}

func (s *Server) handleRecentEmails(c *gin.Context) {
	params := contractx.ParameterSet{}
	if raw := c.Query("count"); raw != "" {
		count, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "count must be a number"})
			return
		}
		params["count"] = count
	}
	if folder := c.Query("folder"); folder != "" {
		params["folder"] = folder
	}
	s.runDirect(c, "read_emails", params)
}

// runDirect pushes a structured call through the dispatcher and writes the
// structured outcome: plumbing errors become status codes, service failures
// stay in the body.
func (s *Server) runDirect(c *gin.Context, action string, params contractx.ParameterSet) {
	res, err := s.dispatcher.HandleDirect(c.Request.Context(), action, params)
	if err != nil {
		if errors.Is(err, contractx.ErrActionNotFound) {
			c.JSON(http.StatusNotFound, errorResponse{Error: "unknown action " + action})
			return
		}
		s.log.Error().Err(err).Str("action", action).Msg("direct action failed")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "something went wrong handling the request"})
		return
	}

	if !res.Ok() {
		c.JSON(http.StatusOK, actionResponse{
			Failure: &failurePayload{Kind: string(res.Failure.Kind), Detail: res.Failure.Detail},
		})
		return
	}
	c.JSON(http.StatusOK, actionResponse{Success: true, Result: res.Payload})
}
