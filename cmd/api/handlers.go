package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"marketflow/assessment"
	"marketflow/assistant"
	"marketflow/auth"
	"marketflow/catalog"
	"marketflow/chat"
	"marketflow/profile"
	"marketflow/realtime"
	"marketflow/support"
)

var errBadBody = errors.New("invalid request body")

func (s *Server) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", errBadBody)
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

type userResponse struct {
	ID       string    `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     auth.Role `json:"role"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role}
}

func (s *Server) handleRegister(c *gin.Context) {
	var req auth.RegisterRequest
	if !s.bind(c, &req) {
		return
	}
	user, err := s.auth.Register(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ensureProfile(c.Request.Context(), *user)
	token, err := s.auth.IssueToken(user.ID, user.Role)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "user": toUserResponse(*user)})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if !s.bind(c, &req) {
		return
	}
	res, err := s.auth.Login(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ensureProfile(c.Request.Context(), res.User)
	respondOK(c, gin.H{"token": res.Token, "user": toUserResponse(res.User)})
}

// ensureProfile gives a buyer or seller the default profile if they have
// none. Registration is committed before this runs, so a miss here is
// retried on the next login instead of failing the request.
func (s *Server) ensureProfile(ctx context.Context, user auth.User) {
	if user.Role != auth.RoleBuyer && user.Role != auth.RoleSeller {
		return
	}
	_, err := s.profiles.Ensure(ctx, profile.Profile{UserID: user.ID, Role: user.Role, DisplayName: user.FullName})
	if err != nil {
		s.log.Warn("default profile not stored", "user_id", user.ID, "error", err)
	}
}

type createProductRequest struct {
	Name string `json:"name"`
}

// handleCreateProduct lists a new product and opens its first assessment.
func (s *Server) handleCreateProduct(c *gin.Context) {
	var req createProductRequest
	if !s.bind(c, &req) {
		return
	}
	sellerID, _ := caller(c)
	product, a, err := s.assessments.SubmitProduct(c.Request.Context(), catalog.CreateParams{SellerID: sellerID, Name: req.Name})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product": product, "assessment": a})
}

func (s *Server) handleProductAssessment(c *gin.Context) {
	ctx := c.Request.Context()
	userID, role := caller(c)
	product, err := s.catalog.Get(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if role != auth.RoleAdmin && product.SellerID != userID {
		s.fail(c, errForbidden)
		return
	}
	a, err := s.assessments.Latest(ctx, product.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, gin.H{"product": product, "assessment": a})
}

func (s *Server) handleListAssessments(c *gin.Context) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	pageSize, err := queryInt(c, "page_size", 20)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	items, total, err := s.assessments.List(c.Request.Context(), assessment.Filters{
		Status:   assessment.Status(c.Query("status")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, gin.H{"items": items, "total": total, "page": page, "page_size": pageSize})
}

type transitionRequest struct {
	Status    assessment.Status `json:"status"`
	Reason    string            `json:"reason"`
	Logistics string            `json:"logistics"`
}

func (s *Server) handleTransition(c *gin.Context) {
	var req transitionRequest
	if !s.bind(c, &req) {
		return
	}
	adminID, _ := caller(c)
	a, err := s.assessments.Transition(c.Request.Context(), c.Param("productId"), req.Status, assessment.Metadata{
		Reason:    req.Reason,
		Logistics: req.Logistics,
		ActorID:   adminID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, a)
}

func (s *Server) handleAssessmentNotes(c *gin.Context) {
	notes, err := s.assessments.Notes(c.Request.Context(), c.Param("productId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, gin.H{"notes": notes})
}

type conversationRequest struct {
	BuyerID  string `json:"buyer_id"`
	SellerID string `json:"seller_id"`
}

// handleGetOrCreateConversation opens the caller's conversation with the
// named counterpart; the caller always fills their own side.
func (s *Server) handleGetOrCreateConversation(c *gin.Context) {
	var req conversationRequest
	if !s.bind(c, &req) {
		return
	}
	userID, role := caller(c)
	if role == auth.RoleBuyer {
		req.BuyerID = userID
	} else {
		req.SellerID = userID
	}
	view, err := s.chat.GetOrCreate(c.Request.Context(), req.BuyerID, req.SellerID)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, view)
}

func (s *Server) handleListConversations(c *gin.Context) {
	userID, role := caller(c)
	views, err := s.chat.Conversations(c.Request.Context(), userID, role)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, gin.H{"conversations": views})
}

func (s *Server) handleListMessages(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	userID, role := caller(c)
	msgs, err := s.chat.Messages(c.Request.Context(), c.Param("id"), userID, role, c.Query("before"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, gin.H{"messages": msgs})
}

type sendMessageRequest struct {
	Text     string  `json:"text"`
	ImageURL *string `json:"image_url"`
}

func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if !s.bind(c, &req) {
		return
	}
	userID, role := caller(c)
	msg, err := s.chat.Send(c.Request.Context(), chat.SendParams{
		ConversationID: c.Param("id"),
		SenderID:       userID,
		SenderRole:     role,
		Text:           req.Text,
		ImageURL:       req.ImageURL,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (s *Server) handleMarkRead(c *gin.Context) {
	userID, role := caller(c)
	conv, err := s.chat.MarkRead(c.Request.Context(), c.Param("id"), userID, role)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, conv)
}

func (s *Server) handleListNotifications(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	userID, _ := caller(c)
	items, err := s.notifications.List(c.Request.Context(), userID, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, gin.H{"notifications": items})
}

func (s *Server) handleReadNotification(c *gin.Context) {
	userID, _ := caller(c)
	if err := s.notifications.MarkRead(c.Request.Context(), userID, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createTicketRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (s *Server) handleCreateTicket(c *gin.Context) {
	var req createTicketRequest
	if !s.bind(c, &req) {
		return
	}
	userID, _ := caller(c)
	ticket, err := s.support.Create(c.Request.Context(), support.CreateParams{
		UserID:  userID,
		Subject: req.Subject,
		Body:    req.Body,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ticket)
}

func (s *Server) handleListTickets(c *gin.Context) {
	userID, role := caller(c)
	tickets, err := s.support.List(c.Request.Context(), userID, role == auth.RoleAdmin, support.Status(c.Query("status")))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, gin.H{"tickets": tickets})
}

func (s *Server) handleResolveTicket(c *gin.Context) {
	userID, role := caller(c)
	ticket, err := s.support.Resolve(c.Request.Context(), userID, role == auth.RoleAdmin, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, ticket)
}

type assistantRequest struct {
	Session *assistant.Session `json:"session"`
	Text    string             `json:"text"`
}

// handleAssistantReply is stateless on the server: the client round-trips
// its session and gets the updated one back.
func (s *Server) handleAssistantReply(c *gin.Context) {
	var req assistantRequest
	if !s.bind(c, &req) {
		return
	}
	sess := req.Session
	if sess == nil {
		sess = s.assistant.NewSession()
	}
	reply, err := s.assistant.Reply(c.Request.Context(), sess, req.Text)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, gin.H{"reply": reply, "session": sess})
}

// handleRealtime streams the caller's user channel plus any conversations
// named in the conversation query parameter.
func (s *Server) handleRealtime(c *gin.Context) {
	ctx := c.Request.Context()
	userID, role := caller(c)
	channels := []string{realtime.UserChannel(userID, string(role))}

	for _, raw := range c.QueryArray("conversation") {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id == "" {
				continue
			}
			if _, err := s.chat.Get(ctx, id, userID, role); err != nil {
				s.fail(c, err)
				return
			}
			channels = append(channels, realtime.ConversationChannel(id))
		}
	}

	sub := s.hub.Subscribe(channels...)
	defer sub.Close()
	if err := s.hub.Stream(ctx, c.Writer, sub); err != nil {
		s.log.Debug("realtime stream ended", "user_id", userID, "error", err)
	}
}
