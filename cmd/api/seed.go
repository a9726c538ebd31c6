package main

import (
	"context"
	"errors"
	"fmt"

	"marketflow/auth"
	"marketflow/catalog"
	"marketflow/chat"
	"marketflow/profile"
)

const demoPassword = "marketflow-demo"

type demoAccount struct {
	email    string
	fullName string
	role     auth.Role
}

var demoAccounts = []demoAccount{
	{email: "admin@marketflow.local", fullName: "Review Desk", role: auth.RoleAdmin},
	{email: "seller@marketflow.local", fullName: "Harbor Crafts", role: auth.RoleSeller},
	{email: "buyer@marketflow.local", fullName: "Dana Buyer", role: auth.RoleBuyer},
}

// seedDemo fills an empty mock-mode store with one account per role, a
// product under review and a conversation, so the API is usable without a
// database.
func (s *Server) seedDemo(ctx context.Context) error {
	ids := make(map[auth.Role]string, len(demoAccounts))
	for _, acct := range demoAccounts {
		req := auth.RegisterRequest{Email: acct.email, Password: demoPassword, FullName: acct.fullName, Role: acct.role}
		var (
			user *auth.User
			err  error
		)
		if acct.role == auth.RoleAdmin {
			user, err = s.auth.RegisterAdmin(ctx, req)
		} else {
			user, err = s.auth.Register(ctx, req)
		}
		if errors.Is(err, auth.ErrDuplicateEmail) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("seed %s: %w", acct.email, err)
		}
		ids[acct.role] = user.ID
		if acct.role == auth.RoleAdmin {
			continue
		}
		if _, err := s.profiles.Upsert(ctx, profile.Profile{UserID: user.ID, Role: acct.role, DisplayName: acct.fullName}); err != nil {
			return fmt.Errorf("seed profile %s: %w", acct.email, err)
		}
	}

	product, _, err := s.assessments.SubmitProduct(ctx, catalog.CreateParams{SellerID: ids[auth.RoleSeller], Name: "Hand-thrown ceramic mug"})
	if err != nil {
		return fmt.Errorf("seed product: %w", err)
	}

	conv, err := s.chat.GetOrCreate(ctx, ids[auth.RoleBuyer], ids[auth.RoleSeller])
	if err != nil {
		return fmt.Errorf("seed conversation: %w", err)
	}
	if _, err := s.chat.Send(ctx, chat.SendParams{
		ConversationID: conv.ID,
		SenderID:       ids[auth.RoleBuyer],
		SenderRole:     auth.RoleBuyer,
		Text:           "Is this available?",
	}); err != nil {
		return fmt.Errorf("seed message: %w", err)
	}

	s.log.Info("mock mode demo data seeded", "accounts", len(demoAccounts), "product_id", product.ID)
	return nil
}
