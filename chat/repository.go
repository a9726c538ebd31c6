package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"marketflow/auth"
	"marketflow/db"
)

var ErrNotFound = errors.New("chat: conversation not found")

type Repository interface {
	GetOrCreate(ctx context.Context, buyerID, sellerID string, at time.Time) (Conversation, error)
	Get(ctx context.Context, id string) (Conversation, error)
	// AppendMessage stores msg and bumps the conversation's last message and
	// the recipient's unread counter as one unit.
	AppendMessage(ctx context.Context, msg Message, preview string) (Conversation, error)
	// MarkRead flips the read flag on the counterpart's messages and zeroes
	// reader's unread counter as one unit.
	MarkRead(ctx context.Context, conversationID string, reader auth.Role, at time.Time) (Conversation, error)
	Messages(ctx context.Context, conversationID, before string, limit int) ([]Message, error)
	ListForUser(ctx context.Context, userID string, role auth.Role) ([]Conversation, error)
}

type PGRepository struct {
	pool db.Conn
}

func NewRepository(pool db.Conn) *PGRepository {
	return &PGRepository{pool: pool}
}

const conversationColumns = `id::text, buyer_id::text, seller_id::text, last_message, last_message_at,
	buyer_unread_count, seller_unread_count, created_at, updated_at`

const messageColumns = `id, conversation_id::text, sender_id::text, sender_role::text, text, image_url, is_read, created_at`

func (r *PGRepository) GetOrCreate(ctx context.Context, buyerID, sellerID string, at time.Time) (Conversation, error) {
	c, err := scanConversation(r.pool.QueryRow(ctx, `
		INSERT INTO conversations (buyer_id, seller_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT ON CONSTRAINT conversations_pair_key DO NOTHING
		RETURNING `+conversationColumns, buyerID, sellerID, at))
	if err == nil {
		return c, nil
	}
	if db.IsInvalidText(err) || db.IsForeignKeyViolation(err) {
		return Conversation{}, auth.ErrUserNotFound
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, fmt.Errorf("chat: create conversation: %w", err)
	}

	c, err = scanConversation(r.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE buyer_id = $1 AND seller_id = $2`, buyerID, sellerID))
	if err != nil {
		return Conversation{}, fmt.Errorf("chat: load conversation: %w", err)
	}
	return c, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Conversation, error) {
	c, err := scanConversation(r.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if err != nil {
		if db.IsNotFound(err) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("chat: get conversation: %w", err)
	}
	return c, nil
}

func (r *PGRepository) AppendMessage(ctx context.Context, msg Message, preview string) (Conversation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Conversation{}, fmt.Errorf("chat: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, sender_role, text, image_url, is_read, created_at)
		VALUES ($1, $2, $3, $4::user_role, $5, $6, false, $7)
	`, msg.ID, msg.ConversationID, msg.SenderID, string(msg.SenderRole), msg.Text, msg.ImageURL, msg.CreatedAt); err != nil {
		return Conversation{}, fmt.Errorf("chat: insert message: %w", err)
	}

	recipient := Counterpart(msg.SenderRole)
	c, err := scanConversation(tx.QueryRow(ctx, `
		UPDATE conversations
		SET last_message = $2,
		    last_message_at = $3,
		    buyer_unread_count = buyer_unread_count + CASE WHEN $4::boolean THEN 1 ELSE 0 END,
		    seller_unread_count = seller_unread_count + CASE WHEN $5::boolean THEN 1 ELSE 0 END,
		    updated_at = $3
		WHERE id = $1
		RETURNING `+conversationColumns,
		msg.ConversationID, preview, msg.CreatedAt, recipient == auth.RoleBuyer, recipient == auth.RoleSeller))
	if err != nil {
		if db.IsNotFound(err) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("chat: bump conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Conversation{}, fmt.Errorf("chat: commit send: %w", err)
	}
	return c, nil
}

func (r *PGRepository) MarkRead(ctx context.Context, conversationID string, reader auth.Role, at time.Time) (Conversation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Conversation{}, fmt.Errorf("chat: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Locking the conversation first orders this against AppendMessage, so
	// a message is either flagged read here or counted after the reset.
	lock, err := tx.Exec(ctx, `SELECT 1 FROM conversations WHERE id = $1 FOR UPDATE`, conversationID)
	if err != nil {
		if db.IsInvalidText(err) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("chat: lock conversation: %w", err)
	}
	if lock.RowsAffected() == 0 {
		return Conversation{}, ErrNotFound
	}

	if _, err := tx.Exec(ctx, `
		UPDATE messages SET is_read = true
		WHERE conversation_id = $1 AND sender_role = $2::user_role AND is_read = false
	`, conversationID, string(Counterpart(reader))); err != nil {
		return Conversation{}, fmt.Errorf("chat: flag messages read: %w", err)
	}

	c, err := scanConversation(tx.QueryRow(ctx, `
		UPDATE conversations
		SET buyer_unread_count = CASE WHEN $2::boolean THEN 0 ELSE buyer_unread_count END,
		    seller_unread_count = CASE WHEN $3::boolean THEN 0 ELSE seller_unread_count END,
		    updated_at = $4
		WHERE id = $1
		RETURNING `+conversationColumns,
		conversationID, reader == auth.RoleBuyer, reader == auth.RoleSeller, at))
	if err != nil {
		if db.IsNotFound(err) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("chat: reset unread: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Conversation{}, fmt.Errorf("chat: commit mark read: %w", err)
	}
	return c, nil
}

func (r *PGRepository) Messages(ctx context.Context, conversationID, before string, limit int) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1 AND ($2 = '' OR id < $2)
		ORDER BY id DESC
		LIMIT $3
	`, conversationID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("chat: list messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0, limit)
	for rows.Next() {
		var (
			m    Message
			role string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &role, &m.Text, &m.ImageURL, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("chat: scan message: %w", err)
		}
		m.SenderRole = auth.Role(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: iterate messages: %w", err)
	}
	return msgs, nil
}

func (r *PGRepository) ListForUser(ctx context.Context, userID string, role auth.Role) ([]Conversation, error) {
	column := "buyer_id"
	if role == auth.RoleSeller {
		column = "seller_id"
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE `+column+` = $1
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("chat: list conversations: %w", err)
	}
	defer rows.Close()

	out := []Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("chat: scan conversation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: iterate conversations: %w", err)
	}
	return out, nil
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.BuyerID, &c.SellerID, &c.LastMessage, &c.LastMessageAt,
		&c.BuyerUnreadCount, &c.SellerUnreadCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}
