package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrConversationNotFound = errors.New("conversation not found")

const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

type Conversation struct {
	ID           string
	PeerAddress  string
	CreatedAt    time.Time
	LastActivity time.Time
}

type Message struct {
	ID             string
	ConversationID string
	Sender         string
	Content        string
	Direction      string
	CreatedAt      time.Time
}

type ConversationWithMessages struct {
	Conversation
	Messages []Message
}

type AppendMessageInput struct {
	ConversationID string
	PeerAddress    string
	Sender         string
	Content        string
	Direction      string
}

// EnsureConversation returns the conversation for an id, creating it
// on first contact. Conversations are append-only and never deleted.
func (s *Store) EnsureConversation(ctx context.Context, conversationID, peerAddress string) (Conversation, error) {
	conversationID = strings.TrimSpace(conversationID)
	peerAddress = strings.TrimSpace(peerAddress)
	if conversationID == "" {
		return Conversation{}, fmt.Errorf("conversation id is required")
	}

	conversation, err := s.getConversation(ctx, conversationID)
	if err == nil {
		return conversation, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return Conversation{}, err
	}

	now := time.Now().UTC()
	conversation = Conversation{
		ID:           conversationID,
		PeerAddress:  peerAddress,
		CreatedAt:    now,
		LastActivity: now,
	}
	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO conversations (id, peer_address, created_at_unix, last_activity_unix) VALUES (?, ?, ?, ?)`,
		conversation.ID,
		conversation.PeerAddress,
		now.Unix(),
		now.Unix(),
	); err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conversation, nil
}

// AppendMessage records one message and bumps the conversation's
// last-activity timestamp.
func (s *Store) AppendMessage(ctx context.Context, input AppendMessageInput) (Message, error) {
	direction := strings.ToLower(strings.TrimSpace(input.Direction))
	if direction != DirectionIncoming && direction != DirectionOutgoing {
		return Message{}, fmt.Errorf("invalid message direction %q", input.Direction)
	}
	content := input.Content
	if strings.TrimSpace(content) == "" {
		return Message{}, fmt.Errorf("message content is required")
	}

	conversation, err := s.EnsureConversation(ctx, input.ConversationID, input.PeerAddress)
	if err != nil {
		return Message{}, err
	}

	now := time.Now().UTC()
	message := Message{
		ID:             uuid.NewString(),
		ConversationID: conversation.ID,
		Sender:         strings.TrimSpace(input.Sender),
		Content:        content,
		Direction:      direction,
		CreatedAt:      now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO messages (id, conversation_id, sender, content, direction, created_at_unix) VALUES (?, ?, ?, ?, ?, ?)`,
		message.ID,
		message.ConversationID,
		message.Sender,
		message.Content,
		message.Direction,
		now.Unix(),
	); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE conversations SET last_activity_unix = ? WHERE id = ?`,
		now.Unix(),
		message.ConversationID,
	); err != nil {
		return Message{}, fmt.Errorf("update conversation activity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("commit message append: %w", err)
	}
	return message, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (ConversationWithMessages, error) {
	conversation, err := s.getConversation(ctx, strings.TrimSpace(conversationID))
	if err != nil {
		return ConversationWithMessages{}, err
	}
	messages, err := s.listMessages(ctx, conversation.ID)
	if err != nil {
		return ConversationWithMessages{}, err
	}
	return ConversationWithMessages{Conversation: conversation, Messages: messages}, nil
}

// ListConversations returns conversations ordered by recency of last
// activity, messages in chronological order.
func (s *Store) ListConversations(ctx context.Context, limit int) ([]ConversationWithMessages, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, peer_address, created_at_unix, last_activity_unix
		 FROM conversations
		 ORDER BY last_activity_unix DESC, id ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []ConversationWithMessages{}
	for rows.Next() {
		var conversation Conversation
		var createdAtUnix, lastActivityUnix int64
		if err := rows.Scan(&conversation.ID, &conversation.PeerAddress, &createdAtUnix, &lastActivityUnix); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversation.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
		conversation.LastActivity = time.Unix(lastActivityUnix, 0).UTC()
		conversations = append(conversations, ConversationWithMessages{Conversation: conversation})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	for i := range conversations {
		messages, err := s.listMessages(ctx, conversations[i].ID)
		if err != nil {
			return nil, err
		}
		conversations[i].Messages = messages
	}
	return conversations, nil
}

func (s *Store) getConversation(ctx context.Context, conversationID string) (Conversation, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, peer_address, created_at_unix, last_activity_unix FROM conversations WHERE id = ?`,
		conversationID,
	)

	var conversation Conversation
	var createdAtUnix, lastActivityUnix int64
	if err := row.Scan(&conversation.ID, &conversation.PeerAddress, &createdAtUnix, &lastActivityUnix); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conversation{}, ErrConversationNotFound
		}
		return Conversation{}, fmt.Errorf("lookup conversation: %w", err)
	}
	conversation.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
	conversation.LastActivity = time.Unix(lastActivityUnix, 0).UTC()
	return conversation, nil
}

func (s *Store) listMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, conversation_id, sender, content, direction, created_at_unix
		 FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at_unix ASC, rowid ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var message Message
		var createdAtUnix int64
		if err := rows.Scan(&message.ID, &message.ConversationID, &message.Sender, &message.Content, &message.Direction, &createdAtUnix); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		message.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}
