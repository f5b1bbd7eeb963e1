package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatline/internal/models"
)

// Postgres implements Store over a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) FindConversation(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	a, b := NormalizePair(userA, userB)

	var conv models.Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_a, user_b, created_at FROM conversations WHERE user_a = $1 AND user_b = $2`,
		a, b,
	).Scan(&conv.ID, &conv.UserA, &conv.UserB, &conv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find conversation: %v", ErrUnavailable, err)
	}
	return &conv, nil
}

func (s *Postgres) CreateConversation(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	a, b := NormalizePair(userA, userB)

	conv := models.Conversation{ID: uuid.New().String(), UserA: a, UserB: b}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (id, user_a, user_b) VALUES ($1, $2, $3) RETURNING created_at`,
		conv.ID, a, b,
	).Scan(&conv.CreatedAt)
	if isUniqueViolation(err) {
		// Lost the first-contact race; the other session's row wins.
		return s.FindConversation(ctx, a, b)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: create conversation: %v", ErrUnavailable, err)
	}
	return &conv, nil
}

func (s *Postgres) AppendMessage(ctx context.Context, conversationID string, msg models.Message) (*models.Message, error) {
	msg.ID = uuid.New().String()
	msg.ConversationID = conversationID

	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, text, image_url, video_url)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING seen, created_at`,
		msg.ID, conversationID, msg.SenderID, msg.Text, msg.ImageURL, msg.VideoURL,
	).Scan(&msg.Seen, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: append message: %v", ErrUnavailable, err)
	}
	return &msg, nil
}

func (s *Postgres) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, sender_id, text, image_url, video_url, seen, created_at
		 FROM messages WHERE conversation_id = $1
		 ORDER BY created_at, id`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Text, &m.ImageURL, &m.VideoURL, &m.Seen, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan message: %v", ErrUnavailable, err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", ErrUnavailable, err)
	}
	return messages, nil
}

func (s *Postgres) MarkSeen(ctx context.Context, conversationID, authoredBy string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE messages SET seen = TRUE
		 WHERE conversation_id = $1 AND sender_id = $2 AND NOT seen`,
		conversationID, authoredBy,
	)
	if err != nil {
		return fmt.Errorf("%w: mark seen: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Postgres) ListConversationSummaries(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id,
		        u.id, u.name, u.email, u.profile_pic_url,
		        (SELECT COUNT(*) FROM messages m
		          WHERE m.conversation_id = c.id AND m.sender_id = u.id AND NOT m.seen),
		        lm.id, lm.sender_id, lm.text, lm.image_url, lm.video_url, lm.seen, lm.created_at
		 FROM conversations c
		 JOIN users u ON u.id = CASE WHEN c.user_a = $1 THEN c.user_b ELSE c.user_a END
		 LEFT JOIN LATERAL (
		     SELECT id, sender_id, text, image_url, video_url, seen, created_at
		     FROM messages
		     WHERE conversation_id = c.id
		     ORDER BY created_at DESC, id DESC
		     LIMIT 1
		 ) lm ON TRUE
		 WHERE c.user_a = $1 OR c.user_b = $1
		 ORDER BY COALESCE(lm.created_at, c.created_at) DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list summaries: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	summaries := []models.ConversationSummary{}
	for rows.Next() {
		var (
			sum models.ConversationSummary

			lmID, lmSender, lmText, lmImage, lmVideo *string
			lmSeen                                   *bool
			lmAt                                     *time.Time
		)
		err := rows.Scan(
			&sum.ConversationID,
			&sum.Participant.ID, &sum.Participant.Name, &sum.Participant.Email, &sum.Participant.ProfilePicURL,
			&sum.UnreadCount,
			&lmID, &lmSender, &lmText, &lmImage, &lmVideo, &lmSeen, &lmAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scan summary: %v", ErrUnavailable, err)
		}
		if lmID != nil {
			sum.LastMessage = &models.Message{
				ID:             *lmID,
				ConversationID: sum.ConversationID,
				SenderID:       *lmSender,
				Text:           *lmText,
				ImageURL:       *lmImage,
				VideoURL:       *lmVideo,
				Seen:           *lmSeen,
				CreatedAt:      *lmAt,
			}
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list summaries: %v", ErrUnavailable, err)
	}
	return summaries, nil
}

func (s *Postgres) GetPublicProfile(ctx context.Context, userID string) (*models.PublicProfile, error) {
	var p models.PublicProfile
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, profile_pic_url FROM users WHERE id = $1`,
		userID,
	).Scan(&p.ID, &p.Name, &p.Email, &p.ProfilePicURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get profile: %v", ErrUnavailable, err)
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
