package buddy

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/mood-buddy/internal/app"
	"github.com/oggyb/mood-buddy/internal/auth"
	"github.com/oggyb/mood-buddy/internal/db"
	svcErr "github.com/oggyb/mood-buddy/internal/errors"
	"github.com/oggyb/mood-buddy/internal/logger"
	"github.com/oggyb/mood-buddy/internal/service/chat"
)

// Service implements the BuddyService gRPC API on top of the mood
// controller, the chat lifecycle and account deletion. The caller is
// always the authenticated user; requests never name the actor.
type Service struct {
	appCtx *app.AppContext
}

// NewBuddyService creates the service from the shared AppContext.
func NewBuddyService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx}
}

func (s *Service) caller(ctx context.Context) (uint64, *slog.Logger, error) {
	log := logger.FromContext(ctx, s.appCtx.Logger)
	c, ok := auth.FromContext(ctx)
	if !ok {
		return 0, log, svcErr.Unauthenticated("missing caller identity")
	}
	return c.UserID, log, nil
}

// LogMood records today's mood and reports whether a buddy chat was opened.
//
// Request: {"mood": "distressed"|"supportive"|"neutral"|"unset"}
// Response: {"matched": bool, "chat_id": string, "buddy_id": string}
func (s *Service) LogMood(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, log, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	m, err := requiredString(req, "mood")
	if err != nil {
		return nil, err
	}

	res, err := s.appCtx.Moods.LogMood(ctx, userID, db.Mood(m))
	if err != nil {
		log.Debug("LogMood rejected", "mood", m, "err", err)
		return nil, svcErr.Map(err)
	}

	out := map[string]any{"matched": res.Matched}
	if res.Matched {
		out["chat_id"] = res.ChatID
		out["buddy_id"] = idString(res.BuddyID)
	}
	return response(out)
}

// SetInstantMatching turns buddy matching on or off.
//
// Request: {"enabled": bool}
func (s *Service) SetInstantMatching(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, _, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	enabled, err := requiredBool(req, "enabled")
	if err != nil {
		return nil, err
	}
	if err := s.appCtx.Moods.SetInstantMatching(ctx, userID, enabled); err != nil {
		return nil, svcErr.Map(err)
	}
	return response(map[string]any{"enabled": enabled})
}

// UpdatePreferences replaces the caller's matching preferences. Absent or
// null fields clear the corresponding preference.
//
// Request: {"preferred_pronouns": string, "min_supportive_streak": int,
// "preferred_age_min": int, "preferred_age_max": int}
func (s *Service) UpdatePreferences(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, _, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	prefs := &db.MoodPreference{UserID: userID}
	if prefs.PreferredPronouns, err = optionalString(req, "preferred_pronouns"); err != nil {
		return nil, err
	}
	if prefs.MinSupportiveStreak, err = optionalInt(req, "min_supportive_streak"); err != nil {
		return nil, err
	}
	if prefs.PreferredAgeMin, err = optionalInt(req, "preferred_age_min"); err != nil {
		return nil, err
	}
	if prefs.PreferredAgeMax, err = optionalInt(req, "preferred_age_max"); err != nil {
		return nil, err
	}

	if err := s.appCtx.Moods.UpdatePreferences(ctx, prefs); err != nil {
		return nil, svcErr.Map(err)
	}
	return response(map[string]any{})
}

// GetMoodHistory returns the caller's ledger for the last days days.
//
// Request: {"days": int} (defaults to 7)
// Response: {"entries": [{"date": "YYYY-MM-DD", "mood": string}]}
func (s *Service) GetMoodHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, _, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	days, err := optionalInt(req, "days")
	if err != nil {
		return nil, err
	}
	n := 7
	if days != nil {
		n = *days
	}

	entries, err := s.appCtx.Moods.History(ctx, userID, n)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	list := make([]any, 0, len(entries))
	for _, e := range entries {
		list = append(list, map[string]any{"date": e.Date, "mood": string(e.Mood)})
	}
	return response(map[string]any{"entries": list})
}

// GetPoolStats returns how many users wait in each pool category.
//
// Response: {"distressed": int, "supportive": int}
func (s *Service) GetPoolStats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if _, _, err := s.caller(ctx); err != nil {
		return nil, err
	}
	stats, err := s.appCtx.Moods.PoolStats(ctx)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return response(map[string]any{
		"distressed": stats[db.MoodDistressed],
		"supportive": stats[db.MoodSupportive],
	})
}

// CreateGroupChat opens a group with the caller as admin.
//
// Request: {"name": string, "member_ids": [id]}
// Response: {"chat_id": string}
func (s *Service) CreateGroupChat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, _, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	name, err := requiredString(req, "name")
	if err != nil {
		return nil, err
	}
	members, err := idList(req, "member_ids")
	if err != nil {
		return nil, err
	}

	chatID, err := s.appCtx.Lifecycle.CreateGroupChat(ctx, userID, name, members)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return response(map[string]any{"chat_id": chatID})
}

// ListChats returns the ids of the chats the caller belongs to.
//
// Response: {"chat_ids": [string]}
func (s *Service) ListChats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	userID, _, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := s.appCtx.Lifecycle.ChatsForUser(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	list := make([]any, 0, len(ids))
	for _, id := range ids {
		list = append(list, id)
	}
	return response(map[string]any{"chat_ids": list})
}

// GetChatMembers lists a chat's members. Only members may ask.
//
// Request: {"chat_id": string}
// Response: {"member_ids": [string]}
func (s *Service) GetChatMembers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, _, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	chatID, err := requiredString(req, "chat_id")
	if err != nil {
		return nil, err
	}

	members, err := s.appCtx.Lifecycle.Members(ctx, chatID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if !slices.Contains(members, userID) {
		return nil, svcErr.Map(svcErr.ErrNotMember)
	}
	return response(map[string]any{"member_ids": idStrings(members)})
}

// SendMessage posts a message to a chat the caller belongs to.
//
// Request: {"chat_id": string, "body": string}
// Response: {"message_id": string, "sent_at": int (unix millis)}
func (s *Service) SendMessage(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, _, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	chatID, err := requiredString(req, "chat_id")
	if err != nil {
		return nil, err
	}
	body, err := requiredString(req, "body")
	if err != nil {
		return nil, err
	}

	msg, err := s.appCtx.Lifecycle.SendMessage(ctx, chatID, userID, body)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return response(map[string]any{
		"message_id": idString(msg.ID),
		"sent_at":    msg.CreatedAt.UnixMilli(),
	})
}

// ListMessages pages through a chat's messages, oldest first.
//
// Request: {"chat_id": string, "page_size": int, "pagination_token": string}
// Response: {"messages": [{"id", "sender_id", "body", "sent_at"}], "next_pagination_token": string}
func (s *Service) ListMessages(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, _, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	chatID, err := requiredString(req, "chat_id")
	if err != nil {
		return nil, err
	}
	size, err := optionalInt(req, "page_size")
	if err != nil {
		return nil, err
	}
	token, err := optionalString(req, "pagination_token")
	if err != nil {
		return nil, err
	}

	var (
		n   int
		tok string
	)
	if size != nil {
		n = *size
	}
	if token != nil {
		tok = *token
	}

	msgs, next, err := s.appCtx.Lifecycle.ListMessages(ctx, chatID, userID, tok, n)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	list := make([]any, 0, len(msgs))
	for _, m := range msgs {
		list = append(list, map[string]any{
			"id":        idString(m.ID),
			"sender_id": idString(m.SenderID),
			"body":      m.Body,
			"sent_at":   m.CreatedAt.UnixMilli(),
		})
	}
	out := map[string]any{"messages": list}
	if next != "" {
		out["next_pagination_token"] = next
	}
	return response(out)
}

// LeaveChat removes the caller from a chat.
//
// Request: {"chat_id": string}
// Response: {"chat_deleted": bool, "new_admin_id": string}
func (s *Service) LeaveChat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, _, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	chatID, err := requiredString(req, "chat_id")
	if err != nil {
		return nil, err
	}
	res, err := s.appCtx.Lifecycle.Leave(ctx, chatID, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return decoupleResponse(res)
}

// RemoveMember removes another member from a group the caller administers.
//
// Request: {"chat_id": string, "user_id": id}
// Response: {"chat_deleted": bool, "new_admin_id": string}
func (s *Service) RemoveMember(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, _, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	chatID, err := requiredString(req, "chat_id")
	if err != nil {
		return nil, err
	}
	target, err := requiredID(req, "user_id")
	if err != nil {
		return nil, err
	}
	res, err := s.appCtx.Lifecycle.RemoveMember(ctx, chatID, userID, target)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return decoupleResponse(res)
}

// RenameChat renames a group the caller administers.
//
// Request: {"chat_id": string, "name": string}
func (s *Service) RenameChat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, _, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	chatID, err := requiredString(req, "chat_id")
	if err != nil {
		return nil, err
	}
	name, err := requiredString(req, "name")
	if err != nil {
		return nil, err
	}
	if err := s.appCtx.Lifecycle.Rename(ctx, chatID, userID, name); err != nil {
		return nil, svcErr.Map(err)
	}
	return response(map[string]any{})
}

// TransferAdmin hands the group's admin role to another member.
//
// Request: {"chat_id": string, "user_id": id}
func (s *Service) TransferAdmin(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, _, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	chatID, err := requiredString(req, "chat_id")
	if err != nil {
		return nil, err
	}
	target, err := requiredID(req, "user_id")
	if err != nil {
		return nil, err
	}
	if err := s.appCtx.Lifecycle.TransferAdmin(ctx, chatID, userID, target); err != nil {
		return nil, svcErr.Map(err)
	}
	return response(map[string]any{"admin_id": idString(target)})
}

// DeleteAccount deletes the caller's account. Their chats survive with the
// placeholder account in their place.
func (s *Service) DeleteAccount(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	userID, log, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	if err := s.appCtx.Accounts.DeleteAccount(ctx, userID); err != nil {
		return nil, svcErr.Map(err)
	}
	log.Info("DeleteAccount done", "user_id", userID, "took", time.Since(start))
	return response(map[string]any{})
}

func decoupleResponse(res chat.DecoupleResult) (*structpb.Struct, error) {
	out := map[string]any{"chat_deleted": res.ChatDeleted}
	if res.NewAdminID != nil {
		out["new_admin_id"] = idString(*res.NewAdminID)
	}
	return response(out)
}
