package service

import (
	"context"
	"errors"

	"github.com/adelegard/TouchrServer/model"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FriendshipService owns friend requests and answers who is friends with whom.
type FriendshipService struct {
	db *gorm.DB
}

func NewFriendshipService(db *gorm.DB) *FriendshipService {
	return &FriendshipService{db: db}
}

// betweenPair matches rows linking a and b in either direction.
func betweenPair(a, b uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(requester_id = ? AND target_id = ?) OR (requester_id = ? AND target_id = ?)", a, b, b, a)
	}
}

// sentTo scopes to the single request requesterID sent to targetID.
func sentTo(requesterID, targetID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("requester_id = ? AND target_id = ?", requesterID, targetID)
	}
}

// AreFriends reports whether an accepted request links a and b in either direction.
func (s *FriendshipService) AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.FriendRequest{}).
		Scopes(betweenPair(a, b)).
		Where("status = ?", model.FriendRequestAccepted).
		Count(&count).Error
	if err != nil {
		return false, persistence(err, "failed to lookup friendship")
	}
	return count > 0, nil
}

// friendIDsQuery selects the id of the other side of every accepted request of userID.
func (s *FriendshipService) friendIDsQuery(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return s.db.WithContext(ctx).Model(&model.FriendRequest{}).
		Select("CASE WHEN requester_id = ? THEN target_id ELSE requester_id END", userID).
		Where("(requester_id = ? OR target_id = ?) AND status = ?", userID, userID, model.FriendRequestAccepted)
}

// FriendsOf returns one page of friends ordered by username.
func (s *FriendshipService) FriendsOf(ctx context.Context, userID uuid.UUID, page int) ([]model.User, error) {
	var friends []model.User
	err := s.db.WithContext(ctx).
		Where("id IN (?)", s.friendIDsQuery(ctx, userID)).
		Order("username ASC").
		Scopes(utils.Paginate(page)).
		Find(&friends).Error
	if err != nil {
		return nil, persistence(err, "failed to lookup friends")
	}
	return friends, nil
}

// AllFriendIDs returns the complete friend set of userID.
func (s *FriendshipService) AllFriendIDs(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	var ids []uuid.UUID
	if err := s.friendIDsQuery(ctx, userID).Scan(&ids).Error; err != nil {
		return nil, persistence(err, "failed to lookup friends")
	}

	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// HasFriends reports whether userID has at least one accepted friendship.
func (s *FriendshipService) HasFriends(ctx context.Context, userID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.FriendRequest{}).
		Where("(requester_id = ? OR target_id = ?) AND status = ?", userID, userID, model.FriendRequestAccepted).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, persistence(err, "failed to lookup friends")
	}
	return count > 0, nil
}

// SendRequest creates a pending request from requesterID to targetID.
// Only one request may exist per pair, whichever side sent it.
func (s *FriendshipService) SendRequest(ctx context.Context, requesterID, targetID uuid.UUID) (*model.FriendRequest, error) {
	if requesterID == targetID {
		return nil, invalidInput("cannot send a friend request to yourself")
	}

	var target model.User
	if err := s.db.WithContext(ctx).Select("id").First(&target, "id = ?", targetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("failed to lookup user: %s", targetID)
		}
		return nil, persistence(err, "failed to lookup user")
	}

	var count int64
	err := s.db.WithContext(ctx).Model(&model.FriendRequest{}).
		Scopes(betweenPair(requesterID, targetID)).
		Count(&count).Error
	if err != nil {
		return nil, persistence(err, "failed to lookup friend request")
	}
	if count > 0 {
		return nil, conflict("can't save friend request b/c there is already one")
	}

	request := &model.FriendRequest{
		RequesterID: requesterID,
		TargetID:    targetID,
		Status:      model.FriendRequestPending,
	}
	if err := s.db.WithContext(ctx).Create(request).Error; err != nil {
		return nil, persistence(err, "failed to save friend request")
	}

	utils.Log.WithFields(map[string]interface{}{
		"requester_id": requesterID,
		"target_id":    targetID,
	}).Debug("friend request created")
	return request, nil
}

// AcceptRequest accepts the request otherID sent to userID. Only the
// target of a request may accept it.
func (s *FriendshipService) AcceptRequest(ctx context.Context, userID, otherID uuid.UUID) error {
	return s.setStatus(ctx, sentTo(otherID, userID), model.FriendRequestAccepted,
		"no friend request from %s to %s", otherID, userID)
}

// DenyRequest marks the request between the pair as denied. It also ends an accepted friendship.
func (s *FriendshipService) DenyRequest(ctx context.Context, userID, otherID uuid.UUID) error {
	return s.setStatus(ctx, betweenPair(userID, otherID), model.FriendRequestDenied,
		"no friend request exists between %s and %s", userID, otherID)
}

func (s *FriendshipService) setStatus(ctx context.Context, scope func(*gorm.DB) *gorm.DB, status string, missing string, args ...interface{}) error {
	result := s.db.WithContext(ctx).Model(&model.FriendRequest{}).
		Scopes(scope).
		Update("status", status)
	if result.Error != nil {
		return persistence(result.Error, "failed to update friend request")
	}
	if result.RowsAffected == 0 {
		return notFound(missing, args...)
	}
	return nil
}

// RemoveRequest deletes the request requesterID sent to targetID.
func (s *FriendshipService) RemoveRequest(ctx context.Context, requesterID, targetID uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Scopes(sentTo(requesterID, targetID)).
		Delete(&model.FriendRequest{})
	if result.Error != nil {
		return persistence(result.Error, "failed to delete friend request")
	}
	if result.RowsAffected == 0 {
		return notFound("no friend request exists to delete for %s", targetID)
	}
	return nil
}

// PendingRequests lists requests waiting for userID to answer, newest first.
func (s *FriendshipService) PendingRequests(ctx context.Context, userID uuid.UUID) ([]model.FriendRequest, error) {
	var requests []model.FriendRequest
	err := s.db.WithContext(ctx).
		Preload("Requester").
		Where("target_id = ? AND status = ?", userID, model.FriendRequestPending).
		Order("created_at DESC").
		Find(&requests).Error
	if err != nil {
		return nil, persistence(err, "failed to query friend requests")
	}
	return requests, nil
}
