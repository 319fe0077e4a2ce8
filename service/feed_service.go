package service

import (
	"context"
	"errors"
	"time"

	"github.com/adelegard/TouchrServer/model"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// FeedTouchType is the part of a touch type a feed row needs to render.
type FeedTouchType struct {
	BgColor   string     `json:"bgColor"`
	TextColor string     `json:"textColor"`
	Step      model.Step `json:"step"`
}

// FeedItem is one touch as seen by one of its two sides.
type FeedItem struct {
	ID        uuid.UUID     `json:"id"`
	User      model.User    `json:"user"`
	TouchType FeedTouchType `json:"touchType"`
	StepIndex int           `json:"stepIndex"`
	CreatedAt int64         `json:"createdAt"`
}

type FeedPage struct {
	Results    []FeedItem `json:"results"`
	HasFriends bool       `json:"hasFriends"`
}

type FriendsPage struct {
	Results    []model.User `json:"results"`
	HasFriends bool         `json:"hasFriends"`
}

// FriendDetail sums up the touches between a user and one friend.
// "To" counts what the user sent, "From" what they received.
type FriendDetail struct {
	NumTouchesTo   int64 `json:"numTouchesTo"`
	NumTouchesFrom int64 `json:"numTouchesFrom"`
	TouchesToMs    int64 `json:"touchesToMs"`
	TouchesFromMs  int64 `json:"touchesFromMs"`
}

// FeedService builds the inbox and sent feeds.
type FeedService struct {
	db      *gorm.DB
	friends *FriendshipService
}

func NewFeedService(db *gorm.DB, friends *FriendshipService) *FeedService {
	return &FeedService{db: db, friends: friends}
}

type feedDirection struct {
	name         string
	viewerColumn string
	hideColumn   string
	counterparty func(t *model.Touch) uuid.UUID
}

var (
	inboxFeed = feedDirection{
		name:         "inbox",
		viewerColumn: "to_user_id",
		hideColumn:   "hide_for_user_to",
		counterparty: func(t *model.Touch) uuid.UUID { return t.FromUserID },
	}
	sentFeed = feedDirection{
		name:         "sent",
		viewerColumn: "from_user_id",
		hideColumn:   "hide_for_user_from",
		counterparty: func(t *model.Touch) uuid.UUID { return t.ToUserID },
	}
)

// Inbox returns touches friends sent to userID (getTouchesToUser).
func (s *FeedService) Inbox(ctx context.Context, userID uuid.UUID, page int) (*FeedPage, error) {
	return s.assemble(ctx, userID, page, inboxFeed)
}

// Sent returns touches userID sent to friends (getTouchesFromUser).
func (s *FeedService) Sent(ctx context.Context, userID uuid.UUID, page int) (*FeedPage, error) {
	return s.assemble(ctx, userID, page, sentFeed)
}

func (s *FeedService) assemble(ctx context.Context, userID uuid.UUID, page int, dir feedDirection) (*FeedPage, error) {
	defer func(start time.Time) {
		feedDuration.WithLabelValues(dir.name).Observe(time.Since(start).Seconds())
	}(time.Now())

	var (
		friendIDs map[uuid.UUID]struct{}
		touches   []model.Touch
		types     []model.TouchType
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		friendIDs, err = s.friends.AllFriendIDs(gctx, userID)
		return err
	})
	g.Go(func() error {
		err := s.db.WithContext(gctx).
			Where(dir.viewerColumn+" = ? AND "+dir.hideColumn+" = ?", userID, false).
			Order("created_at DESC").
			Scopes(utils.Paginate(page)).
			Find(&touches).Error
		if err != nil {
			return persistence(err, "failed to get touches")
		}
		return nil
	})
	g.Go(func() error {
		// Private types of friends still render in the feed.
		err := s.db.WithContext(gctx).
			Where("is_private = ? OR created_by_id = ? OR created_by_id IN (?)",
				false, userID, s.friends.friendIDsQuery(gctx, userID)).
			Find(&types).Error
		if err != nil {
			return persistence(err, "failed to get touch types")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	typesByID := make(map[uuid.UUID]*model.TouchType, len(types))
	for i := range types {
		typesByID[types[i].ID] = &types[i]
	}

	kept := make([]model.Touch, 0, len(touches))
	peerIDs := make([]uuid.UUID, 0, len(touches))
	for _, touch := range touches {
		peer := dir.counterparty(&touch)
		if _, ok := friendIDs[peer]; !ok {
			continue
		}
		kept = append(kept, touch)
		peerIDs = append(peerIDs, peer)
	}

	usersByID := map[uuid.UUID]model.User{}
	if len(peerIDs) > 0 {
		var users []model.User
		if err := s.db.WithContext(ctx).Where("id IN ?", peerIDs).Find(&users).Error; err != nil {
			return nil, persistence(err, "failed to lookup users")
		}
		for _, u := range users {
			usersByID[u.ID] = u
		}
	}

	results := make([]FeedItem, 0, len(kept))
	for _, touch := range kept {
		user, ok := usersByID[dir.counterparty(&touch)]
		if !ok {
			continue
		}
		tt, ok := typesByID[touch.TouchTypeID]
		if !ok {
			continue
		}
		step, ok := ResolveStepByIndex(tt.Steps, touch.StepIndex)
		if !ok {
			continue
		}
		results = append(results, FeedItem{
			ID:   touch.ID,
			User: user,
			TouchType: FeedTouchType{
				BgColor:   tt.BgColor,
				TextColor: tt.TextColor,
				Step:      step,
			},
			StepIndex: touch.StepIndex,
			CreatedAt: touch.CreatedAt.Unix(),
		})
	}

	return &FeedPage{Results: results, HasFriends: len(friendIDs) > 0}, nil
}

// FriendDetail counts the touches exchanged with friendID in each direction
// and adds up the nominal duration of their steps.
func (s *FeedService) FriendDetail(ctx context.Context, userID, friendID uuid.UUID) (*FriendDetail, error) {
	var friend model.User
	if err := s.db.WithContext(ctx).Select("id").First(&friend, "id = ?", friendID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("user not found with id: %s", friendID)
		}
		return nil, persistence(err, "failed to lookup user")
	}

	var touches []model.Touch
	err := s.db.WithContext(ctx).
		Where("(from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)", userID, friendID, friendID, userID).
		Find(&touches).Error
	if err != nil {
		return nil, persistence(err, "failed to lookup touches")
	}

	typeIDs := make([]uuid.UUID, 0, len(touches))
	for _, touch := range touches {
		typeIDs = append(typeIDs, touch.TouchTypeID)
	}
	typesByID := map[uuid.UUID]model.TouchType{}
	if len(typeIDs) > 0 {
		var types []model.TouchType
		if err := s.db.WithContext(ctx).Where("id IN ?", typeIDs).Find(&types).Error; err != nil {
			return nil, persistence(err, "failed to get touch types")
		}
		for _, tt := range types {
			typesByID[tt.ID] = tt
		}
	}

	detail := &FriendDetail{}
	for _, touch := range touches {
		var ms int64
		if tt, ok := typesByID[touch.TouchTypeID]; ok {
			if step, ok := ResolveStepByIndex(tt.Steps, touch.StepIndex); ok {
				ms = step.DurationMs
			}
		}
		if touch.FromUserID == userID {
			detail.NumTouchesTo++
			detail.TouchesToMs += ms
		} else {
			detail.NumTouchesFrom++
			detail.TouchesFromMs += ms
		}
	}
	return detail, nil
}

// Friends returns one page of friends ordered by username.
func (s *FeedService) Friends(ctx context.Context, userID uuid.UUID, page int) (*FriendsPage, error) {
	var (
		friends    []model.User
		hasFriends bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		friends, err = s.friends.FriendsOf(gctx, userID, page)
		return err
	})
	g.Go(func() error {
		var err error
		hasFriends, err = s.friends.HasFriends(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &FriendsPage{Results: friends, HasFriends: hasFriends}, nil
}

// FriendsWithTouches returns the friends that share at least one touch with userID.
func (s *FeedService) FriendsWithTouches(ctx context.Context, userID uuid.UUID) ([]model.User, error) {
	peers := s.db.WithContext(ctx).Model(&model.Touch{}).
		Select("CASE WHEN from_user_id = ? THEN to_user_id ELSE from_user_id END", userID).
		Where("from_user_id = ? OR to_user_id = ?", userID, userID)

	var users []model.User
	err := s.db.WithContext(ctx).
		Where("id IN (?) AND id IN (?)", s.friends.friendIDsQuery(ctx, userID), peers).
		Order("username ASC").
		Find(&users).Error
	if err != nil {
		return nil, persistence(err, "failed to lookup friends with touches")
	}
	return users, nil
}
