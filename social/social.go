// Package social exposes the platform's like, follow and post surfaces on
// top of the gateway, the optimistic controller and the feed fetcher.
package social

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/happy-carpenter/carpenter-go/feed"
	"github.com/happy-carpenter/carpenter-go/gateway"
	"github.com/happy-carpenter/carpenter-go/optimistic"
)

const (
	routeLikes   = "/likes/"
	routeFollows = "/follows/"
	routePosts   = "/posts/"
)

// Post is a feed entry as the list endpoint returns it.
type Post struct {
	ID            int    `json:"id"`
	Owner         string `json:"owner"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	Image         string `json:"image"`
	CreatedAt     string `json:"created_at"`
	LikesCount    int    `json:"likes_count"`
	CommentsCount int    `json:"comments_count"`
}

// Client bundles the social surfaces behind one gateway.
type Client struct {
	send    feed.Sender
	toggles *optimistic.Controller
}

func NewClient(send feed.Sender) (*Client, error) {
	if send == nil {
		return nil, errors.New("[social.NewClient] sender is required")
	}
	return &Client{
		send:    send,
		toggles: optimistic.NewController(),
	}, nil
}

// ToggleLike optimistically flips the liked state of a post. Deletion is
// addressed by post ID: the API supports delete-by-post-id, and that is the
// committed contract. The view sees the flip immediately and is restored on
// remote failure.
func (c *Client) ToggleLike(ctx context.Context, postID int, liked bool, view optimistic.View) error {
	entityID := fmt.Sprintf("like:%d", postID)
	return c.toggles.Toggle(ctx, entityID, liked, view, func(ctx context.Context, desired bool) error {
		if desired {
			_, err := c.send.Send(ctx, gateway.Request{
				Method: http.MethodPost,
				Path:   routeLikes,
				Body:   map[string]int{"post": postID},
			})
			return err
		}
		_, err := c.send.Send(ctx, gateway.Request{
			Method: http.MethodDelete,
			Path:   fmt.Sprintf("%s%d/", routeLikes, postID),
		})
		return err
	})
}

// ToggleFollow optimistically follows or unfollows a user.
func (c *Client) ToggleFollow(ctx context.Context, userID int, following bool, view optimistic.View) error {
	entityID := fmt.Sprintf("follow:%d", userID)
	return c.toggles.Toggle(ctx, entityID, following, view, func(ctx context.Context, desired bool) error {
		if desired {
			_, err := c.send.Send(ctx, gateway.Request{
				Method: http.MethodPost,
				Path:   routeFollows,
				Body:   map[string]int{"followed": userID},
			})
			return err
		}
		_, err := c.send.Send(ctx, gateway.Request{
			Method: http.MethodDelete,
			Path:   fmt.Sprintf("%s%d/", routeFollows, userID),
		})
		return err
	})
}

// LikePending reports whether a like toggle for the post is unsettled.
func (c *Client) LikePending(postID int) bool {
	return c.toggles.Pending(fmt.Sprintf("like:%d", postID))
}

// PostFeed returns an infinite-scroll fetcher over the post list endpoint.
// params carries search/sort filters; a later Reset replaces them.
func (c *Client) PostFeed(params url.Values) (*feed.Fetcher[Post], error) {
	fetcher, err := feed.NewFetcher(c.send, routePosts, func(p Post) string {
		return fmt.Sprintf("%d", p.ID)
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Client.PostFeed]")
	}
	if len(params) > 0 {
		// Seed the first page's filters without issuing a fetch.
		fetcher.SetParams(params)
	}
	return fetcher, nil
}
