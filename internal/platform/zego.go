package platform

import (
	"context"
	"encoding/json"
)

// DefaultZegoExpiration is the token lifetime in seconds when none is given
const DefaultZegoExpiration = 3600

// ZegoTokenRequest asks for a video room token
type ZegoTokenRequest struct {
	UserID            string `json:"user_id" yaml:"user_id"`
	UserName          string `json:"user_name" yaml:"user_name"`
	RoomID            string `json:"room_id" yaml:"room_id"`
	ExpirationSeconds int    `json:"expiration_seconds" yaml:"expiration_seconds"`
}

// ZegoToken grants access to one video room
type ZegoToken struct {
	Token  string `json:"token" yaml:"token"`
	AppID  int64  `json:"app_id" yaml:"app_id"`
	RoomID string `json:"room_id" yaml:"room_id"`
	UserID string `json:"user_id" yaml:"user_id"`
}

// UnmarshalJSON accepts both snake_case and camelCase members.
func (t *ZegoToken) UnmarshalJSON(data []byte) error {
	var raw struct {
		Token     string `json:"token" yaml:"token"`
		AppID     int64  `json:"app_id" yaml:"app_id"`
		AppIDAlt  int64  `json:"appId" yaml:"appId"`
		RoomID    string `json:"room_id" yaml:"room_id"`
		RoomIDAlt string `json:"roomId" yaml:"roomId"`
		UserID    string `json:"user_id" yaml:"user_id"`
		UserIDAlt string `json:"userId" yaml:"userId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = ZegoToken{
		Token:  raw.Token,
		AppID:  firstNonZero(raw.AppID, raw.AppIDAlt),
		RoomID: firstNonZero(raw.RoomID, raw.RoomIDAlt),
		UserID: firstNonZero(raw.UserID, raw.UserIDAlt),
	}
	return nil
}

// ZegoSession describes how to join the room of a booking
type ZegoSession struct {
	AppID    int64  `json:"app_id" yaml:"app_id"`
	RoomID   string `json:"room_id" yaml:"room_id"`
	UserID   string `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty" yaml:"user_name,omitempty"`
	CanJoin  bool   `json:"can_join" yaml:"can_join"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
}

// UnmarshalJSON accepts both snake_case and camelCase members.
func (s *ZegoSession) UnmarshalJSON(data []byte) error {
	var raw struct {
		AppID       int64  `json:"app_id" yaml:"app_id"`
		AppIDAlt    int64  `json:"appId" yaml:"appId"`
		RoomID      string `json:"room_id" yaml:"room_id"`
		RoomIDAlt   string `json:"roomId" yaml:"roomId"`
		UserID      string `json:"user_id" yaml:"user_id"`
		UserIDAlt   string `json:"userId" yaml:"userId"`
		UserName    string `json:"user_name" yaml:"user_name"`
		UserNameAlt string `json:"userName" yaml:"userName"`
		CanJoin     bool   `json:"can_join" yaml:"can_join"`
		Message     string `json:"message" yaml:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ZegoSession{
		AppID:    firstNonZero(raw.AppID, raw.AppIDAlt),
		RoomID:   firstNonZero(raw.RoomID, raw.RoomIDAlt),
		UserID:   firstNonZero(raw.UserID, raw.UserIDAlt),
		UserName: firstNonZero(raw.UserName, raw.UserNameAlt),
		CanJoin:  raw.CanJoin,
		Message:  raw.Message,
	}
	return nil
}

func firstNonZero[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// ZegoToken requests a room token. A non-positive expiration uses
// DefaultZegoExpiration.
func (c *Client) ZegoToken(ctx context.Context, req ZegoTokenRequest) (*ZegoToken, error) {
	if req.ExpirationSeconds <= 0 {
		req.ExpirationSeconds = DefaultZegoExpiration
	}
	out, err := post[ZegoToken](ctx, c, "/zego/token", req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ZegoSession fetches the join information of a booking's room
func (c *Client) ZegoSession(ctx context.Context, bookingID string) (*ZegoSession, error) {
	out, err := get[ZegoSession](ctx, c, "/zego/session/"+pathSegment(bookingID), false)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
