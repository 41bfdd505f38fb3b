package cmd

import (
	"github.com/spf13/cobra"

	ocerrors "github.com/opencall/opencall/internal/errors"
	"github.com/opencall/opencall/internal/platform"
	"github.com/opencall/opencall/internal/ux"
)

type callJoin struct {
	AppID    int64  `json:"app_id" yaml:"app_id"`
	RoomID   string `json:"room_id" yaml:"room_id"`
	UserID   string `json:"user_id" yaml:"user_id"`
	UserName string `json:"user_name" yaml:"user_name"`
	Token    string `json:"token" yaml:"token"`
}

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Join the video call of a booking",
	}

	join := &cobra.Command{
		Use:   "join BOOKING_ID",
		Short: "Print the room and token to join a booked call",
		Long: `Fetch the video room of a confirmed booking and a room token for
you. The call can only be joined around its scheduled time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			expiry, _ := cmd.Flags().GetInt("expiration")

			room, err := a.platform.ZegoSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !room.CanJoin {
				msg := room.Message
				if msg == "" {
					msg = "this call cannot be joined right now"
				}
				return ocerrors.New(ocerrors.ErrCodeInvalidArguments, msg)
			}

			req := platform.ZegoTokenRequest{
				UserID:            room.UserID,
				UserName:          room.UserName,
				RoomID:            room.RoomID,
				ExpirationSeconds: expiry,
			}
			if u := a.ctrl.State().User; u != nil {
				if req.UserID == "" {
					req.UserID = u.ID
				}
				if req.UserName == "" {
					req.UserName = u.FullName()
				}
			}

			token, err := a.platform.ZegoToken(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := callJoin{
				AppID:    token.AppID,
				RoomID:   token.RoomID,
				UserID:   token.UserID,
				UserName: req.UserName,
				Token:    token.Token,
			}
			if out.AppID == 0 {
				out.AppID = room.AppID
			}
			if out.RoomID == "" {
				out.RoomID = room.RoomID
			}
			if out.UserID == "" {
				out.UserID = req.UserID
			}

			f := ux.Fields{Title: "Call " + out.RoomID}
			f.Add("User", out.UserName)
			f.Add("Token", out.Token)
			return a.print(ux.Result{Data: out, View: f})
		},
	}
	join.Flags().Int("expiration", platform.DefaultZegoExpiration, "token lifetime in seconds")

	cmd.AddCommand(join)
	return cmd
}
