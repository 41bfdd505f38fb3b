package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opencall/opencall/internal/auth"
	ocerrors "github.com/opencall/opencall/internal/errors"
	"github.com/opencall/opencall/internal/platform"
	"github.com/opencall/opencall/internal/session"
	"github.com/opencall/opencall/internal/ux"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update your profile",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the profile stored with the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			state := a.ctrl.State()
			if !state.IsAuthenticated || state.User == nil {
				return ocerrors.NewNotAuthenticatedError()
			}
			return a.print(ux.Result{Data: state.User, View: userView(state.User)})
		},
	}

	update := &cobra.Command{
		Use:   "update",
		Short: "Update your profile",
		Long: `Update your name, email, bio or profile picture. Only the given
fields are sent.

Examples:
  opencall profile update --bio "Go and distributed systems"
  opencall profile update --picture ./me.png`,
		Args: cobra.NoArgs,
		RunE: runProfileUpdate,
	}
	update.Flags().String("first-name", "", "first name")
	update.Flags().String("last-name", "", "last name")
	update.Flags().String("email", "", "email address")
	update.Flags().String("bio", "", "short bio")
	update.Flags().String("picture", "", "path of a profile picture to upload")

	cmd.AddCommand(show, update)
	return cmd
}

func runProfileUpdate(cmd *cobra.Command, _ []string) error {
	a, err := appFrom(cmd)
	if err != nil {
		return err
	}

	var update auth.ProfileUpdate
	update.FirstName, _ = cmd.Flags().GetString("first-name")
	update.LastName, _ = cmd.Flags().GetString("last-name")
	update.Email, _ = cmd.Flags().GetString("email")
	update.Bio, _ = cmd.Flags().GetString("bio")
	picture, _ := cmd.Flags().GetString("picture")

	if picture != "" {
		f, err := os.Open(picture)
		if err != nil {
			if os.IsNotExist(err) {
				return ocerrors.NewFileNotFoundError(picture)
			}
			return ocerrors.Wrap(ocerrors.ErrCodeFileReadFailed, "failed to open picture", err)
		}
		defer f.Close()
		update.Picture = f
		update.PictureName = filepath.Base(picture)
	}

	if update.FirstName == "" && update.LastName == "" && update.Email == "" && update.Bio == "" && update.Picture == nil {
		return ocerrors.New(ocerrors.ErrCodeInvalidArguments, "nothing to update").
			WithSuggestion("Pass at least one of --first-name, --last-name, --email, --bio or --picture")
	}

	user, err := a.ctrl.UpdateProfile(cmd.Context(), update)
	if err != nil {
		return err
	}
	return a.print(ux.Result{Data: user, View: userView(user)})
}

func userView(u *session.User) ux.Fields {
	f := ux.Fields{Title: u.FullName()}
	f.Add("Username", u.Username)
	f.Add("Email", u.Email)
	f.Add("Role", u.Role)
	f.Add("Bio", u.Bio)
	f.Add("Picture", u.ProfilePicture)
	f.Add("Member since", u.CreatedAt)
	return f
}

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Look up public user profiles",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show USERNAME",
		Short: "Show a public profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			profile, err := a.platform.GetUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(ux.Result{Data: profile, View: publicProfileView(profile)})
		},
	})
	return cmd
}

func publicProfileView(p *platform.UserProfile) ux.Fields {
	name := p.User.FirstName + " " + p.User.LastName
	f := ux.Fields{Title: fmt.Sprintf("%s (@%s)", name, p.User.Username)}
	f.Add("Bio", p.User.Bio)
	if p.IsMentor && p.Mentor != nil {
		f.Add("Mentor", p.Mentor.Title)
	}
	return f
}
