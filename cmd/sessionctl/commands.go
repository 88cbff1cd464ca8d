package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/guard"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var errNotSignedIn = errors.New("not signed in")

// withSession opens the configured session, resolves it and runs fn.
func (a *app) withSession(ctx context.Context, fn func(*session, goSession.Snapshot) error) (err error) {
	s, err := openSession(a.settings, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, s.Close())
	}()

	snap, err := s.start(ctx)
	if err != nil {
		return err
	}
	return fn(s, snap)
}

func newLoginCommand(a *app) *cobra.Command {
	var (
		email      string
		noRemember bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password := a.viper.GetString("password")
			return a.withSession(cmd.Context(), func(s *session, _ goSession.Snapshot) error {
				snap, err := s.manager.Login(cmd.Context(), goSession.Credentials{
					Email:    email,
					Password: password,
					Remember: !noRemember,
				})
				if err != nil {
					return err
				}
				u, _ := snap.User()
				fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s)\n", displayName(u), strings.Join(u.Roles, ", "))
				if !snap.Persisted {
					fmt.Fprintln(cmd.OutOrStdout(), "session not stored; it ends with this process")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().String("password", "", "account password (or SESSIONCTL_PASSWORD)")
	cmd.Flags().BoolVar(&noRemember, "no-remember", false, "do not store the session")
	_ = a.viper.BindPFlag("password", cmd.Flags().Lookup("password"))
	return cmd
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the stored session everywhere it is shared",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd.Context(), func(s *session, snap goSession.Snapshot) error {
				s.manager.Logout(cmd.Context())
				if snap.Authenticated() {
					fmt.Fprintln(cmd.OutOrStdout(), "signed out")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "no session")
				}
				return nil
			})
		},
	}
}

type statusView struct {
	Status    string     `json:"status"`
	User      *userView  `json:"user,omitempty"`
	Persisted bool       `json:"persisted"`
	RenewAt   *time.Time `json:"renewAt,omitempty"`
}

type userView struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles"`
}

func newStatusView(m *goSession.Manager, snap goSession.Snapshot) statusView {
	v := statusView{Status: snap.Status.String(), Persisted: snap.Persisted}
	if u, ok := snap.User(); ok {
		v.User = &userView{ID: u.ID, Email: u.Email, Name: u.Name, Roles: u.Roles}
	}
	if at, ok := m.PendingRenewal(); ok {
		v.RenewAt = &at
	}
	return v
}

func (v statusView) write(w io.Writer, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Fprintf(w, "status:    %s\n", v.Status)
	if v.User != nil {
		fmt.Fprintf(w, "user:      %s <%s>\n", v.User.ID, v.User.Email)
		fmt.Fprintf(w, "roles:     %s\n", strings.Join(v.User.Roles, ", "))
		fmt.Fprintf(w, "persisted: %t\n", v.Persisted)
	}
	if v.RenewAt != nil {
		fmt.Fprintf(w, "renews at: %s\n", v.RenewAt.Format(time.RFC3339))
	}
	return nil
}

func newStatusCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd.Context(), func(s *session, snap goSession.Snapshot) error {
				return newStatusView(s.manager, snap).write(cmd.OutOrStdout(), asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newRefreshCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Renew the stored session now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd.Context(), func(s *session, snap goSession.Snapshot) error {
				if !snap.Authenticated() {
					return errNotSignedIn
				}
				if err := s.manager.Refresh(cmd.Context()); err != nil {
					return err
				}
				return newStatusView(s.manager, s.manager.Snapshot()).write(cmd.OutOrStdout(), false)
			})
		},
	}
}

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Hold the session, renew it on time and print every transition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd.Context(), func(s *session, snap goSession.Snapshot) error {
				out := cmd.OutOrStdout()
				events := make(chan goSession.Event, 16)
				cancel := s.manager.Subscribe(func(ev goSession.Event) {
					select {
					case events <- ev:
					default:
						a.logger.Warn("watch output behind, dropping event", zap.Stringer("kind", ev.Kind))
					}
				})
				defer cancel()

				fmt.Fprintf(out, "%s %s\n", time.Now().Format(time.TimeOnly), describe(snap))
				for {
					select {
					case <-cmd.Context().Done():
						return nil
					case ev := <-events:
						line := fmt.Sprintf("%s %s: %s", time.Now().Format(time.TimeOnly), ev.Kind, describe(ev.Snapshot))
						if ev.Err != nil {
							line += " (" + ev.Err.Error() + ")"
						}
						fmt.Fprintln(out, line)
					}
				}
			})
		},
	}
}

func newCheckCommand(a *app) *cobra.Command {
	var require []string
	cmd := &cobra.Command{
		Use:   "check PATH...",
		Short: "Show how the navigation guard treats paths for the stored session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			routes, err := routesWith(require)
			if err != nil {
				return err
			}
			return a.withSession(cmd.Context(), func(_ *session, snap goSession.Snapshot) error {
				for _, path := range args {
					d := routes.Decide(snap.Status, path, snap.Roles())
					if d.Redirect() {
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", path, d.Outcome, d.Location)
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", path, d.Outcome)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&require, "require", nil, "protect PATH=ROLE[,ROLE...] in addition to the default routes")
	return cmd
}

// routesWith extends the default routes with PATH=ROLE[,ROLE...] entries.
func routesWith(entries []string) (guard.Routes, error) {
	routes := guard.DefaultRoutes()
	for _, e := range entries {
		path, roles, ok := strings.Cut(e, "=")
		path = strings.TrimSpace(path)
		if !ok || !strings.HasPrefix(path, "/") {
			return routes, fmt.Errorf("invalid --require %q: want /path=role[,role]", e)
		}
		r := guard.Route{Path: path}
		for _, role := range strings.Split(roles, ",") {
			if role = strings.TrimSpace(role); role != "" {
				r.Roles = append(r.Roles, role)
			}
		}
		routes.Protected = append(routes.Protected, r)
	}
	return routes, nil
}

func describe(snap goSession.Snapshot) string {
	u, ok := snap.User()
	if !ok {
		return snap.Status.String()
	}
	return fmt.Sprintf("%s as %s [%s]", snap.Status, displayName(u), strings.Join(u.Roles, ", "))
}

func displayName(u goSession.SessionUser) string {
	switch {
	case u.Email != "":
		return u.Email
	case u.Name != "":
		return u.Name
	default:
		return u.ID
	}
}
