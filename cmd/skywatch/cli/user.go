package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/skywatch-labs/skywatch/internal/model"
	"github.com/skywatch-labs/skywatch/internal/service"
	"github.com/skywatch-labs/skywatch/internal/store"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage identities",
		Long:  "Provision and list the identities that can log in to Skywatch.",
	}

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserListCmd())

	return cmd
}

// ---------- user create ----------

func newUserCreateCmd() *cobra.Command {
	var (
		username string
		password string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new identity",
		Example: `  skywatch user create --username ada --role teacher --password secret123
  skywatch user create --username station-7 --role sensor  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				pw, err := promptPassword(cmd.OutOrStdout())
				if err != nil {
					return err
				}
				password = pw
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateStore(); err != nil {
				return err
			}
			st, err := openStore(cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()
			hasher, err := buildHasher(cfg.Auth)
			if err != nil {
				return err
			}

			in := service.RegisterInput{Username: username, Password: password, Role: role}
			return runUserCreate(cmd.Context(), cmd.OutOrStdout(), st, hasher, in)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Login name (required)")
	cmd.Flags().StringVar(&role, "role", "", "Role: teacher, user or sensor (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("role")

	return cmd
}

func runUserCreate(ctx context.Context, out io.Writer, st *store.Store, hasher *service.PasswordHasher, in service.RegisterInput) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// Registration never signs tokens, so no secret is needed here.
	auth := service.NewAuthService(st, hasher, service.TokenOptions{}, slog.New(slog.DiscardHandler))
	u, err := auth.Register(ctx, in)
	if err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("%s: %s", ve.Field, ve.Message)
		}
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(out, "Created %s %q (%s)\n", u.Role, u.Username, u.ID)
	return nil
}

func promptPassword(out io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--password is required when stdin is not a terminal")
	}

	fmt.Fprint(out, "Password: ")
	pw, err := term.ReadPassword(fd)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(out)

	fmt.Fprint(out, "Confirm password: ")
	confirm, err := term.ReadPassword(fd)
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Fprintln(out)

	if string(pw) != string(confirm) {
		return "", errors.New("passwords do not match")
	}
	return string(pw), nil
}

// ---------- user list ----------

func newUserListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all identities",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateStore(); err != nil {
				return err
			}
			st, err := openStore(cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()
			return runUserList(cmd.Context(), cmd.OutOrStdout(), st, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

type userRow struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Role      model.Role `json:"role"`
	Hashed    bool       `json:"hashed"`
	LastLogin string     `json:"last_login,omitempty"`
}

func runUserList(ctx context.Context, out io.Writer, st *store.Store, jsonOutput bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	users, err := st.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	rows := make([]userRow, 0, len(users))
	for _, u := range users {
		row := userRow{ID: u.ID, Username: u.Username, Role: u.Role, Hashed: service.LooksHashed(u.PasswordHash)}
		if u.LastLoginAt != nil {
			row.LastLogin = u.LastLoginAt.UTC().Format("2006-01-02 15:04:05")
		}
		rows = append(rows, row)
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(out, "No identities found. Use 'skywatch user create' to add one.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tROLE\tHASHED\tLAST LOGIN")
	for _, r := range rows {
		hashed := "yes"
		if !r.Hashed {
			hashed = "no"
		}
		last := r.LastLogin
		if last == "" {
			last = "never"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Username, r.Role, hashed, last)
	}
	return tw.Flush()
}
