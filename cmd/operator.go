package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/relaychat/internal/admin"
	"github.com/nextlevelbuilder/relaychat/internal/config"
	"github.com/nextlevelbuilder/relaychat/internal/sessions"
	"github.com/nextlevelbuilder/relaychat/internal/settings"
)

const operatorNote = "Changes go straight to the store; a running gateway picks up settings immediately and the key pool on restart (or use /keys in Telegram)."

// runOperator executes one admin command against the configured store and
// prints the reply.
func runOperator(cmd *cobra.Command, scope sessions.Identity, name string, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := cmd.Context()
	svc, err := openServices(ctx, cfg, func() settings.Defaults { return settingsDefaults(cfg) })
	if err != nil {
		return err
	}
	defer svc.Close()

	reply, err := svc.admin.Execute(ctx, scope, name, args)
	if err != nil {
		var usageErr *admin.UsageError
		if errors.As(err, &usageErr) {
			return fmt.Errorf("usage: %s", usageErr.Usage)
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply)
	return nil
}

// parseScope accepts "private:<user>", "group:<chat>:<topic>" or a bare user id.
func parseScope(s string) (sessions.Identity, error) {
	if !strings.Contains(s, ":") {
		return sessions.Private(s), nil
	}
	return sessions.ParseIdentity(s)
}

func scopedRunE(name string, fixed ...string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		scope, err := parseScope(args[0])
		if err != nil {
			return err
		}
		return runOperator(cmd, scope, name, append(append([]string{}, fixed...), args[1:]...))
	}
}

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the Gemini API key pool",
		Long:  "Manage the Gemini API key pool. " + operatorNote,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List keys (masked) and the current cursor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperator(cmd, sessions.Identity{}, "keys", nil)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "add [key]",
		Short: "Add a key (prompts when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 1 {
				key = args[0]
			} else {
				err := huh.NewInput().
					Title("Gemini API key").
					EchoMode(huh.EchoModePassword).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return errors.New("key is required")
						}
						return nil
					}).
					Value(&key).
					Run()
				if err != nil {
					return err
				}
			}
			return runOperator(cmd, sessions.Identity{}, "keys", []string{"add", strings.TrimSpace(key)})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <n>",
		Short: "Remove the n-th key (1-based)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperator(cmd, sessions.Identity{}, "keys", []string{"del", args[0]})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "select <n>",
		Short: "Make the n-th key (1-based) current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperator(cmd, sessions.Identity{}, "keys", []string{"set", args[0]})
		},
	})
	return cmd
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <conversation> on|off|default|all|reset|history [n|off]",
		Short: "Enable, disable or reset a conversation",
		Long: "Enable, disable or reset a conversation. <conversation> is private:<user>, " +
			"group:<chat>:<topic> or a bare user id.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := parseScope(args[0])
			if err != nil {
				return err
			}
			rest := append([]string{}, args[1:]...)
			if strings.EqualFold(rest[0], "reset") {
				rest[0] = "del"
			}
			return runOperator(cmd, scope, "chat", rest)
		},
	}
}

func roleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage persona overrides",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <conversation> <text...>",
		Short: "Set the primary role of a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE:  scopedRunE("role"),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear <conversation>",
		Short: "Clear the primary role of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE:  scopedRunE("role"),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "toggle <conversation> [text|r]",
		Short: "Toggle, set or reset the secondary role of a conversation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := parseScope(args[0])
			if err != nil {
				return err
			}
			name := "rolex"
			if scope.IsGroup() {
				name = "grolex"
			}
			return runOperator(cmd, scope, name, args[1:])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "group <group:chat:topic> [text...]",
		Short: "Set or clear the group-wide primary role",
		Args:  cobra.MinimumNArgs(1),
		RunE:  scopedRunE("grole", "group"),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "default-switch",
		Short: "Switch the global default between primary and secondary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperator(cmd, sessions.Identity{}, "roleswitch", nil)
		},
	})
	return cmd
}

func modelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "model [name]",
		Short: "Show or set the generation model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperator(cmd, sessions.Identity{}, "model", args)
		},
	}
}

func voiceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "voice",
		Short: "Toggle voice replies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperator(cmd, sessions.Identity{}, "voice", nil)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <conversation>",
		Short: "Show settings for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE:  scopedRunE("status"),
	}
}
