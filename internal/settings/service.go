package settings

import (
	"context"
	"fmt"
	"sync"

	"github.com/nextlevelbuilder/relaychat/internal/history"
	"github.com/nextlevelbuilder/relaychat/internal/persona"
	"github.com/nextlevelbuilder/relaychat/internal/sessions"
	"github.com/nextlevelbuilder/relaychat/internal/store"
)

const (
	globalKey = "settings"

	// ResetSecondary passed to ToggleSecondary drops the custom secondary role.
	ResetSecondary = "r"
)

// Service reads and mutates settings records. Each record is loaded and saved
// as a whole; mu serializes read-modify-write cycles.
type Service struct {
	kv       store.KV
	history  *history.Store
	defaults func() Defaults
	mu       sync.Mutex
}

// New wires a Service. defaults is consulted on every call so hot-reloaded
// config takes effect without a restart.
func New(kv store.KV, defaults func() Defaults) *Service {
	return &Service{kv: kv, defaults: defaults}
}

// AttachHistory lets role mutations reset transcripts. history.Store itself
// reads the limit from this Service, hence the two-step wiring.
func (s *Service) AttachHistory(h *history.Store) { s.history = h }

func (s *Service) Entity(ctx context.Context, id sessions.Identity) (EntityConfig, error) {
	return store.Load(ctx, s.kv, store.NamespaceEntity, id.String(), EntityConfig{})
}

func (s *Service) Group(ctx context.Context, groupKey string) (GroupConfig, error) {
	return store.Load(ctx, s.kv, store.NamespaceGroup, groupKey, GroupConfig{})
}

func (s *Service) Global(ctx context.Context) (GlobalConfig, error) {
	return store.Load(ctx, s.kv, store.NamespaceGlobal, globalKey, GlobalConfig{})
}

// HistoryLimit implements history.LimitSource.
func (s *Service) HistoryLimit(ctx context.Context) (*int, error) {
	g, err := s.Global(ctx)
	if err != nil {
		return nil, err
	}
	return g.HistoryLimit, nil
}

// Model returns the configured generation model, falling back to the default.
func (s *Service) Model(ctx context.Context) (string, error) {
	g, err := s.Global(ctx)
	if err != nil {
		return "", err
	}
	if g.Model != "" {
		return g.Model, nil
	}
	return s.defaults().Model, nil
}

// VoiceEnabled reports whether voice replies are switched on.
func (s *Service) VoiceEnabled(ctx context.Context) (bool, error) {
	g, err := s.Global(ctx)
	if err != nil {
		return false, err
	}
	return g.VoiceEnabled, nil
}

// IsEnabled: an explicit per-identity flag wins; otherwise private chats follow
// the global "for all" switch and group topics follow their group's switch.
func (s *Service) IsEnabled(ctx context.Context, id sessions.Identity) (bool, error) {
	e, err := s.Entity(ctx, id)
	if err != nil {
		return false, err
	}
	if e.Enabled != nil {
		return *e.Enabled, nil
	}
	if id.IsGroup() {
		g, err := s.Group(ctx, id.GroupKey())
		if err != nil {
			return false, err
		}
		return g.EnabledAll, nil
	}
	g, err := s.Global(ctx)
	if err != nil {
		return false, err
	}
	return g.PrivateForAll, nil
}

// EffectiveRole resolves active → primary → group primary → default.
func (s *Service) EffectiveRole(ctx context.Context, id sessions.Identity) (string, error) {
	e, err := s.Entity(ctx, id)
	if err != nil {
		return "", err
	}
	o := persona.Overrides{Active: e.ActiveRole, Primary: e.PrimaryRole}
	if id.IsGroup() {
		g, err := s.Group(ctx, id.GroupKey())
		if err != nil {
			return "", err
		}
		o.GroupPrimary = g.PrimaryRole
	}
	if o.Default, err = s.defaultRole(ctx); err != nil {
		return "", err
	}
	return persona.Resolve(o), nil
}

func (s *Service) defaultRole(ctx context.Context) (string, error) {
	g, err := s.Global(ctx)
	if err != nil {
		return "", err
	}
	d := s.defaults()
	if g.UseSecondaryDefault && d.SecondaryRole != "" {
		return d.SecondaryRole, nil
	}
	return d.PrimaryRole, nil
}

func (s *Service) updateEntity(ctx context.Context, id sessions.Identity, fn func(*EntityConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.Entity(ctx, id)
	if err != nil {
		return err
	}
	fn(&e)
	return store.Save(ctx, s.kv, store.NamespaceEntity, id.String(), e)
}

func (s *Service) updateGroup(ctx context.Context, groupKey string, fn func(*GroupConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.Group(ctx, groupKey)
	if err != nil {
		return err
	}
	fn(&g)
	return store.Save(ctx, s.kv, store.NamespaceGroup, groupKey, g)
}

func (s *Service) updateGlobal(ctx context.Context, fn func(*GlobalConfig)) (GlobalConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.Global(ctx)
	if err != nil {
		return g, err
	}
	fn(&g)
	return g, store.Save(ctx, s.kv, store.NamespaceGlobal, globalKey, g)
}

func (s *Service) resetHistory(ctx context.Context, id sessions.Identity) error {
	if s.history == nil {
		return nil
	}
	if err := s.history.Reset(ctx, id); err != nil {
		return fmt.Errorf("reset history: %w", err)
	}
	return nil
}

// SetEnabled records an explicit on/off for one identity.
func (s *Service) SetEnabled(ctx context.Context, id sessions.Identity, enabled bool) error {
	return s.updateEntity(ctx, id, func(e *EntityConfig) { e.Enabled = &enabled })
}

// ClearEnabled removes the explicit flag so the identity follows its group/global switch.
func (s *Service) ClearEnabled(ctx context.Context, id sessions.Identity) error {
	return s.updateEntity(ctx, id, func(e *EntityConfig) { e.Enabled = nil })
}

// SetPrimaryRole sets (role != "") or clears the entity's long-lived role. Setting
// also activates it, so a previously toggled secondary does not shadow it.
func (s *Service) SetPrimaryRole(ctx context.Context, id sessions.Identity, role string) error {
	err := s.updateEntity(ctx, id, func(e *EntityConfig) {
		e.PrimaryRole = role
		e.ActiveRole = role
	})
	if err != nil {
		return err
	}
	return s.resetHistory(ctx, id)
}

// SetActiveRole sets or clears the short-lived override.
func (s *Service) SetActiveRole(ctx context.Context, id sessions.Identity, role string) error {
	if err := s.updateEntity(ctx, id, func(e *EntityConfig) { e.ActiveRole = role }); err != nil {
		return err
	}
	return s.resetHistory(ctx, id)
}

// SetGroupRole sets or clears the group-level primary role. The group's main
// topic drops its own overrides so the group role takes effect there.
func (s *Service) SetGroupRole(ctx context.Context, groupKey, role string) error {
	if err := s.updateGroup(ctx, groupKey, func(g *GroupConfig) { g.PrimaryRole = role }); err != nil {
		return err
	}
	main := sessions.GroupTopic(groupKey, sessions.DefaultTopicID)
	err := s.updateEntity(ctx, main, func(e *EntityConfig) {
		e.PrimaryRole = ""
		e.ActiveRole = ""
	})
	if err != nil {
		return err
	}
	return s.resetHistory(ctx, main)
}

// ToggleSecondary switches id between its secondary role and the cascade.
//
//	text == ResetSecondary: drop the custom secondary, fall back to the cascade
//	text != "":             save text as the secondary role and activate it
//	text == "":             toggle between the cascade and the secondary role
//
// With groupScope the custom secondary is stored on the parent group instead of the topic.
// It returns true when the secondary role is active afterwards.
func (s *Service) ToggleSecondary(ctx context.Context, id sessions.Identity, text string, groupScope bool) (bool, error) {
	if groupScope && !id.IsGroup() {
		return false, fmt.Errorf("group scope requires a group identity, got %s", id)
	}

	var active bool
	switch text {
	case ResetSecondary:
		if groupScope {
			if err := s.updateGroup(ctx, id.GroupKey(), func(g *GroupConfig) { g.SecondaryRole = "" }); err != nil {
				return false, err
			}
		}
		err := s.updateEntity(ctx, id, func(e *EntityConfig) {
			if !groupScope {
				e.SecondaryRole = ""
			}
			e.ActiveRole = ""
		})
		if err != nil {
			return false, err
		}

	case "":
		secondary, err := s.secondaryRole(ctx, id)
		if err != nil {
			return false, err
		}
		err = s.updateEntity(ctx, id, func(e *EntityConfig) {
			if e.ActiveRole == secondary {
				e.ActiveRole = ""
			} else {
				e.ActiveRole = secondary
				active = true
			}
		})
		if err != nil {
			return false, err
		}

	default:
		if groupScope {
			if err := s.updateGroup(ctx, id.GroupKey(), func(g *GroupConfig) { g.SecondaryRole = text }); err != nil {
				return false, err
			}
		}
		err := s.updateEntity(ctx, id, func(e *EntityConfig) {
			if !groupScope {
				e.SecondaryRole = text
			}
			e.ActiveRole = text
		})
		if err != nil {
			return false, err
		}
		active = true
	}
	return active, s.resetHistory(ctx, id)
}

// secondaryRole: entity secondary → group secondary → default secondary.
func (s *Service) secondaryRole(ctx context.Context, id sessions.Identity) (string, error) {
	e, err := s.Entity(ctx, id)
	if err != nil {
		return "", err
	}
	if e.SecondaryRole != "" {
		return e.SecondaryRole, nil
	}
	if id.IsGroup() {
		g, err := s.Group(ctx, id.GroupKey())
		if err != nil {
			return "", err
		}
		if g.SecondaryRole != "" {
			return g.SecondaryRole, nil
		}
	}
	return s.defaults().SecondaryRole, nil
}

// ToggleGroupAll flips whether every topic of the group is enabled by default.
func (s *Service) ToggleGroupAll(ctx context.Context, groupKey string) (bool, error) {
	var now bool
	err := s.updateGroup(ctx, groupKey, func(g *GroupConfig) {
		g.EnabledAll = !g.EnabledAll
		now = g.EnabledAll
	})
	return now, err
}

// TogglePrivateForAll flips whether private chats are enabled by default.
func (s *Service) TogglePrivateForAll(ctx context.Context) (bool, error) {
	g, err := s.updateGlobal(ctx, func(g *GlobalConfig) { g.PrivateForAll = !g.PrivateForAll })
	return g.PrivateForAll, err
}

// ToggleGlobalSecondary switches the process-wide default between the primary and secondary role.
func (s *Service) ToggleGlobalSecondary(ctx context.Context) (bool, error) {
	g, err := s.updateGlobal(ctx, func(g *GlobalConfig) { g.UseSecondaryDefault = !g.UseSecondaryDefault })
	return g.UseSecondaryDefault, err
}

// SetHistoryLimit sets the global limit; nil or 0 removes it.
func (s *Service) SetHistoryLimit(ctx context.Context, limit *int) error {
	if limit != nil && *limit < 0 {
		return fmt.Errorf("history limit must be >= 0, got %d", *limit)
	}
	if limit != nil && *limit == 0 {
		limit = nil
	}
	_, err := s.updateGlobal(ctx, func(g *GlobalConfig) { g.HistoryLimit = limit })
	return err
}

func (s *Service) SetModel(ctx context.Context, model string) error {
	_, err := s.updateGlobal(ctx, func(g *GlobalConfig) { g.Model = model })
	return err
}

func (s *Service) ToggleVoice(ctx context.Context) (bool, error) {
	g, err := s.updateGlobal(ctx, func(g *GlobalConfig) { g.VoiceEnabled = !g.VoiceEnabled })
	return g.VoiceEnabled, err
}

// ResetHistory clears one identity's transcript.
func (s *Service) ResetHistory(ctx context.Context, id sessions.Identity) error {
	return s.resetHistory(ctx, id)
}
