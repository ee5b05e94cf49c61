package labelwatch

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-labelwatch/notify"
)

// HookPack groups notification lifecycle hooks contributed by one extension.
type HookPack struct {
	Name  string
	Hooks []notify.Hook
}

type CommandQueryBundleFactory func(service *Service) (any, error)

// ExtensionHooks collects downstream additions before the service is built.
// Packs and bundles are applied in name order.
type ExtensionHooks struct {
	mu sync.RWMutex

	hookPacks map[string]HookPack
	bundles   map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		hookPacks: map[string]HookPack{},
		bundles:   map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterHookPack(pack HookPack) error {
	if h == nil {
		return fmt.Errorf("labelwatch: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("labelwatch: hook pack name is required")
	}
	if len(pack.Hooks) == 0 {
		return fmt.Errorf("labelwatch: hook pack %q has no hooks", name)
	}
	for _, hook := range pack.Hooks {
		if hook == nil {
			return fmt.Errorf("labelwatch: hook pack %q contains nil hook", name)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.hookPacks[name]; exists {
		return fmt.Errorf("labelwatch: hook pack %q already registered", name)
	}
	h.hookPacks[name] = HookPack{Name: name, Hooks: append([]notify.Hook(nil), pack.Hooks...)}
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(name string, factory CommandQueryBundleFactory) error {
	if h == nil {
		return fmt.Errorf("labelwatch: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("labelwatch: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("labelwatch: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("labelwatch: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

func (h *ExtensionHooks) HookPacks() []HookPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.hookPacks))
	for name := range h.hookPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]HookPack, 0, len(names))
	for _, name := range names {
		pack := h.hookPacks[name]
		out = append(out, HookPack{Name: pack.Name, Hooks: append([]notify.Hook(nil), pack.Hooks...)})
	}
	return out
}

// NotifyHooks flattens every registered pack into one hook list.
func (h *ExtensionHooks) NotifyHooks() []notify.Hook {
	var hooks []notify.Hook
	for _, pack := range h.HookPacks() {
		hooks = append(hooks, pack.Hooks...)
	}
	return hooks
}

func (h *ExtensionHooks) BuildCommandQueryBundles(service *Service) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("labelwatch: service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		names = append(names, name)
		factories[name] = factory
	}
	h.mu.RUnlock()
	sort.Strings(names)

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, fmt.Errorf("labelwatch: build bundle %q: %w", name, err)
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
