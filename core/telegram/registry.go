package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/paydesk/core/logger"
)

// Command is a slash command with its handler and menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands are gated on the configured admin and never shown in the menu.
	AdminOnly bool
	Hidden    bool
}

var (
	errInvalidCommand  = errors.New("telegram: invalid command registration")
	errInvalidCallback = errors.New("telegram: invalid callback registration")
)

// Registry holds bot commands and callback handlers keyed by their unique id.
type Registry struct {
	mu        sync.RWMutex
	commands  map[string]Command
	callbacks map[string]tele.HandlerFunc

	callbackNotFound tele.HandlerFunc
}

// NewRegistry creates an empty Registry. Unknown callbacks are answered with
// a short alert.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]Command),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "This button is no longer supported."})
		},
	}
}

// RegisterCommand adds a command. Names must start with a slash.
func (r *Registry) RegisterCommand(name string, cmd Command) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if !strings.HasPrefix(name, "/") || len(name) < 2 || cmd.Handler == nil {
		logger.Warn(context.Background(), "tg.wire", "register.command.skip", slog.String("name", name))
		return fmt.Errorf("%w: %q", errInvalidCommand, name)
	}
	if cmd.AdminOnly {
		cmd.Hidden = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("telegram: command already registered: %s", name)
	}
	r.commands[name] = cmd
	return nil
}

// Commands returns a copy of the registered commands.
func (r *Registry) Commands() map[string]Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Command, len(r.commands))
	for k, v := range r.commands {
		out[k] = v
	}
	return out
}

// Lookup finds a command by the first word of text, ignoring a "@botname"
// suffix and letter case.
func (r *Registry) Lookup(text string) (string, Command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", Command{}, false
	}
	name := strings.ToLower(fields[0])
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return name, cmd, ok
}

// MenuCommands lists the commands shown in the Telegram command menu.
func (r *Registry) MenuCommands() []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []tele.Command
	for name, cmd := range r.commands {
		if cmd.Hidden || cmd.Description == "" {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: cmd.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// RegisterCallback maps a callback unique key to handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		logger.Warn(context.Background(), "tg.wire", "register.callback.skip", slog.String("key", key))
		return errInvalidCallback
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		return fmt.Errorf("telegram: callback already registered: %s", key)
	}
	r.callbacks[key] = handler
	return nil
}

// Callback returns the handler for key.
func (r *Registry) Callback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// CallbackKeys returns the registered keys, sorted.
func (r *Registry) CallbackKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetCallbackNotFound replaces the handler for unknown callbacks.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbackNotFound = h
}

// CallbackNotFound returns the handler for unknown callbacks.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// CommandSetter is the part of *tele.Bot that publishes the command menu.
type CommandSetter interface {
	SetCommands(opts ...interface{}) error
}

// PublishCommands sets the Telegram command menu. Failures are logged only.
func (r *Registry) PublishCommands(ctx context.Context, bot CommandSetter) {
	cmds := r.MenuCommands()
	if err := bot.SetCommands(cmds); err != nil {
		logger.Error(ctx, "tg.wire", "register.commands.set",
			slog.String("status", "error"),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.Info(ctx, "tg.wire", "register.commands.set",
		slog.String("status", "ok"),
		slog.Int("commands", len(cmds)),
	)
}
