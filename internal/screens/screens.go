// Package screens is the Telegram front-end for the transaction wizard.
// It renders the active flow screen as an edit-in-place message with an
// inline keyboard, translates taps and typed text into flow events, and
// hands confirmed drafts to the ledger service.
package screens

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"finflow/core/logger"
	tg "finflow/core/telegram"
	"finflow/core/telegram/commands"
	"finflow/core/telegram/ui"
	"finflow/internal/catalog"
	"finflow/internal/flow"
	"finflow/internal/ledger"
	"finflow/internal/snapshot"
)

// Options wires the handler's dependencies.
type Options struct {
	Catalog   *catalog.Client
	Ledger    *ledger.Service
	Snapshots snapshot.Store // nil disables resume
	AdminID   int64

	SettlementCurrency string
	ActorTimeout       time.Duration
}

// Handler owns one flow machine per Telegram user and keeps the rendered
// message in sync with the machine state.
type Handler struct {
	opts Options
	bot  *tele.Bot

	mu       sync.Mutex
	sessions map[int64]*session
}

var _ ui.FallbackProvider = (*Handler)(nil)

// New builds a Handler. Attach must be called before updates arrive.
func New(opts Options) *Handler {
	return &Handler{
		opts:     opts,
		sessions: make(map[int64]*session),
	}
}

// Attach binds the bot instance used for rendering.
func (h *Handler) Attach(bot *tele.Bot) {
	h.bot = bot
}

// SessionCount reports active sessions, for the debug screen.
func (h *Handler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

type session struct {
	h       *Handler
	user    *tele.User
	chat    *tele.Chat
	machine *flow.Machine

	renderMu sync.Mutex
	msg      *tele.Message

	submitGate atomic.Bool
}

// session returns the caller's session, creating the machine on first
// contact. Resume state is loaded once, at creation.
func (h *Handler) session(c tele.Context) *session {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	return h.sessionFor(sender, c.Chat())
}

// sessionFor publishes a session only after its machine is fully built;
// updates arrive on concurrent goroutines and must never observe a
// half-constructed session. When two first contacts race, the loser's
// machine is discarded before Start.
func (h *Handler) sessionFor(sender *tele.User, chat *tele.Chat) *session {
	h.mu.Lock()
	if s, ok := h.sessions[sender.ID]; ok {
		h.mu.Unlock()
		return s
	}
	h.mu.Unlock()

	s := &session{h: h, user: sender, chat: chat}
	opts := []flow.Option{
		flow.WithSettlementCurrency(h.opts.SettlementCurrency),
		flow.WithServiceConfigured(h.opts.Ledger.Configured()),
		flow.WithTransitionHook(func(flow.Screen) { s.rerender() }),
	}
	if h.opts.ActorTimeout > 0 {
		opts = append(opts, flow.WithActorTimeout(h.opts.ActorTimeout))
	}
	if h.opts.Snapshots != nil {
		if snap, ok, err := h.opts.Snapshots.Load(context.Background(), sender.ID); err != nil {
			logger.Warn(context.Background(), "snap", "load.failed",
				slog.Int64("user_id", sender.ID),
				slog.String("err", err.Error()),
			)
		} else if ok {
			opts = append(opts, flow.WithResume(snap.Screen, snap.Context))
		}
		opts = append(opts, flow.WithPersist(h.persistFunc(sender.ID)))
	}
	s.machine = flow.New(&sessionActors{h: h, tgUser: sender}, opts...)

	h.mu.Lock()
	if existing, ok := h.sessions[sender.ID]; ok {
		h.mu.Unlock()
		return existing
	}
	h.sessions[sender.ID] = s
	h.mu.Unlock()

	s.machine.Start()
	logger.Info(context.Background(), "flow", "session.start",
		slog.Int64("user_id", sender.ID),
	)
	return s
}

func (h *Handler) persistFunc(userID int64) flow.PersistFunc {
	return func(screen flow.Screen, ctx flow.Context) {
		if screen == flow.ScreenInitializing {
			return
		}
		snap := snapshot.Snapshot{Screen: screen, Context: ctx}
		if err := h.opts.Snapshots.Save(context.Background(), userID, snap); err != nil {
			logger.Warn(context.Background(), "snap", "save.failed",
				slog.Int64("user_id", userID),
				slog.String("err", err.Error()),
			)
		}
	}
}

// rerender redraws the session message from the machine snapshot. Renders
// are idempotent; an unchanged-message edit error is swallowed.
func (s *session) rerender() {
	if s.h.bot == nil || s.chat == nil {
		return
	}
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	screen := s.machine.State()
	fctx := s.machine.Context()
	text, markup := s.h.render(s, screen, fctx)
	if text == "" {
		return
	}

	sendOpts := &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: markup}
	if s.msg != nil {
		edited, err := s.h.bot.Edit(s.msg, text, sendOpts)
		if err == nil {
			s.msg = edited
			return
		}
		if isNotModified(err) {
			return
		}
	}
	sent, err := s.h.bot.Send(s.chat, text, sendOpts)
	if err != nil {
		logger.Warn(context.Background(), "tg", "render.send_failed",
			slog.String("screen", string(screen)),
			slog.String("err", err.Error()),
		)
		return
	}
	s.msg = sent
}

// detach forces the next render into a fresh message instead of an edit.
func (s *session) detach() {
	s.renderMu.Lock()
	s.msg = nil
	s.renderMu.Unlock()
}

func isNotModified(err error) bool {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 400 && strings.Contains(apiErr.Description, "message is not modified")
	}
	return strings.Contains(err.Error(), "message is not modified")
}

// Commands returns the command set registered into the bot registry.
func (h *Handler) Commands() map[string]commands.Command {
	return map[string]commands.Command{
		"/start": {
			Handler:     h.cmdStart,
			Description: "Open the main menu",
		},
		"/home": {
			Handler:     h.cmdHome,
			Description: "Return to the main menu",
			Aliases:     []string{"menu"},
		},
		"/cancel": {
			Handler:     h.cmdHome,
			Description: "Cancel the current operation",
		},
		"/transactions": {
			Handler:     h.cmdTransactions,
			Description: "Show recent transactions",
		},
		"/debug": {
			Handler:     h.cmdDebug,
			Description: "Show runtime diagnostics",
			AdminOnly:   true,
			Hidden:      true,
		},
	}
}

// Register wires commands and callbacks into the registry.
func (h *Handler) Register(reg *tg.Registry) {
	for name, cmd := range h.Commands() {
		reg.RegisterCommand(name, cmd)
	}
	h.registerCallbacks(reg)
	reg.SetCallbackNotFound(h.UnknownCallback())
	reg.SetTextFallback(h.UnknownText())
}

func (h *Handler) cmdStart(c tele.Context) error {
	s := h.session(c)
	if s == nil {
		return nil
	}
	s.detach()
	s.machine.Send(flow.NavigateHome{})
	s.rerender()
	return nil
}

func (h *Handler) cmdHome(c tele.Context) error {
	s := h.session(c)
	if s == nil {
		return nil
	}
	s.machine.Send(flow.NavigateHome{})
	s.rerender()
	return nil
}

func (h *Handler) cmdTransactions(c tele.Context) error {
	s := h.session(c)
	if s == nil {
		return nil
	}
	s.machine.Send(flow.NavigateHome{})
	s.machine.Send(flow.OpenTransactions{})
	return nil
}

func (h *Handler) cmdDebug(c tele.Context) error {
	s := h.session(c)
	if s == nil {
		return nil
	}
	s.machine.Send(flow.NavigateHome{})
	s.machine.Send(flow.OpenDebug{})
	return nil
}
