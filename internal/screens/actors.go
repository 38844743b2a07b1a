package screens

import (
	"context"
	"strings"

	tele "gopkg.in/telebot.v4"

	"finflow/internal/flow"
)

// sessionActors backs the machine's async loads with the catalog client.
// Identity comes straight from the Telegram sender; there is no separate
// auth round-trip.
type sessionActors struct {
	h      *Handler
	tgUser *tele.User
}

func (a *sessionActors) Init(context.Context) (flow.User, error) {
	name := strings.TrimSpace(strings.TrimSpace(a.tgUser.FirstName) + " " + strings.TrimSpace(a.tgUser.LastName))
	if name == "" {
		name = a.tgUser.Username
	}
	return flow.User{
		ID:          a.tgUser.ID,
		DisplayName: name,
		Username:    a.tgUser.Username,
	}, nil
}

func (a *sessionActors) Profile(ctx context.Context, u flow.User) (string, string, error) {
	if a.h.bot == nil {
		return "", "", nil
	}
	photos, err := a.h.bot.ProfilePhotosOf(a.tgUser)
	if err != nil || len(photos) == 0 {
		return "", "", err
	}
	return photos[0].FileURL, "", nil
}

func (a *sessionActors) Accounts(ctx context.Context, username string) ([]flow.Account, error) {
	return a.h.opts.Catalog.Accounts(ctx, username)
}

func (a *sessionActors) Categories(ctx context.Context, username string, kind flow.Kind) ([]flow.Category, error) {
	return a.h.opts.Catalog.Categories(ctx, username, kind)
}

func (a *sessionActors) Suggestions(ctx context.Context, username string, kind flow.Kind, categoryID int64) ([]flow.Suggestion, error) {
	return a.h.opts.Catalog.Suggestions(ctx, username, kind, categoryID)
}

func (a *sessionActors) Convert(ctx context.Context, from, to, amount string) (string, string, error) {
	return a.h.opts.Catalog.Convert(ctx, from, to, amount)
}

func (a *sessionActors) Balance(ctx context.Context, username string) (string, error) {
	return a.h.opts.Catalog.Balance(ctx, username)
}
