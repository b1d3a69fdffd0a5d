package bot

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/paydesk/core/logger"
	tg "github.com/m3rciful/paydesk/core/telegram"
	"github.com/m3rciful/paydesk/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/paydesk/core/telegram/helpers"
	"github.com/m3rciful/paydesk/core/telegram/keyboard"
	"github.com/m3rciful/paydesk/internal/conversation"
	"github.com/m3rciful/paydesk/internal/operator"
)

const errorReply = "⚠️ Something went wrong. Please try again or send /start."

func (a *App) registry() (*tg.Registry, error) {
	reg := tg.NewRegistry()

	user := []struct {
		name string
		desc string
		h    tele.HandlerFunc
	}{
		{"/start", "Open the main menu", a.onStart},
		{"/cancel", "Cancel the current operation", a.onCancel},
		{"/balance", "Show your balance", a.onBalance},
		{"/help", "How deposits and withdrawals work", a.onHelp},
	}
	for _, cmd := range user {
		if err := reg.RegisterCommand(cmd.name, tg.Command{Handler: cmd.h, Description: cmd.desc}); err != nil {
			return nil, err
		}
	}
	for _, name := range operator.Commands() {
		if err := reg.RegisterCommand(name, tg.Command{Handler: a.onOperator, AdminOnly: true}); err != nil {
			return nil, err
		}
	}
	for _, action := range conversation.Actions {
		if err := reg.RegisterCallback(action, a.onCallback); err != nil {
			return nil, err
		}
	}
	reg.SetCallbackNotFound(a.onCallback)
	return reg, nil
}

func userOf(c tele.Context) conversation.User {
	id, username := tghelpers.Sender(c)
	return conversation.User{ID: id, Username: username}
}

func render(c tele.Context, r conversation.Reply) error {
	return tghelpers.Deliver(c, tghelpers.Message{
		Text:   r.Text,
		Photo:  r.Photo,
		Markup: keyboard.Inline(r.Keyboard...),
		Edit:   r.Edit,
	})
}

func (a *App) onStart(c tele.Context) error {
	return render(c, a.engine.Start(tghelpers.BuildContext(c), userOf(c)))
}

func (a *App) onCancel(c tele.Context) error {
	return render(c, a.engine.Cancel(tghelpers.BuildContext(c), userOf(c)))
}

func (a *App) onBalance(c tele.Context) error {
	return render(c, a.engine.Balance(tghelpers.BuildContext(c), userOf(c)))
}

func (a *App) onHelp(c tele.Context) error {
	return render(c, a.engine.Help())
}

func (a *App) onCallback(c tele.Context) error {
	action, payload := callbacks.Parse(c.Callback())
	return render(c, a.engine.Callback(tghelpers.BuildContext(c), userOf(c), action, payload))
}

// Text feeds free text to the conversation engine.
func (a *App) Text(c tele.Context) error {
	return render(c, a.engine.Text(tghelpers.BuildContext(c), userOf(c), c.Text()))
}

// Photo feeds a payment screenshot to the conversation engine.
func (a *App) Photo(c tele.Context) error {
	return render(c, a.engine.Photo(tghelpers.BuildContext(c), userOf(c), tghelpers.PhotoFileID(c)))
}

// Media re-prompts the current step for unsupported attachments.
func (a *App) Media(c tele.Context) error {
	return render(c, a.engine.Photo(tghelpers.BuildContext(c), userOf(c), ""))
}

func (a *App) onOperator(c tele.Context) error {
	handled, err := a.operatorText(c)
	if err != nil || handled {
		return err
	}
	logger.Debug(tghelpers.BuildContext(c), "operator", "command.ignored",
		slog.String("text", logger.SanitizeLimit(c.Text(), 64)),
	)
	return nil
}

// operatorText runs operator commands sent by the admin. Anything else is
// left for the conversation.
func (a *App) operatorText(c tele.Context) (bool, error) {
	id, _ := tghelpers.Sender(c)
	reply, handled := a.operators.Handle(tghelpers.BuildContext(c), id, c.Text())
	if !handled {
		return false, nil
	}
	if reply == "" {
		return true, nil
	}
	return true, tghelpers.SendText(c, reply)
}

func (a *App) replyError(c tele.Context) error {
	return tghelpers.SendText(c, errorReply)
}
