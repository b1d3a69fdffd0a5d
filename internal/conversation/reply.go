package conversation

import (
	"github.com/m3rciful/paydesk/core/telegram/keyboard"
	"github.com/m3rciful/paydesk/core/telegram/state"
)

// Conversation steps. The main menu is the idle session.
const (
	StepMainMenu             state.State = state.StateIdle
	StepDepositSelectAmount  state.State = "DEPOSIT_SELECT_AMOUNT"
	StepDepositAwaitPayment  state.State = "DEPOSIT_AWAIT_PAYMENT"
	StepDepositAwaitProof    state.State = "DEPOSIT_AWAIT_PROOF"
	StepDepositAwaitRef      state.State = "DEPOSIT_AWAIT_REFERENCE"
	StepWithdrawDestination  state.State = "WITHDRAW_AWAIT_DESTINATION"
	StepWithdrawAwaitAmount  state.State = "WITHDRAW_AWAIT_AMOUNT"
	StepWithdrawAwaitConfirm state.State = "WITHDRAW_AWAIT_CONFIRM"
)

// Callback actions carried in inline button data.
const (
	ActionDeposit         = "menu_deposit"
	ActionWithdraw        = "menu_withdraw"
	ActionBalance         = "menu_balance"
	ActionHelp            = "menu_help"
	ActionToggleAmount    = "dep_amount"
	ActionPayNow          = "dep_pay"
	ActionPaymentDone     = "dep_done"
	ActionConfirmWithdraw = "wd_confirm"
	ActionCancel          = "cancel"
)

// Actions lists every callback action the engine understands.
var Actions = []string{
	ActionDeposit, ActionWithdraw, ActionBalance, ActionHelp,
	ActionToggleAmount, ActionPayNow, ActionPaymentDone,
	ActionConfirmWithdraw, ActionCancel,
}

// Reply is what the transport should show the user. When Edit is set the
// reply replaces the message the callback came from.
type Reply struct {
	Text     string
	Photo    []byte
	Keyboard [][]keyboard.InlineBtn
	Edit     bool
}

// User identifies the Telegram sender.
type User struct {
	ID       int64
	Username string
}

func btn(text, action, payload string) keyboard.InlineBtn {
	return keyboard.InlineBtn{Text: text, Unique: action, Data: payload}
}

func cancelRow() []keyboard.InlineBtn {
	return []keyboard.InlineBtn{btn("❌ Cancel", ActionCancel, "")}
}

func mainMenu() [][]keyboard.InlineBtn {
	return [][]keyboard.InlineBtn{
		{btn("💰 Deposit", ActionDeposit, ""), btn("💸 Withdraw", ActionWithdraw, "")},
		{btn("📊 Balance", ActionBalance, ""), btn("❓ Help", ActionHelp, "")},
	}
}
