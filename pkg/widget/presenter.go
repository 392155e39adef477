package widget

import (
	"time"

	"github.com/go-go-golems/supportchat/pkg/widget/validate"
)

type Icon string

const (
	IconEnlarge  Icon = "enlarge"
	IconMinimize Icon = "minimize"
)

// FormField describes one input of the identification form.
type FormField struct {
	Name  string
	Label string
	Kind  validate.Kind
	Value string
}

// ChatLine is one rendered message.
type ChatLine struct {
	From     string
	Text     string
	At       time.Time
	Outbound bool
}

// Presenter receives presentation commands. The widget never reads anything
// back from it. All calls happen on the widget's loop.
type Presenter interface {
	SetToggleIcon(icon Icon)
	// SetHeight reports box height progress, 0 when closed.
	SetHeight(progress int)
	ShowIndicator()
	SpinIndicator(degrees int)
	HideIndicator()
	ShowIdentityForm(fields []FormField)
	FlagField(name string)
	HideIdentityForm()
	ShowSessionContent(sessionID string)
	AppendMessage(line ChatLine)
	ClearSessionContent()
	ShowError(err error)
}

// NopPresenter discards every command.
type NopPresenter struct{}

var _ Presenter = NopPresenter{}

func (NopPresenter) SetToggleIcon(Icon)           {}
func (NopPresenter) SetHeight(int)                {}
func (NopPresenter) ShowIndicator()               {}
func (NopPresenter) SpinIndicator(int)            {}
func (NopPresenter) HideIndicator()               {}
func (NopPresenter) ShowIdentityForm([]FormField) {}
func (NopPresenter) FlagField(string)             {}
func (NopPresenter) HideIdentityForm()            {}
func (NopPresenter) ShowSessionContent(string)    {}
func (NopPresenter) AppendMessage(ChatLine)       {}
func (NopPresenter) ClearSessionContent()         {}
func (NopPresenter) ShowError(error)              {}

// IdentityForm is the form shown once the box has opened.
func IdentityForm() []FormField {
	return []FormField{
		{Name: FieldName, Label: "Name", Kind: validate.KindText},
		{Name: FieldEmail, Label: "Email", Kind: validate.KindEmail},
	}
}

const (
	FieldName    = "name"
	FieldEmail   = "email"
	FieldMessage = "message"
)
