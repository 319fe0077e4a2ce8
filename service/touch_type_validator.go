package service

import (
	"strings"

	"github.com/adelegard/TouchrServer/model"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// TouchTypeInput is the client-supplied definition of a touch type.
// The flags are pointers so a missing value can be told apart from false.
type TouchTypeInput struct {
	Name      string       `json:"name"`
	BgColor   string       `json:"bg_color"`
	TextColor string       `json:"text_color"`
	IsDefault *bool        `json:"is_default"`
	IsPrivate *bool        `json:"is_private"`
	Steps     []model.Step `json:"steps"`
}

func isHexColor(s string) bool {
	return validate.Var(s, "required,len=7,hexcolor") == nil
}

// ValidateTouchType checks in a fixed order and reports only the first broken rule.
// On success it returns the record to persist, owned by creatorID when one is given.
func ValidateTouchType(in TouchTypeInput, creatorID uuid.UUID) (*model.TouchType, error) {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return nil, invalidInput("name must be specified")
	case !isHexColor(in.BgColor):
		return nil, invalidInput("bgColor must be a valid hex color")
	case !isHexColor(in.TextColor):
		return nil, invalidInput("textColor must be a valid hex color")
	case in.IsDefault == nil:
		return nil, invalidInput("isDefault must be a boolean")
	case in.IsPrivate == nil:
		return nil, invalidInput("isPrivate must be a boolean")
	case len(in.Steps) == 0:
		return nil, invalidInput("steps cannot be empty")
	}

	for i, step := range in.Steps {
		if err := validateStep(i, step); err != nil {
			return nil, err
		}
	}

	tt := &model.TouchType{
		Name:      name,
		BgColor:   in.BgColor,
		TextColor: in.TextColor,
		IsDefault: *in.IsDefault,
		IsPrivate: *in.IsPrivate,
		Steps:     in.Steps,
	}
	if creatorID != uuid.Nil {
		owner := creatorID
		tt.CreatedByID = &owner
	}
	return tt, nil
}

func validateStep(i int, step model.Step) error {
	if step.DurationMs <= 0 {
		return invalidInput("step %d: durationMs must be a number greater than zero", i)
	}
	fields := []struct {
		name  string
		value string
	}{
		{"textLong", step.TextLong},
		{"textLongAfter", step.TextLongAfter},
		{"textNotif", step.TextNotif},
		{"textShort", step.TextShort},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return invalidInput("step %d: no %s", i, f.name)
		}
	}
	return nil
}
