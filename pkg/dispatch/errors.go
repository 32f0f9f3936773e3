package dispatch

import (
	"fmt"

	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
	"github.com/Mindburn-Labs/gatekeeper/pkg/session"
)

func errUnknownPrompt(name session.PromptName) error {
	return gateerr.New(gateerr.CodeInvalidInputValue, fmt.Sprintf("unknown prompt name: %s", name))
}

func errBadParams(err error) error {
	return gateerr.New(gateerr.CodeInvalidInputFormat, "could not parse tool arguments: "+err.Error())
}
