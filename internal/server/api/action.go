package api

import (
	"fmt"

	"github.com/dmitrijs2005/releasekeeper/internal/common"
)

// Action is a routable envelope action.
type Action int

const (
	ActionUnknown Action = iota
	ActionCreateAccount
	ActionLogin
	ActionGetAllReleases
	ActionSaveRelease
	ActionDeleteRelease
	ActionSignatureRequest
	ActionDeleteRequest
	ActionSendReminder
	ActionGetSignatureFile
)

var actionNames = map[Action]string{
	ActionCreateAccount:    "createAccount",
	ActionLogin:            "login",
	ActionGetAllReleases:   "getAllReleases",
	ActionSaveRelease:      "saveRelease",
	ActionDeleteRelease:    "deleteRelease",
	ActionSignatureRequest: "signatureRequest",
	ActionDeleteRequest:    "deleteRequest",
	ActionSendReminder:     "sendReminder",
	ActionGetSignatureFile: "getSignatureFile",
}

var actionsByName = func() map[string]Action {
	m := make(map[string]Action, len(actionNames))
	for a, n := range actionNames {
		m[n] = a
	}
	return m
}()

func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// ParseAction maps a wire name to its Action.
func ParseAction(s string) (Action, error) {
	if a, ok := actionsByName[s]; ok {
		return a, nil
	}
	return ActionUnknown, fmt.Errorf("%w: %q", common.ErrUnknownAction, s)
}

// Actions lists every known action.
func Actions() []Action {
	out := make([]Action, 0, len(actionNames))
	for a := ActionCreateAccount; a <= ActionGetSignatureFile; a++ {
		out = append(out, a)
	}
	return out
}

// public reports whether the action runs without an authenticated user.
func (a Action) public() bool {
	return a == ActionCreateAccount || a == ActionLogin
}
