package response

import (
	"fmt"
	"strings"
)

// systemPrompt builds the system prompt for a request. A non-empty
// PromptOverride replaces the default wholesale; otherwise the default
// persona is specialized with the call's purpose and customer name.
func systemPrompt(req Request) string {
	if s := strings.TrimSpace(req.PromptOverride); s != "" {
		return s
	}

	var b strings.Builder
	b.WriteString("You are a courteous assistant speaking on a live outbound phone call.")
	if name := strings.TrimSpace(req.CustomerName); name != "" {
		fmt.Fprintf(&b, " The person you are speaking with is %s.", name)
	}
	if purpose := strings.TrimSpace(req.Purpose); purpose != "" {
		fmt.Fprintf(&b, " The purpose of this call is: %s.", purpose)
	}
	b.WriteString(" Everything you say is read aloud, so keep replies to one or two short spoken sentences with no markup or emoji.")
	b.WriteString(" If the person wants to end the call, thank them and say goodbye.")
	return b.String()
}
