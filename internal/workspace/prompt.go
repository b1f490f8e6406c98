package workspace

import (
	"fmt"
	"strings"
)

// systemPreamble instructs the tool to answer with text only and to leave
// the filesystem alone: the reply is pasted verbatim into the document.
const systemPreamble = "You are a writing assistant embedded in a text editor. " +
	"Reply with the transformed text only: no preamble, no commentary, no code fences. " +
	"Do not read or modify any files."

// ComposePrompt builds the full instruction sent to the external tool from
// the user's ask, the selected text, and optional file-path context.
func ComposePrompt(instruction, selection, filePath string) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\n")
	b.WriteString(instruction)

	if filePath != "" {
		fmt.Fprintf(&b, "\n\nThe text comes from the file: %s", filePath)
	}
	if selection != "" {
		b.WriteString("\n\nText:\n<<<\n")
		b.WriteString(selection)
		b.WriteString("\n>>>")
	}
	return b.String()
}
