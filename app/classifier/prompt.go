package classifier

import (
	"fmt"
	"strings"
	"text/template"
)

const systemPrompt = "You are a content analyst helping filter articles based on specific criteria. Always answer with a single JSON object."

var twoWayTemplate = template.Must(template.New("two_way").Parse(`Analyze this article and decide whether it should be read or skipped based on the following criteria describing what I don't want to read about:
{{range .SkipCriteria}}- {{.}}
{{end}}{{if .PriorityTopics}}
Topics I always want to read about:
{{range .PriorityTopics}}- {{.}}
{{end}}{{end}}{{range $name, $rules := .CollectionRules}}
Rules for "{{$name}}":
{{range $rules}}- {{.}}
{{end}}{{end}}
Important notes:
1. Default to "read" unless the article clearly matches one of the skip criteria
2. Only skip if you are very confident the article matches a skip criterion

Article content:
{{.Content}}

Respond with a JSON object containing:
1. "disposition": either "read" or "skip"
2. "reason": a brief explanation of the decision

Example:
{"disposition": "read", "reason": "Novel security research about a zero-day vulnerability"}
`))

var threeWayTemplate = template.Must(template.New("three_way").Parse(`Decide which reading list this article belongs to.
{{if .Personas}}
I read as:
{{range .Personas}}- {{.}}
{{end}}{{end}}{{if .PriorityTopics}}
Priority topics:
{{range .PriorityTopics}}- {{.}}
{{end}}{{end}}{{if .SkipCriteria}}
Skip articles that are:
{{range .SkipCriteria}}- {{.}}
{{end}}{{end}}{{range $name, $rules := .CollectionRules}}
Rules for "{{$name}}":
{{range $rules}}- {{.}}
{{end}}{{end}}
Dispositions:
- "read": clearly relevant, worth reading soon
- "maybe": possibly relevant, or not enough information to tell
- "skip": clearly irrelevant or matching a skip criterion

When in doubt choose "maybe".

Article content:
{{.Content}}

Respond with a JSON object containing:
1. "disposition": one of "read", "maybe", "skip"
2. "reason": a brief explanation of the decision

Example:
{"disposition": "maybe", "reason": "Touches on databases but reads like a product announcement"}
`))

type promptData struct {
	Personas        []string
	PriorityTopics  []string
	SkipCriteria    []string
	CollectionRules map[string][]string
	Content         string
}

func renderTemplate(tmpl *template.Template, data promptData) string {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		panic(fmt.Sprintf("failed to render %s prompt: %v", tmpl.Name(), err))
	}
	return sb.String()
}
