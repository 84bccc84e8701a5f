package classifier

import (
	"strings"
	"text/template"

	"github.com/thep200/content-radar/internal/lawstore"
)

var (
	sentimentTmpl = template.Must(template.New("sentiment").Parse(`Classify the sentiment of the following social media text.
Answer with a JSON object only:
{"sentiment": "positive" | "neutral" | "negative", "score": number between -1 and 1}

Text:
{{.Text}}`))

	categoryTmpl = template.Must(template.New("category").Parse(`Assign the following social media text to exactly one category from this list:
{{range .Categories}}- {{.}}
{{end}}
Answer with a JSON object only:
{"category": "<one of the categories above>", "confidence": number between 0 and 1}

Text:
{{.Text}}`))

	riskTmpl = template.Must(template.New("risk").Parse(`Assess how harmful the following social media text is. Consider hate speech,
incitement to violence, defamation, misinformation, harassment and content
offending religion or ethnicity.
Answer with a JSON object only:
{"level": "low" | "medium" | "high" | "critical", "score": integer 0-100, "reasons": ["short reason", ...]}

Text:
{{.Text}}`))

	justifyTmpl = template.Must(template.New("justify").Parse(`Decide whether the following social media text violates the law.
{{if .Articles}}Candidate law articles:
{{range .Articles}}[{{.Code}}] {{.Title}}
{{.Content}}

{{end}}Only cite articles from the list above.
{{else}}No candidate articles were found. Cite articles by their common code if you are certain.
{{end}}
Answer with a JSON object only:
{"violation": true | false, "articles": ["<article code>", ...], "justification": "<why>"}

Text:
{{.Text}}`))

	summaryTmpl = template.Must(template.New("summary").Parse(`Summarize this social media post in 3-4 lines. Answer with the summary only.

{{.Text}}`))
)

var prompts = map[string]*template.Template{
	"sentiment":     sentimentTmpl,
	"category":      categoryTmpl,
	"risk":          riskTmpl,
	"justification": justifyTmpl,
	"summary":       summaryTmpl,
}

type promptData struct {
	Text       string
	Categories []string
	Articles   []lawstore.LawArticle
}

func render(tmpl *template.Template, data promptData) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
