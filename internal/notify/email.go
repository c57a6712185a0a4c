package notify

import (
	"html/template"
	"strings"

	"github.com/shelfstack/lending-go/internal/domain"
)

const debtorEmailSubject = "Overdue library loans"

var debtorEmailTemplate = template.Must(template.New("debtorEmail").Parse(`<html>
<body>
<p>Dear {{if .Name}}{{.Name}}{{else}}reader{{end}},</p>
<p>the following loans are past their due date. Please return them to the library:</p>
<ul>
{{- range .Briefs}}
<li>{{.BookTitle}}{{if .AuthorName}} by {{.AuthorName}}{{end}}</li>
{{- end}}
</ul>
<p>Your library</p>
</body>
</html>`))

// renderDebtorEmail formats the reminder for one debtor.
func renderDebtorEmail(notification domain.DebtorNotification) (subject string, htmlBody string, err error) {
	var body strings.Builder

	if err := debtorEmailTemplate.Execute(&body, notification); err != nil {
		return "", "", err
	}

	return debtorEmailSubject, body.String(), nil
}
