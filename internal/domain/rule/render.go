package rule

import (
	"html"
	"regexp"
	"strings"

	"github.com/gynecloud/notify-engine/internal/platform/mailer"
)

var placeholder = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Content is a rendered notification.
type Content struct {
	Subject string
	HTML    string
	Text    string
}

// Expand replaces every {name} with vars[name]; unknown names become "".
// When escape is set the values are HTML-escaped, the template is not.
func Expand(tmpl string, vars map[string]string, escape bool) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		val := vars[m[1:len(m)-1]]
		if escape {
			return html.EscapeString(val)
		}
		return val
	})
}

// Render produces the subject, HTML body and plain-text fallback for r.
func Render(r *Rule, vars map[string]string) Content {
	body := Expand(r.MessageTemplate, vars, true)
	subject := mailer.PlainText(Expand(r.TitleTemplate, vars, true))
	subject = strings.Join(strings.Fields(subject), " ")
	if subject == "" {
		subject = r.Name
	}
	return Content{
		Subject: subject,
		HTML:    body,
		Text:    mailer.PlainText(body),
	}
}
