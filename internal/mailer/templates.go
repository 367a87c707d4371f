package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"

	"github.com/rajivgeraev/rewear-api/internal/notify"
)

// View данные для шаблонов письма
type View struct {
	Name      string
	ItemTitle string
	Status    string
	Points    int
	Message   string
}

// Message готовое письмо
type Message struct {
	Subject string
	HTML    string
	Text    string
}

var statusNames = map[string]string{
	"accepted":  "принят",
	"rejected":  "отклонен",
	"completed": "завершен",
	"cancelled": "отменен",
	"approved":  "одобрена",
	"removed":   "снята с публикации",
}

var funcs = template.FuncMap{
	"status": func(s string) string {
		if name, ok := statusNames[s]; ok {
			return name
		}
		return s
	},
}

type eventTemplate struct {
	subject string
	body    string
}

var eventTemplates = map[notify.EventType]eventTemplate{
	notify.EventSwapCreated: {
		subject: "Новый запрос на обмен",
		body: `Вам пришел запрос на обмен{{with .ItemTitle}} вещи «{{.}}»{{end}}.` +
			`{{with .Message}} Сообщение: {{.}}{{end}}`,
	},
	notify.EventSwapResponded: {
		subject: "Ответ на ваш запрос на обмен",
		body: `Ваш запрос на обмен{{with .ItemTitle}} вещи «{{.}}»{{end}} {{status .Status}}.` +
			`{{with .Message}} Ответ владельца: {{.}}{{end}}`,
	},
	notify.EventSwapCancelled: {
		subject: "Запрос на обмен отменен",
		body: `Запрос на обмен{{with .ItemTitle}} вещи «{{.}}»{{end}} отменен.` +
			`{{with .Message}} Причина: {{.}}{{end}}`,
	},
	notify.EventSwapCompleted: {
		subject: "Обмен завершен",
		body:    `Обмен{{with .ItemTitle}} вещи «{{.}}»{{end}} завершен. Спасибо, что выбираете повторное использование!`,
	},
	notify.EventPointsEarned: {
		subject: "Начислены баллы",
		body:    `На ваш счет начислено {{.Points}} баллов.`,
	},
	notify.EventItemModerated: {
		subject: "Результат модерации",
		body: `Ваша вещь{{with .ItemTitle}} «{{.}}»{{end}} {{status .Status}}.` +
			`{{with .Message}} Комментарий модератора: {{.}}{{end}}`,
	},
}

var layout = htmltemplate.Must(htmltemplate.New("layout").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <p>Здравствуйте{{with .Name}}, {{.}}{{end}}!</p>
  <p>{{.Body}}</p>
  <p style="color: #888;">Команда ReWear</p>
</body>
</html>`))

var bodies = func() map[notify.EventType]*template.Template {
	m := make(map[notify.EventType]*template.Template, len(eventTemplates))
	for t, et := range eventTemplates {
		m[t] = template.Must(template.New(string(t)).Funcs(funcs).Parse(et.body))
	}
	return m
}()

// Render собирает письмо для события
func Render(eventType notify.EventType, v View) (*Message, error) {
	et, ok := eventTemplates[eventType]
	if !ok {
		return nil, fmt.Errorf("нет шаблона письма для события %s", eventType)
	}

	var body bytes.Buffer
	if err := bodies[eventType].Execute(&body, v); err != nil {
		return nil, fmt.Errorf("ошибка шаблона %s: %w", eventType, err)
	}

	// html/template экранирует пользовательский текст из события
	var html bytes.Buffer
	if err := layout.Execute(&html, struct {
		Name string
		Body string
	}{Name: v.Name, Body: body.String()}); err != nil {
		return nil, fmt.Errorf("ошибка шаблона письма: %w", err)
	}

	greeting := "Здравствуйте!"
	if v.Name != "" {
		greeting = "Здравствуйте, " + v.Name + "!"
	}

	return &Message{
		Subject: "ReWear: " + et.subject,
		HTML:    html.String(),
		Text:    greeting + "\n\n" + body.String() + "\n\nКоманда ReWear",
	}, nil
}
