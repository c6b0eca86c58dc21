package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"math"
	"strings"
	texttemplate "text/template"
	"time"
	"unicode/utf8"

	"lysje/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// DefaultSubject is the subject line of every reminder digest.
const DefaultSubject = "Your Open Todo Items"

// deadlineDateLayout prints the deadline date in the recipient's zone.
const deadlineDateLayout = "1/2/2006"

// RenderedEmail holds the pre-rendered email content ready for transmission.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// RendererConfig holds the parameters needed to construct a Renderer.
type RendererConfig struct {
	AppName string
	// BaseURL is the public web app URL without trailing slash.
	BaseURL string
	Subject string
}

// Renderer turns a user's open lists into the HTML and plain-text digest.
// Templates are parsed once; a Renderer is safe for concurrent use.
type Renderer struct {
	html    *template.Template
	text    *texttemplate.Template
	appName string
	baseURL string
	subject string
}

// digestView is the single traversal of the digest data. Both templates are
// executed over the same value.
type digestView struct {
	Subject   string
	AppName   string
	BaseURL   string
	Greeting  string
	ItemCount int
	Lists     []listView
}

type listView struct {
	Name        string
	Description string
	URL         string
	// Underline is "=" repeated to the rune length of Name.
	Underline string
	Items     []itemView
}

type itemView struct {
	Title         string
	Description   string
	HasDeadline   bool
	DeadlineDate  string
	DeadlineLabel string
	Overdue       bool
}

// NewRenderer parses the embedded templates and returns a Renderer.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	if cfg.AppName == "" {
		cfg.AppName = "Lysje"
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}

	htmlTmpl, err := template.ParseFS(templateFS, "templates/base.html", "templates/digest.html")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse HTML templates: %w", err)
	}
	txtTmpl, err := texttemplate.ParseFS(templateFS, "templates/digest.txt")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse text template: %w", err)
	}

	return &Renderer{
		html:    htmlTmpl,
		text:    txtTmpl,
		appName: cfg.AppName,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		subject: cfg.Subject,
	}, nil
}

// Render produces the digest for userName. lists must already be filtered
// to lists with open items; an empty slice renders the "no open items"
// message. Deadlines are measured against now and dated in loc.
func (r *Renderer) Render(userName string, lists []types.ListDigest, now time.Time, loc *time.Location) (*RenderedEmail, error) {
	if loc == nil {
		loc = time.UTC
	}
	view := r.buildView(userName, lists, now, loc)

	var htmlBuf bytes.Buffer
	if err := r.html.ExecuteTemplate(&htmlBuf, "base", view); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalRender, "failed to render HTML digest", err)
	}

	var txtBuf bytes.Buffer
	if err := r.text.ExecuteTemplate(&txtBuf, "digest.txt", view); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalRender, "failed to render text digest", err)
	}

	return &RenderedEmail{
		Subject:  view.Subject,
		BodyHTML: htmlBuf.String(),
		BodyText: txtBuf.String(),
	}, nil
}

func (r *Renderer) buildView(userName string, lists []types.ListDigest, now time.Time, loc *time.Location) digestView {
	greeting := strings.TrimSpace(userName)
	if greeting == "" {
		greeting = "there"
	}

	view := digestView{
		Subject:  r.subject,
		AppName:  r.appName,
		BaseURL:  r.baseURL,
		Greeting: greeting,
	}

	for _, l := range lists {
		if len(l.Items) == 0 {
			continue
		}
		lv := listView{
			Name:        l.List.Name,
			Description: types.StringValue(l.List.Description),
			URL:         r.baseURL + "/lists/" + l.List.ID,
			Underline:   strings.Repeat("=", utf8.RuneCountInString(l.List.Name)),
		}
		for _, it := range l.Items {
			iv := itemView{
				Title:       it.Title,
				Description: types.StringValue(it.Description),
			}
			if it.Deadline != nil {
				days := DaysUntil(*it.Deadline, now)
				iv.HasDeadline = true
				iv.DeadlineDate = it.Deadline.In(loc).Format(deadlineDateLayout)
				iv.Overdue = days < 0
				iv.DeadlineLabel = deadlineLabel(days)
			}
			lv.Items = append(lv.Items, iv)
		}
		view.Lists = append(view.Lists, lv)
	}
	view.ItemCount = types.OpenItemCount(lists)
	return view
}

// DaysUntil returns ceil((deadline - now) / 24h). Negative values mean the
// deadline has passed by at least a full day.
func DaysUntil(deadline, now time.Time) int {
	d := deadline.Sub(now)
	days := int(math.Ceil(d.Hours() / 24))
	return days
}

func deadlineLabel(days int) string {
	if days < 0 {
		return fmt.Sprintf("OVERDUE by %d days", -days)
	}
	return fmt.Sprintf("%d days remaining", days)
}
