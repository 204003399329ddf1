// Package report renders the client-facing SEO performance report and sends
// it as a transactional email.
package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/webleadsnow/linkboard/internal/aggregate"
	"github.com/webleadsnow/linkboard/internal/seo"
)

// Sender delivers one HTML email.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) (string, error)
}

// DataSource assembles the report inputs for one project.
type DataSource interface {
	Report(ctx context.Context, projectID string, days int) (aggregate.ReportData, error)
}

// Service builds and emails reports.
type Service struct {
	source DataSource
	emails Sender
	clock  seo.Clock
	logger *zap.Logger
}

// New constructs a Service.
func New(source DataSource, emails Sender, clock seo.Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{source: source, emails: emails, clock: clock, logger: logger}
}

// Email renders the report for projectID over the last days and sends it to
// the given address. Returns the provider's message id.
func (s *Service) Email(ctx context.Context, projectID, to, notes string, days int) (string, error) {
	if to == "" {
		return "", fmt.Errorf("recipient: %w", seo.ErrInvalidInput)
	}
	data, err := s.source.Report(ctx, projectID, days)
	if err != nil {
		return "", err
	}

	html, err := s.BuildHTML(data, notes, days)
	if err != nil {
		return "", err
	}
	subject := s.Subject(data.Project)

	id, err := s.emails.Send(ctx, to, subject, html)
	if err != nil {
		return "", err
	}
	s.logger.Info("report emailed",
		zap.String("project_id", projectID),
		zap.String("to", to),
		zap.String("message_id", id))
	return id, nil
}

// Subject builds the email subject line for a project's monthly report.
func (s *Service) Subject(p seo.Project) string {
	name := p.Name
	if name == "" {
		name = "Your Project"
	}
	return fmt.Sprintf("SEO Report — %s — %s", name, s.clock.Now().Format("January 2006"))
}

type keywordRow struct {
	Keyword  string
	Current  string
	Previous string
	Movement template.HTML
	Color    string
}

type metricCell struct {
	Label string
	Value string
	Delta string
	Up    bool
	// HasDelta distinguishes "no prior value" from a zero delta.
	HasDelta bool
}

type emailView struct {
	ProjectName string
	Domain      string
	Date        string
	Days        int
	Notes       []string
	GSC         []metricCell
	Backlinks   []metricCell
	Keywords    []keywordRow
}

// BuildHTML renders the report. Sections whose data is absent are omitted
// entirely rather than rendered empty.
func (s *Service) BuildHTML(data aggregate.ReportData, notes string, days int) (string, error) {
	view := emailView{
		ProjectName: data.Project.Name,
		Domain:      data.Project.Domain,
		Date:        s.clock.Now().Format("January 2, 2006"),
		Days:        days,
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		view.Notes = strings.Split(notes, "\n")
	}

	if data.GSC != nil {
		g := data.GSC.Summary
		view.GSC = []metricCell{
			deltaCell("CLICKS", g.Clicks, g.Clicks-g.ClicksDelta, true),
			deltaCell("IMPRESSIONS", g.Impressions, g.Impressions-g.ImpressionsDelta, true),
			{Label: "AVG POSITION", Value: fmt.Sprintf("#%.1f", g.AvgPosition)},
			{Label: "AVG CTR", Value: fmt.Sprintf("%.2f%%", g.AvgCTR*100)},
		}
	}

	var latest, prev *seo.Run
	if len(data.Runs) > 0 {
		latest = &data.Runs[0]
	}
	if len(data.Runs) > 1 {
		prev = &data.Runs[1]
	}

	if latest != nil && latest.Backlinks != nil {
		bl := latest.Backlinks
		var prevBl *seo.BacklinkSummary
		if prev != nil {
			prevBl = prev.Backlinks
		}
		view.Backlinks = []metricCell{
			backlinkCell("REF DOMAINS", bl.ReferringDomains, prevBl, func(b *seo.BacklinkSummary) int { return b.ReferringDomains }),
			backlinkCell("TOTAL BACKLINKS", bl.Backlinks, prevBl, func(b *seo.BacklinkSummary) int { return b.Backlinks }),
			backlinkCell("TRUST FLOW", bl.TrustFlow, prevBl, func(b *seo.BacklinkSummary) int { return b.TrustFlow }),
			backlinkCell("DOMAIN RANK", bl.Rank, prevBl, func(b *seo.BacklinkSummary) int { return b.Rank }),
		}
	}

	view.Keywords = keywordRows(data.Project, latest, prev)

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

func deltaCell(label string, current, previous int, hasPrev bool) metricCell {
	cell := metricCell{Label: label, Value: fmt.Sprintf("%d", current)}
	if hasPrev {
		d := current - previous
		cell.HasDelta = true
		cell.Up = d >= 0
		if d >= 0 {
			cell.Delta = fmt.Sprintf("+%d", d)
		} else {
			cell.Delta = fmt.Sprintf("%d", d)
		}
	}
	return cell
}

func backlinkCell(label string, current int, prev *seo.BacklinkSummary, pick func(*seo.BacklinkSummary) int) metricCell {
	if prev == nil {
		return metricCell{Label: label, Value: fmt.Sprintf("%d", current)}
	}
	return deltaCell(label, current, pick(prev), true)
}

// keywordRows lists the project's keywords (falling back to whatever the
// latest run ranked) with current position, previous position, and movement.
func keywordRows(p seo.Project, latest, prev *seo.Run) []keywordRow {
	keywords := p.Keywords
	if len(keywords) == 0 && latest != nil {
		for kw := range latest.Rankings {
			keywords = append(keywords, kw)
		}
		sort.Strings(keywords)
	}

	rows := make([]keywordRow, 0, len(keywords))
	for _, kw := range keywords {
		var curr, previous *int
		if latest != nil {
			curr = latest.Rankings[kw]
		}
		if prev != nil {
			previous = prev.Rankings[kw]
		}
		rows = append(rows, keywordRow{
			Keyword:  kw,
			Current:  fmtRank(curr),
			Previous: fmtRank(previous),
			Movement: movement(curr, previous),
			Color:    rankColor(curr),
		})
	}
	return rows
}

func fmtRank(pos *int) string {
	if pos == nil {
		return "—"
	}
	return fmt.Sprintf("#%d", *pos)
}

// movement reports rank change as an arrow. A drop in position number is an
// improvement.
func movement(curr, prev *int) template.HTML {
	if curr == nil || prev == nil {
		return ""
	}
	d := *prev - *curr
	switch {
	case d > 0:
		return template.HTML(fmt.Sprintf(`<span style="color:#00c853">&#9650;%d</span>`, d))
	case d < 0:
		return template.HTML(fmt.Sprintf(`<span style="color:#cc2200">&#9660;%d</span>`, -d))
	default:
		return template.HTML(`<span style="color:#888">&mdash;</span>`)
	}
}

func rankColor(pos *int) string {
	switch {
	case pos == nil:
		return "#888"
	case *pos <= 3:
		return "#00c853"
	case *pos <= 10:
		return "#c8b800"
	case *pos <= 30:
		return "#e67e00"
	default:
		return "#cc2200"
	}
}

var emailTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html><html><head><meta charset="UTF-8"></head>
<body style="margin:0;padding:0;background:#0a0a0a;font-family:Arial,sans-serif;color:#e0e0e0">
<div style="max-width:700px;margin:0 auto;padding:24px">

  <div style="background:#111;border:1px solid #333;border-radius:12px;padding:32px;margin-bottom:24px;text-align:center">
    <div style="font-size:10px;letter-spacing:4px;color:#b8ff00;margin-bottom:8px">WEBLEADSNOW.COM</div>
    <div style="font-size:28px;font-weight:900;color:#fff;letter-spacing:-1px">SEO PERFORMANCE REPORT</div>
    <div style="font-size:13px;color:#888;margin-top:8px">{{.ProjectName}} &middot; {{.Date}} &middot; Last {{.Days}} days</div>
    {{if .Domain}}<div style="font-size:12px;color:#b8ff00;margin-top:4px;font-family:monospace">{{.Domain}}</div>{{end}}
  </div>

  {{if .Notes}}<div style="background:#111;border:1px solid #333;border-left:4px solid #b8ff00;border-radius:8px;padding:20px;margin-bottom:24px">
    <div style="font-size:10px;letter-spacing:3px;color:#b8ff00;margin-bottom:10px">NOTES FROM YOUR SEO TEAM</div>
    <div style="font-size:14px;color:#ccc;line-height:1.6">{{range .Notes}}{{.}}<br>{{end}}</div>
  </div>{{end}}

  {{if .GSC}}<div style="background:#111;border:1px solid #333;border-radius:12px;padding:24px;margin-bottom:24px">
    <div style="font-size:10px;letter-spacing:3px;color:#b8ff00;margin-bottom:16px">SEARCH CONSOLE &mdash; LAST {{.Days}} DAYS</div>
    <table width="100%"><tr>
      {{range .GSC}}<td style="text-align:center;padding:0 8px"><div style="background:#0a0a0a;border-radius:8px;padding:14px"><div style="font-size:9px;letter-spacing:2px;color:#555;margin-bottom:6px">{{.Label}}</div><div style="font-size:22px;font-weight:900;color:#b8ff00">{{.Value}}</div>{{if .HasDelta}}<div style="font-size:11px;color:{{if .Up}}#00c853{{else}}#cc2200{{end}};margin-top:4px">{{.Delta}}</div>{{end}}</div></td>{{end}}
    </tr></table>
  </div>{{end}}

  {{if .Backlinks}}<div style="background:#111;border:1px solid #333;border-radius:12px;padding:24px;margin-bottom:24px">
    <div style="font-size:10px;letter-spacing:3px;color:#b8ff00;margin-bottom:16px">BACKLINK METRICS</div>
    <table width="100%"><tr>
      {{range .Backlinks}}<td style="text-align:center;padding:0 8px"><div style="background:#0a0a0a;border-radius:8px;padding:14px"><div style="font-size:9px;letter-spacing:2px;color:#555;margin-bottom:6px">{{.Label}}</div><div style="font-size:22px;font-weight:900;color:#b8ff00">{{.Value}}</div>{{if .HasDelta}}<div style="font-size:11px;color:{{if .Up}}#00c853{{else}}#cc2200{{end}};margin-top:4px">{{.Delta}}</div>{{end}}</div></td>{{end}}
    </tr></table>
  </div>{{end}}

  {{if .Keywords}}<div style="background:#111;border:1px solid #333;border-radius:12px;padding:24px;margin-bottom:24px">
    <div style="font-size:10px;letter-spacing:3px;color:#b8ff00;margin-bottom:16px">KEYWORD RANKINGS</div>
    <table width="100%" style="border-collapse:collapse">
      <tr><th style="text-align:left;padding:8px 14px;color:#555;font-size:9px;letter-spacing:2px;border-bottom:1px solid #2a2a2a;font-weight:400">KEYWORD</th><th style="padding:8px 14px;color:#555;font-size:9px;letter-spacing:2px;border-bottom:1px solid #2a2a2a;font-weight:400">RANK</th><th style="padding:8px 14px;color:#555;font-size:9px;letter-spacing:2px;border-bottom:1px solid #2a2a2a;font-weight:400">PREV</th><th style="padding:8px 14px;color:#555;font-size:9px;letter-spacing:2px;border-bottom:1px solid #2a2a2a;font-weight:400">CHANGE</th></tr>
      {{range .Keywords}}<tr>
        <td style="padding:10px 14px;border-bottom:1px solid #2a2a2a;font-family:monospace;font-size:12px;color:#e0e0e0">{{.Keyword}}</td>
        <td style="padding:10px 14px;border-bottom:1px solid #2a2a2a;text-align:center;font-weight:700;color:{{.Color}}">{{.Current}}</td>
        <td style="padding:10px 14px;border-bottom:1px solid #2a2a2a;text-align:center;color:#666">{{.Previous}}</td>
        <td style="padding:10px 14px;border-bottom:1px solid #2a2a2a;text-align:center;font-size:12px">{{.Movement}}</td>
      </tr>{{end}}
    </table>
  </div>{{end}}

  <div style="text-align:center;padding:20px;color:#555;font-size:11px">
    <div style="color:#b8ff00;font-weight:700;margin-bottom:4px">WebLeadsNow</div>
    <div>webleadsnow.com &middot; reports@webleadsnow.com</div>
    <div style="margin-top:8px">Generated {{.Date}}</div>
  </div>
</div></body></html>`))
