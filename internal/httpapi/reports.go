package httpapi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"rinkdesk/backend/internal/domain"
)

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	branchID := query.Get("branch_id")
	actorDefaults(r, &branchID, nil)

	summary, err := a.service.DailyReport(r.Context(), branchID, query.Get("date"), isLocalCalendar(query.Get("calendar")))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeSummary(w, query.Get("format"), "daily-report-"+summary.From, summary)
}

func (a *API) handleRangeReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	branchID := query.Get("branch_id")
	actorDefaults(r, &branchID, nil)

	summary, err := a.service.RangeReport(r.Context(), branchID, query.Get("from"), query.Get("to"), isLocalCalendar(query.Get("calendar")))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeSummary(w, query.Get("format"), fmt.Sprintf("report-%s-%s", summary.From, summary.To), summary)
}

// isLocalCalendar reports whether date query values are Bikram Sambat.
func isLocalCalendar(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "bs", "local", "nepali":
		return true
	}
	return false
}

func writeSummary(w http.ResponseWriter, format string, filename string, summary domain.Summary) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		body, err := summaryToCSV(summary)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+".csv"))
		_, _ = w.Write(body)
	case "html", "pdf":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(summaryToPrintableHTML(summary)))
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}

var summaryCSVHeader = []string{
	"date", "local_date", "tickets", "people", "refunded_players",
	"ticket_revenue", "extra_time_revenue", "refunds", "net_ticket_revenue",
	"sales_revenue", "expenses", "total_revenue", "profit_loss",
}

func summaryCSVRow(day domain.DaySummary) []string {
	return []string{
		day.Date,
		day.LocalDate,
		strconv.Itoa(day.Tickets),
		strconv.Itoa(day.People),
		strconv.Itoa(day.RefundedPlayers),
		day.TicketRevenue.StringFixed(2),
		day.ExtraTimeRevenue.StringFixed(2),
		day.Refunds.StringFixed(2),
		day.NetTicketRevenue.StringFixed(2),
		day.SalesRevenue.StringFixed(2),
		day.Expenses.StringFixed(2),
		day.TotalRevenue.StringFixed(2),
		day.ProfitLoss.StringFixed(2),
	}
}

func summaryToCSV(summary domain.Summary) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(summaryCSVHeader); err != nil {
		return nil, err
	}
	for _, day := range summary.Days {
		if err := writer.Write(summaryCSVRow(day)); err != nil {
			return nil, err
		}
	}
	totals := summary.Totals
	totals.Date = "total"
	if err := writer.Write(summaryCSVRow(totals)); err != nil {
		return nil, err
	}
	writer.Flush()
	return buf.Bytes(), writer.Error()
}

var summaryHTMLTmpl = template.Must(template.New("summary").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Report {{.From}} to {{.To}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.n { text-align: right; }
    tfoot td { font-weight: bold; }
  </style>
</head>
<body>
  <h2>Report {{.From}} to {{.To}}</h2>
  <p>Branch: {{.BranchID}} | Currency: {{.Currency}}</p>
  <table>
    <thead><tr><th>Date</th><th>BS Date</th><th>Tickets</th><th>People</th><th>Ticket</th><th>Extra Time</th><th>Refunds</th><th>Sales</th><th>Expenses</th><th>Total</th><th>Profit/Loss</th></tr></thead>
    <tbody>{{range .Days}}<tr><td>{{.Date}}</td><td>{{.LocalDate}}</td><td class="n">{{.Tickets}}</td><td class="n">{{.People}}</td><td class="n">{{.TicketRevenue.StringFixed 2}}</td><td class="n">{{.ExtraTimeRevenue.StringFixed 2}}</td><td class="n">{{.Refunds.StringFixed 2}}</td><td class="n">{{.SalesRevenue.StringFixed 2}}</td><td class="n">{{.Expenses.StringFixed 2}}</td><td class="n">{{.TotalRevenue.StringFixed 2}}</td><td class="n">{{.ProfitLoss.StringFixed 2}}</td></tr>{{end}}</tbody>
    {{with .Totals}}<tfoot><tr><td colspan="2">Total</td><td class="n">{{.Tickets}}</td><td class="n">{{.People}}</td><td class="n">{{.TicketRevenue.StringFixed 2}}</td><td class="n">{{.ExtraTimeRevenue.StringFixed 2}}</td><td class="n">{{.Refunds.StringFixed 2}}</td><td class="n">{{.SalesRevenue.StringFixed 2}}</td><td class="n">{{.Expenses.StringFixed 2}}</td><td class="n">{{.TotalRevenue.StringFixed 2}}</td><td class="n">{{.ProfitLoss.StringFixed 2}}</td></tr></tfoot>{{end}}
  </table>
</body>
</html>
`))

func summaryToPrintableHTML(summary domain.Summary) string {
	var buf bytes.Buffer
	if err := summaryHTMLTmpl.Execute(&buf, summary); err != nil {
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}
