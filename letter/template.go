package letter

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"scorevera/tradeline"
)

const templateModel = "template-v1"

type bureauAddress struct {
	Name  string
	Lines []string
}

var bureauAddresses = map[tradeline.Bureau]bureauAddress{
	tradeline.BureauEquifax: {
		Name:  "Equifax Information Services LLC",
		Lines: []string{"P.O. Box 740256", "Atlanta, GA 30374"},
	},
	tradeline.BureauExperian: {
		Name:  "Experian",
		Lines: []string{"P.O. Box 4500", "Allen, TX 75013"},
	},
	tradeline.BureauTransUnion: {
		Name:  "TransUnion Consumer Solutions",
		Lines: []string{"P.O. Box 2000", "Chester, PA 19016"},
	},
}

var itemLabels = map[tradeline.ItemType]string{
	tradeline.ItemLatePayment:   "late payment",
	tradeline.ItemCollection:    "collection account",
	tradeline.ItemChargeOff:     "charge-off",
	tradeline.ItemOtherNegative: "negative item",
}

const letterTemplate = `{{.Today}}

{{.Address.Name}}
{{range .Address.Lines}}{{.}}
{{end}}
Re: {{.Subject}}

To whom it may concern,

{{.Opening}}

Creditor: {{.Creditor}}
Item: {{.Item}}
Reported: {{.Reported}}{{if .Amount}}
Amount: {{.Amount}}{{end}}

{{.Request}}

Sincerely,
[Your name]
[Your address]
`

var tmpl = template.Must(template.New("letter").Parse(letterTemplate))

type templateData struct {
	Today    string
	Address  bureauAddress
	Subject  string
	Opening  string
	Creditor string
	Item     string
	Reported string
	Amount   string
	Request  string
}

// TemplateGenerator renders a deterministic letter whose wording escalates
// with the round number. It never calls out of process.
type TemplateGenerator struct{}

func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

func (g *TemplateGenerator) Generate(ctx context.Context, req Request) (Draft, error) {
	if err := ctx.Err(); err != nil {
		return Draft{}, err
	}
	addr, ok := bureauAddresses[req.Bureau]
	if !ok {
		return Draft{}, fmt.Errorf("letter: unknown bureau %q", req.Bureau)
	}
	if req.Round < 1 {
		return Draft{}, fmt.Errorf("letter: invalid round %d", req.Round)
	}

	data := templateData{
		Today:    req.Today.Format("January 2, 2006"),
		Address:  addr,
		Creditor: req.Creditor,
		Item:     itemLabel(req.ItemType),
		Reported: req.ReportedOn.Format("January 2006"),
		Amount:   formatCents(req.AmountCents),
	}
	data.Subject, data.Opening, data.Request = roundWording(req.Round, data.Item)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Draft{}, fmt.Errorf("letter: render: %w", err)
	}
	return Draft{Body: buf.String(), Model: templateModel}, nil
}

func roundWording(round int, item string) (subject, opening, request string) {
	switch round {
	case 1:
		return "Dispute of inaccurate information",
			fmt.Sprintf("I am writing to dispute the following %s on my credit report. I believe it is inaccurate or cannot be verified.", item),
			"Under section 611 of the Fair Credit Reporting Act, please investigate this item and delete or correct it within 30 days of receiving this letter."
	case 2:
		return "Second request: method of verification",
			fmt.Sprintf("I previously disputed the following %s and you reported it as verified. I do not accept that result.", item),
			"Under section 611(a)(7) of the Fair Credit Reporting Act, please provide a description of the procedure used to verify this item, including the name and contact details of the furnisher, or delete it."
	default:
		return fmt.Sprintf("Final request (round %d)", round),
			fmt.Sprintf("This is my further dispute of the following %s, which remains on my report despite earlier requests.", item),
			"If this item is not deleted or fully verified with documentation within 30 days, I intend to file a complaint with the Consumer Financial Protection Bureau."
	}
}

func itemLabel(t tradeline.ItemType) string {
	if label, ok := itemLabels[t]; ok {
		return label
	}
	return strings.ReplaceAll(string(t), "_", " ")
}

func formatCents(cents *int64) string {
	if cents == nil {
		return ""
	}
	return fmt.Sprintf("$%d.%02d", *cents/100, *cents%100)
}
