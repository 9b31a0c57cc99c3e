package storefront

import (
	"embed"
	"html/template"
	"io"

	"github.com/labstack/echo"
	"github.com/shopspring/decimal"

	"github.com/gebv/airtime"
	"github.com/gebv/airtime/engine"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templateFuncs = template.FuncMap{
	"money": func(d decimal.Decimal) string {
		return d.StringFixed(2)
	},
}

type renderer struct {
	t *template.Template
}

func newRenderer() *renderer {
	return &renderer{
		t: template.Must(template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")),
	}
}

func (r *renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.t.ExecuteTemplate(w, name, data)
}

// page data of every storefront template.
type page struct {
	Title   string
	Mode    engine.Mode
	Outcome *engine.Outcome
}

// Selected reports whether id is the product the buyer picked last.
func (p page) Selected(id airtime.ProductID) bool {
	return p.Outcome != nil && p.Outcome.Product != nil && p.Outcome.Product.ID == id
}

var _ echo.Renderer = (*renderer)(nil)
