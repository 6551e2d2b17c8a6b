package models

// Campus is one selectable campus of the registration form.
type Campus struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Campuses lists every campus a rider can register under.
var Campuses = []Campus{
	{Value: "aimores", Label: "Aimorés"},
	{Value: "contagem", Label: "Contagem"},
	{Value: "cristiano-machado", Label: "Cristiano Machado"},
	{Value: "barreiro", Label: "Barreiro"},
	{Value: "betim", Label: "Betim"},
	{Value: "guajajaras", Label: "Guajajaras"},
	{Value: "joao-pinheiro", Label: "João Pinheiro"},
	{Value: "liberdade", Label: "Liberdade"},
	{Value: "linha-verde", Label: "Linha Verde"},
}

// CampusValues returns the campus identifiers in display order.
func CampusValues() []string {
	out := make([]string, len(Campuses))
	for i, c := range Campuses {
		out[i] = c.Value
	}
	return out
}
