// Package classify maps free-text infrastructure names to a coarse category.
package classify

import (
	"regexp"
	"strings"

	"github.com/sells-group/ptel-geocoder/internal/textnorm"
	"github.com/sells-group/ptel-geocoder/pkg/geocode"
)

type rule struct {
	category geocode.Category
	pattern  *regexp.Regexp
}

// keywords are accent-free and lowercase; names are folded before matching.
var keywords = []struct {
	category geocode.Category
	words    []string
}{
	{geocode.CategoryHealth, []string{
		"centro de salud", "consultorio", "hospital", "ambulatorio", "clinica",
		"farmacia", "urgencias", "sanitario", "dispensario", "suap",
	}},
	{geocode.CategoryEducation, []string{
		"colegio", "instituto", "escuela", "ceip", "ies", "guarderia",
		"universidad", "conservatorio",
	}},
	{geocode.CategoryCultural, []string{
		"biblioteca", "museo", "teatro", "casa de la cultura", "auditorio",
		"centro cultural", "ermita", "iglesia",
	}},
	{geocode.CategoryTelecom, []string{
		"antena", "repetidor", "telecomunicaciones", "tdt", "telefonia",
		"estacion base", "radioenlace",
	}},
	{geocode.CategorySports, []string{
		"polideportivo", "pabellon", "campo de futbol", "estadio", "piscina",
		"pista", "gimnasio", "deportivo",
	}},
	{geocode.CategoryAdministrative, []string{
		"ayuntamiento", "casa consistorial", "juzgado", "oficina",
		"policia local", "guardia civil", "comisaria", "bomberos",
		"proteccion civil",
	}},
}

var rules = compile()

func compile() []rule {
	out := make([]rule, 0, len(keywords))
	for _, k := range keywords {
		quoted := make([]string, len(k.words))
		for i, w := range k.words {
			quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(w), " ", `\s+`)
		}
		out = append(out, rule{
			category: k.category,
			pattern:  regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`),
		})
	}
	return out
}

// Classify returns the first category, in priority order, whose keywords
// appear as whole words in name. Unmatched names are generic.
func Classify(name string) geocode.Category {
	folded := textnorm.Fold(name)
	if folded == "" {
		return geocode.CategoryGeneric
	}
	for _, r := range rules {
		if r.pattern.MatchString(folded) {
			return r.category
		}
	}
	return geocode.CategoryGeneric
}

// Resolve returns the explicit category of q when set, else classifies its name.
func Resolve(q geocode.Query) geocode.Category {
	if q.Category != "" {
		return q.Category
	}
	return Classify(q.Name)
}
